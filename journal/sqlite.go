package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

var (
	createBatches = `create table if not exists batches (
    		id TEXT not null primary key,
    		kernel TEXT not null,
    		jobs BLOB,
    		status TEXT not null default 'scheduled',
    		pid INTEGER not null default 0,
    		created_at TEXT not null default (strftime('%Y-%m-%dT%H:%M:%fZ')),
    		updated_at TEXT not null default (strftime('%Y-%m-%dT%H:%M:%fZ'))
		) strict;`

	createArchivedBatches = `create table if not exists archived_batches (
    		id TEXT not null primary key,
    		kernel TEXT not null,
    		jobs BLOB,
    		status TEXT not null,
    		pid INTEGER not null,
    		created_at TEXT not null,
    		updated_at TEXT not null,
    		archived_at TEXT not null default (strftime('%Y-%m-%dT%H:%M:%fZ'))
		) strict;`
)

var ErrNotFound = errors.New("journal: batch not found")

type Sqlite struct {
	logger *slog.Logger
	db     *sqlx.DB
}

func NewSqlite(dbPath string, logger *slog.Logger) (*Sqlite, error) {
	db, err := sqlx.Open("sqlite3", fmt.Sprintf("%s?cache=shared&mode=rwc&_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath))
	if err != nil {
		return nil, err
	}

	_, err = db.Exec("PRAGMA journal_size_limit = 67108864;")
	if err != nil {
		return nil, err
	}

	_, err = db.Exec("PRAGMA mmap_size = 134217728;")
	if err != nil {
		return nil, err
	}

	_, err = db.Exec("PRAGMA cache_size = 2000;")
	if err != nil {
		return nil, err
	}

	s := &Sqlite{db: db, logger: logger}

	ctx := context.Background()
	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, createBatches); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, createArchivedBatches); err != nil {
			return err
		}

		return nil
	})

	return s, err
}

func (s *Sqlite) RecordBatch(ctx context.Context, rec *BatchRecord) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		writeQuery := `insert into batches (id, kernel, jobs, status, pid) values ($1, $2, $3, $4, $5)`
		_, innerErr := tx.ExecContext(ctx, writeQuery, rec.ID, rec.Kernel, rec.Jobs, string(StatusScheduled), rec.Pid)
		return innerErr
	})
}

func (s *Sqlite) UpdateStatus(ctx context.Context, id string, status Status) (rec BatchRecord, err error) {
	getById := `select * from batches where id = $1`
	updateStatus := `update batches set status = $1, updated_at = (strftime('%Y-%m-%dT%H:%M:%fZ')) where id = $2 returning *;`

	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		row := tx.QueryRowxContext(ctx, getById, id)
		if row.Err() != nil {
			return row.Err()
		}

		var current BatchRecord
		if scanErr := row.StructScan(&current); scanErr != nil {
			if errors.Is(scanErr, sql.ErrNoRows) {
				return ErrNotFound
			}
			return scanErr
		}

		if statusLevel(Status(current.Status)) > statusLevel(status) {
			return fmt.Errorf("batch is already in the %s state", current.Status)
		}

		row = tx.QueryRowxContext(ctx, updateStatus, string(status), id)
		if row.Err() != nil {
			return row.Err()
		}

		return row.StructScan(&rec)
	})

	return rec, err
}

// ArchiveBatch moves a batch and leaves the live table clean. Archiving a
// missing batch is an error; archived rows are kept forever.
func (s *Sqlite) ArchiveBatch(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		row := tx.QueryRowxContext(ctx, `delete from batches where id = $1 returning *`, id)
		if row.Err() != nil {
			return row.Err()
		}

		var rec BatchRecord
		if scanErr := row.StructScan(&rec); scanErr != nil {
			if errors.Is(scanErr, sql.ErrNoRows) {
				return ErrNotFound
			}
			return scanErr
		}

		insertQuery := `insert into archived_batches (id, kernel, jobs, status, pid, created_at, updated_at)
			values (:id, :kernel, :jobs, :status, :pid, :created_at, :updated_at)`
		_, err := tx.NamedExecContext(ctx, insertQuery, rec)
		return err
	})
}

func (s *Sqlite) ListArchived(ctx context.Context) (records []BatchRecord, err error) {
	listQuery := `select id, kernel, jobs, status, pid, created_at, updated_at from archived_batches order by id desc;`

	err = s.inTx(ctx, func(tx *sqlx.Tx) error {
		rows, rowsErr := tx.QueryxContext(ctx, listQuery)
		if rowsErr != nil {
			return rowsErr
		}
		defer rows.Close()

		for rows.Next() {
			var rec BatchRecord
			if scanErr := rows.StructScan(&rec); scanErr != nil {
				return scanErr
			}
			records = append(records, rec)
		}

		return rows.Err()
	})

	return records, err
}

func (s *Sqlite) Close() error {
	return s.db.Close()
}

func (s *Sqlite) inTx(ctx context.Context, cb func(*sqlx.Tx) error) (err error) {
	tx, beginErr := s.db.BeginTxx(ctx, nil)
	if beginErr != nil {
		return fmt.Errorf("cannot start tx: %w", beginErr)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = rollback(tx, nil)
			panic(rec)
		}
	}()

	if err = cb(tx); err != nil {
		return rollback(tx, err)
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("cannot commit tx: %w", commitErr)
	}

	return nil
}

func rollback(tx *sqlx.Tx, err error) error {
	if rollbackErr := tx.Rollback(); rollbackErr != nil {
		return fmt.Errorf("cannot roll back tx after error (tx error: %v), original error: %w", rollbackErr, err)
	}
	return err
}
