// Package journal records dispatched batches durably so an operator can
// see what a process was computing, including across fork-and-recompute
// cycles where each descendant process appends to the same file.
package journal

import "context"

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// statusLevel orders statuses so a record can never move backwards,
// e.g. a late "active" update on an already completed batch is rejected.
func statusLevel(s Status) int {
	switch s {
	case StatusScheduled:
		return 1
	case StatusActive:
		return 2
	case StatusCompleted, StatusFailed:
		return 3
	default:
		return 0
	}
}

// BatchRecord is one journalled dispatch.
type BatchRecord struct {
	ID        string `db:"id"`
	Kernel    string `db:"kernel"`
	Jobs      []byte `db:"jobs"`
	Status    string `db:"status"`
	Pid       int64  `db:"pid"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

type Journal interface {
	// RecordBatch journals a new batch in the scheduled state.
	RecordBatch(ctx context.Context, rec *BatchRecord) error

	// UpdateStatus moves a batch forward through its lifecycle; moving
	// backwards is an error.
	UpdateStatus(ctx context.Context, id string, status Status) (BatchRecord, error)

	// ArchiveBatch moves a terminal batch out of the live table.
	ArchiveBatch(ctx context.Context, id string) error

	// ListArchived returns archived batches, newest first.
	ListArchived(ctx context.Context) ([]BatchRecord, error)

	Close() error
}
