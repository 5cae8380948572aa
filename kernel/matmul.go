package kernel

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// MatMul is the kernel name of the built-in matrix multiplication.
const MatMul = "matmul"

var ErrDimensionMismatch = errors.New("matrix dimensions do not match")

// Matrix is a dense row-major float64 matrix.
type Matrix struct {
	Rows, Cols int
	Data       []float64
}

func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{
		Rows: rows,
		Cols: cols,
		Data: make([]float64, rows*cols),
	}
}

// RandomMatrix fills a matrix from a seeded source, so two processes with
// the same seed build the same matrix.
func RandomMatrix(rows, cols int, seed int64) *Matrix {
	m := NewMatrix(rows, cols)
	r := rand.New(rand.NewSource(seed))
	for i := range m.Data {
		m.Data[i] = r.Float64()
	}
	return m
}

func (m *Matrix) At(i, j int) float64 {
	return m.Data[i*m.Cols+j]
}

func (m *Matrix) Set(i, j int, v float64) {
	m.Data[i*m.Cols+j] = v
}

// EqualWithin reports element-wise equality within tol.
func (m *Matrix) EqualWithin(other *Matrix, tol float64) bool {
	if other == nil || m.Rows != other.Rows || m.Cols != other.Cols {
		return false
	}
	for i := range m.Data {
		if math.Abs(m.Data[i]-other.Data[i]) > tol {
			return false
		}
	}
	return true
}

// MatMulArgs describes one row band of C = A×B. Bands of one product are
// independent, which is what makes them a batch: they may complete in any
// order and the assembled C is identical to the serial product.
type MatMulArgs struct {
	A, B, C    *Matrix
	Row0, Row1 int
}

// MatMulHandler returns the handler backing the MatMul kernel.
func MatMulHandler() Handler {
	return HandlerFunc(func(ctx context.Context, job *Job) error {
		args, ok := job.Args.(*MatMulArgs)
		if !ok {
			return fmt.Errorf("matmul: unexpected args type %T", job.Args)
		}
		return multiplyRange(args.A, args.B, args.C, args.Row0, args.Row1)
	})
}

// multiplyRange computes rows [row0, row1) of C = A×B. The i-k-j loop
// order keeps the inner loop walking both B and C along a row.
func multiplyRange(a, b, c *Matrix, row0, row1 int) error {
	if a.Cols != b.Rows || c.Rows != a.Rows || c.Cols != b.Cols {
		return ErrDimensionMismatch
	}
	if row0 < 0 || row1 > a.Rows || row0 > row1 {
		return fmt.Errorf("matmul: row range [%d, %d) out of bounds", row0, row1)
	}

	for i := row0; i < row1; i++ {
		ci := c.Data[i*c.Cols : (i+1)*c.Cols]
		for k := 0; k < a.Cols; k++ {
			aik := a.Data[i*a.Cols+k]
			bk := b.Data[k*b.Cols : (k+1)*b.Cols]
			for j, bkj := range bk {
				ci[j] += aik * bkj
			}
		}
	}
	return nil
}

// Mul is the serial reference multiplication.
func Mul(a, b *Matrix) (*Matrix, error) {
	if a.Cols != b.Rows {
		return nil, ErrDimensionMismatch
	}
	c := NewMatrix(a.Rows, b.Cols)
	if err := multiplyRange(a, b, c, 0, a.Rows); err != nil {
		return nil, err
	}
	return c, nil
}

// MulJobs slices C = A×B into parts independent row-band jobs suitable for
// one pool batch. C must be zeroed; parts is clamped to the row count.
func MulJobs(a, b, c *Matrix, parts int) []*Job {
	if a.Rows == 0 {
		return nil
	}
	if parts <= 0 {
		parts = 1
	}
	if parts > a.Rows {
		parts = a.Rows
	}

	jobs := make([]*Job, 0, parts)
	band := (a.Rows + parts - 1) / parts
	for row := 0; row < a.Rows; row += band {
		end := row + band
		if end > a.Rows {
			end = a.Rows
		}
		jobs = append(jobs, NewJob(MatMul, &MatMulArgs{
			A: a, B: b, C: c, Row0: row, Row1: end,
		}))
	}
	return jobs
}
