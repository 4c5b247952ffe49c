// Package matrix materializes a store's vectors as a dense float32 matrix
// in a memory-mapped temp file. The file is built once per content
// fingerprint and shared by every store, goroutine and process that needs
// it; builds are guarded by an in-process lock and a cross-process
// advisory file lock.
package matrix

import (
	"iter"

	"github.com/hupe1980/magvec/internal/mmap"
)

// Matrix is a read-only row-major [rows, dim] view.
type Matrix struct {
	m    *mmap.File
	data []float32
	rows int
	dim  int
}

// Empty returns a matrix with no rows.
func Empty(dim int) *Matrix {
	return &Matrix{dim: dim}
}

// Rows returns the number of rows.
func (x *Matrix) Rows() int { return x.rows }

// Dim returns the row width.
func (x *Matrix) Dim() int { return x.dim }

// Row returns row i. The slice aliases the mapping.
func (x *Matrix) Row(i int) []float32 {
	return x.data[i*x.dim : (i+1)*x.dim : (i+1)*x.dim]
}

// Batches yields contiguous blocks of at most size rows as flat slices,
// keyed by the index of their first row.
func (x *Matrix) Batches(size int) iter.Seq2[int, []float32] {
	size = max(size, 1)
	return func(yield func(int, []float32) bool) {
		for start := 0; start < x.rows; start += size {
			end := min(start+size, x.rows)
			if !yield(start, x.data[start*x.dim:end*x.dim:end*x.dim]) {
				return
			}
		}
	}
}

// Close unmaps the file.
func (x *Matrix) Close() error {
	if x.m == nil {
		return nil
	}
	return x.m.Close()
}
