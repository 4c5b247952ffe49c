package magvec

import (
	"errors"
	"fmt"

	"github.com/hupe1980/magvec/internal/format"
	"github.com/hupe1980/magvec/internal/matrix"
	"github.com/hupe1980/magvec/internal/storage"
)

var (
	// ErrClosed is returned by every operation on a closed Store.
	ErrClosed = storage.ErrClosed

	// ErrInvalidArgument is returned for malformed requests, such as a
	// search without positive terms or a vector of the wrong length.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotEnoughStores is returned by Concatenate with fewer than two stores.
	ErrNotEnoughStores = errors.New("at least two stores are required")

	// ErrShapeMismatch is returned when concatenated stores produce
	// outputs of different lengths for the same input.
	ErrShapeMismatch = errors.New("stores produced outputs of different shapes")

	// ErrMatrixWaitTimeout is returned when another process holds the search
	// matrix build lock for longer than the configured wait timeout.
	ErrMatrixWaitTimeout = matrix.ErrWaitTimeout
)

// IncompatibleFormatError is returned when a store file was written by a
// newer format version.
type IncompatibleFormatError = format.IncompatibleFormatError

// MissingCapabilityError is returned when a store file lacks data required by
// the requested options.
type MissingCapabilityError = format.MissingCapabilityError

// IndexOutOfRangeError is returned when a row index is not in [0, Len).
type IndexOutOfRangeError struct {
	Index int64
	Len   int64
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("index %d out of range [0, %d)", e.Index, e.Len)
}

// DimensionMismatchError indicates a caller-supplied vector of the wrong length.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrInvalidArgument }

func translateError(err error) error {
	if err == nil {
		return nil
	}
	var sm *matrix.SizeMismatchError
	if errors.As(err, &sm) {
		return fmt.Errorf("search matrix %s: %w", sm.Path, err)
	}
	return err
}
