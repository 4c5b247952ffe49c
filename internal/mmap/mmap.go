// Package mmap maps search matrices and fetched store files read-only into
// memory.
package mmap

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"unsafe"
)

// Advice is a paging hint passed to the kernel when a file is mapped.
type Advice int

const (
	Normal Advice = iota
	// Sequential suits full scans such as similarity search batches.
	Sequential
	// WillNeed asks the kernel to start reading the file ahead of use.
	WillNeed
)

var (
	// ErrClosed is returned by every accessor after Close.
	ErrClosed = errors.New("mmap: file is closed")
	// ErrSize is returned when the file cannot be viewed as requested.
	ErrSize = errors.New("mmap: unsupported file size")
)

// File is a read-only mapping of a whole file. Accessors are safe for
// concurrent use; slices they return are invalid after Close.
type File struct {
	data   []byte
	closed atomic.Bool
	unmap  func([]byte) error
}

// Open maps path and applies advice. Empty files map to an empty File.
func Open(path string, advice Advice) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := fi.Size()
	if size == 0 {
		return &File{}, nil
	}
	if int64(int(size)) != size {
		return nil, fmt.Errorf("%w: %d bytes", ErrSize, size)
	}

	data, unmap, err := mapFile(f, int(size))
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	// Advice is only a hint.
	_ = advise(data, advice)
	return &File{data: data, unmap: unmap}, nil
}

// Len returns the mapped size in bytes.
func (m *File) Len() int { return len(m.data) }

// Bytes returns the whole mapping, or nil once closed.
func (m *File) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Slice returns up to n bytes starting at off. A short slice comes with
// io.EOF, as does an offset at or past the end.
func (m *File) Slice(off, n int64) ([]byte, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if off < 0 || n < 0 {
		return nil, fmt.Errorf("mmap: invalid range [%d, +%d)", off, n)
	}
	size := int64(len(m.data))
	if off >= size {
		return nil, io.EOF
	}
	end := min(off+n, size)
	if end < off+n {
		return m.data[off:end:end], io.EOF
	}
	return m.data[off:end:end], nil
}

// Float32s views the mapping as native-endian float32 values.
func (m *File) Float32s() ([]float32, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if len(m.data)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a float32 array", ErrSize, len(m.data))
	}
	if len(m.data) == 0 {
		return nil, nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&m.data[0])), len(m.data)/4), nil
}

// Close unmaps the file. Only the first call has an effect.
func (m *File) Close() error {
	if m.closed.Swap(true) || m.unmap == nil {
		return nil
	}
	return m.unmap(m.data)
}
