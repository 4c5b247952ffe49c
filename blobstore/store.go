package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound reports a missing store file. Implementations return errors
// matching it with errors.Is.
var ErrNotFound = os.ErrNotExist

// BlobStore resolves store file names to readable blobs.
type BlobStore interface {
	Open(ctx context.Context, name string) (Blob, error)
}

// Blob is an open, immutable store file.
type Blob interface {
	io.Closer

	// ReadAt fills p from offset off. Reads ending past the blob return the
	// bytes available and io.EOF.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)

	// ReadRange streams length bytes from off, fewer at the end of the blob.
	ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error)

	Size() int64
}

// Downloader is implemented by stores with a faster whole-object download
// path than ranged reads. Fetch prefers it when no IO limit applies.
type Downloader interface {
	Download(ctx context.Context, name, dst string) error
}
