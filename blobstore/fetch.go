package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/hupe1980/magvec/internal/flock"
	"github.com/hupe1980/magvec/resource"
)

// lockPollInterval is how often Fetch retries a lock held by another process.
const lockPollInterval = 100 * time.Millisecond

type fetchOptions struct {
	controller *resource.Controller
	logger     *slog.Logger
}

// FetchOption configures Fetch.
type FetchOption func(*fetchOptions)

// WithController rate-limits the download with the controller's IO budget.
// Downloads through a Downloader bypass the limit, so a controller forces
// streamed range reads.
func WithController(rc *resource.Controller) FetchOption {
	return func(o *fetchOptions) { o.controller = rc }
}

// WithLogger sets the logger used to report completed downloads.
func WithLogger(l *slog.Logger) FetchOption {
	return func(o *fetchOptions) { o.logger = l }
}

// Fetch makes the named blob available as a local file in dir and returns
// its path. An existing file is reused without contacting the store.
// Concurrent fetches of the same file, in this or other processes, download
// it once: the download goes to a temporary file under an exclusive file
// lock and is renamed into place when complete.
func Fetch(ctx context.Context, bs BlobStore, name, dir string, opts ...FetchOption) (string, error) {
	o := fetchOptions{logger: slog.New(slog.DiscardHandler)}
	for _, fn := range opts {
		fn(&o)
	}

	dst, err := LocalPath(dir, name)
	if err != nil {
		return "", err
	}
	if ok, err := exists(dst); err != nil || ok {
		return dst, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}

	lf, err := os.OpenFile(dst+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return "", err
	}
	defer lf.Close()

	if err := flock.Lock(ctx, lf, lockPollInterval); err != nil {
		return "", err
	}
	defer func() { _ = flock.Unlock(lf) }()

	if ok, err := exists(dst); err != nil || ok {
		return dst, err
	}

	start := time.Now()
	tmp := dst + ".tmp"
	var size int64
	if d, ok := bs.(Downloader); ok && o.controller == nil {
		err = d.Download(ctx, name, tmp)
	} else {
		size, err = copyBlob(ctx, bs, name, tmp, o.controller)
	}
	if err == nil {
		err = os.Rename(tmp, dst)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("fetch %s: %w", name, err)
	}

	o.logger.InfoContext(ctx, "blob fetched", "name", name, "path", dst, "bytes", size, "took", time.Since(start))
	return dst, nil
}

// LocalPath returns where Fetch keeps the named blob under dir. The blob
// name's slash-separated path is kept, so names that differ only in their
// prefix get different files.
func LocalPath(dir, name string) (string, error) {
	clean := strings.TrimPrefix(path.Clean("/"+name), "/")
	if clean == "" {
		return "", fmt.Errorf("fetch: invalid blob name %q", name)
	}
	return filepath.Join(dir, filepath.FromSlash(clean)), nil
}

func copyBlob(ctx context.Context, bs BlobStore, name, dst string, rc *resource.Controller) (int64, error) {
	blob, err := bs.Open(ctx, name)
	if err != nil {
		return 0, err
	}
	defer blob.Close()

	r, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil && !(errors.Is(err, io.EOF) && blob.Size() == 0) {
		return 0, err
	}

	f, err := os.Create(dst)
	if err != nil {
		if r != nil {
			_ = r.Close()
		}
		return 0, err
	}
	defer f.Close()

	var n int64
	if r != nil {
		n, err = io.Copy(f, rc.Reader(ctx, r))
		_ = r.Close()
		if err != nil {
			return n, err
		}
	}
	if n != blob.Size() {
		return n, fmt.Errorf("short read: got %d of %d bytes", n, blob.Size())
	}
	if err := f.Sync(); err != nil {
		return n, err
	}
	return n, f.Close()
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
