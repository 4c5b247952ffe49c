package matrix

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hupe1980/magvec/internal/flock"
	"github.com/hupe1980/magvec/internal/mmap"
	"github.com/hupe1980/magvec/resource"
)

// Extension is the matrix file suffix.
const Extension = ".magmmap"

// DefaultPollInterval is how long non-builders sleep between checks.
const DefaultPollInterval = time.Second

var (
	// ErrWaitTimeout is returned when the configured wait for another
	// builder elapses.
	ErrWaitTimeout = errors.New("matrix: timed out waiting for build")
	// ErrAborted is returned when the owner closed while building.
	ErrAborted = errors.New("matrix: build aborted")
)

// SizeMismatchError reports a matrix file whose size does not fit the
// expected shape.
type SizeMismatchError struct {
	Path     string
	Size     int64
	Expected int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("matrix: %s has %d bytes, want %d", e.Path, e.Size, e.Expected)
}

// RowSource streams every row in row order to emit. Rows shorter than the
// matrix width are zero padded.
type RowSource func(ctx context.Context, emit func(row []float32) error) error

// Config describes the matrix to open or build.
type Config struct {
	Dir         string
	Fingerprint string
	Rows        int64
	Dim         int

	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration
	// WaitTimeout bounds the wait for another builder; 0 waits forever.
	WaitTimeout time.Duration

	// Registry defaults to DefaultRegistry.
	Registry   *Registry
	Controller *resource.Controller
	Logger     *slog.Logger
	// Closed reports whether the owner is shutting down; a build in
	// progress is abandoned without publishing the file.
	Closed func() bool
}

// Builder opens the matrix for one store, building it if no other builder
// has. It is safe for concurrent use.
type Builder struct {
	cfg    Config
	path   string
	source RowSource
	lock   *PathLock
	logger *slog.Logger

	mu     sync.Mutex
	matrix *Matrix
}

// NewBuilder registers interest in the matrix described by cfg.
func NewBuilder(cfg Config, source RowSource) *Builder {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Registry == nil {
		cfg.Registry = DefaultRegistry
	}
	if cfg.Closed == nil {
		cfg.Closed = func() bool { return false }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	path := filepath.Join(cfg.Dir, cfg.Fingerprint+Extension)
	return &Builder{
		cfg:    cfg,
		path:   path,
		source: source,
		lock:   cfg.Registry.Acquire(path),
		logger: logger.With("path", path),
	}
}

// Path returns the matrix file path.
func (b *Builder) Path() string { return b.path }

// Open returns the matrix, building it or waiting for another builder as
// needed. Non-builders poll every PollInterval until the file appears.
func (b *Builder) Open(ctx context.Context) (*Matrix, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.matrix != nil {
		return b.matrix, nil
	}
	if b.cfg.Rows == 0 {
		b.matrix = Empty(b.cfg.Dim)
		return b.matrix, nil
	}

	var timeout <-chan time.Time
	if b.cfg.WaitTimeout > 0 {
		t := time.NewTimer(b.cfg.WaitTimeout)
		defer t.Stop()
		timeout = t.C
	}

	for {
		m, err := b.load()
		if err == nil {
			b.matrix = m
			return m, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}

		built, err := b.tryBuild(ctx)
		if err != nil {
			return nil, err
		}
		if built {
			continue
		}
		if b.cfg.Closed() {
			return nil, ErrAborted
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout:
			return nil, ErrWaitTimeout
		case <-time.After(b.cfg.PollInterval):
		}
	}
}

// Close releases the matrix and the registry reference.
func (b *Builder) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lock.Release()
	if b.matrix == nil {
		return nil
	}
	err := b.matrix.Close()
	b.matrix = nil
	return err
}

func (b *Builder) expectedSize() int64 {
	return b.cfg.Rows * int64(b.cfg.Dim) * 4
}

func (b *Builder) load() (*Matrix, error) {
	m, err := mmap.Open(b.path, mmap.Sequential)
	if err != nil {
		return nil, err
	}
	if int64(m.Len()) != b.expectedSize() {
		_ = m.Close()
		return nil, &SizeMismatchError{Path: b.path, Size: int64(m.Len()), Expected: b.expectedSize()}
	}

	data, err := m.Float32s()
	if err != nil {
		_ = m.Close()
		return nil, err
	}
	return &Matrix{m: m, data: data, rows: int(b.cfg.Rows), dim: b.cfg.Dim}, nil
}

// tryBuild builds the file when both locks are free. It reports whether
// this call held the locks, in which case the file should now exist.
func (b *Builder) tryBuild(ctx context.Context) (bool, error) {
	if !b.lock.TryLock() {
		return false, nil
	}
	defer b.lock.Unlock()

	lf, err := os.OpenFile(b.path+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return false, err
	}
	defer lf.Close()

	ok, err := flock.TryLock(lf)
	if err != nil || !ok {
		return false, err
	}
	defer func() { _ = flock.Unlock(lf) }()

	// Another process may have finished between the check and the lock.
	if _, err := os.Stat(b.path); err == nil {
		return true, nil
	}

	b.logger.Info("building vector matrix; this only happens once per store file", "rows", b.cfg.Rows)
	start := time.Now()
	if err := b.build(ctx); err != nil {
		if !errors.Is(err, ErrAborted) && ctx.Err() == nil {
			b.logger.Error("matrix build failed", "error", err)
		}
		return true, err
	}
	b.logger.Info("built vector matrix", "rows", b.cfg.Rows, "duration", time.Since(start))
	return true, nil
}

func (b *Builder) build(ctx context.Context) (err error) {
	tmp := b.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if f != nil {
			_ = f.Close()
		}
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	w := bufio.NewWriterSize(b.cfg.Controller.Writer(ctx, f), 1<<20)
	dim := b.cfg.Dim
	buf := make([]byte, 4*dim)
	var n int64
	lastPct := int64(0)

	err = b.source(ctx, func(row []float32) error {
		if n >= b.cfg.Rows {
			return fmt.Errorf("matrix: source yielded more than %d rows", b.cfg.Rows)
		}
		for i := range dim {
			var v float32
			if i < len(row) {
				v = row[i]
			}
			binary.NativeEndian.PutUint32(buf[4*i:], math.Float32bits(v))
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
		n++

		if pct := n * 100 / b.cfg.Rows; pct >= lastPct+10 {
			lastPct = pct - pct%10
			b.logger.Info("matrix build progress", "percent", lastPct)
		}
		if b.cfg.Closed() {
			return ErrAborted
		}
		return nil
	})
	if err != nil {
		return err
	}
	if b.cfg.Closed() {
		return ErrAborted
	}
	if n != b.cfg.Rows {
		return fmt.Errorf("matrix: source yielded %d rows, want %d", n, b.cfg.Rows)
	}

	if err = w.Flush(); err != nil {
		return err
	}
	if err = f.Sync(); err != nil {
		return err
	}
	err = f.Close()
	f = nil
	if err != nil {
		return err
	}
	return os.Rename(tmp, b.path)
}
