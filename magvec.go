package magvec

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/magvec/internal/cache"
	"github.com/hupe1980/magvec/internal/format"
	"github.com/hupe1980/magvec/internal/matrix"
	"github.com/hupe1980/magvec/internal/oov"
	"github.com/hupe1980/magvec/internal/storage"
)

// Store is an open vector store. All methods are safe for concurrent use.
type Store struct {
	opts    options
	logger  *Logger
	metrics MetricsCollector

	db   *storage.DB
	meta format.Metadata
	dim  int
	oov  *oov.Synthesizer

	vectors *cache.Loader[vectorKey, []float32]
	oovs    *cache.Loader[vectorKey, []float32]
	rows    *cache.Loader[rowKey, rowEntry]

	matrixMu     sync.Mutex
	builder      *matrix.Builder
	matrixReady  atomic.Bool
	preloadBytes atomic.Int64

	// mu is held shared by foreground operations and exclusively by Close,
	// so the matrix mapping outlives every reader.
	mu     sync.RWMutex
	closed atomic.Bool
	bg     context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open opens the store file at path.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	o := applyOptions(opts)
	logger := o.logger.WithPath(path)

	db, err := storage.Open(ctx, path, storage.Options{
		Normalized:       o.normalized,
		PostingCacheSize: o.postingCacheSize,
		Logger:           logger.Logger,
	})
	if err != nil {
		logger.LogOpen(ctx, 0, 0, err)
		return nil, err
	}
	return newStore(ctx, db, o, logger)
}

// OpenFeaturizer returns an empty in-memory store for hashing categorical
// features. Every key is out of vocabulary, so each distinct value maps to
// a stable random vector whose dimension, derived from numberOfValues,
// keeps collisions unlikely. numberOfValues <= 0 selects
// DefaultFeaturizerValues. Use WithNamespace to separate features.
func OpenFeaturizer(ctx context.Context, numberOfValues int, opts ...Option) (*Store, error) {
	if numberOfValues <= 0 {
		numberOfValues = DefaultFeaturizerValues
	}
	o := applyOptions(opts)
	logger := o.logger.WithPath(":memory:")

	db, err := storage.OpenMemory(ctx, storage.FeaturizerDim(numberOfValues), storage.Options{
		Normalized:       o.normalized,
		PostingCacheSize: o.postingCacheSize,
		Logger:           logger.Logger,
	})
	if err != nil {
		logger.LogOpen(ctx, 0, 0, err)
		return nil, err
	}
	return newStore(ctx, db, o, logger)
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	return o
}

func newStore(ctx context.Context, db *storage.DB, o options, logger *Logger) (*Store, error) {
	meta := db.Metadata()
	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s := &Store{
		opts:    o,
		logger:  logger,
		metrics: o.metricsCollector,
		db:      db,
		meta:    meta,
		dim:     meta.Dim,
		vectors: cache.NewLoader(cache.New[vectorKey, []float32](o.lazyLoading)),
		oovs:    cache.NewLoader(cache.New[vectorKey, []float32](o.lazyLoading)),
		rows:    cache.NewLoader(cache.New[rowKey, rowEntry](o.lazyLoading)),
		bg:      bg,
		cancel:  cancel,
	}
	s.oov = oov.New(oov.Config{
		Dim:             meta.Dim,
		Placeholders:    o.placeholders,
		Precision:       meta.Precision,
		CaseInsensitive: o.caseInsensitive,
		NgramOOV:        o.ngramOOV,
		Namespace:       o.namespace,
		Language:        o.language,
		SubwordStart:    meta.SubwordStart,
		SubwordEnd:      meta.SubwordEnd,
	}, oovSource{s})

	if err := s.start(ctx); err != nil {
		_ = s.Close()
		logger.LogOpen(ctx, meta.Size, s.Dim(), err)
		return nil, err
	}
	logger.LogOpen(ctx, meta.Size, s.Dim(), nil)
	return s, nil
}

// start launches the eager background work selected by the options.
func (s *Store) start(ctx context.Context) error {
	if s.opts.lazyLoading == -1 && !s.opts.eager {
		if s.opts.blocking {
			return s.preload(ctx)
		}
		s.background(func(ctx context.Context) {
			_ = s.preload(ctx)
		})
	}
	if !s.opts.eager {
		return nil
	}
	if s.opts.blocking {
		_, err := s.searchMatrix(ctx)
		return err
	}
	s.background(func(ctx context.Context) {
		if _, err := s.searchMatrix(ctx); err != nil && !s.closed.Load() {
			s.logger.ErrorContext(ctx, "background matrix build failed", "error", err)
		}
	})
	return nil
}

// background runs fn on the store's background context once the resource
// controller admits it. Close cancels and waits for it.
func (s *Store) background(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		rc := s.opts.resources
		if err := rc.StartJob(s.bg); err != nil {
			return
		}
		defer rc.FinishJob()
		fn(s.bg)
	}()
}

// enter guards a foreground operation against a concurrent Close. The
// returned function must be called when the operation is done.
func (s *Store) enter() (func(), error) {
	s.mu.RLock()
	if s.closed.Load() {
		s.mu.RUnlock()
		return nil, ErrClosed
	}
	return s.mu.RUnlock, nil
}

// Close stops background work and releases the database, the workers and
// the search matrix. It is idempotent.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.wg.Wait()

	var errs []error
	s.matrixMu.Lock()
	if s.builder != nil {
		errs = append(errs, s.builder.Close())
		s.builder = nil
	}
	s.matrixMu.Unlock()

	if n := s.preloadBytes.Swap(0); n > 0 {
		s.opts.resources.ReleaseMemory(n)
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}

// Len returns the number of stored vectors.
func (s *Store) Len() int64 { return s.meta.Size }

// Dim returns the length of returned vectors: the embedding dimension plus
// placeholders.
func (s *Store) Dim() int { return s.dim + s.opts.placeholders }

// EmbeddingDim returns the stored embedding dimension.
func (s *Store) EmbeddingDim() int { return s.dim }

// Metadata returns the store's format metadata.
func (s *Store) Metadata() format.Metadata { return s.meta }

// Path returns the absolute store path, or ":memory:" for in-memory stores.
func (s *Store) Path() string { return s.db.Path() }

// Contains reports whether key is stored, honoring case insensitivity.
func (s *Store) Contains(ctx context.Context, key string) (bool, error) {
	done, err := s.enter()
	if err != nil {
		return false, err
	}
	defer done()

	v, err := s.storedVector(ctx, key, s.opts.normalized)
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

// KeyForIndex returns the key stored at row index (0-based).
func (s *Store) KeyForIndex(ctx context.Context, index int64) (string, error) {
	done, err := s.enter()
	if err != nil {
		return "", err
	}
	defer done()

	e, err := s.entry(ctx, index, false)
	return e.key, err
}

// VectorForIndex returns the key and vector stored at row index (0-based).
func (s *Store) VectorForIndex(ctx context.Context, index int64) (string, []float32, error) {
	done, err := s.enter()
	if err != nil {
		return "", nil, err
	}
	defer done()

	e, err := s.entry(ctx, index, true)
	if err != nil {
		return "", nil, err
	}
	return e.key, clone(e.vector), nil
}

// Entry is one stored key with its vector.
type Entry struct {
	Key    string
	Vector []float32
}

// All iterates over every stored entry in row order, filling the vector
// cache on the way. Iteration ends early when the store is closed.
func (s *Store) All(ctx context.Context) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		if s.closed.Load() {
			yield(Entry{}, ErrClosed)
			return
		}
		err := s.scan(ctx, func(rec *format.Record) (bool, error) {
			v := s.decode(rec, s.opts.normalized)
			s.fill(rec, v)
			return yield(Entry{Key: rec.Key, Vector: clone(v)}, nil), nil
		})
		if err != nil && !s.closed.Load() {
			yield(Entry{}, err)
		}
	}
}

// MetaCount returns the number of side files embedded in the store.
func (s *Store) MetaCount(ctx context.Context) (int, error) {
	done, err := s.enter()
	if err != nil {
		return 0, err
	}
	defer done()

	q, err := s.querier(ctx)
	if err != nil {
		return 0, err
	}
	return s.db.MetaCount(ctx, q)
}

// MetaChunks iterates over the decompressed chunks of the index-th (1-based)
// embedded side file. Errors raised after Close are swallowed.
func (s *Store) MetaChunks(ctx context.Context, index int) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if s.closed.Load() {
			return
		}
		q, err := s.querier(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		n, err := s.db.MetaCount(ctx, q)
		if err != nil {
			if !s.closed.Load() {
				yield(nil, err)
			}
			return
		}
		if index < 1 || index > n {
			yield(nil, &IndexOutOfRangeError{Index: int64(index), Len: int64(n)})
			return
		}
		stop := false
		err = s.db.MetaChunks(ctx, q, index, func() bool { return stop || s.closed.Load() },
			func(_ int, chunk []byte) error {
				stop = !yield(chunk, nil)
				return nil
			})
		if err != nil && !stop && !s.closed.Load() {
			yield(nil, err)
		}
	}
}

// scan streams every record on a dedicated connection. fn returns false to
// stop.
func (s *Store) scan(ctx context.Context, fn func(*format.Record) (bool, error)) error {
	conn, err := s.fresh(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	sc, err := s.db.Scan(ctx, conn)
	if err != nil {
		return err
	}
	defer sc.Close()

	for sc.Next() {
		if s.closed.Load() {
			return nil
		}
		more, err := fn(sc.Record())
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return sc.Err()
}

// preload loads every vector into the cache, stopping quietly when the
// memory budget runs out.
func (s *Store) preload(ctx context.Context) error {
	loaded := 0
	err := s.scan(ctx, func(rec *format.Record) (bool, error) {
		if !s.fill(rec, s.decode(rec, s.opts.normalized)) {
			return false, errPreloadBudget
		}
		loaded++
		return true, nil
	})
	s.logger.LogPreload(ctx, loaded, err)
	if errors.Is(err, errPreloadBudget) {
		return nil
	}
	return err
}

var errPreloadBudget = errors.New("memory budget exhausted")

// fill caches a scanned record unless an entry already exists. It reports
// false once the memory budget is exhausted.
func (s *Store) fill(rec *format.Record, v []float32) bool {
	k := vectorKey{key: rec.Key, normalized: s.opts.normalized}
	if _, ok := s.vectors.Cache().Get(k); !ok {
		n := int64(len(v)) * 4
		if !s.opts.resources.ReserveMemory(n) {
			return false
		}
		s.preloadBytes.Add(n)
		s.vectors.Cache().Add(k, v)
	}
	s.rows.Cache().Add(rowKey{index: rec.Row - 1}, rowEntry{key: rec.Key})
	return true
}

func clone(v []float32) []float32 {
	if v == nil {
		return nil
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
