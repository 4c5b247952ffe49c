package magvec

import (
	"os"
	"time"

	"github.com/hupe1980/magvec/internal/matrix"
	"github.com/hupe1980/magvec/resource"
)

// Defaults applied by Open when no option overrides them.
const (
	DefaultBatchSize        = 3_000_000
	DefaultLanguage         = "en"
	DefaultFeaturizerValues = 1_000_000
	DefaultPostingCacheSize = 4096
)

type options struct {
	lazyLoading      int
	blocking         bool
	eager            bool
	normalized       bool
	caseInsensitive  bool
	placeholders     int
	ngramOOV         bool
	batchSize        int
	language         string
	tempDir          string
	namespace        string
	padToLength      int
	padLeft          bool
	truncateLeft     bool
	postingCacheSize int

	matrixWaitTimeout  time.Duration
	matrixPollInterval time.Duration
	registry           *matrix.Registry

	logger           *Logger
	metricsCollector MetricsCollector
	resources        *resource.Controller
}

func defaultOptions() options {
	return options{
		eager:            true,
		normalized:       true,
		ngramOOV:         true,
		batchSize:        DefaultBatchSize,
		language:         DefaultLanguage,
		tempDir:          os.TempDir(),
		postingCacheSize: DefaultPostingCacheSize,
		registry:         matrix.DefaultRegistry,
	}
}

// Option configures Open, OpenFeaturizer and OpenRemote.
type Option func(*options)

// WithLazyLoading selects the cache tier.
//
//   - -1: an unbounded cache. Combined with WithEager(false), every vector
//     is preloaded into it in the background, or during Open with
//     WithBlocking(true).
//   - 0: vectors are loaded on first use and kept forever (default).
//   - n > 0: an LRU cache of n entries.
func WithLazyLoading(n int) Option {
	return func(o *options) {
		if n < -1 {
			n = -1
		}
		o.lazyLoading = n
	}
}

// WithBlocking makes Open wait for the eager background work (the search
// matrix build) before returning.
func WithBlocking(b bool) Option {
	return func(o *options) { o.blocking = b }
}

// WithEager starts building the search matrix in the background right after
// Open (default true). When disabled together with WithLazyLoading(-1), all
// vectors are preloaded during Open instead.
func WithEager(b bool) Option {
	return func(o *options) { o.eager = b }
}

// WithNormalized controls whether returned vectors are unit length (default
// true). Non-normalized output requires a store written with magnitudes.
// Normalized overrides it for a single query.
func WithNormalized(b bool) Option {
	return func(o *options) { o.normalized = b }
}

// WithCaseInsensitive makes key lookups ignore case.
func WithCaseInsensitive(b bool) Option {
	return func(o *options) { o.caseInsensitive = b }
}

// WithPlaceholders appends n zero dimensions to every returned vector.
func WithPlaceholders(n int) Option {
	return func(o *options) {
		if n < 0 {
			n = 0
		}
		o.placeholders = n
	}
}

// WithNgramOOV seeds the random component of out-of-vocabulary vectors from
// the key's character n-grams (default true), so that keys sharing n-grams
// get related vectors. When disabled, the whole key is the seed.
func WithNgramOOV(b bool) Option {
	return func(o *options) { o.ngramOOV = b }
}

// WithBatchSize sets how many matrix rows a similarity search scores per batch.
func WithBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithLanguage sets the language used for stemming missing keys. Only "en"
// enables stemming.
func WithLanguage(lang string) Option {
	return func(o *options) { o.language = lang }
}

// WithTempDir sets the directory where search matrices and fetched remote
// stores are kept.
func WithTempDir(dir string) Option {
	return func(o *options) {
		if dir != "" {
			o.tempDir = dir
		}
	}
}

// WithNamespace salts the random component of synthesized vectors, so two
// stores with different namespaces disagree on missing keys.
func WithNamespace(ns string) Option {
	return func(o *options) { o.namespace = ns }
}

// WithPadToLength pads or truncates QueryBatch and QueryNested output to n
// rows. 0 means the input length (or the longest row for nested input).
// PadTo overrides it for a single query.
func WithPadToLength(n int) Option {
	return func(o *options) {
		if n < 0 {
			n = 0
		}
		o.padToLength = n
	}
}

// WithPadLeft places padding before the vectors instead of after them.
func WithPadLeft(b bool) Option {
	return func(o *options) { o.padLeft = b }
}

// WithTruncateLeft keeps the last keys instead of the first when input is
// longer than the padded length.
func WithTruncateLeft(b bool) Option {
	return func(o *options) { o.truncateLeft = b }
}

// WithPostingCacheSize bounds the number of decoded n-gram postings kept in
// memory for similar-key lookups.
func WithPostingCacheSize(n int) Option {
	return func(o *options) { o.postingCacheSize = n }
}

// WithMatrixWaitTimeout bounds how long a search waits for another process
// to finish building the search matrix. 0 waits forever.
func WithMatrixWaitTimeout(d time.Duration) Option {
	return func(o *options) { o.matrixWaitTimeout = d }
}

// WithMatrixPollInterval sets how often a waiting search re-checks for the
// search matrix.
func WithMatrixPollInterval(d time.Duration) Option {
	return func(o *options) { o.matrixPollInterval = d }
}

// WithLogger sets the logger for the store.
func WithLogger(l *Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetricsCollector sets the metrics collector for the store.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) { o.metricsCollector = mc }
}

// WithResourceController bounds background work, preload memory and matrix
// build IO. Controllers may be shared between stores.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) { o.resources = rc }
}
