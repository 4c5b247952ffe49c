// Package storage implements the SQLite-backed table of key to fixed-point
// vector records, its format metadata, the optional subword posting index
// and embedded meta chunks.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hupe1980/magvec/internal/format"
)

const driverName = "sqlite3"

// DefaultPostingCacheSize bounds the number of decoded n-gram posting lists
// kept in memory per store.
const DefaultPostingCacheSize = 4096

// Querier is satisfied by *sql.DB and *sql.Conn.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Execer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Options configures how a store file is opened.
type Options struct {
	// Normalized reports whether callers will request unit-normalized
	// vectors only. When false, the file must carry per-row magnitudes.
	Normalized bool
	// PostingCacheSize bounds the decoded posting cache. Zero selects
	// DefaultPostingCacheSize.
	PostingCacheSize int
	Logger           *slog.Logger
}

// DB is an open store file.
type DB struct {
	db     *sql.DB
	path   string
	memory bool
	pin    *sql.Conn

	meta         format.Metadata
	hasMagnitude bool
	hasSubword   bool
	hasRepeats   bool
	maxParams    int
	columns      string

	postings *lru.Cache[string, *Posting]
	logger   *slog.Logger

	mu      sync.Mutex
	workers map[*Worker]struct{}
	closed  atomic.Bool
}

var memorySeq atomic.Int64

// Open opens the store file at path read-only.
func Open(ctx context.Context, path string, opts Options) (*DB, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, err
	}

	dsn := (&url.URL{Scheme: "file", Path: abs, RawQuery: "mode=ro&immutable=1"}).String()
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}

	d := newDB(db, abs, opts)
	if err := d.init(ctx, opts); err != nil {
		_ = db.Close()
		return nil, err
	}

	d.logger.Debug("store opened",
		"path", abs,
		"size", d.meta.Size,
		"dimension", d.meta.Dim,
		"subword", d.hasSubword,
		"max_params", d.maxParams,
	)
	return d, nil
}

// OpenMemory creates an empty in-memory store with the given dimensionality.
// Every handle opened on it sees the same database.
func OpenMemory(ctx context.Context, dim int, opts Options) (*DB, error) {
	name := fmt.Sprintf("file:magvec-mem-%d?mode=memory&cache=shared", memorySeq.Add(1))
	db, err := sql.Open(driverName, name)
	if err != nil {
		return nil, err
	}

	// The shared in-memory database lives as long as one connection does.
	pin, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	meta := format.DefaultMetadata()
	meta.Dim = dim
	meta.Version = format.Version
	if err := CreateSchema(ctx, pin, dim, true); err != nil {
		_ = pin.Close()
		_ = db.Close()
		return nil, fmt.Errorf("create empty store: %w", err)
	}
	if err := WriteMetadata(ctx, pin, &meta); err != nil {
		_ = pin.Close()
		_ = db.Close()
		return nil, fmt.Errorf("create empty store: %w", err)
	}

	d := newDB(db, ":memory:", opts)
	d.memory = true
	d.pin = pin
	if err := d.init(ctx, opts); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

func newDB(db *sql.DB, path string, opts Options) *DB {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	size := opts.PostingCacheSize
	if size <= 0 {
		size = DefaultPostingCacheSize
	}
	postings, _ := lru.New[string, *Posting](size)
	return &DB{
		db:       db,
		path:     path,
		postings: postings,
		logger:   logger,
		workers:  make(map[*Worker]struct{}),
	}
}

func (d *DB) init(ctx context.Context, opts Options) error {
	meta, hasDupKey, err := readMetadata(ctx, d.db)
	if err != nil {
		return err
	}
	if err := meta.Check(); err != nil {
		return err
	}

	cols, err := tableColumns(ctx, d.db, format.TableVectors)
	if err != nil {
		return err
	}
	for _, c := range cols {
		if strings.EqualFold(c, "magnitude") {
			d.hasMagnitude = true
		}
	}
	if !opts.Normalized && !d.hasMagnitude {
		return &format.MissingCapabilityError{Capability: "non-normalized vectors"}
	}

	if !hasDupKey {
		var n sql.NullInt64
		err := d.db.QueryRowContext(ctx,
			"SELECT MAX(c) FROM (SELECT COUNT(key) AS c FROM "+format.TableVectors+" GROUP BY key)").Scan(&n)
		if err != nil {
			return fmt.Errorf("count duplicate keys: %w", err)
		}
		if n.Valid && n.Int64 > 0 {
			meta.MaxDuplicateKeys = int(n.Int64)
		}
	}

	if meta.Subword {
		ok, err := tableExists(ctx, d.db, format.TableSubword)
		if err != nil {
			return err
		}
		d.hasSubword = ok
		if ok {
			if d.hasRepeats, err = tableExists(ctx, d.db, format.TableSubwordRepeat); err != nil {
				return err
			}
		}
	}

	d.meta = meta
	d.columns = selectColumns(meta.Dim, d.hasMagnitude)
	d.maxParams = probeMaxParams(ctx, d.db)
	return nil
}

// Metadata returns the format metadata.
func (d *DB) Metadata() format.Metadata { return d.meta }

// Path returns the absolute file path, or ":memory:".
func (d *DB) Path() string { return d.path }

// Memory reports whether the store lives in memory.
func (d *DB) Memory() bool { return d.memory }

// HasMagnitude reports whether rows carry magnitudes.
func (d *DB) HasMagnitude() bool { return d.hasMagnitude }

// HasSubword reports whether the subword posting index is available.
func (d *DB) HasSubword() bool { return d.hasSubword }

// MaxParams returns the number of bound parameters allowed per statement.
func (d *DB) MaxParams() int { return d.maxParams }

// Pool returns the shared connection pool.
func (d *DB) Pool() Querier { return d.db }

// Fresh opens an independent connection. The caller closes it.
func (d *DB) Fresh(ctx context.Context) (*sql.Conn, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}
	return d.db.Conn(ctx)
}

// Close closes all workers and the database. It is idempotent.
func (d *DB) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}

	d.mu.Lock()
	workers := make([]*Worker, 0, len(d.workers))
	for w := range d.workers {
		workers = append(workers, w)
	}
	d.mu.Unlock()

	var errs []error
	for _, w := range workers {
		errs = append(errs, w.Close())
	}
	if d.pin != nil {
		errs = append(errs, d.pin.Close())
	}
	errs = append(errs, d.db.Close())
	return errors.Join(errs...)
}

func readMetadata(ctx context.Context, q Querier) (format.Metadata, bool, error) {
	meta := format.DefaultMetadata()
	rows, err := q.QueryContext(ctx, "SELECT key, value FROM "+format.TableFormat+" ORDER BY rowid")
	if err != nil {
		return meta, false, fmt.Errorf("read format table: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hasDupKey := false
	for rows.Next() {
		var (
			key   string
			value sql.NullInt64
		)
		if err := rows.Scan(&key, &value); err != nil {
			return meta, false, fmt.Errorf("read format table: %w", err)
		}
		if strings.EqualFold(key, format.KeyMaxDuplicateKeys) {
			hasDupKey = true
		}
		meta.Set(key, value.Int64)
	}
	return meta, hasDupKey, rows.Err()
}

func tableColumns(ctx context.Context, q Querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fmt.Errorf("inspect table %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: missing table %s", format.ErrCorrupt, table)
	}
	return cols, nil
}

func tableExists(ctx context.Context, q Querier, table string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?", table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("inspect table %s: %w", table, err)
	}
	return n > 0, nil
}

func selectColumns(dim int, withMagnitude bool) string {
	var b strings.Builder
	b.WriteString("rowid, key")
	for i := range dim {
		b.WriteString(", ")
		b.WriteString(format.DimColumn(i))
	}
	if withMagnitude {
		b.WriteString(", magnitude")
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (d *DB) scanRecord(sc rowScanner) (*format.Record, error) {
	rec := &format.Record{Components: make([]int64, d.meta.Dim)}
	dest := make([]any, 0, d.meta.Dim+3)
	dest = append(dest, &rec.Row, &rec.Key)
	comps := make([]sql.NullInt64, d.meta.Dim)
	for i := range comps {
		dest = append(dest, &comps[i])
	}
	var mag sql.NullFloat64
	if d.hasMagnitude {
		dest = append(dest, &mag)
	}
	if err := sc.Scan(dest...); err != nil {
		return nil, err
	}
	for i, c := range comps {
		rec.Components[i] = c.Int64
	}
	rec.Magnitude = mag.Float64
	return rec, nil
}
