package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/magvec/internal/format"
)

// SameKey reports whether a stored key answers a lookup for key.
func SameKey(stored, key string, caseInsensitive bool) bool {
	if caseInsensitive {
		return strings.ToLower(stored) == strings.ToLower(key)
	}
	return stored == key
}

// LookupExact returns the best record for key: an exact binary match ranks
// above a case-insensitive one, and the latter is only accepted when
// caseInsensitive is set. It returns nil when the key is absent.
func (d *DB) LookupExact(ctx context.Context, q Querier, key string, caseInsensitive bool) (*format.Record, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+d.columns+" FROM "+format.TableVectors+
			" WHERE key = ? ORDER BY key = ? COLLATE BINARY DESC LIMIT 1", key, key)
	rec, err := d.scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %q: %w", key, err)
	}
	if !SameKey(rec.Key, key, caseInsensitive) {
		return nil, nil
	}
	return rec, nil
}

// ExactMatches returns up to limit records whose key equals key under the
// case-insensitive collation, exact binary matches first.
func (d *DB) ExactMatches(ctx context.Context, q Querier, key string, limit int) ([]*format.Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := q.QueryContext(ctx,
		"SELECT "+d.columns+" FROM "+format.TableVectors+
			" WHERE key = ? ORDER BY key = ? COLLATE BINARY DESC, rowid LIMIT ?", key, key, limit)
	if err != nil {
		return nil, fmt.Errorf("exact matches %q: %w", key, err)
	}
	return d.collect(rows)
}

// LookupBatch resolves many keys with IN-list queries, chunked to the
// parameter limit, and calls fn for every matching record (including
// case-insensitive matches; callers pick).
func (d *DB) LookupBatch(ctx context.Context, q Querier, keys []string, fn func(*format.Record) error) error {
	for _, batch := range batches(keys, d.maxParams) {
		args := make([]any, len(batch))
		for i, k := range batch {
			args[i] = k
		}
		rows, err := q.QueryContext(ctx,
			"SELECT "+d.columns+" FROM "+format.TableVectors+" WHERE key IN ("+placeholders(len(batch))+")", args...)
		if err != nil {
			return fmt.Errorf("batch lookup: %w", err)
		}
		if err := d.each(rows, fn); err != nil {
			return err
		}
	}
	return nil
}

// LookupByRow resolves 1-based rowids in chunks and calls fn per found row.
func (d *DB) LookupByRow(ctx context.Context, q Querier, rowids []int64, fn func(*format.Record) error) error {
	for _, batch := range batches(rowids, d.maxParams) {
		args := make([]any, len(batch))
		for i, r := range batch {
			args[i] = r
		}
		rows, err := q.QueryContext(ctx,
			"SELECT "+d.columns+" FROM "+format.TableVectors+" WHERE rowid IN ("+placeholders(len(batch))+")", args...)
		if err != nil {
			return fmt.Errorf("row lookup: %w", err)
		}
		if err := d.each(rows, fn); err != nil {
			return err
		}
	}
	return nil
}

// LookupKeys resolves 1-based rowids to keys without reading vectors and
// calls fn per found row.
func (d *DB) LookupKeys(ctx context.Context, q Querier, rowids []int64, fn func(row int64, key string) error) error {
	for _, batch := range batches(rowids, d.maxParams) {
		args := make([]any, len(batch))
		for i, r := range batch {
			args[i] = r
		}
		rows, err := q.QueryContext(ctx,
			"SELECT rowid, key FROM "+format.TableVectors+" WHERE rowid IN ("+placeholders(len(batch))+")", args...)
		if err != nil {
			return fmt.Errorf("key lookup: %w", err)
		}
		err = func() error {
			defer func() { _ = rows.Close() }()
			for rows.Next() {
				var (
					row int64
					key string
				)
				if err := rows.Scan(&row, &key); err != nil {
					return err
				}
				if err := fn(row, key); err != nil {
					return err
				}
			}
			return rows.Err()
		}()
		if err != nil {
			return err
		}
	}
	return nil
}

// LookupRow returns the record with the given 1-based rowid, or nil.
func (d *DB) LookupRow(ctx context.Context, q Querier, rowid int64) (*format.Record, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+d.columns+" FROM "+format.TableVectors+" WHERE rowid = ? LIMIT 1", rowid)
	rec, err := d.scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("row lookup %d: %w", rowid, err)
	}
	return rec, nil
}

func (d *DB) each(rows *sql.Rows, fn func(*format.Record) error) error {
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		rec, err := d.scanRecord(rows)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (d *DB) collect(rows *sql.Rows) ([]*format.Record, error) {
	var out []*format.Record
	err := d.each(rows, func(r *format.Record) error {
		out = append(out, r)
		return nil
	})
	return out, err
}

// Scanner streams every record in storage order.
type Scanner struct {
	d    *DB
	rows *sql.Rows
	rec  *format.Record
	err  error
}

// Scan starts a full-table scan on q. Use a dedicated connection so that
// concurrent lookups on the same handle do not interfere with the cursor.
func (d *DB) Scan(ctx context.Context, q Querier) (*Scanner, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+d.columns+" FROM "+format.TableVectors+" ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return &Scanner{d: d, rows: rows}, nil
}

// Next advances to the next record.
func (s *Scanner) Next() bool {
	if s.err != nil || !s.rows.Next() {
		return false
	}
	s.rec, s.err = s.d.scanRecord(s.rows)
	return s.err == nil
}

// Record returns the current record.
func (s *Scanner) Record() *format.Record { return s.rec }

// Err returns the first error met while scanning.
func (s *Scanner) Err() error {
	if s.err != nil {
		return s.err
	}
	return s.rows.Err()
}

// Close releases the cursor.
func (s *Scanner) Close() error { return s.rows.Close() }
