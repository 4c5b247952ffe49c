package storage

import (
	"context"
	"fmt"

	"github.com/hupe1980/magvec/internal/format"
)

// MetaCount returns the number of consecutive meta chunk tables.
func (d *DB) MetaCount(ctx context.Context, q Querier) (int, error) {
	n := 0
	for {
		ok, err := tableExists(ctx, q, format.MetaTable(n+1))
		if err != nil {
			return 0, err
		}
		if !ok {
			return n, nil
		}
		n++
	}
}

// MetaChunks decompresses the chunks of the n-th (1-based) meta table in
// order and passes each to fn together with the total chunk count. It stops
// as soon as stop reports true.
func (d *DB) MetaChunks(ctx context.Context, q Querier, n int, stop func() bool, fn func(total int, chunk []byte) error) error {
	table := format.MetaTable(n)

	var total int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(rowid) FROM "+table).Scan(&total); err != nil {
		return fmt.Errorf("meta table %d: %w", n, err)
	}

	rows, err := q.QueryContext(ctx, "SELECT meta_file FROM "+table+" ORDER BY rowid")
	if err != nil {
		return fmt.Errorf("meta table %d: %w", n, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return err
		}
		chunk, err := format.Decompress(d.meta.MetaCodec, blob)
		if err != nil {
			return fmt.Errorf("meta table %d: %w", n, err)
		}
		if err := fn(total, chunk); err != nil {
			return err
		}
		if stop != nil && stop() {
			return nil
		}
	}
	return rows.Err()
}
