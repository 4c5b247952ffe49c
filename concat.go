package magvec

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Querier is the query surface shared by Store and ConcatenatedStore.
type Querier interface {
	Dim() int
	Query(ctx context.Context, key string, opts ...QueryOption) ([]float32, error)
	QueryBatch(ctx context.Context, keys []string, opts ...QueryOption) ([][]float32, error)
	QueryNested(ctx context.Context, keys [][]string, opts ...QueryOption) ([][][]float32, error)
	Close() error
}

var (
	_ Querier = (*Store)(nil)
	_ Querier = (*ConcatenatedStore)(nil)
)

// ConcatenatedStore joins several stores side by side: the vector of a key
// is the concatenation of each store's vector for it.
type ConcatenatedStore struct {
	stores []Querier
	dim    int
}

// Concatenate joins at least two stores. Closing the result closes them.
func Concatenate(stores ...Querier) (*ConcatenatedStore, error) {
	if len(stores) < 2 {
		return nil, ErrNotEnoughStores
	}
	c := &ConcatenatedStore{stores: stores}
	for _, s := range stores {
		c.dim += s.Dim()
	}
	return c, nil
}

// Dim returns the sum of the stores' dimensions.
func (c *ConcatenatedStore) Dim() int { return c.dim }

// Stores returns the joined stores in order.
func (c *ConcatenatedStore) Stores() []Querier { return c.stores }

// Query looks key up in every store. Query options are passed to each
// store and override its own defaults.
func (c *ConcatenatedStore) Query(ctx context.Context, key string, opts ...QueryOption) ([]float32, error) {
	return c.QueryTuple(ctx, c.broadcast(key), opts...)
}

// QueryTuple looks tuple[i] up in store i.
func (c *ConcatenatedStore) QueryTuple(ctx context.Context, tuple []string, opts ...QueryOption) ([]float32, error) {
	if err := c.checkTuple(tuple); err != nil {
		return nil, err
	}
	parts, err := fanOut(ctx, c, func(ctx context.Context, i int, s Querier) ([]float32, error) {
		return s.Query(ctx, tuple[i], opts...)
	})
	if err != nil {
		return nil, err
	}
	return hstack(parts), nil
}

// QueryBatch looks every key up in every store.
func (c *ConcatenatedStore) QueryBatch(ctx context.Context, keys []string, opts ...QueryOption) ([][]float32, error) {
	tuples := make([][]string, len(keys))
	for i, k := range keys {
		tuples[i] = c.broadcast(k)
	}
	return c.QueryTupleBatch(ctx, tuples, opts...)
}

// QueryTupleBatch is QueryTuple over a sequence, padded by each store.
func (c *ConcatenatedStore) QueryTupleBatch(ctx context.Context, tuples [][]string, opts ...QueryOption) ([][]float32, error) {
	for _, t := range tuples {
		if err := c.checkTuple(t); err != nil {
			return nil, err
		}
	}
	parts, err := fanOut(ctx, c, func(ctx context.Context, i int, s Querier) ([][]float32, error) {
		keys := make([]string, len(tuples))
		for j, t := range tuples {
			keys[j] = t[i]
		}
		return s.QueryBatch(ctx, keys, opts...)
	})
	if err != nil {
		return nil, err
	}
	return stackRows(parts)
}

// QueryNested looks every key up in every store.
func (c *ConcatenatedStore) QueryNested(ctx context.Context, keys [][]string, opts ...QueryOption) ([][][]float32, error) {
	tuples := make([][][]string, len(keys))
	for i, row := range keys {
		tuples[i] = make([][]string, len(row))
		for j, k := range row {
			tuples[i][j] = c.broadcast(k)
		}
	}
	return c.QueryTupleNested(ctx, tuples, opts...)
}

// QueryTupleNested is QueryTuple over a sequence of sequences.
func (c *ConcatenatedStore) QueryTupleNested(ctx context.Context, tuples [][][]string, opts ...QueryOption) ([][][]float32, error) {
	for _, row := range tuples {
		for _, t := range row {
			if err := c.checkTuple(t); err != nil {
				return nil, err
			}
		}
	}
	parts, err := fanOut(ctx, c, func(ctx context.Context, i int, s Querier) ([][][]float32, error) {
		keys := make([][]string, len(tuples))
		for j, row := range tuples {
			keys[j] = make([]string, len(row))
			for k, t := range row {
				keys[j][k] = t[i]
			}
		}
		return s.QueryNested(ctx, keys, opts...)
	})
	if err != nil {
		return nil, err
	}

	out := make([][][]float32, len(tuples))
	for j := range out {
		rows := make([][][]float32, len(parts))
		for i, p := range parts {
			if len(p) != len(tuples) {
				return nil, ErrShapeMismatch
			}
			rows[i] = p[j]
		}
		if out[j], err = stackRows(rows); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Close closes every store.
func (c *ConcatenatedStore) Close() error {
	var errs []error
	for _, s := range c.stores {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

func (c *ConcatenatedStore) broadcast(key string) []string {
	t := make([]string, len(c.stores))
	for i := range t {
		t[i] = key
	}
	return t
}

func (c *ConcatenatedStore) checkTuple(t []string) error {
	if len(t) != len(c.stores) {
		return fmt.Errorf("%w: tuple has %d keys for %d stores", ErrInvalidArgument, len(t), len(c.stores))
	}
	return nil
}

// fanOut runs fn against every store concurrently and returns the results
// in store order.
func fanOut[T any](ctx context.Context, c *ConcatenatedStore, fn func(context.Context, int, Querier) (T, error)) ([]T, error) {
	out := make([]T, len(c.stores))
	g, ctx := errgroup.WithContext(ctx)
	for i, s := range c.stores {
		g.Go(func() error {
			v, err := fn(ctx, i, s)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func hstack(parts [][]float32) []float32 {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]float32, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// stackRows concatenates row j of every part. All parts must have the same
// number of rows.
func stackRows(parts [][][]float32) ([][]float32, error) {
	rows := len(parts[0])
	for _, p := range parts[1:] {
		if len(p) != rows {
			return nil, ErrShapeMismatch
		}
	}
	out := make([][]float32, rows)
	row := make([][]float32, len(parts))
	for j := range out {
		for i, p := range parts {
			row[i] = p[j]
		}
		out[j] = hstack(row)
	}
	return out, nil
}
