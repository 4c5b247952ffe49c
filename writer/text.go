package writer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ConvertText builds a store at path from vectors in the word2vec/GloVe
// text format: one "key v1 v2 ... vd" line per vector, optionally preceded
// by a "count dim" header line. Keys may contain spaces; the last dim fields
// of a line are the components.
func ConvertText(ctx context.Context, r io.Reader, path string, opts ...Option) (int64, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), 64<<20)

	var (
		w      *Writer
		dim    int
		lineNo int
	)
	abort := func(err error) (int64, error) {
		if w != nil {
			_ = w.Abort()
		}
		return 0, err
	}

	for sc.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return abort(err)
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}

		if lineNo == 1 && len(fields) == 2 {
			if _, err := strconv.Atoi(fields[0]); err == nil {
				if d, err := strconv.Atoi(fields[1]); err == nil {
					dim = d
					continue
				}
			}
		}
		if dim == 0 {
			dim = len(fields) - 1
		}
		if len(fields) < dim+1 {
			return abort(fmt.Errorf("line %d: want %d components, got %d", lineNo, dim, len(fields)-1))
		}

		if w == nil {
			var err error
			if w, err = New(ctx, path, dim, opts...); err != nil {
				return 0, err
			}
		}

		split := len(fields) - dim
		key := strings.Join(fields[:split], " ")
		vec := make([]float32, dim)
		for i, f := range fields[split:] {
			v, err := strconv.ParseFloat(f, 32)
			if err != nil {
				return abort(fmt.Errorf("line %d: %w", lineNo, err))
			}
			vec[i] = float32(v)
		}
		if err := w.Add(ctx, key, vec); err != nil {
			return abort(err)
		}
	}
	if err := sc.Err(); err != nil {
		return abort(err)
	}
	if w == nil {
		return 0, fmt.Errorf("no vectors found")
	}

	n := w.Len()
	if err := w.Close(ctx); err != nil {
		return 0, err
	}
	return n, nil
}
