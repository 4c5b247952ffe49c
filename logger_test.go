package magvec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})).WithPath("/data/glove.magnitude")
	ctx := context.Background()

	l.LogOpen(ctx, 400000, 300, nil)
	l.LogQuery(ctx, 3, 1, time.Millisecond, nil)
	l.LogSearch(ctx, 10, 0, time.Millisecond, errors.New("boom"))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)

	var open, query, search map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &open))
	require.NoError(t, json.Unmarshal(lines[1], &query))
	require.NoError(t, json.Unmarshal(lines[2], &search))

	assert.Equal(t, "store opened", open["msg"])
	assert.Equal(t, "/data/glove.magnitude", open["path"])
	assert.EqualValues(t, 300, open["dimension"])
	assert.EqualValues(t, 1, query["oov"])
	assert.Equal(t, "ERROR", search["level"])
	assert.Equal(t, "boom", search["error"])
}

func TestNoopLogger(t *testing.T) {
	assert.False(t, NoopLogger().Enabled(context.Background(), slog.LevelError))
}
