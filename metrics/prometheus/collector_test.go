package prometheus

import (
	"errors"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prom.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	out := make(map[string]float64)
	for _, f := range families {
		for _, m := range f.GetMetric() {
			name := f.GetName()
			for _, l := range m.GetLabel() {
				name += "/" + l.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				out[name] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[name] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				out[name] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func TestCollector(t *testing.T) {
	reg := prom.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.RecordQuery(3, time.Millisecond, nil)
	c.RecordQuery(2, time.Millisecond, errors.New("boom"))
	c.RecordOOV(time.Microsecond)
	c.RecordSearch(10, time.Millisecond, nil)
	c.RecordMatrixOpen(42, time.Second, nil)
	c.RecordCache(true)
	c.RecordCache(true)
	c.RecordCache(false)

	got := gather(t, reg)
	assert.Equal(t, 5.0, got["magvec_queried_keys_total"])
	assert.Equal(t, 1.0, got["magvec_operation_latency_seconds/query/success"])
	assert.Equal(t, 1.0, got["magvec_operation_latency_seconds/query/error"])
	assert.Equal(t, 1.0, got["magvec_operation_latency_seconds/search/success"])
	assert.Equal(t, 1.0, got["magvec_oov_vectors_total"])
	assert.Equal(t, 42.0, got["magvec_matrix_rows"])
	assert.Equal(t, 2.0, got["magvec_cache_lookups_total/hit"])
	assert.Equal(t, 1.0, got["magvec_cache_lookups_total/miss"])
}

func TestCollector_DuplicateRegistration(t *testing.T) {
	reg := prom.NewRegistry()
	_, err := NewCollector(reg)
	require.NoError(t, err)
	_, err = NewCollector(reg)
	assert.Error(t, err)
}
