package magvec

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; see the
// metrics/prometheus package for a ready-made adapter.
type MetricsCollector interface {
	// RecordQuery is called after each Query, QueryBatch or QueryNested call.
	// keys is the number of keys looked up.
	RecordQuery(keys int, duration time.Duration, err error)

	// RecordOOV is called after a vector was synthesized for a missing key.
	RecordOOV(duration time.Duration)

	// RecordSearch is called after each similarity search.
	RecordSearch(topn int, duration time.Duration, err error)

	// RecordMatrixOpen is called after the search matrix became available
	// (built or reused), or failed to.
	RecordMatrixOpen(rows int, duration time.Duration, err error)

	// RecordCache is called for each vector cache lookup.
	RecordCache(hit bool)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordQuery(int, time.Duration, error)      {}
func (NoopMetricsCollector) RecordOOV(time.Duration)                    {}
func (NoopMetricsCollector) RecordSearch(int, time.Duration, error)     {}
func (NoopMetricsCollector) RecordMatrixOpen(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordCache(bool)                           {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	QueryCount       atomic.Int64
	QueryKeys        atomic.Int64
	QueryErrors      atomic.Int64
	QueryTotalNanos  atomic.Int64
	OOVCount         atomic.Int64
	OOVTotalNanos    atomic.Int64
	SearchCount      atomic.Int64
	SearchErrors     atomic.Int64
	SearchTotalNanos atomic.Int64
	MatrixOpens      atomic.Int64
	MatrixErrors     atomic.Int64
	CacheHits        atomic.Int64
	CacheMisses      atomic.Int64
}

// RecordQuery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordQuery(keys int, duration time.Duration, err error) {
	b.QueryCount.Add(1)
	b.QueryKeys.Add(int64(keys))
	b.QueryTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.QueryErrors.Add(1)
	}
}

// RecordOOV implements MetricsCollector.
func (b *BasicMetricsCollector) RecordOOV(duration time.Duration) {
	b.OOVCount.Add(1)
	b.OOVTotalNanos.Add(duration.Nanoseconds())
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(_ int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordMatrixOpen implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMatrixOpen(_ int, _ time.Duration, err error) {
	b.MatrixOpens.Add(1)
	if err != nil {
		b.MatrixErrors.Add(1)
	}
}

// RecordCache implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCache(hit bool) {
	if hit {
		b.CacheHits.Add(1)
	} else {
		b.CacheMisses.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		QueryCount:     b.QueryCount.Load(),
		QueryKeys:      b.QueryKeys.Load(),
		QueryErrors:    b.QueryErrors.Load(),
		QueryAvgNanos:  avg(b.QueryTotalNanos.Load(), b.QueryCount.Load()),
		OOVCount:       b.OOVCount.Load(),
		OOVAvgNanos:    avg(b.OOVTotalNanos.Load(), b.OOVCount.Load()),
		SearchCount:    b.SearchCount.Load(),
		SearchErrors:   b.SearchErrors.Load(),
		SearchAvgNanos: avg(b.SearchTotalNanos.Load(), b.SearchCount.Load()),
		MatrixOpens:    b.MatrixOpens.Load(),
		MatrixErrors:   b.MatrixErrors.Load(),
		CacheHits:      b.CacheHits.Load(),
		CacheMisses:    b.CacheMisses.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	QueryCount     int64
	QueryKeys      int64
	QueryErrors    int64
	QueryAvgNanos  int64
	OOVCount       int64
	OOVAvgNanos    int64
	SearchCount    int64
	SearchErrors   int64
	SearchAvgNanos int64
	MatrixOpens    int64
	MatrixErrors   int64
	CacheHits      int64
	CacheMisses    int64
}
