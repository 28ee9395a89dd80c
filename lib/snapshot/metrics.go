package snapshot

import (
	"github.com/VictoriaMetrics/metrics"
)

var (
	cacheHits       = metrics.GetOrCreateCounter(`phantom_snapshot_requests_total{result="hit"}`)
	cacheMisses     = metrics.GetOrCreateCounter(`phantom_snapshot_requests_total{result="miss"}`)
	cacheErrors     = metrics.GetOrCreateCounter(`phantom_snapshot_cache_errors_total`)
	cacheMalformed  = metrics.GetOrCreateCounter(`phantom_snapshot_cache_malformed_total`)
	rebuilds        = metrics.GetOrCreateCounter(`phantom_snapshot_rebuilds_total`)
	rebuildFailures = metrics.GetOrCreateCounter(`phantom_snapshot_rebuild_failures_total`)
	rebuildDuration = metrics.GetOrCreateHistogram(`phantom_snapshot_rebuild_duration_seconds`)
	snapshotSize    = metrics.GetOrCreateHistogram(`phantom_snapshot_size_bytes`)
)

// Stats is a point in time copy of the process wide snapshot counters.
type Stats struct {
	Hits            uint64
	Misses          uint64
	CacheErrors     uint64
	Malformed       uint64
	Rebuilds        uint64
	RebuildFailures uint64
}

// ReadStats returns the current counter values.
func ReadStats() Stats {
	return Stats{
		Hits:            cacheHits.Get(),
		Misses:          cacheMisses.Get(),
		CacheErrors:     cacheErrors.Get(),
		Malformed:       cacheMalformed.Get(),
		Rebuilds:        rebuilds.Get(),
		RebuildFailures: rebuildFailures.Get(),
	}
}

// Sub returns the counter increase since prev.
func (s Stats) Sub(prev Stats) Stats {
	return Stats{
		Hits:            s.Hits - prev.Hits,
		Misses:          s.Misses - prev.Misses,
		CacheErrors:     s.CacheErrors - prev.CacheErrors,
		Malformed:       s.Malformed - prev.Malformed,
		Rebuilds:        s.Rebuilds - prev.Rebuilds,
		RebuildFailures: s.RebuildFailures - prev.RebuildFailures,
	}
}
