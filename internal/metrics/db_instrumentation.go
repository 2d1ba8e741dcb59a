package metrics

import (
	"time"
)

// MeasureDBQuery times a repository operation:
//
//	defer metrics.MeasureDBQuery(r.metrics, "get_by_tenant", "postgres")()
//
// The nil check lets repositories run unmetered in tests.
func MeasureDBQuery(m *Metrics, operation, backend string) func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.ObserveDBQuery(operation, backend, time.Since(start))
	}
}

// RecordDBQuery records an already-measured query duration, for call sites
// that cannot use the deferred form (e.g. batched upserts timed as a whole).
func RecordDBQuery(m *Metrics, operation, backend string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ObserveDBQuery(operation, backend, duration)
}
