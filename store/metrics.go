package store

import (
	"fmt"
	"io"
	"time"

	"github.com/VictoriaMetrics/metrics"
)

// storeMetrics records per-operation counts and latencies.
type storeMetrics struct {
	set *metrics.Set
}

func newStoreMetrics() *storeMetrics {
	return &storeMetrics{set: metrics.NewSet()}
}

// observe records one finished operation.
func (m *storeMetrics) observe(op, entity string, start time.Time, err error) {
	labels := fmt.Sprintf(`{op=%q,entity=%q}`, op, entity)
	m.set.GetOrCreateCounter("espalier_store_requests_total" + labels).Inc()
	m.set.GetOrCreateHistogram("espalier_store_request_duration_seconds" + labels).UpdateDuration(start)
	if err != nil {
		m.set.GetOrCreateCounter("espalier_store_errors_total" + labels).Inc()
	}
}

// transaction records the item count of a cascading write.
func (m *storeMetrics) transaction(entity string, items int) {
	m.set.GetOrCreateHistogram(fmt.Sprintf(`espalier_store_transaction_items{entity=%q}`, entity)).Update(float64(items))
}

// WriteMetrics writes the store's metrics in Prometheus text format.
func (s *Store) WriteMetrics(w io.Writer) {
	s.metrics.set.WritePrometheus(w)
}
