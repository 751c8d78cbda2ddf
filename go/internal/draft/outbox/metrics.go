package outbox

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Metrics counts relay activity.
type Metrics struct {
	mu            sync.Mutex
	published     uint64
	failed        uint64
	retries       uint64
	lastPublished time.Time
}

func (m *Metrics) RecordPublished(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published++
	m.lastPublished = at
}

func (m *Metrics) RecordFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed++
}

func (m *Metrics) RecordRetry() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries++
}

// Snapshot returns the published count and the time of the last publish.
func (m *Metrics) Snapshot() (published, failed, retries uint64, last time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.published, m.failed, m.retries, m.lastPublished
}

// WritePrometheus writes the counters and a health status in the Prometheus text format.
func WritePrometheus(w io.Writer, m *Metrics, status HealthStatus) error {
	published, failed, retries, last := m.Snapshot()

	_, err := fmt.Fprintf(w, `# HELP outbox_healthy Whether the outbox relay is healthy
# TYPE outbox_healthy gauge
outbox_healthy %d

# HELP outbox_events_published_total Total number of events published
# TYPE outbox_events_published_total counter
outbox_events_published_total %d

# HELP outbox_events_failed_total Total number of events that exhausted their retries
# TYPE outbox_events_failed_total counter
outbox_events_failed_total %d

# HELP outbox_publish_retries_total Total number of publish retries
# TYPE outbox_publish_retries_total counter
outbox_publish_retries_total %d

# HELP outbox_pending_events Current number of pending events
# TYPE outbox_pending_events gauge
outbox_pending_events %d

# HELP outbox_last_event_timestamp Unix timestamp of last published event
# TYPE outbox_last_event_timestamp gauge
outbox_last_event_timestamp %d
`,
		boolGauge(status.Healthy),
		published,
		failed,
		retries,
		status.PendingEvents,
		unixOrZero(last),
	)
	return err
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
