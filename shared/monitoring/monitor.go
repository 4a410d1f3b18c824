package monitoring

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Monitor struct {
	mu             sync.RWMutex
	lastRunSuccess bool
	lastRunTime    time.Time
	lastSummary    string

	registry          *prometheus.Registry
	repliesPosted     prometheus.Counter
	generationSkipped prometheus.Counter
	apiRetries        *prometheus.CounterVec
	runs              *prometheus.CounterVec
}

func NewMonitor() *Monitor {
	m := &Monitor{
		registry: prometheus.NewRegistry(),
		repliesPosted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "responder_replies_posted_total",
			Help: "Replies posted to viewer comments.",
		}),
		generationSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "responder_generation_skipped_total",
			Help: "Comments skipped because no reply could be generated.",
		}),
		apiRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "responder_api_retries_total",
			Help: "YouTube API calls retried after a transient failure.",
		}, []string{"operation"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "responder_runs_total",
			Help: "Completed runs by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(m.repliesPosted, m.generationSkipped, m.apiRetries, m.runs)
	return m
}

// Registry exposes the metrics for the health server.
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Monitor) ReplyPosted() {
	m.repliesPosted.Inc()
}

func (m *Monitor) GenerationSkipped() {
	m.generationSkipped.Inc()
}

func (m *Monitor) APIRetry(operation string) {
	m.apiRetries.WithLabelValues(operation).Inc()
}

func (m *Monitor) RecordSuccess(summary string, duration time.Duration) {
	m.mu.Lock()
	m.lastRunSuccess = true
	m.lastRunTime = time.Now()
	m.lastSummary = summary
	m.mu.Unlock()

	m.runs.WithLabelValues("success").Inc()
	log.Printf("✅ Run completed successfully - %s (took %v)", summary, duration)
}

func (m *Monitor) RecordPartialFailure(err error, duration time.Duration) {
	// Don't change health status for partial failures
	m.runs.WithLabelValues("partial").Inc()
	log.Printf("⚠️  PARTIAL FAILURE: %s (Duration: %v)", err.Error(), duration)
}

func (m *Monitor) RecordCriticalFailure(err error, duration time.Duration) {
	m.mu.Lock()
	m.lastRunSuccess = false
	m.lastRunTime = time.Now()
	m.lastSummary = err.Error()
	m.mu.Unlock()

	m.runs.WithLabelValues("critical").Inc()
	log.Printf("🚨 CRITICAL FAILURE: %s (Duration: %v)", err.Error(), duration)
	log.Printf("Failure occurred at: %s", time.Now().Format("2006-01-02 15:04:05"))
}

func (m *Monitor) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.lastRunTime.IsZero() {
		return true // No runs yet, assume healthy
	}
	return m.lastRunSuccess
}

func (m *Monitor) GetStatusSummary() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.lastRunTime.IsZero() {
		return "No runs yet"
	}

	if m.lastRunSuccess {
		return fmt.Sprintf("✅ Last run: %s (%s)", m.lastRunTime.Format("Jan 2 15:04"), m.lastSummary)
	}
	return fmt.Sprintf("❌ Last run failed: %s (%s)", m.lastRunTime.Format("Jan 2 15:04"), m.lastSummary)
}
