// Package metrics exports run counters in the Prometheus text format.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"mender/internal/runner"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "mend"

// Metrics holds the run loop metrics on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	RunsTotal       *prometheus.CounterVec
	TouchesTotal    prometheus.Counter
	StuckTotal      prometheus.Counter
	CyclesTotal     prometheus.Counter
	ExecutionsTotal prometheus.Counter
	RunDuration     *prometheus.HistogramVec

	mu      sync.Mutex
	started map[string]time.Time
	logger  *zap.Logger
}

var _ runner.Subscriber = (*Metrics)(nil)

// NewMetrics creates the metric set on a fresh registry.
func NewMetrics(namespace string, logger *zap.Logger) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total runs by terminal outcome",
			},
			[]string{"outcome"},
		),
		TouchesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "touches_total",
				Help:      "Total applied file modifications",
			},
		),
		StuckTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stuck_cycles_total",
				Help:      "Total cycles ended because no candidate changed",
			},
		),
		CyclesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_total",
				Help:      "Total completed cycles",
			},
		),
		ExecutionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "Total program executions",
			},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Run wall time in seconds by outcome",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"outcome"},
		),
		started: make(map[string]time.Time),
		logger:  logger,
	}
}

// HandleEvent updates the counters for one run event.
func (m *Metrics) HandleEvent(e runner.Event) {
	switch e.Type {
	case runner.EventRunStarted:
		m.mu.Lock()
		m.started[e.RunID] = e.Time
		m.mu.Unlock()
	case runner.EventTouch:
		m.TouchesTotal.Inc()
	case runner.EventStuck:
		m.StuckTotal.Inc()
	case runner.EventCycleEnded:
		m.CyclesTotal.Inc()
	case runner.EventRunEnded:
		outcome := e.Outcome.String()
		m.RunsTotal.WithLabelValues(outcome).Inc()
		m.ExecutionsTotal.Add(float64(e.Executions))

		m.mu.Lock()
		start, ok := m.started[e.RunID]
		delete(m.started, e.RunID)
		m.mu.Unlock()
		if ok {
			m.RunDuration.WithLabelValues(outcome).Observe(e.Time.Sub(start).Seconds())
		}
	}
}

// WriteTextfile writes the registry to path in the node_exporter textfile
// format. The write is atomic.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	m.logger.Debug("metrics textfile written", zap.String("path", path))
	return nil
}
