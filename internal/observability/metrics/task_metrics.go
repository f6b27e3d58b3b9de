package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	TaskOutcomeSuccess   = "success"
	TaskOutcomeRetry     = "retry"
	TaskOutcomeFailed    = "failed"
	TaskOutcomeDropped   = "dropped"
	TaskOutcomeNoHandler = "no_handler"
)

// TaskMetrics captures background task runner health.
type TaskMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	queued   prometheus.Gauge
}

var (
	taskMetricsOnce sync.Once
	taskMetrics     *TaskMetrics
)

// Tasks returns the singleton task metrics registered on the default registry.
func Tasks() *TaskMetrics {
	return TasksWithConfig(Config{})
}

// TasksWithConfig returns the singleton task metrics using config labels.
func TasksWithConfig(cfg Config) *TaskMetrics {
	taskMetricsOnce.Do(func() {
		taskMetrics = NewTaskMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return taskMetrics
}

// NewTaskMetrics registers task instruments on registerer.
func NewTaskMetrics(registerer prometheus.Registerer, cfg Config) *TaskMetrics {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "procura"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &TaskMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "procura_task_runs_total",
			Help:        "Background task executions by task and outcome.",
			ConstLabels: constLabels,
		}, []string{"task", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "procura_task_duration_seconds",
			Help:        "Background task latency.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			ConstLabels: constLabels,
		}, []string{"task"}),
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "procura_task_queue_depth",
			Help:        "Tasks waiting for a worker.",
			ConstLabels: constLabels,
		}),
	}

	m.runs = registerCollector(registerer, m.runs)
	m.duration = registerCollector(registerer, m.duration)
	m.queued = registerCollector(registerer, m.queued)
	return m
}

func (m *TaskMetrics) IncRun(task, outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(task, outcome).Inc()
}

func (m *TaskMetrics) ObserveDuration(task string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(task).Observe(d.Seconds())
}

func (m *TaskMetrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queued.Set(float64(n))
}

// registerCollector returns the already registered collector on duplicate
// registration so tests can build several instances.
func registerCollector[T prometheus.Collector](registerer prometheus.Registerer, c T) T {
	if registerer == nil {
		return c
	}
	if err := registerer.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}
