package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for scrape runs.
type Metrics struct {
	Registry             *prometheus.Registry
	TasksTotal           *prometheus.CounterVec
	TaskDuration         prometheus.Histogram
	RecordsScrapedTotal  prometheus.Counter
	RecordsDroppedTotal  prometheus.Counter
	ReconcileTotal       *prometheus.CounterVec
	BrowserRestartsTotal prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	tasks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_tasks_total",
			Help: "Total category tasks processed, by result.",
		},
		[]string{"result"},
	)
	taskDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_task_duration_seconds",
			Help:    "Wall-clock duration of one category task.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
	recordsScraped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_records_scraped_total",
			Help: "Total product records extracted before validation.",
		},
	)
	recordsDropped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_records_dropped_total",
			Help: "Total product records dropped by validation.",
		},
	)
	reconcile := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_reconcile_total",
			Help: "Total reconciliation outcomes, by action.",
		},
		[]string{"action"},
	)
	restarts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_browser_restarts_total",
			Help: "Total browser restarts triggered by the page budget.",
		},
	)

	registry.MustRegister(tasks, taskDuration, recordsScraped, recordsDropped, reconcile, restarts)

	return &Metrics{
		Registry:             registry,
		TasksTotal:           tasks,
		TaskDuration:         taskDuration,
		RecordsScrapedTotal:  recordsScraped,
		RecordsDroppedTotal:  recordsDropped,
		ReconcileTotal:       reconcile,
		BrowserRestartsTotal: restarts,
	}
}

// IncTask increments the task counter for a result label.
func (m *Metrics) IncTask(result string) {
	if m == nil {
		return
	}
	m.TasksTotal.WithLabelValues(result).Inc()
}

// ObserveTask records one task's duration.
func (m *Metrics) ObserveTask(d time.Duration) {
	if m == nil {
		return
	}
	m.TaskDuration.Observe(d.Seconds())
}

// AddRecords counts extracted and dropped records for one task.
func (m *Metrics) AddRecords(scraped, dropped int) {
	if m == nil {
		return
	}
	m.RecordsScrapedTotal.Add(float64(scraped))
	m.RecordsDroppedTotal.Add(float64(dropped))
}

// IncReconcile increments the reconcile counter for an action label.
func (m *Metrics) IncReconcile(action string) {
	if m == nil {
		return
	}
	m.ReconcileTotal.WithLabelValues(action).Inc()
}

// AddRestarts counts browser restarts observed since the last task.
func (m *Metrics) AddRestarts(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BrowserRestartsTotal.Add(float64(n))
}
