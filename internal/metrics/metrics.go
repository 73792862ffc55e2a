// Package metrics exposes fix job counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives job lifecycle events.
type Recorder interface {
	JobStarted(kind string)
	JobFinished(kind, status string, durationSeconds float64)
	BytesDownloaded(n int64)
	FilesWritten(n int)
	FilesRemoved(n int)
	ProbeCompleted(category string, available bool)
}

// Noop implements Recorder without emitting anything.
type Noop struct{}

func (Noop) JobStarted(string)                   {}
func (Noop) JobFinished(string, string, float64) {}
func (Noop) BytesDownloaded(int64)               {}
func (Noop) FilesWritten(int)                    {}
func (Noop) FilesRemoved(int)                    {}
func (Noop) ProbeCompleted(string, bool)         {}

// Prom implements Recorder backed by Prometheus collectors registered on its
// own registry.
type Prom struct {
	registry       *prometheus.Registry
	jobsStarted    *prometheus.CounterVec
	jobsFinished   *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobsRunning    *prometheus.GaugeVec
	bytesRead      prometheus.Counter
	filesWritten   prometheus.Counter
	filesRemoved   prometheus.Counter
	probesComplete *prometheus.CounterVec
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		registry: prometheus.NewRegistry(),
		jobsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_started_total",
			Help:      "Fix jobs started by kind",
		}, []string{"kind"}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Fix jobs finished by kind and terminal status",
		}, []string{"kind", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Fix job wall time by kind",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"kind"}),
		jobsRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_running",
			Help:      "Fix jobs currently running by kind",
		}, []string{"kind"}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Archive bytes downloaded",
		}),
		filesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_written_total",
			Help:      "Files extracted into install directories",
		}),
		filesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_removed_total",
			Help:      "Files deleted by fix removal",
		}),
		probesComplete: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_probes_total",
			Help:      "Availability checks by fix category and result",
		}, []string{"category", "available"}),
	}
	p.registry.MustRegister(
		p.jobsStarted,
		p.jobsFinished,
		p.jobDuration,
		p.jobsRunning,
		p.bytesRead,
		p.filesWritten,
		p.filesRemoved,
		p.probesComplete,
	)
	return p
}

func (p *Prom) JobStarted(kind string) {
	p.jobsStarted.WithLabelValues(kind).Inc()
	p.jobsRunning.WithLabelValues(kind).Inc()
}

func (p *Prom) JobFinished(kind, status string, durationSeconds float64) {
	p.jobsFinished.WithLabelValues(kind, status).Inc()
	p.jobsRunning.WithLabelValues(kind).Dec()
	p.jobDuration.WithLabelValues(kind).Observe(durationSeconds)
}

func (p *Prom) BytesDownloaded(n int64) {
	if n > 0 {
		p.bytesRead.Add(float64(n))
	}
}

func (p *Prom) FilesWritten(n int) {
	if n > 0 {
		p.filesWritten.Add(float64(n))
	}
}

func (p *Prom) FilesRemoved(n int) {
	if n > 0 {
		p.filesRemoved.Add(float64(n))
	}
}

func (p *Prom) ProbeCompleted(category string, available bool) {
	label := "false"
	if available {
		label = "true"
	}
	p.probesComplete.WithLabelValues(category, label).Inc()
}

// Registry exposes the underlying registry for tests and custom handlers.
func (p *Prom) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prom) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
