package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/pdf-recompose/internal/core/domain"
)

// PipelineMetrics implements ports.PipelineObserver on a Prometheus registry.
type PipelineMetrics struct {
	service string

	runsTotal     *prometheus.CounterVec
	runsInFlight  *prometheus.GaugeVec
	runPages      *prometheus.HistogramVec
	stagesTotal   *prometheus.CounterVec
	warningsTotal *prometheus.CounterVec
}

func NewPipelineMetrics(service string, registerer prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		service: service,
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "recompose",
				Subsystem: "pipeline",
				Name:      "runs_total",
				Help:      "Total pipeline runs by outcome.",
			},
			[]string{"service", "pipeline", "status"},
		),
		runsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "recompose",
				Subsystem: "pipeline",
				Name:      "runs_in_flight",
				Help:      "Number of pipeline runs in progress.",
			},
			[]string{"service", "pipeline"},
		),
		runPages: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "recompose",
				Subsystem: "pipeline",
				Name:      "run_pages",
				Help:      "Pages completed per pipeline run.",
				Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 200, 500},
			},
			[]string{"service", "pipeline"},
		),
		stagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "recompose",
				Subsystem: "pipeline",
				Name:      "page_stages_total",
				Help:      "Total per-page stage completions.",
			},
			[]string{"service", "pipeline", "stage"},
		),
		warningsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "recompose",
				Subsystem: "pipeline",
				Name:      "page_warnings_total",
				Help:      "Total non-fatal page warnings.",
			},
			[]string{"service", "pipeline"},
		),
	}
	registerer.MustRegister(m.runsTotal, m.runsInFlight, m.runPages, m.stagesTotal, m.warningsTotal)
	return m
}

func (m *PipelineMetrics) StartRun(pipeline domain.JobKind) {
	m.runsInFlight.WithLabelValues(m.service, string(pipeline)).Inc()
}

func (m *PipelineMetrics) ObservePage(pipeline domain.JobKind, stage domain.Stage) {
	m.stagesTotal.WithLabelValues(m.service, string(pipeline), string(stage)).Inc()
}

func (m *PipelineMetrics) ObserveWarning(pipeline domain.JobKind) {
	m.warningsTotal.WithLabelValues(m.service, string(pipeline)).Inc()
}

func (m *PipelineMetrics) FinishRun(pipeline domain.JobKind, pages int, err error) {
	m.runsInFlight.WithLabelValues(m.service, string(pipeline)).Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	m.runsTotal.WithLabelValues(m.service, string(pipeline), status).Inc()
	if err == nil {
		m.runPages.WithLabelValues(m.service, string(pipeline)).Observe(float64(pages))
	}
}
