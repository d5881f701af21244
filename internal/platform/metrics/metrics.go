package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the loan operations pipeline.
type Metrics struct {
	PipelineRuns     *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	ExceptionsOpened *prometheus.CounterVec
	LoansReadyToFund prometheus.Counter
	DisbursementSum  prometheus.Counter
}

// New creates and registers all pipeline metrics.
func New() *Metrics {
	return &Metrics{
		PipelineRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "loanops_pipeline_runs_total",
			Help: "Pipeline runs by final lifecycle status",
		}, []string{"status"}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loanops_stage_duration_seconds",
			Help:    "Wall time spent per pipeline stage",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		ExceptionsOpened: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "loanops_exceptions_opened_total",
			Help: "Exceptions opened by the pipeline, by severity",
		}, []string{"severity"}),
		LoansReadyToFund: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loanops_loans_ready_to_fund_total",
			Help: "Loans that reached ready_to_fund",
		}),
		DisbursementSum: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loanops_net_disbursement_dollars_total",
			Help: "Sum of net disbursement amounts prepared for funding",
		}),
	}
}

func (m *Metrics) ObserveRun(status string) {
	m.PipelineRuns.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveStage(stage string, seconds float64) {
	m.StageDuration.WithLabelValues(stage).Observe(seconds)
}

func (m *Metrics) IncExceptionsOpened(severity string) {
	m.ExceptionsOpened.WithLabelValues(severity).Inc()
}

func (m *Metrics) ObserveReadyToFund(netDisbursement float64) {
	m.LoansReadyToFund.Inc()
	m.DisbursementSum.Add(netDisbursement)
}
