package metrics

import (
	"net/http"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once          sync.Once
	stepDuration  *prom.HistogramVec
	entryDuration *prom.HistogramVec
	stepResults   *prom.CounterVec
	entryVerdicts *prom.CounterVec
	runVerdicts   *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.stepDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "matrixci",
			Name:      "step_duration_seconds",
			Help:      "Duration of individual pipeline steps",
			Buckets:   prom.DefBuckets,
		}, []string{"step"})
		pr.entryDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "matrixci",
			Name:      "entry_duration_seconds",
			Help:      "Duration of matrix entry executions",
			Buckets:   prom.DefBuckets,
		}, []string{"channel"})
		pr.stepResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "matrixci",
			Name:      "step_results_total",
			Help:      "Step result counts by outcome",
		}, []string{"step", "result"})
		pr.entryVerdicts = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "matrixci",
			Name:      "entry_verdicts_total",
			Help:      "Entry verdicts by channel",
		}, []string{"channel", "verdict"})
		pr.runVerdicts = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "matrixci",
			Name:      "run_verdicts_total",
			Help:      "Aggregate run verdicts",
		}, []string{"verdict"})
		reg.MustRegister(pr.stepDuration, pr.entryDuration, pr.stepResults, pr.entryVerdicts, pr.runVerdicts)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveStepDuration(step string, d time.Duration) {
	if p == nil || p.stepDuration == nil {
		return
	}
	p.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveEntryDuration(channel string, d time.Duration) {
	if p == nil || p.entryDuration == nil {
		return
	}
	p.entryDuration.WithLabelValues(channel).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStepResult(step string, success bool) {
	if p == nil || p.stepResults == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.stepResults.WithLabelValues(step, res).Inc()
}

func (p *PrometheusRecorder) IncEntryVerdict(channel, verdict string) {
	if p == nil || p.entryVerdicts == nil {
		return
	}
	p.entryVerdicts.WithLabelValues(channel, verdict).Inc()
}

func (p *PrometheusRecorder) IncRunVerdict(verdict string) {
	if p == nil || p.runVerdicts == nil {
		return
	}
	p.runVerdicts.WithLabelValues(verdict).Inc()
}

// HTTPHandler returns an http.Handler that serves Prometheus metrics for the
// provided registry.
func HTTPHandler(reg *prom.Registry) http.Handler {
	if reg == nil {
		reg = prom.DefaultRegisterer.(*prom.Registry)
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
