package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestNoopRecorderIsSafe(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveStepDuration("build", time.Second)
	r.ObserveEntryDuration("stable", time.Second)
	r.IncStepResult("test", true)
	r.IncEntryVerdict("stable", "pass")
	r.IncRunVerdict("fail")
}

func TestPrometheusRecorderRegistersAndCounts(t *testing.T) {
	reg := prom.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.ObserveStepDuration("build", 2*time.Second)
	r.ObserveEntryDuration("nightly", 5*time.Second)
	r.IncStepResult("build", true)
	r.IncStepResult("test", false)
	r.IncEntryVerdict("nightly", "allowed_fail")
	r.IncRunVerdict("pass")

	families, err := reg.Gather()
	assert.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["matrixci_step_duration_seconds"])
	assert.True(t, names["matrixci_entry_duration_seconds"])
	assert.True(t, names["matrixci_step_results_total"])
	assert.True(t, names["matrixci_entry_verdicts_total"])
	assert.True(t, names["matrixci_run_verdicts_total"])
}

func TestNilPrometheusRecorderIsSafe(t *testing.T) {
	var r *PrometheusRecorder
	r.ObserveStepDuration("build", time.Second)
	r.IncRunVerdict("pass")
}
