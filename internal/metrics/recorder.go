// Package metrics exposes observability hooks for pipeline runs.
package metrics

import "time"

// Recorder defines observability hooks for run, entry, and step metrics.
// Implementations may forward to Prometheus, OpenTelemetry, etc. All methods
// must be safe for nil receivers when using the NoopRecorder (allowing
// optional injection).
type Recorder interface {
	ObserveStepDuration(step string, d time.Duration)
	ObserveEntryDuration(channel string, d time.Duration)
	IncStepResult(step string, success bool)
	IncEntryVerdict(channel, verdict string)
	IncRunVerdict(verdict string)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not
// configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStepDuration(string, time.Duration)  {}
func (NoopRecorder) ObserveEntryDuration(string, time.Duration) {}

func (NoopRecorder) IncStepResult(string, bool)     {}
func (NoopRecorder) IncEntryVerdict(string, string) {}
func (NoopRecorder) IncRunVerdict(string)           {}
