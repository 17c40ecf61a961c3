package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/matrixci/internal/pipeline"
	"git.home.luguber.info/inful/matrixci/internal/toolchain"
)

type captureTransport struct {
	payloads []Payload
	err      error
}

func (c *captureTransport) Name() string { return "capture" }

func (c *captureTransport) Deliver(_ context.Context, p Payload) error {
	c.payloads = append(c.payloads, p)
	return c.err
}

func passingRun() *pipeline.Run {
	return &pipeline.Run{
		ID:        "run-1",
		Branch:    "master",
		Commit:    "abc123",
		Aggregate: pipeline.VerdictPass,
		Entries: []pipeline.EntryRun{
			{Entry: toolchain.Entry{Channel: toolchain.Stable}, Verdict: pipeline.VerdictPass},
			{Entry: toolchain.Entry{Channel: toolchain.Nightly, AllowFailure: true}, Verdict: pipeline.VerdictAllowedFail},
		},
	}
}

func TestNotifyStartChangePolicyDeliversUnconditionally(t *testing.T) {
	ct := &captureTransport{}
	n := NewNotifier(Policies{Start: PolicyChange}, ct)

	n.NotifyStart(context.Background(), passingRun())

	require.Len(t, ct.payloads, 1)
	assert.Equal(t, EventStart, ct.payloads[0].Event)
	assert.Empty(t, ct.payloads[0].Verdict)
}

func TestNotifyStartNeverSuppresses(t *testing.T) {
	ct := &captureTransport{}
	n := NewNotifier(Policies{Start: PolicyNever}, ct)

	n.NotifyStart(context.Background(), passingRun())

	assert.Empty(t, ct.payloads)
}

func TestNotifyFinishedSuccessPayload(t *testing.T) {
	ct := &captureTransport{}
	n := NewNotifier(Policies{Success: PolicyAlways, Failure: PolicyAlways}, ct)

	n.NotifyFinished(context.Background(), passingRun(), "", false)

	require.Len(t, ct.payloads, 1)
	p := ct.payloads[0]
	assert.Equal(t, EventSuccess, p.Event)
	assert.Equal(t, pipeline.VerdictPass, p.Verdict)
	require.Len(t, p.Entries, 2)
	assert.Equal(t, "stable", p.Entries[0].Channel)
	assert.Equal(t, pipeline.VerdictAllowedFail, p.Entries[1].Verdict)
	assert.True(t, p.Entries[1].AllowFailure)
}

func TestNotifyFinishedFailureUsesFailurePolicy(t *testing.T) {
	run := passingRun()
	run.Aggregate = pipeline.VerdictFail

	ct := &captureTransport{}
	n := NewNotifier(Policies{Success: PolicyNever, Failure: PolicyAlways}, ct)
	n.NotifyFinished(context.Background(), run, "", false)
	require.Len(t, ct.payloads, 1)
	assert.Equal(t, EventFailure, ct.payloads[0].Event)

	ct2 := &captureTransport{}
	n2 := NewNotifier(Policies{Success: PolicyAlways, Failure: PolicyNever}, ct2)
	n2.NotifyFinished(context.Background(), run, "", false)
	assert.Empty(t, ct2.payloads)
}

func TestNotifyFinishedChangeSuppressedOnRepeat(t *testing.T) {
	ct := &captureTransport{}
	n := NewNotifier(Policies{Success: PolicyChange}, ct)

	n.NotifyFinished(context.Background(), passingRun(), pipeline.VerdictPass, true)

	assert.Empty(t, ct.payloads)
}

func TestDeliveryFailureDoesNotStopOtherTransports(t *testing.T) {
	failing := &captureTransport{err: assert.AnError}
	ok := &captureTransport{}
	n := NewNotifier(Policies{Success: PolicyAlways}, failing, ok)

	n.NotifyFinished(context.Background(), passingRun(), "", false)

	assert.Len(t, failing.payloads, 1)
	assert.Len(t, ok.payloads, 1)
}
