package notify

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/matrixci/internal/logfields"
	"git.home.luguber.info/inful/matrixci/internal/pipeline"
)

// Event is a run lifecycle moment that can trigger a notification.
type Event string

const (
	EventStart   Event = "start"
	EventSuccess Event = "success"
	EventFailure Event = "failure"
)

// EntrySummary is one matrix entry's outcome as carried in a payload.
type EntrySummary struct {
	Channel      string           `json:"channel"`
	Verdict      pipeline.Verdict `json:"verdict,omitempty"`
	AllowFailure bool             `json:"allow_failure"`
}

// Payload is the wire form of a notification.
type Payload struct {
	RunID     string           `json:"run_id"`
	Branch    string           `json:"branch"`
	Commit    string           `json:"commit,omitempty"`
	Event     Event            `json:"event"`
	Verdict   pipeline.Verdict `json:"verdict,omitempty"`
	Entries   []EntrySummary   `json:"entries,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Transport delivers a payload to one destination.
type Transport interface {
	Deliver(ctx context.Context, p Payload) error
	Name() string
}

// Policies holds the per-event delivery policies.
type Policies struct {
	Start   Policy
	Success Policy
	Failure Policy
}

// Notifier evaluates policies and fans payloads out to its transports.
type Notifier struct {
	policies   Policies
	transports []Transport
}

func NewNotifier(policies Policies, transports ...Transport) *Notifier {
	return &Notifier{policies: policies, transports: transports}
}

// NotifyStart dispatches the run-start notification. Start has no final
// status to compare against, so a change policy delivers unconditionally.
func (n *Notifier) NotifyStart(ctx context.Context, run *pipeline.Run) {
	policy := n.policies.Start
	if policy == PolicyChange {
		policy = PolicyAlways
	}
	if !Decide(policy, "", "", false) {
		return
	}
	n.deliver(ctx, Payload{
		RunID:     run.ID,
		Branch:    run.Branch,
		Commit:    run.Commit,
		Event:     EventStart,
		Timestamp: time.Now(),
	})
}

// NotifyFinished dispatches the success or failure notification for a
// completed run. prev is the previous final verdict on the same branch,
// read before this run was recorded.
func (n *Notifier) NotifyFinished(ctx context.Context, run *pipeline.Run, prev pipeline.Verdict, hasPrev bool) {
	event := EventSuccess
	policy := n.policies.Success
	if run.Aggregate == pipeline.VerdictFail {
		event = EventFailure
		policy = n.policies.Failure
	}
	if !Decide(policy, run.Aggregate, prev, hasPrev) {
		slog.Debug("Notification suppressed by policy",
			logfields.RunID(run.ID),
			logfields.Event(string(event)),
			slog.String("policy", string(policy)))
		return
	}

	entries := make([]EntrySummary, 0, len(run.Entries))
	for _, e := range run.Entries {
		entries = append(entries, EntrySummary{
			Channel:      e.Entry.Channel.String(),
			Verdict:      e.Verdict,
			AllowFailure: e.Entry.AllowFailure,
		})
	}
	n.deliver(ctx, Payload{
		RunID:     run.ID,
		Branch:    run.Branch,
		Commit:    run.Commit,
		Event:     event,
		Verdict:   run.Aggregate,
		Entries:   entries,
		Timestamp: time.Now(),
	})
}

// deliver fans out to every transport. A failed delivery is logged and
// dropped; it is never retried and never changes the run verdict.
func (n *Notifier) deliver(ctx context.Context, p Payload) {
	for _, t := range n.transports {
		if err := t.Deliver(ctx, p); err != nil {
			slog.Warn("Notification delivery failed",
				logfields.RunID(p.RunID),
				logfields.Event(string(p.Event)),
				slog.String("transport", t.Name()),
				logfields.Error(err))
		}
	}
}
