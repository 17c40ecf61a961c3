// Package notify delivers run lifecycle notifications according to
// per-event policies. Delivery is best-effort: failures are logged and never
// influence the run verdict.
package notify

import "git.home.luguber.info/inful/matrixci/internal/pipeline"

// Policy controls whether an event is delivered.
type Policy string

const (
	PolicyAlways Policy = "always"
	PolicyNever  Policy = "never"
	// PolicyChange delivers only when the final status differs from the
	// previous run's final status on the same branch. A first run on a
	// branch counts as a change.
	PolicyChange Policy = "change"
)

// Decide reports whether a notification should be dispatched. prev is the
// previous run's final verdict on the same branch; hasPrev is false when no
// prior run exists. For start events there is no final status yet, so a
// change policy behaves like always.
func Decide(policy Policy, current pipeline.Verdict, prev pipeline.Verdict, hasPrev bool) bool {
	switch policy {
	case PolicyNever:
		return false
	case PolicyAlways:
		return true
	case PolicyChange:
		if !hasPrev {
			return true
		}
		return current != prev
	default:
		return false
	}
}
