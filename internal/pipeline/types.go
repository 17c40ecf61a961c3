// Package pipeline drives matrix entries through their package step
// sequences, classifies outcomes, and coordinates publishing and
// notifications around them.
package pipeline

import (
	"time"

	"git.home.luguber.info/inful/matrixci/internal/toolchain"
)

// StepName is one unit of work executed through the external build tool.
type StepName string

const (
	StepBuild StepName = "build"
	StepDoc   StepName = "doc"
	StepTest  StepName = "test"
)

// Verdict classifies an entry (or the aggregate run).
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictFail Verdict = "fail"
	// VerdictAllowedFail marks a failed entry whose matrix tag excludes it
	// from the aggregate gate. It still displays as failed.
	VerdictAllowedFail Verdict = "allowed_fail"
)

// StepResult is the raw outcome of one executed step.
type StepResult struct {
	Package    string
	Step       StepName
	FeatureSet string
	ExitStatus int
	// Err is set when the step could not be executed at all (tool missing,
	// required secret unresolved). Exit status is -1 in that case.
	Err error
	// AllowFailureContext records the entry's allow-failure tag at the time
	// the step ran, for reporting.
	AllowFailureContext bool
	Duration            time.Duration
}

// Success reports whether the step ran and exited zero.
func (r StepResult) Success() bool { return r.Err == nil && r.ExitStatus == 0 }

// EntryRun is one matrix entry's pipeline run: its ordered step results and
// final verdict. Entries are independent execution units; an EntryRun never
// shares mutable state with another.
type EntryRun struct {
	Entry      toolchain.Entry
	Results    []StepResult
	Verdict    Verdict
	StartedAt  time.Time
	FinishedAt time.Time
	// Published records whether post-pipeline publishing ran for this entry.
	Published bool
}

// Run is one triggering event's full pipeline execution across all entries.
type Run struct {
	ID         string
	Branch     string
	Commit     string
	Entries    []EntryRun
	Aggregate  Verdict
	StartedAt  time.Time
	FinishedAt time.Time
}
