package pipeline

// Event is a domain event published during a run and consumed by handlers.
type Event interface{ Name() string }

// Event names used in the pipeline.
const (
	EventRunStarted     = "RunStarted"
	EventEntryStarted   = "EntryStarted"
	EventStepCompleted  = "StepCompleted"
	EventEntryCompleted = "EntryCompleted"
	EventRunCompleted   = "RunCompleted"
)

// RunStarted is published once per triggering event that passes the branch gate.
type RunStarted struct {
	ID     string
	Branch string
	Commit string
}

func (RunStarted) Name() string       { return EventRunStarted }
func (e RunStarted) GetRunID() string { return e.ID }

// EntryStarted is published when an entry begins executing.
type EntryStarted struct {
	RunID   string
	Channel string
}

func (EntryStarted) Name() string       { return EventEntryStarted }
func (e EntryStarted) GetRunID() string { return e.RunID }

// StepCompleted is published after each executed step.
type StepCompleted struct {
	RunID      string
	Channel    string
	Package    string
	Step       string
	ExitStatus int
}

func (StepCompleted) Name() string       { return EventStepCompleted }
func (e StepCompleted) GetRunID() string { return e.RunID }

// EntryCompleted is published when an entry's verdict is finalized.
type EntryCompleted struct {
	RunID   string
	Channel string
	Verdict Verdict
}

func (EntryCompleted) Name() string       { return EventEntryCompleted }
func (e EntryCompleted) GetRunID() string { return e.RunID }

// RunCompleted is published when the aggregate verdict is finalized.
type RunCompleted struct {
	RunID     string
	Aggregate Verdict
}

func (RunCompleted) Name() string       { return EventRunCompleted }
func (e RunCompleted) GetRunID() string { return e.RunID }
