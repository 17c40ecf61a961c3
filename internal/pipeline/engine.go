package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/matrixci/internal/config"
	"git.home.luguber.info/inful/matrixci/internal/database"
	"git.home.luguber.info/inful/matrixci/internal/history"
	"git.home.luguber.info/inful/matrixci/internal/logfields"
	"git.home.luguber.info/inful/matrixci/internal/metrics"
	"git.home.luguber.info/inful/matrixci/internal/secrets"
	"git.home.luguber.info/inful/matrixci/internal/toolchain"
)

// Notifier dispatches run lifecycle notifications. Implementations must treat
// delivery as best-effort; a delivery failure never reaches the engine.
type Notifier interface {
	NotifyStart(ctx context.Context, run *Run)
	NotifyFinished(ctx context.Context, run *Run, prev Verdict, hasPrev bool)
}

// Publisher is the post-pipeline documentation action.
type Publisher interface {
	ShouldPublish(entry toolchain.Entry, verdict Verdict) bool
	Publish(ctx context.Context, workDir string, packages []config.Package) error
}

// HistoryStore persists finalized runs and answers the previous-verdict
// baseline question for change-based notification policies.
type HistoryStore interface {
	RecordRun(ctx context.Context, rec history.RunRecord) error
	LastFinalVerdict(ctx context.Context, branch string) (string, bool, error)
}

// Options wires the engine's collaborators. Nil fields fall back to inert
// defaults so callers only configure what they use.
type Options struct {
	Secrets     secrets.Store
	Provisioner database.Provisioner
	Notifier    Notifier
	Publisher   Publisher
	History     HistoryStore
	Bus         *Bus
	Recorder    metrics.Recorder
}

// Engine coordinates a full pipeline run: branch gating, matrix expansion,
// per-entry execution, outcome classification, publishing, and notification.
type Engine struct {
	cfg         *config.Config
	sequencer   *Sequencer
	secrets     secrets.Store
	provisioner database.Provisioner
	notifier    Notifier
	publisher   Publisher
	history     HistoryStore
	bus         *Bus
	recorder    metrics.Recorder
}

func NewEngine(cfg *config.Config, sequencer *Sequencer, opts Options) *Engine {
	e := &Engine{
		cfg:         cfg,
		sequencer:   sequencer,
		secrets:     opts.Secrets,
		provisioner: opts.Provisioner,
		notifier:    opts.Notifier,
		publisher:   opts.Publisher,
		history:     opts.History,
		bus:         opts.Bus,
		recorder:    opts.Recorder,
	}
	if e.provisioner == nil {
		e.provisioner = database.NoopProvisioner{}
	}
	if e.bus == nil {
		e.bus = NewBus()
	}
	if e.recorder == nil {
		e.recorder = metrics.NoopRecorder{}
	}
	return e
}

// Execute runs the pipeline for one triggering event. A branch outside the
// allow list produces no run at all: no entries execute and nothing is
// notified or recorded. The returned run is nil in that case.
func (e *Engine) Execute(ctx context.Context, branch, commit string) (*Run, error) {
	if !e.cfg.BranchAllowed(branch) {
		slog.Info("Branch not in allow list, skipping run", logfields.Branch(branch))
		return nil, nil
	}

	entries, err := toolchain.ExpandMatrix(e.cfg.Matrix.Channels, e.cfg.Matrix.AllowFailures)
	if err != nil {
		return nil, err
	}

	run := &Run{
		ID:        uuid.NewString(),
		Branch:    branch,
		Commit:    commit,
		StartedAt: time.Now(),
	}
	slog.Info("Run started",
		logfields.RunID(run.ID),
		logfields.Branch(branch),
		logfields.Commit(commit),
		slog.Int("entries", len(entries)))

	env, secretErrs := e.resolveEnv(ctx)

	_ = e.bus.Publish(RunStarted{ID: run.ID, Branch: branch, Commit: commit})
	if e.notifier != nil {
		e.notifier.NotifyStart(ctx, run)
	}

	// Entries are independent: each gets its own goroutine, environment
	// snapshot, and database. A failure in one never short-circuits another.
	run.Entries = make([]EntryRun, len(entries))
	var wg sync.WaitGroup
	for i, entry := range entries {
		wg.Add(1)
		go func(i int, entry toolchain.Entry) {
			defer wg.Done()
			run.Entries[i] = e.runEntry(ctx, run.ID, entry, env, secretErrs)
		}(i, entry)
	}
	wg.Wait()

	run.Aggregate = Aggregate(run.Entries)
	run.FinishedAt = time.Now()

	_ = e.bus.Publish(RunCompleted{RunID: run.ID, Aggregate: run.Aggregate})
	e.recorder.IncRunVerdict(string(run.Aggregate))
	slog.Info("Run completed",
		logfields.RunID(run.ID),
		logfields.Verdict(string(run.Aggregate)),
		logfields.DurationMS(float64(run.FinishedAt.Sub(run.StartedAt).Milliseconds())))

	e.finishRun(ctx, run)
	return run, nil
}

// finishRun reads the notification baseline, dispatches the final
// notification, and only then records the run so the baseline still reflects
// the previous run during dispatch.
func (e *Engine) finishRun(ctx context.Context, run *Run) {
	var (
		prev    Verdict
		hasPrev bool
	)
	if e.history != nil {
		prevStr, ok, err := e.history.LastFinalVerdict(ctx, run.Branch)
		if err != nil {
			slog.Warn("Failed to read notification baseline",
				logfields.Branch(run.Branch), logfields.Error(err))
		} else if ok {
			prev, hasPrev = Verdict(prevStr), true
		}
	}

	if e.notifier != nil {
		e.notifier.NotifyFinished(ctx, run, prev, hasPrev)
	}

	if e.history != nil {
		rec := history.RunRecord{
			ID:         run.ID,
			Branch:     run.Branch,
			Commit:     run.Commit,
			Verdict:    string(run.Aggregate),
			StartedAt:  run.StartedAt,
			FinishedAt: run.FinishedAt,
		}
		for _, er := range run.Entries {
			rec.Entries = append(rec.Entries, history.EntryRecord{
				Channel:      er.Entry.Channel.String(),
				AllowFailure: er.Entry.AllowFailure,
				Verdict:      string(er.Verdict),
			})
		}
		if err := e.history.RecordRun(ctx, rec); err != nil {
			slog.Error("Failed to record run", logfields.RunID(run.ID), logfields.Error(err))
		}
	}
}

func (e *Engine) runEntry(ctx context.Context, runID string, entry toolchain.Entry, env map[string]string, secretErrs map[string]error) EntryRun {
	er := EntryRun{Entry: entry, StartedAt: time.Now()}
	channel := entry.Channel.String()

	_ = e.bus.Publish(EntryStarted{RunID: runID, Channel: channel})

	handle, err := e.provisioner.Provision(ctx, entry.Channel)
	if err != nil {
		slog.Error("Database provisioning failed",
			logfields.Channel(channel), logfields.Error(err))
		er.Results = []StepResult{{
			Package:             e.cfg.Packages[0].Name,
			Step:                StepName(e.cfg.Packages[0].Steps[0]),
			ExitStatus:          -1,
			Err:                 err,
			AllowFailureContext: entry.AllowFailure,
		}}
		return e.finishEntry(ctx, runID, entry, er)
	}
	defer func() {
		if relErr := handle.Release(context.WithoutCancel(ctx)); relErr != nil {
			slog.Warn("Database teardown failed",
				logfields.Channel(channel), logfields.Error(relErr))
		}
	}()

	ec := EntryContext{
		Entry:       entry,
		WorkDir:     e.workDir(),
		Packages:    e.cfg.Packages,
		Env:         env,
		SecretErrs:  secretErrs,
		DatabaseURL: handle.URL,
	}
	er.Results = e.sequencer.Run(ctx, ec)

	return e.finishEntry(ctx, runID, entry, er)
}

// finishEntry classifies the entry, emits its events and metrics, and runs
// the publishing action when the gate holds.
func (e *Engine) finishEntry(ctx context.Context, runID string, entry toolchain.Entry, er EntryRun) EntryRun {
	channel := entry.Channel.String()

	for _, res := range er.Results {
		_ = e.bus.Publish(StepCompleted{
			RunID:      runID,
			Channel:    channel,
			Package:    res.Package,
			Step:       string(res.Step),
			ExitStatus: res.ExitStatus,
		})
		e.recorder.ObserveStepDuration(string(res.Step), res.Duration)
		e.recorder.IncStepResult(string(res.Step), res.Success())
	}

	er.Verdict = Classify(entry, er.Results)
	er.FinishedAt = time.Now()

	if e.publisher != nil && e.publisher.ShouldPublish(entry, er.Verdict) {
		if err := e.publisher.Publish(ctx, e.workDir(), e.cfg.Packages); err != nil {
			// Publishing is a post-pipeline action; its failure is reported
			// but the verdict is already final.
			slog.Error("Publishing failed", logfields.Channel(channel), logfields.Error(err))
		} else {
			er.Published = true
		}
	}

	_ = e.bus.Publish(EntryCompleted{RunID: runID, Channel: channel, Verdict: er.Verdict})
	e.recorder.ObserveEntryDuration(channel, er.FinishedAt.Sub(er.StartedAt))
	e.recorder.IncEntryVerdict(channel, string(er.Verdict))
	slog.Info("Entry completed",
		logfields.RunID(runID),
		logfields.Channel(channel),
		logfields.Verdict(string(er.Verdict)))
	return er
}

// resolveEnv materializes the global environment. Secure values go through
// the secret store; failures are collected per name so packages that require
// the secret fail while unrelated packages proceed.
func (e *Engine) resolveEnv(ctx context.Context) (map[string]string, map[string]error) {
	env := make(map[string]string, len(e.cfg.Env))
	secretErrs := make(map[string]error)

	for _, v := range e.cfg.Env {
		if !v.IsSecure() {
			env[v.Name] = v.Value
			continue
		}
		if e.secrets == nil {
			secretErrs[v.Name] = secrets.ErrNoStore
			continue
		}
		plain, err := e.secrets.Resolve(ctx, v.Name, v.Secure)
		if err != nil {
			slog.Warn("Secret resolution failed", slog.String("name", v.Name), logfields.Error(err))
			secretErrs[v.Name] = err
			continue
		}
		env[v.Name] = plain
	}
	return env, secretErrs
}

func (e *Engine) workDir() string {
	if e.cfg.Project.Repo != "" {
		return e.cfg.Project.Repo
	}
	return "."
}
