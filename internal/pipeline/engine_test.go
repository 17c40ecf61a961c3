package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/matrixci/internal/config"
	"git.home.luguber.info/inful/matrixci/internal/database"
	"git.home.luguber.info/inful/matrixci/internal/history"
	"git.home.luguber.info/inful/matrixci/internal/runner"
	"git.home.luguber.info/inful/matrixci/internal/toolchain"
)

type fakeNotifier struct {
	started  []string
	finished []Payloadish
}

// Payloadish captures what the engine passed at finish time.
type Payloadish struct {
	Verdict Verdict
	Prev    Verdict
	HasPrev bool
}

func (f *fakeNotifier) NotifyStart(_ context.Context, run *Run) {
	f.started = append(f.started, run.ID)
}

func (f *fakeNotifier) NotifyFinished(_ context.Context, run *Run, prev Verdict, hasPrev bool) {
	f.finished = append(f.finished, Payloadish{Verdict: run.Aggregate, Prev: prev, HasPrev: hasPrev})
}

type fakeHistory struct {
	prev     string
	hasPrev  bool
	recorded []history.RunRecord
	notifier *fakeNotifier
	// notifiedAtRecord captures how many notifications had been dispatched
	// by the time RecordRun ran.
	notifiedAtRecord int
}

func (f *fakeHistory) LastFinalVerdict(context.Context, string) (string, bool, error) {
	return f.prev, f.hasPrev, nil
}

func (f *fakeHistory) RecordRun(_ context.Context, rec history.RunRecord) error {
	f.recorded = append(f.recorded, rec)
	if f.notifier != nil {
		f.notifiedAtRecord = len(f.notifier.finished)
	}
	return nil
}

type fakePublisher struct {
	publishing toolchain.Channel
	published  int
}

func (f *fakePublisher) ShouldPublish(entry toolchain.Entry, verdict Verdict) bool {
	return entry.Channel == f.publishing && verdict == VerdictPass
}

func (f *fakePublisher) Publish(context.Context, string, []config.Package) error {
	f.published++
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Project:  config.ProjectConfig{Name: "acme"},
		Matrix:   config.MatrixConfig{Channels: []string{"stable", "beta", "nightly"}, AllowFailures: []string{"nightly"}},
		Branches: []string{"master"},
		Packages: []config.Package{{Name: "core", Dir: ".", Steps: []string{"build", "test"}}},
	}
}

func newTestEngine(cfg *config.Config, fr *fakeRunner, opts Options) *Engine {
	return NewEngine(cfg, NewSequencer(fr), opts)
}

func TestEngineSkipsBranchOutsideAllowList(t *testing.T) {
	notifier := &fakeNotifier{}
	hist := &fakeHistory{}
	eng := newTestEngine(testConfig(), &fakeRunner{}, Options{Notifier: notifier, History: hist})

	run, err := eng.Execute(context.Background(), "feature/wip", "abc123")

	require.NoError(t, err)
	assert.Nil(t, run, "gated branch must not produce a run")
	assert.Empty(t, notifier.started)
	assert.Empty(t, notifier.finished)
	assert.Empty(t, hist.recorded)
}

func TestEngineRunsAllEntriesAndAggregates(t *testing.T) {
	eng := newTestEngine(testConfig(), &fakeRunner{}, Options{})

	run, err := eng.Execute(context.Background(), "master", "abc123")

	require.NoError(t, err)
	require.NotNil(t, run)
	require.Len(t, run.Entries, 3)
	assert.Equal(t, VerdictPass, run.Aggregate)
	for _, e := range run.Entries {
		assert.Equal(t, VerdictPass, e.Verdict)
	}
}

func TestEngineClassifiesAllowFailureEntries(t *testing.T) {
	// Every step fails; only nightly carries the allow-failure tag.
	cfg := testConfig()
	cfg.Matrix.Channels = []string{"stable", "nightly"}
	fr := &fakeRunner{exits: map[string]int{"build": 1}}
	eng := newTestEngine(cfg, fr, Options{})

	run, err := eng.Execute(context.Background(), "master", "abc123")

	require.NoError(t, err)
	require.Len(t, run.Entries, 2)
	byChannel := map[string]Verdict{}
	for _, e := range run.Entries {
		byChannel[e.Entry.Channel.String()] = e.Verdict
	}
	assert.Equal(t, VerdictFail, byChannel["stable"])
	assert.Equal(t, VerdictAllowedFail, byChannel["nightly"])
	assert.Equal(t, VerdictFail, run.Aggregate)
}

// channelRunner fails steps only for entries whose database URL marks them,
// letting a single run mix passing and failing channels.
type channelRunner struct {
	failMarker string
}

func (c *channelRunner) Run(_ context.Context, inv runner.Invocation) (runner.Result, error) {
	if strings.Contains(inv.Env["DATABASE_URL"], c.failMarker) {
		return runner.Result{ExitStatus: 1}, nil
	}
	return runner.Result{ExitStatus: 0}, nil
}

type channelProvisioner struct{}

func (channelProvisioner) Provision(_ context.Context, ch toolchain.Channel) (*database.Handle, error) {
	return &database.Handle{URL: "postgres://localhost/ci_" + database.ChannelSlug(ch)}, nil
}

func TestEngineAllowFailureOnlyFailureStillPasses(t *testing.T) {
	cfg := testConfig()
	eng := NewEngine(cfg, NewSequencer(&channelRunner{failMarker: "nightly"}), Options{
		Provisioner: channelProvisioner{},
	})

	run, err := eng.Execute(context.Background(), "master", "abc123")

	require.NoError(t, err)
	require.Len(t, run.Entries, 3)
	byChannel := map[string]Verdict{}
	for _, e := range run.Entries {
		byChannel[e.Entry.Channel.String()] = e.Verdict
	}
	assert.Equal(t, VerdictPass, byChannel["stable"])
	assert.Equal(t, VerdictPass, byChannel["beta"])
	assert.Equal(t, VerdictAllowedFail, byChannel["nightly"])
	assert.Equal(t, VerdictPass, run.Aggregate, "allowed failures never flip the aggregate")
}

func TestEngineNotifiesWithBaselineBeforeRecording(t *testing.T) {
	notifier := &fakeNotifier{}
	hist := &fakeHistory{prev: string(VerdictFail), hasPrev: true, notifier: notifier}
	eng := newTestEngine(testConfig(), &fakeRunner{}, Options{Notifier: notifier, History: hist})

	run, err := eng.Execute(context.Background(), "master", "abc123")

	require.NoError(t, err)
	require.NotNil(t, run)
	require.Len(t, notifier.finished, 1)
	assert.Equal(t, VerdictPass, notifier.finished[0].Verdict)
	assert.Equal(t, VerdictFail, notifier.finished[0].Prev)
	assert.True(t, notifier.finished[0].HasPrev)

	// The run is recorded after dispatch so the baseline query saw the
	// previous run, not this one.
	require.Len(t, hist.recorded, 1)
	assert.Equal(t, 1, hist.notifiedAtRecord)
	assert.Equal(t, run.ID, hist.recorded[0].ID)
	require.Len(t, hist.recorded[0].Entries, 3)
}

func TestEnginePublishGate(t *testing.T) {
	pub := &fakePublisher{publishing: toolchain.Stable}
	eng := newTestEngine(testConfig(), &fakeRunner{}, Options{Publisher: pub})

	run, err := eng.Execute(context.Background(), "master", "abc123")

	require.NoError(t, err)
	assert.Equal(t, 1, pub.published, "only the stable entry publishes")
	for _, e := range run.Entries {
		if e.Entry.Channel == toolchain.Stable {
			assert.True(t, e.Published)
		} else {
			assert.False(t, e.Published)
		}
	}
}

func TestEnginePublishSkippedOnFailure(t *testing.T) {
	fr := &fakeRunner{exits: map[string]int{"build": 1}}
	pub := &fakePublisher{publishing: toolchain.Stable}
	eng := newTestEngine(testConfig(), fr, Options{Publisher: pub})

	run, err := eng.Execute(context.Background(), "master", "abc123")

	require.NoError(t, err)
	assert.Equal(t, VerdictFail, run.Aggregate)
	assert.Zero(t, pub.published)
}

func TestEngineEmitsLifecycleEvents(t *testing.T) {
	bus := NewBus()
	var names []string
	for _, n := range []string{EventRunStarted, EventEntryStarted, EventStepCompleted, EventEntryCompleted, EventRunCompleted} {
		name := n
		bus.Subscribe(name, func(e Event) error {
			names = append(names, name)
			return nil
		})
	}
	cfg := testConfig()
	cfg.Matrix.Channels = []string{"stable"}
	cfg.Matrix.AllowFailures = nil
	eng := newTestEngine(cfg, &fakeRunner{}, Options{Bus: bus})

	_, err := eng.Execute(context.Background(), "master", "abc123")

	require.NoError(t, err)
	assert.Equal(t, []string{
		EventRunStarted,
		EventEntryStarted,
		EventStepCompleted, EventStepCompleted,
		EventEntryCompleted,
		EventRunCompleted,
	}, names)
}
