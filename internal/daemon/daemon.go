// Package daemon runs the pipeline as a long-lived service: an HTTP webhook
// listener, periodic branch schedules, and live configuration reload.
package daemon

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/matrixci/internal/config"
	"git.home.luguber.info/inful/matrixci/internal/database"
	"git.home.luguber.info/inful/matrixci/internal/errors"
	"git.home.luguber.info/inful/matrixci/internal/gitinfo"
	"git.home.luguber.info/inful/matrixci/internal/history"
	"git.home.luguber.info/inful/matrixci/internal/logfields"
	"git.home.luguber.info/inful/matrixci/internal/metrics"
	"git.home.luguber.info/inful/matrixci/internal/notify"
	"git.home.luguber.info/inful/matrixci/internal/pipeline"
	"git.home.luguber.info/inful/matrixci/internal/publish"
	"git.home.luguber.info/inful/matrixci/internal/runner"
	"git.home.luguber.info/inful/matrixci/internal/secrets"
)

// Daemon hosts the pipeline engine behind a webhook server and scheduler.
type Daemon struct {
	configPath string

	mu  sync.RWMutex
	cfg *config.Config

	history  *history.Store
	registry *prom.Registry
	recorder *metrics.PrometheusRecorder

	server    *Server
	scheduler *Scheduler
	watcher   *ConfigWatcher
	workers   WorkerGroup

	// runMu serializes pipeline runs; entries within a run still execute in
	// parallel.
	runMu sync.Mutex
}

// New creates a daemon from a loaded configuration. The configuration must
// carry a daemon section.
func New(configPath string, cfg *config.Config) (*Daemon, error) {
	if cfg.Daemon == nil {
		return nil, errors.DaemonError("daemon section missing from configuration")
	}

	st, err := history.NewStore(filepath.Join(cfg.Daemon.DataDir, "history.db"))
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryDaemon, "failed to open history store")
	}

	registry := prom.NewRegistry()
	d := &Daemon{
		configPath: configPath,
		cfg:        cfg,
		history:    st,
		registry:   registry,
		recorder:   metrics.NewPrometheusRecorder(registry),
	}
	d.server = NewServer(cfg.Daemon.Listen, d)
	d.scheduler, err = NewScheduler(d)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return d, nil
}

// Run starts all daemon components and blocks until ctx is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	slog.Info("Daemon starting", slog.String("listen", d.Config().Daemon.Listen))

	if err := d.server.Start(); err != nil {
		return err
	}
	if err := d.scheduler.Schedule(d.Config().Daemon.Schedules); err != nil {
		return err
	}
	d.scheduler.Start()

	watcher, err := NewConfigWatcher(d.configPath, d)
	if err != nil {
		slog.Warn("Config watcher unavailable, live reload disabled", logfields.Error(err))
	} else {
		d.watcher = watcher
		if err := watcher.Start(ctx); err != nil {
			slog.Warn("Failed to start config watcher", logfields.Error(err))
		}
	}

	<-ctx.Done()
	return d.shutdown()
}

func (d *Daemon) shutdown() error {
	slog.Info("Daemon shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if d.watcher != nil {
		d.watcher.Stop()
	}
	if err := d.scheduler.Stop(); err != nil {
		slog.Warn("Scheduler shutdown failed", logfields.Error(err))
	}
	if err := d.server.Stop(shutdownCtx); err != nil {
		slog.Warn("HTTP server shutdown failed", logfields.Error(err))
	}
	if err := d.workers.StopAndWait(shutdownCtx); err != nil {
		slog.Warn("Workers did not stop in time", logfields.Error(err))
	}
	return d.history.Close()
}

// Config returns the current configuration snapshot.
func (d *Daemon) Config() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// ReloadConfig swaps in a new validated configuration. Listen address changes
// require a restart and are rejected.
func (d *Daemon) ReloadConfig(newCfg *config.Config) error {
	if newCfg.Daemon == nil {
		return errors.DaemonError("reloaded configuration dropped the daemon section")
	}
	current := d.Config()
	if newCfg.Daemon.Listen != current.Daemon.Listen {
		return errors.DaemonError("listen address change requires daemon restart")
	}

	d.mu.Lock()
	d.cfg = newCfg
	d.mu.Unlock()

	if err := d.scheduler.Reschedule(newCfg.Daemon.Schedules); err != nil {
		return err
	}
	slog.Info("Configuration reloaded")
	return nil
}

// TriggerRun executes one pipeline run asynchronously. commit may be empty;
// it is then resolved from the project checkout.
func (d *Daemon) TriggerRun(branch, commit string) bool {
	return d.workers.Go(func() {
		d.runMu.Lock()
		defer d.runMu.Unlock()
		d.executeRun(context.Background(), branch, commit)
	})
}

func (d *Daemon) executeRun(ctx context.Context, branch, commit string) {
	cfg := d.Config()

	if commit == "" {
		repoBranch, head, err := gitinfo.Resolve(workDir(cfg))
		if err != nil {
			slog.Warn("Failed to resolve commit from checkout", logfields.Error(err))
		} else {
			commit = head
			if branch == "" {
				branch = repoBranch
			}
		}
	}

	engine := BuildEngine(cfg, pipeline.Options{
		History:  d.history,
		Bus:      pipeline.NewBusWithEventStore(d.history),
		Recorder: d.recorder,
	})
	if _, err := engine.Execute(ctx, branch, commit); err != nil {
		slog.Error("Pipeline run failed", logfields.Branch(branch), logfields.Error(err))
	}
}

// BuildEngine assembles an engine from the configuration. The supplied
// options override what the daemon wires; everything else follows the config.
func BuildEngine(cfg *config.Config, opts pipeline.Options) *pipeline.Engine {
	if opts.Secrets == nil && cfg.Secrets.IdentityFile != "" {
		opts.Secrets = secrets.NewAgeStore(cfg.Secrets.IdentityFile)
	}
	if opts.Provisioner == nil && cfg.Database.Enabled() {
		opts.Provisioner = &database.CommandProvisioner{
			ProvisionCmd: cfg.Database.Provision,
			TeardownCmd:  cfg.Database.Teardown,
			URLTemplate:  cfg.Database.URL,
		}
	}
	if opts.Notifier == nil {
		opts.Notifier = buildNotifier(cfg)
	}
	if opts.Publisher == nil {
		opts.Publisher = publish.NewPublisher(cfg.Publish, cfg.PublishingChannel())
	}

	seq := pipeline.NewSequencer(runner.NewToolRunner(cfg.Tool.Binary))
	return pipeline.NewEngine(cfg, seq, opts)
}

// buildNotifier assembles the configured transports. Returns nil when no
// transport is configured so the engine skips notification entirely.
func buildNotifier(cfg *config.Config) pipeline.Notifier {
	var transports []notify.Transport
	if cfg.Notifications.Webhook.URL != "" {
		transports = append(transports, notify.NewWebhookTransport(cfg.Notifications.Webhook.URL))
	}
	if cfg.Notifications.NATS.URL != "" {
		nt, err := notify.NewNATSTransport(cfg.Notifications.NATS.URL, cfg.Notifications.NATS.Subject)
		if err != nil {
			slog.Warn("NATS transport unavailable", logfields.Error(err))
		} else {
			transports = append(transports, nt)
		}
	}
	if len(transports) == 0 {
		return nil
	}
	return notify.NewNotifier(notify.Policies{
		Start:   notify.Policy(cfg.Notifications.On.Start),
		Success: notify.Policy(cfg.Notifications.On.Success),
		Failure: notify.Policy(cfg.Notifications.On.Failure),
	}, transports...)
}

func workDir(cfg *config.Config) string {
	if cfg.Project.Repo != "" {
		return cfg.Project.Repo
	}
	return "."
}
