package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/matrixci/internal/config"
	"git.home.luguber.info/inful/matrixci/internal/daemon"
	"git.home.luguber.info/inful/matrixci/internal/gitinfo"
	"git.home.luguber.info/inful/matrixci/internal/history"
	"git.home.luguber.info/inful/matrixci/internal/logfields"
	"git.home.luguber.info/inful/matrixci/internal/pipeline"
	"git.home.luguber.info/inful/matrixci/internal/secrets"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"matrixci.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Run struct {
		Branch string `short:"b" help:"Branch to run against (default: current checkout branch)"`
		Commit string `help:"Commit to report (default: current checkout HEAD)"`
	} `cmd:"" help:"Execute the pipeline once for the current checkout"`

	Validate struct{} `cmd:"" help:"Load and validate the configuration"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`

	Encrypt struct {
		Recipient []string `short:"r" required:"" help:"Age recipient public key (repeatable)"`
		Value     string   `arg:"" help:"Plaintext value to encrypt"`
	} `cmd:"" help:"Encrypt a value for use as a secure env entry"`

	Daemon struct{} `cmd:"" help:"Run as a daemon: webhook listener plus branch schedules"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	switch ctx.Command() {
	case "run":
		cfg, err := config.Load(CLI.Config)
		if err != nil {
			slog.Error("Failed to load configuration", logfields.Error(err))
			os.Exit(1)
		}
		passed, err := runOnce(cfg, CLI.Run.Branch, CLI.Run.Commit)
		if err != nil {
			slog.Error("Run failed", logfields.Error(err))
			os.Exit(1)
		}
		if !passed {
			os.Exit(1)
		}
	case "validate":
		if _, err := config.Load(CLI.Config); err != nil {
			slog.Error("Configuration is invalid", logfields.Error(err))
			os.Exit(1)
		}
		fmt.Println("configuration is valid")
	case "init":
		if err := config.Init(CLI.Config, CLI.Init.Force); err != nil {
			slog.Error("Init failed", logfields.Error(err))
			os.Exit(1)
		}
		slog.Info("Configuration written", slog.String("path", CLI.Config))
	case "encrypt <value>":
		ciphertext, err := secrets.Encrypt(CLI.Encrypt.Value, CLI.Encrypt.Recipient)
		if err != nil {
			slog.Error("Encryption failed", logfields.Error(err))
			os.Exit(1)
		}
		fmt.Println(ciphertext)
	case "daemon":
		if err := runDaemon(); err != nil {
			slog.Error("Daemon failed", logfields.Error(err))
			os.Exit(1)
		}
	}
}

// runOnce executes a single pipeline run and reports whether it passed. The
// run history lives next to the daemon's so change policies share a baseline.
func runOnce(cfg *config.Config, branch, commit string) (bool, error) {
	if branch == "" || commit == "" {
		repoBranch, head, err := gitinfo.Resolve(repoDir(cfg))
		if err != nil {
			if branch == "" {
				return false, err
			}
			slog.Warn("Failed to resolve commit from checkout", logfields.Error(err))
		} else {
			if branch == "" {
				branch = repoBranch
			}
			if commit == "" {
				commit = head
			}
		}
	}

	st, err := openHistory(cfg)
	if err != nil {
		return false, err
	}
	defer func() {
		_ = st.Close()
	}()

	engine := daemon.BuildEngine(cfg, pipeline.Options{
		History: st,
		Bus:     pipeline.NewBusWithEventStore(st),
	})
	run, err := engine.Execute(context.Background(), branch, commit)
	if err != nil {
		return false, err
	}
	if run == nil {
		// Branch gate: nothing ran, nothing failed.
		return true, nil
	}
	return run.Aggregate != pipeline.VerdictFail, nil
}

func openHistory(cfg *config.Config) (*history.Store, error) {
	dataDir := ".matrixci"
	if cfg.Daemon != nil && cfg.Daemon.DataDir != "" {
		dataDir = cfg.Daemon.DataDir
	}
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, err
	}
	return history.NewStore(filepath.Join(dataDir, "history.db"))
}

func runDaemon() error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Daemon != nil && cfg.Daemon.DataDir != "" {
		if err := os.MkdirAll(cfg.Daemon.DataDir, 0o750); err != nil {
			return err
		}
	}

	d, err := daemon.New(CLI.Config, cfg)
	if err != nil {
		return err
	}
	return d.Run(ctx)
}

func repoDir(cfg *config.Config) string {
	if cfg.Project.Repo != "" {
		return cfg.Project.Repo
	}
	return "."
}
