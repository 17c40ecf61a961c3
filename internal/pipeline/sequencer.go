package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/matrixci/internal/config"
	"git.home.luguber.info/inful/matrixci/internal/errors"
	"git.home.luguber.info/inful/matrixci/internal/features"
	"git.home.luguber.info/inful/matrixci/internal/logfields"
	"git.home.luguber.info/inful/matrixci/internal/runner"
	"git.home.luguber.info/inful/matrixci/internal/toolchain"
)

// EntryContext carries everything one entry's step sequence needs: the entry
// itself, the packages to run, the resolved environment, and the scoped
// database URL. Secrets that failed to resolve are carried as errors so the
// sequencer can fail exactly the packages that require them.
type EntryContext struct {
	Entry    toolchain.Entry
	WorkDir  string
	Packages []config.Package
	// Env is the resolved global environment (plain values plus
	// successfully decrypted secure values).
	Env map[string]string
	// SecretErrs maps secure env names to their resolution errors.
	SecretErrs map[string]error
	// DatabaseURL is the entry's provisioned database, empty when none is
	// configured. Passed to steps as DATABASE_URL, never ambient.
	DatabaseURL string
}

// Sequencer executes an entry's packages and steps strictly in order.
type Sequencer struct {
	runner runner.StepRunner
}

// NewSequencer creates a sequencer that executes steps through the given
// runner.
func NewSequencer(r runner.StepRunner) *Sequencer {
	return &Sequencer{runner: r}
}

// Run executes the entry's full step sequence with short-circuit semantics:
// the first failing step aborts the remaining steps of its package and all
// remaining packages of the entry. There are no retries. The returned results
// are in execution order and contain only steps that actually ran (plus a
// synthetic result for a package whose required secret was unresolved).
func (s *Sequencer) Run(ctx context.Context, ec EntryContext) []StepResult {
	var results []StepResult
	channel := ec.Entry.Channel

	for _, pkg := range ec.Packages {
		if res, failed := s.checkRequiredSecrets(ec, pkg); failed {
			results = append(results, res)
			return results
		}

		sets := features.NewSets(pkg.Features.Base, pkg.Features.Extended)
		selected := sets.Select(channel)

		for _, stepName := range pkg.Steps {
			step := StepName(stepName)
			res := s.runStep(ctx, ec, pkg, step, selected)
			results = append(results, res)

			if !res.Success() {
				slog.Error("Step failed, aborting entry",
					logfields.Channel(channel.String()),
					logfields.Package(pkg.Name),
					logfields.Step(stepName),
					slog.Int("exit_status", res.ExitStatus))
				return results
			}
			slog.Debug("Step completed",
				logfields.Channel(channel.String()),
				logfields.Package(pkg.Name),
				logfields.Step(stepName))
		}
	}

	return results
}

// checkRequiredSecrets fails the package up front when one of its required
// secrets did not resolve. Packages that do not depend on the secret are
// unaffected.
func (s *Sequencer) checkRequiredSecrets(ec EntryContext, pkg config.Package) (StepResult, bool) {
	for _, name := range pkg.RequiredSecrets {
		if err, ok := ec.SecretErrs[name]; ok {
			return StepResult{
				Package:             pkg.Name,
				Step:                StepName(pkg.Steps[0]),
				ExitStatus:          -1,
				Err:                 errors.Wrap(err, errors.CategorySecret, errors.SeverityError, "required secret unresolved").WithContext("secret", name),
				AllowFailureContext: ec.Entry.AllowFailure,
			}, true
		}
	}
	return StepResult{}, false
}

func (s *Sequencer) runStep(ctx context.Context, ec EntryContext, pkg config.Package, step StepName, selected features.Set) StepResult {
	inv := runner.Invocation{
		Subcommand: string(step),
		Dir:        filepath.Join(ec.WorkDir, pkg.Dir),
		Env:        s.stepEnv(ec),
	}
	// Only the test step consumes the channel-selected feature set.
	if step == StepTest {
		inv.Features = selected.Flags
	}

	start := time.Now()
	res, err := s.runner.Run(ctx, inv)
	elapsed := time.Since(start)

	sr := StepResult{
		Package:             pkg.Name,
		Step:                step,
		ExitStatus:          res.ExitStatus,
		Err:                 err,
		AllowFailureContext: ec.Entry.AllowFailure,
		Duration:            elapsed,
	}
	if step == StepTest {
		sr.FeatureSet = selected.Name
	}
	return sr
}

func (s *Sequencer) stepEnv(ec EntryContext) map[string]string {
	if ec.DatabaseURL == "" {
		return ec.Env
	}
	env := make(map[string]string, len(ec.Env)+1)
	for k, v := range ec.Env {
		env[k] = v
	}
	env["DATABASE_URL"] = ec.DatabaseURL
	return env
}
