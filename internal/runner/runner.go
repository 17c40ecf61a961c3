// Package runner invokes the external build/test tool as a subprocess. Steps
// are opaque to the engine: success is exit status 0, nothing else.
package runner

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"

	"git.home.luguber.info/inful/matrixci/internal/errors"
)

// Invocation describes one tool invocation: subcommand, working directory,
// feature flags, and any extra environment on top of the inherited one.
type Invocation struct {
	Subcommand string
	Dir        string
	Features   []string
	Env        map[string]string
}

// Result is the raw outcome of one invocation.
type Result struct {
	ExitStatus int
}

// Success reports whether the invocation exited zero.
func (r Result) Success() bool { return r.ExitStatus == 0 }

// StepRunner executes one tool invocation. The error return is reserved for
// failures to run the tool at all (missing binary, bad working directory); a
// non-zero exit is reported through Result, not the error.
type StepRunner interface {
	Run(ctx context.Context, inv Invocation) (Result, error)
}

// ToolRunner runs the configured tool binary. Output is streamed through to
// the runner's writers so step output appears live in CI logs.
type ToolRunner struct {
	Binary string
	Stdout io.Writer
	Stderr io.Writer
}

// NewToolRunner creates a runner for the given tool binary, streaming output
// to the process's stdout and stderr.
func NewToolRunner(binary string) *ToolRunner {
	return &ToolRunner{Binary: binary, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Run executes the tool with the invocation's subcommand and feature flags in
// the invocation's working directory.
func (r *ToolRunner) Run(ctx context.Context, inv Invocation) (Result, error) {
	args := []string{inv.Subcommand}
	if len(inv.Features) > 0 {
		args = append(args, "--no-default-features", "--features", strings.Join(inv.Features, " "))
	}

	cmd := exec.CommandContext(ctx, r.Binary, args...)
	cmd.Dir = inv.Dir
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	cmd.Env = mergedEnv(inv.Env)

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			return Result{ExitStatus: exitErr.ExitCode()}, nil
		}
		return Result{ExitStatus: -1}, errors.Wrap(err, errors.CategoryRuntime, errors.SeverityError, "failed to run build tool").
			WithContext("binary", r.Binary).
			WithContext("subcommand", inv.Subcommand)
	}

	return Result{ExitStatus: 0}, nil
}

// mergedEnv layers the invocation env over the inherited process environment,
// sorted for deterministic subprocess environments.
func mergedEnv(extra map[string]string) []string {
	if len(extra) == 0 {
		return os.Environ()
	}
	env := os.Environ()
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}
