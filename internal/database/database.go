// Package database provisions the externally managed test database for one
// matrix entry. The database is a scoped resource: acquired once before the
// entry's first step, passed explicitly into step environments, and released
// on every exit path. Each entry gets a fresh database so entries never share
// mutable schema state.
package database

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"

	"git.home.luguber.info/inful/matrixci/internal/errors"
	"git.home.luguber.info/inful/matrixci/internal/logfields"
	"git.home.luguber.info/inful/matrixci/internal/toolchain"
)

// Handle is the scoped database resource for one entry. URL is injected into
// step environments as DATABASE_URL; Release tears the database down.
type Handle struct {
	URL     string
	release func(ctx context.Context) error
}

// Release tears down the provisioned database. Safe to call on a handle with
// no teardown configured.
func (h *Handle) Release(ctx context.Context) error {
	if h == nil || h.release == nil {
		return nil
	}
	return h.release(ctx)
}

// Provisioner acquires a database for one matrix entry.
type Provisioner interface {
	Provision(ctx context.Context, channel toolchain.Channel) (*Handle, error)
}

// NoopProvisioner is used when no database is configured; steps see no
// DATABASE_URL.
type NoopProvisioner struct{}

func (NoopProvisioner) Provision(context.Context, toolchain.Channel) (*Handle, error) {
	return &Handle{}, nil
}

// CommandProvisioner provisions through external infrastructure commands
// (e.g. createdb/dropdb). The {channel} placeholder in the commands and the
// URL is replaced with a slug of the entry's channel so concurrent entries
// get isolated databases.
type CommandProvisioner struct {
	ProvisionCmd string
	TeardownCmd  string
	URLTemplate  string
}

// Provision runs the provisioning command and returns a handle whose release
// runs the teardown command.
func (p *CommandProvisioner) Provision(ctx context.Context, channel toolchain.Channel) (*Handle, error) {
	slug := ChannelSlug(channel)

	if err := runShell(ctx, expand(p.ProvisionCmd, slug)); err != nil {
		return nil, errors.Wrap(err, errors.CategoryDatabase, errors.SeverityError, "database provisioning failed").
			WithContext("channel", channel.String())
	}

	teardown := expand(p.TeardownCmd, slug)
	h := &Handle{
		URL: expand(p.URLTemplate, slug),
		release: func(ctx context.Context) error {
			if teardown == "" {
				return nil
			}
			if err := runShell(ctx, teardown); err != nil {
				// Teardown failure leaves a stale database behind but
				// must not change the entry's verdict.
				slog.Warn("Database teardown failed",
					logfields.Channel(channel.String()),
					logfields.Error(err))
				return err
			}
			return nil
		},
	}

	slog.Debug("Database provisioned",
		logfields.Channel(channel.String()),
		slog.String("url", h.URL))
	return h, nil
}

// ChannelSlug renders a channel identifier safe for use in database names.
func ChannelSlug(channel toolchain.Channel) string {
	return strings.NewReplacer("-", "_", ".", "_").Replace(channel.String())
}

func expand(cmd, slug string) string {
	return strings.ReplaceAll(cmd, "{channel}", slug)
}

func runShell(ctx context.Context, command string) error {
	if command == "" {
		return nil
	}
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	out, err := cmd.CombinedOutput()
	if err != nil {
		slog.Debug("Infrastructure command failed",
			slog.String("command", command),
			slog.String("output", string(out)))
		return err
	}
	return nil
}
