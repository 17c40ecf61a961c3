package config

import (
	"time"

	"git.home.luguber.info/inful/matrixci/internal/errors"
	"git.home.luguber.info/inful/matrixci/internal/toolchain"
)

var validSteps = map[string]bool{
	"build": true,
	"doc":   true,
	"test":  true,
}

var validPolicies = map[string]bool{
	"always": true,
	"never":  true,
	"change": true,
}

// Validate checks the configuration for structural problems. A validation
// failure here is a config error: fatal before any matrix entry runs.
func (c *Config) Validate() error {
	if c.Project.Name == "" {
		return errors.ConfigError("project.name is required")
	}

	// Matrix expansion performs its own checks (empty list, duplicates,
	// pinned nightly uniqueness); run it once here so a malformed matrix
	// fails at load time.
	entries, err := toolchain.ExpandMatrix(c.Matrix.Channels, c.Matrix.AllowFailures)
	if err != nil {
		return err
	}

	pub, err := toolchain.ParseChannel(c.Matrix.PublishingChannel)
	if err != nil {
		return errors.ConfigError("invalid publishing channel").
			WithContext("channel", c.Matrix.PublishingChannel)
	}
	declared := false
	for _, e := range entries {
		if e.Channel == pub {
			declared = true
			break
		}
	}
	if !declared {
		return errors.ConfigError("publishing channel is not in the matrix").
			WithContext("channel", pub.String())
	}

	for _, b := range c.Branches {
		if b == "" {
			return errors.ConfigError("branch allow-list contains an empty entry")
		}
	}

	if len(c.Packages) == 0 {
		return errors.ConfigError("at least one package is required")
	}
	pkgNames := make(map[string]bool, len(c.Packages))
	for _, pkg := range c.Packages {
		if pkg.Name == "" {
			return errors.ConfigError("package without a name")
		}
		if pkgNames[pkg.Name] {
			return errors.ConfigError("duplicate package").WithContext("package", pkg.Name)
		}
		pkgNames[pkg.Name] = true
		for _, s := range pkg.Steps {
			if !validSteps[s] {
				return errors.ConfigError("unknown step").
					WithContext("package", pkg.Name).
					WithContext("step", s)
			}
		}
	}

	secureNames := make(map[string]bool)
	envNames := make(map[string]bool)
	for _, e := range c.Env {
		if e.Name == "" {
			return errors.ConfigError("env entry without a name")
		}
		if envNames[e.Name] {
			return errors.ConfigError("duplicate env entry").WithContext("name", e.Name)
		}
		envNames[e.Name] = true
		if e.Value != "" && e.Secure != "" {
			return errors.ConfigError("env entry has both value and secure").
				WithContext("name", e.Name)
		}
		if e.IsSecure() {
			secureNames[e.Name] = true
		}
	}
	if len(secureNames) > 0 && c.Secrets.IdentityFile == "" {
		return errors.ConfigError("secure env values require secrets.identity_file")
	}
	for _, pkg := range c.Packages {
		for _, name := range pkg.RequiredSecrets {
			if !secureNames[name] {
				return errors.ConfigError("required secret is not declared as a secure env entry").
					WithContext("package", pkg.Name).
					WithContext("secret", name)
			}
		}
	}

	for _, p := range []struct{ event, policy string }{
		{"start", c.Notifications.On.Start},
		{"success", c.Notifications.On.Success},
		{"failure", c.Notifications.On.Failure},
	} {
		if !validPolicies[p.policy] {
			return errors.ConfigError("invalid notification policy").
				WithContext("event", p.event).
				WithContext("policy", p.policy)
		}
	}
	if c.Notifications.NATS.URL != "" && c.Notifications.NATS.Subject == "" {
		return errors.ConfigError("nats notifications require a subject")
	}

	if c.Database.Enabled() && c.Database.URL == "" {
		return errors.ConfigError("database.url is required when provisioning is configured")
	}

	if c.Daemon != nil {
		for _, s := range c.Daemon.Schedules {
			if s.Branch == "" {
				return errors.ConfigError("schedule without a branch")
			}
			if _, err := time.ParseDuration(s.Every); err != nil {
				return errors.ConfigError("invalid schedule interval").
					WithContext("branch", s.Branch).
					WithContext("every", s.Every)
			}
		}
	}

	return nil
}

// BranchAllowed reports whether a triggering event for the branch may create
// pipeline runs. Branches outside the allow-list produce zero runs.
func (c *Config) BranchAllowed(branch string) bool {
	for _, b := range c.Branches {
		if b == branch {
			return true
		}
	}
	return false
}

// PublishingChannel returns the parsed publishing channel. Validate has
// already guaranteed it parses.
func (c *Config) PublishingChannel() toolchain.Channel {
	ch, _ := toolchain.ParseChannel(c.Matrix.PublishingChannel)
	return ch
}
