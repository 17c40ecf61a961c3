package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Init creates a new configuration file with example content
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Config{
		Project: ProjectConfig{Name: "myproject", Repo: "."},
		Tool:    ToolConfig{Binary: "cargo"},
		Matrix: MatrixConfig{
			Channels:          []string{"stable", "beta", "nightly-2016-07-07", "nightly"},
			AllowFailures:     []string{"nightly"},
			PublishingChannel: "stable",
		},
		Branches: []string{"master"},
		Env: []EnvVar{
			{Name: "RUST_BACKTRACE", Value: "1"},
		},
		Packages: []Package{
			{
				Name:  "core",
				Dir:   "core",
				Steps: []string{"build", "doc", "test"},
				Features: FeatureFlags{
					Base:     []string{"postgres", "sqlite"},
					Extended: []string{"postgres", "sqlite", "unstable"},
				},
				DocsDir: "docs",
			},
			{
				Name:  "cli",
				Dir:   "cli",
				Steps: []string{"build", "test"},
			},
		},
		Database: DatabaseConfig{
			// {channel} is replaced per matrix entry so databases are
			// provisioned fresh and isolated for each entry.
			Provision: "createdb myproject_test_{channel}",
			Teardown:  "dropdb --if-exists myproject_test_{channel}",
			URL:       "postgres://localhost/myproject_test_{channel}",
		},
		Notifications: NotificationsConfig{
			Webhook: WebhookConfig{URL: "https://hooks.example.com/ci"},
			On: PolicyConfig{
				Start:   "never",
				Success: "change",
				Failure: "always",
			},
		},
		Publish: PublishConfig{
			OutputDir: "./public-docs",
			BaseURL:   "https://docs.example.com",
		},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("failed to marshal example config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
