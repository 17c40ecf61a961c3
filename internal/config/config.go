// Package config loads and validates the pipeline configuration. The YAML
// surface covers the build matrix, branch gating, per-package steps and
// feature flags, encrypted environment values, database provisioning, and
// notification policies.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the pipeline configuration
type Config struct {
	Project       ProjectConfig       `yaml:"project"`
	Tool          ToolConfig          `yaml:"tool"`
	Matrix        MatrixConfig        `yaml:"matrix"`
	Branches      []string            `yaml:"branches"`
	Env           []EnvVar            `yaml:"env,omitempty"`
	Secrets       SecretsConfig       `yaml:"secrets,omitempty"`
	Packages      []Package           `yaml:"packages"`
	Database      DatabaseConfig      `yaml:"database,omitempty"`
	Notifications NotificationsConfig `yaml:"notifications,omitempty"`
	Publish       PublishConfig       `yaml:"publish,omitempty"`
	Daemon        *DaemonConfig       `yaml:"daemon,omitempty"`
}

// ProjectConfig identifies the project under test.
type ProjectConfig struct {
	Name string `yaml:"name"`
	// Repo is the working checkout the pipeline runs against. Branch and
	// commit metadata for runs is resolved from here unless overridden.
	Repo string `yaml:"repo,omitempty"`
}

// ToolConfig configures the external build/test tool invoked for every step.
type ToolConfig struct {
	Binary string `yaml:"binary,omitempty"`
}

// MatrixConfig declares the toolchain matrix.
type MatrixConfig struct {
	// Channels lists toolchain channel identifiers: stable, beta, nightly,
	// or nightly-YYYY-MM-DD (at most one pinned dated nightly).
	Channels []string `yaml:"channels"`
	// AllowFailures lists channel predicates whose entries are recorded but
	// excluded from the aggregate pass/fail gate. "nightly" covers the
	// whole nightly family.
	AllowFailures []string `yaml:"allow_failures,omitempty"`
	// PublishingChannel designates the single channel whose own success
	// triggers post-pipeline publishing.
	PublishingChannel string `yaml:"publishing_channel,omitempty"`
}

// EnvVar is one global environment entry. Exactly one of Value or Secure is
// set; Secure holds base64-encoded age ciphertext resolved through the secret
// store at run time and never appears as plaintext in this model.
type EnvVar struct {
	Name   string `yaml:"name"`
	Value  string `yaml:"value,omitempty"`
	Secure string `yaml:"secure,omitempty"`
}

// IsSecure reports whether the entry carries an encrypted value.
func (e EnvVar) IsSecure() bool { return e.Secure != "" }

// SecretsConfig points at the age identity used to resolve secure env values.
type SecretsConfig struct {
	IdentityFile string `yaml:"identity_file,omitempty"`
}

// Package is one unit of the multi-package project with its ordered step list.
type Package struct {
	Name  string   `yaml:"name"`
	Dir   string   `yaml:"dir,omitempty"`
	Steps []string `yaml:"steps,omitempty"`
	// Features configures the base and extended flag sets passed to the
	// test step; the channel decides which one applies.
	Features FeatureFlags `yaml:"features,omitempty"`
	// DocsDir holds markdown documentation published on the publishing
	// channel after a passing run.
	DocsDir string `yaml:"docs_dir,omitempty"`
	// RequiredSecrets names secure env entries this package's steps cannot
	// run without. A resolution failure for one of these fails the package;
	// other secrets failing merely logs a warning.
	RequiredSecrets []string `yaml:"required_secrets,omitempty"`
}

// FeatureFlags configures the two feature sets for a package.
type FeatureFlags struct {
	Base     []string `yaml:"base,omitempty"`
	Extended []string `yaml:"extended,omitempty"`
}

// DatabaseConfig configures per-entry database provisioning. Provision and
// Teardown are shell commands run through the external infrastructure; URL is
// exported to steps as DATABASE_URL.
type DatabaseConfig struct {
	Provision string `yaml:"provision,omitempty"`
	Teardown  string `yaml:"teardown,omitempty"`
	URL       string `yaml:"url,omitempty"`
}

// Enabled reports whether database provisioning is configured.
func (d DatabaseConfig) Enabled() bool { return d.Provision != "" }

// NotificationsConfig configures lifecycle event delivery.
type NotificationsConfig struct {
	Webhook WebhookConfig `yaml:"webhook,omitempty"`
	NATS    NATSConfig    `yaml:"nats,omitempty"`
	On      PolicyConfig  `yaml:"on,omitempty"`
}

// WebhookConfig is the outbound HTTP notification endpoint.
type WebhookConfig struct {
	URL string `yaml:"url,omitempty"`
}

// NATSConfig is the optional JetStream notification transport.
type NATSConfig struct {
	URL     string `yaml:"url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// PolicyConfig holds the per-event delivery rule: always, never, or change.
type PolicyConfig struct {
	Start   string `yaml:"start,omitempty"`
	Success string `yaml:"success,omitempty"`
	Failure string `yaml:"failure,omitempty"`
}

// PublishConfig configures the post-pipeline documentation publishing action.
type PublishConfig struct {
	OutputDir string `yaml:"output_dir,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty"`
}

// DaemonConfig configures daemon mode (webhook listener plus scheduler).
type DaemonConfig struct {
	Listen    string     `yaml:"listen,omitempty"`
	DataDir   string     `yaml:"data_dir,omitempty"`
	Schedules []Schedule `yaml:"schedules,omitempty"`
}

// Schedule triggers a periodic run on a branch.
type Schedule struct {
	Branch string `yaml:"branch"`
	Every  string `yaml:"every"`
}

// Load loads configuration from the specified file
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	if err := loadEnvFile(); err != nil {
		// Don't fail if .env doesn't exist, just log it
		fmt.Fprintf(os.Stderr, "Note: .env file not found or couldn't be loaded: %v\n", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// loadEnvFile loads .env from the working directory when present.
func loadEnvFile() error {
	if _, err := os.Stat(".env"); os.IsNotExist(err) {
		return err
	}
	return godotenv.Load()
}
