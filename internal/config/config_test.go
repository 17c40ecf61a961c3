package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
project:
  name: myproject
matrix:
  channels: [stable, beta, nightly]
  allow_failures: [nightly]
packages:
  - name: core
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "matrixci.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMinimalAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "cargo", cfg.Tool.Binary)
	assert.Equal(t, "stable", cfg.Matrix.PublishingChannel)
	assert.Equal(t, []string{"master"}, cfg.Branches)

	require.Len(t, cfg.Packages, 1)
	assert.Equal(t, []string{"build", "doc", "test"}, cfg.Packages[0].Steps)
	assert.Equal(t, "core", cfg.Packages[0].Dir)

	assert.Equal(t, "never", cfg.Notifications.On.Start)
	assert.Equal(t, "change", cfg.Notifications.On.Success)
	assert.Equal(t, "always", cfg.Notifications.On.Failure)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("MATRIXCI_TEST_HOOK", "https://hooks.example.com/x")
	cfg, err := Load(writeConfig(t, minimalYAML+`
notifications:
  webhook:
    url: ${MATRIXCI_TEST_HOOK}
`))
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example.com/x", cfg.Notifications.Webhook.URL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidateRejectsBadStep(t *testing.T) {
	_, err := Load(writeConfig(t, `
project:
  name: myproject
matrix:
  channels: [stable]
packages:
  - name: core
    steps: [build, bench]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown step")
}

func TestValidateRejectsDuplicateChannels(t *testing.T) {
	_, err := Load(writeConfig(t, `
project:
  name: myproject
matrix:
  channels: [stable, stable]
packages:
  - name: core
`))
	require.Error(t, err)
}

func TestValidateRejectsPublishingChannelOutsideMatrix(t *testing.T) {
	_, err := Load(writeConfig(t, `
project:
  name: myproject
matrix:
  channels: [beta, nightly]
packages:
  - name: core
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publishing channel")
}

func TestValidateRejectsBadPolicy(t *testing.T) {
	_, err := Load(writeConfig(t, minimalYAML+`
notifications:
  on:
    success: sometimes
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notification policy")
}

func TestValidateSecureEnvNeedsIdentityFile(t *testing.T) {
	_, err := Load(writeConfig(t, minimalYAML+`
env:
  - name: DB_PASSWORD
    secure: YWdlLWNpcGhlcnRleHQ=
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "identity_file")
}

func TestValidateRequiredSecretMustBeDeclared(t *testing.T) {
	_, err := Load(writeConfig(t, `
project:
  name: myproject
matrix:
  channels: [stable]
packages:
  - name: core
    required_secrets: [DB_PASSWORD]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required secret")
}

func TestValidateScheduleInterval(t *testing.T) {
	_, err := Load(writeConfig(t, minimalYAML+`
daemon:
  schedules:
    - branch: master
      every: fortnightly
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule interval")
}

func TestBranchAllowed(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.True(t, cfg.BranchAllowed("master"))
	assert.False(t, cfg.BranchAllowed("feature/x"))
}

func TestInitWritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matrixci.yaml")
	require.NoError(t, Init(path, false))

	// Re-initializing without force must refuse to overwrite.
	require.Error(t, Init(path, false))
	require.NoError(t, Init(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "myproject", cfg.Project.Name)
	assert.Len(t, cfg.Matrix.Channels, 4)
}
