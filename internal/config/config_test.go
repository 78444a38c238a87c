package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch_config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	t.Setenv("MISTRAL_API_KEY", "sk-test-1234")
	t.Setenv("REDIS_PASSWORD", "hunter2")

	path := writeConfig(t, `
backend:
  name: mistral
  model: mistral-large-latest
  api_key: os.environ/MISTRAL_API_KEY
run_settings:
  poll_interval_seconds: 30
  retrieve_retries: 5
  max_concurrent: 8
  metadata:
    team: data-gen
redis:
  addr: localhost:6379
  password: os.environ/REDIS_PASSWORD
  db: 2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mistral", cfg.Backend.Name)
	assert.Equal(t, "mistral-large-latest", cfg.Backend.Model)
	assert.Equal(t, "sk-test-1234", cfg.Backend.APIKey)
	assert.Nil(t, cfg.Backend.BaseURL)

	assert.Equal(t, 30*time.Second, cfg.Run.PollInterval())
	assert.Equal(t, 5, cfg.Run.RetrieveRetries)
	assert.Equal(t, 8, cfg.Run.MaxConcurrent)
	assert.Equal(t, "data-gen", cfg.Run.Metadata["team"])

	require.NotNil(t, cfg.Redis)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "hunter2", cfg.Redis.Password)
	assert.Equal(t, 2, cfg.Redis.DB)
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
backend:
  name: openai
  api_key: sk-literal
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, cfg.Run.PollInterval())
	assert.Equal(t, 3, cfg.Run.RetrieveRetries)
	assert.Zero(t, cfg.Run.MaxConcurrent)
	assert.Nil(t, cfg.Redis)
}

func TestLoadUnknownFieldsIgnored(t *testing.T) {
	path := writeConfig(t, `
backend:
  name: openai
  api_key: sk-literal
  organization: org-123
run_settings:
  poll_interval_seconds: 10
  shard_count: 4
telemetry:
  enabled: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Contains(t, cfg.Backend.Overflow, "organization")
	assert.Contains(t, cfg.Run.Overflow, "shard_count")
	assert.Contains(t, cfg.Overflow, "telemetry")
}

func TestLoadMissingAPIKey(t *testing.T) {
	path := writeConfig(t, `
backend:
  name: openai
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
}

func TestLoadMissingBackendName(t *testing.T) {
	path := writeConfig(t, `
backend:
  api_key: sk-literal
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend.name")
}

func TestLoadUnsetEnvVarResolvesEmpty(t *testing.T) {
	path := writeConfig(t, `
backend:
  name: openai
  api_key: os.environ/PILIANG_TEST_UNSET_KEY
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
}

func TestLoadEnvironmentVariablesSection(t *testing.T) {
	t.Setenv("PILIANG_SOURCE_VALUE", "from-env")

	path := writeConfig(t, `
environment_variables:
  PILIANG_EXPORTED: os.environ/PILIANG_SOURCE_VALUE
backend:
  name: openai
  api_key: os.environ/PILIANG_EXPORTED
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Backend.APIKey)
	assert.Equal(t, "from-env", os.Getenv("PILIANG_EXPORTED"))
}

func TestResolveEnvVar(t *testing.T) {
	t.Setenv("PILIANG_RESOLVE_TEST", "resolved")

	assert.Equal(t, "resolved", ResolveEnvVar("os.environ/PILIANG_RESOLVE_TEST"))
	assert.Equal(t, "literal", ResolveEnvVar("literal"))
	assert.Equal(t, "", ResolveEnvVar("os.environ/PILIANG_RESOLVE_MISSING"))

	ptr := "os.environ/PILIANG_RESOLVE_TEST"
	resolved := ResolveEnvVarPtr(&ptr)
	require.NotNil(t, resolved)
	assert.Equal(t, "resolved", *resolved)
	assert.Nil(t, ResolveEnvVarPtr(nil))
}
