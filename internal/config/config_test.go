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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
server:
  port: 9090
openai:
  model: "gpt-4o"
verification:
  cache_ttl: 12h
`

func TestLoad_DefaultsAndEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("EPICOR_BASE_URL", "https://erp.example.com")
	t.Setenv("EPICOR_API_KEY", "epicor-key")

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, "https://erp.example.com", cfg.Epicor.BaseURL)
	assert.Equal(t, 12*time.Hour, cfg.Verification.CacheTTL)
	assert.True(t, cfg.Verification.Enabled)
	assert.True(t, cfg.Verification.DomainMatching)
	assert.InDelta(t, 0.10, cfg.Impact.CriticalRatio, 1e-9)
	assert.InDelta(t, 0.05, cfg.Impact.HighRatio, 1e-9)
	assert.InDelta(t, 0.01, cfg.Impact.MediumRatio, 1e-9)
	assert.False(t, cfg.Lark.Enabled)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestLoad_MissingOpenAIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("EPICOR_BASE_URL", "https://erp.example.com")

	_, err := Load(writeConfig(t, minimalConfig))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai.api_key")
}

func TestLoad_MissingEpicorBaseURL(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("EPICOR_BASE_URL", "")

	_, err := Load(writeConfig(t, minimalConfig))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "epicor.base_url")
}

func TestLoad_InvalidImpactRatios(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("EPICOR_BASE_URL", "https://erp.example.com")

	path := writeConfig(t, minimalConfig+`
impact:
  critical_ratio: 0.01
  high_ratio: 0.05
  medium_ratio: 0.10
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "impact ratios")
}

func TestLoad_LarkEnabledRequiresCredentials(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("EPICOR_BASE_URL", "https://erp.example.com")
	t.Setenv("LARK_APP_ID", "")
	t.Setenv("LARK_APP_SECRET", "")

	path := writeConfig(t, minimalConfig+`
lark:
  enabled: true
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lark")
}
