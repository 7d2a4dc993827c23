package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admi-n/auditgpt/src/internal"
	"github.com/admi-n/auditgpt/src/internal/download"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"API_KEY", "GEMINI_API_KEY", "POLYGONSCAN_API_KEY", "ETHERSCAN_API_KEY",
		"AUDITGPT_ENGINE_PRIMARY_API_KEY", "AUDITGPT_SERVER_ADDR", "AUDITGPT_EXPLORER_API_KEY"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gemini", s.Engine.Primary.Provider)
	assert.Equal(t, "gemini-3-pro-preview", s.Engine.Primary.Model)
	assert.Equal(t, 32768, s.Engine.Primary.ThinkingBudget)
	assert.Equal(t, "gemini-2.5-flash", s.Engine.Secondary.Model)
	assert.Equal(t, 0, s.Engine.Secondary.ThinkingBudget)
	assert.Equal(t, "137", s.Explorer.ChainID)
	assert.Equal(t, 2*time.Second, s.Monitor.Interval)
	assert.Equal(t, 400*time.Millisecond, s.Server.Pacing)
	assert.Empty(t, s.Engine.Primary.APIKey)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeSettings(t, `engine:
  primary:
    provider: openai
    model: gpt-4o
    timeout: 90s
  secondary:
    provider: ""
server:
  addr: 0.0.0.0:9000
cache:
  driver: mysql
  dsn: "root:pw@tcp(localhost:3306)/auditgpt"
  ttl: 1h
`)
	t.Setenv("AUDITGPT_SERVER_ADDR", "127.0.0.1:7000")
	t.Setenv("API_KEY", "engine-key")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", s.Engine.Primary.Provider)
	assert.Equal(t, 90*time.Second, s.Engine.Primary.Timeout)
	assert.Equal(t, "127.0.0.1:7000", s.Server.Addr)
	assert.Equal(t, "engine-key", s.Engine.Primary.APIKey)
	assert.Equal(t, time.Hour, s.Cache.TTL)

	mc := s.ManagerConfig()
	assert.Equal(t, "engine-key", mc.Primary.APIKey)
	assert.Nil(t, mc.Secondary)
}

func TestGeminiKeyAliasFeedsBothTiers(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("ETHERSCAN_API_KEY", "ABCDEFGHIJKLMNOPQRSTUVWXYZ12345678")

	s, err := Load("")
	require.NoError(t, err)
	mc := s.ManagerConfig()
	require.NotNil(t, mc.Secondary)
	assert.Equal(t, "g-key", mc.Primary.APIKey)
	assert.Equal(t, "g-key", mc.Secondary.APIKey)
	assert.Equal(t, 32768, mc.Primary.ThinkingBudget)
	assert.Equal(t, "ABCDEFGHIJKLMNOPQRSTUVWXYZ12345678", s.EtherscanConfig().APIKey)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name    string
		content string
	}{
		{"unknown provider", "engine:\n  primary:\n    provider: bard\n"},
		{"unknown cache driver", "cache:\n  driver: sqlite\n  dsn: x\n"},
		{"cache without dsn", "cache:\n  driver: pgx\n"},
		{"unknown output format", "output:\n  format: pdf\n"},
		{"bad proxy", "proxy: ftp://127.0.0.1:21\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeSettings(t, tt.content))
			assert.ErrorIs(t, err, internal.ErrConfiguration)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestInitDBRejectsUnknownDriver(t *testing.T) {
	_, _, err := InitDB(context.Background(), "sqlite3", "file::memory:")
	assert.ErrorIs(t, err, internal.ErrConfiguration)

	assert.Equal(t, "pgx", sqlDriverName(download.DialectPostgres))
	assert.Equal(t, "mysql", sqlDriverName(download.DialectMySQL))
}

func TestOpenCacheDisabled(t *testing.T) {
	cache, closeFn, err := OpenCache(context.Background(), CacheSettings{})
	require.NoError(t, err)
	assert.Nil(t, cache)
	assert.NoError(t, closeFn())
}
