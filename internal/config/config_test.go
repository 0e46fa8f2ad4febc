package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, "http://localhost:8080/api/auth/oauth/callback", cfg.OAuthRedirectURL)
	assert.Equal(t, 100*time.Millisecond, cfg.WriteDebounce)
	assert.Equal(t, 60*time.Minute, cfg.SessionMaxAge)
	assert.Equal(t, "common", cfg.MicrosoftTenant)
	assert.Empty(t, cfg.RedisURI)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "Production")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("BASE_URL", "https://tasks.example/")
	t.Setenv("WRITE_DEBOUNCE", "250ms")
	t.Setenv("SESSION_MAX_AGE", "2h")
	t.Setenv("GOOGLE_CLIENT_ID", "gid")
	t.Setenv("GOOGLE_CLIENT_SECRET", "gsecret")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "https://tasks.example", cfg.BaseURL)
	assert.Equal(t, "https://tasks.example/api/auth/oauth/callback", cfg.OAuthRedirectURL)
	assert.Equal(t, 250*time.Millisecond, cfg.WriteDebounce)
	assert.Equal(t, 2*time.Hour, cfg.SessionMaxAge)
	assert.True(t, cfg.OAuthEnabled("google"))
	assert.False(t, cfg.OAuthEnabled("microsoft"))
	assert.False(t, cfg.OAuthEnabled("github"))
}

func TestLoadLegacyKeys(t *testing.T) {
	t.Setenv("DB_WRITE_DEBOUNCE_MS", "40")
	t.Setenv("SESSION_MAX_AGE_HOURS", "3")

	cfg, err := Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, 40*time.Millisecond, cfg.WriteDebounce)
	assert.Equal(t, 3*time.Hour, cfg.SessionMaxAge, "hours mean hours")
}

func TestLoadInvalidDurations(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"WRITE_DEBOUNCE", "soon"},
		{"WRITE_DEBOUNCE", "-5ms"},
		{"SESSION_MAX_AGE", "forever"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load(viper.New())
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasklist.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"7070\"\ndata_dir: /srv/tasks\n"), 0o600))
	t.Setenv("TASKLIST_CONFIG", path)

	cfg, err := Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, "/srv/tasks", cfg.DataDir)
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv("TASKLIST_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load(viper.New())
	assert.Error(t, err)
}
