package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvLocal       = "local"
	EnvProduction  = "production"

	defaultWriteDebounce = 100 * time.Millisecond
	defaultSessionMaxAge = 60 * time.Minute
)

type Config struct {
	Port           string
	DataDir        string
	StaticDir      string
	Environment    string   // ENV: production, development, local
	AllowedOrigins []string // CORS: from ALLOWED_ORIGINS
	BaseURL        string
	Version        string

	OAuthRedirectURL      string
	GoogleClientID        string
	GoogleClientSecret    string
	MicrosoftClientID     string
	MicrosoftClientSecret string
	MicrosoftTenant       string

	WriteDebounce time.Duration
	SessionMaxAge time.Duration

	RedisURI string // optional; enables the shared login limiter
}

// Load reads configuration from v. Environment variables are matched by
// upper-cased key; a config file is read when TASKLIST_CONFIG is set.
func Load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()

	v.SetDefault("port", "8080")
	v.SetDefault("data_dir", "data")
	v.SetDefault("static_dir", "public")
	v.SetDefault("env", EnvDevelopment)
	v.SetDefault("allowed_origins", "http://localhost:3000")
	v.SetDefault("microsoft_tenant", "common")
	v.SetDefault("app_version", "dev")

	if path := v.GetString("tasklist_config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	port := strings.TrimSpace(v.GetString("port"))
	baseURL := strings.TrimRight(getString(v, "base_url", "http://localhost:"+port), "/")

	debounce, err := writeDebounce(v)
	if err != nil {
		return nil, err
	}
	maxAge, err := sessionMaxAge(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:                  port,
		DataDir:               v.GetString("data_dir"),
		StaticDir:             v.GetString("static_dir"),
		Environment:           strings.ToLower(strings.TrimSpace(v.GetString("env"))),
		AllowedOrigins:        parseOrigins(v.GetString("allowed_origins")),
		BaseURL:               baseURL,
		Version:               v.GetString("app_version"),
		OAuthRedirectURL:      getString(v, "oauth_redirect_url", baseURL+"/api/auth/oauth/callback"),
		GoogleClientID:        v.GetString("google_client_id"),
		GoogleClientSecret:    v.GetString("google_client_secret"),
		MicrosoftClientID:     v.GetString("microsoft_client_id"),
		MicrosoftClientSecret: v.GetString("microsoft_client_secret"),
		MicrosoftTenant:       v.GetString("microsoft_tenant"),
		WriteDebounce:         debounce,
		SessionMaxAge:         maxAge,
		RedisURI:              v.GetString("redis_uri"),
	}
	if cfg.Port == "" {
		return nil, fmt.Errorf("port is empty")
	}
	return cfg, nil
}

// writeDebounce prefers WRITE_DEBOUNCE (a duration) over the older
// DB_WRITE_DEBOUNCE_MS (integer milliseconds).
func writeDebounce(v *viper.Viper) (time.Duration, error) {
	if s := strings.TrimSpace(v.GetString("write_debounce")); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return 0, fmt.Errorf("invalid WRITE_DEBOUNCE %q", s)
		}
		return d, nil
	}
	if ms := v.GetInt("db_write_debounce_ms"); ms > 0 {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return defaultWriteDebounce, nil
}

// sessionMaxAge reads SESSION_MAX_AGE as a duration. SESSION_MAX_AGE_HOURS
// is still honoured and means hours.
func sessionMaxAge(v *viper.Viper) (time.Duration, error) {
	if s := strings.TrimSpace(v.GetString("session_max_age")); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return 0, fmt.Errorf("invalid SESSION_MAX_AGE %q", s)
		}
		return d, nil
	}
	if h := v.GetFloat64("session_max_age_hours"); h > 0 {
		return time.Duration(h * float64(time.Hour)), nil
	}
	return defaultSessionMaxAge, nil
}

func getString(v *viper.Viper, key, defaultValue string) string {
	if value := strings.TrimSpace(v.GetString(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseOrigins(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// OAuthEnabled reports whether both client id and secret are set for provider.
func (c *Config) OAuthEnabled(provider string) bool {
	switch provider {
	case "google":
		return c.GoogleClientID != "" && c.GoogleClientSecret != ""
	case "microsoft":
		return c.MicrosoftClientID != "" && c.MicrosoftClientSecret != ""
	}
	return false
}
