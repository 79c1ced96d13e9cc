package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	APIOrigin      string        `mapstructure:"API_ORIGIN"`
	HostLocation   string        `mapstructure:"HOST_LOCATION"`
	MountMarker    string        `mapstructure:"MOUNT_MARKER"`
	APIUsername    string        `mapstructure:"API_USERNAME"`
	APIPassword    string        `mapstructure:"API_PASSWORD"`
	APITokenSecret string        `mapstructure:"API_TOKEN_SECRET"`
	FetchTimeout   time.Duration `mapstructure:"FETCH_TIMEOUT"`
	RenderWait     time.Duration `mapstructure:"RENDER_WAIT"`
	SessionTTL     time.Duration `mapstructure:"SESSION_TTL"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ChartScriptURL string        `mapstructure:"CHART_SCRIPT_URL"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	CountsStore    string        `mapstructure:"COUNTS_STORE"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	SQLitePath     string        `mapstructure:"SQLITE_PATH"`
	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
}

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

var envKeys = []string{
	"PORT",
	"ENV",
	"LOG_LEVEL",
	"API_ORIGIN",
	"HOST_LOCATION",
	"MOUNT_MARKER",
	"API_USERNAME",
	"API_PASSWORD",
	"API_TOKEN_SECRET",
	"FETCH_TIMEOUT",
	"RENDER_WAIT",
	"SESSION_TTL",
	"REQUEST_TIMEOUT",
	"CHART_SCRIPT_URL",
	"CORS_ORIGINS",
	"COUNTS_STORE",
	"DATABASE_URL",
	"DB_MAX_CONNS",
	"DB_MIN_CONNS",
	"SQLITE_PATH",
	"AUTH_SIGNING_KEY",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MOUNT_MARKER", "/owa/")
	v.SetDefault("FETCH_TIMEOUT", "15s")
	v.SetDefault("RENDER_WAIT", "2s")
	v.SetDefault("SESSION_TTL", "30m")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("CHART_SCRIPT_URL", "https://cdn.jsdelivr.net/npm/chart.js@4.4.1/dist/chart.umd.min.js")
	v.SetDefault("CORS_ORIGINS", "http://localhost:8080")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("SQLITE_PATH", "lbac.db")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.APIOrigin == "" && cfg.HostLocation == "" && cfg.CountsStore == "" {
		return nil, fmt.Errorf("API_ORIGIN or HOST_LOCATION is required")
	}

	if cfg.IsDev() && cfg.AuthSigningKey == "" && cfg.CountsStore != "" {
		log.Println("WARNING: count API is served without authentication (ENV=development, AUTH_SIGNING_KEY unset).")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAPIOrigin returns the origin the Data Client talks to. An explicit
// API_ORIGIN wins; otherwise HOST_LOCATION is truncated before MOUNT_MARKER.
// With neither set and a local counts store configured, the dashboard talks
// to its own count API on PORT.
func (c *Config) ResolvedAPIOrigin() (string, error) {
	if c.APIOrigin != "" {
		return strings.TrimRight(c.APIOrigin, "/"), nil
	}
	if c.HostLocation != "" {
		idx := strings.Index(c.HostLocation, c.MountMarker)
		if c.MountMarker == "" || idx < 0 {
			return "", fmt.Errorf("HOST_LOCATION %q does not contain mount marker %q", c.HostLocation, c.MountMarker)
		}
		return c.HostLocation[:idx], nil
	}
	if c.CountsStore != "" {
		return "http://localhost:" + c.Port, nil
	}
	return "", fmt.Errorf("no API origin configured")
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if _, err := c.ResolvedAPIOrigin(); err != nil {
		return err
	}

	switch c.CountsStore {
	case "":
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when COUNTS_STORE is %q", StorePostgres)
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when COUNTS_STORE is %q", StoreSQLite)
		}
	default:
		return fmt.Errorf("COUNTS_STORE must be \"\", %q or %q, got %q", StorePostgres, StoreSQLite, c.CountsStore)
	}

	if c.IsProduction() && c.CountsStore != "" && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required in production when the count API is served")
	}

	if c.APIUsername != "" && c.APITokenSecret != "" {
		return fmt.Errorf("API_USERNAME and API_TOKEN_SECRET are mutually exclusive")
	}

	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive, got %s", c.FetchTimeout)
	}
	if c.RenderWait < 0 {
		return fmt.Errorf("RENDER_WAIT must not be negative, got %s", c.RenderWait)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}

	return nil
}
