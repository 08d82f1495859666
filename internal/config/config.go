// Package config reads client settings from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Backends.
const (
	BackendApex       = "apex"
	BackendPaper      = "paper"
	BackendLongbridge = "longbridge"
)

// Config is the resolved client configuration.
type Config struct {
	Backend     string
	APIURL      string
	SessionFile string
	HTTPTimeout time.Duration
	Credential  string
	MetricsAddr string
}

// FromEnv reads APEX_* variables, falling back to defaults.
func FromEnv() Config {
	return Config{
		Backend:     strings.ToLower(getEnv("APEX_BACKEND", BackendApex)),
		APIURL:      getEnv("APEX_API_URL", "http://localhost:5000/api"),
		SessionFile: getEnv("APEX_SESSION_FILE", filepath.Join(os.TempDir(), "apex-trader-session")),
		HTTPTimeout: getEnvDuration("APEX_HTTP_TIMEOUT", 15*time.Second),
		Credential:  getEnv("APEX_CREDENTIAL", "credential"),
		MetricsAddr: getEnv("APEX_METRICS_ADDR", ""),
	}
}

// Validate checks the backend name and timeout.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendApex, BackendPaper, BackendLongbridge:
	default:
		return fmt.Errorf("unknown backend %q (want apex, paper or longbridge)", c.Backend)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive, got %s", c.HTTPTimeout)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
