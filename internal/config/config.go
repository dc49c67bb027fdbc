package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration loaded from config.toml in the
// worker's data directory.
type Config struct {
	Worker    WorkerConfig  `toml:"worker"`
	Journal   JournalConfig `toml:"journal"`
	Manifests []string      `toml:"manifests,omitempty"`
}

// WorkerConfig describes the worker identity and listeners.
type WorkerConfig struct {
	// Human-readable name for this worker, reported in introspection.
	Name string `toml:"name"`
	// WebSocket listen address (e.g. "127.0.0.1:9310"). Nil means the
	// worker accepts only Unix-socket connections.
	Listen *string `toml:"listen,omitempty"`
	// HeartbeatSeconds is the interval of the worker.status broadcast.
	// Zero disables it.
	HeartbeatSeconds int `toml:"heartbeat_seconds"`
}

// JournalConfig controls the command/event journal.
type JournalConfig struct {
	Enabled        bool `toml:"enabled"`
	RetentionHours int  `toml:"retention_hours"`
}

var validWorkerName = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateWorkerName checks that name is non-empty and contains only
// alphanumeric characters, hyphens, or underscores.
func ValidateWorkerName(name string) error {
	if name == "" || !validWorkerName.MatchString(name) {
		return fmt.Errorf("worker name must be non-empty and alphanumeric (with - or _), got: %q", name)
	}
	return nil
}

// defaultName derives a worker name from the HOSTNAME or HOST environment
// variable, sanitising invalid characters to hyphens. Falls back to
// "domainwire" if neither variable is set.
func defaultName() string {
	raw := os.Getenv("HOSTNAME")
	if raw == "" {
		raw = os.Getenv("HOST")
	}
	if raw == "" {
		return "domainwire"
	}
	out := make([]byte, len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_' {
			out[i] = c
		} else {
			out[i] = '-'
		}
	}
	return string(out)
}

// LoadConfig reads config.toml from dataDir, applies environment variable
// overrides, and validates the worker name before returning.
func LoadConfig(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, "config.toml")

	cfg := &Config{
		Worker: WorkerConfig{
			Name:             defaultName(),
			HeartbeatSeconds: 15,
		},
		Journal: JournalConfig{
			Enabled:        true,
			RetentionHours: 72,
		},
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if cfg.Worker.Name == "" {
			cfg.Worker.Name = defaultName()
		}
	}

	// Override from env vars.
	if name := os.Getenv("DOMAINWIRE_WORKER_NAME"); name != "" {
		cfg.Worker.Name = name
	}
	if cfg.Worker.Listen == nil {
		if listen := os.Getenv("DOMAINWIRE_LISTEN"); listen != "" {
			cfg.Worker.Listen = &listen
		}
	}
	if v := os.Getenv("DOMAINWIRE_JOURNAL"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("parsing DOMAINWIRE_JOURNAL: %w", err)
		}
		cfg.Journal.Enabled = enabled
	}

	if err := ValidateWorkerName(cfg.Worker.Name); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultDataDir returns the data directory: $DOMAINWIRE_DATA_DIR if set,
// otherwise ~/.domainwire.
func DefaultDataDir() string {
	if dir := os.Getenv("DOMAINWIRE_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".domainwire"
	}
	return filepath.Join(home, ".domainwire")
}
