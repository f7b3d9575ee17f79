package engine

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the platform configuration surface. It is read once, at
// platform initialization; there is no persisted state.
type Config struct {
	// QueuesPerDevice is the number of queues created on each device.
	// Queue 0 is synchronous; the rest run asynchronously.
	QueuesPerDevice int `yaml:"queues_per_device"`
	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`
	// Seed seeds the platform's random source. Equal seeds, including
	// the zero value, give reproducible runs.
	Seed int64 `yaml:"seed"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() Config {
	return Config{
		QueuesPerDevice: 2,
		LogLevel:        "info",
		Seed:            0,
	}
}

// LoadConfig builds a Config from defaults, an optional YAML file named by
// the FATHOM_CONFIG environment variable, and FATHOM_* variable overrides,
// in that order.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if path := os.Getenv("FATHOM_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrapf(err, "reading config %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parsing config %s", path)
		}
	}
	if v := os.Getenv("FATHOM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FATHOM_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, errors.Wrap(err, "parsing FATHOM_SEED")
		}
		cfg.Seed = seed
	}
	if v := os.Getenv("FATHOM_QUEUES_PER_DEVICE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, errors.Wrap(err, "parsing FATHOM_QUEUES_PER_DEVICE")
		}
		cfg.QueuesPerDevice = n
	}
	return cfg, cfg.validate()
}

// validate normalizes and checks the configuration.
func (c *Config) validate() error {
	if c.QueuesPerDevice < 1 {
		return Errorf("Config", "queues_per_device must be >= 1, got %d", c.QueuesPerDevice)
	}
	if _, err := c.slogLevel(); err != nil {
		return err
	}
	return nil
}

// slogLevel maps the configured level name onto slog.
func (c *Config) slogLevel() (slog.Level, error) {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, Errorf("Config", "unknown log level %q", c.LogLevel)
	}
}
