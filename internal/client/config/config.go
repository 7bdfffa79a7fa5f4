package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// DefaultRetryInterval is how often a running client retries effects.
const DefaultRetryInterval = 30 * time.Second

// Config holds runtime settings for the Courial client.
//
// Units: the delay, cooldown and timeout fields are time.Duration values.
type Config struct {
	BackendAddr    string
	DatabasePath   string
	StorageSecret  string
	DeviceToken    string
	BillingAPIKey  string
	ReadinessDelay time.Duration
	ResendCooldown time.Duration
	RequestTimeout time.Duration
	RetryInterval  time.Duration
	MetricsAddr    string
	Verbose        bool
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.BackendAddr = "127.0.0.1:50051"
	c.DatabasePath = "courial.db"
	c.ReadinessDelay = 100 * time.Millisecond
	c.ResendCooldown = 60 * time.Second
	c.RequestTimeout = 15 * time.Second
	c.RetryInterval = DefaultRetryInterval
}

// Validate reports settings the client cannot start without.
func (c *Config) Validate() error {
	if c.BackendAddr == "" {
		return fmt.Errorf("backend address: %w", ErrMissing)
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database path: %w", ErrMissing)
	}
	if c.StorageSecret == "" {
		return fmt.Errorf("storage secret: %w", ErrMissing)
	}
	return nil
}

// Load builds a Config from defaults, then the JSON file named by --config,
// then the .env file and COURIAL_* environment, then flags set on fs.
// Later sources take precedence over earlier ones.
func Load(fs *pflag.FlagSet) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if path, _ := fs.GetString(FlagConfig); path != "" {
		if err := parseJSON(cfg, path); err != nil {
			return nil, err
		}
	}

	envFile, _ := fs.GetString(FlagEnvFile)
	if err := parseEnv(cfg, envFile); err != nil {
		return nil, err
	}

	if err := applyFlags(cfg, fs); err != nil {
		return nil, err
	}
	return cfg, nil
}
