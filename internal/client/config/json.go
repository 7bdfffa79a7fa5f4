package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

var ErrMissing = errors.New("required setting missing")

// Duration reads either a Go duration string like "3s" or integer
// nanoseconds from JSON.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case float64:
		*d = Duration(time.Duration(x))
	case string:
		p, err := time.ParseDuration(x)
		if err != nil {
			return err
		}
		*d = Duration(p)
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}

// JSONConfig is the on-disk layout of the config file. Absent fields leave
// the current value alone.
type JSONConfig struct {
	BackendAddr    *string   `json:"backend_addr"`
	DatabasePath   *string   `json:"database_path"`
	StorageSecret  *string   `json:"storage_secret"`
	DeviceToken    *string   `json:"device_token"`
	BillingAPIKey  *string   `json:"billing_api_key"`
	ReadinessDelay *Duration `json:"readiness_delay"`
	ResendCooldown *Duration `json:"resend_cooldown"`
	RequestTimeout *Duration `json:"request_timeout"`
	RetryInterval  *Duration `json:"retry_interval"`
	MetricsAddr    *string   `json:"metrics_addr"`
	Verbose        *bool     `json:"verbose"`
}

// parseJSON overlays cfg with the fields present in the file at path.
func parseJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var jc JSONConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&cfg.BackendAddr, jc.BackendAddr)
	setString(&cfg.DatabasePath, jc.DatabasePath)
	setString(&cfg.StorageSecret, jc.StorageSecret)
	setString(&cfg.DeviceToken, jc.DeviceToken)
	setString(&cfg.BillingAPIKey, jc.BillingAPIKey)
	setString(&cfg.MetricsAddr, jc.MetricsAddr)
	setDuration(&cfg.ReadinessDelay, jc.ReadinessDelay)
	setDuration(&cfg.ResendCooldown, jc.ResendCooldown)
	setDuration(&cfg.RequestTimeout, jc.RequestTimeout)
	setDuration(&cfg.RetryInterval, jc.RetryInterval)
	if jc.Verbose != nil {
		cfg.Verbose = *jc.Verbose
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *Duration) {
	if v != nil {
		*dst = time.Duration(*v)
	}
}
