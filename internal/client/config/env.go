package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables read by parseEnv.
const (
	EnvBackendAddr    = "COURIAL_BACKEND_ADDR"
	EnvDatabasePath   = "COURIAL_DB_PATH"
	EnvStorageSecret  = "COURIAL_STORAGE_SECRET"
	EnvDeviceToken    = "COURIAL_DEVICE_TOKEN"
	EnvBillingAPIKey  = "COURIAL_BILLING_API_KEY"
	EnvReadinessDelay = "COURIAL_READINESS_DELAY"
	EnvResendCooldown = "COURIAL_RESEND_COOLDOWN"
	EnvRequestTimeout = "COURIAL_REQUEST_TIMEOUT"
	EnvRetryInterval  = "COURIAL_RETRY_INTERVAL"
	EnvMetricsAddr    = "COURIAL_METRICS_ADDR"
	EnvVerbose        = "COURIAL_VERBOSE"
)

// parseEnv overlays cfg with values from envFile (if it exists) and then
// from the process environment, which wins over the file.
func parseEnv(cfg *Config, envFile string) error {
	vals := map[string]string{}
	if envFile != "" {
		fileVals, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			vals = fileVals
		case errors.Is(err, fs.ErrNotExist):
		default:
			return fmt.Errorf("read env file %s: %w", envFile, err)
		}
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := vals[key]
		return v, ok
	}

	for key, dst := range map[string]*string{
		EnvBackendAddr:   &cfg.BackendAddr,
		EnvDatabasePath:  &cfg.DatabasePath,
		EnvStorageSecret: &cfg.StorageSecret,
		EnvDeviceToken:   &cfg.DeviceToken,
		EnvBillingAPIKey: &cfg.BillingAPIKey,
		EnvMetricsAddr:   &cfg.MetricsAddr,
	} {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	for key, dst := range map[string]*time.Duration{
		EnvReadinessDelay: &cfg.ReadinessDelay,
		EnvResendCooldown: &cfg.ResendCooldown,
		EnvRequestTimeout: &cfg.RequestTimeout,
		EnvRetryInterval:  &cfg.RetryInterval,
	} {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}

	if v, ok := lookup(EnvVerbose); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvVerbose, err)
		}
		cfg.Verbose = b
	}
	return nil
}
