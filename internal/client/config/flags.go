package config

import (
	"time"

	"github.com/spf13/pflag"
)

// Flag names.
const (
	FlagConfig         = "config"
	FlagEnvFile        = "env-file"
	FlagBackendAddr    = "addr"
	FlagDatabasePath   = "db"
	FlagStorageSecret  = "secret"
	FlagDeviceToken    = "device-token"
	FlagBillingAPIKey  = "billing-key"
	FlagReadinessDelay = "readiness-delay"
	FlagResendCooldown = "resend-cooldown"
	FlagRequestTimeout = "timeout"
	FlagRetryInterval  = "retry-interval"
	FlagMetricsAddr    = "metrics-addr"
	FlagVerbose        = "verbose"
)

// RegisterFlags adds the configuration flags to fs. Flag defaults are only
// documentation: a flag overrides other sources only when set explicitly.
func RegisterFlags(fs *pflag.FlagSet) {
	var d Config
	d.LoadDefaults()

	fs.StringP(FlagConfig, "c", "", "path to JSON config file")
	fs.String(FlagEnvFile, ".env", "path to .env file")
	fs.StringP(FlagBackendAddr, "a", d.BackendAddr, "backend gRPC address")
	fs.String(FlagDatabasePath, d.DatabasePath, "path to the local database")
	fs.String(FlagStorageSecret, "", "secret protecting the local session")
	fs.String(FlagDeviceToken, "", "push notification device token")
	fs.String(FlagBillingAPIKey, "", "billing provider API key")
	fs.Duration(FlagReadinessDelay, d.ReadinessDelay, "settle delay after the session loads")
	fs.Duration(FlagResendCooldown, d.ResendCooldown, "wait before a new OTP may be requested")
	fs.Duration(FlagRequestTimeout, d.RequestTimeout, "timeout for one backend call")
	fs.Duration(FlagRetryInterval, d.RetryInterval, "how often run re-checks failed effects")
	fs.String(FlagMetricsAddr, "", "address to serve prometheus metrics on")
	fs.BoolP(FlagVerbose, "v", false, "debug logging")
}

// applyFlags copies every flag the user set explicitly into cfg.
func applyFlags(cfg *Config, fs *pflag.FlagSet) error {
	strs := map[string]*string{
		FlagBackendAddr:   &cfg.BackendAddr,
		FlagDatabasePath:  &cfg.DatabasePath,
		FlagStorageSecret: &cfg.StorageSecret,
		FlagDeviceToken:   &cfg.DeviceToken,
		FlagBillingAPIKey: &cfg.BillingAPIKey,
		FlagMetricsAddr:   &cfg.MetricsAddr,
	}
	durations := map[string]*time.Duration{
		FlagReadinessDelay: &cfg.ReadinessDelay,
		FlagResendCooldown: &cfg.ResendCooldown,
		FlagRequestTimeout: &cfg.RequestTimeout,
		FlagRetryInterval:  &cfg.RetryInterval,
	}

	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		if dst, ok := strs[f.Name]; ok {
			*dst, err = fs.GetString(f.Name)
			return
		}
		if dst, ok := durations[f.Name]; ok {
			*dst, err = fs.GetDuration(f.Name)
			return
		}
		if f.Name == FlagVerbose {
			cfg.Verbose, err = fs.GetBool(f.Name)
		}
	})
	return err
}
