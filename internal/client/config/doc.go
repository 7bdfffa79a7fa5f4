// Package config loads runtime configuration for the Courial client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with --config / -c.
//  3. The .env file selected with --env-file, then COURIAL_* variables
//     from the process environment.
//  4. Command-line flags set explicitly, which override everything else.
//
// # JSON schema
//
// Durations can be strings like "100ms" or integer nanoseconds:
//
//	{
//	  "backend_addr": "127.0.0.1:50051",
//	  "database_path": "courial.db",
//	  "readiness_delay": "100ms",
//	  "resend_cooldown": "60s",
//	  "retry_interval": "30s"
//	}
//
// Primary API
//
//   - type Config                        holds every setting
//   - func RegisterFlags(*pflag.FlagSet)  adds the flags to a command
//   - func Load(*pflag.FlagSet)           applies all sources in order
package config
