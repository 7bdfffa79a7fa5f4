// Package common contains shared constants and sentinel errors used across
// the Courial client core.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// SandboxOptInEnv names the environment variable that opts a debug build
// into OTP sandbox mode. Only the literal value "true" counts.
const SandboxOptInEnv = "COURIAL_OTP_SANDBOX"
