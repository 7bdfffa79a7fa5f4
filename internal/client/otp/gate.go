// Package otp implements one-time-password delivery and verification for
// phone sign-in, and the six-digit entry state machine that drives it.
//
// A Gate runs in one of two modes. Strict mode sends real SMS messages and
// compares codes exactly. Sandbox mode accepts any well-formed code and
// sends nothing; it exists for local development only and can be reached
// only from binaries built with the debug tag:
//
//	go build -tags debug -ldflags "-X github.com/dmitrijs2005/courial/internal/client/otp.BuildVariant=development" ./cmd/client
//
// and only when COURIAL_OTP_SANDBOX=true is set in the environment.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"os"
	"regexp"

	"github.com/dmitrijs2005/courial/internal/client/metrics"
	"github.com/dmitrijs2005/courial/internal/common"
	"github.com/dmitrijs2005/courial/internal/logging"
)

// CodeLength is the number of digits in a code.
const CodeLength = 6

// BuildVariant labels the build. Release pipelines leave it at
// "production"; it is set with -ldflags -X.
var BuildVariant = "production"

// Mode is the verification mode of a Gate.
type Mode int

const (
	ModeStrict Mode = iota
	ModeSandbox
)

func (m Mode) String() string {
	if m == ModeSandbox {
		return "sandbox"
	}
	return "strict"
}

// signals are the inputs to the mode decision. OptIn and Variant are only
// read if every earlier signal allows sandbox mode.
type signals struct {
	Debug   bool
	OptIn   func() string
	Variant func() string
}

func decide(s signals) Mode {
	if !s.Debug {
		return ModeStrict
	}
	if s.OptIn() != "true" {
		return ModeStrict
	}
	if s.Variant() == "production" {
		return ModeStrict
	}
	return ModeSandbox
}

// SMSSender delivers a code to a phone number.
type SMSSender interface {
	Send(ctx context.Context, phone, code string) error
}

type Gate struct {
	sms     SMSSender
	log     logging.Logger
	metrics *metrics.Recorder
	optIn   func() string
	variant func() string
}

// GateOption configures a Gate.
type GateOption func(*Gate)

func WithGateMetrics(m *metrics.Recorder) GateOption { return func(g *Gate) { g.metrics = m } }

func NewGate(sms SMSSender, log logging.Logger, opts ...GateOption) *Gate {
	g := &Gate{
		sms:     sms,
		log:     log,
		optIn:   func() string { return os.Getenv(common.SandboxOptInEnv) },
		variant: func() string { return BuildVariant },
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Mode decides the current mode. Nothing is cached between calls.
func (g *Gate) Mode() Mode {
	if !debugBuild {
		return ModeStrict
	}
	return decide(signals{Debug: debugBuild, OptIn: g.optIn, Variant: g.variant})
}

var codePattern = regexp.MustCompile(`^\d{6}$`)

// WellFormed reports whether code is exactly six ASCII digits.
func WellFormed(code string) bool { return codePattern.MatchString(code) }

// Validate checks an entered code against the expected one.
func (g *Gate) Validate(entered, expected string) bool {
	return validate(g.Mode(), entered, expected)
}

func validate(mode Mode, entered, expected string) bool {
	if !WellFormed(entered) {
		return false
	}
	if mode == ModeSandbox {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(entered), []byte(expected)) == 1
}

// Send delivers code to phone. In sandbox mode nothing leaves the process.
func (g *Gate) Send(ctx context.Context, phone, code string) error {
	mode := g.Mode()
	if mode == ModeSandbox {
		g.log.Debug(ctx, "sandbox mode, sms not sent", "phone", phone)
		g.metrics.Send(mode.String(), nil)
		return nil
	}
	err := g.sms.Send(ctx, phone, code)
	g.metrics.Send(mode.String(), err)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	return nil
}

var codeMax = big.NewInt(1_000_000)

// GenerateCode returns a uniformly random six-digit code.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeMax)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
