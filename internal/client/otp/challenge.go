package otp

import (
	"context"
	"errors"
	"sync"

	"github.com/dmitrijs2005/courial/internal/client/metrics"
)

// ErrCodeRejected is returned when an entered code does not verify.
var ErrCodeRejected = errors.New("invalid code, please try again")

// Challenge is one sign-in attempt for a phone number. It owns the code
// that was last sent.
type Challenge struct {
	gate    *Gate
	phone   string
	metrics *metrics.Recorder

	mu   sync.Mutex
	code string
}

func NewChallenge(gate *Gate, phone string, m *metrics.Recorder) *Challenge {
	return &Challenge{gate: gate, phone: phone, metrics: m}
}

// Send generates a fresh code and delivers it, replacing any earlier code.
func (c *Challenge) Send(ctx context.Context) error {
	code, err := GenerateCode()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.code = code
	c.mu.Unlock()
	return c.gate.Send(ctx, c.phone, code)
}

// Verify checks entered against the last code sent.
func (c *Challenge) Verify(_ context.Context, entered string) error {
	c.mu.Lock()
	expected := c.code
	c.mu.Unlock()

	ok := c.gate.Validate(entered, expected)
	c.metrics.Verification(ok)
	if !ok {
		return ErrCodeRejected
	}
	return nil
}

// Phone returns the number the challenge was issued for.
func (c *Challenge) Phone() string { return c.phone }
