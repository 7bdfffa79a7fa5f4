package otp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/courial/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verifier struct {
	mu    sync.Mutex
	codes []string
	err   error
	gate  chan struct{}
}

func (v *verifier) verify(ctx context.Context, code string) error {
	if v.gate != nil {
		<-v.gate
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.codes = append(v.codes, code)
	return v.err
}

func (v *verifier) Codes() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.codes...)
}

type resender struct{ calls int }

func (r *resender) resend(context.Context) error { r.calls++; return nil }

func newEntry(v *verifier, r *resender) (*Entry, *clock.FakeClock) {
	clk := clock.Fake(time.Unix(0, 0))
	return NewEntry(clk, 0, v.verify, r.resend), clk
}

func typeCode(t *testing.T, e *Entry, code string) error {
	t.Helper()
	var err error
	for i, d := range code {
		err = e.Type(context.Background(), i, d)
	}
	return err
}

func TestEntry_SixDigitsVerifyExactlyOnce(t *testing.T) {
	v := &verifier{}
	e, _ := newEntry(v, &resender{})

	require.NoError(t, typeCode(t, e, "123456"))

	assert.Equal(t, []string{"123456"}, v.Codes())
	assert.Equal(t, Accepted, e.View().State)
}

func TestEntry_FiveDigitsDoNotVerify(t *testing.T) {
	v := &verifier{}
	e, _ := newEntry(v, &resender{})

	require.NoError(t, typeCode(t, e, "12345"))

	assert.Empty(t, v.Codes())
	view := e.View()
	assert.Equal(t, Entering, view.State)
	assert.Equal(t, 5, view.Focus)
	assert.ErrorIs(t, e.Submit(context.Background()), ErrIncomplete)
}

func TestEntry_FocusAdvancesAndStopsAtLastBox(t *testing.T) {
	e, _ := newEntry(&verifier{}, &resender{})
	require.Equal(t, Idle, e.View().State)

	require.NoError(t, e.Type(context.Background(), 0, '7'))
	assert.Equal(t, 1, e.View().Focus)

	require.NoError(t, e.Type(context.Background(), 5, '9'))
	assert.Equal(t, 5, e.View().Focus)
}

func TestEntry_BackspaceOnEmptyMovesFocusOnly(t *testing.T) {
	e, _ := newEntry(&verifier{}, &resender{})
	require.NoError(t, typeCode(t, e, "123"))

	require.NoError(t, e.Backspace(3))

	view := e.View()
	assert.Equal(t, 2, view.Focus)
	assert.Equal(t, "3", view.Digits[2])
	assert.Equal(t, "123", view.Code())
}

func TestEntry_BackspaceOnFilledClears(t *testing.T) {
	e, _ := newEntry(&verifier{}, &resender{})
	require.NoError(t, typeCode(t, e, "12"))

	require.NoError(t, e.Backspace(1))
	require.NoError(t, e.Backspace(1))

	view := e.View()
	assert.Equal(t, 0, view.Focus)
	assert.Equal(t, "1", view.Code())
}

func TestEntry_InvalidInput(t *testing.T) {
	e, _ := newEntry(&verifier{}, &resender{})
	assert.ErrorIs(t, e.Type(context.Background(), 6, '1'), ErrPosition)
	assert.ErrorIs(t, e.Type(context.Background(), -1, '1'), ErrPosition)
	assert.ErrorIs(t, e.Type(context.Background(), 0, 'a'), ErrNotDigit)
	assert.ErrorIs(t, e.Backspace(9), ErrPosition)
}

func TestEntry_RejectionKeepsDigitsAndCooldown(t *testing.T) {
	v := &verifier{err: ErrCodeRejected}
	e, clk := newEntry(v, &resender{})
	e.Start()
	clk.Advance(10 * time.Second)

	err := typeCode(t, e, "111111")
	require.ErrorIs(t, err, ErrCodeRejected)

	view := e.View()
	assert.Equal(t, Entering, view.State)
	assert.Equal(t, "111111", view.Code())
	assert.Equal(t, ErrCodeRejected.Error(), view.Error)
	assert.Equal(t, 50, view.Cooldown)

	v.mu.Lock()
	v.err = nil
	v.mu.Unlock()

	require.NoError(t, e.Type(context.Background(), 5, '2'))
	assert.Empty(t, e.View().Error)
	assert.Equal(t, []string{"111111", "111112"}, v.Codes())
	assert.Equal(t, Accepted, e.View().State)
}

func TestEntry_ManualSubmitAfterRejection(t *testing.T) {
	v := &verifier{err: ErrCodeRejected}
	e, _ := newEntry(v, &resender{})
	require.ErrorIs(t, typeCode(t, e, "123456"), ErrCodeRejected)

	require.ErrorIs(t, e.Submit(context.Background()), ErrCodeRejected)
	assert.Len(t, v.Codes(), 2)
}

func TestEntry_AcceptedIsFinal(t *testing.T) {
	e, _ := newEntry(&verifier{}, &resender{})
	require.NoError(t, typeCode(t, e, "123456"))

	assert.ErrorIs(t, e.Type(context.Background(), 0, '9'), ErrFinished)
	assert.ErrorIs(t, e.Submit(context.Background()), ErrFinished)
	ok, err := e.Resend(context.Background())
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestEntry_SubmitWhileVerifyingIsBusy(t *testing.T) {
	v := &verifier{gate: make(chan struct{})}
	e, _ := newEntry(v, &resender{})
	require.NoError(t, typeCode(t, e, "12345"))

	done := make(chan error, 1)
	go func() { done <- e.Type(context.Background(), 5, '6') }()
	require.Eventually(t, func() bool { return e.View().State == Verifying }, time.Second, time.Millisecond)

	assert.ErrorIs(t, e.Submit(context.Background()), ErrBusy)
	assert.ErrorIs(t, e.Type(context.Background(), 0, '1'), ErrBusy)
	assert.ErrorIs(t, e.Backspace(0), ErrBusy)

	close(v.gate)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"123456"}, v.Codes())
}

func TestEntry_ResendBeforeCooldownIsNoop(t *testing.T) {
	r := &resender{}
	e, clk := newEntry(&verifier{}, r)
	e.Start()
	require.NoError(t, typeCode(t, e, "123"))
	clk.Advance(59 * time.Second)

	ok, err := e.Resend(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, r.calls)
	assert.Equal(t, "123", e.View().Code())
	assert.Equal(t, 1, e.View().Cooldown)
}

func TestEntry_ResendAtZeroResets(t *testing.T) {
	r := &resender{}
	e, clk := newEntry(&verifier{}, r)
	e.Start()
	require.NoError(t, typeCode(t, e, "123"))
	clk.Advance(60 * time.Second)
	require.Zero(t, e.View().Cooldown)
	require.Zero(t, clk.Pending())

	ok, err := e.Resend(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, r.calls)

	view := e.View()
	assert.Equal(t, Idle, view.State)
	assert.Empty(t, view.Code())
	assert.Equal(t, 0, view.Focus)
	assert.Equal(t, 60, view.Cooldown)

	clk.Advance(time.Second)
	assert.Equal(t, 59, e.View().Cooldown)
}

func TestEntry_ResendFailureShowsError(t *testing.T) {
	e := NewEntry(clock.Fake(time.Unix(0, 0)), time.Second, (&verifier{}).verify, func(context.Context) error {
		return errors.New("sms failed")
	})

	ok, err := e.Resend(context.Background())
	assert.True(t, ok)
	assert.Error(t, err)
	assert.Equal(t, "sms failed", e.View().Error)
}

func TestEntry_ResendWithoutStartArmsCooldown(t *testing.T) {
	r := &resender{}
	e, clk := newEntry(&verifier{}, r)

	ok, err := e.Resend(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 60, e.View().Cooldown)
	assert.Equal(t, 1, clk.Pending())

	clk.Advance(60 * time.Second)
	require.Zero(t, e.View().Cooldown)

	ok, err = e.Resend(context.Background())
	require.NoError(t, err)
	assert.True(t, ok, "cooldown ran out, so a second resend goes through")
	assert.Equal(t, 2, r.calls)
}

func TestEntry_StopCancelsCooldown(t *testing.T) {
	e, clk := newEntry(&verifier{}, &resender{})
	e.Start()
	clk.Advance(5 * time.Second)

	e.Stop()
	require.Zero(t, clk.Pending())
	clk.Advance(time.Minute)
	assert.Equal(t, 55, e.View().Cooldown)
}
