package otp

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/courial/internal/clock"
)

// DefaultResendCooldown is how long the user waits before asking for a new
// code.
const DefaultResendCooldown = 60 * time.Second

// State is the stage of code entry.
type State int

const (
	Idle State = iota
	Entering
	Complete
	Verifying
	Accepted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Entering:
		return "entering"
	case Complete:
		return "complete"
	case Verifying:
		return "verifying"
	case Accepted:
		return "accepted"
	}
	return "unknown"
}

var (
	ErrPosition   = errors.New("position out of range")
	ErrNotDigit   = errors.New("not a digit")
	ErrBusy       = errors.New("verification in progress")
	ErrIncomplete = errors.New("code incomplete")
	ErrFinished   = errors.New("code already accepted")
)

// VerifyFunc checks a complete code. A nil error accepts it.
type VerifyFunc func(ctx context.Context, code string) error

// ResendFunc dispatches a new code.
type ResendFunc func(ctx context.Context) error

// View is a snapshot of an Entry for rendering.
type View struct {
	State    State
	Digits   [CodeLength]string
	Focus    int
	Error    string
	Cooldown int
}

// Code returns the digits joined.
func (v View) Code() string {
	var b []byte
	for _, d := range v.Digits {
		b = append(b, d...)
	}
	return string(b)
}

// Entry is the six-box code input. Typing into the last empty box submits
// the code automatically; Submit does the same on demand. Only one
// verification runs at a time.
type Entry struct {
	mu       sync.Mutex
	digits   [CodeLength]byte
	focus    int
	state    State
	errMsg   string
	cooldown int
	total    int

	clock   clock.Clock
	timer   clock.Timer
	running bool

	verify VerifyFunc
	resend ResendFunc
}

func NewEntry(clk clock.Clock, cooldown time.Duration, verify VerifyFunc, resend ResendFunc) *Entry {
	if cooldown <= 0 {
		cooldown = DefaultResendCooldown
	}
	return &Entry{
		clock:  clk,
		total:  int(cooldown / time.Second),
		verify: verify,
		resend: resend,
	}
}

// Start begins the resend cooldown for the code that was just sent.
func (e *Entry) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = true
	e.restartCooldownLocked()
}

// Stop cancels the cooldown ticker.
func (e *Entry) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (e *Entry) restartCooldownLocked() {
	if e.timer != nil {
		e.timer.Stop()
	}
	e.cooldown = e.total
	e.timer = e.clock.AfterFunc(time.Second, e.tick)
}

func (e *Entry) tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.cooldown == 0 {
		return
	}
	e.cooldown--
	if e.cooldown > 0 {
		e.timer = e.clock.AfterFunc(time.Second, e.tick)
	} else {
		e.timer = nil
	}
}

// View returns the current state.
func (e *Entry) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := View{State: e.state, Focus: e.focus, Error: e.errMsg, Cooldown: e.cooldown}
	for i, d := range e.digits {
		if d != 0 {
			v.Digits[i] = string(d)
		}
	}
	return v
}

// Type puts digit into box i and moves focus to the next box. Filling the
// last empty box starts verification, blocks until it finishes and returns
// the verifier's error if the code was rejected.
func (e *Entry) Type(ctx context.Context, i int, digit rune) error {
	if i < 0 || i >= CodeLength {
		return ErrPosition
	}
	if digit < '0' || digit > '9' {
		return ErrNotDigit
	}

	e.mu.Lock()
	if err := e.editableLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	e.digits[i] = byte(digit)
	e.errMsg = ""
	if i < CodeLength-1 {
		e.focus = i + 1
	}
	e.state = e.fillStateLocked()
	if e.state != Complete {
		e.mu.Unlock()
		return nil
	}
	code := e.beginVerifyLocked()
	e.mu.Unlock()

	return e.runVerify(ctx, code)
}

// Backspace clears box i. On an empty box it only moves focus back one box.
func (e *Entry) Backspace(i int) error {
	if i < 0 || i >= CodeLength {
		return ErrPosition
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.editableLocked(); err != nil {
		return err
	}
	if e.digits[i] == 0 {
		if i > 0 {
			e.focus = i - 1
		}
		return nil
	}
	e.digits[i] = 0
	e.focus = i
	e.errMsg = ""
	e.state = e.fillStateLocked()
	return nil
}

// Submit verifies the entered code. It returns the verifier's error when
// the code is rejected.
func (e *Entry) Submit(ctx context.Context) error {
	e.mu.Lock()
	if err := e.editableLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	if e.fillStateLocked() != Complete {
		e.mu.Unlock()
		return ErrIncomplete
	}
	code := e.beginVerifyLocked()
	e.mu.Unlock()

	return e.runVerify(ctx, code)
}

// Resend asks for a new code once the cooldown has run out. It clears the
// boxes, starts a fresh cooldown (arming the ticker even if Start was never
// called) and dispatches exactly one code. It reports
// false without doing anything while the cooldown is still running.
func (e *Entry) Resend(ctx context.Context) (bool, error) {
	e.mu.Lock()
	if e.cooldown > 0 || e.state == Verifying || e.state == Accepted {
		e.mu.Unlock()
		return false, nil
	}
	e.digits = [CodeLength]byte{}
	e.focus = 0
	e.errMsg = ""
	e.state = Idle
	e.running = true
	e.restartCooldownLocked()
	e.mu.Unlock()

	if err := e.resend(ctx); err != nil {
		e.mu.Lock()
		e.errMsg = err.Error()
		e.mu.Unlock()
		return true, err
	}
	return true, nil
}

func (e *Entry) editableLocked() error {
	switch e.state {
	case Verifying:
		return ErrBusy
	case Accepted:
		return ErrFinished
	}
	return nil
}

func (e *Entry) fillStateLocked() State {
	n := 0
	for _, d := range e.digits {
		if d != 0 {
			n++
		}
	}
	switch n {
	case 0:
		return Idle
	case CodeLength:
		return Complete
	}
	return Entering
}

func (e *Entry) beginVerifyLocked() string {
	e.state = Verifying
	return string(e.digits[:])
}

func (e *Entry) runVerify(ctx context.Context, code string) error {
	err := e.verify(ctx, code)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.state = Entering
		e.errMsg = err.Error()
		return err
	}
	e.state = Accepted
	e.running = false
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	return nil
}
