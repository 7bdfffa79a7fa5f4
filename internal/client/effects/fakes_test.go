package effects

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/courial/internal/client/session"
)

type fakePush struct {
	mu    sync.Mutex
	calls int
	res   PushResult
	err   error
}

func (f *fakePush) Register(ctx context.Context) (PushResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.res, f.err
}

func (f *fakePush) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeBilling struct {
	mu           sync.Mutex
	initErr      error
	unconfigured bool
	identifyErr  error
	snapshot     *Snapshot
	fetchErr     error
	identified   []string
	fetches      int
	// block, when set, holds FetchSnapshot until closed.
	block chan struct{}
}

func (f *fakeBilling) Initialize(ctx context.Context) error { return f.initErr }
func (f *fakeBilling) IsConfigured() bool                   { return !f.unconfigured }

func (f *fakeBilling) Identify(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identified = append(f.identified, userID)
	return f.identifyErr
}

func (f *fakeBilling) FetchSnapshot(ctx context.Context) (*Snapshot, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return f.snapshot, f.fetchErr
}

func (f *fakeBilling) DeriveState(s *Snapshot) PlanState { return DerivePlanState(s) }

func (f *fakeBilling) Fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

type fakeResolver struct {
	mu    sync.Mutex
	calls []session.UserRecord
	res   ResolveResult
	err   error
}

func (f *fakeResolver) Resolve(ctx context.Context, user session.UserRecord) (ResolveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, user)
	return f.res, f.err
}

func (f *fakeResolver) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeDiscount struct {
	mu        sync.Mutex
	calls     []session.UserRecord
	checkedAt *time.Time
	fail      bool
	err       error
	// gate, when set, holds Check until closed.
	gate chan struct{}
}

func (f *fakeDiscount) Check(ctx context.Context, user session.UserRecord) (DiscountResult, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, user)
	if f.err != nil {
		return DiscountResult{}, f.err
	}
	if f.fail {
		return DiscountResult{Success: false, Error: "not eligible"}, nil
	}
	return DiscountResult{Success: true, CheckedAt: f.checkedAt}, nil
}

func (f *fakeDiscount) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fetchStep struct {
	release chan struct{}
	snap    *Snapshot
	err     error
}

// steppedBilling answers FetchSnapshot calls in call order from steps, each
// held until its release channel is closed. Calls past the script return
// no snapshot at once. entered receives the index of every call.
type steppedBilling struct {
	mu      sync.Mutex
	steps   []fetchStep
	calls   int
	entered chan int
}

func newSteppedBilling(steps ...fetchStep) *steppedBilling {
	return &steppedBilling{steps: steps, entered: make(chan int, 8)}
}

func (f *steppedBilling) Initialize(ctx context.Context) error              { return nil }
func (f *steppedBilling) IsConfigured() bool                                { return true }
func (f *steppedBilling) Identify(ctx context.Context, userID string) error { return nil }
func (f *steppedBilling) DeriveState(s *Snapshot) PlanState                 { return DerivePlanState(s) }

func (f *steppedBilling) FetchSnapshot(ctx context.Context) (*Snapshot, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.mu.Unlock()

	f.entered <- i
	if i >= len(f.steps) {
		return nil, nil
	}
	<-f.steps[i].release
	return f.steps[i].snap, f.steps[i].err
}

func (f *steppedBilling) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// syncFinishes reports every FinishSubscriptionSync call after it lands.
type syncFinishes struct {
	Store
	done chan string
}

func (s syncFinishes) FinishSubscriptionSync(userID string, ok bool) {
	s.Store.FinishSubscriptionSync(userID, ok)
	s.done <- userID
}
