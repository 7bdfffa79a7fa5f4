// Package bootstrap brings a session from cold storage to a routed,
// fully synchronised state each time the app comes to the foreground.
//
// The order is fixed: hydrate the store, normalise the user id, wait for
// the readiness barrier, start the session effects, resolve navigation.
// After that, Run keeps effects and navigation in step with every change
// to the session.
package bootstrap

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/courial/internal/client/effects"
	"github.com/dmitrijs2005/courial/internal/client/identity"
	"github.com/dmitrijs2005/courial/internal/client/navigation"
	"github.com/dmitrijs2005/courial/internal/client/readiness"
	"github.com/dmitrijs2005/courial/internal/client/session"
	"github.com/dmitrijs2005/courial/internal/clock"
	"github.com/dmitrijs2005/courial/internal/logging"
	"github.com/google/uuid"
)

// Result is what a foreground pass decided.
type Result struct {
	Route    navigation.Route
	Redirect bool
	Migrated bool
	Session  session.Session
}

type Orchestrator struct {
	store      *session.Store
	normalizer *identity.Normalizer
	scheduler  *effects.Scheduler
	clock      clock.Clock
	delay      time.Duration
	log        logging.Logger
	watcher    *navigation.Watcher

	mu      sync.Mutex
	barrier *readiness.Barrier
}

// New wires an orchestrator. redirect receives every navigation change
// observed by Run; it may be nil.
func New(store *session.Store, scheduler *effects.Scheduler, clk clock.Clock, delay time.Duration, log logging.Logger, redirect func(navigation.Route)) *Orchestrator {
	if redirect == nil {
		redirect = func(navigation.Route) {}
	}
	return &Orchestrator{
		store:      store,
		normalizer: identity.NewNormalizer(log),
		scheduler:  scheduler,
		clock:      clk,
		delay:      delay,
		log:        log,
		watcher:    navigation.NewWatcher(navigation.GroupNone, redirect),
	}
}

// Foreground runs one bootstrap pass. A failed hydrate is logged and the
// pass continues with an empty session.
func (o *Orchestrator) Foreground(ctx context.Context) (Result, error) {
	if err := o.store.Hydrate(ctx); err != nil {
		o.log.Warn(ctx, "continuing with empty session", "err", err)
	}
	o.store.ResetEffects()

	migrated, err := o.normalizer.Normalize(ctx, o.store)
	if err != nil {
		o.log.Warn(ctx, "identity normalization failed", "err", err)
	}

	b := readiness.New(o.clock, o.delay, o.store.Hydrated())
	o.mu.Lock()
	if o.barrier != nil {
		o.barrier.Stop()
	}
	o.barrier = b
	o.mu.Unlock()

	b.Start()
	if err := b.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("wait for readiness: %w", err)
	}
	o.scheduler.Evaluate(ctx, true)

	snap := o.store.Snapshot()
	route, redirect := navigation.Resolve(navigation.Input{
		Ready:           true,
		IsOnboarded:     snap.IsOnboarded,
		IsAuthenticated: snap.IsAuthenticated,
		CurrentGroup:    o.watcher.Current(),
	})
	o.watcher.Observe(snap)
	o.watcher.SetReady(true)

	return Result{Route: route, Redirect: redirect, Migrated: migrated, Session: snap}, nil
}

// Ready reports whether the current foreground's barrier has fired.
func (o *Orchestrator) Ready() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.barrier != nil && o.barrier.Ready()
}

// Evaluate re-checks every effect against the current session.
func (o *Orchestrator) Evaluate(ctx context.Context) {
	o.scheduler.Evaluate(ctx, o.Ready())
}

// Run re-evaluates effects and navigation after every session change until
// ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	updates, cancel := o.store.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-updates:
			if !ok {
				return nil
			}
			o.watcher.Observe(s)
			o.Evaluate(ctx)
		}
	}
}

// Group is the navigation group the user is in now.
func (o *Orchestrator) Group() navigation.Group { return o.watcher.Current() }

// SetGroup records that the user moved to g.
func (o *Orchestrator) SetGroup(g navigation.Group) { o.watcher.SetGroup(g) }

// CompleteOnboarding marks the onboarding flow as done.
func (o *Orchestrator) CompleteOnboarding(ctx context.Context) error {
	snap, err := o.store.Update(ctx, func(s *session.Session) { s.IsOnboarded = true })
	if err != nil {
		return err
	}
	o.watcher.Observe(snap)
	return nil
}

// SignIn marks the session authenticated for phone after a verified OTP.
// A different phone starts a new user record.
func (o *Orchestrator) SignIn(ctx context.Context, phone, accessToken string) error {
	snap, err := o.store.Update(ctx, func(s *session.Session) {
		s.IsOnboarded = true
		s.IsAuthenticated = true
		if s.User == nil || s.User.Phone != phone {
			s.User = &session.UserRecord{ID: uuid.NewString(), Phone: phone, CurrentPlan: session.PlanFree}
		}
		s.User.AccessToken = accessToken
	})
	if err != nil {
		return err
	}
	o.watcher.Observe(snap)
	o.Evaluate(ctx)
	return nil
}

// Logout tears the session down.
func (o *Orchestrator) Logout(ctx context.Context) error {
	if err := o.store.Logout(ctx); err != nil {
		return err
	}
	o.watcher.Observe(o.store.Snapshot())
	return nil
}

// Background stops the pending readiness timer and further evaluations
// until the next Foreground. In-flight effects keep running and may still
// write to the session.
func (o *Orchestrator) Background() {
	o.mu.Lock()
	if o.barrier != nil {
		o.barrier.Stop()
		o.barrier = nil
	}
	o.mu.Unlock()
	o.watcher.SetReady(false)
}

// Wait blocks until every effect started so far has finished.
func (o *Orchestrator) Wait() { o.scheduler.Wait() }

// Close stops timers and waits for in-flight effects.
func (o *Orchestrator) Close() {
	o.Background()
	o.scheduler.Wait()
}
