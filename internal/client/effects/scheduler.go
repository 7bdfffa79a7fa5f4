// Package effects runs the four bootstrap effects of a session: push
// registration, subscription sync, Courial ID resolution and the discount
// check.
//
// Evaluate is cheap and safe to call on every state change. Each effect is
// admitted through its guard in the session store before its collaborator
// call starts; calls run in the background and write their results back
// through Store.Update, re-reading the session at write time. Failures are
// logged and counted, then left for the next evaluation to retry.
package effects

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/courial/internal/client/metrics"
	"github.com/dmitrijs2005/courial/internal/client/session"
	"github.com/dmitrijs2005/courial/internal/common"
	"github.com/dmitrijs2005/courial/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout bounds a single collaborator call.
const DefaultTimeout = 15 * time.Second

// Deps are the collaborators of a Scheduler.
type Deps struct {
	Push     PushRegistrar
	Billing  BillingProvider
	Resolver IdentifierResolver
	Discount DiscountChecker
}

type Scheduler struct {
	store   Store
	deps    Deps
	log     logging.Logger
	metrics *metrics.Recorder
	tracer  trace.Tracer
	timeout time.Duration

	wg sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithMetrics(m *metrics.Recorder) Option { return func(s *Scheduler) { s.metrics = m } }

func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithTracer(t trace.Tracer) Option { return func(s *Scheduler) { s.tracer = t } }

func NewScheduler(store Store, deps Deps, log logging.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:   store,
		deps:    deps,
		log:     log,
		tracer:  otel.Tracer("courial/effects"),
		timeout: DefaultTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Evaluate checks every effect against one snapshot of the session and
// starts those whose preconditions hold and whose guard admits them.
// Nothing runs until ready is true.
func (s *Scheduler) Evaluate(ctx context.Context, ready bool) {
	if !ready {
		return
	}
	snap := s.store.Snapshot()
	if !snap.IsAuthenticated || snap.User == nil {
		return
	}
	user := *snap.User

	if s.deps.Push != nil && s.store.TryBegin(session.EffectPushRegistration) {
		s.spawn(ctx, func(ctx context.Context) { s.registerPush(ctx, user.ID) })
	}

	if s.deps.Billing != nil && user.ID != "" && s.store.TryBeginSubscriptionSync(user.ID) {
		s.spawn(ctx, func(ctx context.Context) { s.syncSubscription(ctx, user.ID) })
	}

	if s.deps.Resolver != nil && !user.HasCourialID() && s.store.TryBegin(session.EffectCourialID) {
		s.spawn(ctx, func(ctx context.Context) { s.resolveCourialID(ctx, user.Clone()) })
	}

	if s.deps.Discount != nil && user.HasCourialID() && user.DiscountCheckedAt == nil {
		s.spawn(ctx, func(ctx context.Context) { s.CheckDiscount(ctx) })
	}
}

// Wait blocks until every background call started so far has finished.
func (s *Scheduler) Wait() { s.wg.Wait() }

// spawn runs fn in the background. Calls are not cancelled when the
// caller's context is; they keep running until done or timed out.
func (s *Scheduler) spawn(ctx context.Context, fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		fn(ctx)
	}()
}

// observe wraps one effect attempt in a span and records its outcome.
func (s *Scheduler) observe(ctx context.Context, name session.EffectName, userID string, fn func(ctx context.Context) (string, error)) bool {
	ctx, span := s.tracer.Start(ctx, "effect."+string(name),
		trace.WithAttributes(attribute.String("effect", string(name))))
	defer span.End()

	outcome, err := fn(ctx)
	if err != nil {
		outcome = metrics.OutcomeFailure
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.Warn(ctx, "effect failed", "effect", string(name), "user_id", userID, "err", err)
	} else {
		s.log.Debug(ctx, "effect finished", "effect", string(name), "user_id", userID, "outcome", outcome)
	}
	span.SetAttributes(attribute.String("outcome", outcome))
	s.metrics.Effect(string(name), outcome)
	return err == nil
}

func (s *Scheduler) registerPush(ctx context.Context, userID string) {
	ok := s.observe(ctx, session.EffectPushRegistration, userID, func(ctx context.Context) (string, error) {
		res, err := s.deps.Push.Register(ctx)
		if err != nil {
			return "", fmt.Errorf("register push: %w", err)
		}
		if !res.Success {
			return "", fmt.Errorf("register push: %w", rejection(res.Error))
		}
		return metrics.OutcomeSuccess, nil
	})
	s.store.Finish(session.EffectPushRegistration, ok)
}

func (s *Scheduler) syncSubscription(ctx context.Context, userID string) {
	configured := true
	ok := s.observe(ctx, session.EffectSubscriptionSync, userID, func(ctx context.Context) (string, error) {
		b := s.deps.Billing
		if err := b.Initialize(ctx); err != nil {
			return "", fmt.Errorf("initialize billing: %w", err)
		}
		if !b.IsConfigured() {
			configured = false
			return metrics.OutcomeSkipped, nil
		}
		if err := b.Identify(ctx, userID); err != nil {
			return "", fmt.Errorf("identify billing user: %w", err)
		}
		snap, err := b.FetchSnapshot(ctx)
		if err != nil {
			return "", fmt.Errorf("fetch subscription: %w", err)
		}
		if snap == nil {
			s.commitPlan(ctx, userID, PlanState{Plan: session.PlanFree})
			return metrics.OutcomeSuccess, nil
		}
		s.commitPlan(ctx, userID, b.DeriveState(snap))
		return metrics.OutcomeSuccess, nil
	})

	switch {
	case !ok:
		s.commitPlan(ctx, userID, PlanState{Plan: session.PlanFree})
		s.store.FinishSubscriptionSync(userID, false)
	case !configured:
		s.log.Info(ctx, "billing provider not configured, using free plan", "user_id", userID)
		s.commitPlan(ctx, userID, PlanState{Plan: session.PlanFree})
		s.store.FinishSubscriptionSync(userID, false)
	default:
		s.store.FinishSubscriptionSync(userID, true)
	}
}

// commitPlan writes state for userID unless the session already holds the
// same plan, subscription flag and coverage plan, or now belongs to someone
// else.
func (s *Scheduler) commitPlan(ctx context.Context, userID string, state PlanState) {
	if planUnchanged(s.store.Snapshot(), userID, state) {
		return
	}
	_, err := s.store.Update(ctx, func(st *session.Session) {
		if st.User == nil || st.User.ID != userID || planUnchanged(*st, userID, state) {
			return
		}
		st.User.CurrentPlan = state.Plan
		st.User.HasActiveSubscription = state.HasActiveSubscription
		st.User.CoveragePlan = string(state.Plan)
	})
	if err != nil {
		s.log.Warn(ctx, "persist plan failed", "user_id", userID, "err", err)
	}
}

func planUnchanged(st session.Session, userID string, state PlanState) bool {
	u := st.User
	if u == nil || u.ID != userID {
		return true
	}
	return u.CurrentPlan == state.Plan &&
		u.HasActiveSubscription == state.HasActiveSubscription &&
		u.CoveragePlan == string(state.Plan)
}

func (s *Scheduler) resolveCourialID(ctx context.Context, user session.UserRecord) {
	ok := s.observe(ctx, session.EffectCourialID, user.ID, func(ctx context.Context) (string, error) {
		res, err := s.deps.Resolver.Resolve(ctx, user)
		if err != nil {
			return "", fmt.Errorf("resolve courial id: %w", err)
		}
		if !res.Success {
			return "", fmt.Errorf("resolve courial id: %w", rejection(res.Error))
		}
		if !session.ValidCourialID(res.CourialID) {
			return "", fmt.Errorf("resolve courial id: %w", errInvalidCourialID)
		}
		if err := s.commitCourialID(ctx, user.ID, *res.CourialID); err != nil {
			return "", err
		}
		return metrics.OutcomeSuccess, nil
	})
	if ok {
		s.CheckDiscount(ctx)
	}
	s.store.Finish(session.EffectCourialID, ok)
}

var errInvalidCourialID = errors.New("invalid courial id")

// commitCourialID stores id on the user unless the user already has a
// valid one; a resolved id is never overwritten.
func (s *Scheduler) commitCourialID(ctx context.Context, userID, id string) error {
	var gone bool
	_, err := s.store.Update(ctx, func(st *session.Session) {
		if st.User == nil || st.User.ID != userID {
			gone = true
			return
		}
		if st.User.HasCourialID() {
			return
		}
		st.User.CourialID = &id
	})
	if gone {
		return fmt.Errorf("commit courial id: %w", common.ErrorNoUser)
	}
	if err != nil {
		s.log.Warn(ctx, "persist courial id failed", "user_id", userID, "err", err)
	}
	return nil
}

// CheckDiscount runs the discount check for the current user if its guard
// admits it, and blocks until the call completes. It is the only entry point
// for the check: the scheduler and the Courial ID resolution both come
// through here, so the guard alone decides whether a second call runs.
// It reports whether the check ran.
func (s *Scheduler) CheckDiscount(ctx context.Context) bool {
	if s.deps.Discount == nil || !s.store.TryBegin(session.EffectDiscountCheck) {
		return false
	}
	snap := s.store.Snapshot()
	if snap.User == nil {
		s.store.Finish(session.EffectDiscountCheck, false)
		return false
	}
	user := snap.User.Clone()

	ok := s.observe(ctx, session.EffectDiscountCheck, user.ID, func(ctx context.Context) (string, error) {
		res, err := s.deps.Discount.Check(ctx, user)
		if err != nil {
			return "", fmt.Errorf("check discount: %w", err)
		}
		if !res.Success {
			return "", fmt.Errorf("check discount: %w", rejection(res.Error))
		}
		if res.CheckedAt != nil {
			s.mirrorCheckedAt(ctx, user.ID, *res.CheckedAt)
		}
		return metrics.OutcomeSuccess, nil
	})
	s.store.Finish(session.EffectDiscountCheck, ok)
	return true
}

// mirrorCheckedAt copies the timestamp the backend stamped into the local
// record so the next evaluation sees the check as done. The value always
// comes from the backend's reply; the client never stamps the check with its
// own clock, and a reply without a timestamp leaves the field nil.
func (s *Scheduler) mirrorCheckedAt(ctx context.Context, userID string, at time.Time) {
	_, err := s.store.Update(ctx, func(st *session.Session) {
		if st.User == nil || st.User.ID != userID || st.User.DiscountCheckedAt != nil {
			return
		}
		st.User.DiscountCheckedAt = &at
	})
	if err != nil {
		s.log.Warn(ctx, "persist discount timestamp failed", "user_id", userID, "err", err)
	}
}

func rejection(msg string) error {
	if msg == "" {
		return common.ErrorRejected
	}
	return fmt.Errorf("%w: %s", common.ErrorRejected, msg)
}
