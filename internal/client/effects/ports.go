package effects

import (
	"context"
	"time"

	"github.com/dmitrijs2005/courial/internal/client/session"
)

// PushResult is the outcome reported by the push-registration service.
type PushResult struct {
	Success bool
	Error   string
}

// PushRegistrar registers the device for push notifications.
type PushRegistrar interface {
	Register(ctx context.Context) (PushResult, error)
}

// Entitlement is one entry of a billing snapshot.
type Entitlement struct {
	ID     string
	Active bool
}

// Snapshot is the subscription state reported by the billing provider.
type Snapshot struct {
	Entitlements []Entitlement
}

// PlanState is the plan derived from a Snapshot.
type PlanState struct {
	Plan                  session.Plan
	HasActiveSubscription bool
}

// BillingProvider is the subscription backend. FetchSnapshot returns
// (nil, nil) when the provider has nothing on record for the user.
type BillingProvider interface {
	Initialize(ctx context.Context) error
	IsConfigured() bool
	Identify(ctx context.Context, userID string) error
	FetchSnapshot(ctx context.Context) (*Snapshot, error)
	DeriveState(s *Snapshot) PlanState
}

// ResolveResult is the identifier backend's answer.
type ResolveResult struct {
	Success   bool
	CourialID *string
	Error     string
}

// IdentifierResolver looks up the Courial ID for a user.
type IdentifierResolver interface {
	Resolve(ctx context.Context, user session.UserRecord) (ResolveResult, error)
}

// DiscountResult is the discount backend's answer. CheckedAt is the
// timestamp the backend stamped on the user, if it returned one.
type DiscountResult struct {
	Success   bool
	CheckedAt *time.Time
	Error     string
}

// DiscountChecker asks the backend to evaluate and apply any discount the
// user is eligible for.
type DiscountChecker interface {
	Check(ctx context.Context, user session.UserRecord) (DiscountResult, error)
}

// Store is the part of session.Store the scheduler writes through.
type Store interface {
	Snapshot() session.Session
	Update(ctx context.Context, fn func(*session.Session)) (session.Session, error)
	TryBegin(name session.EffectName) bool
	Finish(name session.EffectName, ok bool)
	TryBeginSubscriptionSync(userID string) bool
	FinishSubscriptionSync(userID string, ok bool)
}
