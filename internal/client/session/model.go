// Package session holds the process-wide Session aggregate: who the user is,
// whether they are onboarded and authenticated, their plan, and the
// per-foreground state of every bootstrap effect.
//
// The aggregate is owned by a Store. Readers take snapshots; writers go
// through Store.Update, which applies one discrete replacement under the
// store lock and persists the result.
package session

import (
	"regexp"
	"strings"
	"time"
)

// Plan is the subscription tier of a user.
type Plan string

const (
	PlanFree         Plan = "free"
	PlanBasic        Plan = "basic"
	PlanPro          Plan = "pro"
	PlanProfessional Plan = "professional"
)

// Valid reports whether p is one of the known tiers.
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanBasic, PlanPro, PlanProfessional:
		return true
	}
	return false
}

var courialIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{4,64}$`)

// ValidCourialID reports whether id is a usable resolved identifier.
func ValidCourialID(id *string) bool {
	if id == nil {
		return false
	}
	return courialIDPattern.MatchString(strings.TrimSpace(*id))
}

// UserRecord is the locally persisted profile of the signed-in user.
type UserRecord struct {
	ID                    string     `json:"id"`
	CourialID             *string    `json:"courial_id,omitempty"`
	CurrentPlan           Plan       `json:"current_plan"`
	CoveragePlan          string     `json:"coverage_plan,omitempty"`
	HasActiveSubscription bool       `json:"has_active_subscription"`
	DiscountCheckedAt     *time.Time `json:"discount_checked_at,omitempty"`
	Phone                 string     `json:"phone,omitempty"`
	Email                 string     `json:"email,omitempty"`
	FirstName             string     `json:"first_name,omitempty"`
	LastName              string     `json:"last_name,omitempty"`
	AccessToken           string     `json:"access_token,omitempty"`
}

// HasCourialID reports whether the record already carries a valid Courial ID.
func (u UserRecord) HasCourialID() bool { return ValidCourialID(u.CourialID) }

// Clone returns a deep copy.
func (u UserRecord) Clone() UserRecord {
	out := u
	if u.CourialID != nil {
		id := *u.CourialID
		out.CourialID = &id
	}
	if u.DiscountCheckedAt != nil {
		at := *u.DiscountCheckedAt
		out.DiscountCheckedAt = &at
	}
	return out
}

// EffectName identifies one bootstrap effect.
type EffectName string

const (
	EffectPushRegistration EffectName = "push_registration"
	EffectSubscriptionSync EffectName = "subscription_sync"
	EffectCourialID        EffectName = "courial_id_resolution"
	EffectDiscountCheck    EffectName = "discount_check"
)

// EffectState is the per-foreground lifecycle of an effect.
// Failed behaves like NotStarted on the next evaluation.
type EffectState int

const (
	NotStarted EffectState = iota
	InFlight
	Succeeded
	Failed
)

func (s EffectState) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case InFlight:
		return "in_flight"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Session is the aggregate. Effects and LastSubscriptionSyncUserID live
// only for one foreground and are never persisted.
type Session struct {
	IsOnboarded     bool        `json:"is_onboarded"`
	IsAuthenticated bool        `json:"is_authenticated"`
	User            *UserRecord `json:"user,omitempty"`

	LastSubscriptionSyncUserID string                     `json:"-"`
	Effects                    map[EffectName]EffectState `json:"-"`
}

// Effect returns the state of the named effect.
func (s Session) Effect(name EffectName) EffectState {
	return s.Effects[name]
}

// Clone returns a deep copy.
func (s Session) Clone() Session {
	out := s
	if s.User != nil {
		u := s.User.Clone()
		out.User = &u
	}
	out.Effects = make(map[EffectName]EffectState, len(s.Effects))
	for k, v := range s.Effects {
		out.Effects[k] = v
	}
	return out
}
