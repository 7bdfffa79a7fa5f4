package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/courial/internal/client/effects"
	"github.com/dmitrijs2005/courial/internal/client/session"
	"github.com/dmitrijs2005/courial/internal/common"
)

// Push registers this device's push token with the backend.
type Push struct {
	c           *GRPCClient
	deviceToken string
}

func NewPush(c *GRPCClient, deviceToken string) *Push {
	return &Push{c: c, deviceToken: deviceToken}
}

func (p *Push) Register(ctx context.Context) (effects.PushResult, error) {
	if p.deviceToken == "" {
		return effects.PushResult{Error: "no device token"}, nil
	}
	resp, err := p.c.call(ctx, MethodRegisterPush, map[string]any{"device_token": p.deviceToken})
	if err != nil {
		return effects.PushResult{}, err
	}
	return effects.PushResult{Success: boolean(resp, "success"), Error: str(resp, "error")}, nil
}

// Billing is the subscription provider. It is configured only when an API
// key was supplied.
type Billing struct {
	c      *GRPCClient
	apiKey string

	mu          sync.Mutex
	initialized bool
	userID      string
}

func NewBilling(c *GRPCClient, apiKey string) *Billing {
	return &Billing{c: c, apiKey: apiKey}
}

func (b *Billing) Initialize(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initialized = true
	return nil
}

func (b *Billing) IsConfigured() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initialized && b.apiKey != ""
}

func (b *Billing) Identify(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("identify: %w", common.ErrorNoUser)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.userID = userID
	return nil
}

// FetchSnapshot returns (nil, nil) when the provider has no customer record.
func (b *Billing) FetchSnapshot(ctx context.Context) (*effects.Snapshot, error) {
	b.mu.Lock()
	userID, configured := b.userID, b.initialized && b.apiKey != ""
	b.mu.Unlock()
	if !configured {
		return nil, fmt.Errorf("fetch snapshot: %w", common.ErrorNotConfigured)
	}
	if userID == "" {
		return nil, fmt.Errorf("fetch snapshot: %w", common.ErrorNoUser)
	}

	resp, err := b.c.call(ctx, MethodGetCustomerInfo, map[string]any{
		"api_key":     b.apiKey,
		"app_user_id": userID,
	})
	if err != nil {
		return nil, err
	}
	if !boolean(resp, "found") {
		return nil, nil
	}

	snap := &effects.Snapshot{}
	for _, v := range resp.GetFields()["entitlements"].GetListValue().GetValues() {
		e := v.GetStructValue()
		if e == nil {
			return nil, fmt.Errorf("entitlement: %w", ErrBadResponse)
		}
		snap.Entitlements = append(snap.Entitlements, effects.Entitlement{
			ID:     str(e, "id"),
			Active: boolean(e, "active"),
		})
	}
	return snap, nil
}

func (b *Billing) DeriveState(s *effects.Snapshot) effects.PlanState {
	return effects.DerivePlanState(s)
}

// Resolver looks up a user's Courial ID.
type Resolver struct{ c *GRPCClient }

func NewResolver(c *GRPCClient) *Resolver { return &Resolver{c: c} }

func (r *Resolver) Resolve(ctx context.Context, user session.UserRecord) (effects.ResolveResult, error) {
	resp, err := r.c.call(ctx, MethodResolveID, map[string]any{
		"user_id": user.ID,
		"phone":   user.Phone,
		"email":   user.Email,
	})
	if err != nil {
		return effects.ResolveResult{}, err
	}
	res := effects.ResolveResult{Success: boolean(resp, "success"), Error: str(resp, "error")}
	if id := str(resp, "courial_id"); id != "" {
		res.CourialID = &id
	}
	return res, nil
}

// Discount asks the backend to apply any discount the user qualifies for.
type Discount struct{ c *GRPCClient }

func NewDiscount(c *GRPCClient) *Discount { return &Discount{c: c} }

func (d *Discount) Check(ctx context.Context, user session.UserRecord) (effects.DiscountResult, error) {
	req := map[string]any{"user_id": user.ID}
	if user.CourialID != nil {
		req["courial_id"] = *user.CourialID
	}
	resp, err := d.c.call(ctx, MethodCheckDiscount, req)
	if err != nil {
		return effects.DiscountResult{}, err
	}
	res := effects.DiscountResult{Success: boolean(resp, "success"), Error: str(resp, "error")}
	if raw := str(resp, "discount_checked_at"); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return effects.DiscountResult{}, fmt.Errorf("discount_checked_at: %w", ErrBadResponse)
		}
		res.CheckedAt = &at
	}
	return res, nil
}

// SMS sends one-time codes through the backend.
type SMS struct{ c *GRPCClient }

func NewSMS(c *GRPCClient) *SMS { return &SMS{c: c} }

func (s *SMS) Send(ctx context.Context, phone, code string) error {
	resp, err := s.c.call(ctx, MethodSendSMS, map[string]any{"phone": phone, "code": code})
	if err != nil {
		return err
	}
	if !boolean(resp, "success") {
		if msg := str(resp, "error"); msg != "" {
			return fmt.Errorf("%w: %s", common.ErrorRejected, msg)
		}
		return common.ErrorRejected
	}
	return nil
}
