package effects

import (
	"testing"

	"github.com/dmitrijs2005/courial/internal/client/session"
	"github.com/stretchr/testify/assert"
)

func TestDerivePlanState(t *testing.T) {
	tests := []struct {
		name string
		in   *Snapshot
		want PlanState
	}{
		{"nil", nil, PlanState{Plan: session.PlanFree}},
		{"empty", &Snapshot{}, PlanState{Plan: session.PlanFree}},
		{"inactive only", &Snapshot{Entitlements: []Entitlement{{ID: "pro"}}}, PlanState{Plan: session.PlanFree}},
		{"unknown id", &Snapshot{Entitlements: []Entitlement{{ID: "gold", Active: true}}}, PlanState{Plan: session.PlanFree}},
		{"basic", &Snapshot{Entitlements: []Entitlement{{ID: "basic", Active: true}}}, PlanState{Plan: session.PlanBasic, HasActiveSubscription: true}},
		{"highest wins", &Snapshot{Entitlements: []Entitlement{
			{ID: "basic", Active: true},
			{ID: " Professional ", Active: true},
			{ID: "pro", Active: true},
		}}, PlanState{Plan: session.PlanProfessional, HasActiveSubscription: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DerivePlanState(tt.in))
		})
	}
}
