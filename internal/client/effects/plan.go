package effects

import (
	"strings"

	"github.com/dmitrijs2005/courial/internal/client/session"
)

// planRank orders tiers from highest to lowest.
var planRank = []session.Plan{session.PlanProfessional, session.PlanPro, session.PlanBasic}

// DerivePlanState maps a billing snapshot onto a plan. The highest active
// entitlement whose id names a tier wins; no active tier means free.
func DerivePlanState(s *Snapshot) PlanState {
	if s == nil {
		return PlanState{Plan: session.PlanFree}
	}
	active := map[session.Plan]bool{}
	for _, e := range s.Entitlements {
		if !e.Active {
			continue
		}
		p := session.Plan(strings.ToLower(strings.TrimSpace(e.ID)))
		if p.Valid() {
			active[p] = true
		}
	}
	for _, p := range planRank {
		if active[p] {
			return PlanState{Plan: p, HasActiveSubscription: true}
		}
	}
	return PlanState{Plan: session.PlanFree}
}
