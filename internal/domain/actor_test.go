package domain_test

import (
	"testing"

	"github.com/neomorfeo/foodflow/internal/domain"
)

func TestPolicies_CoverEveryTransitionEvent(t *testing.T) {
	for _, tr := range domain.Transitions {
		if _, ok := domain.Policies[tr.Event]; !ok {
			t.Errorf("event %q has no policy", tr.Event)
		}
	}
}

func TestPolicy_Permits(t *testing.T) {
	cases := []struct {
		event domain.Event
		actor domain.Actor
		want  bool
	}{
		{domain.EventClaim, domain.Actor{ID: "np", Role: domain.RoleNonprofit}, true},
		{domain.EventClaim, domain.Actor{ID: "d", Role: domain.RoleDonor}, false},
		{domain.EventClaim, domain.Actor{ID: "a", Role: domain.RoleAdmin}, false},
		{domain.EventClaim, domain.Actor{Role: domain.RoleNonprofit}, false},
		{domain.EventAssignDriver, domain.Actor{ID: "a", Role: domain.RoleAdmin}, true},
		{domain.EventAssignDriver, domain.Actor{ID: "x", Role: domain.RoleDriver}, false},
		{domain.EventCompleteDelivery, domain.Actor{ID: "x", Role: domain.RoleDriver}, true},
		{domain.EventCompleteDelivery, domain.Actor{ID: "np", Role: domain.RoleNonprofit}, false},
		{domain.EventExpire, domain.SystemActor, true},
		{domain.EventExpire, domain.Actor{ID: "np", Role: domain.RoleNonprofit}, false},
	}

	for _, tc := range cases {
		if got := domain.Policies[tc.event].Permits(tc.actor); got != tc.want {
			t.Errorf("Permits(%q, %+v) = %v, want %v", tc.event, tc.actor, got, tc.want)
		}
	}
}

func TestPolicy_AssignDriverOwnership(t *testing.T) {
	owns := domain.Policies[domain.EventAssignDriver].Owns
	d := domain.Donation{Status: domain.StatusClaimed, ClaimedByNonprofitID: "np-a"}

	if !owns(d, domain.Actor{ID: "np-a", Role: domain.RoleNonprofit}) {
		t.Error("claiming nonprofit should own the assignment")
	}
	if owns(d, domain.Actor{ID: "np-b", Role: domain.RoleNonprofit}) {
		t.Error("other nonprofit should not own the assignment")
	}
	if !owns(d, domain.Actor{ID: "admin", Role: domain.RoleAdmin}) {
		t.Error("admin should be allowed to assign")
	}
}

func TestRole_Valid(t *testing.T) {
	for _, r := range []domain.Role{domain.RoleDonor, domain.RoleNonprofit, domain.RoleDriver, domain.RoleAdmin} {
		if !r.Valid() {
			t.Errorf("%q should be valid", r)
		}
	}
	if domain.RoleSystem.Valid() {
		t.Error("system role must not be accepted from callers")
	}
}
