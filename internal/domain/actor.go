package domain

// Role tags the kind of party acting on a donation.
type Role string

const (
	RoleDonor     Role = "donor"
	RoleNonprofit Role = "nonprofit"
	RoleDriver    Role = "driver"
	RoleAdmin     Role = "admin"

	// RoleSystem is used by background jobs such as the expiry sweep.
	// The actor resolver never hands it out.
	RoleSystem Role = "system"
)

// Valid reports whether r can be carried by an external caller.
func (r Role) Valid() bool {
	switch r {
	case RoleDonor, RoleNonprofit, RoleDriver, RoleAdmin:
		return true
	}
	return false
}

// Actor is a role-tagged identity produced by the actor resolver.
type Actor struct {
	ID   string
	Role Role
}

// SystemActor identifies background work.
var SystemActor = Actor{ID: "system", Role: RoleSystem}

// Policy holds the guard predicates for one event. The engine evaluates these
// and nothing else, so role rules live in one place.
type Policy struct {
	Roles []Role
	// RejectExpired refuses the event once the donation is logically expired.
	RejectExpired bool
	// RequireExpired only allows the event after the safety window has passed.
	RequireExpired bool
	// Owns reports whether the actor may act on this particular donation.
	// Nil means any actor with a permitted role.
	Owns func(d Donation, actor Actor) bool
}

// Permits reports whether the actor's role may trigger the event at all.
func (p Policy) Permits(actor Actor) bool {
	if actor.ID == "" {
		return false
	}
	for _, r := range p.Roles {
		if r == actor.Role {
			return true
		}
	}
	return false
}

// Policies maps each transition event to its guards.
var Policies = map[Event]Policy{
	EventClaim: {
		Roles:         []Role{RoleNonprofit},
		RejectExpired: true,
	},
	EventAssignDriver: {
		Roles:         []Role{RoleNonprofit, RoleAdmin},
		RejectExpired: true,
		Owns: func(d Donation, actor Actor) bool {
			return actor.Role == RoleAdmin || d.ClaimedByNonprofitID == actor.ID
		},
	},
	EventCompleteDelivery: {
		Roles: []Role{RoleDriver},
		Owns: func(d Donation, actor Actor) bool {
			return d.AssignedDriverID == actor.ID
		},
	},
	EventExpire: {
		Roles:          []Role{RoleAdmin, RoleSystem},
		RequireExpired: true,
	},
}
