package domain

import (
	"strings"
	"time"
)

// Status represents the lifecycle state of a donation.
type Status string

const (
	StatusOpen      Status = "open"
	StatusClaimed   Status = "claimed"
	StatusAssigned  Status = "assigned"
	StatusDelivered Status = "delivered"
	StatusExpired   Status = "expired"
)

// progress orders the forward path. Expired sits outside it.
var progress = map[Status]int{
	StatusOpen:      0,
	StatusClaimed:   1,
	StatusAssigned:  2,
	StatusDelivered: 3,
}

// Reached reports whether s is at or beyond target on the lifecycle path.
// Expired is only reached by itself.
func (s Status) Reached(target Status) bool {
	if target == StatusExpired || s == StatusExpired {
		return s == target
	}
	return progress[s] >= progress[target]
}

// Terminal reports whether no transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusExpired
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := progress[s]
	return ok || s == StatusExpired
}

// Event represents an action that triggers a state transition.
type Event string

const (
	EventClaim            Event = "claim"
	EventAssignDriver     Event = "assign_driver"
	EventCompleteDelivery Event = "complete_delivery"
	EventExpire           Event = "expire"

	// EventCreated is published when a donation is first posted. It is not a
	// transition and has no entry in Transitions.
	EventCreated Event = "created"
)

// Transition defines a valid state change: an event moves a donation from Src to Dst.
type Transition struct {
	Event Event
	Src   Status
	Dst   Status
}

// Transitions defines all valid state changes in the donation lifecycle.
// This is domain knowledge consumed by the FSM adapter.
var Transitions = []Transition{
	{Event: EventClaim, Src: StatusOpen, Dst: StatusClaimed},
	{Event: EventAssignDriver, Src: StatusClaimed, Dst: StatusAssigned},
	{Event: EventCompleteDelivery, Src: StatusAssigned, Dst: StatusDelivered},
	{Event: EventExpire, Src: StatusOpen, Dst: StatusExpired},
	{Event: EventExpire, Src: StatusClaimed, Dst: StatusExpired},
}

// Destination returns the status an event leads to.
func Destination(event Event) (Status, bool) {
	for _, t := range Transitions {
		if t.Event == event {
			return t.Dst, true
		}
	}
	return "", false
}

// Source returns the first status an event may leave.
func Source(event Event) Status {
	for _, t := range Transitions {
		if t.Event == event {
			return t.Src
		}
	}
	return ""
}

// Category classifies the food being donated.
type Category string

const (
	CategoryProduce  Category = "Produce"
	CategoryBakery   Category = "Bakery"
	CategoryPrepared Category = "Prepared"
	CategoryDairy    Category = "Dairy"
	CategoryMeat     Category = "Meat"
	CategoryPantry   Category = "Pantry"
	CategoryOther    Category = "Other"
)

// Categories lists every accepted category.
var Categories = []Category{
	CategoryProduce, CategoryBakery, CategoryPrepared, CategoryDairy,
	CategoryMeat, CategoryPantry, CategoryOther,
}

// PickupWindow is the interval during which the donor has the food ready.
type PickupWindow struct {
	Start time.Time
	End   time.Time
}

// Donation is the core domain entity: a surplus-food offer tracked through
// pickup and delivery. Empty reference ids mean "not set".
//
// When a claimed donation expires the claim moves to LapsedClaimNonprofitID,
// so ClaimedByNonprofitID stays non-empty exactly for claimed, assigned and
// delivered donations while the history is kept.
type Donation struct {
	ID                     string
	DonorID                string
	ItemName               string
	Quantity               string
	Category               Category
	Address                string
	Notes                  string
	Status                 Status
	ClaimedByNonprofitID   string
	AssignedDriverID       string
	LapsedClaimNonprofitID string
	PickupWindow           PickupWindow
	SafeUntil              time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Draft carries donor input for a new donation.
type Draft struct {
	DonorID      string
	ItemName     string
	Quantity     string
	Category     Category
	Address      string
	Notes        string
	PickupWindow PickupWindow
	SafeUntil    time.Time
}

// Validate checks the creation-time invariants of a draft.
func (d Draft) Validate() error {
	var fields []string
	if strings.TrimSpace(d.DonorID) == "" {
		fields = append(fields, "donor_id")
	}
	if strings.TrimSpace(d.ItemName) == "" {
		fields = append(fields, "item_name")
	}
	if strings.TrimSpace(d.Quantity) == "" {
		fields = append(fields, "quantity")
	}
	if strings.TrimSpace(d.Address) == "" {
		fields = append(fields, "address")
	}
	if !knownCategory(d.Category) {
		fields = append(fields, "category")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields, Reason: "missing or invalid"}
	}
	if !d.PickupWindow.End.After(d.PickupWindow.Start) {
		return &ValidationError{Fields: []string{"pickup_end"}, Reason: "must be after pickup_start"}
	}
	if !d.SafeUntil.After(d.PickupWindow.End) {
		return &ValidationError{Fields: []string{"safe_until"}, Reason: "must be after pickup_end"}
	}
	return nil
}

func knownCategory(c Category) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// NewDonation creates a donation in the initial "open" state from a validated draft.
func NewDonation(id string, draft Draft, now time.Time) (Donation, error) {
	if err := draft.Validate(); err != nil {
		return Donation{}, err
	}
	now = now.UTC()
	return Donation{
		ID:       id,
		DonorID:  draft.DonorID,
		ItemName: strings.TrimSpace(draft.ItemName),
		Quantity: strings.TrimSpace(draft.Quantity),
		Category: draft.Category,
		Address:  strings.TrimSpace(draft.Address),
		Notes:    draft.Notes,
		Status:   StatusOpen,
		PickupWindow: PickupWindow{
			Start: draft.PickupWindow.Start.UTC(),
			End:   draft.PickupWindow.End.UTC(),
		},
		SafeUntil: draft.SafeUntil.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CheckInvariants verifies that the reference fields agree with the status.
func (d Donation) CheckInvariants() error {
	if !d.Status.Valid() {
		return &InvariantError{ID: d.ID, Reason: "unknown status " + string(d.Status)}
	}
	claimed := d.Status == StatusClaimed || d.Status == StatusAssigned || d.Status == StatusDelivered
	if claimed != (d.ClaimedByNonprofitID != "") {
		return &InvariantError{ID: d.ID, Reason: "claimed_by_nonprofit_id does not match status " + string(d.Status)}
	}
	assigned := d.Status == StatusAssigned || d.Status == StatusDelivered
	if assigned != (d.AssignedDriverID != "") {
		return &InvariantError{ID: d.ID, Reason: "assigned_driver_id does not match status " + string(d.Status)}
	}
	if d.LapsedClaimNonprofitID != "" && d.Status != StatusExpired {
		return &InvariantError{ID: d.ID, Reason: "lapsed claim on a donation that is " + string(d.Status)}
	}
	return nil
}
