package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/foodflow/internal/app"
	"github.com/neomorfeo/foodflow/internal/domain"
)

// ActionLister reports which events the lifecycle graph allows from a status.
type ActionLister interface {
	Available(current domain.Status) []domain.Event
}

// Deps are the collaborators the routes call into.
type Deps struct {
	Engine   *app.LifecycleEngine
	Feed     *app.FeedProjector
	Resolver domain.ActorResolver
	Actions  ActionLister
}

const timeLayout = time.RFC3339

// DonationResponse is the API representation of a donation.
type DonationResponse struct {
	ID                     string   `json:"id" doc:"Unique identifier"`
	DonorID                string   `json:"donor_id" doc:"Posting donor"`
	ItemName               string   `json:"item_name" doc:"What is being donated"`
	Quantity               string   `json:"quantity" doc:"Free-form amount"`
	Category               string   `json:"category" doc:"Food category"`
	Address                string   `json:"address" doc:"Pickup address"`
	Notes                  string   `json:"notes,omitempty" doc:"Pickup notes"`
	Status                 string   `json:"status" doc:"Stored lifecycle state"`
	EffectiveStatus        string   `json:"effective_status" doc:"Lifecycle state with expiry applied at read time"`
	ClaimedByNonprofitID   string   `json:"claimed_by_nonprofit_id,omitempty" doc:"Nonprofit holding the claim"`
	AssignedDriverID       string   `json:"assigned_driver_id,omitempty" doc:"Driver assigned to the pickup"`
	LapsedClaimNonprofitID string   `json:"lapsed_claim_nonprofit_id,omitempty" doc:"Nonprofit whose claim lapsed at expiry"`
	PickupStart            string   `json:"pickup_start" doc:"Pickup window start (RFC 3339)"`
	PickupEnd              string   `json:"pickup_end" doc:"Pickup window end (RFC 3339)"`
	SafeUntil              string   `json:"safe_until" doc:"End of the food safety window (RFC 3339)"`
	AvailableActions       []string `json:"available_actions" doc:"Events the lifecycle allows next"`
	CreatedAt              string   `json:"created_at" doc:"Creation timestamp (RFC 3339)"`
	UpdatedAt              string   `json:"updated_at" doc:"Last update timestamp (RFC 3339)"`
}

func (d Deps) toResponse(donation domain.Donation, now time.Time) DonationResponse {
	return DonationResponse{
		ID:                     donation.ID,
		DonorID:                donation.DonorID,
		ItemName:               donation.ItemName,
		Quantity:               donation.Quantity,
		Category:               string(donation.Category),
		Address:                donation.Address,
		Notes:                  donation.Notes,
		Status:                 string(donation.Status),
		EffectiveStatus:        string(donation.EffectiveStatus(now)),
		ClaimedByNonprofitID:   donation.ClaimedByNonprofitID,
		AssignedDriverID:       donation.AssignedDriverID,
		LapsedClaimNonprofitID: donation.LapsedClaimNonprofitID,
		PickupStart:            donation.PickupWindow.Start.Format(timeLayout),
		PickupEnd:              donation.PickupWindow.End.Format(timeLayout),
		SafeUntil:              donation.SafeUntil.Format(timeLayout),
		AvailableActions:       d.availableActions(donation, now),
		CreatedAt:              donation.CreatedAt.Format(timeLayout),
		UpdatedAt:              donation.UpdatedAt.Format(timeLayout),
	}
}

// availableActions narrows the graph's events by the safety window: once it
// has passed only expire remains, and before that expire is not offered.
func (d Deps) availableActions(donation domain.Donation, now time.Time) []string {
	expired := domain.LogicallyExpired(donation, now)
	out := []string{}
	for _, ev := range d.Actions.Available(donation.Status) {
		if (ev == domain.EventExpire) != expired {
			continue
		}
		out = append(out, string(ev))
	}
	return out
}

func (d Deps) toResponses(donations []domain.Donation, now time.Time) []DonationResponse {
	resp := make([]DonationResponse, len(donations))
	for i, donation := range donations {
		resp[i] = d.toResponse(donation, now)
	}
	return resp
}

// --- Create Donation ---

type CreateDonationInput struct {
	Authorization string `header:"Authorization" doc:"Bearer token"`
	Body          struct {
		DonorID     string    `json:"donor_id,omitempty" doc:"Donor to post for (admins only)"`
		ItemName    string    `json:"item_name" minLength:"1" maxLength:"255" doc:"What is being donated"`
		Quantity    string    `json:"quantity" minLength:"1" maxLength:"100" doc:"Free-form amount"`
		Category    string    `json:"category" enum:"Produce,Bakery,Prepared,Dairy,Meat,Pantry,Other" doc:"Food category"`
		Address     string    `json:"address" minLength:"1" maxLength:"500" doc:"Pickup address"`
		Notes       string    `json:"notes,omitempty" maxLength:"1000" doc:"Pickup notes"`
		PickupStart time.Time `json:"pickup_start" doc:"Pickup window start"`
		PickupEnd   time.Time `json:"pickup_end" doc:"Pickup window end"`
		SafeUntil   time.Time `json:"safe_until" doc:"End of the food safety window"`
	}
}

type DonationOutput struct {
	Body DonationResponse
}

// --- Get Donation ---

type GetDonationInput struct {
	Authorization string `header:"Authorization" doc:"Bearer token"`
	ID            string `path:"id" doc:"Donation ID"`
}

// --- Listings ---

type ListInput struct {
	Authorization string `header:"Authorization" doc:"Bearer token"`
	Limit         int    `query:"limit" required:"false" default:"50" minimum:"1" maximum:"200" doc:"Max results"`
	Offset        int    `query:"offset" required:"false" default:"0" minimum:"0" doc:"Pagination offset"`
}

type ListOutput struct {
	Body []DonationResponse
}

// --- Transitions ---

type TransitionInput struct {
	Authorization string `header:"Authorization" doc:"Bearer token"`
	ID            string `path:"id" doc:"Donation ID"`
}

type AssignDriverInput struct {
	Authorization string `header:"Authorization" doc:"Bearer token"`
	ID            string `path:"id" doc:"Donation ID"`
	Body          struct {
		DriverID string `json:"driver_id" minLength:"1" doc:"Driver to assign"`
	}
}

// Register adds all donation API routes to the Huma API.
func Register(api huma.API, deps Deps) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-donation",
		Method:        http.MethodPost,
		Path:          "/api/v1/donations",
		Summary:       "Post a new donation",
		Tags:          []string{"Donations"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateDonationInput) (*DonationOutput, error) {
		actor, err := deps.Resolver.Resolve(ctx, input.Authorization)
		if err != nil {
			return nil, toHumaError(err)
		}
		donation, err := deps.Engine.CreateDonation(ctx, actor, domain.Draft{
			DonorID:  input.Body.DonorID,
			ItemName: input.Body.ItemName,
			Quantity: input.Body.Quantity,
			Category: domain.Category(input.Body.Category),
			Address:  input.Body.Address,
			Notes:    input.Body.Notes,
			PickupWindow: domain.PickupWindow{
				Start: input.Body.PickupStart,
				End:   input.Body.PickupEnd,
			},
			SafeUntil: input.Body.SafeUntil,
		})
		if err != nil {
			return nil, toHumaError(err)
		}
		return &DonationOutput{Body: deps.toResponse(donation, deps.Feed.Now())}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-available-donations",
		Method:      http.MethodGet,
		Path:        "/api/v1/donations/available",
		Summary:     "List donations open for claiming",
		Tags:        []string{"Feeds"},
	}, func(ctx context.Context, input *ListInput) (*ListOutput, error) {
		if _, err := deps.Resolver.Resolve(ctx, input.Authorization); err != nil {
			return nil, toHumaError(err)
		}
		now := deps.Feed.Now()
		donations, err := deps.Feed.ListOpen(ctx, now, app.Page{Limit: input.Limit, Offset: input.Offset})
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ListOutput{Body: deps.toResponses(donations, now)}, nil
	})

	registerOwnFeed(api, deps, "list-claimed-donations", "/api/v1/donations/claimed",
		"List donations claimed by the calling nonprofit", domain.RoleNonprofit, deps.Feed.ListClaimedBy)
	registerOwnFeed(api, deps, "list-assigned-donations", "/api/v1/donations/assigned",
		"List donations assigned to the calling driver", domain.RoleDriver, deps.Feed.ListAssignedTo)
	registerOwnFeed(api, deps, "list-my-donations", "/api/v1/donations/mine",
		"List donations posted by the calling donor", domain.RoleDonor, deps.Feed.ListByDonor)

	huma.Register(api, huma.Operation{
		OperationID: "get-donation",
		Method:      http.MethodGet,
		Path:        "/api/v1/donations/{id}",
		Summary:     "Get a donation by ID",
		Tags:        []string{"Donations"},
	}, func(ctx context.Context, input *GetDonationInput) (*DonationOutput, error) {
		if _, err := deps.Resolver.Resolve(ctx, input.Authorization); err != nil {
			return nil, toHumaError(err)
		}
		donation, err := deps.Engine.GetDonation(ctx, input.ID)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &DonationOutput{Body: deps.toResponse(donation, deps.Feed.Now())}, nil
	})

	registerTransition(api, deps, "claim-donation", "/api/v1/donations/{id}/claim",
		"Claim an open donation", deps.Engine.Claim)
	registerTransition(api, deps, "deliver-donation", "/api/v1/donations/{id}/deliver",
		"Mark an assigned donation as delivered", deps.Engine.CompleteDelivery)
	registerTransition(api, deps, "expire-donation", "/api/v1/donations/{id}/expire",
		"Expire a donation past its safety window", deps.Engine.Expire)

	huma.Register(api, huma.Operation{
		OperationID: "assign-driver",
		Method:      http.MethodPost,
		Path:        "/api/v1/donations/{id}/assign",
		Summary:     "Assign a driver to a claimed donation",
		Tags:        []string{"Transitions"},
	}, func(ctx context.Context, input *AssignDriverInput) (*DonationOutput, error) {
		actor, err := deps.Resolver.Resolve(ctx, input.Authorization)
		if err != nil {
			return nil, toHumaError(err)
		}
		donation, err := deps.Engine.AssignDriver(ctx, input.ID, input.Body.DriverID, actor)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &DonationOutput{Body: deps.toResponse(donation, deps.Feed.Now())}, nil
	})
}

type transitionFunc func(ctx context.Context, id string, actor domain.Actor) (domain.Donation, error)

func registerTransition(api huma.API, deps Deps, operationID, path, summary string, apply transitionFunc) {
	huma.Register(api, huma.Operation{
		OperationID: operationID,
		Method:      http.MethodPost,
		Path:        path,
		Summary:     summary,
		Tags:        []string{"Transitions"},
	}, func(ctx context.Context, input *TransitionInput) (*DonationOutput, error) {
		actor, err := deps.Resolver.Resolve(ctx, input.Authorization)
		if err != nil {
			return nil, toHumaError(err)
		}
		donation, err := apply(ctx, input.ID, actor)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &DonationOutput{Body: deps.toResponse(donation, deps.Feed.Now())}, nil
	})
}

type feedFunc func(ctx context.Context, ownerID string, page app.Page) ([]domain.Donation, error)

// registerOwnFeed serves a listing scoped to the caller, who must hold role.
func registerOwnFeed(api huma.API, deps Deps, operationID, path, summary string, role domain.Role, list feedFunc) {
	huma.Register(api, huma.Operation{
		OperationID: operationID,
		Method:      http.MethodGet,
		Path:        path,
		Summary:     summary,
		Tags:        []string{"Feeds"},
	}, func(ctx context.Context, input *ListInput) (*ListOutput, error) {
		actor, err := deps.Resolver.Resolve(ctx, input.Authorization)
		if err != nil {
			return nil, toHumaError(err)
		}
		if actor.Role != role {
			return nil, huma.Error403Forbidden("this feed is only available to role " + string(role))
		}
		donations, err := list(ctx, actor.ID, app.Page{Limit: input.Limit, Offset: input.Offset})
		if err != nil {
			return nil, toHumaError(err)
		}
		return &ListOutput{Body: deps.toResponses(donations, deps.Feed.Now())}, nil
	})
}

// toHumaError translates domain errors to Huma HTTP errors.
func toHumaError(err error) error {
	if errors.Is(err, domain.ErrUnauthenticated) {
		return huma.Error401Unauthorized("authentication required")
	}

	if errors.Is(err, domain.ErrDonationNotFound) {
		return huma.Error404NotFound("donation not found")
	}

	var expired *domain.ExpiredError
	if errors.As(err, &expired) {
		return huma.Error410Gone(expired.Error())
	}

	var conflict *domain.ConflictError
	if errors.As(err, &conflict) {
		return huma.Error409Conflict(conflict.Error())
	}

	var dup *domain.DuplicateDonationError
	if errors.As(err, &dup) {
		return huma.Error409Conflict(dup.Error())
	}

	var invalidActor *domain.InvalidActorError
	if errors.As(err, &invalidActor) {
		return huma.Error403Forbidden(invalidActor.Error())
	}

	var trErr *domain.TransitionError
	if errors.As(err, &trErr) {
		return huma.Error422UnprocessableEntity(trErr.Error())
	}

	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		return huma.Error422UnprocessableEntity(validation.Error())
	}

	if errors.Is(err, domain.ErrNotExpired) {
		return huma.Error422UnprocessableEntity(err.Error())
	}

	var unavailable *domain.StorageUnavailableError
	if errors.As(err, &unavailable) {
		return huma.Error503ServiceUnavailable("storage unavailable")
	}

	return huma.Error500InternalServerError("internal server error")
}
