package fsm

import (
	"context"
	"errors"
	"sort"

	loopfsm "github.com/looplab/fsm"

	"github.com/neomorfeo/foodflow/internal/domain"
)

// Compile-time check: Validator implements domain.TransitionValidator.
var _ domain.TransitionValidator = (*Validator)(nil)

// Validator walks the donation graph with looplab/fsm. The machine is
// stateful, so each call builds a short-lived instance seeded with the
// donation's stored status; the event table itself is built once.
type Validator struct {
	events []loopfsm.EventDesc
}

// New creates a validator for domain.Transitions.
func New() *Validator {
	return &Validator{events: eventsFrom(domain.Transitions)}
}

// eventsFrom folds transitions sharing an event and destination into one
// EventDesc (expire leaves both open and claimed).
func eventsFrom(transitions []domain.Transition) []loopfsm.EventDesc {
	index := make(map[string]int)
	var out []loopfsm.EventDesc

	for _, t := range transitions {
		key := string(t.Event) + "->" + string(t.Dst)
		if i, ok := index[key]; ok {
			out[i].Src = append(out[i].Src, string(t.Src))
			continue
		}
		index[key] = len(out)
		out = append(out, loopfsm.EventDesc{
			Name: string(t.Event),
			Src:  []string{string(t.Src)},
			Dst:  string(t.Dst),
		})
	}
	return out
}

// Apply returns the status the event leads to from current, or a
// *domain.TransitionError when the graph has no such edge.
func (v *Validator) Apply(ctx context.Context, current domain.Status, event domain.Event) (domain.Status, error) {
	machine := loopfsm.NewFSM(string(current), v.events, nil)

	if err := machine.Event(ctx, string(event)); err != nil {
		var invalidEvent loopfsm.InvalidEventError
		var unknownEvent loopfsm.UnknownEventError
		if errors.As(err, &invalidEvent) || errors.As(err, &unknownEvent) {
			return "", &domain.TransitionError{Event: event, Current: current}
		}
		return "", err
	}

	return domain.Status(machine.Current()), nil
}

// Available lists the events that may leave current, sorted by name.
func (v *Validator) Available(current domain.Status) []domain.Event {
	machine := loopfsm.NewFSM(string(current), v.events, nil)

	names := machine.AvailableTransitions()
	sort.Strings(names)

	out := make([]domain.Event, len(names))
	for i, n := range names {
		out[i] = domain.Event(n)
	}
	return out
}
