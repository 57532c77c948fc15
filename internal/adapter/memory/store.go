// Package memory holds an in-process DonationStore. Each donation has its own
// mutex, so swaps on different donations never contend.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/neomorfeo/foodflow/internal/domain"
)

// Compile-time check: Store implements domain.DonationStore.
var _ domain.DonationStore = (*Store)(nil)

type entry struct {
	mu       sync.Mutex
	donation domain.Donation
}

// Store keeps donations in memory for the lifetime of the instance.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New creates an empty store.
func New() *Store {
	return &Store{entries: make(map[string]*entry)}
}

func (s *Store) lookup(id string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

func (s *Store) Create(_ context.Context, d domain.Donation) error {
	if err := d.CheckInvariants(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[d.ID]; exists {
		return &domain.DuplicateDonationError{ID: d.ID}
	}
	s.entries[d.ID] = &entry{donation: d}
	return nil
}

func (s *Store) GetByID(_ context.Context, id string) (domain.Donation, error) {
	e, ok := s.lookup(id)
	if !ok {
		return domain.Donation{}, domain.ErrDonationNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.donation, nil
}

func (s *Store) List(_ context.Context, filter domain.ListFilter) ([]domain.Donation, error) {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var out []domain.Donation
	for _, e := range entries {
		e.mu.Lock()
		d := e.donation
		e.mu.Unlock()
		if filter.Matches(d) {
			out = append(out, d)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) CompareAndSwapStatus(_ context.Context, id string, expected, next domain.Status, changes domain.Changes) (domain.Donation, error) {
	e, ok := s.lookup(id)
	if !ok {
		return domain.Donation{}, domain.ErrDonationNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.donation.Status != expected || !changes.Require.Holds(e.donation) {
		return domain.Donation{}, &domain.ConflictError{ID: id, Expected: expected, Actual: e.donation.Status}
	}

	updated := changes.Apply(e.donation, next)
	if err := updated.CheckInvariants(); err != nil {
		return domain.Donation{}, err
	}
	e.donation = updated
	return updated, nil
}
