package repository

import (
	"context"
	"sync"
	"time"

	"github.com/openvenue/seatclaim/internal/model"
)

// MemoryClaimStore is a mutex-guarded in-memory claim store with the
// same arbitration semantics as ClaimRepo: first writer wins on the
// (show, seat) key, lapsed holds are stealable, and expiry is
// evaluated against the caller-supplied instant. It backs the test
// suite and the STORE_DRIVER=memory development mode.
type MemoryClaimStore struct {
	mu     sync.Mutex
	claims map[claimKey]model.Claim
}

type claimKey struct {
	showID uint64
	seatID string
}

// NewMemoryClaimStore returns an empty in-memory store.
func NewMemoryClaimStore() *MemoryClaimStore {
	return &MemoryClaimStore{claims: make(map[claimKey]model.Claim)}
}

// AcquireHeld mirrors ClaimRepo.AcquireHeld: the write succeeds when
// no row exists, when the existing hold has lapsed, or when the same
// session re-acquires its own live hold.
func (s *MemoryClaimStore) AcquireHeld(_ context.Context, c model.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := claimKey{c.ShowID, c.SeatID}
	existing, ok := s.claims[key]
	if ok {
		stealable := existing.State == model.StateHeld &&
			(existing.ExpiredAt(c.AcquiredAt) || existing.OwnerSessionID == c.OwnerSessionID)
		if !stealable {
			return conflictFor(string(existing.State))
		}
	}
	s.claims[key] = c
	return nil
}

// Renew extends a live hold owned by the session.
func (s *MemoryClaimStore) Renew(_ context.Context, showID uint64, seatID, sessionID string, now, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := claimKey{showID, seatID}
	existing, ok := s.claims[key]
	if !ok || existing.ExpiredAt(now) {
		return ErrAlreadyAbsent
	}
	if existing.State != model.StateHeld || existing.OwnerSessionID != sessionID {
		return ErrNotOwner
	}
	u := until
	existing.AcquiredAt = now
	existing.ExpiresAt = &u
	s.claims[key] = existing
	return nil
}

// ReleaseOwned deletes a hold only when the session owns it.
func (s *MemoryClaimStore) ReleaseOwned(_ context.Context, showID uint64, seatID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := claimKey{showID, seatID}
	existing, ok := s.claims[key]
	if !ok {
		return ErrAlreadyAbsent
	}
	if existing.State != model.StateHeld || existing.OwnerSessionID != sessionID {
		return ErrNotOwner
	}
	delete(s.claims, key)
	return nil
}

// PlaceBlock writes a non-expiring operator block, stealing only
// lapsed holds.
func (s *MemoryClaimStore) PlaceBlock(_ context.Context, c model.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := claimKey{c.ShowID, c.SeatID}
	existing, ok := s.claims[key]
	if ok {
		stealable := existing.State == model.StateHeld && existing.ExpiredAt(c.AcquiredAt)
		if !stealable {
			return conflictFor(string(existing.State))
		}
	}
	s.claims[key] = c
	return nil
}

// RemoveBlock deletes an operator block, reporting whether one existed.
func (s *MemoryClaimStore) RemoveBlock(_ context.Context, showID uint64, seatID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := claimKey{showID, seatID}
	existing, ok := s.claims[key]
	if !ok || existing.State != model.StateBlocked {
		return false, nil
	}
	delete(s.claims, key)
	return true, nil
}

// MarkSold escalates to a terminal state, refusing only when a
// different locator already finalized the seat.
func (s *MemoryClaimStore) MarkSold(_ context.Context, showID uint64, seatID, tenantID, sessionID string, state model.ClaimState, locator string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := claimKey{showID, seatID}
	loc := locator
	existing, ok := s.claims[key]
	if ok {
		if existing.Terminal() {
			if existing.SaleLocator != nil && *existing.SaleLocator == locator {
				return nil
			}
			return conflictFor(string(existing.State))
		}
		existing.State = state
		existing.ExpiresAt = nil
		existing.SaleLocator = &loc
		existing.AcquiredAt = now
		s.claims[key] = existing
		return nil
	}
	s.claims[key] = model.Claim{
		ShowID:         showID,
		SeatID:         seatID,
		TenantID:       tenantID,
		OwnerSessionID: sessionID,
		Kind:           model.KindSeat,
		State:          state,
		AcquiredAt:     now,
		SaleLocator:    &loc,
	}
	return nil
}

// DeleteAny removes whatever claim exists, returning the removed row.
func (s *MemoryClaimStore) DeleteAny(_ context.Context, showID uint64, seatID string) (*model.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := claimKey{showID, seatID}
	existing, ok := s.claims[key]
	if !ok {
		return nil, nil
	}
	delete(s.claims, key)
	return &existing, nil
}

// Get returns the claim row for a seat, or (nil, nil) when absent.
func (s *MemoryClaimStore) Get(_ context.Context, showID uint64, seatID string) (*model.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.claims[claimKey{showID, seatID}]
	if !ok {
		return nil, nil
	}
	c := existing
	return &c, nil
}

// ListByShow returns every claim row for one show.
func (s *MemoryClaimStore) ListByShow(_ context.Context, showID uint64) ([]model.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var claims []model.Claim
	for key, c := range s.claims {
		if key.showID == showID {
			claims = append(claims, c)
		}
	}
	return claims, nil
}
