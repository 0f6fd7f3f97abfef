// Package lease implements the reservation engine's state machine:
// TTL-bound holds owned by shopper sessions, non-expiring operator
// blocks, and the terminal sold/reserved escalation driven by the
// payment collaborator. The claim store's unique (show, seat) key is
// the only serialization point; the manager never read-modify-writes
// a row.
package lease

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/openvenue/seatclaim/internal/clock"
	"github.com/openvenue/seatclaim/internal/feed"
	"github.com/openvenue/seatclaim/internal/model"
	"github.com/openvenue/seatclaim/internal/repository"
)

// ErrNoPriceSelected is returned when a session clicks a seat before
// choosing a price/zone. Pure input validation: no store call is made.
var ErrNoPriceSelected = errors.New("no price selected")

// ErrNotOperator is returned when a shopper session calls an
// operator-only operation.
var ErrNotOperator = errors.New("operator session required")

// DefaultTTL bounds a hold when the configuration does not override
// it. Lease expiry is the system's liveness mechanism: a session that
// disappears mid-flow is recovered purely by its holds lapsing.
const DefaultTTL = 12 * time.Minute

// ClaimStore is the persistence boundary of the engine. Both the
// MySQL repository and the in-memory store satisfy it.
type ClaimStore interface {
	AcquireHeld(ctx context.Context, c model.Claim) error
	Renew(ctx context.Context, showID uint64, seatID, sessionID string, now, until time.Time) error
	ReleaseOwned(ctx context.Context, showID uint64, seatID, sessionID string) error
	PlaceBlock(ctx context.Context, c model.Claim) error
	RemoveBlock(ctx context.Context, showID uint64, seatID string) (bool, error)
	MarkSold(ctx context.Context, showID uint64, seatID, tenantID, sessionID string, state model.ClaimState, locator string, now time.Time) error
	DeleteAny(ctx context.Context, showID uint64, seatID string) (*model.Claim, error)
	Get(ctx context.Context, showID uint64, seatID string) (*model.Claim, error)
	ListByShow(ctx context.Context, showID uint64) ([]model.Claim, error)
}

// PriceSelection is the zone/price context a session attached when it
// clicked the seat. The engine validates its presence, not its value;
// pricing itself belongs to an external collaborator.
type PriceSelection struct {
	ZoneName   string
	PriceCents uint32
}

// Selected reports whether any price context was chosen.
func (p PriceSelection) Selected() bool { return p.ZoneName != "" }

// Manager acquires, renews, releases and finalizes claims, and
// publishes every committed row change to the change feed.
type Manager struct {
	store ClaimStore
	pub   feed.Publisher
	clk   clock.Clock
	ttl   time.Duration
}

// NewManager wires the engine. A zero ttl falls back to DefaultTTL;
// a nil publisher disables fan-out (sessions still converge through
// resync).
func NewManager(store ClaimStore, pub feed.Publisher, clk clock.Clock, ttl time.Duration) *Manager {
	if store == nil {
		panic("nil store passed to NewManager")
	}
	if pub == nil {
		pub = feed.NopPublisher{}
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, pub: pub, clk: clk, ttl: ttl}
}

// TTL returns the hold duration the manager grants.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Acquire claims a seat for the session with a TTL-bound hold. The
// single atomic upsert in the store is the arbitration point: of two
// concurrent acquirers, exactly one gets the row and the other
// receives a conflict, never a silent overwrite. Sold, reserved,
// blocked and live foreign holds all refuse; a lapsed hold is
// equivalent to no row.
func (m *Manager) Acquire(ctx context.Context, sess model.SessionContext, showID uint64, seatID string, sel PriceSelection, kind model.ClaimKind) (*model.Claim, error) {
	if !sel.Selected() {
		return nil, ErrNoPriceSelected
	}
	if kind == "" {
		kind = model.KindSeat
	}
	now := m.clk.Now()
	expires := now.Add(m.ttl)
	c := model.Claim{
		ShowID:         showID,
		SeatID:         seatID,
		TenantID:       sess.TenantID,
		OwnerSessionID: sess.SessionID,
		Kind:           kind,
		State:          model.StateHeld,
		AcquiredAt:     now,
		ExpiresAt:      &expires,
	}
	if err := m.store.AcquireHeld(ctx, c); err != nil {
		return nil, err
	}
	m.publish(ctx, feed.Event{Op: feed.OpInsert, ShowID: showID, SeatID: seatID, After: &c})
	return &c, nil
}

// Renew extends the session's live hold by a full TTL, keeping a cart
// alive across a long checkout. Lapsed or foreign holds fail with
// ErrAlreadyAbsent / ErrNotOwner from the store.
func (m *Manager) Renew(ctx context.Context, sess model.SessionContext, showID uint64, seatID string) (*model.Claim, error) {
	now := m.clk.Now()
	until := now.Add(m.ttl)
	if err := m.store.Renew(ctx, showID, seatID, sess.SessionID, now, until); err != nil {
		return nil, err
	}
	c, err := m.store.Get(ctx, showID, seatID)
	if err == nil && c != nil {
		m.publish(ctx, feed.Event{Op: feed.OpUpdate, ShowID: showID, SeatID: seatID, After: c})
	}
	return c, err
}

// Release deletes the session's hold. The delete is guarded by an
// ownership comparison in the store; NotOwner and AlreadyAbsent come
// back as distinguishable errors so the caller resynchronizes instead
// of assuming success.
func (m *Manager) Release(ctx context.Context, sess model.SessionContext, showID uint64, seatID string) error {
	if err := m.store.ReleaseOwned(ctx, showID, seatID, sess.SessionID); err != nil {
		return err
	}
	before := model.Claim{
		ShowID:         showID,
		SeatID:         seatID,
		OwnerSessionID: sess.SessionID,
		State:          model.StateHeld,
	}
	m.publish(ctx, feed.Event{Op: feed.OpDelete, ShowID: showID, SeatID: seatID, Before: &before})
	return nil
}

// BlockResult reports which way a toggle landed.
type BlockResult struct {
	Blocked bool
	Claim   *model.Claim
}

// ToggleBlock places or removes a non-expiring operator block. Blocks
// share the claims row and key with ordinary holds, so a blocked seat
// also refuses Acquire. A seat held live by a shopper cannot be
// blocked; the operator sees a conflict instead.
func (m *Manager) ToggleBlock(ctx context.Context, sess model.SessionContext, showID uint64, seatID string) (BlockResult, error) {
	if !sess.Operator {
		return BlockResult{}, ErrNotOperator
	}
	existing, err := m.store.Get(ctx, showID, seatID)
	if err != nil {
		return BlockResult{}, err
	}
	if existing != nil && existing.State == model.StateBlocked {
		if !sess.SameTenant(existing.TenantID) {
			return BlockResult{}, errTenantMismatch(existing.TenantID)
		}
		removed, err := m.store.RemoveBlock(ctx, showID, seatID)
		if err != nil {
			return BlockResult{}, err
		}
		if removed {
			m.publish(ctx, feed.Event{Op: feed.OpDelete, ShowID: showID, SeatID: seatID, Before: existing})
			return BlockResult{Blocked: false}, nil
		}
		// Raced with another operator's toggle; fall through and try
		// to place the block again.
	}
	now := m.clk.Now()
	c := model.Claim{
		ShowID:         showID,
		SeatID:         seatID,
		TenantID:       sess.TenantID,
		OwnerSessionID: sess.SessionID,
		Kind:           model.KindSeat,
		State:          model.StateBlocked,
		AcquiredAt:     now,
	}
	if err := m.store.PlaceBlock(ctx, c); err != nil {
		return BlockResult{}, err
	}
	m.publish(ctx, feed.Event{Op: feed.OpInsert, ShowID: showID, SeatID: seatID, After: &c})
	return BlockResult{Blocked: true, Claim: &c}, nil
}

// MarkSold escalates each seat to its terminal state after the
// payment collaborator captured funds. reserve=true records a
// pay-at-venue sale; the engine semantics are identical. The
// escalation is idempotent per locator and proceeds even when a hold
// lapsed mid-payment, since the capture already happened.
func (m *Manager) MarkSold(ctx context.Context, showID uint64, seatIDs []string, locator string, reserve bool) error {
	state := model.StateSold
	if reserve {
		state = model.StateReserved
	}
	now := m.clk.Now()
	for _, seatID := range seatIDs {
		tenantID, sessionID := "", ""
		if existing, err := m.store.Get(ctx, showID, seatID); err == nil && existing != nil {
			tenantID, sessionID = existing.TenantID, existing.OwnerSessionID
		}
		if err := m.store.MarkSold(ctx, showID, seatID, tenantID, sessionID, state, locator, now); err != nil {
			return err
		}
		c, err := m.store.Get(ctx, showID, seatID)
		if err == nil && c != nil {
			m.publish(ctx, feed.Event{Op: feed.OpUpdate, ShowID: showID, SeatID: seatID, After: c})
		}
	}
	return nil
}

// ForceClear is the audited operator override that removes any claim,
// including sold and reserved ones. It is deliberately unreachable
// from ordinary acquire/release. Returns the removed claim, or nil
// when the seat had none.
func (m *Manager) ForceClear(ctx context.Context, sess model.SessionContext, showID uint64, seatID string) (*model.Claim, error) {
	if !sess.Operator {
		return nil, ErrNotOperator
	}
	existing, err := m.store.Get(ctx, showID, seatID)
	if err != nil {
		return nil, err
	}
	if existing != nil && !sess.SameTenant(existing.TenantID) {
		return nil, errTenantMismatch(existing.TenantID)
	}
	removed, err := m.store.DeleteAny(ctx, showID, seatID)
	if err != nil {
		return nil, err
	}
	if removed != nil {
		m.publish(ctx, feed.Event{Op: feed.OpDelete, ShowID: showID, SeatID: seatID, Before: removed})
	}
	return removed, nil
}

// Snapshot returns the live claims for a show, filtering lapsed holds
// at read time. This backs the resync path of every subscriber.
func (m *Manager) Snapshot(ctx context.Context, showID uint64) ([]model.Claim, error) {
	claims, err := m.store.ListByShow(ctx, showID)
	if err != nil {
		return nil, err
	}
	now := m.clk.Now()
	live := claims[:0]
	for _, c := range claims {
		if c.ActiveAt(now) {
			live = append(live, c)
		}
	}
	return live, nil
}

func errTenantMismatch(tenantID string) error {
	return fmt.Errorf("%w: %s", repository.ErrTenantMismatch, tenantID)
}

// publish pushes an event to the feed. The store is the source of
// truth and subscribers heal through resync, so a failed publish is
// logged rather than surfaced to the user.
func (m *Manager) publish(ctx context.Context, ev feed.Event) {
	if err := m.pub.Publish(ctx, ev); err != nil {
		log.Printf("lease: feed publish for show %d seat %s failed: %v", ev.ShowID, ev.SeatID, err)
	}
}
