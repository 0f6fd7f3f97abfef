package reconciler_test

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvenue/seatclaim/internal/clock"
	"github.com/openvenue/seatclaim/internal/feed"
	"github.com/openvenue/seatclaim/internal/model"
	"github.com/openvenue/seatclaim/internal/reconciler"
)

const localSession = "sess-local"

func newTestReconciler(priceFn reconciler.PriceFunc) (*reconciler.Reconciler, *clock.Fixed) {
	clk := clock.NewFixed(time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC))
	r := reconciler.New(model.SessionContext{SessionID: localSession}, clk, priceFn)
	return r, clk
}

func heldClaim(seatID, owner string, expires time.Time) model.Claim {
	e := expires
	return model.Claim{
		ShowID:         77,
		SeatID:         seatID,
		OwnerSessionID: owner,
		Kind:           model.KindSeat,
		State:          model.StateHeld,
		AcquiredAt:     expires.Add(-15 * time.Minute),
		ExpiresAt:      &e,
	}
}

func insertEvent(c model.Claim) feed.Event {
	return feed.Event{Op: feed.OpInsert, ShowID: c.ShowID, SeatID: c.SeatID, After: &c}
}

func deleteEvent(c model.Claim) feed.Event {
	return feed.Event{Op: feed.OpDelete, ShowID: c.ShowID, SeatID: c.SeatID, Before: &c}
}

func cartSeats(r *reconciler.Reconciler) []string {
	var seats []string
	for _, entry := range r.Cart() {
		seats = append(seats, entry.SeatID)
	}
	return seats
}

func TestForeignEventsNeverTouchCart(t *testing.T) {
	r, clk := newTestReconciler(nil)
	r.OnAcquireGranted(heldClaim("S12", localSession, clk.Now().Add(15*time.Minute)), "Stalls", 4500)

	other := heldClaim("S13", "sess-other", clk.Now().Add(15*time.Minute))
	r.Apply(insertEvent(other))
	assert.Equal(t, model.ViewHeldByOther, r.View("S13"))
	assert.Equal(t, []string{"S12"}, cartSeats(r))

	r.Apply(deleteEvent(other))
	assert.Equal(t, model.ViewAvailable, r.View("S13"))
	assert.Equal(t, []string{"S12"}, cartSeats(r))
}

func TestOwnDeleteEvictsCartEntry(t *testing.T) {
	r, clk := newTestReconciler(nil)
	own := heldClaim("S12", localSession, clk.Now().Add(15*time.Minute))
	r.OnAcquireGranted(own, "Stalls", 4500)
	require.Equal(t, []string{"S12"}, cartSeats(r))

	// An operator force-clear or another window's release arrives on
	// the feed; the cart must follow the authoritative state.
	r.Apply(deleteEvent(own))
	assert.Empty(t, cartSeats(r))
	assert.Equal(t, model.ViewAvailable, r.View("S12"))
}

func TestOwnHeldEventSelfHealsCart(t *testing.T) {
	r, clk := newTestReconciler(nil)
	r.SetSelection("Balcony", 3200)

	// The acquire succeeded on the store but the local confirmation
	// was lost; the feed echo repairs the cart.
	r.Apply(insertEvent(heldClaim("S14", localSession, clk.Now().Add(15*time.Minute))))

	entries := r.Cart()
	require.Len(t, entries, 1)
	assert.Equal(t, "S14", entries[0].SeatID)
	assert.Equal(t, "Balcony", entries[0].ZoneName)
	assert.Equal(t, uint32(3200), entries[0].PriceCents)
	assert.Equal(t, model.ViewHeldByMe, r.View("S14"))
}

func TestOwnHeldEventWithoutPriceContextStaysOutOfCart(t *testing.T) {
	r, clk := newTestReconciler(nil)

	r.Apply(insertEvent(heldClaim("S14", localSession, clk.Now().Add(15*time.Minute))))

	assert.Empty(t, cartSeats(r), "recovery must not invent a price")
	assert.Equal(t, model.ViewHeldByMe, r.View("S14"), "the claim itself is still mirrored")
}

func TestOwnSoldEventRemovesCartEntry(t *testing.T) {
	r, clk := newTestReconciler(nil)
	own := heldClaim("S12", localSession, clk.Now().Add(15*time.Minute))
	r.OnAcquireGranted(own, "Stalls", 4500)

	loc := "LOC-001"
	sold := own
	sold.State = model.StateSold
	sold.ExpiresAt = nil
	sold.SaleLocator = &loc
	r.Apply(feed.Event{Op: feed.OpUpdate, ShowID: 77, SeatID: "S12", Before: &own, After: &sold})

	assert.Empty(t, cartSeats(r))
	assert.Equal(t, model.ViewSold, r.View("S12"))
}

func TestExpiredOwnHoldPrunedAtReadTime(t *testing.T) {
	r, clk := newTestReconciler(nil)
	r.OnAcquireGranted(heldClaim("S12", localSession, clk.Now().Add(15*time.Minute)), "Stalls", 4500)

	clk.Advance(16 * time.Minute)

	assert.Equal(t, model.ViewAvailable, r.View("S12"))
	assert.Empty(t, cartSeats(r), "no explicit deletion ran; expiry alone empties the cart")
}

func TestResyncDiscardsNeverAcquiredSelections(t *testing.T) {
	r, clk := newTestReconciler(nil)
	r.OnAcquireGranted(heldClaim("S12", localSession, clk.Now().Add(15*time.Minute)), "Stalls", 4500)
	r.OnAcquireGranted(heldClaim("S13", localSession, clk.Now().Add(15*time.Minute)), "Stalls", 4500)

	// The authoritative snapshot only knows about S12: the S13
	// acquire never became durable.
	r.Resync([]model.Claim{
		heldClaim("S12", localSession, clk.Now().Add(15*time.Minute)),
		heldClaim("S40", "sess-other", clk.Now().Add(15*time.Minute)),
	})

	assert.Equal(t, []string{"S12"}, cartSeats(r))
	assert.Equal(t, model.ViewHeldByOther, r.View("S40"))
	assert.Equal(t, model.ViewAvailable, r.View("S13"))
}

func TestResyncRecoversOwnClaimsViaPriceFn(t *testing.T) {
	prices := map[string]uint32{"S15": 2800}
	priceFn := func(seatID string) (string, uint32, bool) {
		p, ok := prices[seatID]
		return "Circle", p, ok
	}
	r, clk := newTestReconciler(priceFn)

	r.Resync([]model.Claim{
		heldClaim("S15", localSession, clk.Now().Add(15*time.Minute)),
		heldClaim("S16", localSession, clk.Now().Add(15*time.Minute)),
	})

	entries := r.Cart()
	require.Len(t, entries, 1, "claims without a recoverable price stay out of the cart")
	assert.Equal(t, "S15", entries[0].SeatID)
	assert.Equal(t, uint32(2800), entries[0].PriceCents)
}

func TestReleaseFailureKeepsCartEntry(t *testing.T) {
	r, clk := newTestReconciler(nil)
	r.OnAcquireGranted(heldClaim("S12", localSession, clk.Now().Add(15*time.Minute)), "Stalls", 4500)

	failed := errors.New("store unreachable")
	err := r.OnReleaseResult("S12", failed)
	assert.ErrorIs(t, err, failed)
	assert.Equal(t, []string{"S12"}, cartSeats(r), "the seat is still billable until the release is known to have happened")

	require.NoError(t, r.OnReleaseResult("S12", nil))
	assert.Empty(t, cartSeats(r))
}

// TestConvergenceUnderInterleaving drives the reconciler with many
// randomized interleavings of per-seat event streams. Whatever the
// cross-seat order, the cart must end up exactly equal to the set of
// live claims owned by the local session.
func TestConvergenceUnderInterleaving(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 50; trial++ {
		r, clk := newTestReconciler(nil)
		r.SetSelection("Stalls", 4500)
		expires := clk.Now().Add(15 * time.Minute)

		// Per-seat streams: each seat sees its own events in order,
		// but streams interleave arbitrarily across seats.
		streams := map[string][]feed.Event{}
		finalOwned := map[string]bool{}
		for s := 0; s < 8; s++ {
			seatID := fmt.Sprintf("S%02d", s)
			owner := localSession
			if s%2 == 1 {
				owner = "sess-other"
			}
			c := heldClaim(seatID, owner, expires)
			evs := []feed.Event{insertEvent(c)}
			released := rng.Intn(2) == 0
			if released {
				evs = append(evs, deleteEvent(c))
			} else {
				// At-least-once delivery: duplicate the insert.
				evs = append(evs, insertEvent(c))
			}
			streams[seatID] = evs
			finalOwned[seatID] = !released && owner == localSession
		}

		for {
			var candidates []string
			for seatID, evs := range streams {
				if len(evs) > 0 {
					candidates = append(candidates, seatID)
				}
			}
			if len(candidates) == 0 {
				break
			}
			seatID := candidates[rng.Intn(len(candidates))]
			r.Apply(streams[seatID][0])
			streams[seatID] = streams[seatID][1:]
		}

		var want []string
		for seatID, owned := range finalOwned {
			if owned {
				want = append(want, seatID)
			}
		}
		assert.ElementsMatch(t, want, cartSeats(r), "trial %d", trial)
	}
}

func TestTooltipCarriesZoneAndPrice(t *testing.T) {
	r, clk := newTestReconciler(nil)
	r.OnAcquireGranted(heldClaim("S12", localSession, clk.Now().Add(15*time.Minute)), "Stalls", 4550)

	assert.Equal(t, "Stalls (45.50)", r.Tooltip("S12"))
	assert.Equal(t, "", r.Tooltip("S13"))
}
