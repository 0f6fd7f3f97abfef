// Package reconciler keeps one session's view of a show consistent
// with authoritative claim state. It mirrors the claim table into
// knownClaims, derives the session's cart strictly from claims it
// owns, and consumes the change feed plus one resync-on-(re)connect
// path. The cart is never shared state: entries exist only while a
// matching held/blocked claim owned by this session exists.
package reconciler

import (
	"fmt"
	"sort"
	"sync"

	"github.com/openvenue/seatclaim/internal/clock"
	"github.com/openvenue/seatclaim/internal/feed"
	"github.com/openvenue/seatclaim/internal/model"
)

// PriceFunc recovers price/zone metadata for a seat when the cart has
// no entry for an owned claim (e.g. the claim survived in the store
// but the local selection was lost). Returning ok=false keeps the
// claim out of the cart; the recovery is best-effort and never
// invents a price.
type PriceFunc func(seatID string) (zone string, priceCents uint32, ok bool)

// Reconciler is the per-session mirror. All methods are safe for the
// concurrent interleaving of user-initiated calls and feed delivery.
type Reconciler struct {
	mu      sync.Mutex
	sess    model.SessionContext
	clk     clock.Clock
	priceFn PriceFunc

	known     map[string]model.Claim
	cart      map[string]model.CartEntry
	selection *model.CartEntry
}

// New builds a reconciler for one session and show. priceFn may be
// nil when no recovery source exists.
func New(sess model.SessionContext, clk clock.Clock, priceFn PriceFunc) *Reconciler {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Reconciler{
		sess:    sess,
		clk:     clk,
		priceFn: priceFn,
		known:   make(map[string]model.Claim),
		cart:    make(map[string]model.CartEntry),
	}
}

// SetSelection records the price/zone the user currently has picked.
// Self-healed cart entries use it when an owned hold appears on the
// feed before the local acquire confirmation arrived.
func (r *Reconciler) SetSelection(zone string, priceCents uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selection = &model.CartEntry{ZoneName: zone, PriceCents: priceCents}
}

// ClearSelection forgets the current price context.
func (r *Reconciler) ClearSelection() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selection = nil
}

// Apply consumes one change feed event. knownClaims always updates;
// the cart mutates only for events owned by the local session, so a
// foreign claim can never evict a local selection.
func (r *Reconciler) Apply(ev feed.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.Op == feed.OpDelete || ev.After == nil {
		prior, had := r.known[ev.SeatID]
		delete(r.known, ev.SeatID)
		owner := ""
		if ev.Before != nil {
			owner = ev.Before.OwnerSessionID
		} else if had {
			owner = prior.OwnerSessionID
		}
		if owner == r.sess.SessionID {
			delete(r.cart, ev.SeatID)
		}
		return
	}

	c := *ev.After
	r.known[ev.SeatID] = c
	if c.OwnerSessionID != r.sess.SessionID {
		return
	}
	switch c.State {
	case model.StateHeld, model.StateBlocked:
		if _, ok := r.cart[ev.SeatID]; !ok {
			if entry, ok := r.entryFor(ev.SeatID); ok {
				r.cart[ev.SeatID] = entry
			}
		}
	default:
		// sold/reserved: the checkout is done, the selection is no
		// longer billable state.
		delete(r.cart, ev.SeatID)
	}
}

// Resync replaces the mirror with a full authoritative snapshot and
// re-derives the cart from it: entries keep their metadata when their
// claim survived, entries without a claim are discarded (they were
// never durably acquired), and owned claims without an entry are
// synthesized best-effort.
func (r *Reconciler) Resync(claims []model.Claim) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clk.Now()
	r.known = make(map[string]model.Claim, len(claims))
	for _, c := range claims {
		if c.ExpiredAt(now) {
			continue
		}
		r.known[c.SeatID] = c
	}

	next := make(map[string]model.CartEntry)
	for seatID, c := range r.known {
		if c.OwnerSessionID != r.sess.SessionID {
			continue
		}
		if c.State != model.StateHeld && c.State != model.StateBlocked {
			continue
		}
		if entry, ok := r.cart[seatID]; ok {
			next[seatID] = entry
			continue
		}
		if entry, ok := r.entryFor(seatID); ok {
			next[seatID] = entry
		}
	}
	r.cart = next
}

// OnAcquireGranted records a confirmed acquisition: mirror the claim
// and add the cart entry with the metadata the user selected. An
// acquire that timed out or errored must never reach this method;
// the seat stays out of the cart until a feed event proves otherwise.
func (r *Reconciler) OnAcquireGranted(c model.Claim, zone string, priceCents uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.known[c.SeatID] = c
	r.cart[c.SeatID] = model.CartEntry{SeatID: c.SeatID, ZoneName: zone, PriceCents: priceCents}
}

// OnReleaseResult reconciles a release call. Success removes the seat
// locally; failure keeps the entry and propagates the error, so the
// UI never diverges from the billable state.
func (r *Reconciler) OnReleaseResult(seatID string, err error) error {
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.known[seatID]; ok && c.OwnerSessionID == r.sess.SessionID {
		delete(r.known, seatID)
	}
	delete(r.cart, seatID)
	return nil
}

// Cart returns the session's current selections, sorted by seat, with
// entries whose backing claim lapsed pruned at read time.
func (r *Reconciler) Cart() []model.CartEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clk.Now()
	entries := make([]model.CartEntry, 0, len(r.cart))
	for seatID, entry := range r.cart {
		c, ok := r.known[seatID]
		if !ok || c.ExpiredAt(now) || c.OwnerSessionID != r.sess.SessionID {
			delete(r.cart, seatID)
			continue
		}
		entry.SeatID = seatID
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].SeatID < entries[j].SeatID })
	return entries
}

// View derives the presentation state for one seat, evaluating hold
// expiry at read time so a lapsed hold renders available without any
// explicit deletion.
func (r *Reconciler) View(seatID string) model.SeatView {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.known[seatID]
	if !ok || c.ExpiredAt(r.clk.Now()) {
		return model.ViewAvailable
	}
	switch c.State {
	case model.StateBlocked:
		return model.ViewBlocked
	case model.StateSold:
		return model.ViewSold
	case model.StateReserved:
		return model.ViewReserved
	case model.StateHeld:
		if c.OwnerSessionID == r.sess.SessionID {
			return model.ViewHeldByMe
		}
		return model.ViewHeldByOther
	}
	return model.ViewAvailable
}

// Tooltip renders the human hint for a seat: zone and price when this
// session selected it, empty otherwise.
func (r *Reconciler) Tooltip(seatID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.cart[seatID]
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s (%d.%02d)", entry.ZoneName, entry.PriceCents/100, entry.PriceCents%100)
}

// entryFor builds a cart entry from the current selection, falling
// back to the recovery source. Callers hold r.mu.
func (r *Reconciler) entryFor(seatID string) (model.CartEntry, bool) {
	if r.selection != nil {
		return model.CartEntry{SeatID: seatID, ZoneName: r.selection.ZoneName, PriceCents: r.selection.PriceCents}, true
	}
	if r.priceFn != nil {
		if zone, price, ok := r.priceFn(seatID); ok {
			return model.CartEntry{SeatID: seatID, ZoneName: zone, PriceCents: price}, true
		}
	}
	return model.CartEntry{}, false
}
