package model

import "time"

// ClaimState describes the disposition of a seat within one show.
// The two branches of the lifecycle share the same row and key space:
// a TTL-bound "held" claim owned by a shopper session, and a
// non-expiring "blocked" claim placed by an operator. "sold" and
// "reserved" are terminal; only an audited operator override removes
// them.
type ClaimState string

const (
	StateHeld     ClaimState = "held"
	StateBlocked  ClaimState = "blocked"
	StateSold     ClaimState = "sold"
	StateReserved ClaimState = "reserved"
)

// ClaimKind distinguishes a single seat from a table, where a claim
// cascades to the whole group.
type ClaimKind string

const (
	KindSeat  ClaimKind = "seat"
	KindTable ClaimKind = "table"
)

// Claim represents the current disposition of one seat in one show.
// There is at most one row per (show_id, seat_id); the store's
// uniqueness constraint on that key is the only arbitration mechanism
// between concurrent acquirers.
//
// Fields:
//  ShowID         - performance being sold; seat IDs are unique within it.
//  SeatID         - seat or table identifier from the seating chart.
//  TenantID       - owning organization; empty when the installation is
//                   single-tenant.
//  OwnerSessionID - session holding the claim (held/blocked only).
//  Kind           - seat or table.
//  State          - held, blocked, sold or reserved.
//  AcquiredAt     - creation or last renewal time.
//  ExpiresAt      - nil means the claim never auto-expires; held claims
//                   always carry a value.
//  SaleLocator    - completed-transaction reference, set only for
//                   sold/reserved claims.
type Claim struct {
	ShowID         uint64     `json:"show_id"`
	SeatID         string     `json:"seat_id"`
	TenantID       string     `json:"tenant_id,omitempty"`
	OwnerSessionID string     `json:"session_id"`
	Kind           ClaimKind  `json:"kind"`
	State          ClaimState `json:"state"`
	AcquiredAt     time.Time  `json:"acquired_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	SaleLocator    *string    `json:"sale_locator,omitempty"`
}

// ExpiredAt reports whether the claim has lapsed as of now. Only held
// claims expire; blocked, sold and reserved rows never do. Expiry is
// evaluated at read time everywhere; there is no background sweep.
func (c *Claim) ExpiredAt(now time.Time) bool {
	if c.State != StateHeld {
		return false
	}
	if c.ExpiresAt == nil {
		return false
	}
	return !c.ExpiresAt.After(now)
}

// ActiveAt reports whether the claim still excludes other sessions as
// of now. An expired held row is equivalent to no row at all.
func (c *Claim) ActiveAt(now time.Time) bool {
	return !c.ExpiredAt(now)
}

// Terminal reports whether the claim has reached a state that ordinary
// acquire/release calls can never undo.
func (c *Claim) Terminal() bool {
	return c.State == StateSold || c.State == StateReserved
}
