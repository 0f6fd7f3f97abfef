package model

// CartEntry is a client-local selection: a seat plus the price and
// zone metadata the session attached when it clicked. Entries are
// never shared state; their lifecycle is strictly derived from the
// session's own claims, and the reconciler deletes any entry whose
// backing claim has disappeared.
type CartEntry struct {
	SeatID     string `json:"seat_id"`
	ZoneName   string `json:"zone_name"`
	PriceCents uint32 `json:"price_cents"`
}

// SeatView is the derived presentation state for one seat, computed
// from the reconciler's mirror of the claim table.
type SeatView string

const (
	ViewAvailable   SeatView = "available"
	ViewHeldByMe    SeatView = "held_by_me"
	ViewHeldByOther SeatView = "held_by_other"
	ViewBlocked     SeatView = "blocked"
	ViewSold        SeatView = "sold"
	ViewReserved    SeatView = "reserved"
)
