// Package queue defines message payloads exchanged over the message broker.
package queue

// ClaimAuditEvent is published for every administratively relevant
// claim transition: seats sold or reserved, operator blocks placed or
// lifted, and force-clears of terminal claims. It carries enough
// context for downstream consumers to log or reconcile without
// querying the primary database.
type ClaimAuditEvent struct {
	Op          string `json:"op"` // sold, reserved, blocked, unblocked, force_cleared
	ShowID      uint64 `json:"show_id"`
	SeatID      string `json:"seat_id"`
	TenantID    string `json:"tenant_id,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	SaleLocator string `json:"sale_locator,omitempty"`
	At          string `json:"at"`
}
