// Package feed carries row-level claim changes from the store to
// every session watching a show. Events for one show travel over a
// single redis pub/sub channel, so publish order is preserved per
// seat; delivery is at-least-once, and a subscriber that reconnects
// resynchronizes from a full snapshot before resuming increments.
package feed

import (
	"strconv"

	"github.com/openvenue/seatclaim/internal/model"
)

// Op is the kind of row change an event describes.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event is one claim-row change. Before and After are row snapshots;
// deletes carry Before only, inserts carry After only. Consumers must
// tolerate duplicates; the reconciler's upserts are idempotent.
type Event struct {
	Op     Op           `json:"op"`
	ShowID uint64       `json:"show_id"`
	SeatID string       `json:"seat_id"`
	Before *model.Claim `json:"before,omitempty"`
	After  *model.Claim `json:"after,omitempty"`
}

// ChannelFor names the redis pub/sub channel for one show's claims.
func ChannelFor(showID uint64) string {
	return "claims." + strconv.FormatUint(showID, 10)
}
