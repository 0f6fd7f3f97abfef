package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/openvenue/seatclaim/internal/feed"
	"github.com/openvenue/seatclaim/internal/lease"
)

// FeedHandler bridges the redis change feed to browser sessions over
// Server-Sent Events, so storefront tabs get claim fan-out without a
// redis client of their own. The stream always opens with a full
// snapshot event: a client that reconnects after a gap resynchronizes
// before it sees any increment, because events missed during the gap
// are unrecoverable.
type FeedHandler struct {
	Manager *lease.Manager
	Rdb     *redis.Client
}

// NewFeedHandler constructs a FeedHandler. A nil redis client is
// allowed; the endpoint then reports the feed unavailable and clients
// fall back to polling the snapshot.
func NewFeedHandler(m *lease.Manager, rdb *redis.Client) *FeedHandler {
	if m == nil {
		panic("nil manager passed to NewFeedHandler")
	}
	return &FeedHandler{Manager: m, Rdb: rdb}
}

// Stream handles GET /v1/shows/:id/feed. Event order on the wire
// matches publish order on the show channel, which preserves per-seat
// order; duplicates are possible and clients must apply events
// idempotently.
func (h *FeedHandler) Stream(c echo.Context) error {
	showID, err := pathShow(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if h.Rdb == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "feed unavailable", "retry": true})
	}

	ctx := c.Request().Context()
	sub := h.Rdb.Subscribe(ctx, feed.ChannelFor(showID))
	defer func() { _ = sub.Close() }()
	// Confirm the subscription before reading the snapshot so nothing
	// committed in between can fall through the gap.
	if _, err := sub.Receive(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "feed unavailable", "retry": true})
	}

	claims, err := h.Manager.Snapshot(ctx, showID)
	if err != nil {
		return writeClaimError(c, err)
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-store")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	if err := writeSSE(res, "snapshot", claims); err != nil {
		return nil
	}
	res.Flush()

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat.C:
			if _, err := fmt.Fprint(res, ": keep-alive\n\n"); err != nil {
				return nil
			}
			res.Flush()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if _, err := fmt.Fprintf(res, "event: claim\ndata: %s\n\n", msg.Payload); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

func writeSSE(res *echo.Response, event string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(res, "event: %s\ndata: %s\n\n", event, body)
	return err
}
