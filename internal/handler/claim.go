package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/openvenue/seatclaim/internal/lease"
	"github.com/openvenue/seatclaim/internal/middleware"
	"github.com/openvenue/seatclaim/internal/model"
)

// ClaimHandler exposes the shopper side of the lease manager: acquire,
// renew and release claims, and read the claim snapshot used for
// resynchronization. Session identity is resolved by middleware and
// passed explicitly into every engine call.
type ClaimHandler struct {
	Manager *lease.Manager
}

// NewClaimHandler constructs a ClaimHandler. The manager must be non-nil.
func NewClaimHandler(m *lease.Manager) *ClaimHandler {
	if m == nil {
		panic("nil manager passed to NewClaimHandler")
	}
	return &ClaimHandler{Manager: m}
}

// claimRequest is the acquire body: the price/zone context the
// session selected before clicking. The engine rejects acquisition
// without it, before any store call.
type claimRequest struct {
	ZoneName   string `json:"zone_name"`
	PriceCents uint32 `json:"price_cents"`
	Kind       string `json:"kind,omitempty"`
}

// Acquire handles POST /v1/shows/:id/seats/:seat/claim. On success it
// returns 201 with the written claim, including the expiry the client
// should renew before. Conflicts return 409 with the refusal reason.
func (h *ClaimHandler) Acquire(c echo.Context) error {
	showID, seatID, err := pathShowSeat(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	var body claimRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	sess := middleware.CurrentSession(c)
	claim, err := h.Manager.Acquire(c.Request().Context(), sess, showID, seatID,
		lease.PriceSelection{ZoneName: body.ZoneName, PriceCents: body.PriceCents},
		model.ClaimKind(body.Kind),
	)
	if err != nil {
		return writeClaimError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"claim": claim})
}

// Renew handles PUT /v1/shows/:id/seats/:seat/claim. It extends the
// session's live hold by a full TTL.
func (h *ClaimHandler) Renew(c echo.Context) error {
	showID, seatID, err := pathShowSeat(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	sess := middleware.CurrentSession(c)
	claim, err := h.Manager.Renew(c.Request().Context(), sess, showID, seatID)
	if err != nil {
		return writeClaimError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"claim": claim})
}

// Release handles DELETE /v1/shows/:id/seats/:seat/claim. Only the
// owning session can release; NotOwner and AlreadyAbsent come back as
// distinguishable errors so the client resynchronizes instead of
// assuming success.
func (h *ClaimHandler) Release(c echo.Context) error {
	showID, seatID, err := pathShowSeat(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	sess := middleware.CurrentSession(c)
	if err := h.Manager.Release(c.Request().Context(), sess, showID, seatID); err != nil {
		return writeClaimError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"released": seatID})
}

// Snapshot handles GET /v1/shows/:id/claims. It returns every live
// claim for the show; lapsed holds are filtered at read time. Clients
// call it on initial load and whenever their feed subscription
// reconnects.
func (h *ClaimHandler) Snapshot(c echo.Context) error {
	showID, err := pathShow(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	claims, err := h.Manager.Snapshot(c.Request().Context(), showID)
	if err != nil {
		return writeClaimError(c, err)
	}
	if claims == nil {
		claims = []model.Claim{}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"items":       claims,
		"ttl_seconds": int(h.Manager.TTL() / time.Second),
	})
}

func pathShow(c echo.Context) (uint64, error) {
	showID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || showID == 0 {
		return 0, errInvalidShowID
	}
	return showID, nil
}

func pathShowSeat(c echo.Context) (uint64, string, error) {
	showID, err := pathShow(c)
	if err != nil {
		return 0, "", err
	}
	seatID := c.Param("seat")
	if seatID == "" {
		return 0, "", errInvalidSeatID
	}
	return showID, seatID, nil
}

var (
	errInvalidShowID = errors.New("invalid show id")
	errInvalidSeatID = errors.New("invalid seat id")
)
