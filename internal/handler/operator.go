package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/openvenue/seatclaim/internal/lease"
	"github.com/openvenue/seatclaim/internal/middleware"
	"github.com/openvenue/seatclaim/internal/queue"
	audit "github.com/openvenue/seatclaim/internal/service"
)

// OperatorHandler exposes the operator-only branch of the state
// machine: non-expiring blocks that take a seat off public sale, and
// the audited force-clear override. Routes behind it are wrapped in
// JWT auth with the OPERATOR role.
type OperatorHandler struct {
	Manager *lease.Manager
}

// NewOperatorHandler constructs an OperatorHandler. The manager must
// be non-nil.
func NewOperatorHandler(m *lease.Manager) *OperatorHandler {
	if m == nil {
		panic("nil manager passed to NewOperatorHandler")
	}
	return &OperatorHandler{Manager: m}
}

// ToggleBlock handles POST /v1/shows/:id/seats/:seat/block. The first
// call blocks the seat (no TTL), the second lifts the block. Blocks
// share the claim row with ordinary holds, so a blocked seat refuses
// shopper acquires and a live shopper hold refuses blocking.
func (h *OperatorHandler) ToggleBlock(c echo.Context) error {
	showID, seatID, err := pathShowSeat(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	sess := middleware.CurrentSession(c)
	res, err := h.Manager.ToggleBlock(c.Request().Context(), sess, showID, seatID)
	if err != nil {
		return writeClaimError(c, err)
	}
	op := "unblocked"
	if res.Blocked {
		op = "blocked"
	}
	_ = audit.PublishClaimAudit(c.Request().Context(), queue.ClaimAuditEvent{
		Op:        op,
		ShowID:    showID,
		SeatID:    seatID,
		TenantID:  sess.TenantID,
		SessionID: sess.SessionID,
		At:        time.Now().UTC().Format(time.RFC3339),
	})
	return c.JSON(http.StatusOK, echo.Map{"blocked": res.Blocked})
}

// ForceClear handles DELETE /v1/shows/:id/seats/:seat/force. It
// removes any claim, including sold and reserved ones. This is the
// administrative override that ordinary acquire/release can never
// reach; every use lands on the audit queue.
func (h *OperatorHandler) ForceClear(c echo.Context) error {
	showID, seatID, err := pathShowSeat(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	sess := middleware.CurrentSession(c)
	removed, err := h.Manager.ForceClear(c.Request().Context(), sess, showID, seatID)
	if err != nil {
		return writeClaimError(c, err)
	}
	if removed == nil {
		return c.NoContent(http.StatusNoContent)
	}
	locator := ""
	if removed.SaleLocator != nil {
		locator = *removed.SaleLocator
	}
	_ = audit.PublishClaimAudit(c.Request().Context(), queue.ClaimAuditEvent{
		Op:          "force_cleared",
		ShowID:      showID,
		SeatID:      seatID,
		TenantID:    removed.TenantID,
		SessionID:   sess.SessionID,
		SaleLocator: locator,
		At:          time.Now().UTC().Format(time.RFC3339),
	})
	return c.JSON(http.StatusOK, echo.Map{"removed": removed})
}
