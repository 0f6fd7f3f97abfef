package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/openvenue/seatclaim/internal/lease"
	"github.com/openvenue/seatclaim/internal/queue"
	audit "github.com/openvenue/seatclaim/internal/service"
)

// PaymentHandler is the boundary with the external payment
// collaborator. It never captures funds itself; it only escalates
// claims after the collaborator reports an outcome.
type PaymentHandler struct {
	Manager *lease.Manager
}

// NewPaymentHandler constructs a PaymentHandler. The manager must be non-nil.
func NewPaymentHandler(m *lease.Manager) *PaymentHandler {
	if m == nil {
		panic("nil manager passed to NewPaymentHandler")
	}
	return &PaymentHandler{Manager: m}
}

type paymentNotice struct {
	ShowID      uint64   `json:"show_id"`
	SeatIDs     []string `json:"seat_ids"`
	SaleLocator string   `json:"sale_locator"`
	Reserve     bool     `json:"reserve,omitempty"`
}

// Succeeded handles POST /v1/payments/succeeded. Every listed seat is
// escalated to sold (or reserved for pay-at-venue sales) with the
// sale locator attached; the escalation is terminal and idempotent
// per locator.
func (h *PaymentHandler) Succeeded(c echo.Context) error {
	var body paymentNotice
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.ShowID == 0 || len(body.SeatIDs) == 0 || body.SaleLocator == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "show_id, seat_ids and sale_locator are required"})
	}
	if err := h.Manager.MarkSold(c.Request().Context(), body.ShowID, body.SeatIDs, body.SaleLocator, body.Reserve); err != nil {
		return writeClaimError(c, err)
	}
	op := "sold"
	if body.Reserve {
		op = "reserved"
	}
	at := time.Now().UTC().Format(time.RFC3339)
	for _, seatID := range body.SeatIDs {
		_ = audit.PublishClaimAudit(c.Request().Context(), queue.ClaimAuditEvent{
			Op:          op,
			ShowID:      body.ShowID,
			SeatID:      seatID,
			SaleLocator: body.SaleLocator,
			At:          at,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"finalized": len(body.SeatIDs)})
}

// Failed handles POST /v1/payments/failed. The engine deliberately
// leaves the claims as held rather than force-releasing them: a
// retried payment still sees the seats as the user's own, and an
// abandoned cart lapses through lease expiry.
func (h *PaymentHandler) Failed(c echo.Context) error {
	var body paymentNotice
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	return c.JSON(http.StatusAccepted, echo.Map{"status": "holds left to expire"})
}
