package handler

// errors.go maps the engine's error taxonomy onto HTTP responses.
// Conflict and NotOwner are expected outcomes the client recovers
// from locally; transient store failures surface a retryable 503
// while the client's cart stays untouched.

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/openvenue/seatclaim/internal/lease"
	"github.com/openvenue/seatclaim/internal/repository"
)

func writeClaimError(c echo.Context, err error) error {
	var conflict *repository.ConflictError
	switch {
	case errors.Is(err, lease.ErrNoPriceSelected):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "no_price_selected"})
	case errors.As(err, &conflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "conflict", "reason": string(conflict.Reason)})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "conflict"})
	case errors.Is(err, repository.ErrNotOwner):
		return c.JSON(http.StatusConflict, echo.Map{"error": "not_owner"})
	case errors.Is(err, repository.ErrAlreadyAbsent):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "already_absent"})
	case errors.Is(err, repository.ErrTenantMismatch):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "tenant_mismatch"})
	case errors.Is(err, lease.ErrNotOperator):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	default:
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "temporarily_unavailable", "retry": true})
	}
}
