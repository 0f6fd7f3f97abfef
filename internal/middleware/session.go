package middleware

// session.go establishes the anonymous session identity that scopes
// claim ownership. The token is opaque, generated server-side on
// first contact and persisted client-side for the lifetime of the
// browsing session. A client that regenerates its token simply
// forfeits any in-flight claims; they lapse on their own.

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/openvenue/seatclaim/internal/model"
)

// HeaderSessionToken carries the opaque session identifier on every
// request and, when the server minted a fresh one, on the response.
const HeaderSessionToken = "X-Session-Token"

// HeaderTenantID optionally scopes the session to one organization.
const HeaderTenantID = "X-Tenant-ID"

const sessionContextKey = "session"

// SessionIdentity returns middleware that resolves or mints the
// caller's session token and stores a model.SessionContext in the
// echo context. The engine itself never reads ambient storage; every
// handler passes the context value down explicitly.
func SessionIdentity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := c.Request().Header.Get(HeaderSessionToken)
			if token == "" {
				token = uuid.NewString()
				c.Response().Header().Set(HeaderSessionToken, token)
			}
			sess := model.SessionContext{
				SessionID: token,
				TenantID:  c.Request().Header.Get(HeaderTenantID),
			}
			c.Set(sessionContextKey, sess)
			return next(c)
		}
	}
}

// CurrentSession extracts the session context stored by
// SessionIdentity. The operator flag is derived from the JWT role
// claim when operator middleware ran earlier in the chain.
func CurrentSession(c echo.Context) model.SessionContext {
	sess, _ := c.Get(sessionContextKey).(model.SessionContext)
	if role, ok := c.Get("role").(string); ok && role == "OPERATOR" {
		sess.Operator = true
	}
	return sess
}
