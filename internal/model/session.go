package model

// SessionContext identifies the caller of every lease and reconciler
// operation. The session ID is an opaque token persisted client-side
// for the lifetime of the browsing session; no account login is
// involved, and regenerating the token simply forfeits ownership of
// any in-flight claims (they expire on their own).
//
// The context is always passed explicitly rather than read from
// ambient storage, so several sessions can coexist in one process
// (tests, multi-window operators).
type SessionContext struct {
	SessionID string
	TenantID  string
	Operator  bool
}

// SameTenant reports whether the session may touch a claim carrying
// the given tenant. An empty tenant on either side disables the check
// (single-tenant installations).
func (s SessionContext) SameTenant(tenantID string) bool {
	if s.TenantID == "" || tenantID == "" {
		return true
	}
	return s.TenantID == tenantID
}
