package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/openvenue/seatclaim/internal/model"
)

// ClaimRepo provides data access to the claims table. One row exists
// per (show_id, seat_id); the unique key on that pair is the only
// serialization point between concurrent acquirers, so every write is
// either a single-statement conditional upsert or a delete guarded by
// an ownership comparison. Nothing here read-modify-writes a row.
//
// Expected schema:
//
//  CREATE TABLE claims (
//      show_id      BIGINT UNSIGNED NOT NULL,
//      seat_id      VARCHAR(64)     NOT NULL,
//      tenant_id    VARCHAR(64)     NULL,
//      session_id   VARCHAR(64)     NOT NULL,
//      kind         ENUM('seat','table')                    NOT NULL DEFAULT 'seat',
//      state        ENUM('held','blocked','sold','reserved') NOT NULL,
//      acquired_at  DATETIME        NOT NULL,
//      expires_at   DATETIME        NULL,
//      sale_locator VARCHAR(64)     NULL,
//      PRIMARY KEY (show_id, seat_id)
//  );
//
// All timestamps are UTC; expiry is evaluated at read time against a
// caller-supplied instant rather than by a background sweep.
type ClaimRepo struct {
	db *sql.DB
}

// NewClaimRepo returns a ClaimRepo bound to the provided database.
func NewClaimRepo(db *sql.DB) *ClaimRepo { return &ClaimRepo{db: db} }

// DB exposes the underlying handle for callers that need to compose
// transactions across repositories.
func (r *ClaimRepo) DB() *sql.DB { return r.db }

// acquireStmt is the arbitration point of the whole engine. The insert
// wins when no row exists; on a duplicate key the update only takes
// effect when the existing row is a lapsed hold or a hold by the same
// session re-acquiring. The @steal variable is computed once, against
// the OLD column values, before any assignment touches them. Rows
// affected: 1 insert, 2 conditional update fired, 0 refused.
const acquireStmt = `
INSERT INTO claims (show_id, seat_id, tenant_id, session_id, kind, state, acquired_at, expires_at, sale_locator)
VALUES (?, ?, ?, ?, ?, 'held', ?, ?, NULL)
ON DUPLICATE KEY UPDATE
	session_id   = IF(@steal := (state = 'held' AND (expires_at <= ? OR session_id = VALUES(session_id))), VALUES(session_id), session_id),
	tenant_id    = IF(@steal, VALUES(tenant_id), tenant_id),
	kind         = IF(@steal, VALUES(kind), kind),
	sale_locator = IF(@steal, NULL, sale_locator),
	acquired_at  = IF(@steal, VALUES(acquired_at), acquired_at),
	expires_at   = IF(@steal, VALUES(expires_at), expires_at),
	state        = state`

// AcquireHeld attempts to claim a seat with a TTL-bound hold. The
// claim must carry State=held, a non-nil ExpiresAt and AcquiredAt set
// to the caller's notion of now. On refusal it returns a
// *ConflictError describing the live claim that won.
func (r *ClaimRepo) AcquireHeld(ctx context.Context, c model.Claim) error {
	res, err := r.db.ExecContext(ctx, acquireStmt,
		c.ShowID, c.SeatID, nullStr(c.TenantID), c.OwnerSessionID, string(c.Kind),
		c.AcquiredAt.UTC(), c.ExpiresAt.UTC(), c.AcquiredAt.UTC(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	// Zero rows means the guard refused, or the re-acquire produced a
	// byte-identical row (same owner, same second). Read once to tell
	// the two apart; arbitration already happened above.
	existing, err := r.Get(ctx, c.ShowID, c.SeatID)
	if err != nil {
		return err
	}
	if existing != nil && existing.State == model.StateHeld &&
		existing.OwnerSessionID == c.OwnerSessionID && existing.ActiveAt(c.AcquiredAt) {
		return nil
	}
	if existing == nil {
		// Row vanished between the upsert and the read; the seat is
		// free again and the caller may simply retry.
		return &ConflictError{Reason: ReasonHeldByOther}
	}
	return conflictFor(string(existing.State))
}

// Renew extends the expiry of a live hold owned by the session.
// Lapsed or missing holds return ErrAlreadyAbsent; holds owned by
// someone else (or blocked/sold rows) return ErrNotOwner.
func (r *ClaimRepo) Renew(ctx context.Context, showID uint64, seatID, sessionID string, now, until time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE claims SET acquired_at = ?, expires_at = ?
		 WHERE show_id = ? AND seat_id = ? AND session_id = ? AND state = 'held' AND expires_at > ?`,
		now.UTC(), until.UTC(), showID, seatID, sessionID, now.UTC(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	existing, err := r.Get(ctx, showID, seatID)
	if err != nil {
		return err
	}
	if existing == nil || existing.ExpiredAt(now) {
		return ErrAlreadyAbsent
	}
	return ErrNotOwner
}

// ReleaseOwned deletes a hold only when the session owns it. The
// distinguishable ErrNotOwner / ErrAlreadyAbsent results let the
// caller resynchronize instead of assuming success.
func (r *ClaimRepo) ReleaseOwned(ctx context.Context, showID uint64, seatID, sessionID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM claims WHERE show_id = ? AND seat_id = ? AND session_id = ? AND state = 'held'`,
		showID, seatID, sessionID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	existing, err := r.Get(ctx, showID, seatID)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrAlreadyAbsent
	}
	return ErrNotOwner
}

// placeBlockStmt mirrors acquireStmt for the operator branch: a block
// has no TTL and may steal a lapsed hold, but never a live one.
const placeBlockStmt = `
INSERT INTO claims (show_id, seat_id, tenant_id, session_id, kind, state, acquired_at, expires_at, sale_locator)
VALUES (?, ?, ?, ?, ?, 'blocked', ?, NULL, NULL)
ON DUPLICATE KEY UPDATE
	session_id   = IF(@steal := (state = 'held' AND expires_at <= ?), VALUES(session_id), session_id),
	tenant_id    = IF(@steal, VALUES(tenant_id), tenant_id),
	kind         = IF(@steal, VALUES(kind), kind),
	sale_locator = IF(@steal, NULL, sale_locator),
	acquired_at  = IF(@steal, VALUES(acquired_at), acquired_at),
	expires_at   = IF(@steal, NULL, expires_at),
	state        = IF(@steal, 'blocked', state)`

// PlaceBlock writes a non-expiring operator block. The claim must
// carry State=blocked and a nil ExpiresAt. Refusal returns a
// *ConflictError; the caller decides whether an existing block means
// "toggle off" instead.
func (r *ClaimRepo) PlaceBlock(ctx context.Context, c model.Claim) error {
	res, err := r.db.ExecContext(ctx, placeBlockStmt,
		c.ShowID, c.SeatID, nullStr(c.TenantID), c.OwnerSessionID, string(c.Kind),
		c.AcquiredAt.UTC(), c.AcquiredAt.UTC(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	existing, err := r.Get(ctx, c.ShowID, c.SeatID)
	if err != nil {
		return err
	}
	if existing == nil {
		return &ConflictError{Reason: ReasonHeldByOther}
	}
	return conflictFor(string(existing.State))
}

// RemoveBlock deletes an operator block. It reports whether a block
// actually existed so the toggle can answer blocked/unblocked.
func (r *ClaimRepo) RemoveBlock(ctx context.Context, showID uint64, seatID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM claims WHERE show_id = ? AND seat_id = ? AND state = 'blocked'`,
		showID, seatID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// markSoldStmt escalates a claim to its terminal state. The guard
// refuses to overwrite an existing sold/reserved row that carries a
// different locator; replaying the same locator is idempotent. The
// insert path covers holds that lapsed while payment was in flight;
// the capture already happened, so the seat must still come off sale.
const markSoldStmt = `
INSERT INTO claims (show_id, seat_id, tenant_id, session_id, kind, state, acquired_at, expires_at, sale_locator)
VALUES (?, ?, ?, ?, 'seat', ?, ?, NULL, ?)
ON DUPLICATE KEY UPDATE
	sale_locator = IF(@fin := (state NOT IN ('sold','reserved') OR sale_locator = VALUES(sale_locator)), VALUES(sale_locator), sale_locator),
	acquired_at  = IF(@fin, VALUES(acquired_at), acquired_at),
	expires_at   = IF(@fin, NULL, expires_at),
	state        = IF(@fin, VALUES(state), state)`

// MarkSold finalizes a seat after payment capture. state must be sold
// or reserved. Conflicting locators on an already-final row return a
// *ConflictError; everything else succeeds, including replays.
func (r *ClaimRepo) MarkSold(ctx context.Context, showID uint64, seatID, tenantID, sessionID string, state model.ClaimState, locator string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, markSoldStmt,
		showID, seatID, nullStr(tenantID), sessionID, string(state), now.UTC(), locator,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	existing, err := r.Get(ctx, showID, seatID)
	if err != nil {
		return err
	}
	if existing != nil && existing.Terminal() &&
		existing.SaleLocator != nil && *existing.SaleLocator == locator {
		return nil
	}
	if existing == nil {
		return ErrAlreadyAbsent
	}
	return conflictFor(string(existing.State))
}

// DeleteAny removes whatever claim exists for the seat, including
// terminal ones. This is the audited operator override that sits
// outside the ordinary API; it returns the removed row for the audit
// trail and the change feed, or nil when nothing existed.
func (r *ClaimRepo) DeleteAny(ctx context.Context, showID uint64, seatID string) (*model.Claim, error) {
	existing, err := r.Get(ctx, showID, seatID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM claims WHERE show_id = ? AND seat_id = ?`, showID, seatID,
	); err != nil {
		return nil, err
	}
	return existing, nil
}

const claimColumns = `show_id, seat_id, tenant_id, session_id, kind, state, acquired_at, expires_at, sale_locator`

// Get fetches a single claim row. It returns (nil, nil) when no row
// exists; callers evaluate expiry themselves at read time.
func (r *ClaimRepo) Get(ctx context.Context, showID uint64, seatID string) (*model.Claim, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE show_id = ? AND seat_id = ?`,
		showID, seatID,
	)
	c, err := scanClaim(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListByShow returns every claim row for one show, including lapsed
// holds. The reconciler and the feed resync path filter expiry at
// read time so a fresh read never resurrects a dead hold.
func (r *ClaimRepo) ListByShow(ctx context.Context, showID uint64) ([]model.Claim, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE show_id = ? ORDER BY seat_id`,
		showID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var claims []model.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return claims, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanClaim(s rowScanner) (*model.Claim, error) {
	var (
		c       model.Claim
		tenant  sql.NullString
		kind    string
		state   string
		expires sql.NullTime
		locator sql.NullString
	)
	if err := s.Scan(&c.ShowID, &c.SeatID, &tenant, &c.OwnerSessionID, &kind, &state, &c.AcquiredAt, &expires, &locator); err != nil {
		return nil, err
	}
	c.TenantID = tenant.String
	c.Kind = model.ClaimKind(kind)
	c.State = model.ClaimState(state)
	if expires.Valid {
		t := expires.Time.UTC()
		c.ExpiresAt = &t
	}
	if locator.Valid {
		v := locator.String
		c.SaleLocator = &v
	}
	return &c, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
