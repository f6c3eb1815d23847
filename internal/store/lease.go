package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AcquireLease takes exclusive ownership of a book's generation run. It
// succeeds when no lease exists, when the existing lease has expired, or
// when owner already holds it (which refreshes the expiry). Reads never
// consult leases; only generation runs do.
func (s *Store) AcquireLease(ctx context.Context, bookID, owner string, ttl time.Duration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin lease tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	var (
		currentOwner string
		expiresRaw   string
	)
	err = tx.QueryRowContext(ctx, "SELECT owner, expires_at FROM leases WHERE book_id = ?", bookID).
		Scan(&currentOwner, &expiresRaw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// free
	case err != nil:
		return fmt.Errorf("read lease: %w", err)
	default:
		if currentOwner != owner && now.Before(parseTime(expiresRaw)) {
			return fmt.Errorf("book %s held by %s: %w", bookID, currentOwner, ErrLeaseHeld)
		}
	}

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO leases (book_id, owner, acquired_at, expires_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(book_id) DO UPDATE SET owner = excluded.owner, acquired_at = excluded.acquired_at, expires_at = excluded.expires_at`,
		bookID, owner, now.Format(time.RFC3339Nano), now.Add(ttl).Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write lease: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit lease: %w", err)
	}
	return nil
}

// RefreshLease extends the expiry of a lease the owner already holds.
func (s *Store) RefreshLease(ctx context.Context, bookID, owner string, ttl time.Duration) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		"UPDATE leases SET expires_at = ? WHERE book_id = ? AND owner = ?",
		now.Add(ttl).Format(time.RFC3339Nano), bookID, owner,
	)
	if err != nil {
		return fmt.Errorf("refresh lease: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("refresh lease rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("lease for %s not held by %s: %w", bookID, owner, ErrLeaseHeld)
	}
	return nil
}

// ReleaseLease drops the owner's lease. Releasing a lease held by someone
// else, or no lease at all, is a no-op.
func (s *Store) ReleaseLease(ctx context.Context, bookID, owner string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM leases WHERE book_id = ? AND owner = ?", bookID, owner)
	if err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// GetLease returns the current lease on a book, or nil when none exists.
func (s *Store) GetLease(ctx context.Context, bookID string) (*Lease, error) {
	var (
		lease       Lease
		acquiredRaw string
		expiresRaw  string
	)
	err := s.db.QueryRowContext(ctx, "SELECT book_id, owner, acquired_at, expires_at FROM leases WHERE book_id = ?", bookID).
		Scan(&lease.BookID, &lease.Owner, &acquiredRaw, &expiresRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get lease: %w", err)
	}
	lease.AcquiredAt = parseTime(acquiredRaw)
	lease.ExpiresAt = parseTime(expiresRaw)
	return &lease, nil
}
