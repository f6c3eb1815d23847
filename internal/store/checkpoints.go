package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"recap/internal/roster"
	"recap/internal/segment"
)

const checkpointColumns = "book_id, version, progress, window_start, window_end, status, summary, delta_json, attempt_count, last_error, provider, model, created_at, updated_at, completed_at"

// SeedCheckpoints inserts pending checkpoint rows for every window of a
// generation run. Rows that already exist are left untouched, so re-seeding
// an interrupted run preserves completed work.
func (s *Store) SeedCheckpoints(ctx context.Context, bookID string, version int, windows []segment.Window) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, w := range windows {
		_, err := tx.ExecContext(
			ctx,
			`INSERT OR IGNORE INTO checkpoints (book_id, version, progress, window_start, window_end, status, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			bookID, version, w.Progress, w.Start, w.End, StatusPending, now, now,
		)
		if err != nil {
			return fmt.Errorf("seed checkpoint %d%%: %w", w.Progress, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	return nil
}

// GetCheckpoint fetches a single checkpoint.
func (s *Store) GetCheckpoint(ctx context.Context, bookID string, version, progress int) (*Checkpoint, error) {
	row := s.db.QueryRowContext(
		ctx,
		"SELECT "+checkpointColumns+" FROM checkpoints WHERE book_id = ? AND version = ? AND progress = ?",
		bookID, version, progress,
	)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("checkpoint %s@%d%%: %w", bookID, progress, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	return cp, nil
}

// ListCheckpoints returns a run's checkpoints in ascending progress order.
func (s *Store) ListCheckpoints(ctx context.Context, bookID string, version int) ([]*Checkpoint, error) {
	rows, err := s.db.QueryContext(
		ctx,
		"SELECT "+checkpointColumns+" FROM checkpoints WHERE book_id = ? AND version = ? ORDER BY progress ASC",
		bookID, version,
	)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []*Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, rows.Err()
}

// ListCompleted returns a run's completed checkpoints in ascending progress
// order.
func (s *Store) ListCompleted(ctx context.Context, bookID string, version int) ([]*Checkpoint, error) {
	rows, err := s.db.QueryContext(
		ctx,
		"SELECT "+checkpointColumns+" FROM checkpoints WHERE book_id = ? AND version = ? AND status = ? ORDER BY progress ASC",
		bookID, version, StatusCompleted,
	)
	if err != nil {
		return nil, fmt.Errorf("list completed: %w", err)
	}
	defer rows.Close()

	var checkpoints []*Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, rows.Err()
}

// CompletedAtOrBefore returns the completed checkpoint with the largest
// progress at or before the requested value. Pending, in-progress, and
// failed checkpoints are never returned.
func (s *Store) CompletedAtOrBefore(ctx context.Context, bookID string, version, progress int) (*Checkpoint, error) {
	row := s.db.QueryRowContext(
		ctx,
		"SELECT "+checkpointColumns+` FROM checkpoints
         WHERE book_id = ? AND version = ? AND status = ? AND progress <= ?
         ORDER BY progress DESC LIMIT 1`,
		bookID, version, StatusCompleted, progress,
	)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoCheckpointAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("resolve checkpoint: %w", err)
	}
	return cp, nil
}

// MarkInProgress transitions a checkpoint to in_progress and increments its
// attempt counter.
func (s *Store) MarkInProgress(ctx context.Context, bookID string, version, progress int) error {
	return s.updateStatus(ctx, bookID, version, progress, StatusInProgress, "attempt_count = attempt_count + 1")
}

// MarkPending returns a checkpoint to pending ahead of a retry. The attempt
// counter is preserved so retries stay bounded across the transition.
func (s *Store) MarkPending(ctx context.Context, bookID string, version, progress int) error {
	return s.updateStatus(ctx, bookID, version, progress, StatusPending, "")
}

// MarkFailed records a terminal failure with its last error.
func (s *Store) MarkFailed(ctx context.Context, bookID string, version, progress int, lastError string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		"UPDATE checkpoints SET status = ?, last_error = ?, updated_at = ? WHERE book_id = ? AND version = ? AND progress = ?",
		StatusFailed, lastError, now, bookID, version, progress,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return requireAffected(res, bookID, progress)
}

// ResetFailed returns every failed checkpoint of a run to pending so a new
// pass can retry them. The attempt counter is cleared. Returns the number of
// checkpoints reset.
func (s *Store) ResetFailed(ctx context.Context, bookID string, version int) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE checkpoints SET status = ?, attempt_count = 0, last_error = NULL, updated_at = ?
         WHERE book_id = ? AND version = ? AND status = ?`,
		StatusPending, now, bookID, version, StatusFailed,
	)
	if err != nil {
		return 0, fmt.Errorf("reset failed: %w", err)
	}
	return res.RowsAffected()
}

// SaveCompleted commits a checkpoint's summary together with the cumulative
// roster in one transaction. The checkpoint becomes queryable at the moment
// the transaction commits; a crash before that leaves the row non-completed
// and the roster untouched.
func (s *Store) SaveCompleted(ctx context.Context, cp *Checkpoint, entities []roster.Entity) error {
	deltaJSON, err := json.Marshal(emptyIfNil(cp.Delta))
	if err != nil {
		return fmt.Errorf("marshal delta: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := tx.ExecContext(
		ctx,
		`UPDATE checkpoints
         SET status = ?, summary = ?, delta_json = ?, provider = ?, model = ?, last_error = NULL, updated_at = ?, completed_at = ?
         WHERE book_id = ? AND version = ? AND progress = ?`,
		StatusCompleted, cp.Summary, string(deltaJSON), cp.Provider, cp.Model, now, now,
		cp.BookID, cp.Version, cp.Progress,
	)
	if err != nil {
		return fmt.Errorf("update checkpoint: %w", err)
	}
	if err := requireAffected(res, cp.BookID, cp.Progress); err != nil {
		return err
	}

	for _, e := range entities {
		aliasJSON, err := json.Marshal(emptyIfNil(e.Aliases))
		if err != nil {
			return fmt.Errorf("marshal aliases: %w", err)
		}
		mentionJSON, err := json.Marshal(emptyIfNil(e.Mentions))
		if err != nil {
			return fmt.Errorf("marshal mentions: %w", err)
		}
		_, err = tx.ExecContext(
			ctx,
			`INSERT INTO roster_entities (book_id, version, canonical, aliases_json, first_seen, mentions_json)
             VALUES (?, ?, ?, ?, ?, ?)
             ON CONFLICT(book_id, version, canonical)
             DO UPDATE SET aliases_json = excluded.aliases_json, mentions_json = excluded.mentions_json`,
			cp.BookID, cp.Version, e.Canonical, string(aliasJSON), e.FirstSeen, string(mentionJSON),
		)
		if err != nil {
			return fmt.Errorf("upsert roster entity %q: %w", e.Canonical, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

// RosterEntities returns a run's accumulated character entities.
func (s *Store) RosterEntities(ctx context.Context, bookID string, version int) ([]roster.Entity, error) {
	rows, err := s.db.QueryContext(
		ctx,
		"SELECT canonical, aliases_json, first_seen, mentions_json FROM roster_entities WHERE book_id = ? AND version = ? ORDER BY first_seen ASC, canonical ASC",
		bookID, version,
	)
	if err != nil {
		return nil, fmt.Errorf("list roster entities: %w", err)
	}
	defer rows.Close()

	var entities []roster.Entity
	for rows.Next() {
		var (
			e           roster.Entity
			aliasJSON   string
			mentionJSON string
		)
		if err := rows.Scan(&e.Canonical, &aliasJSON, &e.FirstSeen, &mentionJSON); err != nil {
			return nil, fmt.Errorf("scan roster entity: %w", err)
		}
		if err := json.Unmarshal([]byte(aliasJSON), &e.Aliases); err != nil {
			return nil, fmt.Errorf("decode aliases for %q: %w", e.Canonical, err)
		}
		if err := json.Unmarshal([]byte(mentionJSON), &e.Mentions); err != nil {
			return nil, fmt.Errorf("decode mentions for %q: %w", e.Canonical, err)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func (s *Store) updateStatus(ctx context.Context, bookID string, version, progress int, status CheckpointStatus, extra string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	query := "UPDATE checkpoints SET status = ?, updated_at = ?"
	if extra != "" {
		query += ", " + extra
	}
	query += " WHERE book_id = ? AND version = ? AND progress = ?"

	res, err := s.db.ExecContext(ctx, query, status, now, bookID, version, progress)
	if err != nil {
		return fmt.Errorf("update status to %s: %w", status, err)
	}
	return requireAffected(res, bookID, progress)
}

func requireAffected(res sql.Result, bookID string, progress int) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("checkpoint %s@%d%%: %w", bookID, progress, ErrNotFound)
	}
	return nil
}

func scanCheckpoint(scanner interface{ Scan(dest ...any) error }) (*Checkpoint, error) {
	var (
		cp           Checkpoint
		statusStr    string
		deltaJSON    string
		lastError    sql.NullString
		provider     sql.NullString
		model        sql.NullString
		createdRaw   string
		updatedRaw   string
		completedRaw sql.NullString
	)
	if err := scanner.Scan(
		&cp.BookID,
		&cp.Version,
		&cp.Progress,
		&cp.WindowStart,
		&cp.WindowEnd,
		&statusStr,
		&cp.Summary,
		&deltaJSON,
		&cp.AttemptCount,
		&lastError,
		&provider,
		&model,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}
	cp.Status = CheckpointStatus(statusStr)
	if err := json.Unmarshal([]byte(deltaJSON), &cp.Delta); err != nil {
		return nil, fmt.Errorf("decode delta: %w", err)
	}
	cp.LastError = lastError.String
	cp.Provider = provider.String
	cp.Model = model.String
	cp.CreatedAt = parseTime(createdRaw)
	cp.UpdatedAt = parseTime(updatedRaw)
	if completedRaw.Valid {
		cp.CompletedAt = parseTime(completedRaw.String)
	}
	return &cp, nil
}

func emptyIfNil[T any](values []T) []T {
	if values == nil {
		return []T{}
	}
	return values
}
