package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"recap/internal/segment"
)

const bookColumns = "id, title, author, total_length, version, created_at, updated_at"

// CreateBook registers a book. The raw text is whitespace-normalized before
// storage so that window offsets are stable across runs.
func (s *Store) CreateBook(ctx context.Context, title, author, text string) (*Book, error) {
	normalized := segment.Normalize(text)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	id := uuid.NewString()

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO books (id, title, author, text, total_length, version, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		id, title, author, normalized, len(normalized), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert book: %w", err)
	}

	return s.GetBook(ctx, id)
}

// GetBook fetches a book by ID.
func (s *Store) GetBook(ctx context.Context, id string) (*Book, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+bookColumns+" FROM books WHERE id = ?", id)
	book, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("book %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	return book, nil
}

// ListBooks returns all registered books, newest first.
func (s *Store) ListBooks(ctx context.Context) ([]*Book, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+bookColumns+" FROM books ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	var books []*Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

// BookText returns the normalized full text of a book.
func (s *Store) BookText(ctx context.Context, id string) (string, error) {
	var text string
	err := s.db.QueryRowContext(ctx, "SELECT text FROM books WHERE id = ?", id).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("book %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get book text: %w", err)
	}
	return text, nil
}

// DeleteBook removes a book and, through cascading foreign keys, its
// checkpoints, roster entities, and lease.
func (s *Store) DeleteBook(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM books WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete book rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("book %s: %w", id, ErrNotFound)
	}
	return nil
}

// BumpVersion starts a fresh generation version for a book and returns the
// new version number. Earlier versions' checkpoints remain queryable until
// the new run completes them.
func (s *Store) BumpVersion(ctx context.Context, id string) (int, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		"UPDATE books SET version = version + 1, updated_at = ? WHERE id = ?",
		now, id,
	)
	if err != nil {
		return 0, fmt.Errorf("bump version: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bump version rows: %w", err)
	}
	if affected == 0 {
		return 0, fmt.Errorf("book %s: %w", id, ErrNotFound)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM books WHERE id = ?", id).Scan(&version); err != nil {
		return 0, fmt.Errorf("read version: %w", err)
	}
	return version, nil
}

func scanBook(scanner interface{ Scan(dest ...any) error }) (*Book, error) {
	var (
		book       Book
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&book.ID, &book.Title, &book.Author, &book.TotalLength, &book.Version, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	book.CreatedAt = parseTime(createdRaw)
	book.UpdatedAt = parseTime(updatedRaw)
	return &book, nil
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
