package store

import "time"

// CheckpointStatus tracks a checkpoint through its generation lifecycle.
type CheckpointStatus string

const (
	StatusPending    CheckpointStatus = "pending"
	StatusInProgress CheckpointStatus = "in_progress"
	StatusCompleted  CheckpointStatus = "completed"
	StatusFailed     CheckpointStatus = "failed"
)

// Terminal reports whether the status is an end state for a generation pass.
func (s CheckpointStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Book is a registered text awaiting or holding checkpoint output. The
// stored text is whitespace-normalized at registration; TotalLength is its
// length in bytes and is the basis for every window offset.
type Book struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author,omitempty"`
	TotalLength int       `json:"total_length"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Checkpoint is one progress point of a book's generation run. Summary is
// cumulative; Delta holds the canonical character names first seen at this
// checkpoint.
type Checkpoint struct {
	BookID       string           `json:"book_id"`
	Version      int              `json:"version"`
	Progress     int              `json:"progress"`
	WindowStart  int              `json:"window_start"`
	WindowEnd    int              `json:"window_end"`
	Status       CheckpointStatus `json:"status"`
	Summary      string           `json:"summary"`
	Delta        []string         `json:"delta"`
	AttemptCount int              `json:"attempt_count"`
	LastError    string           `json:"last_error,omitempty"`
	Provider     string           `json:"provider,omitempty"`
	Model        string           `json:"model,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	CompletedAt  time.Time        `json:"completed_at,omitzero"`
}

// Lease marks exclusive ownership of a book's generation run.
type Lease struct {
	BookID     string    `json:"book_id"`
	Owner      string    `json:"owner"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the lease has lapsed as of now.
func (l *Lease) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}
