package pipeline

import (
	"context"
	"fmt"

	"recap/internal/roster"
	"recap/internal/store"
)

// Resolver answers progress-indexed read queries. It only ever observes
// completed checkpoints and never blocks on a generation run.
type Resolver struct {
	store *store.Store
}

// NewResolver builds a resolver over the given store.
func NewResolver(st *store.Store) *Resolver {
	return &Resolver{store: st}
}

// Resolve returns the completed checkpoint with the largest progress at or
// before requested. An exact grid match returns that checkpoint whether or
// not later ones exist.
func (r *Resolver) Resolve(ctx context.Context, bookID string, requested int) (*store.Checkpoint, error) {
	if requested < 0 || requested > 100 {
		return nil, fmt.Errorf("progress %d out of range [0,100]", requested)
	}
	book, err := r.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	return r.store.CompletedAtOrBefore(ctx, bookID, book.Version, requested)
}

// RosterAt returns the cumulative character roster as of the checkpoint that
// Resolve would return for the requested progress. Characters first seen
// after that checkpoint are absent, and mention lists are clipped to it.
func (r *Resolver) RosterAt(ctx context.Context, bookID string, requested int) ([]roster.Entity, error) {
	cp, err := r.Resolve(ctx, bookID, requested)
	if err != nil {
		return nil, err
	}
	entities, err := r.store.RosterEntities(ctx, bookID, cp.Version)
	if err != nil {
		return nil, err
	}
	return roster.FromEntities(entities).Snapshot(cp.Progress), nil
}

// Summaries lists a book's completed checkpoints in progress order.
func (r *Resolver) Summaries(ctx context.Context, bookID string) ([]*store.Checkpoint, error) {
	book, err := r.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	return r.store.ListCompleted(ctx, bookID, book.Version)
}

// Checkpoints lists every checkpoint of a book's current version, whatever
// its status. Used by operators to inspect run progress.
func (r *Resolver) Checkpoints(ctx context.Context, bookID string) ([]*store.Checkpoint, error) {
	book, err := r.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	return r.store.ListCheckpoints(ctx, bookID, book.Version)
}
