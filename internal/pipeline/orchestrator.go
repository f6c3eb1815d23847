// Package pipeline drives checkpoint generation for registered books.
//
// Each book is processed by a single run at a time, guarded by a store
// lease. Checkpoints are generated strictly in ascending progress order;
// a checkpoint that ends terminally failed halts the run, leaving later
// checkpoints pending until an operator retries.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"recap/internal/providers"
	"recap/internal/roster"
	"recap/internal/segment"
	"recap/internal/store"
)

// ErrRunHalted indicates a run stopped at a terminally failed checkpoint.
var ErrRunHalted = errors.New("run halted at failed checkpoint")

// Emitter receives completed work for downstream indexing. Implementations
// must not block; emission failures never affect the run.
type Emitter interface {
	EmitBook(book *store.Book)
	EmitCheckpoint(cp *store.Checkpoint)
	EmitRoster(bookID string, version int, entities []roster.Entity)
}

// Config controls a generation run.
type Config struct {
	// Generator names the registry backend used for model calls.
	Generator string

	// GridStep is the checkpoint spacing in percent. Ignored when Grid is
	// set explicitly.
	GridStep int

	// Grid overrides the default evenly-spaced grid.
	Grid []int

	// MaxAttempts bounds retries per checkpoint for transient failures.
	MaxAttempts int

	// RetryDelay is the base backoff between attempts.
	RetryDelay time.Duration

	// RequestTimeout bounds each outbound model call.
	RequestTimeout time.Duration

	// LeaseTTL is how long a run may hold a book before the lease is
	// considered stale. The lease is refreshed after every checkpoint.
	LeaseTTL time.Duration

	// Owner identifies this worker in leases.
	Owner string
}

func (c Config) withDefaults() Config {
	if c.GridStep <= 0 {
		c.GridStep = 10
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 120 * time.Second
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = 10 * time.Minute
	}
	if c.Owner == "" {
		c.Owner = "recap"
	}
	return c
}

func (c Config) grid() []int {
	if len(c.Grid) > 0 {
		return c.Grid
	}
	return segment.DefaultGrid(c.GridStep)
}

// Report summarizes a finished run.
type Report struct {
	BookID    string        `json:"book_id"`
	Version   int           `json:"version"`
	Total     int           `json:"total"`
	Completed int           `json:"completed"`
	Skipped   int           `json:"skipped"`
	HaltedAt  int           `json:"halted_at,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Orchestrator runs the checkpoint generation loop for books.
type Orchestrator struct {
	store    *store.Store
	registry *providers.Registry
	emitter  Emitter
	logger   *slog.Logger
	cfg      Config
}

// NewOrchestrator builds an orchestrator. emitter may be nil when no search
// indexing is configured.
func NewOrchestrator(st *store.Store, registry *providers.Registry, emitter Emitter, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:    st,
		registry: registry,
		emitter:  emitter,
		logger:   logger,
		cfg:      cfg.withDefaults(),
	}
}

// Run generates checkpoints for a book from wherever the previous run left
// off. Completed checkpoints are never regenerated. Returns ErrRunHalted
// when a checkpoint is terminally failed; the report still describes the
// work done before the halt.
func (o *Orchestrator) Run(ctx context.Context, bookID string) (*Report, error) {
	start := time.Now()

	book, err := o.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	grid := o.cfg.grid()
	if err := segment.ValidateGrid(grid); err != nil {
		return nil, err
	}

	if err := o.store.AcquireLease(ctx, bookID, o.cfg.Owner, o.cfg.LeaseTTL); err != nil {
		return nil, err
	}
	defer func() {
		_ = o.store.ReleaseLease(context.WithoutCancel(ctx), bookID, o.cfg.Owner)
	}()

	gen, limiter, err := o.registry.Get(o.cfg.Generator)
	if err != nil {
		return nil, err
	}

	text, err := o.store.BookText(ctx, bookID)
	if err != nil {
		return nil, err
	}
	windows, err := segment.Windows(book.TotalLength, grid)
	if err != nil {
		return nil, err
	}
	if err := o.store.SeedCheckpoints(ctx, bookID, book.Version, windows); err != nil {
		return nil, err
	}

	checkpoints, err := o.store.ListCheckpoints(ctx, bookID, book.Version)
	if err != nil {
		return nil, err
	}
	entities, err := o.store.RosterEntities(ctx, bookID, book.Version)
	if err != nil {
		return nil, err
	}
	ros := roster.FromEntities(entities)

	logger := o.logger.With("book_id", bookID, "version", book.Version, "generator", gen.Name())
	logger.Info("starting generation run", "checkpoints", len(checkpoints))

	if o.emitter != nil {
		o.emitter.EmitBook(book)
	}

	report := &Report{BookID: bookID, Version: book.Version, Total: len(checkpoints)}
	var priors []providers.PriorSummary
	prevProgress := 0

	for _, cp := range checkpoints {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, err
		}

		switch cp.Status {
		case store.StatusCompleted:
			report.Skipped++
			priors = appendPrior(priors, cp)
			prevProgress = cp.Progress
			continue
		case store.StatusFailed:
			report.HaltedAt = cp.Progress
			report.Duration = time.Since(start)
			logger.Warn("halting at failed checkpoint", "progress", cp.Progress, "last_error", cp.LastError)
			return report, fmt.Errorf("checkpoint %d%%: %w", cp.Progress, ErrRunHalted)
		}

		done, err := o.generateOne(ctx, gen, limiter, cp, text, ros, priors, prevProgress, logger)
		if err != nil {
			report.HaltedAt = cp.Progress
			report.Duration = time.Since(start)
			return report, err
		}

		report.Completed++
		priors = appendPrior(priors, done)
		prevProgress = done.Progress

		if o.emitter != nil {
			o.emitter.EmitCheckpoint(done)
		}
		if err := o.store.RefreshLease(ctx, bookID, o.cfg.Owner, o.cfg.LeaseTTL); err != nil {
			logger.Warn("lease refresh failed", "error", err)
		}
	}

	if o.emitter != nil {
		o.emitter.EmitRoster(bookID, book.Version, ros.Entities())
	}

	report.Duration = time.Since(start)
	logger.Info("generation run finished",
		"completed", report.Completed,
		"skipped", report.Skipped,
		"duration", report.Duration)
	return report, nil
}

// generateOne takes a single checkpoint from pending to a terminal state.
// The returned checkpoint carries the committed payload.
func (o *Orchestrator) generateOne(
	ctx context.Context,
	gen providers.Generator,
	limiter *providers.RateLimiter,
	cp *store.Checkpoint,
	text string,
	ros *roster.Roster,
	priors []providers.PriorSummary,
	prevProgress int,
	logger *slog.Logger,
) (*store.Checkpoint, error) {
	window := segment.Window{Progress: cp.Progress, Start: cp.WindowStart, End: cp.WindowEnd}
	windowText := window.Slice(text)

	// A window with no text carries nothing to summarize, either because
	// the grid collapsed it to zero length or because rune snapping left it
	// empty. Complete it without a model call: empty summary, empty delta,
	// roster unchanged.
	if window.Empty() || windowText == "" {
		cp.Summary = ""
		cp.Delta = []string{}
		if err := o.store.SaveCompleted(ctx, cp, ros.Entities()); err != nil {
			return nil, err
		}
		cp.Status = store.StatusCompleted
		logger.Info("empty window completed trivially", "progress", cp.Progress)
		return cp, nil
	}

	req := &providers.Request{
		WindowText:      windowText,
		PriorSummaries:  priors,
		KnownCharacters: ros.Names(prevProgress),
		Progress:        cp.Progress,
		Timeout:         o.cfg.RequestTimeout,
	}

	attemptsLeft := o.cfg.MaxAttempts - cp.AttemptCount
	if attemptsLeft < 1 {
		attemptsLeft = 1
	}

	result, err := retry.DoWithData(
		func() (*providers.Result, error) {
			if err := o.store.MarkInProgress(ctx, cp.BookID, cp.Version, cp.Progress); err != nil {
				return nil, retry.Unrecoverable(err)
			}
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return nil, retry.Unrecoverable(err)
				}
			}
			res, err := gen.Generate(ctx, req)
			if err != nil && !providers.IsTransient(err) {
				return nil, retry.Unrecoverable(err)
			}
			return res, err
		},
		retry.Context(ctx),
		retry.Attempts(uint(attemptsLeft)),
		retry.Delay(o.cfg.RetryDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("checkpoint attempt failed, retrying",
				"progress", cp.Progress, "attempt", n+1, "error", err)
			if mErr := o.store.MarkFailed(ctx, cp.BookID, cp.Version, cp.Progress, err.Error()); mErr != nil {
				logger.Error("record attempt failure", "error", mErr)
			}
			if mErr := o.store.MarkPending(ctx, cp.BookID, cp.Version, cp.Progress); mErr != nil {
				logger.Error("return checkpoint to pending", "error", mErr)
			}
		}),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if mErr := o.store.MarkFailed(ctx, cp.BookID, cp.Version, cp.Progress, err.Error()); mErr != nil {
			logger.Error("mark checkpoint failed", "error", mErr)
		}
		logger.Error("checkpoint terminally failed",
			"progress", cp.Progress, "kind", providers.KindOf(err), "error", err)
		return nil, fmt.Errorf("checkpoint %d%%: %w", cp.Progress, err)
	}

	ros.Merge(result.Characters, cp.Progress)

	cp.Summary = result.Summary
	cp.Delta = deltaAt(ros, cp.Progress)
	cp.Provider = result.Provider
	cp.Model = result.ModelUsed
	if err := o.store.SaveCompleted(ctx, cp, ros.Entities()); err != nil {
		return nil, err
	}
	cp.Status = store.StatusCompleted

	logger.Info("checkpoint completed",
		"progress", cp.Progress,
		"new_characters", len(cp.Delta),
		"tokens", result.TotalTokens)
	return cp, nil
}

// RetryFailed returns a book's terminally failed checkpoints to pending and
// immediately runs the pipeline again.
func (o *Orchestrator) RetryFailed(ctx context.Context, bookID string) (*Report, error) {
	book, err := o.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	n, err := o.store.ResetFailed(ctx, bookID, book.Version)
	if err != nil {
		return nil, err
	}
	o.logger.Info("reset failed checkpoints", "book_id", bookID, "count", n)
	return o.Run(ctx, bookID)
}

// Regenerate bumps a book's processing version and runs a fresh pass.
// Checkpoints from earlier versions remain untouched.
func (o *Orchestrator) Regenerate(ctx context.Context, bookID string) (*Report, error) {
	version, err := o.store.BumpVersion(ctx, bookID)
	if err != nil {
		return nil, err
	}
	o.logger.Info("starting regeneration", "book_id", bookID, "version", version)
	return o.Run(ctx, bookID)
}

func appendPrior(priors []providers.PriorSummary, cp *store.Checkpoint) []providers.PriorSummary {
	if cp.Summary == "" {
		return priors
	}
	return append(priors, providers.PriorSummary{Progress: cp.Progress, Summary: cp.Summary})
}

// deltaAt lists canonical names first seen at exactly the given checkpoint.
func deltaAt(ros *roster.Roster, progress int) []string {
	var delta []string
	for _, e := range ros.Snapshot(progress) {
		if e.FirstSeen == progress {
			delta = append(delta, e.Canonical)
		}
	}
	if delta == nil {
		delta = []string{}
	}
	return delta
}
