package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrAlreadyRunning indicates a generation run for the book is in flight in
// this process.
var ErrAlreadyRunning = errors.New("generation already running for book")

// Manager launches and tracks generation runs, one per book at a time.
// Cross-process exclusion is handled by store leases; the manager adds the
// in-process bookkeeping the HTTP surface needs.
type Manager struct {
	orchestrator *Orchestrator
	logger       *slog.Logger

	mu      sync.Mutex
	running map[string]struct{}
	reports map[string]*Report
	errs    map[string]string
	wg      sync.WaitGroup
}

// NewManager builds a manager around an orchestrator.
func NewManager(orchestrator *Orchestrator, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		orchestrator: orchestrator,
		logger:       logger,
		running:      make(map[string]struct{}),
		reports:      make(map[string]*Report),
		errs:         make(map[string]string),
	}
}

type runFunc func(ctx context.Context, bookID string) (*Report, error)

// Start launches a generation run in the background. Returns
// ErrAlreadyRunning when this process already has a run in flight for the
// book.
func (m *Manager) Start(ctx context.Context, bookID string) error {
	return m.launch(ctx, bookID, m.orchestrator.Run)
}

// StartRetry resets the book's failed checkpoints and launches a run.
func (m *Manager) StartRetry(ctx context.Context, bookID string) error {
	return m.launch(ctx, bookID, m.orchestrator.RetryFailed)
}

// StartRegenerate bumps the book's version and launches a fresh run.
func (m *Manager) StartRegenerate(ctx context.Context, bookID string) error {
	return m.launch(ctx, bookID, m.orchestrator.Regenerate)
}

func (m *Manager) launch(ctx context.Context, bookID string, run runFunc) error {
	m.mu.Lock()
	if _, ok := m.running[bookID]; ok {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.running[bookID] = struct{}{}
	delete(m.reports, bookID)
	delete(m.errs, bookID)
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		report, err := run(ctx, bookID)

		m.mu.Lock()
		delete(m.running, bookID)
		if report != nil {
			m.reports[bookID] = report
		}
		if err != nil {
			m.errs[bookID] = err.Error()
		}
		m.mu.Unlock()

		if err != nil {
			m.logger.Error("generation run ended with error", "book_id", bookID, "error", err)
		}
	}()
	return nil
}

// Running reports whether a run for the book is in flight in this process.
func (m *Manager) Running(bookID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[bookID]
	return ok
}

// LastResult returns the most recent finished run's report and error text
// for a book, if any.
func (m *Manager) LastResult(bookID string) (*Report, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	report, okReport := m.reports[bookID]
	errText, okErr := m.errs[bookID]
	return report, errText, okReport || okErr
}

// ActiveCount returns the number of runs currently in flight.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}

// Wait blocks until every in-flight run has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}
