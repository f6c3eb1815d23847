package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"recap/internal/roster"
	"recap/internal/store"
)

// document is one queued index write.
type document struct {
	index string
	docID string
	body  any
}

// SinkConfig configures the index sink.
type SinkConfig struct {
	Client    *Client
	QueueSize int           // Buffer size (default: 1000)
	Timeout   time.Duration // Per-write timeout (default: 10s)
	Logger    *slog.Logger
}

// Sink mirrors pipeline output into the search cluster asynchronously. It
// satisfies the pipeline's emitter contract: emission never blocks the
// generation loop, and write failures are logged, never propagated. When
// the queue fills, documents are dropped; the store remains authoritative
// and a later run re-emits them.
type Sink struct {
	client  *Client
	logger  *slog.Logger
	timeout time.Duration

	queue chan document

	wg       sync.WaitGroup
	stopOnce sync.Once

	mu      sync.Mutex
	indexed int64
	dropped int64
	failed  int64
}

// NewSink creates an index sink.
func NewSink(cfg SinkConfig) *Sink {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Sink{
		client:  cfg.Client,
		logger:  cfg.Logger,
		timeout: cfg.Timeout,
		queue:   make(chan document, cfg.QueueSize),
	}
}

// Start launches the background writer. The writer is detached from ctx's
// cancellation so that Stop can drain queued documents during shutdown; ctx
// carries values only.
func (s *Sink) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(context.WithoutCancel(ctx))
}

// Stop drains the queue and shuts the writer down.
func (s *Sink) Stop() {
	s.stopOnce.Do(func() {
		close(s.queue)
		s.wg.Wait()
	})
}

// Stats reports sink counters.
func (s *Sink) Stats() (indexed, dropped, failed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexed, s.dropped, s.failed
}

// EmitBook queues a book document.
func (s *Sink) EmitBook(book *store.Book) {
	s.enqueue(document{
		index: IndexBooks,
		docID: book.ID,
		body: map[string]any{
			"id":           book.ID,
			"title":        book.Title,
			"author":       book.Author,
			"total_length": book.TotalLength,
			"version":      book.Version,
			"created_at":   book.CreatedAt,
		},
	})
}

// EmitCheckpoint queues a completed checkpoint's summary document.
func (s *Sink) EmitCheckpoint(cp *store.Checkpoint) {
	docID := fmt.Sprintf("%s-v%d-p%d", cp.BookID, cp.Version, cp.Progress)
	s.enqueue(document{
		index: IndexSummaries,
		docID: docID,
		body: map[string]any{
			"id":             docID,
			"book_id":        cp.BookID,
			"version":        cp.Version,
			"progress":       cp.Progress,
			"summary":        cp.Summary,
			"new_characters": cp.Delta,
			"completed_at":   cp.CompletedAt,
		},
	})
}

// EmitRoster queues one document per character entity.
func (s *Sink) EmitRoster(bookID string, version int, entities []roster.Entity) {
	for _, e := range entities {
		docID := fmt.Sprintf("%s-v%d-%s", bookID, version, e.Canonical)
		s.enqueue(document{
			index: IndexCharacters,
			docID: docID,
			body: map[string]any{
				"id":            docID,
				"book_id":       bookID,
				"version":       version,
				"name":          e.Canonical,
				"aliases":       e.AliasNames(),
				"first_seen":    e.FirstSeen,
				"mention_count": len(e.Mentions),
			},
		})
	}
}

func (s *Sink) enqueue(doc document) {
	select {
	case s.queue <- doc:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		s.logger.Warn("search queue full, dropping document", "index", doc.index, "doc_id", doc.docID)
	}
}

func (s *Sink) run(ctx context.Context) {
	defer s.wg.Done()
	for doc := range s.queue {
		writeCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err := s.client.IndexDocument(writeCtx, doc.index, doc.docID, doc.body)
		cancel()

		s.mu.Lock()
		if err != nil {
			s.failed++
		} else {
			s.indexed++
		}
		s.mu.Unlock()

		if err != nil {
			s.logger.Warn("index write failed", "index", doc.index, "doc_id", doc.docID, "error", err)
		}
	}
}
