package endpoints

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"recap/internal/api"
	"recap/internal/pipeline"
	"recap/internal/providers"
	"recap/internal/store"
	"recap/internal/svcctx"
)

type testEnv struct {
	server *httptest.Server
	store  *store.Store
	mock   *providers.MockGenerator
	mgr    *pipeline.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "recap.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})

	logger := slog.New(slog.DiscardHandler)
	mock := providers.NewMockGenerator()
	registry := providers.NewRegistry()
	registry.SetLogger(logger)
	registry.Register("mock", mock, 10000)

	orch := pipeline.NewOrchestrator(st, registry, nil, pipeline.Config{
		Generator:  "mock",
		GridStep:   10,
		RetryDelay: time.Millisecond,
	}, logger)
	mgr := pipeline.NewManager(orch, logger)

	services := &svcctx.Services{
		Store:    st,
		Registry: registry,
		Manager:  mgr,
		Resolver: pipeline.NewResolver(st),
		Logger:   logger,
	}

	mux := http.NewServeMux()
	reg := api.NewRegistry()
	for _, ep := range All() {
		reg.Register(ep)
	}
	reg.RegisterRoutes(mux, func(next http.HandlerFunc) http.HandlerFunc { return next })

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r.WithContext(svcctx.WithServices(r.Context(), services)))
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, store: st, mock: mock, mgr: mgr}
}

func (env *testEnv) client() *api.Client {
	return api.NewClient(env.server.URL)
}

func TestHealthAndStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var health HealthResponse
	if err := env.client().Get(ctx, "/health", &health); err != nil {
		t.Fatalf("health: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("health status: %s", health.Status)
	}

	var ready ReadyResponse
	if err := env.client().Get(ctx, "/ready", &ready); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if ready.Store != "ok" {
		t.Errorf("ready store: %s", ready.Store)
	}

	var status StatusResponse
	if err := env.client().Get(ctx, "/status", &status); err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(status.Generators) != 1 || status.Generators[0] != "mock" {
		t.Errorf("generators: %v", status.Generators)
	}
}

func TestBookLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := env.client()

	// Register
	var book store.Book
	req := CreateBookRequest{Title: "Test", Author: "A", Text: strings.Repeat("word ", 200)}
	if err := client.Post(ctx, "/v1/books", req, &book); err != nil {
		t.Fatalf("create: %v", err)
	}
	if book.ID == "" || book.TotalLength == 0 {
		t.Fatalf("created book: %+v", book)
	}

	// Validation
	if err := client.Post(ctx, "/v1/books", CreateBookRequest{Title: "x"}, nil); err == nil {
		t.Error("create without text should fail")
	}

	// List and get
	var list ListBooksResponse
	if err := client.Get(ctx, "/v1/books", &list); err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list.Books) != 1 {
		t.Errorf("books listed: %d", len(list.Books))
	}
	var got store.Book
	if err := client.Get(ctx, "/v1/books/"+book.ID, &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := client.Get(ctx, "/v1/books/missing", &got); err == nil {
		t.Error("get missing book should 404")
	}

	// Generate
	env.mock.Responses[10] = &providers.Result{Summary: "the opening", Characters: []string{"Alice"}}
	var run RunResponse
	if err := client.Post(ctx, "/v1/books/"+book.ID+"/generate", nil, &run); err != nil {
		t.Fatalf("generate: %v", err)
	}
	env.mgr.Wait()

	var runStatus RunResponse
	if err := client.Get(ctx, "/v1/books/"+book.ID+"/run", &runStatus); err != nil {
		t.Fatalf("run status: %v", err)
	}
	if runStatus.Running || runStatus.Report == nil || runStatus.Report.Completed != 10 {
		t.Errorf("run status: %+v", runStatus)
	}

	// Read back a summary, spoiler-safe resolution
	var summary SummaryResponse
	if err := client.Get(ctx, "/v1/books/"+book.ID+"/summary?progress=15", &summary); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Progress != 10 || summary.Summary != "the opening" {
		t.Errorf("summary: %+v", summary)
	}
	if err := client.Get(ctx, "/v1/books/"+book.ID+"/summary?progress=5", &summary); err == nil {
		t.Error("summary below first checkpoint should 404")
	}
	if err := client.Get(ctx, "/v1/books/"+book.ID+"/summary?progress=200", &summary); err == nil {
		t.Error("out of range progress should 400")
	}

	// Characters
	var chars CharactersResponse
	if err := client.Get(ctx, "/v1/books/"+book.ID+"/characters?progress=50", &chars); err != nil {
		t.Fatalf("characters: %v", err)
	}
	if len(chars.Characters) != 1 || chars.Characters[0].Name != "alice" {
		t.Errorf("characters: %+v", chars.Characters)
	}

	// Listings
	var summaries ListSummariesResponse
	if err := client.Get(ctx, "/v1/books/"+book.ID+"/summaries", &summaries); err != nil {
		t.Fatalf("summaries: %v", err)
	}
	if len(summaries.Checkpoints) != 10 {
		t.Errorf("summaries: %d", len(summaries.Checkpoints))
	}
	var all ListSummariesResponse
	if err := client.Get(ctx, "/v1/books/"+book.ID+"/checkpoints", &all); err != nil {
		t.Fatalf("checkpoints: %v", err)
	}
	if len(all.Checkpoints) != 10 {
		t.Errorf("checkpoints: %d", len(all.Checkpoints))
	}

	// Delete
	if err := client.Delete(ctx, "/v1/books/"+book.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := client.Get(ctx, "/v1/books/"+book.ID, &got); err == nil {
		t.Error("deleted book should 404")
	}
}

func TestGenerateConflictWhileRunning(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	client := env.client()

	env.mock.Latency = 50 * time.Millisecond

	var book store.Book
	req := CreateBookRequest{Title: "Slow", Text: strings.Repeat("word ", 200)}
	if err := client.Post(ctx, "/v1/books", req, &book); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := client.Post(ctx, "/v1/books/"+book.ID+"/generate", nil, nil); err != nil {
		t.Fatalf("first generate: %v", err)
	}
	err := client.Post(ctx, "/v1/books/"+book.ID+"/generate", nil, nil)
	if err == nil || !strings.Contains(err.Error(), "409") {
		t.Errorf("second generate: got %v, want 409 conflict", err)
	}
	env.mgr.Wait()
}

func TestErrorResponseShape(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/v1/books/missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status: %d", resp.StatusCode)
	}
	var body ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error == "" {
		t.Error("error message missing")
	}
}
