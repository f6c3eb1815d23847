package endpoints

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"recap/internal/api"
	"recap/internal/store"
	"recap/internal/svcctx"
)

// SummaryResponse is a spoiler-safe summary at a resolved checkpoint.
type SummaryResponse struct {
	BookID            string   `json:"book_id"`
	RequestedProgress int      `json:"requested_progress"`
	Progress          int      `json:"progress"`
	Summary           string   `json:"summary"`
	NewCharacters     []string `json:"new_characters"`
}

// SummaryByProgressEndpoint handles GET /v1/books/{id}/summary?progress=N.
// It resolves to the completed checkpoint with the largest progress at or
// before the requested value, so a reader never sees past their position.
type SummaryByProgressEndpoint struct{}

func (e *SummaryByProgressEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/v1/books/{id}/summary", e.handler
}

func (e *SummaryByProgressEndpoint) RequiresInit() bool { return true }

func (e *SummaryByProgressEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	progress, ok := parseProgress(w, r)
	if !ok {
		return
	}

	cp, err := svcctx.ResolverFrom(r.Context()).Resolve(r.Context(), id, progress)
	if err != nil {
		writeResolveError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SummaryResponse{
		BookID:            id,
		RequestedProgress: progress,
		Progress:          cp.Progress,
		Summary:           cp.Summary,
		NewCharacters:     cp.Delta,
	})
}

func (e *SummaryByProgressEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "summary <book-id> <progress>",
		Short: "Get the summary for a reading position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp SummaryResponse
			path := "/v1/books/" + args[0] + "/summary?progress=" + args[1]
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ListSummariesResponse lists a book's completed checkpoints.
type ListSummariesResponse struct {
	BookID      string              `json:"book_id"`
	Checkpoints []*store.Checkpoint `json:"checkpoints"`
}

// ListSummariesEndpoint handles GET /v1/books/{id}/summaries.
type ListSummariesEndpoint struct{}

func (e *ListSummariesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/v1/books/{id}/summaries", e.handler
}

func (e *ListSummariesEndpoint) RequiresInit() bool { return true }

func (e *ListSummariesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	checkpoints, err := svcctx.ResolverFrom(r.Context()).Summaries(r.Context(), id)
	if err != nil {
		writeResolveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListSummariesResponse{BookID: id, Checkpoints: checkpoints})
}

func (e *ListSummariesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "summaries <book-id>",
		Short: "List a book's completed summaries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ListSummariesResponse
			if err := client.Get(cmd.Context(), "/v1/books/"+args[0]+"/summaries", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ListCheckpointsEndpoint handles GET /v1/books/{id}/checkpoints. Unlike
// the summaries listing, this shows every checkpoint whatever its status,
// for operators inspecting run progress.
type ListCheckpointsEndpoint struct{}

func (e *ListCheckpointsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/v1/books/{id}/checkpoints", e.handler
}

func (e *ListCheckpointsEndpoint) RequiresInit() bool { return true }

func (e *ListCheckpointsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	checkpoints, err := svcctx.ResolverFrom(r.Context()).Checkpoints(r.Context(), id)
	if err != nil {
		writeResolveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListSummariesResponse{BookID: id, Checkpoints: checkpoints})
}

func (e *ListCheckpointsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoints <book-id>",
		Short: "List all checkpoints of a book with their statuses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ListSummariesResponse
			if err := client.Get(cmd.Context(), "/v1/books/"+args[0]+"/checkpoints", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// parseProgress reads and validates the progress query parameter.
func parseProgress(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("progress")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "progress query parameter is required")
		return 0, false
	}
	progress, err := strconv.Atoi(raw)
	if err != nil || progress < 0 || progress > 100 {
		writeError(w, http.StatusBadRequest, "progress must be an integer in [0,100]")
		return 0, false
	}
	return progress, true
}

// writeResolveError maps resolver errors to HTTP statuses.
func writeResolveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "book not found")
	case errors.Is(err, store.ErrNoCheckpointAvailable):
		writeError(w, http.StatusNotFound, "no checkpoint available at or before the requested progress")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
