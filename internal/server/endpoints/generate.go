package endpoints

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"recap/internal/api"
	"recap/internal/pipeline"
	"recap/internal/store"
	"recap/internal/svcctx"
)

// RunResponse reports the state of a book's generation run.
type RunResponse struct {
	BookID  string           `json:"book_id"`
	Running bool             `json:"running"`
	Report  *pipeline.Report `json:"report,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// startHandler builds a handler that launches a run via the given manager
// method. The run proceeds in the background; the response only acknowledges
// the launch.
func startHandler(start func(mgr *pipeline.Manager, r *http.Request, id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		st := svcctx.StoreFrom(r.Context())
		if _, err := st.GetBook(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "book not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		mgr := svcctx.ManagerFrom(r.Context())
		if err := start(mgr, r, id); err != nil {
			if errors.Is(err, pipeline.ErrAlreadyRunning) {
				writeError(w, http.StatusConflict, "generation already running")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		writeJSON(w, http.StatusAccepted, RunResponse{BookID: id, Running: true})
	}
}

// StartGenerateEndpoint handles POST /v1/books/{id}/generate.
type StartGenerateEndpoint struct{}

func (e *StartGenerateEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/v1/books/{id}/generate", startHandler(
		func(mgr *pipeline.Manager, r *http.Request, id string) error {
			return mgr.Start(runContext(r), id)
		})
}

func (e *StartGenerateEndpoint) RequiresInit() bool { return true }

func (e *StartGenerateEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <book-id>",
		Short: "Start checkpoint generation for a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp RunResponse
			if err := client.Post(cmd.Context(), "/v1/books/"+args[0]+"/generate", nil, &resp); err != nil {
				return err
			}
			fmt.Printf("Generation started for book %s\n", resp.BookID)
			return nil
		},
	}
}

// RetryEndpoint handles POST /v1/books/{id}/retry. It resets terminally
// failed checkpoints and resumes the run from the halt point.
type RetryEndpoint struct{}

func (e *RetryEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/v1/books/{id}/retry", startHandler(
		func(mgr *pipeline.Manager, r *http.Request, id string) error {
			return mgr.StartRetry(runContext(r), id)
		})
}

func (e *RetryEndpoint) RequiresInit() bool { return true }

func (e *RetryEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <book-id>",
		Short: "Retry failed checkpoints and resume generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp RunResponse
			if err := client.Post(cmd.Context(), "/v1/books/"+args[0]+"/retry", nil, &resp); err != nil {
				return err
			}
			fmt.Printf("Retry started for book %s\n", resp.BookID)
			return nil
		},
	}
}

// RegenerateEndpoint handles POST /v1/books/{id}/regenerate. It starts a
// fresh processing version; existing completed checkpoints are preserved
// under the old version.
type RegenerateEndpoint struct{}

func (e *RegenerateEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/v1/books/{id}/regenerate", startHandler(
		func(mgr *pipeline.Manager, r *http.Request, id string) error {
			return mgr.StartRegenerate(runContext(r), id)
		})
}

func (e *RegenerateEndpoint) RequiresInit() bool { return true }

func (e *RegenerateEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "regenerate <book-id>",
		Short: "Regenerate all checkpoints under a new version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp RunResponse
			if err := client.Post(cmd.Context(), "/v1/books/"+args[0]+"/regenerate", nil, &resp); err != nil {
				return err
			}
			fmt.Printf("Regeneration started for book %s\n", resp.BookID)
			return nil
		},
	}
}

// RunStatusEndpoint handles GET /v1/books/{id}/run.
type RunStatusEndpoint struct{}

func (e *RunStatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/v1/books/{id}/run", e.handler
}

func (e *RunStatusEndpoint) RequiresInit() bool { return true }

func (e *RunStatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	mgr := svcctx.ManagerFrom(r.Context())

	resp := RunResponse{BookID: id, Running: mgr.Running(id)}
	if report, errText, ok := mgr.LastResult(id); ok {
		resp.Report = report
		resp.Error = errText
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *RunStatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "run <book-id>",
		Short: "Show the state of a book's generation run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp RunResponse
			if err := client.Get(cmd.Context(), "/v1/books/"+args[0]+"/run", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// runContext detaches the run from the request lifecycle: generation keeps
// going after the HTTP response is written.
func runContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}
