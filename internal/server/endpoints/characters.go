package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"recap/internal/api"
	"recap/internal/svcctx"
)

// Character is one roster entry as of a resolved checkpoint.
type Character struct {
	Name      string   `json:"name"`
	Aliases   []string `json:"aliases"`
	FirstSeen int      `json:"first_seen"`
	Mentions  []int    `json:"mentions"`
}

// CharactersResponse is the cumulative roster at a reading position.
type CharactersResponse struct {
	BookID            string      `json:"book_id"`
	RequestedProgress int         `json:"requested_progress"`
	Characters        []Character `json:"characters"`
}

// CharactersByProgressEndpoint handles GET /v1/books/{id}/characters?progress=N.
// The roster is cumulative and clipped to the resolved checkpoint: a
// character first seen later in the book never appears.
type CharactersByProgressEndpoint struct{}

func (e *CharactersByProgressEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/v1/books/{id}/characters", e.handler
}

func (e *CharactersByProgressEndpoint) RequiresInit() bool { return true }

func (e *CharactersByProgressEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	progress, ok := parseProgress(w, r)
	if !ok {
		return
	}

	entities, err := svcctx.ResolverFrom(r.Context()).RosterAt(r.Context(), id, progress)
	if err != nil {
		writeResolveError(w, err)
		return
	}

	resp := CharactersResponse{
		BookID:            id,
		RequestedProgress: progress,
		Characters:        make([]Character, 0, len(entities)),
	}
	for _, e := range entities {
		resp.Characters = append(resp.Characters, Character{
			Name:      e.Canonical,
			Aliases:   e.AliasNames(),
			FirstSeen: e.FirstSeen,
			Mentions:  e.Mentions,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *CharactersByProgressEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "characters <book-id> <progress>",
		Short: "Get the character roster for a reading position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp CharactersResponse
			path := "/v1/books/" + args[0] + "/characters?progress=" + args[1]
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
