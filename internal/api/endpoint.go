// Package api ties the server's HTTP surface and the CLI together: every
// operation is described once as an Endpoint and registered both as a mux
// route and as a cobra command.
package api

import (
	"net/http"

	"github.com/spf13/cobra"
)

// Endpoint describes one API operation.
type Endpoint interface {
	// Route returns the HTTP method, path pattern, and handler.
	Route() (method, path string, handler http.HandlerFunc)

	// RequiresInit reports whether the endpoint needs the server fully
	// initialized (store open, pipeline manager ready). Endpoints that
	// do not are served even while startup is in progress.
	RequiresInit() bool

	// Command returns the cobra command that invokes this endpoint over
	// HTTP. getServerURL is evaluated at run time, after flag parsing.
	Command(getServerURL func() string) *cobra.Command
}
