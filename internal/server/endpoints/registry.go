package endpoints

import (
	"recap/internal/api"
)

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{},

		// Book endpoints
		&CreateBookEndpoint{},
		&ListBooksEndpoint{},
		&GetBookEndpoint{},
		&DeleteBookEndpoint{},

		// Generation endpoints
		&StartGenerateEndpoint{},
		&RetryEndpoint{},
		&RegenerateEndpoint{},
		&RunStatusEndpoint{},

		// Read endpoints
		&SummaryByProgressEndpoint{},
		&ListSummariesEndpoint{},
		&ListCheckpointsEndpoint{},
		&CharactersByProgressEndpoint{},
	}
}
