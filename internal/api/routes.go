package api

import (
	"net/http"

	"github.com/falconeri/falconeri/internal/api/middleware"
)

// setupRoutes registers every route from spec.md §4.7's table.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	s.registerPublicRoutes(mux,
		"GET /version", s.handleVersion,
		"GET /api-docs/openapi.json", s.handleOpenAPI,
	)

	mux.HandleFunc("POST /jobs", s.handleSubmitJob)
	mux.HandleFunc("GET /jobs/list", s.handleListJobs)
	mux.HandleFunc("GET /jobs", s.handleGetJob)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	mux.HandleFunc("GET /jobs/{id}/describe", s.handleDescribeJob)
	mux.HandleFunc("POST /jobs/{id}/retry", s.handleRetryJob)
	mux.HandleFunc("POST /jobs/{id}/reserve_next_datum", s.handleReserveNextDatum)

	mux.HandleFunc("PATCH /datums/{id}", s.handleFinalizeDatum)
	mux.HandleFunc("POST /datums/{id}/output_files", s.handleRegisterOutputFiles)
	mux.HandleFunc("PATCH /datums/{id}/output_files", s.handleCommitOutputFiles)
	mux.HandleFunc("GET /datums/{id}/describe", s.handleDescribeDatum)
}

// registerPublicRoutes registers alternating pattern/handler pairs and
// marks each as exempt from Basic auth.
func (s *Server) registerPublicRoutes(mux *http.ServeMux, patternsAndHandlers ...any) {
	for i := 0; i+1 < len(patternsAndHandlers); i += 2 {
		pattern := patternsAndHandlers[i].(string)
		handler := patternsAndHandlers[i+1].(func(http.ResponseWriter, *http.Request))

		mux.HandleFunc(pattern, handler)

		path := pattern
		if idx := indexOfSpace(pattern); idx >= 0 {
			path = pattern[idx+1:]
		}

		middleware.RegisterPublicEndpoint(path)
	}
}

func indexOfSpace(s string) int {
	for i, c := range s {
		if c == ' ' {
			return i
		}
	}

	return -1
}
