package api

import "net/http"

// handleVersion responds to GET /version with the coordinator's build
// version in plain text.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(s.version))
}

// handleOpenAPI responds to GET /api-docs/openapi.json. The coordination
// core's surface is small enough to hand-maintain rather than generate.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(openAPIDocument))
}

const openAPIDocument = `{
  "openapi": "3.0.0",
  "info": {"title": "Falconeri Coordinator", "version": "1"},
  "paths": {
    "/jobs": {"post": {"summary": "submit a job"}},
    "/jobs/list": {"get": {"summary": "list jobs"}},
    "/jobs/{id}": {"get": {"summary": "get a job"}},
    "/jobs/{id}/describe": {"get": {"summary": "describe a job"}},
    "/jobs/{id}/retry": {"post": {"summary": "retry a job's errored datums"}},
    "/jobs/{id}/reserve_next_datum": {"post": {"summary": "reserve the next ready datum"}},
    "/datums/{id}": {"patch": {"summary": "finalise a datum"}},
    "/datums/{id}/output_files": {
      "post": {"summary": "register output file placeholders"},
      "patch": {"summary": "commit output file outcomes"}
    },
    "/datums/{id}/describe": {"get": {"summary": "describe a datum"}}
  }
}`
