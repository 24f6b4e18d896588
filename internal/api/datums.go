package api

import (
	"net/http"

	"github.com/falconeri/falconeri/internal/store"
)

// handleFinalizeDatum handles PATCH /datums/{id} (Output Protocol Step D,
// spec.md §4.4).
func (s *Server) handleFinalizeDatum(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathUUID(r, "id")
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))
		return
	}

	var req FinalizeDatumRequest
	if problem := decodeRequestBody(r, s.config.MaxRequestSize, &req); problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)
		return
	}

	err = s.store.FinalizeDatum(r.Context(), id, store.FinalizeDatumRequest{
		PodName:      req.PodName,
		Status:       req.Status,
		Output:       req.Output,
		ErrorMessage: req.ErrorMessage,
		Backtrace:    req.Backtrace,
	})
	if err != nil {
		WriteAppError(w, r, s.logger, err)
		return
	}

	datum, err := s.store.GetDatum(r.Context(), id)
	if err != nil {
		WriteAppError(w, r, s.logger, err)
		return
	}

	writeJSON(w, r, s.logger, http.StatusOK, Envelope{Resource: newDatumResource(datum)})
}

// handleRegisterOutputFiles handles POST /datums/{id}/output_files (Output
// Protocol Step A, spec.md §4.4).
func (s *Server) handleRegisterOutputFiles(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathUUID(r, "id")
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))
		return
	}

	var req RegisterOutputFilesRequest
	if problem := decodeRequestBody(r, s.config.MaxRequestSize, &req); problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)
		return
	}

	uris := make([]string, len(req.OutputFiles))
	for i, f := range req.OutputFiles {
		uris[i] = f.URI
	}

	created, err := s.store.RegisterOutputFiles(r.Context(), id, req.PodName, uris)
	if err != nil {
		WriteAppError(w, r, s.logger, err)
		return
	}

	resources := make([]OutputFileResource, len(created))
	for i, f := range created {
		resources[i] = newOutputFileResource(f)
	}

	writeJSON(w, r, s.logger, http.StatusOK, CollectionEnvelope{Resources: resources})
}

// handleCommitOutputFiles handles PATCH /datums/{id}/output_files (Output
// Protocol Step C, spec.md §4.4).
func (s *Server) handleCommitOutputFiles(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathUUID(r, "id")
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))
		return
	}

	var req CommitOutputFilesRequest
	if problem := decodeRequestBody(r, s.config.MaxRequestSize, &req); problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)
		return
	}

	outcomes := make([]store.OutputFileOutcome, len(req.OutputFiles))
	for i, f := range req.OutputFiles {
		outcomes[i] = store.OutputFileOutcome{ID: f.ID, Status: f.Status}
	}

	if err := s.store.CommitOutcomes(r.Context(), id, req.PodName, outcomes); err != nil {
		WriteAppError(w, r, s.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleDescribeDatum handles GET /datums/{id}/describe.
func (s *Server) handleDescribeDatum(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathUUID(r, "id")
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))
		return
	}

	datum, err := s.store.GetDatum(r.Context(), id)
	if err != nil {
		WriteAppError(w, r, s.logger, err)
		return
	}

	inputFiles, err := s.store.ListInputFiles(r.Context(), id)
	if err != nil {
		WriteAppError(w, r, s.logger, err)
		return
	}

	inputs := make([]InputFileResource, len(inputFiles))
	for i, f := range inputFiles {
		inputs[i] = newInputFileResource(f)
	}

	writeJSON(w, r, s.logger, http.StatusOK, Envelope{Resource: DescribeDatumResponse{
		Datum:      newDatumResource(datum),
		InputFiles: inputs,
	}})
}
