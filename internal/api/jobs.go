package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/falconeri/falconeri/internal/store"
)

// handleSubmitJob handles POST /jobs (spec.md §4.5).
func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req SubmitJobRequest
	if problem := decodeRequestBody(r, s.config.MaxRequestSize, &req); problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)
		return
	}

	job, err := s.admitter.AdmitJob(r.Context(), req.PipelineSpec)
	if err != nil {
		WriteAppError(w, r, s.logger, err)
		return
	}

	writeJSON(w, r, s.logger, http.StatusOK, Envelope{Resource: newJobResource(job)})
}

// handleListJobs handles GET /jobs/list.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", 50)
	offset := parseIntQuery(r, "offset", 0)

	page, err := s.store.ListJobs(r.Context(), limit, offset)
	if err != nil {
		WriteAppError(w, r, s.logger, err)
		return
	}

	resources := make([]JobResource, len(page.Jobs))
	for i := range page.Jobs {
		resources[i] = newJobResource(&page.Jobs[i])
	}

	writeJSON(w, r, s.logger, http.StatusOK, CollectionEnvelope{Resources: resources, TotalCount: page.TotalCount})
}

// handleGetJob handles GET /jobs/{id} and GET /jobs?job_name=.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	var (
		job *store.Job
		err error
	)

	if name := r.URL.Query().Get("job_name"); name != "" {
		job, err = s.store.GetJobByName(r.Context(), name)
	} else {
		id, parseErr := parsePathUUID(r, "id")
		if parseErr != nil {
			WriteErrorResponse(w, r, s.logger, BadRequest(parseErr.Error()))
			return
		}

		job, err = s.store.GetJob(r.Context(), id)
	}

	if err != nil {
		WriteAppError(w, r, s.logger, err)
		return
	}

	writeJSON(w, r, s.logger, http.StatusOK, Envelope{Resource: newJobResource(job)})
}

// handleDescribeJob handles GET /jobs/{id}/describe.
func (s *Server) handleDescribeJob(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathUUID(r, "id")
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))
		return
	}

	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		WriteAppError(w, r, s.logger, err)
		return
	}

	counts, err := s.store.DatumStatusCounts(r.Context(), id)
	if err != nil {
		WriteAppError(w, r, s.logger, err)
		return
	}

	failed, err := s.store.ListFailedDatums(r.Context(), id)
	if err != nil {
		WriteAppError(w, r, s.logger, err)
		return
	}

	running, err := s.store.ListRunningDatums(r.Context(), id)
	if err != nil {
		WriteAppError(w, r, s.logger, err)
		return
	}

	resp := DescribeJobResponse{
		Job:               newJobResource(job),
		DatumStatusCounts: counts,
		FailedDatums:      newDatumResources(failed),
		RunningDatums:     newDatumResources(running),
	}

	writeJSON(w, r, s.logger, http.StatusOK, Envelope{Resource: resp})
}

// handleRetryJob handles POST /jobs/{id}/retry.
func (s *Server) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	id, err := parsePathUUID(r, "id")
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))
		return
	}

	count, err := s.store.RetryJob(r.Context(), id)
	if err != nil {
		WriteAppError(w, r, s.logger, err)
		return
	}

	writeJSON(w, r, s.logger, http.StatusOK, Envelope{Resource: RetryJobResponse{RequeuedCount: count}})
}

// handleReserveNextDatum handles POST /jobs/{id}/reserve_next_datum
// (spec.md §4.3). Returns a null resource when no Ready datum exists.
func (s *Server) handleReserveNextDatum(w http.ResponseWriter, r *http.Request) {
	jobID, err := parsePathUUID(r, "id")
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))
		return
	}

	var req ReserveNextDatumRequest
	if problem := decodeRequestBody(r, s.config.MaxRequestSize, &req); problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)
		return
	}

	reserved, err := s.store.ReserveNextDatum(r.Context(), jobID, req.PodName)
	if err != nil {
		WriteAppError(w, r, s.logger, err)
		return
	}

	if reserved == nil {
		writeJSON(w, r, s.logger, http.StatusOK, Envelope{Resource: nil})
		return
	}

	inputs := make([]InputFileResource, len(reserved.Inputs))
	for i, f := range reserved.Inputs {
		inputs[i] = newInputFileResource(f)
	}

	writeJSON(w, r, s.logger, http.StatusOK, Envelope{Resource: DescribeDatumResponse{
		Datum:      newDatumResource(&reserved.Datum),
		InputFiles: inputs,
	}})
}

func newDatumResources(datums []store.Datum) []DatumResource {
	out := make([]DatumResource, len(datums))
	for i := range datums {
		out[i] = newDatumResource(&datums[i])
	}

	return out
}

func parsePathUUID(r *http.Request, key string) (uuid.UUID, error) {
	return uuid.Parse(r.PathValue(key))
}

func parseIntQuery(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}

	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}

	return v
}
