package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/falconeri/falconeri/internal/api/middleware"
	"github.com/falconeri/falconeri/internal/apperror"
)

// ProblemDetail is an RFC 7807 Problem Details body.
type ProblemDetail struct {
	Type          string `json:"type"`
	Title         string `json:"title"`
	Status        int    `json:"status"`
	Detail        string `json:"detail,omitempty"`
	Instance      string `json:"instance,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`

	// Actual and Claimed surface the two conflicting pod names of an
	// OwnershipMismatch, per spec.md's own debuggability open question.
	Actual  string `json:"actual,omitempty"`
	Claimed string `json:"claimed,omitempty"`
}

// NewProblemDetail builds a ProblemDetail.
func NewProblemDetail(status int, title, detail string) *ProblemDetail {
	return &ProblemDetail{
		Type:   fmt.Sprintf("https://falconeri.io/problems/%d", status),
		Title:  title,
		Status: status,
		Detail: detail,
	}
}

// WriteErrorResponse renders problem as an RFC 7807 response, filling in
// correlation ID and instance path if unset.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, problem *ProblemDetail) {
	correlationID := middleware.GetCorrelationID(r.Context())

	if problem.CorrelationID == "" {
		problem.CorrelationID = correlationID
	}

	if problem.Instance == "" {
		problem.Instance = r.URL.Path
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(problem.Status)

	if err := json.NewEncoder(w).Encode(problem); err != nil {
		logger.Error("failed to encode error response",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.Any("encode_error", err),
		)

		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// WriteAppError renders err as a ProblemDetail, mapping apperror.Kind to
// an HTTP status the way spec.md §7 requires. Errors that aren't
// *apperror.Error are treated as 500s.
func WriteAppError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	appErr, ok := apperror.As(err)
	if !ok {
		logger.Error("unhandled error",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, logger, NewProblemDetail(http.StatusInternalServerError, "Internal Server Error", "an unexpected error occurred"))

		return
	}

	status, title := statusForKind(appErr.Kind)

	problem := NewProblemDetail(status, title, appErr.Message)
	if appErr.Kind == apperror.KindOwnershipMismatch {
		problem.Actual = appErr.Actual
		problem.Claimed = appErr.Claimed

		logger.Error("ownership mismatch",
			slog.String("datum", appErr.DatumID.String()),
			slog.String("job", appErr.JobID.String()),
			slog.String("claimed_pod_name", appErr.Claimed),
			slog.String("actual_pod_name", appErr.Actual),
		)
	}

	WriteErrorResponse(w, r, logger, problem)
}

func statusForKind(kind apperror.Kind) (int, string) {
	switch kind {
	case apperror.KindNotFound:
		return http.StatusNotFound, "Not Found"
	case apperror.KindOwnershipMismatch:
		return http.StatusForbidden, "Ownership Mismatch"
	case apperror.KindValidation:
		return http.StatusBadRequest, "Bad Request"
	case apperror.KindConflict:
		return http.StatusInternalServerError, "Conflict"
	case apperror.KindTransient:
		return http.StatusServiceUnavailable, "Service Unavailable"
	case apperror.KindFatal:
		return http.StatusInternalServerError, "Internal Server Error"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

// writeJSON renders body as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response",
			slog.String("path", r.URL.Path),
			slog.Any("encode_error", err),
		)
	}
}

// BadRequest creates a 400 problem.
func BadRequest(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusBadRequest, "Bad Request", detail)
}

// NotFound creates a 404 problem.
func NotFound(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusNotFound, "Not Found", detail)
}

// InternalServerError creates a 500 problem.
func InternalServerError(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusInternalServerError, "Internal Server Error", detail)
}

// UnsupportedMediaType creates a 415 problem.
func UnsupportedMediaType(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusUnsupportedMediaType, "Unsupported Media Type", detail)
}

// PayloadTooLarge creates a 413 problem.
func PayloadTooLarge(detail string) *ProblemDetail {
	return NewProblemDetail(http.StatusRequestEntityTooLarge, "Payload Too Large", detail)
}

// decodeRequestBody decodes r's JSON body into v, rejecting bodies over
// maxSize before parsing and capping the decoder itself as a backstop
// against a lying Content-Length header.
func decodeRequestBody(r *http.Request, maxSize int64, v any) *ProblemDetail {
	if r.ContentLength > 0 && r.ContentLength > maxSize {
		return PayloadTooLarge(fmt.Sprintf("request body exceeds maximum size of %d bytes", maxSize))
	}

	decoder := json.NewDecoder(io.LimitReader(r.Body, maxSize))
	if err := decoder.Decode(v); err != nil {
		return BadRequest("invalid JSON: " + err.Error())
	}

	return nil
}
