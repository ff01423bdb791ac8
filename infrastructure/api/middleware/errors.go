// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kpath-ai/kpath/domain/search"
)

// StatusClientClosedRequest is the nginx convention for a request the client
// abandoned before a response was written.
const StatusClientClosedRequest = 499

// ErrorBody is the discriminated error envelope of the discovery API.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// ErrorResponse wraps the error envelope.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// statusOf maps error codes to HTTP statuses.
var statusOf = map[search.Code]int{
	search.CodeInvalidRequest:  http.StatusBadRequest,
	search.CodeQueryEmpty:      http.StatusBadRequest,
	search.CodeIndexNotReady:   http.StatusServiceUnavailable,
	search.CodeModelMismatch:   http.StatusServiceUnavailable,
	search.CodeEmbeddingFailed: http.StatusServiceUnavailable,
	search.CodeOverloaded:      http.StatusTooManyRequests,
	search.CodeCancelled:       StatusClientClosedRequest,
	search.CodeNotFound:        http.StatusNotFound,
	search.CodeInternal:        http.StatusInternalServerError,
}

// WriteError classifies err and writes the error envelope with the mapped
// HTTP status.
func WriteError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	serr := search.Classify(err)
	status, ok := statusOf[serr.Code()]
	if !ok {
		status = http.StatusInternalServerError
	}

	if logger != nil {
		logger.Error("request error",
			"request_id", chimiddleware.GetReqID(r.Context()),
			"status", status,
			"code", string(serr.Code()),
			"error", serr.Error(),
			"path", r.URL.Path,
		)
	}

	WriteJSON(w, status, ErrorResponse{
		Error: ErrorBody{
			Code:      string(serr.Code()),
			Message:   serr.Message(),
			Retryable: serr.Retryable(),
		},
	})
}

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
