// Package http serves the khata JSON API.
//
// This file implements a small builder for JSON responses and the single
// mapping from service errors to status codes and error bodies.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"khata/internal/core"
	"khata/internal/log"
)

// Error kinds written in the "kind" field of error bodies.
const (
	KindValidation   = "validation_error"
	KindNotFound     = "not_found"
	KindConflict     = "conflict"
	KindUnauthorized = "unauthorized"
	KindBadRequest   = "bad_request"
	KindRateLimited  = "rate_limited"
	KindInternal     = "internal"
)

// JSONResponseBuilder provides a fluent API for JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response. A nil body writes no content.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

// ErrorBody is the envelope of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// ErrorResponse creates an error response with the standard envelope.
func ErrorResponse(statusCode int, kind, message, field string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Body(ErrorBody{Error: ErrorDetail{Kind: kind, Message: message, Field: field}})
}

// errBadRequest marks request bodies that could not be decoded.
var errBadRequest = errors.New("malformed request body")

// classify maps an error to its status code and kind.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, KindBadRequest
	case errors.Is(err, core.ErrValidation):
		return http.StatusUnprocessableEntity, KindValidation
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, KindNotFound
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict, KindConflict
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusUnauthorized, KindUnauthorized
	default:
		return http.StatusInternalServerError, KindInternal
	}
}

// writeError renders err. Internal errors are logged and their message is
// replaced so storage details never reach the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := classify(err)
	message := err.Error()
	field := ""

	var verr *core.ValidationError
	if errors.As(err, &verr) {
		field = verr.Field
		message = verr.Message
	}

	if status == http.StatusInternalServerError {
		log.NewStructuredLogger(log.FromContext(r.Context())).LogError(r.Context(), "Request failed", err,
			log.ComponentHTTP, r.Method+" "+r.URL.Path,
			log.NewFields().WithRoute(r.Pattern).WithErrorKind(kind))
		message = "internal server error"
	}

	resp := ErrorResponse(status, kind, message, field)
	if status == http.StatusUnauthorized {
		resp.Header("WWW-Authenticate", "Bearer")
	}
	resp.Write(w)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	NewJSONResponse().Status(status).Body(v).Write(w)
}

func writeNoContent(w http.ResponseWriter) {
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}
