package authapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// Error codes returned in errorResponse.Error.Code.
const (
	codeInvalidJSON    = "invalid_json"
	codeInvalidRequest = "invalid_request"
	codeBodyTooLarge   = "body_too_large"
	codeTryAgain       = "try_again"
)

var (
	errEmptyBody    = errors.New("authapi: empty body")
	errTrailingData = errors.New("authapi: trailing data after JSON object")
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type errorResponse struct {
	Error         apiError `json:"error"`
	CorrelationID string   `json:"correlation_id,omitempty"`
}

// writeJSON sends v with no-store caching; encode failures after the header are dropped.
func writeJSON(w http.ResponseWriter, status int, v any) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: apiError{Code: code, Message: msg}})
}

func writeFieldError(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Error: apiError{Code: codeInvalidRequest, Message: msg, Field: field},
	})
}

// writeUnavailable answers system errors. The cause is logged by the caller, never sent.
func writeUnavailable(w http.ResponseWriter, correlationID string) {
	w.Header().Set("Retry-After", "1")
	writeJSON(w, http.StatusServiceUnavailable, errorResponse{
		Error:         apiError{Code: codeTryAgain, Message: "Something went wrong. Please try again."},
		CorrelationID: correlationID,
	})
}

// readBody decodes exactly one JSON object into dst. On failure it has
// already written the response and returns false.
func readBody(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) bool {
	err := decodeJSON(w, r, maxBytes, dst)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, codeBodyTooLarge, "request body too large")
		return false
	}
	writeError(w, http.StatusBadRequest, codeInvalidJSON, "invalid request body")
	return false
}

func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return errEmptyBody
	}
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errTrailingData
	}
	return nil
}
