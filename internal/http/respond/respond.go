// Package respond writes the JSON envelope shared by handlers and middleware:
// {"success": true, ...} on success and {"success": false, "error", "code"}
// on failure.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"blogpilot/internal/domain"
)

// Error codes carried in the "code" field.
const (
	CodeInvalidInput        = "invalid_input"
	CodeUnauthorized        = "unauthorized"
	CodeForbidden           = "forbidden"
	CodeNotFound            = "not_found"
	CodeConflict            = "conflict"
	CodeInsufficientCredits = "insufficient_credits"
	CodeRateLimited         = "rate_limited"
	CodeIntegrationMissing  = "integration_missing"
	CodeUpstream            = "upstream_error"
	CodeInternal            = "internal"
)

// JSON writes payload with success=true merged in. Maps and structs are both
// accepted; structs are wrapped under "data".
func JSON(w http.ResponseWriter, status int, payload any) {
	body := map[string]any{"success": true}
	switch v := payload.(type) {
	case nil:
	case map[string]any:
		for k, val := range v {
			body[k] = val
		}
	default:
		body["data"] = v
	}
	write(w, status, body)
}

// Error writes a failure envelope.
func Error(w http.ResponseWriter, status int, code, msg string) {
	write(w, status, map[string]any{"success": false, "error": msg, "code": code})
}

// Status maps an error to its HTTP status and code.
func Status(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidCurrency),
		errors.Is(err, domain.ErrUnknownFeature),
		errors.Is(err, domain.ErrBalanceCap):
		return http.StatusBadRequest, CodeInvalidInput
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, CodeUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, domain.ErrIdempotencyConflict), errors.Is(err, domain.ErrDuplicateOperation):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, domain.ErrInsufficientCredits):
		return http.StatusPaymentRequired, CodeInsufficientCredits
	case errors.Is(err, domain.ErrIntegrationMissing):
		return http.StatusPreconditionFailed, CodeIntegrationMissing
	case errors.Is(err, domain.ErrProviderFailure):
		return http.StatusBadGateway, CodeUpstream
	}
	return http.StatusInternalServerError, CodeInternal
}

// Err writes err with its mapped status. Internal errors hide their message.
func Err(w http.ResponseWriter, err error) {
	status, code := Status(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	Error(w, status, code, msg)
}

func write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
