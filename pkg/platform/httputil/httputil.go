package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "mintgate/pkg/domain-errors"
)

// maxBodyBytes bounds request bodies; mint and webhook payloads are small.
const maxBodyBytes = 1 << 20

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent, so encoding errors cannot change the status.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError translates domain errors into HTTP status codes and a JSON body.
// Internal errors never leak their message.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		status := DomainCodeToHTTPStatus(domainErr.Code)
		response := map[string]string{
			"error": DomainCodeToHTTPCode(domainErr.Code),
		}
		if domainErr.Message != "" && status != http.StatusInternalServerError {
			response["error_description"] = domainErr.Message
		}
		WriteJSON(w, status, response)
		return
	}

	WriteJSON(w, http.StatusInternalServerError, map[string]string{
		"error": DomainCodeToHTTPCode(dErrors.CodeInternal),
	})
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeInvariantViolation:
		return http.StatusBadRequest
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden,
		dErrors.CodeNoActivePhase, dErrors.CodeWalletLocked, dErrors.CodeCapacityExceeded,
		dErrors.CodeNotAllowlisted, dErrors.CodeNoAllowanceLeft, dErrors.CodeWalletLimitReached:
		return http.StatusForbidden
	case dErrors.CodeProviderUnavailable:
		return http.StatusServiceUnavailable
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// DomainCodeToHTTPCode translates domain error codes to the "error" field of the JSON body.
// Admission denials keep their own code so clients can explain the refusal.
func DomainCodeToHTTPCode(code dErrors.Code) string {
	switch code {
	case dErrors.CodeNotFound:
		return "not_found"
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput:
		return "bad_request"
	case dErrors.CodeValidation, dErrors.CodeInvariantViolation:
		return "validation_error"
	case dErrors.CodeConflict:
		return "duplicate_entry"
	case dErrors.CodeUnauthorized:
		return "unauthorized"
	case dErrors.CodeForbidden:
		return "forbidden"
	case dErrors.CodeNoActivePhase, dErrors.CodeWalletLocked, dErrors.CodeCapacityExceeded,
		dErrors.CodeNotAllowlisted, dErrors.CodeNoAllowanceLeft, dErrors.CodeWalletLimitReached,
		dErrors.CodeProviderUnavailable:
		return string(code)
	case dErrors.CodeTimeout:
		return "timeout"
	default:
		return "internal_error"
	}
}

// DecodeJSON decodes a JSON request body into the target type.
// On failure it writes a 400 response and returns nil, false.
//
//	req, ok := httputil.DecodeJSON[mintRequest](w, r, h.logger, ctx, requestID)
//	if !ok {
//	    return
//	}
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	var req T
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		logger.WarnContext(ctx, "failed to decode request body",
			"error", err,
			"request_id", requestID,
		)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return nil, false
	}
	return &req, true
}

// Validatable is implemented by request types that support validation.
type Validatable interface {
	Validate() error
}

// Normalizable is implemented by request types that support normalization.
type Normalizable interface {
	Normalize()
}

// DecodeAndPrepare decodes the body, then calls Normalize and Validate when the
// target implements them.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	req, ok := DecodeJSON[T](w, r, logger, ctx, requestID)
	if !ok {
		return nil, false
	}
	if n, ok := any(req).(Normalizable); ok {
		n.Normalize()
	}
	if v, ok := any(req).(Validatable); ok {
		if err := v.Validate(); err != nil {
			logger.WarnContext(ctx, "invalid request",
				"error", err,
				"request_id", requestID,
			)
			var domainErr *dErrors.Error
			if errors.As(err, &domainErr) {
				WriteError(w, err)
			} else {
				WriteError(w, dErrors.New(dErrors.CodeValidation, err.Error()))
			}
			return nil, false
		}
	}
	return req, true
}
