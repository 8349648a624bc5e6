package restapi

import (
	"errors"
	"net/http"

	"github.com/aobuilder/aob/pkg/aoberrors"
)

// APIError is the envelope every non-2xx response uses.
type APIError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	HTTPStatus int            `json:"-"`
}

func (e *APIError) Error() string { return e.Message }

// NewAPIError builds an APIError with no extra detail fields.
func NewAPIError(code, message string, status int) *APIError {
	return &APIError{Code: code, Message: message, HTTPStatus: status}
}

var (
	errBadRequest       = NewAPIError("BAD_REQUEST", "invalid request", http.StatusBadRequest)
	errInvalidJSON      = NewAPIError("INVALID_JSON", "invalid JSON in request body", http.StatusBadRequest)
	errMissingParameter = NewAPIError("MISSING_PARAMETER", "required parameter is missing", http.StatusBadRequest)
	errInternal         = NewAPIError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
)

// translateError maps a domain error from pkg/aoberrors (including the
// CompileError that pkg/graph returns) onto the Control API's closed set of error codes.
func translateError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var compileErr *aoberrors.CompileError
	if errors.As(err, &compileErr) {
		return &APIError{
			Code:    "COMPILE_ERROR",
			Message: compileErr.Error(),
			Details: map[string]any{
				"kind":    compileErr.Kind,
				"node_id": compileErr.NodeID,
				"edge_id": compileErr.EdgeID,
				"field":   compileErr.Field,
			},
			HTTPStatus: http.StatusUnprocessableEntity,
		}
	}

	var validationErr *aoberrors.ValidationError
	if errors.As(err, &validationErr) {
		return NewAPIError("VALIDATION_FAILED", validationErr.Error(), http.StatusBadRequest)
	}

	var nodeErr *aoberrors.NodeError
	if errors.As(err, &nodeErr) {
		return NewAPIError("NODE_ERROR", nodeErr.Error(), http.StatusInternalServerError)
	}

	switch {
	case errors.Is(err, aoberrors.ErrRunNotFound), errors.Is(err, aoberrors.ErrUnknownRun):
		return NewAPIError("UNKNOWN_RUN", "unknown run", http.StatusNotFound)
	case errors.Is(err, aoberrors.ErrNotPending):
		return NewAPIError("NOT_PENDING", "node is not awaiting approval", http.StatusConflict)
	case errors.Is(err, aoberrors.ErrTerminalRun):
		return NewAPIError("TERMINAL_RUN", "run is already terminal", http.StatusConflict)
	case errors.Is(err, aoberrors.ErrSnapshotNotFound):
		return NewAPIError("SNAPSHOT_NOT_FOUND", "snapshot not found", http.StatusNotFound)
	case errors.Is(err, aoberrors.ErrDLQEntryNotFound):
		return NewAPIError("DLQ_ENTRY_NOT_FOUND", "dead-letter entry not found", http.StatusNotFound)
	case errors.Is(err, aoberrors.ErrLeaseBusy), errors.Is(err, aoberrors.ErrLeaseLost):
		return NewAPIError("RUN_UNAVAILABLE", "lease could not be acquired", http.StatusConflict)
	case errors.Is(err, aoberrors.ErrRunUnavailable):
		return NewAPIError("RUN_UNAVAILABLE", "run unavailable", http.StatusServiceUnavailable)
	case errors.Is(err, aoberrors.ErrOracleUnavailable):
		return NewAPIError("POLICY_ORACLE_UNAVAILABLE", "policy oracle unavailable", http.StatusServiceUnavailable)
	default:
		return NewAPIError("INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
	}
}
