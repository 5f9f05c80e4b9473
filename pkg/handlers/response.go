package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chinmayajena/sundaygraph/pkg/apperrors"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// WriteError maps tagged pipeline errors onto HTTP statuses, keeping the
// stable error code in the body.
func WriteError(w http.ResponseWriter, err error) {
	if errors.Is(err, apperrors.ErrNotFound) {
		_ = ErrorResponse(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	if errors.Is(err, apperrors.ErrConflict) {
		_ = ErrorResponse(w, http.StatusConflict, "CONFLICT", err.Error())
		return
	}

	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		switch appErr.Code {
		case apperrors.CodeInvalidStructure, apperrors.CodeInvalidReference, apperrors.CodeGateFailed:
			status = http.StatusBadRequest
		case apperrors.CodeDuplicateContent:
			status = http.StatusConflict
		case apperrors.CodeTimeout:
			status = http.StatusGatewayTimeout
		case apperrors.CodeVerifyFailed, apperrors.CodeDeployFailed, apperrors.CodeCompileFailed,
			apperrors.CodeRegressionFailed:
			status = http.StatusUnprocessableEntity
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":     string(appErr.Code),
			"message":   appErr.Message,
			"details":   appErr.Details,
			"retryable": appErr.Retryable,
		})
		return
	}

	_ = ErrorResponse(w, http.StatusInternalServerError, "INTERNAL", err.Error())
}
