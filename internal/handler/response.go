package handler

import (
	"fmt"
	"net/http"

	apperrors "github.com/openclaw/session-gateway-go/internal/errors"
	"github.com/openclaw/session-gateway-go/internal/httputil"
)

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Count   *int   `json:"count,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

// writeFailure renders client errors as-is and prefixes server-side failures
// with the operation that failed.
func writeFailure(w http.ResponseWriter, err error, operation string) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		appErr = apperrors.Internal("An unexpected error occurred").WithCause(err)
	}
	status := httputil.StatusFromCode(appErr.Code)
	if status < http.StatusInternalServerError {
		writeError(w, appErr)
		return
	}
	writeJSON(w, status, httputil.ErrorResponse{
		Message: fmt.Sprintf("%s: %s", operation, appErr.Message),
		Code:    appErr.Code,
	})
}
