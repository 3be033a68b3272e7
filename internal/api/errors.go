package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/upswatch/internal/upsd"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes. The UPS-specific ones mirror the upsd error names.
const (
	ErrCodeBadRequest    = "bad_request"
	ErrCodeNotFound      = "not_found"
	ErrCodeUnauthorized  = "unauthorised"
	ErrCodeForbidden     = "forbidden"
	ErrCodeInternal      = "internal_error"
	ErrCodeValidation    = "validation_error"
	ErrCodeRateLimited   = "rate_limited"
	ErrCodeUnavailable   = "unavailable"
	ErrCodeTimeout       = "timeout"
	ErrCodeUnknownUPS    = "unknown_ups"
	ErrCodeVarNotSupp    = "var_not_supported"
	ErrCodeCmdNotSupp    = "cmd_not_supported"
	ErrCodeReadOnly      = "readonly"
	ErrCodeNotConnected  = "driver_not_connected"
	ErrCodeDataStale     = "data_stale"
	ErrCodeInvalidValue  = "invalid_value"
	ErrCodeValueTooLong  = "too_long"
	ErrCodeNotRunning    = "not_running"
	ErrCodeHistoryAbsent = "history_disabled"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// upsErrors maps daemon sentinels to HTTP responses. Order matters only
// in that the first match wins.
var upsErrors = []struct {
	err    error
	status int
	code   string
}{
	{upsd.ErrUnknownDevice, http.StatusNotFound, ErrCodeUnknownUPS},
	{upsd.ErrVarNotSupported, http.StatusNotFound, ErrCodeVarNotSupp},
	{upsd.ErrCmdNotSupported, http.StatusNotFound, ErrCodeCmdNotSupp},
	{upsd.ErrReadOnly, http.StatusConflict, ErrCodeReadOnly},
	{upsd.ErrTooLong, http.StatusBadRequest, ErrCodeValueTooLong},
	{upsd.ErrInvalidValue, http.StatusBadRequest, ErrCodeInvalidValue},
	{upsd.ErrDriverNotConnected, http.StatusServiceUnavailable, ErrCodeNotConnected},
	{upsd.ErrDataStale, http.StatusServiceUnavailable, ErrCodeDataStale},
	{upsd.ErrNotRunning, http.StatusServiceUnavailable, ErrCodeNotRunning},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, ErrCodeTimeout},
}

// writeUPSError translates an error from the daemon. Unknown errors are
// logged and reported as 500 without detail.
func (s *Server) writeUPSError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range upsErrors {
		if errors.Is(err, m.err) {
			writeError(w, m.status, m.code, err.Error())
			return
		}
	}
	s.logger.Error("ups request failed",
		"error", err,
		"path", r.URL.Path,
		"request_id", r.Context().Value(ctxKeyRequestID),
	)
	writeInternalError(w, "internal server error")
}
