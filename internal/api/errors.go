package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/visionqa/vqa/internal/kvstore"
	"github.com/visionqa/vqa/internal/session"
	"github.com/visionqa/vqa/internal/stage"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// classify maps an orchestrator error to a status code and error type.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrValidation):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, session.ErrPrecondition):
		return http.StatusConflict, "precondition_error"
	case errors.Is(err, session.ErrSuperseded):
		return http.StatusConflict, "superseded_error"
	case errors.Is(err, kvstore.ErrQuotaExceeded):
		return http.StatusInsufficientStorage, "storage_quota_error"
	case errors.Is(err, stage.ErrMalformedResponse):
		return http.StatusBadGateway, "malformed_response_error"
	case errors.Is(err, stage.ErrTransport):
		return http.StatusBadGateway, "upstream_error"
	}
	return http.StatusInternalServerError, "api_error"
}

func writeErr(w http.ResponseWriter, err error) {
	code, typ := classify(err)
	httpError(w, code, typ, "%v", err)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
