package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"amr-predictor/pkg/logging/logging"
)

func errorBody(code string) map[string]string {
	return map[string]string{"error": code}
}

// decodeJSON reads the request body into v, answering 413 or 400 itself
// when that fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("request_too_large"))
			return false
		}
		logging.L(r.Context()).Warn("invalid request", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_json"))
		return false
	}
	return true
}

// writeJSON is a small helper to send JSON responses consistently.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
