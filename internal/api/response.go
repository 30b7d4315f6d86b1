package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/orbitdesk/ackrelay/internal/models"
)

// writeJSONResponse writes an APIResponse envelope with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, resp models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("writeJSONResponse: failed to encode response", "error", err)
	}
}
