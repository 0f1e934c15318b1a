package handler

import (
	"encoding/json"
	"net/http"

	"auth-session/backend/internal/health"
)

type healthResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Data    health.Report `json:"data"`
}

// HTTP answers GET /health with 200 when healthy and 503 otherwise.
func HTTP(checker Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := checker.Check(r.Context())
		resp := healthResponse{Success: true, Message: "Service is healthy", Data: report}
		status := http.StatusOK
		if !report.Healthy() {
			resp.Success = false
			resp.Message = "Service is unhealthy"
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
