package api

import "net/http"

type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

func (a *API) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{
			Status:   "ok",
			Database: a.health(),
		}
		if response.Database != "connected" {
			response.Status = "degraded"
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		returnJson(&response, w)
	}
}
