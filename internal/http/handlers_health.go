package httpx

import (
	"net/http"
)

// activeCounter reports how many evaluations are currently running.
type activeCounter interface {
	ActiveCount() int
}

type healthResponse struct {
	Status            string `json:"status"`
	ActiveEvaluations *int   `json:"activeEvaluations,omitempty"`
}

// healthHandler returns a simple 200 OK status for readiness/liveness checks.
func healthHandler(active activeCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			return
		}
		resp := healthResponse{Status: "ok"}
		if active != nil {
			n := active.ActiveCount()
			resp.ActiveEvaluations = &n
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}
