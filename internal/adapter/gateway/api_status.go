package gateway

import (
	"net/http"
	"time"

	"techassist/internal/domain"
)

// Health states.
const (
	HealthOK          = "ok"
	HealthDegraded    = "degraded"
	HealthUnavailable = "unavailable"
)

// HealthResponse is the JSON body returned by GET /api/v1/health.
type HealthResponse struct {
	Status        string         `json:"status"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Agents        map[string]int `json:"agents,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// healthHandler reports agent availability. The service is degraded when
// the documentation type, the last-resort fallback, has no agent.
func healthHandler(svc Service, startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:        HealthOK,
			Version:       version,
			UptimeSeconds: int64(time.Since(startTime).Seconds()),
		}
		counts, err := svc.AgentCounts(r.Context())
		if err != nil {
			resp.Status = HealthUnavailable
			resp.Error = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp.Agents = countsByName(counts)
		if counts[domain.AgentDocumentation] == 0 {
			resp.Status = HealthDegraded
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
