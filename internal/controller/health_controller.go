package controller

import (
	"net/http"
	"time"

	"github.com/cassiomorais/possync/internal/connectivity"
	"github.com/cassiomorais/possync/internal/storage/sqlite"
)

// HealthController reports agent health. "Healthy" means the local store is
// usable; the remote being unreachable is a normal operating condition here,
// so connectivity is reported but never fails the check.
type HealthController struct {
	store   *sqlite.Store
	monitor *connectivity.Monitor
}

// NewHealthController creates a new HealthController.
func NewHealthController(store *sqlite.Store, monitor *connectivity.Monitor) *HealthController {
	return &HealthController{store: store, monitor: monitor}
}

type healthResponse struct {
	Status string          `json:"status"`
	Checks map[string]bool `json:"checks"`
	Online bool            `json:"online"`
	Time   time.Time       `json:"time"`
}

// Health handles GET /health
func (h *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	storeOK := h.storeHealthy(r)

	resp := healthResponse{
		Status: "ok",
		Checks: map[string]bool{"store": storeOK},
		Online: h.monitor.Online(),
		Time:   time.Now(),
	}
	status := http.StatusOK
	if !storeOK {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// Liveness handles GET /health/live
func (h *HealthController) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Readiness handles GET /health/ready. Ready requires the local store only;
// a terminal must serve checkouts while the network is down.
func (h *HealthController) Readiness(w http.ResponseWriter, r *http.Request) {
	if !h.storeHealthy(r) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *HealthController) storeHealthy(r *http.Request) bool {
	db, err := h.store.DB(r.Context())
	if err != nil {
		return false
	}
	return db.PingContext(r.Context()) == nil
}
