package controller

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cassiomorais/possync/internal/connectivity"
	"github.com/cassiomorais/possync/internal/syncengine"
)

// SyncController exposes the transaction sync engine and connectivity state.
type SyncController struct {
	engine  *syncengine.Engine
	monitor *connectivity.Monitor
}

// NewSyncController creates a new SyncController.
func NewSyncController(engine *syncengine.Engine, monitor *connectivity.Monitor) *SyncController {
	return &SyncController{engine: engine, monitor: monitor}
}

// State handles GET /api/v1/sync/state
func (h *SyncController) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Broadcaster().State())
}

// Trigger handles POST /api/v1/sync/trigger. The request returns immediately;
// the pass runs in the engine loop and coalesces with any pass already
// requested.
func (h *SyncController) Trigger(w http.ResponseWriter, r *http.Request) {
	h.engine.Nudge()
	writeJSON(w, http.StatusAccepted, h.engine.Broadcaster().State())
}

// Events handles GET /api/v1/sync/events as a server-sent event stream. The
// current state is delivered immediately, then every change until the client
// disconnects.
func (h *SyncController) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "streaming unsupported", Code: "internal_error",
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Buffered so a slow client drops intermediate states instead of
	// blocking the broadcaster.
	states := make(chan syncengine.SyncState, 16)
	unsubscribe := h.engine.Broadcaster().Subscribe(func(s syncengine.SyncState) {
		select {
		case states <- s:
		default:
		}
	})
	defer unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case s := <-states:
			data, err := json.Marshal(s)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// Connectivity handles GET /api/v1/connectivity
func (h *SyncController) Connectivity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ConnectivityResponse{Online: h.monitor.Online()})
}

// SetConnectivity handles POST /api/v1/connectivity. Forces the state until
// the next probe; used by the register UI's manual offline toggle.
func (h *SyncController) SetConnectivity(w http.ResponseWriter, r *http.Request) {
	var req SetConnectivityRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.monitor.SetOnline(*req.Online)
	writeJSON(w, http.StatusOK, ConnectivityResponse{Online: h.monitor.Online()})
}
