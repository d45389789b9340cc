package web

import (
	"encoding/json"
	"net/http"

	"telnet_testserver/internal/shared/logger"
	"telnet_testserver/internal/shared/types"
)

// StatusProvider defines what the web handler needs from the AppServer.
// This decouples the web package from the app package.
type StatusProvider interface {
	Snapshot() *types.Snapshot
	GetListenerInfo() *types.ListenerInfo
}

type Handler struct {
	provider StatusProvider
	hub      *Hub
}

func NewHandler(provider StatusProvider, hub *Hub) *Handler {
	return &Handler{provider: provider, hub: hub}
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Listener       *types.ListenerInfo `json:"listener"`
	Stats          *types.Snapshot     `json:"stats"`
	MonitorClients int                 `json:"monitor_clients"`
}

// HandleStatus 处理 GET /api/status 请求
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := StatusResponse{
		Listener: h.provider.GetListenerInfo(),
		Stats:    h.provider.Snapshot(),
	}
	if h.hub != nil {
		resp.MonitorClients = h.hub.ClientCount()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Warn().Err(err).Msg("Failed to write status response")
	}
}
