package api

import (
	"encoding/json"
	"net/http"

	"augur/internal/plugins"
	sentimentsvc "augur/internal/services/sentiment"
)

// StatusProvider exposes the service state the status endpoint reports
type StatusProvider interface {
	Status() sentimentsvc.ServiceStatus
	AllPluginStatuses() []plugins.Status
}

type statusResponse struct {
	Service sentimentsvc.ServiceStatus `json:"service"`
	Plugins []plugins.Status           `json:"plugins"`
}

// StatusHandler serves the service and per-plugin status snapshot
type StatusHandler struct {
	provider StatusProvider
}

// NewStatusHandler creates the status endpoint handler
func NewStatusHandler(provider StatusProvider) *StatusHandler {
	return &StatusHandler{provider: provider}
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Service: h.provider.Status(),
		Plugins: h.provider.AllPluginStatuses(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
