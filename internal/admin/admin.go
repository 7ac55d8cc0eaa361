// Package admin is the AdminEndpoint: reports aggregate status over
// the registry and the supervisor's rolling-update state.
package admin

import (
	"encoding/json"
	"net/http"

	"podctl/internal/podtypes"
	"podctl/internal/registry"
)

// RollingUpdateQuerier is satisfied by *supervisor.Supervisor.
type RollingUpdateQuerier interface {
	RollingUpdateNames() []string
}

// Handler serves GET /health.
type Handler struct {
	registry *registry.Registry
	updates  RollingUpdateQuerier
}

// New creates a Handler over reg, reporting rolling-update activity
// from updates.
func New(reg *registry.Registry, updates RollingUpdateQuerier) *Handler {
	return &Handler{registry: reg, updates: updates}
}

// statusResponse is the /health payload.
type statusResponse struct {
	Status         string                       `json:"status"`
	Pods           map[string][]podtypes.PodInfo `json:"pods"`
	RollingUpdates []string                      `json:"rollingUpdates,omitempty"`
}

// ServeHTTP writes the aggregate status payload: overall status, the
// pod table grouped by deployment, and the names of any deployments
// currently mid-rollout.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	pods := h.registry.AllPodsInfo()
	updating := h.updates.RollingUpdateNames()

	status := "healthy"
	if len(h.registry.HealthyPods()) == 0 {
		status = "degraded"
	} else if len(updating) > 0 {
		status = "updating"
	}

	resp := statusResponse{Status: status, Pods: pods}
	if len(updating) > 0 {
		resp.RollingUpdates = updating
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}
