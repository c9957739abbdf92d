package api

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// Check probes one optional dependency.
type Check func(ctx context.Context) error

type HealthHandler struct {
	env     string
	version string
	checks  map[string]Check
}

func NewHealthHandler(env, version string) *HealthHandler {
	return &HealthHandler{
		env:     env,
		version: version,
		checks:  make(map[string]Check),
	}
}

// WithCheck registers a dependency probe for readiness. The engine itself is
// in-memory and always ready; journal backends are the only dependencies.
func (h *HealthHandler) WithCheck(name string, c Check) *HealthHandler {
	h.checks[name] = c
	return h
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	resp := LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	}
	writeJSON(w, http.StatusOK, resp)
}

// Readiness reports "degraded" when a journal backend is down. Allocation
// keeps working without the journal, so the status code stays 200.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	deps := map[string]string{"engine": "ok"}
	status := "ok"

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		checkCtx, checkCancel := context.WithTimeout(ctx, time.Second)
		err := h.checks[name](checkCtx)
		checkCancel()
		if err != nil {
			deps[name] = "down"
			status = "degraded"
		} else {
			deps[name] = "ok"
		}
	}

	writeJSON(w, http.StatusOK, ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: deps,
	})
}
