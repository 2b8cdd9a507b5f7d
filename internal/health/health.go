// Package health provides health and readiness endpoints. The only
// external dependency of the quote engine is the SMTP relay, so that is
// the one connectivity check.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// SMTPChecker verifies connectivity and credentials against the relay.
type SMTPChecker interface {
	TestConnection(ctx context.Context) error
}

// ServiceStatus is the status of one checked dependency.
type ServiceStatus struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Response is the health endpoint payload.
type Response struct {
	Status    string                   `json:"status"`
	Timestamp string                   `json:"timestamp"`
	Services  map[string]ServiceStatus `json:"services"`
	Version   string                   `json:"version,omitempty"`
}

// Handler serves /health, /health/ready, and /health/live.
type Handler struct {
	smtp    SMTPChecker
	version string
	timeout time.Duration

	mu    sync.RWMutex
	ready bool
}

// NewHandler creates a health handler. smtp may be nil when the relay
// check is disabled.
func NewHandler(smtp SMTPChecker, version string, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Handler{
		smtp:    smtp,
		version: version,
		timeout: timeout,
		ready:   true,
	}
}

// SetReady flips the readiness state, used during graceful shutdown.
func (h *Handler) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// IsReady returns the current readiness state.
func (h *Handler) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}

// Health reports overall status including the SMTP relay check. The relay
// being down degrades the service but the endpoint still answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	services := make(map[string]ServiceStatus)
	status := "healthy"

	if h.smtp != nil {
		smtpStatus := h.checkSMTP(ctx)
		services["smtp"] = smtpStatus
		if smtpStatus.Status != "up" {
			status = "degraded"
		}
	}

	resp := Response{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  services,
		Version:   h.version,
	}

	w.Header().Set("Content-Type", "application/json")
	if status == "healthy" {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(resp)
}

// Readiness answers readiness probes.
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	ready := h.IsReady()

	w.Header().Set("Content-Type", "application/json")
	if ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(map[string]any{
		"ready":     ready,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Liveness answers liveness probes.
func (h *Handler) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"alive":     true,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) checkSMTP(ctx context.Context) ServiceStatus {
	start := time.Now()
	err := h.smtp.TestConnection(ctx)
	latency := time.Since(start)

	if err != nil {
		// The error is not echoed verbatim; relay errors can carry
		// hostnames and auth detail.
		return ServiceStatus{
			Status:  "down",
			Latency: latency.String(),
			Error:   "smtp relay unreachable",
		}
	}
	return ServiceStatus{Status: "up", Latency: latency.String()}
}
