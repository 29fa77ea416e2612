package controller

import (
	"net/http"

	"github.com/sony/gobreaker/v2"
)

// BreakerStates reports circuit breaker state per provider.
type BreakerStates interface {
	BreakerState(name string) (gobreaker.State, bool)
}

type HealthController struct {
	breakers BreakerStates
	provider string
}

func NewHealthController(breakers BreakerStates, provider string) *HealthController {
	return &HealthController{breakers: breakers, provider: provider}
}

func (h *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "provider": h.provider})
}

func (h *HealthController) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Readiness fails while the active provider's circuit is open. It never calls the processor.
func (h *HealthController) Readiness(w http.ResponseWriter, r *http.Request) {
	state, ok := h.breakers.BreakerState(h.provider)
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "payment provider not registered",
		})
		return
	}

	if state == gobreaker.StateOpen {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "payment gateway circuit open",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "circuit": state.String()})
}
