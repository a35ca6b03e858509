package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// HealthResponse is the probe response body.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// LivenessHandler returns a handler for Kubernetes liveness probes.
// Liveness only fails when the process needs a restart.
func LivenessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "alive"
		statusCode := http.StatusOK

		if !checker.Liveness() {
			status = "not alive"
			statusCode = http.StatusServiceUnavailable
		}

		response := HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)

		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.Error("failed to encode liveness response", "error", err)
		}
	}
}

// ReadinessHandler returns a handler for Kubernetes readiness probes.
// Readiness reflects whether the pipeline is consuming and loading.
func ReadinessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "ready"
		statusCode := http.StatusOK

		if !checker.Readiness(r.Context()) {
			status = "not ready"
			statusCode = http.StatusServiceUnavailable
		}

		response := HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    checker.GetStatus(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)

		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.Error("failed to encode readiness response", "error", err)
		}
	}
}

// Ensure implementation satisfies interface.
var _ HealthChecker = (*PipelineHealth)(nil)

// PipelineHealth tracks the health of the consume-and-load pipeline.
// The consumer flag flips when the Kafka session is established or
// lost; load health degrades after consecutive failed loads.
type PipelineHealth struct {
	mu               sync.RWMutex
	consumerReady    bool
	consecutiveFails int
	lastLoadError    string

	// MaxConsecutiveFails is the load failure streak after which the
	// pipeline reports not ready.
	MaxConsecutiveFails int
}

// NewPipelineHealth creates a health tracker.
func NewPipelineHealth() *PipelineHealth {
	return &PipelineHealth{MaxConsecutiveFails: 3}
}

// SetConsumerReady records whether the Kafka session is up.
func (p *PipelineHealth) SetConsumerReady(ready bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consumerReady = ready
}

// RecordLoadSuccess resets the failure streak.
func (p *PipelineHealth) RecordLoadSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consecutiveFails = 0
	p.lastLoadError = ""
}

// RecordLoadFailure extends the failure streak.
func (p *PipelineHealth) RecordLoadFailure(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consecutiveFails++
	if err != nil {
		p.lastLoadError = err.Error()
	}
}

// Liveness reports whether the process is alive.
func (p *PipelineHealth) Liveness() bool {
	return true
}

// Readiness reports whether the pipeline can make progress.
func (p *PipelineHealth) Readiness(ctx context.Context) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.consumerReady && p.consecutiveFails < p.MaxConsecutiveFails
}

// GetStatus returns per-component health details.
func (p *PipelineHealth) GetStatus() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := map[string]string{
		"kafka": "down",
		"load":  "ok",
	}
	if p.consumerReady {
		status["kafka"] = "ok"
	}
	if p.consecutiveFails > 0 {
		status["load"] = p.lastLoadError
	}
	return status
}
