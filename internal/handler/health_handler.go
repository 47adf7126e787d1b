package handler

import (
	"context"
	"net/http"
	"time"
)

// Pinger checks the connection to the store
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles service health and readiness checks
type HealthHandler struct {
	db            Pinger
	schedulerName string
	instanceID    string
	startTime     time.Time
	version       string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db Pinger, schedulerName, instanceID, version string) *HealthHandler {
	return &HealthHandler{
		db:            db,
		schedulerName: schedulerName,
		instanceID:    instanceID,
		startTime:     time.Now(),
		version:       version,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	SchedulerName string `json:"scheduler_name"`
	InstanceID    string `json:"instance_id"`
	Timestamp     string `json:"timestamp"`
	MongoDB       string `json:"mongodb"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// ReadyResponse represents the readiness check response
type ReadyResponse struct {
	Ready   bool   `json:"ready"`
	MongoDB string `json:"mongodb"`
}

// Health returns the service health status
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:        "healthy",
		Version:       h.version,
		SchedulerName: h.schedulerName,
		InstanceID:    h.instanceID,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		MongoDB:       h.mongoStatus(r.Context()),
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}

	writeJSON(w, http.StatusOK, response)
}

// Ready returns the service readiness status
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	status := h.mongoStatus(r.Context())
	ready := status == "connected"

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, ReadyResponse{
		Ready:   ready,
		MongoDB: status,
	})
}

func (h *HealthHandler) mongoStatus(ctx context.Context) string {
	if err := h.db.Ping(ctx); err != nil {
		return "disconnected"
	}
	return "connected"
}
