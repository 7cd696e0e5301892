package relay

import (
	"context"
	"fmt"
	"time"
)

// Pinger is implemented by backends that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthStatus struct {
	Healthy          bool     `json:"healthy"`
	BackendConnected bool     `json:"backend_connected"`
	Connections      int      `json:"connections"`
	ActiveRooms      int      `json:"active_rooms"`
	Errors           []string `json:"errors"`
}

type HealthChecker struct {
	backend any
	cm      *ConnectionManager
	timeout time.Duration
}

func NewHealthChecker(backend any, cm *ConnectionManager, timeout time.Duration) *HealthChecker {
	return &HealthChecker{backend: backend, cm: cm, timeout: timeout}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy:          true,
		BackendConnected: true,
		Errors:           []string{},
	}

	stats := h.cm.Stats()
	status.Connections = stats.TotalConnections
	status.ActiveRooms = stats.ActiveRooms

	if p, ok := h.backend.(Pinger); ok {
		pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
		defer cancel()
		if err := p.Ping(pingCtx); err != nil {
			status.BackendConnected = false
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("backend ping failed: %v", err))
		}
	}

	return status
}
