package module

import "context"

// HealthStatus represents the health state of a module.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusDegraded  HealthStatus = "degraded"
)

// Health holds health information for a module.
type Health struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// Module is a lifecycle-managed part of a client.
type Module interface {
	// Name returns the unique name of the module.
	Name() string
	// Start starts background work. It must not block past setup.
	Start(ctx context.Context) error
	// Stop shuts the module down and releases its resources.
	Stop(ctx context.Context) error
	// Health returns the current health of the module.
	Health(ctx context.Context) Health
}
