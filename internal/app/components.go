package app

import (
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/coordinator"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/status"
	"github.com/yagnadeepxo/avici-internal-dashboard/internal/store"
)

// Components groups the parts of a running service
type Components struct {
	// Coordinator schedules the service's job
	Coordinator coordinator.Coordinator

	// Store backs the job and the readiness check
	Store store.Store

	// StatusPersistence records run status for the /status endpoint
	StatusPersistence status.StatusPersistence
}
