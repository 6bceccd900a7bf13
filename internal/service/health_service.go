package service

import (
	"context"
	"database/sql"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Health status constants
const (
	StatusHealthy      = "healthy"
	StatusDegraded     = "degraded"
	StatusUnhealthy    = "unhealthy"
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

// HealthStatus represents the overall health status of the application
type HealthStatus struct {
	Status    string            `json:"status"`
	Services  map[string]string `json:"services"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version,omitempty"`
}

// HealthChecker pings the three databases and the queue. The admin DB is
// the system of record; the other two are read-only recipient sources.
type HealthChecker struct {
	adminDB    *sql.DB
	coreDB     *sql.DB
	workflowDB *sql.DB
	queueURL   string
	version    string
}

// NewHealthService creates a new HealthChecker instance
func NewHealthService(adminDB, coreDB, workflowDB *sql.DB, queueURL, version string) *HealthChecker {
	return &HealthChecker{
		adminDB:    adminDB,
		coreDB:     coreDB,
		workflowDB: workflowDB,
		queueURL:   queueURL,
		version:    version,
	}
}

func (h *HealthChecker) checkDatabase(db *sql.DB) string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return StatusDisconnected
	}
	return StatusConnected
}

func (h *HealthChecker) checkQueue() string {
	conn, err := amqp.Dial(h.queueURL)
	if err != nil {
		return StatusDisconnected
	}
	defer conn.Close()

	return StatusConnected
}

// determineOverallStatus maps per-service states to the overall health.
// Losing the admin DB means nothing works. Losing a recipient source or the
// queue degrades: campaigns are still readable and editable.
func (h *HealthChecker) determineOverallStatus(services map[string]string) string {
	if services["admin_database"] == StatusDisconnected {
		return StatusUnhealthy
	}

	for _, status := range services {
		if status == StatusDisconnected {
			return StatusDegraded
		}
	}

	return StatusHealthy
}

// CheckHealth performs health checks on all dependencies and returns the overall status
func (h *HealthChecker) CheckHealth() (*HealthStatus, error) {
	services := map[string]string{
		"admin_database":    h.checkDatabase(h.adminDB),
		"core_database":     h.checkDatabase(h.coreDB),
		"workflow_database": h.checkDatabase(h.workflowDB),
		"queue":             h.checkQueue(),
	}

	return &HealthStatus{
		Status:    h.determineOverallStatus(services),
		Services:  services,
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	}, nil
}
