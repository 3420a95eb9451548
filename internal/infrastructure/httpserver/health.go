// Package httpserver provides the HTTP surface of the worker service:
// health probes and Prometheus metrics.
package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lllypuk/sagaflow/internal/application/appcore"
)

// Health status constants - single source of truth for all health endpoints.
const (
	// StatusHealthy indicates the component is fully operational.
	StatusHealthy = "healthy"

	// StatusUnhealthy indicates the component is not operational.
	StatusUnhealthy = "unhealthy"

	// StatusReady indicates the service is ready to accept traffic.
	StatusReady = "ready"

	// StatusNotReady indicates the service is not ready to accept traffic.
	StatusNotReady = "not_ready"
)

// ComponentStatus represents the health status of a single component.
type ComponentStatus struct {
	Name    string         `json:"name"`
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// HealthResponse represents the response for health endpoints.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components []ComponentStatus `json:"components,omitempty"`
}

// HealthEndpoints aggregates component checkers and serves probe endpoints.
type HealthEndpoints struct {
	checkers []appcore.HealthChecker
}

// NewHealthEndpoints creates a new HealthEndpoints instance.
func NewHealthEndpoints(checkers ...appcore.HealthChecker) *HealthEndpoints {
	return &HealthEndpoints{
		checkers: checkers,
	}
}

// Register registers all health endpoints on the Echo instance.
// Endpoints registered:
//   - GET /health - Liveness probe (always returns 200 if app is running)
//   - GET /ready - Readiness probe (returns 200 if ready, 503 if not)
//   - GET /health/details - Detailed health status of all components
//   - GET /metrics - Prometheus metrics
func (h *HealthEndpoints) Register(e *echo.Echo) {
	e.GET("/health", h.handleHealth)
	e.GET("/ready", h.handleReady)
	e.GET("/health/details", h.handleHealthDetails)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// handleHealth handles the liveness probe endpoint.
// This endpoint always returns 200 OK if the application is running.
// Used by Kubernetes liveness probes.
func (h *HealthEndpoints) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status: StatusHealthy,
	})
}

// handleReady handles the readiness probe endpoint.
// Returns 200 OK if all components are healthy, 503 Service Unavailable otherwise.
// Used by Kubernetes readiness probes and load balancer health checks.
func (h *HealthEndpoints) handleReady(c echo.Context) error {
	ctx := c.Request().Context()

	components := h.checkComponents(ctx)
	if allHealthy(components) {
		return c.JSON(http.StatusOK, HealthResponse{
			Status: StatusReady,
		})
	}

	return c.JSON(http.StatusServiceUnavailable, HealthResponse{
		Status:     StatusNotReady,
		Components: components,
	})
}

// handleHealthDetails handles the detailed health status endpoint.
// Returns the status of each component with optional error messages.
func (h *HealthEndpoints) handleHealthDetails(c echo.Context) error {
	ctx := c.Request().Context()

	components := h.checkComponents(ctx)

	overallStatus := StatusHealthy
	statusCode := http.StatusOK
	if !allHealthy(components) {
		overallStatus = StatusUnhealthy
		statusCode = http.StatusServiceUnavailable
	}

	return c.JSON(statusCode, HealthResponse{
		Status:     overallStatus,
		Components: components,
	})
}

// checkComponents runs all registered checkers with the request context.
func (h *HealthEndpoints) checkComponents(ctx context.Context) []ComponentStatus {
	components := make([]ComponentStatus, 0, len(h.checkers))
	for _, checker := range h.checkers {
		status := checker.Check(ctx)

		componentStatus := StatusHealthy
		if !status.Healthy {
			componentStatus = StatusUnhealthy
		}

		components = append(components, ComponentStatus{
			Name:    checker.Name(),
			Status:  componentStatus,
			Message: status.Message,
			Details: status.Details,
		})
	}
	return components
}

// allHealthy returns true if every component reports a healthy status.
func allHealthy(components []ComponentStatus) bool {
	for _, comp := range components {
		if comp.Status != StatusHealthy {
			return false
		}
	}
	return true
}
