package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"smartmailbox/internal/models"
	"smartmailbox/internal/storage"
)

// BackendProber is the slice of the inference client the health
// endpoints need.
type BackendProber interface {
	ListModels(ctx context.Context) ([]string, error)
}

// ProberFactory builds a prober for the server named in the current
// settings, so a settings change is picked up without a restart.
type ProberFactory func(serverURL string, timeout time.Duration) BackendProber

// HealthHandler handles basic health check requests
func HealthHandler(version string) echo.HandlerFunc {
	return func(c echo.Context) error {
		response := models.HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
			Version:   version,
		}

		return c.JSON(http.StatusOK, response)
	}
}

// BackendHealthHandler reports whether the inference backend is
// reachable and which models it serves.
func BackendHealthHandler(settings *storage.SettingsStore, factory ProberFactory) echo.HandlerFunc {
	return func(c echo.Context) error {
		response := models.BackendHealthResponse{
			Status:    "unknown",
			Timestamp: time.Now().UTC(),
		}

		current := settings.Get()
		prober := factory(current.ServerURL, 5*time.Second)

		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		start := time.Now()
		names, err := prober.ListModels(ctx)
		response.Latency = time.Since(start)

		if err != nil {
			response.Status = "unhealthy"
			response.Error = err.Error()
			return c.JSON(http.StatusServiceUnavailable, response)
		}

		response.Status = "healthy"
		response.Connected = true
		response.Models = names
		return c.JSON(http.StatusOK, response)
	}
}
