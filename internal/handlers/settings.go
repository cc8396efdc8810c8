package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"smartmailbox/internal/models"
	"smartmailbox/internal/storage"
)

// GetSettingsHandler handles settings retrieval requests
func GetSettingsHandler(store *storage.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, store.Settings.Get())
	}
}

// UpdateSettingsHandler replaces the inference settings. Changes apply
// to files submitted afterwards; already queued files keep the snapshot
// they were submitted with.
func UpdateSettingsHandler(store *storage.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var settings models.Settings
		if err := c.Bind(&settings); err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid settings payload"})
		}
		if settings.ServerURL == "" || settings.Model == "" {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "server_url and model are required"})
		}
		if settings.TimeoutSeconds <= 0 {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "timeout_seconds must be positive"})
		}

		if err := store.Settings.Update(settings); err != nil {
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusOK, settings)
	}
}
