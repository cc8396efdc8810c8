package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"smartmailbox/internal/models"
	"smartmailbox/internal/storage"
)

// ProcessingLogHandler lists recent processing log entries, newest
// first. `limit` caps the result; the default is 100.
func ProcessingLogHandler(store *storage.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := 100
		if raw := c.QueryParam("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid limit"})
			}
			limit = n
		}
		return c.JSON(http.StatusOK, store.Logs.Recent(limit))
	}
}
