package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"smartmailbox/internal/models"
	"smartmailbox/internal/pipeline"
)

// IngestHandler submits message files to the processing pipeline.
// Accepted files are queued in order; paths that do not exist or do not
// look like message files are reported back as rejected.
func IngestHandler(p *pipeline.Pipeline) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req models.IngestRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid ingest payload"})
		}
		if len(req.Paths) == 0 {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "paths is required"})
		}

		accepted, rejected, err := p.Submit(req.Paths)
		if err != nil {
			if errors.Is(err, pipeline.ErrQueueFull) {
				return c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "processing queue is full, retry later"})
			}
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusAccepted, struct {
			models.IngestResponse
			Files []models.FileStatus `json:"files"`
		}{
			IngestResponse: models.IngestResponse{Accepted: len(accepted), Rejected: rejected},
			Files:          accepted,
		})
	}
}

// IngestStatusHandler lists every tracked submission in queue order.
func IngestStatusHandler(p *pipeline.Pipeline) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, p.Statuses())
	}
}

// IngestFileStatusHandler returns the state of one submission.
func IngestFileStatusHandler(p *pipeline.Pipeline) echo.HandlerFunc {
	return func(c echo.Context) error {
		st, ok := p.Status(c.Param("id"))
		if !ok {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "submission not found"})
		}
		return c.JSON(http.StatusOK, st)
	}
}
