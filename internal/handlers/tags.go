package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"smartmailbox/internal/models"
	"smartmailbox/internal/storage"
)

// ListTagsHandler handles tag listing requests
func ListTagsHandler(store *storage.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, store.Tags.List())
	}
}

// CreateTagHandler creates a user tag. The name must be unique across
// system and user tags.
func CreateTagHandler(store *storage.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var tag models.Tag
		if err := c.Bind(&tag); err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid tag payload"})
		}
		if tag.Name == "" {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "tag name is required"})
		}

		created, err := store.Tags.Create(tag)
		if err != nil {
			if storage.KindOf(err) == storage.KindWriteConflict {
				return c.JSON(http.StatusConflict, models.ErrorResponse{Error: "tag name already exists"})
			}
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusCreated, created)
	}
}

// UpdateTagHandler updates a tag's mutable fields. System tags can be
// edited and deactivated but keep their system flag.
func UpdateTagHandler(store *storage.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var tag models.Tag
		if err := c.Bind(&tag); err != nil {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid tag payload"})
		}
		tag.ID = c.Param("id")

		updated, err := store.Tags.Update(tag)
		if err != nil {
			if storage.IsNotFound(err) {
				return c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "tag not found"})
			}
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusOK, updated)
	}
}

// DeleteTagHandler removes a user tag. System tags are protected.
func DeleteTagHandler(store *storage.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := store.Tags.Delete(c.Param("id"))
		if err == nil {
			return c.NoContent(http.StatusNoContent)
		}
		if storage.IsNotFound(err) {
			return c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "tag not found"})
		}
		if storage.KindOf(err) == storage.KindWriteConflict {
			return c.JSON(http.StatusForbidden, models.ErrorResponse{Error: "system tags cannot be deleted"})
		}
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
	}
}
