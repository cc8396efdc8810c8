package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"smartmailbox/internal/models"
	"smartmailbox/internal/storage"
)

// ListMessagesHandler handles message queries. `q` does a case-insensitive
// substring search over subject, sender and body; `tag`, `since` and
// `until` (RFC 3339) narrow the result. Results are newest received
// first.
func ListMessagesHandler(store *storage.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		if q := c.QueryParam("q"); q != "" {
			msgs := store.Messages.Search(q)
			return c.JSON(http.StatusOK, models.MessageListResponse{Messages: msgs, Total: len(msgs)})
		}

		var filter storage.Filter
		filter.TagID = c.QueryParam("tag")
		if since := c.QueryParam("since"); since != "" {
			t, err := time.Parse(time.RFC3339, since)
			if err != nil {
				return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid since timestamp"})
			}
			filter.Since = t
		}
		if until := c.QueryParam("until"); until != "" {
			t, err := time.Parse(time.RFC3339, until)
			if err != nil {
				return c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid until timestamp"})
			}
			filter.Until = t
		}

		msgs := store.Messages.List(filter)
		return c.JSON(http.StatusOK, models.MessageListResponse{Messages: msgs, Total: len(msgs)})
	}
}

// GetMessageHandler handles single message lookups
func GetMessageHandler(store *storage.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		msg, err := store.Messages.Get(c.Param("id"))
		if err != nil {
			if storage.IsNotFound(err) {
				return c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "message not found"})
			}
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusOK, msg)
	}
}

// MessageRepliesHandler lists the reply drafts linked to a message,
// newest first.
func MessageRepliesHandler(store *storage.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		if _, err := store.Messages.Get(id); err != nil {
			if storage.IsNotFound(err) {
				return c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "message not found"})
			}
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusOK, store.Replies.ForMessage(id))
	}
}

// DeleteMessageHandler removes a message together with its reply drafts
// and its retained file copy.
func DeleteMessageHandler(store *storage.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		if err := store.Messages.Delete(id); err != nil {
			if storage.IsNotFound(err) {
				return c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "message not found"})
			}
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		}
		if err := store.Replies.DeleteForMessage(id); err != nil {
			return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		}
		return c.NoContent(http.StatusNoContent)
	}
}
