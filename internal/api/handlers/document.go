package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"collab-service/internal/api/middleware"
	"collab-service/internal/collab"
	"collab-service/internal/models"
)

// PresenceReader is implemented by *collab.Service.
type PresenceReader interface {
	Presence(ctx context.Context, userID, documentID string) (*collab.CollaboratorsUpdate, error)
}

// RosterNotifier refreshes presence of one document in this process.
type RosterNotifier interface {
	RosterChanged(ctx context.Context, documentID string)
}

// RosterPublisher fans a roster change out to every instance.
type RosterPublisher interface {
	PublishRosterChanged(ctx context.Context, documentID string) error
}

type DocumentHandler struct {
	presence  PresenceReader
	local     RosterNotifier
	publisher RosterPublisher
}

// NewDocumentHandler creates the handler. publisher may be nil, in which case
// roster changes only reach this process.
func NewDocumentHandler(presence PresenceReader, local RosterNotifier, publisher RosterPublisher) *DocumentHandler {
	return &DocumentHandler{presence: presence, local: local, publisher: publisher}
}

// GetPresence godoc
// @Summary Get document presence
// @Description List the collaborators currently connected to a document
// @Tags documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} collab.CollaboratorsUpdate
// @Failure 401 {object} models.ErrorResponse "Missing or invalid token"
// @Failure 403 {object} models.ErrorResponse "Caller has no access to the document"
// @Security BearerAuth
// @Router /documents/{id}/presence [get]
func (h *DocumentHandler) GetPresence(c *gin.Context) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Code: http.StatusUnauthorized, Message: "unauthorized"})
		return
	}

	update, err := h.presence.Presence(c.Request.Context(), identity.UserID, c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, update)
	case errors.Is(err, collab.ErrAccessDenied):
		c.JSON(http.StatusForbidden, models.ErrorResponse{Code: http.StatusForbidden, Message: "access denied"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Code: http.StatusInternalServerError, Message: "failed to load presence"})
	}
}

// RosterChanged godoc
// @Summary Signal a roster change
// @Description Called by the document service after collaborators, roles or ownership of a document change
// @Tags internal
// @Produce json
// @Param id path string true "Document ID"
// @Param X-Internal-Key header string true "Internal API key"
// @Success 202 {object} models.RosterChangedResponse
// @Failure 401 {object} models.ErrorResponse "Invalid internal key"
// @Router /internal/v1/documents/{id}/roster-changed [post]
func (h *DocumentHandler) RosterChanged(c *gin.Context) {
	documentID := c.Param("id")

	if h.publisher != nil {
		err := h.publisher.PublishRosterChanged(c.Request.Context(), documentID)
		if err == nil {
			c.JSON(http.StatusAccepted, models.RosterChangedResponse{DocumentID: documentID})
			return
		}
		slog.Warn("Failed to publish roster change, refreshing locally", "documentID", documentID, "error", err)
	}

	h.local.RosterChanged(c.Request.Context(), documentID)
	c.JSON(http.StatusAccepted, models.RosterChangedResponse{DocumentID: documentID, Recomputed: true})
}
