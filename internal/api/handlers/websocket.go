package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"

	"collab-service/internal/api/middleware"
	"collab-service/internal/models"
	"collab-service/internal/websocket"
)

type WSHandler struct {
	hub      *websocket.Hub
	upgrader *gorillaws.Upgrader
}

func NewWSHandler(hub *websocket.Hub, upgrader *gorillaws.Upgrader) *WSHandler {
	return &WSHandler{hub: hub, upgrader: upgrader}
}

// HandleWebSocket godoc
// @Summary WebSocket connection
// @Description Establish a WebSocket connection for realtime document collaboration. The token is read from the Authorization header or the token query parameter.
// @Tags websocket
// @Param token query string false "JWT for clients that cannot set headers"
// @Success 101 "Switching Protocols - WebSocket connection established"
// @Failure 401 {object} models.ErrorResponse "Missing or invalid token"
// @Failure 429 {object} models.ErrorResponse "Too many connection attempts"
// @Security BearerAuth
// @Router /ws [get]
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Code: http.StatusUnauthorized, Message: "unauthorized"})
		return
	}
	h.hub.ServeWS(h.upgrader, c.Writer, c.Request, identity)
}
