package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"collab-service/internal/collab"
)

// ServeWS upgrades an already authenticated request and starts the client.
func (h *Hub) ServeWS(upgrader *websocket.Upgrader, w http.ResponseWriter, r *http.Request, identity collab.Identity) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade WebSocket connection", "userID", identity.UserID, "error", err)
		return
	}

	client := NewClient(h, conn, identity, h.cfg)
	if !h.registerClient(client) {
		slog.Warn("Hub stopped, rejecting connection", "userID", identity.UserID)
		client.closeWithReason(websocket.CloseGoingAway, "server shutting down")
		return
	}
	h.service.Connect(r.Context(), client.id, identity, client)

	slog.Info("New WebSocket connection established", "clientID", client.id, "userID", identity.UserID)

	if err := client.SendMessage(NewConnectedMessage(client.id, identity.UserID)); err != nil {
		slog.Debug("Failed to send connected message", "clientID", client.id, "error", err)
	}

	client.wg.Add(2)
	go client.writePump()
	go client.readPump()
}

// handleClientMessage dispatches one inbound frame. It returns false when the
// connection must be closed.
func (h *Hub) handleClientMessage(ctx context.Context, c *Client, raw []byte) bool {
	msg, payload, err := DecodeMessage(raw)
	if err != nil {
		msgType := MessageType("")
		if msg != nil {
			msgType = msg.Type
		}
		slog.Warn("Invalid message", "clientID", c.id, "userID", c.identity.UserID, "type", msgType, "error", err)
		c.sendError(ErrCodeInvalidMessage, err.Error())
		return true
	}

	slog.Debug("Received message", "clientID", c.id, "userID", c.identity.UserID, "type", msg.Type)

	switch p := payload.(type) {
	case *collab.JoinDocumentRequest:
		err = h.service.JoinDocument(ctx, c.id, *p)
		if errors.Is(err, collab.ErrAccessDenied) {
			c.sendError(ErrCodeAccessDenied, "access denied")
			c.closeAfterFlush(websocket.ClosePolicyViolation, "access denied")
			return false
		}
	case *collab.LeaveDocumentRequest:
		err = h.service.LeaveDocument(ctx, c.id, *p)
	case *collab.CursorUpdateRequest:
		err = h.service.UpdateCursor(ctx, c.id, *p)
	case *collab.CodeChangeRequest:
		err = h.service.ChangeCode(ctx, c.id, *p)
	}

	switch {
	case err == nil,
		errors.Is(err, collab.ErrStaleUpdate),
		errors.Is(err, collab.ErrPermissionDenied):
		// dropped silently; the service has logged it
	case errors.Is(err, collab.ErrUnknownConnection):
		slog.Warn("Message from unregistered connection", "clientID", c.id, "userID", c.identity.UserID, "type", msg.Type)
		return false
	default:
		slog.Error("Failed to handle message", "clientID", c.id, "userID", c.identity.UserID, "type", msg.Type, "error", err)
	}
	return true
}
