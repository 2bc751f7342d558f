package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"collab-service/internal/collab"
)

// MessageType is the "type" field of the socket envelope
type MessageType string

// Client to server
const (
	MessageTypeJoinDocument  MessageType = "joinDocument"
	MessageTypeLeaveDocument MessageType = "leaveDocument"
	MessageTypeCursorUpdate  MessageType = "cursorUpdate"
	MessageTypeCodeChange    MessageType = "codeChange"
)

// Server to client
const (
	MessageTypeConnected MessageType = "connected"
	MessageTypeError     MessageType = "error"
)

// Error codes sent in error messages
const (
	ErrCodeInvalidMessage = "INVALID_MESSAGE"
	ErrCodeAccessDenied   = "ACCESS_DENIED"
)

func (mt MessageType) String() string {
	return string(mt)
}

// IsInbound reports whether clients may send this type.
func (mt MessageType) IsInbound() bool {
	switch mt {
	case MessageTypeJoinDocument, MessageTypeLeaveDocument, MessageTypeCursorUpdate, MessageTypeCodeChange:
		return true
	default:
		return false
	}
}

// Message is the envelope of every frame in both directions
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ConnectedData struct {
	ClientID string `json:"clientId"`
	UserID   string `json:"userId"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewMessage wraps data in an envelope with a fresh id.
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s data: %w", msgType, err)
	}
	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Data:      raw,
		Timestamp: time.Now().Unix(),
	}, nil
}

// NewEventMessage converts a core broadcast into an envelope
func NewEventMessage(evt collab.Event) (*Message, error) {
	return NewMessage(MessageType(evt.Name), evt.Payload)
}

func NewErrorMessage(code, message string) *Message {
	msg, _ := NewMessage(MessageTypeError, ErrorData{Code: code, Message: message})
	return msg
}

func NewConnectedMessage(clientID, userID string) *Message {
	msg, _ := NewMessage(MessageTypeConnected, ConnectedData{ClientID: clientID, UserID: userID})
	return msg
}

// DecodeMessage parses an inbound frame and returns its typed, validated
// payload: one of the collab request types. Every failure wraps
// collab.ErrInvalidPayload.
func DecodeMessage(raw []byte) (*Message, interface{}, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", collab.ErrInvalidPayload, err)
	}
	if !msg.Type.IsInbound() {
		return &msg, nil, fmt.Errorf("%w: unknown message type %q", collab.ErrInvalidPayload, msg.Type)
	}
	if len(msg.Data) == 0 || string(msg.Data) == "null" {
		return &msg, nil, fmt.Errorf("%w: %s requires data", collab.ErrInvalidPayload, msg.Type)
	}

	var payload interface{}
	switch msg.Type {
	case MessageTypeJoinDocument:
		payload = &collab.JoinDocumentRequest{}
	case MessageTypeLeaveDocument:
		payload = &collab.LeaveDocumentRequest{}
	case MessageTypeCursorUpdate:
		payload = &collab.CursorUpdateRequest{}
	case MessageTypeCodeChange:
		payload = &collab.CodeChangeRequest{}
	}

	if err := json.Unmarshal(msg.Data, payload); err != nil {
		return &msg, nil, fmt.Errorf("%w: %s data: %v", collab.ErrInvalidPayload, msg.Type, err)
	}
	if err := validate.Struct(payload); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &msg, nil, fmt.Errorf("%w: %s field %s failed %s", collab.ErrInvalidPayload, msg.Type, verrs[0].Field(), verrs[0].Tag())
		}
		return &msg, nil, fmt.Errorf("%w: %v", collab.ErrInvalidPayload, err)
	}
	return &msg, payload, nil
}
