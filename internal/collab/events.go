package collab

import "time"

// EventName identifies a server-to-client event.
type EventName string

const (
	EventCollaboratorJoined   EventName = "collaboratorJoined"
	EventCollaboratorLeft     EventName = "collaboratorLeft"
	EventCollaboratorsUpdated EventName = "collaboratorsUpdated"
	EventCollaboratorsUpdate  EventName = "document:collaborators:update"
	EventCodeUpdate           EventName = "codeUpdate"
)

// Event is one document-scoped broadcast.
type Event struct {
	Name    EventName
	Payload any
}

// Sender delivers events to one live connection. Send must not block.
type Sender interface {
	Send(evt Event) error
}

// Cursor is a caret position inside a document.
type Cursor struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Inbound payloads.

type JoinDocumentRequest struct {
	DocumentID string `json:"documentId" validate:"required,max=128"`
	UserID     string `json:"userId" validate:"required,max=128"`
}

type LeaveDocumentRequest struct {
	DocumentID string `json:"documentId" validate:"required,max=128"`
}

type CursorUpdateRequest struct {
	DocumentID string `json:"documentId" validate:"required,max=128"`
	UserID     string `json:"userId" validate:"required,max=128"`
	Line       *int   `json:"line" validate:"required,gte=0"`
	Column     *int   `json:"column" validate:"required,gte=0"`
}

// Position returns the cursor carried by the request.
func (r CursorUpdateRequest) Position() Cursor {
	var c Cursor
	if r.Line != nil {
		c.Line = *r.Line
	}
	if r.Column != nil {
		c.Column = *r.Column
	}
	return c
}

type CodeChangeRequest struct {
	DocumentID   string  `json:"documentId" validate:"required,max=128"`
	Code         *string `json:"code" validate:"required"`
	SourceUserID string  `json:"sourceUserId" validate:"required,max=128"`
}

// Outbound payloads.

type CollaboratorJoined struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

type CollaboratorLeft struct {
	UserID string `json:"userId"`
}

// Collaborator is one enriched presence entry.
type Collaborator struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Avatar   *string `json:"avatar"`
	Color    string  `json:"color"`
	Email    string  `json:"email,omitempty"`
	Role     Role    `json:"role"`
	IsOnline bool    `json:"isOnline"`
	Cursor   *Cursor `json:"cursor"`
}

// CollaboratorsUpdate is the structured presence snapshot of a document.
type CollaboratorsUpdate struct {
	Collaborators []Collaborator `json:"collaborators"`
	OwnerID       string         `json:"ownerId"`
}

type CodeUpdate struct {
	DocumentID   string    `json:"documentId"`
	Code         string    `json:"code"`
	SourceUserID string    `json:"sourceUserId"`
	Timestamp    time.Time `json:"timestamp"`
}
