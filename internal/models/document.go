package models

import (
	"time"
)

// Collaborator role constants, as persisted
const (
	RoleOwner  = "owner"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// Document is a shared code buffer and its access settings
type Document struct {
	ID             string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name           string    `gorm:"not null;default:'Untitled Document'" json:"name"`
	Code           string    `gorm:"type:text" json:"code"`
	Language       string    `gorm:"type:varchar(32);default:'typescript'" json:"language"`
	OwnerID        string    `gorm:"not null;index;type:varchar(64)" json:"ownerId"`
	IsPublic       bool      `gorm:"not null;default:false" json:"isPublic"`
	LastModified   time.Time `json:"lastModified"`
	LastModifiedBy string    `gorm:"type:varchar(64)" json:"lastModifiedBy,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`

	Collaborators []Collaborator `gorm:"foreignKey:DocumentID" json:"collaborators"`
}

// Collaborator grants one user a role on one document
type Collaborator struct {
	DocumentID string    `gorm:"primaryKey;type:varchar(64)" json:"documentId"`
	UserID     string    `gorm:"primaryKey;type:varchar(64)" json:"userId"`
	Role       string    `gorm:"not null;type:varchar(20);check:role IN ('owner', 'editor', 'viewer')" json:"role"`
	JoinedAt   time.Time `gorm:"autoCreateTime" json:"joinedAt"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

/** -------------------- DTOs -------------------- */

// RosterChangedResponse acknowledges an internal roster change signal
type RosterChangedResponse struct {
	DocumentID string `json:"documentId"`
	Recomputed bool   `json:"recomputed"`
}
