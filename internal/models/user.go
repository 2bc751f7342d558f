package models

import (
	"time"
)

/** --------------------ENTITIES-------------------- */
// User is the account record the collaboration service reads display data from.
// Accounts are owned by the account service; this service never writes them.
type User struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Email     string    `gorm:"uniqueIndex;type:varchar(255)" json:"email"`
	Avatar    string    `json:"avatar,omitempty"` // Optional profile picture URL
	Color     string    `gorm:"type:varchar(16)" json:"color,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
