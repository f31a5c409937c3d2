// Package model defines the domain entities shared by the stores,
// services, and HTTP layer.
package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/RuslanFatikhov/Collections/internal/fields"
)

// User is an account holder. PasswordHash is a bcrypt digest and never
// leaves the process.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	IsAdmin      bool      `json:"is_admin"`
	IsBlocked    bool      `json:"is_blocked"`
	BlockedAt    time.Time `json:"blocked_at,omitzero"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PublicView strips account details down to what other users may see.
func (u *User) PublicView() map[string]any {
	return map[string]any{
		"id":         u.ID,
		"name":       u.Name,
		"avatar_url": u.AvatarURL,
	}
}

// Collection is a user-owned set of items with a custom field schema.
// UUID identifies the collection externally; PublicUUID is the share
// token, set once the owner publishes and stable across republish so
// shared links keep working.
type Collection struct {
	ID          int64         `json:"id"`
	UUID        uuid.UUID     `json:"uuid"`
	PublicUUID  uuid.UUID     `json:"public_uuid,omitzero"`
	OwnerID     int64         `json:"user_id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	CoverURL    string        `json:"cover_url,omitempty"`
	Fields      fields.Schema `json:"custom_fields"`
	IsPublic    bool          `json:"is_public"`
	IsBlocked   bool          `json:"is_blocked"`
	BlockedAt   time.Time     `json:"blocked_at,omitzero"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// PublicPath is the share URL path for a published collection, empty
// when the collection has never been published.
func (c *Collection) PublicPath() string {
	if c.PublicUUID == uuid.Nil {
		return ""
	}
	return "/public/" + c.PublicUUID.String()
}

// Item is one entry in a collection. Data holds the sanitized custom
// field values keyed by field name.
type Item struct {
	ID           int64          `json:"id"`
	CollectionID int64          `json:"collection_id"`
	Data         fields.Payload `json:"custom_data"`
	Images       []string       `json:"images,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
