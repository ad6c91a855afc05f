package domain

import "time"

// Tag is a named label scoped to a guild. Tags are referenced from tickets
// by name, not by id, so renames require a migration and are not supported.
type Tag struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Color       string    `json:"color,omitempty"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
}
