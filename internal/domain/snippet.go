package domain

import "time"

// Snippet is a canned staff response scoped to a guild, addressed by name.
type Snippet struct {
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
