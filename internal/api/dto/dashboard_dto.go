package dto

import (
	"time"

	"github.com/spec-kit/modmail-service/internal/domain"
)

// TokenRequest payload for dashboard login.
type TokenRequest struct {
	StaffID string `json:"staff_id"`
	Secret  string `json:"secret"`
}

// TokenResponse carries the issued bearer token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HistorySummary is the list form of an archived ticket.
type HistorySummary struct {
	ID                 string                `json:"id"`
	NumericID          string                `json:"numeric_id"`
	UserTag            string                `json:"user_tag"`
	Category           string                `json:"category,omitempty"`
	Priority           domain.TicketPriority `json:"priority,omitempty"`
	Tags               []string              `json:"tags,omitempty"`
	AssignedToTag      string                `json:"assigned_to_tag,omitempty"`
	CreatedAt          time.Time             `json:"created_at"`
	ClosedAt           time.Time             `json:"closed_at"`
	CloseReason        string                `json:"close_reason,omitempty"`
	MessageCount       int                   `json:"message_count"`
	SatisfactionRating int                   `json:"satisfaction_rating,omitempty"`
}

// HistorySearchResponse wraps search results.
type HistorySearchResponse struct {
	Total   int              `json:"total"`
	Results []HistorySummary `json:"results"`
}

// NewHistorySummary converts an archived record to its list form.
func NewHistorySummary(record *domain.HistoryRecord) HistorySummary {
	return HistorySummary{
		ID:                 record.ID,
		NumericID:          record.NumericID,
		UserTag:            record.UserTag,
		Category:           record.Category,
		Priority:           record.Priority,
		Tags:               record.Tags,
		AssignedToTag:      record.AssignedToTag,
		CreatedAt:          record.CreatedAt,
		ClosedAt:           record.ClosedAt,
		CloseReason:        record.CloseReason,
		MessageCount:       record.MessageCount,
		SatisfactionRating: record.SatisfactionRating,
	}
}
