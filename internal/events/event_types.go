package events

import (
	"time"

	"github.com/spec-kit/modmail-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketOpened   EventType = "ticket_opened"
	EventTicketClaimed  EventType = "ticket_claimed"
	EventTicketClosed   EventType = "ticket_closed"
	EventStaffReplied   EventType = "staff_replied"
	EventRatingRecorded EventType = "rating_recorded"
)

// Event represents a modmail event emitted by the lifecycle core.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  string    `json:"ticket_id"`
	GuildID   string    `json:"guild_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketOpenedPayload payload.
type TicketOpenedPayload struct {
	NumericID string `json:"numeric_id"`
	UserID    string `json:"user_id"`
	UserTag   string `json:"user_tag"`
	Preview   string `json:"preview,omitempty"`
}

// TicketClaimedPayload payload.
type TicketClaimedPayload struct {
	NumericID string `json:"numeric_id"`
	StaffID   string `json:"staff_id"`
	UserID    string `json:"user_id"`
	Implicit  bool   `json:"implicit"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	NumericID   string `json:"numeric_id"`
	ClosedBy    string `json:"closed_by"`
	CloseReason string `json:"close_reason,omitempty"`
	UserID      string `json:"user_id"`
}

// StaffRepliedPayload payload.
type StaffRepliedPayload struct {
	NumericID string `json:"numeric_id"`
	StaffID   string `json:"staff_id"`
	UserID    string `json:"user_id"`
	Preview   string `json:"preview,omitempty"`
}

// RatingRecordedPayload payload.
type RatingRecordedPayload struct {
	NumericID string `json:"numeric_id"`
	UserID    string `json:"user_id"`
	StaffID   string `json:"staff_id,omitempty"`
	Rating    int    `json:"rating"`
}

// PriorityColor maps a ticket priority to the embed color used by
// notification consumers.
func PriorityColor(priority domain.TicketPriority) int {
	switch priority {
	case domain.TicketPriorityLow:
		return 0x00ff00
	case domain.TicketPriorityMedium:
		return 0xffff00
	case domain.TicketPriorityHigh:
		return 0xff9900
	case domain.TicketPriorityUrgent:
		return 0xff0000
	}
	return 0x0099ff
}
