package domain

import (
	"fmt"
	"time"
)

// TicketStatus enumerates lifecycle states for modmail tickets. Transitions
// are monotonic: pending -> in_progress -> closed.
type TicketStatus string

const (
	TicketStatusPending    TicketStatus = "pending"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusClosed     TicketStatus = "closed"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusPending, TicketStatusInProgress, TicketStatusClosed:
		return true
	}
	return false
}

// TicketPriority enumerates urgency levels.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// Valid reports whether the priority is a known level.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// TicketEventType captures what changed in a ticket audit entry.
type TicketEventType string

const (
	EventTagAdded        TicketEventType = "tag_added"
	EventTagRemoved      TicketEventType = "tag_removed"
	EventCategorySet     TicketEventType = "category_set"
	EventPriorityChanged TicketEventType = "priority_changed"
)

// TicketEvent is an audit-trail entry on a ticket.
type TicketEvent struct {
	Type      TicketEventType `json:"type"`
	Actor     string          `json:"actor"`
	Value     string          `json:"value,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Ticket is one user's open support conversation with staff. It lives in the
// open-ticket registry until closed, then becomes a HistoryRecord.
type Ticket struct {
	ID        string `json:"id"`
	NumericID string `json:"numericId"`
	UserID    string `json:"userId"`
	UserTag   string `json:"userTag"`
	GuildID   string `json:"guildId"`
	ChannelID string `json:"channelId"`
	// ThreadID is set iff the guild was in thread mode when the ticket was
	// created; the mode is fixed for the ticket's lifetime.
	ThreadID string `json:"threadId,omitempty"`

	Status   TicketStatus   `json:"status"`
	Category string         `json:"category,omitempty"`
	Priority TicketPriority `json:"priority"`
	Tags     []string       `json:"tags,omitempty"`
	Events   []TicketEvent  `json:"events,omitempty"`

	AssignedTo    string     `json:"assignedTo,omitempty"`
	AssignedToTag string     `json:"assignedToTag,omitempty"`
	AssignedAt    *time.Time `json:"assignedAt,omitempty"`

	FirstResponseTime *time.Time `json:"firstResponseTime,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	ClosedAt          *time.Time `json:"closedAt,omitempty"`
	ClosedBy          string     `json:"closedBy,omitempty"`
	CloseReason       string     `json:"closeReason,omitempty"`

	InfoMessageID       string `json:"infoMessageId,omitempty"`
	ThreadInfoMessageID string `json:"threadInfoMessageId,omitempty"`
}

// TicketID builds the composite ticket key from its parts.
func TicketID(guildID, numericID string) string {
	return fmt.Sprintf("%s-%s", guildID, numericID)
}

// ThreadMode reports whether the ticket was created in thread mode.
func (t *Ticket) ThreadMode() bool {
	return t.ThreadID != ""
}

// HasTag reports whether the ticket carries the tag.
func (t *Ticket) HasTag(name string) bool {
	for _, tag := range t.Tags {
		if tag == name {
			return true
		}
	}
	return false
}

// SurfaceID returns the identifier of the ticket's conversation surface:
// the thread in thread mode, the container channel otherwise.
func (t *Ticket) SurfaceID() string {
	if t.ThreadID != "" {
		return t.ThreadID
	}
	return t.ChannelID
}
