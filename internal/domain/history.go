package domain

import "time"

// TranscriptMessage is one entry of a closed ticket's ordered message log.
// IsStaff reflects the author's role at the time the message was sent.
type TranscriptMessage struct {
	ID          string    `json:"id,omitempty"`
	Author      string    `json:"author"`
	AuthorID    string    `json:"authorId"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	IsStaff     bool      `json:"isStaff"`
	IsNote      bool      `json:"isNote,omitempty"`
	Attachments []string  `json:"attachments,omitempty"`
}

// HistoryRecord is the immutable-after-write archive form of a closed
// ticket. Only the satisfaction fields may be patched after creation.
type HistoryRecord struct {
	ID        string `json:"id"`
	NumericID string `json:"numericId"`
	UserID    string `json:"userId"`
	UserTag   string `json:"userTag"`
	GuildID   string `json:"guildId"`
	ThreadID  string `json:"threadId,omitempty"`

	CreatedAt   time.Time    `json:"createdAt"`
	ClosedAt    time.Time    `json:"closedAt"`
	ClosedBy    string       `json:"closedBy,omitempty"`
	CloseReason string       `json:"closeReason,omitempty"`
	Status      TicketStatus `json:"status"`

	Category      string         `json:"category,omitempty"`
	Priority      TicketPriority `json:"priority,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	AssignedTo    string         `json:"assignedTo,omitempty"`
	AssignedToTag string         `json:"assignedToTag,omitempty"`

	FirstResponseTime *time.Time `json:"firstResponseTime,omitempty"`

	SatisfactionRating   int    `json:"satisfactionRating,omitempty"`
	SatisfactionFeedback string `json:"satisfactionFeedback,omitempty"`

	MessageCount      int                 `json:"messageCount"`
	StaffMessageCount int                 `json:"staffMessageCount"`
	UserMessageCount  int                 `json:"userMessageCount"`
	Messages          []TranscriptMessage `json:"messages"`
	Events            []TicketEvent       `json:"events,omitempty"`
}

// GlobalStats is the incrementally maintained archive-wide rollup.
type GlobalStats struct {
	TotalTickets   int            `json:"totalTickets"`
	ClosedTickets  int            `json:"closedTickets"`
	CategoryCounts map[string]int `json:"categoryCounts"`
	TagCounts      map[string]int `json:"tagCounts"`
}

// UserStats is the per-user rollup.
type UserStats struct {
	Tickets       []string       `json:"tickets"`
	TotalTickets  int            `json:"totalTickets"`
	Tags          map[string]int `json:"tags"`
	Categories    map[string]int `json:"categories"`
	Ratings       []int          `json:"ratings"`
	AverageRating float64        `json:"averageRating,omitempty"`
}

// StaffStats is the per-server-per-staff rollup.
type StaffStats struct {
	Tickets       []string `json:"tickets"`
	TotalTickets  int      `json:"totalTickets"`
	Ratings       []int    `json:"ratings"`
	AverageRating float64  `json:"averageRating,omitempty"`
	DisplayName   string   `json:"displayName,omitempty"`
}

// ServerStats is the per-guild rollup.
type ServerStats struct {
	Tickets        []string               `json:"tickets"`
	TotalTickets   int                    `json:"totalTickets"`
	ClosedTickets  int                    `json:"closedTickets"`
	Categories     map[string]int         `json:"categories"`
	Tags           map[string]int         `json:"tags"`
	Users          map[string]*UserCount  `json:"users"`
	Staff          map[string]*StaffStats `json:"staff"`
}

// UserCount tracks a user's ticket ids inside a ServerStats rollup.
type UserCount struct {
	Tickets      []string `json:"tickets"`
	TotalTickets int      `json:"totalTickets"`
}
