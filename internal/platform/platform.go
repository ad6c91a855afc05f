// Package platform declares the collaborator capabilities the surrounding
// bot supplies: the conversation surface, identity resolution, and direct
// message delivery. The lifecycle core only talks to these interfaces; the
// gateway/REST layer implementing them lives outside this repository.
package platform

import (
	"context"
	"time"
)

// Message is one message on a conversation surface.
type Message struct {
	ID          string
	AuthorID    string
	AuthorTag   string
	Content     string
	Timestamp   time.Time
	IsStaff     bool
	IsNote      bool
	Attachments []string
}

// Outbound is a message the core asks the surface or messenger to deliver.
type Outbound struct {
	AuthorName  string
	AuthorID    string
	Content     string
	IsStaff     bool
	IsNote      bool
	Attachments []string
	Color       int
}

// HistoryPageSize is the page size used when reassembling surface history.
const HistoryPageSize = 100

// ConversationSurface is the channel/thread the ticket conversation lives
// in. Implementations must honor ctx deadlines; the core never waits on a
// surface call forever.
type ConversationSurface interface {
	// CreateThread makes a ticket thread inside the container channel and
	// returns its id. Only called for guilds in thread mode.
	CreateThread(ctx context.Context, channelID, name string) (string, error)

	// SendMessage posts to a channel or thread and returns the message id.
	SendMessage(ctx context.Context, surfaceID string, msg Outbound) (string, error)

	// EditMessage replaces a previously sent message's content. Used to keep
	// the ticket info surface in sync with ticket state.
	EditMessage(ctx context.Context, surfaceID, messageID string, msg Outbound) error

	// DeleteMessage removes a message, e.g. a raw staff-only note.
	DeleteMessage(ctx context.Context, surfaceID, messageID string) error

	// FetchHistoryPage returns up to limit messages older than beforeID
	// (all newest-first, matching the platform's pagination). An empty
	// beforeID starts from the newest message. The core reassembles pages
	// chronologically.
	FetchHistoryPage(ctx context.Context, surfaceID, beforeID string, limit int) ([]Message, error)

	// ArchiveThread archives a ticket thread after close.
	ArchiveThread(ctx context.Context, threadID string) error
}

// IdentityResolver answers "who is this" and "is this actor authorized".
// The core never inspects platform permission bits itself.
type IdentityResolver interface {
	ResolveUserTag(ctx context.Context, userID string) (string, error)
	IsStaff(ctx context.Context, guildID, userID string) (bool, error)
	IsAdmin(ctx context.Context, guildID, userID string) (bool, error)
}

// Messenger delivers best-effort direct messages to users.
type Messenger interface {
	SendDirectMessage(ctx context.Context, userID string, msg Outbound) error
}

// FetchFullHistory pages through a surface's history and returns it in
// chronological order.
func FetchFullHistory(ctx context.Context, surface ConversationSurface, surfaceID string) ([]Message, error) {
	var pages [][]Message
	beforeID := ""
	for {
		page, err := surface.FetchHistoryPage(ctx, surfaceID, beforeID, HistoryPageSize)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		pages = append(pages, page)
		beforeID = page[len(page)-1].ID
		if len(page) < HistoryPageSize {
			break
		}
	}

	// Pages arrive newest-first; walk them backwards and reverse each page.
	var history []Message
	for i := len(pages) - 1; i >= 0; i-- {
		page := pages[i]
		for j := len(page) - 1; j >= 0; j-- {
			history = append(history, page[j])
		}
	}
	return history, nil
}
