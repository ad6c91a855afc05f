package modmail

import (
	"testing"
	"time"

	"github.com/spec-kit/modmail-service/internal/domain"
	"github.com/spec-kit/modmail-service/pkg/util"
)

func openTicket(id, numericID, guildID, userID, channelID, threadID string) *domain.Ticket {
	return &domain.Ticket{
		ID:        id,
		NumericID: numericID,
		UserID:    userID,
		GuildID:   guildID,
		ChannelID: channelID,
		ThreadID:  threadID,
		Status:    domain.TicketStatusPending,
		CreatedAt: time.Now(),
	}
}

func TestRegistryOnePerGuildUser(t *testing.T) {
	r := NewRegistry()
	first := openTicket("guild-1-0001", "0001", "guild-1", "user-1", "chan-1", "")
	if err := r.Add(first); err != nil {
		t.Fatalf("Add: %v", err)
	}

	dup := openTicket("guild-1-0002", "0002", "guild-1", "user-1", "chan-1", "")
	if err := r.Add(dup); !util.HasCode(err, "CONFLICT") {
		t.Fatalf("second open ticket for same user err = %v, want CONFLICT", err)
	}

	// Same user in a different guild is fine.
	other := openTicket("guild-2-0001", "0001", "guild-2", "user-1", "chan-2", "")
	if err := r.Add(other); err != nil {
		t.Fatalf("Add in other guild: %v", err)
	}

	r.Remove(first.ID)
	replacement := openTicket("guild-1-0002", "0002", "guild-1", "user-1", "chan-1", "")
	if err := r.Add(replacement); err != nil {
		t.Fatalf("Add after removal: %v", err)
	}
}

func TestRegistrySurfaceLookup(t *testing.T) {
	r := NewRegistry()
	legacy := openTicket("guild-1-0001", "0001", "guild-1", "user-1", "chan-1", "")
	threaded := openTicket("guild-1-0002", "0002", "guild-1", "user-2", "chan-parent", "thread-9")
	if err := r.Add(legacy); err != nil {
		t.Fatalf("Add legacy: %v", err)
	}
	if err := r.Add(threaded); err != nil {
		t.Fatalf("Add threaded: %v", err)
	}

	if got, ok := r.BySurface("chan-1"); !ok || got.ID != legacy.ID {
		t.Fatalf("BySurface(chan-1) = %+v/%v", got, ok)
	}
	if got, ok := r.BySurface("thread-9"); !ok || got.ID != threaded.ID {
		t.Fatalf("BySurface(thread-9) = %+v/%v", got, ok)
	}
	// A threaded ticket's parent channel does not resolve to it.
	if _, ok := r.BySurface("chan-parent"); ok {
		t.Fatal("parent channel resolved to threaded ticket")
	}

	if got, ok := r.ByUser("guild-1", "user-2"); !ok || got.ID != threaded.ID {
		t.Fatalf("ByUser = %+v/%v", got, ok)
	}
}

func TestRegistryChannelIndexSurvivesSiblingClose(t *testing.T) {
	r := NewRegistry()
	older := &domain.Ticket{
		ID: "guild-1-0001", GuildID: "guild-1", UserID: "user-1", ChannelID: "chan-1",
		Status: domain.TicketStatusPending,
	}
	newer := &domain.Ticket{
		ID: "guild-1-0002", GuildID: "guild-1", UserID: "user-2", ChannelID: "chan-1",
		Status: domain.TicketStatusPending,
	}
	if err := r.Add(older); err != nil {
		t.Fatalf("add older: %v", err)
	}
	if err := r.Add(newer); err != nil {
		t.Fatalf("add newer: %v", err)
	}

	// Shared legacy channel: the index holds the most recently added ticket.
	if got, ok := r.BySurface("chan-1"); !ok || got.ID != newer.ID {
		t.Fatalf("BySurface = %+v/%v, want newer ticket", got, ok)
	}

	// Closing the indexed ticket hands the channel to the survivor.
	r.Remove(newer.ID)
	got, ok := r.BySurface("chan-1")
	if !ok || got.ID != older.ID {
		t.Fatalf("BySurface after sibling close = %+v/%v, want older ticket", got, ok)
	}

	r.Remove(older.ID)
	if _, ok := r.BySurface("chan-1"); ok {
		t.Fatal("channel index outlived its tickets")
	}
}

func TestRegistryRestoreRebuildsIndices(t *testing.T) {
	r := NewRegistry()
	if err := r.Add(openTicket("guild-1-0001", "0001", "guild-1", "user-1", "chan-1", "")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	r.Restore([]*domain.Ticket{
		openTicket("guild-1-0005", "0005", "guild-1", "user-5", "chan-5", "thread-5"),
	})

	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
	if _, ok := r.ByUser("guild-1", "user-1"); ok {
		t.Fatal("stale ticket survived restore")
	}
	if got, ok := r.BySurface("thread-5"); !ok || got.ID != "guild-1-0005" {
		t.Fatalf("restored index lookup = %+v/%v", got, ok)
	}
}
