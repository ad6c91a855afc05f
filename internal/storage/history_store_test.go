package storage

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/modmail-service/internal/domain"
	"github.com/spec-kit/modmail-service/pkg/util"
)

func newTestHistoryStore(t *testing.T) *HistoryStore {
	t.Helper()
	store, err := NewHistoryStore(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewHistoryStore: %v", err)
	}
	return store
}

func closedTicket(guildID, numericID, userID, staffID string) *domain.Ticket {
	closedAt := time.Date(2026, 2, 1, 14, 0, 0, 0, time.UTC)
	return &domain.Ticket{
		ID:         domain.TicketID(guildID, numericID),
		NumericID:  numericID,
		UserID:     userID,
		UserTag:    userID + "#0001",
		GuildID:    guildID,
		ChannelID:  "chan-1",
		Status:     domain.TicketStatusClosed,
		Category:   "billing",
		Priority:   domain.TicketPriorityMedium,
		Tags:       []string{"refund"},
		AssignedTo: staffID,
		CreatedAt:  time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
		ClosedAt:   &closedAt,
		ClosedBy:   staffID,
	}
}

func TestNextTicketIDMonotonicAndPadded(t *testing.T) {
	store := newTestHistoryStore(t)

	if id := store.NextTicketID("guild-1"); id != "0001" {
		t.Fatalf("first id = %q, want 0001", id)
	}
	if id := store.NextTicketID("guild-1"); id != "0002" {
		t.Fatalf("second id = %q, want 0002", id)
	}
	// Other guilds count independently.
	if id := store.NextTicketID("guild-2"); id != "0001" {
		t.Fatalf("guild-2 first id = %q, want 0001", id)
	}
}

func TestNextTicketIDSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	store, err := NewHistoryStore(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewHistoryStore: %v", err)
	}
	store.NextTicketID("guild-1")
	store.NextTicketID("guild-1")

	reloaded, err := NewHistoryStore(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if id := reloaded.NextTicketID("guild-1"); id != "0003" {
		t.Fatalf("id after reload = %q, want 0003 (counter persisted, never reused)", id)
	}
}

func TestArchiveExactlyOnce(t *testing.T) {
	store := newTestHistoryStore(t)
	ticket := closedTicket("guild-1", "0001", "user-1", "staff-1")

	if _, err := store.Archive(ticket, nil); err != nil {
		t.Fatalf("first Archive: %v", err)
	}
	if _, err := store.Archive(ticket, nil); !util.HasCode(err, "CONFLICT") {
		t.Fatalf("second Archive err = %v, want CONFLICT", err)
	}

	count := 0
	for _, record := range store.Search(SearchCriteria{GuildID: "guild-1"}) {
		if record.ID == ticket.ID {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("history records for %s = %d, want exactly 1", ticket.ID, count)
	}
}

func TestArchiveUpdatesRollups(t *testing.T) {
	store := newTestHistoryStore(t)
	messages := []domain.TranscriptMessage{
		{Author: "user-1#0001", AuthorID: "user-1", Content: "help me", IsStaff: false},
		{Author: "staff", AuthorID: "staff-1", Content: "on it", IsStaff: true},
		{Author: "user-1#0001", AuthorID: "user-1", Content: "thanks", IsStaff: false},
	}

	record, err := store.Archive(closedTicket("guild-1", "0001", "user-1", "staff-1"), messages)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if record.MessageCount != 3 || record.StaffMessageCount != 1 || record.UserMessageCount != 2 {
		t.Fatalf("message counts = %d/%d/%d, want 3/1/2",
			record.MessageCount, record.StaffMessageCount, record.UserMessageCount)
	}

	stats := store.Stats()
	if stats.TotalTickets != 1 || stats.ClosedTickets != 1 {
		t.Fatalf("global stats = %+v, want 1/1", stats)
	}
	if stats.CategoryCounts["billing"] != 1 || stats.TagCounts["refund"] != 1 {
		t.Fatalf("histograms = %+v", stats)
	}

	server := store.ServerStats("guild-1")
	if server == nil || server.TotalTickets != 1 {
		t.Fatalf("server stats = %+v", server)
	}
	if server.Staff["staff-1"] == nil || server.Staff["staff-1"].TotalTickets != 1 {
		t.Fatalf("staff rollup = %+v", server.Staff)
	}

	user := store.UserStats("user-1")
	if user == nil || user.TotalTickets != 1 || user.Tags["refund"] != 1 {
		t.Fatalf("user rollup = %+v", user)
	}
}

func TestPatchUpdatesRatingRollups(t *testing.T) {
	store := newTestHistoryStore(t)
	ticket := closedTicket("guild-1", "0001", "user-1", "staff-1")
	if _, err := store.Archive(ticket, nil); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	record, err := store.Patch(ticket.ID, 5, "great support")
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if record.SatisfactionRating != 5 || record.SatisfactionFeedback != "great support" {
		t.Fatalf("patched record = %+v", record)
	}

	staff := store.ServerStats("guild-1").Staff["staff-1"]
	if staff.AverageRating != 5 {
		t.Fatalf("staff average = %v, want 5", staff.AverageRating)
	}
	if user := store.UserStats("user-1"); user.AverageRating != 5 {
		t.Fatalf("user average = %v, want 5", user.AverageRating)
	}

	// Running average over all ratings for the staff member.
	second := closedTicket("guild-1", "0002", "user-2", "staff-1")
	if _, err := store.Archive(second, nil); err != nil {
		t.Fatalf("Archive second: %v", err)
	}
	if _, err := store.Patch(second.ID, 3, ""); err != nil {
		t.Fatalf("Patch second: %v", err)
	}
	staff = store.ServerStats("guild-1").Staff["staff-1"]
	if staff.AverageRating != 4 {
		t.Fatalf("staff average after two ratings = %v, want 4", staff.AverageRating)
	}
}

func TestPatchValidation(t *testing.T) {
	store := newTestHistoryStore(t)
	if _, err := store.Patch("guild-1-0001", 5, ""); !util.HasCode(err, "NOT_FOUND") {
		t.Fatalf("Patch on unknown id err = %v, want NOT_FOUND", err)
	}

	ticket := closedTicket("guild-1", "0001", "user-1", "staff-1")
	if _, err := store.Archive(ticket, nil); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if _, err := store.Patch(ticket.ID, 6, ""); !util.HasCode(err, "VALIDATION_FAILED") {
		t.Fatalf("Patch rating 6 err = %v, want VALIDATION_FAILED", err)
	}
}

func TestSearchCriteria(t *testing.T) {
	store := newTestHistoryStore(t)

	first := closedTicket("guild-1", "0001", "user-1", "staff-1")
	first.Tags = []string{"refund", "vip"}
	messages := []domain.TranscriptMessage{{AuthorID: "user-1", Content: "my payment failed"}}
	if _, err := store.Archive(first, messages); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	second := closedTicket("guild-1", "0002", "user-2", "staff-2")
	second.Category = "abuse"
	second.Tags = []string{"spam"}
	second.CreatedAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if _, err := store.Archive(second, nil); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if _, err := store.Patch(second.ID, 2, ""); err != nil {
		t.Fatalf("Patch: %v", err)
	}

	third := closedTicket("guild-2", "0001", "user-1", "staff-1")
	if _, err := store.Archive(third, nil); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	cases := []struct {
		name     string
		criteria SearchCriteria
		wantIDs  []string
	}{
		{"by guild", SearchCriteria{GuildID: "guild-2"}, []string{"guild-2-0001"}},
		{"by user", SearchCriteria{UserID: "user-2"}, []string{"guild-1-0002"}},
		{"by ticket id substring", SearchCriteria{GuildID: "guild-1", TicketID: "0002"}, []string{"guild-1-0002"}},
		{"by category", SearchCriteria{Category: "abuse"}, []string{"guild-1-0002"}},
		{"by any-of tags", SearchCriteria{Tags: []string{"vip", "missing"}}, []string{"guild-1-0001"}},
		{"by content substring", SearchCriteria{Content: "payment"}, []string{"guild-1-0001"}},
		{"by staff", SearchCriteria{GuildID: "guild-1", StaffID: "staff-2"}, []string{"guild-1-0002"}},
		{"by rating range", SearchCriteria{MinRating: 1, MaxRating: 3}, []string{"guild-1-0002"}},
		{"by date range", SearchCriteria{
			StartDate: timePtr(time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)),
		}, []string{"guild-1-0002"}},
		{"no matches", SearchCriteria{GuildID: "guild-9"}, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			results := store.Search(tc.criteria)
			if len(results) != len(tc.wantIDs) {
				t.Fatalf("got %d results, want %d", len(results), len(tc.wantIDs))
			}
			for i, want := range tc.wantIDs {
				if results[i].ID != want {
					t.Errorf("result %d = %s, want %s", i, results[i].ID, want)
				}
			}
		})
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
