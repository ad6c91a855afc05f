package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/modmail-service/internal/domain"
)

func newTestTicketStore(t *testing.T) (*TicketStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewTicketStore(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewTicketStore: %v", err)
	}
	return store, dir
}

func sampleTicket(id string) domain.Ticket {
	assignedAt := time.Date(2026, 2, 1, 10, 30, 0, 0, time.UTC)
	firstResponse := assignedAt
	return domain.Ticket{
		ID:                "guild-1-" + id,
		NumericID:         id,
		UserID:            "user-1",
		UserTag:           "user#1234",
		GuildID:           "guild-1",
		ChannelID:         "chan-1",
		ThreadID:          "thread-" + id,
		Status:            domain.TicketStatusInProgress,
		Category:          "billing",
		Priority:          domain.TicketPriorityHigh,
		Tags:              []string{"refund", "vip"},
		AssignedTo:        "staff-1",
		AssignedAt:        &assignedAt,
		FirstResponseTime: &firstResponse,
		CreatedAt:         time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
		InfoMessageID:     "msg-1",
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	minimal := domain.Ticket{
		ID:        "guild-1-0002",
		NumericID: "0002",
		UserID:    "user-2",
		GuildID:   "guild-1",
		ChannelID: "chan-1",
		Status:    domain.TicketStatusPending,
		Priority:  domain.TicketPriorityMedium,
		CreatedAt: time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC),
	}

	cases := []struct {
		name    string
		tickets []domain.Ticket
	}{
		{"empty", nil},
		{"single full", []domain.Ticket{sampleTicket("0001")}},
		{"many mixed", []domain.Ticket{sampleTicket("0001"), minimal, sampleTicket("0003")}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, _ := newTestTicketStore(t)
			if err := store.Save(tc.tickets); err != nil {
				t.Fatalf("Save: %v", err)
			}
			loaded := store.Load()
			if len(loaded) != len(tc.tickets) {
				t.Fatalf("loaded %d tickets, want %d", len(loaded), len(tc.tickets))
			}
			for i, want := range tc.tickets {
				got := loaded[i]
				if got.ID != want.ID || got.Status != want.Status || got.Category != want.Category {
					t.Errorf("ticket %d = %+v, want %+v", i, got, want)
				}
				if !got.CreatedAt.Equal(want.CreatedAt) {
					t.Errorf("ticket %d CreatedAt = %v, want %v", i, got.CreatedAt, want.CreatedAt)
				}
				if (got.FirstResponseTime == nil) != (want.FirstResponseTime == nil) {
					t.Errorf("ticket %d FirstResponseTime presence mismatch", i)
				}
				if len(got.Tags) != len(want.Tags) {
					t.Errorf("ticket %d tags = %v, want %v", i, got.Tags, want.Tags)
				}
			}
		})
	}
}

func TestLoadFallsBackToBackup(t *testing.T) {
	store, dir := newTestTicketStore(t)
	tickets := []domain.Ticket{sampleTicket("0001")}
	if err := store.Save(tickets); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// Second save mirrors the first snapshot to the backup path.
	if err := store.Save(tickets); err != nil {
		t.Fatalf("Save: %v", err)
	}

	primary := filepath.Join(dir, activeTicketsFile)
	if err := os.WriteFile(primary, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("corrupt primary: %v", err)
	}

	loaded := store.Load()
	if len(loaded) != 1 || loaded[0].ID != "guild-1-0001" {
		t.Fatalf("backup load = %+v, want the saved ticket", loaded)
	}

	// Recovery must rewrite the primary from the backup.
	data, err := os.ReadFile(primary)
	if err != nil {
		t.Fatalf("read primary: %v", err)
	}
	var restored []domain.Ticket
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("primary not rewritten with valid JSON: %v", err)
	}
}

func TestLoadMissingFilesYieldsEmpty(t *testing.T) {
	store, _ := newTestTicketStore(t)
	if loaded := store.Load(); len(loaded) != 0 {
		t.Fatalf("Load on empty dir = %d tickets, want 0", len(loaded))
	}
}

func TestVerifyIntegrityRepairs(t *testing.T) {
	store, _ := newTestTicketStore(t)

	t.Run("missing id drops ticket", func(t *testing.T) {
		if got := store.VerifyIntegrity(&domain.Ticket{}); got != nil {
			t.Fatalf("ticket without id = %+v, want nil", got)
		}
	})

	t.Run("invalid status repaired to in_progress", func(t *testing.T) {
		ticket := &domain.Ticket{ID: "guild-1-0001", Status: "bogus", CreatedAt: time.Now(), NumericID: "0001"}
		got := store.VerifyIntegrity(ticket)
		if got.Status != domain.TicketStatusInProgress {
			t.Fatalf("status = %s, want in_progress", got.Status)
		}
	})

	t.Run("missing createdAt defaulted", func(t *testing.T) {
		ticket := &domain.Ticket{ID: "guild-1-0001", Status: domain.TicketStatusPending, NumericID: "0001"}
		got := store.VerifyIntegrity(ticket)
		if got.CreatedAt.IsZero() {
			t.Fatal("createdAt not repaired")
		}
	})

	t.Run("missing numericId derived from id", func(t *testing.T) {
		ticket := &domain.Ticket{ID: "guild-1-0042", Status: domain.TicketStatusPending, CreatedAt: time.Now()}
		got := store.VerifyIntegrity(ticket)
		if got.NumericID != "0042" {
			t.Fatalf("numericId = %q, want 0042", got.NumericID)
		}
	})
}
