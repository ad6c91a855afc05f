package survey

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/modmail-service/internal/domain"
	"github.com/spec-kit/modmail-service/internal/platform"
	"github.com/spec-kit/modmail-service/internal/storage"
	"github.com/spec-kit/modmail-service/pkg/util"
)

type fakeMessenger struct {
	mu   sync.Mutex
	dms  []platform.Outbound
	fail bool
}

func (f *fakeMessenger) SendDirectMessage(ctx context.Context, userID string, msg platform.Outbound) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("cannot DM user")
	}
	f.dms = append(f.dms, msg)
	return nil
}

type fixture struct {
	tracker   *Tracker
	history   *storage.HistoryStore
	messenger *fakeMessenger
	clock     *time.Time
	ticket    *domain.Ticket
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	history, err := storage.NewHistoryStore(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewHistoryStore: %v", err)
	}

	start := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	clock := &start
	messenger := &fakeMessenger{}
	tracker := NewTrackerWithClock(history, messenger, nil, nil, zap.NewNop(), func() time.Time {
		return *clock
	})

	closedAt := start
	ticket := &domain.Ticket{
		ID:         "guild-1-0001",
		NumericID:  "0001",
		UserID:     "user-1",
		UserTag:    "user-1#0001",
		GuildID:    "guild-1",
		Status:     domain.TicketStatusClosed,
		Priority:   domain.TicketPriorityMedium,
		AssignedTo: "staff-1",
		CreatedAt:  start.Add(-2 * time.Hour),
		ClosedAt:   &closedAt,
	}
	if _, err := history.Archive(ticket, nil); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	return &fixture{tracker: tracker, history: history, messenger: messenger, clock: clock, ticket: ticket}
}

func TestSendRecordsSurvey(t *testing.T) {
	f := newFixture(t)
	f.tracker.Send(context.Background(), f.ticket)

	if len(f.messenger.dms) != 1 {
		t.Fatalf("dms = %d, want 1", len(f.messenger.dms))
	}
	survey, ok := f.tracker.Active(f.ticket.ID)
	if !ok {
		t.Fatal("no active survey after send")
	}
	if got := survey.ExpiresAt.Sub(survey.SentAt); got != domain.SurveyTTL {
		t.Fatalf("ttl = %v, want %v", got, domain.SurveyTTL)
	}
}

func TestSendSwallowsDeliveryFailure(t *testing.T) {
	f := newFixture(t)
	f.messenger.fail = true
	f.tracker.Send(context.Background(), f.ticket)

	if _, ok := f.tracker.Active(f.ticket.ID); ok {
		t.Fatal("survey recorded despite failed delivery")
	}
}

func TestRecordResponseSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.tracker.Send(ctx, f.ticket)

	record, err := f.tracker.RecordResponse(ctx, f.ticket.ID, "user-1", 5, "great")
	if err != nil {
		t.Fatalf("RecordResponse: %v", err)
	}
	if record.SatisfactionRating != 5 || record.SatisfactionFeedback != "great" {
		t.Fatalf("record = %+v", record)
	}
	staff := f.history.ServerStats("guild-1").Staff["staff-1"]
	if staff == nil || staff.AverageRating != 5 {
		t.Fatalf("staff rollup = %+v", staff)
	}

	if _, err := f.tracker.RecordResponse(ctx, f.ticket.ID, "user-1", 4, ""); !util.HasCode(err, "NOT_FOUND") {
		t.Fatalf("second response err = %v, want NOT_FOUND (stale)", err)
	}
}

func TestRecordResponseWrongResponder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.tracker.Send(ctx, f.ticket)

	if _, err := f.tracker.RecordResponse(ctx, f.ticket.ID, "someone-else", 5, ""); !util.HasCode(err, "PERMISSION_DENIED") {
		t.Fatalf("wrong responder err = %v, want PERMISSION_DENIED", err)
	}
	// Survey stays usable for the real recipient.
	if _, err := f.tracker.RecordResponse(ctx, f.ticket.ID, "user-1", 3, ""); err != nil {
		t.Fatalf("legitimate response after rejected one: %v", err)
	}
}

func TestRecordResponseAfterExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.tracker.Send(ctx, f.ticket)

	*f.clock = f.clock.Add(domain.SurveyTTL + time.Hour)
	if _, err := f.tracker.RecordResponse(ctx, f.ticket.ID, "user-1", 5, ""); !util.HasCode(err, "VALIDATION_FAILED") {
		t.Fatalf("expired response err = %v, want VALIDATION_FAILED", err)
	}
	if _, ok := f.tracker.Active(f.ticket.ID); ok {
		t.Fatal("expired survey still active")
	}
}

func TestRecordResponseUnknownTicket(t *testing.T) {
	f := newFixture(t)
	if _, err := f.tracker.RecordResponse(context.Background(), "guild-1-9999", "user-1", 5, ""); !util.HasCode(err, "NOT_FOUND") {
		t.Fatalf("unknown ticket err = %v, want NOT_FOUND", err)
	}
}

func TestEvictDropsExpired(t *testing.T) {
	f := newFixture(t)
	f.tracker.Send(context.Background(), f.ticket)

	*f.clock = f.clock.Add(domain.SurveyTTL + time.Minute)
	f.tracker.Evict()

	f.tracker.mu.Lock()
	remaining := len(f.tracker.surveys)
	f.tracker.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("surveys after evict = %d, want 0", remaining)
	}
}
