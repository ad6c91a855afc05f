// Package survey tracks post-close satisfaction prompts from delivery to
// response or expiry.
package survey

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/modmail-service/internal/domain"
	"github.com/spec-kit/modmail-service/internal/events"
	"github.com/spec-kit/modmail-service/internal/persistence"
	"github.com/spec-kit/modmail-service/internal/platform"
	"github.com/spec-kit/modmail-service/internal/storage"
	"github.com/spec-kit/modmail-service/pkg/util"
)

const redisKeyPrefix = "modmail:survey:"

// Tracker holds the outstanding surveys, at most one per ticket. A survey
// exists only after its prompt was actually delivered; it is destroyed on
// response or expiry, whichever comes first.
type Tracker struct {
	mu         sync.Mutex
	surveys    map[string]*domain.Survey
	history    *storage.HistoryStore
	messenger  platform.Messenger
	dispatcher events.Dispatcher
	redis      *persistence.Redis
	logger     *zap.Logger
	now        func() time.Time
}

// NewTracker creates a tracker. redis is optional; when present, active
// surveys are mirrored there with a matching TTL so an external dashboard
// can inspect them.
func NewTracker(history *storage.HistoryStore, messenger platform.Messenger, dispatcher events.Dispatcher, redis *persistence.Redis, logger *zap.Logger) *Tracker {
	return &Tracker{
		surveys:    make(map[string]*domain.Survey),
		history:    history,
		messenger:  messenger,
		dispatcher: dispatcher,
		redis:      redis,
		logger:     logger,
		now:        time.Now,
	}
}

// NewTrackerWithClock is NewTracker with an injected clock, for tests.
func NewTrackerWithClock(history *storage.HistoryStore, messenger platform.Messenger, dispatcher events.Dispatcher, redis *persistence.Redis, logger *zap.Logger, now func() time.Time) *Tracker {
	t := NewTracker(history, messenger, dispatcher, redis, logger)
	t.now = now
	return t
}

// Send delivers the rating prompt to the ticket's user. Delivery failure is
// logged and swallowed; the survey is only recorded when the prompt went out.
func (t *Tracker) Send(ctx context.Context, ticket *domain.Ticket) {
	prompt := fmt.Sprintf(
		"Your ticket #%s has been closed. How did we do? Reply with a rating from 1 to 5 stars.",
		ticket.NumericID)
	err := t.messenger.SendDirectMessage(ctx, ticket.UserID, platform.Outbound{
		AuthorName: "modmail",
		Content:    prompt,
	})
	if err != nil {
		t.logger.Warn("survey prompt delivery failed",
			zap.String("ticket_id", ticket.ID),
			zap.String("user_id", ticket.UserID),
			zap.Error(err))
		return
	}

	now := t.now()
	survey := &domain.Survey{
		TicketID:  ticket.ID,
		GuildID:   ticket.GuildID,
		UserID:    ticket.UserID,
		SentAt:    now,
		ExpiresAt: now.Add(domain.SurveyTTL),
	}

	t.mu.Lock()
	t.surveys[ticket.ID] = survey
	t.mu.Unlock()

	if t.redis != nil && t.redis.Client != nil {
		if err := t.redis.Client.Set(ctx, redisKeyPrefix+ticket.ID, ticket.UserID, domain.SurveyTTL).Err(); err != nil {
			t.logger.Warn("failed to mirror survey to redis",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}

	t.logger.Info("survey sent",
		zap.String("ticket_id", ticket.ID),
		zap.String("user_id", ticket.UserID))
}

// RecordResponse applies a user's rating to the archived ticket. The survey
// is single-use; responses for unknown tickets, expired surveys, or from
// anyone but the original recipient are rejected.
func (t *Tracker) RecordResponse(ctx context.Context, ticketID, raterUserID string, rating int, feedback string) (*domain.HistoryRecord, error) {
	t.mu.Lock()
	survey, ok := t.surveys[ticketID]
	if !ok {
		t.mu.Unlock()
		return nil, util.NewNotFound("active survey", map[string]any{"ticket_id": ticketID})
	}
	if survey.Expired(t.now()) {
		delete(t.surveys, ticketID)
		t.mu.Unlock()
		return nil, util.NewValidationError("survey has expired", map[string]any{"ticket_id": ticketID})
	}
	if survey.UserID != raterUserID {
		t.mu.Unlock()
		return nil, util.NewPermissionError("only the ticket's user can rate it")
	}
	t.mu.Unlock()

	record, err := t.history.Patch(ticketID, rating, feedback)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	delete(t.surveys, ticketID)
	t.mu.Unlock()

	if t.redis != nil && t.redis.Client != nil {
		if err := t.redis.Client.Del(ctx, redisKeyPrefix+ticketID).Err(); err != nil {
			t.logger.Warn("failed to clear survey mirror",
				zap.String("ticket_id", ticketID), zap.Error(err))
		}
	}

	if t.dispatcher != nil {
		_ = t.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventRatingRecorded,
			TicketID:  ticketID,
			GuildID:   record.GuildID,
			Timestamp: t.now(),
			Payload: events.RatingRecordedPayload{
				NumericID: record.NumericID,
				UserID:    raterUserID,
				StaffID:   record.AssignedTo,
				Rating:    rating,
			},
		})
	}

	t.logger.Info("satisfaction rating recorded",
		zap.String("ticket_id", ticketID),
		zap.Int("rating", rating))
	return record, nil
}

// Active returns the outstanding survey for a ticket, if any.
func (t *Tracker) Active(ticketID string) (*domain.Survey, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	survey, ok := t.surveys[ticketID]
	if !ok || survey.Expired(t.now()) {
		return nil, false
	}
	return survey, true
}

// Evict drops expired surveys. Expiry is a deadline check on read; this is
// only housekeeping to bound map growth, called by the autosave worker.
func (t *Tracker) Evict() {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, survey := range t.surveys {
		if survey.Expired(now) {
			delete(t.surveys, id)
		}
	}
}
