// Package modmail implements the ticket lifecycle core: creation, message
// relay, claiming, categorization, tagging, and close-to-archive handoff.
package modmail

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/modmail-service/internal/config"
	"github.com/spec-kit/modmail-service/internal/domain"
	"github.com/spec-kit/modmail-service/internal/events"
	"github.com/spec-kit/modmail-service/internal/observability"
	"github.com/spec-kit/modmail-service/internal/platform"
	"github.com/spec-kit/modmail-service/internal/ratelimit"
	"github.com/spec-kit/modmail-service/internal/storage"
	"github.com/spec-kit/modmail-service/pkg/util"
)

const surfaceCallTimeout = 30 * time.Second

// SurveySender enqueues a post-close satisfaction prompt. Delivery is
// best-effort and never affects the close.
type SurveySender interface {
	Send(ctx context.Context, ticket *domain.Ticket)
}

// TranscriptWriter renders a closed ticket to a durable document.
type TranscriptWriter interface {
	Write(record *domain.HistoryRecord) (string, error)
}

// Dependencies bundles the collaborators required by the lifecycle core.
type Dependencies struct {
	Registry    *Registry
	Guilds      *config.GuildStore
	Blacklist   *config.Blacklist
	Tickets     *storage.TicketStore
	History     *storage.HistoryStore
	Tags        *storage.TagStore
	Snippets    *storage.SnippetStore
	Limiter     *ratelimit.Limiter
	Surface     platform.ConversationSurface
	Identity    platform.IdentityResolver
	Messenger   platform.Messenger
	Surveys     SurveySender
	Transcripts TranscriptWriter
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// Service mediates every mutation of open tickets. All per-ticket entry
// points take the ticket's lock so events for one ticket never interleave;
// distinct tickets proceed independently.
type Service struct {
	deps Dependencies
	now  func() time.Time
}

// NewService creates the lifecycle core service.
func NewService(deps Dependencies) *Service {
	return &Service{deps: deps, now: time.Now}
}

// HandleInboundUserMessage is the entry point for a user's direct message:
// it routes to the user's open ticket when one exists, otherwise opens a
// new ticket seeded with the message.
func (s *Service) HandleInboundUserMessage(ctx context.Context, userID, guildID, content string, attachments []string) (*domain.Ticket, error) {
	if ticket, ok := s.deps.Registry.ByUser(guildID, userID); ok {
		return ticket, s.ForwardUserMessage(ctx, ticket, content, attachments)
	}
	return s.OpenTicket(ctx, userID, guildID, content, attachments)
}

// OpenTicket creates a new pending ticket from a user's first message. The
// per-guild numeric id is allocated before the conversation surface is
// touched, so a creation that fails afterwards burns the number.
func (s *Service) OpenTicket(ctx context.Context, userID, guildID, initialMessage string, attachments []string) (*domain.Ticket, error) {
	if entry, barred := s.deps.Blacklist.Lookup(userID); barred {
		return nil, util.NewPermissionError(fmt.Sprintf("you are blacklisted from opening tickets: %s", entry.Reason))
	}

	cfg, ok := s.deps.Guilds.Get(guildID)
	if !ok || cfg.ModmailChannelID == "" {
		return nil, util.NewConfigurationError("modmail is not set up for this server")
	}

	if _, exists := s.deps.Registry.ByUser(guildID, userID); exists {
		return nil, util.NewConflict("user already has an open ticket", nil)
	}

	if res := s.deps.Limiter.Check(userID, ratelimit.ActionTickets); res.Limited {
		return nil, util.NewRateLimitError("ticket creation limit reached", res.RetryAfter, res.Count, res.Limit)
	}

	userTag, err := s.deps.Identity.ResolveUserTag(ctx, userID)
	if err != nil || userTag == "" {
		userTag = userID
	}

	numericID := s.deps.History.NextTicketID(guildID)
	now := s.now()
	ticket := &domain.Ticket{
		ID:        domain.TicketID(guildID, numericID),
		NumericID: numericID,
		UserID:    userID,
		UserTag:   userTag,
		GuildID:   guildID,
		ChannelID: cfg.ModmailChannelID,
		Status:    domain.TicketStatusPending,
		Priority:  domain.TicketPriorityMedium,
		CreatedAt: now,
	}

	callCtx, cancel := context.WithTimeout(ctx, surfaceCallTimeout)
	defer cancel()

	if cfg.UseThreads {
		threadID, err := s.deps.Surface.CreateThread(callCtx, cfg.ModmailChannelID, fmt.Sprintf("ticket-%s-%s", numericID, userTag))
		if err != nil {
			return nil, util.NewConfigurationError(fmt.Sprintf("could not create ticket thread: %v", err))
		}
		ticket.ThreadID = threadID
	}

	if err := s.renderInfoSurface(callCtx, ticket, true); err != nil {
		return nil, err
	}

	if initialMessage != "" || len(attachments) > 0 {
		if _, err := s.deps.Surface.SendMessage(callCtx, ticket.SurfaceID(), platform.Outbound{
			AuthorName:  userTag,
			AuthorID:    userID,
			Content:     sanitize(initialMessage),
			Attachments: attachments,
		}); err != nil {
			s.deps.Logger.Warn("failed to relay initial ticket message",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}

	if err := s.deps.Registry.Add(ticket); err != nil {
		return nil, err
	}
	s.saveOpenTickets()

	s.deps.Metrics.RecordTicketEvent("opened")
	s.publish(ctx, events.EventTicketOpened, ticket, events.TicketOpenedPayload{
		NumericID: numericID,
		UserID:    userID,
		UserTag:   userTag,
		Preview:   preview(initialMessage),
	})

	s.deps.Logger.Info("ticket opened",
		zap.String("ticket_id", ticket.ID),
		zap.String("guild_id", guildID),
		zap.String("user_id", userID),
		zap.Bool("thread_mode", ticket.ThreadMode()))
	return ticket, nil
}

// ForwardUserMessage relays a follow-up user message into the ticket's
// conversation surface. No state transition.
func (s *Service) ForwardUserMessage(ctx context.Context, ticket *domain.Ticket, content string, attachments []string) error {
	unlock := s.deps.Registry.Lock(ticket.ID)
	defer unlock()

	if ticket.Status == domain.TicketStatusClosed {
		return util.NewConflict("ticket is closed", map[string]any{"ticket_id": ticket.ID})
	}

	if res := s.deps.Limiter.Check(ticket.UserID, ratelimit.ActionMessages); res.Limited {
		return util.NewRateLimitError("you are sending messages too quickly", res.RetryAfter, res.Count, res.Limit)
	}

	callCtx, cancel := context.WithTimeout(ctx, surfaceCallTimeout)
	defer cancel()
	_, err := s.deps.Surface.SendMessage(callCtx, ticket.SurfaceID(), platform.Outbound{
		AuthorName:  ticket.UserTag,
		AuthorID:    ticket.UserID,
		Content:     sanitize(content),
		Attachments: attachments,
	})
	if err != nil {
		return util.NewDeliveryError("failed to relay message to staff", err)
	}
	return nil
}

// ClaimTicket explicitly claims a pending ticket for a staff member.
func (s *Service) ClaimTicket(ctx context.Context, ticket *domain.Ticket, staffID string) error {
	isStaff, err := s.deps.Identity.IsStaff(ctx, ticket.GuildID, staffID)
	if err != nil {
		return util.NewInternalError(err)
	}
	if !isStaff {
		return util.NewPermissionError("only staff members can claim tickets")
	}

	unlock := s.deps.Registry.Lock(ticket.ID)
	defer unlock()

	claimed, err := s.claimLocked(ctx, ticket, staffID, false)
	if err != nil {
		return err
	}
	if !claimed {
		return util.NewConflict("ticket is already claimed", map[string]any{
			"ticket_id":   ticket.ID,
			"assigned_to": ticket.AssignedTo,
		})
	}
	return nil
}

// claimLocked performs the pending -> in_progress transition. Explicit claim
// and first-staff-reply auto-claim share this single path, so assignment
// fields are set exactly once per ticket. Returns false without error when
// the ticket is already claimed.
//
// Self-heal: a ticket found pending with assignedTo already set is flipped
// to in_progress in place before any other logic runs.
func (s *Service) claimLocked(ctx context.Context, ticket *domain.Ticket, staffID string, implicit bool) (bool, error) {
	if ticket.Status == domain.TicketStatusClosed {
		return false, util.NewConflict("ticket is closed", map[string]any{"ticket_id": ticket.ID})
	}
	if ticket.Status == domain.TicketStatusPending && ticket.AssignedTo != "" {
		s.deps.Logger.Warn("repairing pending ticket with assignee",
			zap.String("ticket_id", ticket.ID),
			zap.String("assigned_to", ticket.AssignedTo))
		ticket.Status = domain.TicketStatusInProgress
		s.saveOpenTickets()
		return false, nil
	}
	if ticket.Status != domain.TicketStatusPending {
		return false, nil
	}

	staffTag, err := s.deps.Identity.ResolveUserTag(ctx, staffID)
	if err != nil || staffTag == "" {
		staffTag = staffID
	}

	now := s.now()
	ticket.Status = domain.TicketStatusInProgress
	ticket.AssignedTo = staffID
	ticket.AssignedToTag = staffTag
	ticket.AssignedAt = &now
	if ticket.FirstResponseTime == nil {
		ticket.FirstResponseTime = &now
	}

	s.refreshInfoSurface(ctx, ticket)
	s.saveOpenTickets()

	s.deps.Metrics.RecordTicketEvent("claimed")
	s.publish(ctx, events.EventTicketClaimed, ticket, events.TicketClaimedPayload{
		NumericID: ticket.NumericID,
		StaffID:   staffID,
		UserID:    ticket.UserID,
		Implicit:  implicit,
	})

	s.deps.Logger.Info("ticket claimed",
		zap.String("ticket_id", ticket.ID),
		zap.String("staff_id", staffID),
		zap.Bool("implicit", implicit))
	return true, nil
}

// HandleStaffMessage processes a staff message posted on a ticket surface:
// mode discipline, the "#" staff-note convention, auto-claim on first reply,
// then relay to the user.
func (s *Service) HandleStaffMessage(ctx context.Context, ticket *domain.Ticket, staffID, surfaceID, messageID, content string, attachments []string) error {
	isStaff, err := s.deps.Identity.IsStaff(ctx, ticket.GuildID, staffID)
	if err != nil {
		return util.NewInternalError(err)
	}
	if !isStaff {
		return util.NewPermissionError("only staff members can reply to tickets")
	}

	unlock := s.deps.Registry.Lock(ticket.ID)
	defer unlock()

	if ticket.Status == domain.TicketStatusClosed {
		return util.NewConflict("ticket is closed", map[string]any{"ticket_id": ticket.ID})
	}

	callCtx, cancel := context.WithTimeout(ctx, surfaceCallTimeout)
	defer cancel()

	// The reply surface is fixed per ticket: the thread in thread mode, the
	// container channel in legacy mode. Replies elsewhere are removed.
	if surfaceID != ticket.SurfaceID() {
		if err := s.deps.Surface.DeleteMessage(callCtx, surfaceID, messageID); err != nil {
			s.deps.Logger.Warn("failed to remove misplaced staff reply",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
		if ticket.ThreadMode() {
			return util.NewValidationError("reply inside the ticket thread, not the parent channel", nil)
		}
		return util.NewValidationError("reply in the ticket channel", nil)
	}

	staffTag, err := s.deps.Identity.ResolveUserTag(ctx, staffID)
	if err != nil || staffTag == "" {
		staffTag = staffID
	}

	// A leading "#" marks a staff-only note: strip it, re-render the content
	// as an annotation, remove the raw original, never forward to the user.
	if strings.HasPrefix(content, "#") {
		note := strings.TrimSpace(strings.TrimPrefix(content, "#"))
		if err := s.deps.Surface.DeleteMessage(callCtx, surfaceID, messageID); err != nil {
			s.deps.Logger.Warn("failed to remove raw staff note",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
		if _, err := s.deps.Surface.SendMessage(callCtx, ticket.SurfaceID(), platform.Outbound{
			AuthorName: staffTag,
			AuthorID:   staffID,
			Content:    note,
			IsStaff:    true,
			IsNote:     true,
		}); err != nil {
			return util.NewDeliveryError("failed to post staff note", err)
		}
		return nil
	}

	if _, err := s.claimLocked(ctx, ticket, staffID, true); err != nil {
		return err
	}

	// A non-assigned staff member may still reply; the surface gets a notice
	// so the team sees who the ticket belongs to.
	if ticket.AssignedTo != "" && ticket.AssignedTo != staffID {
		if _, err := s.deps.Surface.SendMessage(callCtx, ticket.SurfaceID(), platform.Outbound{
			AuthorName: "modmail",
			Content:    fmt.Sprintf("This ticket is assigned to %s, but %s is responding instead.", ticket.AssignedToTag, staffTag),
			IsStaff:    true,
			IsNote:     true,
		}); err != nil {
			s.deps.Logger.Warn("failed to post assignment notice",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}

	if err := s.deps.Messenger.SendDirectMessage(callCtx, ticket.UserID, platform.Outbound{
		AuthorName:  staffTag,
		AuthorID:    staffID,
		Content:     sanitize(content),
		IsStaff:     true,
		Attachments: attachments,
	}); err != nil {
		// Relay failure is reported to staff but does not unwind the claim.
		return util.NewDeliveryError("could not deliver reply to the user", err)
	}

	s.publish(ctx, events.EventStaffReplied, ticket, events.StaffRepliedPayload{
		NumericID: ticket.NumericID,
		StaffID:   staffID,
		UserID:    ticket.UserID,
		Preview:   preview(content),
	})
	return nil
}

// SetCategory assigns a category to an open ticket.
func (s *Service) SetCategory(ctx context.Context, ticket *domain.Ticket, actorID, category string) error {
	return s.mutateLocked(ctx, ticket, actorID, func() error {
		ticket.Category = category
		ticket.Events = append(ticket.Events, domain.TicketEvent{
			Type:      domain.EventCategorySet,
			Actor:     actorID,
			Value:     category,
			Timestamp: s.now(),
		})
		return nil
	})
}

// SetPriority changes a ticket's priority with an optional reason.
func (s *Service) SetPriority(ctx context.Context, ticket *domain.Ticket, actorID string, priority domain.TicketPriority, reason string) error {
	if !priority.Valid() {
		return util.NewValidationError("unknown priority", map[string]any{"priority": string(priority)})
	}
	return s.mutateLocked(ctx, ticket, actorID, func() error {
		ticket.Priority = priority
		ticket.Events = append(ticket.Events, domain.TicketEvent{
			Type:      domain.EventPriorityChanged,
			Actor:     actorID,
			Value:     string(priority),
			Reason:    reason,
			Timestamp: s.now(),
		})
		return nil
	})
}

// AddTag attaches a registered tag to a ticket. Unknown tag names and tags
// already on the ticket are rejected explicitly.
func (s *Service) AddTag(ctx context.Context, ticket *domain.Ticket, actorID, tagName string) error {
	tag, ok := s.deps.Tags.Get(ticket.GuildID, tagName)
	if !ok {
		return util.NewNotFound("tag", map[string]any{"tag": tagName})
	}
	return s.mutateLocked(ctx, ticket, actorID, func() error {
		if ticket.HasTag(tag.Name) {
			return util.NewConflict("tag already on ticket", map[string]any{"tag": tag.Name})
		}
		ticket.Tags = append(ticket.Tags, tag.Name)
		ticket.Events = append(ticket.Events, domain.TicketEvent{
			Type:      domain.EventTagAdded,
			Actor:     actorID,
			Value:     tag.Name,
			Timestamp: s.now(),
		})
		return nil
	})
}

// RemoveTag detaches a tag from a ticket. Removing an absent tag is an error.
func (s *Service) RemoveTag(ctx context.Context, ticket *domain.Ticket, actorID, tagName string) error {
	return s.mutateLocked(ctx, ticket, actorID, func() error {
		idx := -1
		for i, tag := range ticket.Tags {
			if tag == tagName {
				idx = i
				break
			}
		}
		if idx < 0 {
			return util.NewNotFound("tag on ticket", map[string]any{"tag": tagName})
		}
		ticket.Tags = append(ticket.Tags[:idx], ticket.Tags[idx+1:]...)
		ticket.Events = append(ticket.Events, domain.TicketEvent{
			Type:      domain.EventTagRemoved,
			Actor:     actorID,
			Value:     tagName,
			Timestamp: s.now(),
		})
		return nil
	})
}

// mutateLocked runs a field-level mutation under the ticket lock, then
// refreshes the info surface and persists. A mutation error leaves the
// ticket untouched.
func (s *Service) mutateLocked(ctx context.Context, ticket *domain.Ticket, actorID string, apply func() error) error {
	isStaff, err := s.deps.Identity.IsStaff(ctx, ticket.GuildID, actorID)
	if err != nil {
		return util.NewInternalError(err)
	}
	if !isStaff {
		return util.NewPermissionError("only staff members can modify tickets")
	}

	unlock := s.deps.Registry.Lock(ticket.ID)
	defer unlock()

	if ticket.Status == domain.TicketStatusClosed {
		return util.NewConflict("ticket is closed", map[string]any{"ticket_id": ticket.ID})
	}
	if err := apply(); err != nil {
		return err
	}

	s.refreshInfoSurface(ctx, ticket)
	s.saveOpenTickets()
	return nil
}

// SendSnippet relays a guild's canned response to the user as a staff reply
// and mirrors it into the ticket surface. A snippet is a typing shortcut,
// not a takeover: it never claims the ticket.
func (s *Service) SendSnippet(ctx context.Context, ticket *domain.Ticket, staffID, name string) error {
	isStaff, err := s.deps.Identity.IsStaff(ctx, ticket.GuildID, staffID)
	if err != nil {
		return util.NewInternalError(err)
	}
	if !isStaff {
		return util.NewPermissionError("only staff members can use snippets")
	}

	snippet, ok := s.deps.Snippets.Get(ticket.GuildID, name)
	if !ok {
		return util.NewNotFound("snippet", map[string]any{"name": name})
	}

	unlock := s.deps.Registry.Lock(ticket.ID)
	defer unlock()

	if ticket.Status == domain.TicketStatusClosed {
		return util.NewConflict("ticket is closed", map[string]any{"ticket_id": ticket.ID})
	}

	staffTag, err := s.deps.Identity.ResolveUserTag(ctx, staffID)
	if err != nil || staffTag == "" {
		staffTag = staffID
	}

	callCtx, cancel := context.WithTimeout(ctx, surfaceCallTimeout)
	defer cancel()

	msg := platform.Outbound{
		AuthorName: staffTag,
		AuthorID:   staffID,
		Content:    snippet.Content,
		IsStaff:    true,
	}
	if err := s.deps.Messenger.SendDirectMessage(callCtx, ticket.UserID, msg); err != nil {
		return util.NewDeliveryError("could not deliver snippet to the user", err)
	}

	// Mirror into the ticket surface so the conversation log carries it.
	if _, err := s.deps.Surface.SendMessage(callCtx, ticket.SurfaceID(), msg); err != nil {
		s.deps.Logger.Warn("failed to mirror snippet into ticket surface",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
	}

	s.publish(ctx, events.EventStaffReplied, ticket, events.StaffRepliedPayload{
		NumericID: ticket.NumericID,
		StaffID:   staffID,
		UserID:    ticket.UserID,
		Preview:   preview(snippet.Content),
	})
	return nil
}

// SendAnonymousReply relays a staff message to the user without revealing
// who wrote it: the user sees "Staff Team". The reply does not claim the
// ticket, matching its use for one-off team statements.
func (s *Service) SendAnonymousReply(ctx context.Context, ticket *domain.Ticket, staffID, content string) error {
	isStaff, err := s.deps.Identity.IsStaff(ctx, ticket.GuildID, staffID)
	if err != nil {
		return util.NewInternalError(err)
	}
	if !isStaff {
		return util.NewPermissionError("only staff members can send anonymous replies")
	}

	unlock := s.deps.Registry.Lock(ticket.ID)
	defer unlock()

	if ticket.Status == domain.TicketStatusClosed {
		return util.NewConflict("ticket is closed", map[string]any{"ticket_id": ticket.ID})
	}

	callCtx, cancel := context.WithTimeout(ctx, surfaceCallTimeout)
	defer cancel()

	msg := platform.Outbound{
		AuthorName: "Staff Team",
		Content:    sanitize(content),
		IsStaff:    true,
	}
	if err := s.deps.Messenger.SendDirectMessage(callCtx, ticket.UserID, msg); err != nil {
		return util.NewDeliveryError("could not deliver reply to the user", err)
	}

	// The surface copy names the real author for the team's own record.
	staffTag, err := s.deps.Identity.ResolveUserTag(ctx, staffID)
	if err != nil || staffTag == "" {
		staffTag = staffID
	}
	if _, err := s.deps.Surface.SendMessage(callCtx, ticket.SurfaceID(), platform.Outbound{
		AuthorName: staffTag,
		AuthorID:   staffID,
		Content:    fmt.Sprintf("(anonymous) %s", sanitize(content)),
		IsStaff:    true,
		IsNote:     true,
	}); err != nil {
		s.deps.Logger.Warn("failed to mirror anonymous reply into ticket surface",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
	}

	s.publish(ctx, events.EventStaffReplied, ticket, events.StaffRepliedPayload{
		NumericID: ticket.NumericID,
		StaffID:   staffID,
		UserID:    ticket.UserID,
		Preview:   preview(content),
	})
	return nil
}

// CloseTicket terminates a ticket: fetch the conversation log, archive it
// exactly once, enqueue the survey, then drop it from the open registry. If
// the log cannot be fetched or archival fails, the ticket stays open in its
// pre-close state and the caller may retry.
func (s *Service) CloseTicket(ctx context.Context, ticket *domain.Ticket, staffID, reason string) (*domain.HistoryRecord, error) {
	isStaff, err := s.deps.Identity.IsStaff(ctx, ticket.GuildID, staffID)
	if err != nil {
		return nil, util.NewInternalError(err)
	}
	if !isStaff {
		return nil, util.NewPermissionError("only staff members can close tickets")
	}

	unlock := s.deps.Registry.Lock(ticket.ID)
	defer unlock()

	if ticket.Status == domain.TicketStatusClosed {
		return nil, util.NewConflict("ticket is already closed", map[string]any{"ticket_id": ticket.ID})
	}

	callCtx, cancel := context.WithTimeout(ctx, surfaceCallTimeout)
	defer cancel()

	// Archival is exactly-once, so closing with a partial log would destroy
	// the conversation record for good. Abort and let the caller retry.
	history, err := platform.FetchFullHistory(callCtx, s.deps.Surface, ticket.SurfaceID())
	if err != nil {
		return nil, util.NewDeliveryError("could not fetch the conversation history", err)
	}
	transcript := toTranscript(history)

	prevStatus := ticket.Status
	now := s.now()
	ticket.Status = domain.TicketStatusClosed
	ticket.ClosedAt = &now
	ticket.ClosedBy = staffID
	ticket.CloseReason = reason

	record, err := s.deps.History.Archive(ticket, transcript)
	if err != nil {
		ticket.Status = prevStatus
		ticket.ClosedAt = nil
		ticket.ClosedBy = ""
		ticket.CloseReason = ""
		return nil, err
	}

	if s.deps.Transcripts != nil {
		if _, err := s.deps.Transcripts.Write(record); err != nil {
			s.deps.Logger.Warn("failed to write transcript",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}

	if s.deps.Surveys != nil {
		s.deps.Surveys.Send(ctx, ticket)
	}

	if ticket.ThreadMode() {
		if err := s.deps.Surface.ArchiveThread(callCtx, ticket.ThreadID); err != nil {
			s.deps.Logger.Warn("failed to archive ticket thread",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}

	s.deps.Registry.Remove(ticket.ID)
	s.saveOpenTickets()

	s.deps.Metrics.RecordTicketEvent("closed")
	s.publish(ctx, events.EventTicketClosed, ticket, events.TicketClosedPayload{
		NumericID:   ticket.NumericID,
		ClosedBy:    staffID,
		CloseReason: reason,
		UserID:      ticket.UserID,
	})

	s.deps.Logger.Info("ticket closed",
		zap.String("ticket_id", ticket.ID),
		zap.String("closed_by", staffID),
		zap.Int("message_count", record.MessageCount))
	return record, nil
}

// CheckCommand applies the shared command quota and the per-command cooldown
// for an actor. Used by the command front end before dispatching.
func (s *Service) CheckCommand(userID, command string) error {
	if res := s.deps.Limiter.Check(userID, ratelimit.ActionCommands); res.Limited {
		return util.NewRateLimitError("command limit reached", res.RetryAfter, res.Count, res.Limit)
	}
	if res := s.deps.Limiter.CheckCooldown(userID, command); res.Limited {
		return util.NewRateLimitError(
			fmt.Sprintf("%s is on cooldown", command), res.RetryAfter, res.Count, res.Limit)
	}
	return nil
}

// RestoreFromDisk repopulates the open registry from the ticket snapshot,
// repairing or dropping damaged records. Called once at startup.
func (s *Service) RestoreFromDisk() int {
	return Restore(s.deps.Tickets, s.deps.Registry, s.deps.Logger)
}

// Restore loads the open-ticket snapshot into a registry, repairing or
// dropping damaged records.
func Restore(store *storage.TicketStore, registry *Registry, logger *zap.Logger) int {
	loaded := store.Load()
	restored := make([]*domain.Ticket, 0, len(loaded))
	for i := range loaded {
		ticket := store.VerifyIntegrity(&loaded[i])
		if ticket == nil {
			continue
		}
		if ticket.Status == domain.TicketStatusPending && ticket.AssignedTo != "" {
			logger.Warn("repairing pending ticket with assignee",
				zap.String("ticket_id", ticket.ID))
			ticket.Status = domain.TicketStatusInProgress
		}
		restored = append(restored, ticket)
	}
	registry.Restore(restored)
	logger.Info("restored open tickets", zap.Int("count", len(restored)))
	return len(restored)
}

// SaveSnapshot persists the current open-ticket set. Exposed for the
// autosave worker and shutdown path.
func (s *Service) SaveSnapshot() {
	s.saveOpenTickets()
}

func (s *Service) saveOpenTickets() {
	if err := s.deps.Tickets.Save(s.deps.Registry.Snapshot()); err != nil {
		// Save failures are logged, not surfaced; the next save retries.
		s.deps.Logger.Error("failed to persist open tickets", zap.Error(err))
	}
}

// renderInfoSurface posts the ticket info message(s) and records their ids.
// In thread mode both the container channel and the thread get one.
func (s *Service) renderInfoSurface(ctx context.Context, ticket *domain.Ticket, initial bool) error {
	content := infoContent(ticket)
	msg := platform.Outbound{
		AuthorName: "modmail",
		Content:    content,
		IsStaff:    true,
		Color:      events.PriorityColor(ticket.Priority),
	}

	infoID, err := s.deps.Surface.SendMessage(ctx, ticket.ChannelID, msg)
	if err != nil {
		if initial {
			return util.NewConfigurationError(fmt.Sprintf("could not post to the modmail channel: %v", err))
		}
		return util.NewDeliveryError("failed to render ticket info", err)
	}
	ticket.InfoMessageID = infoID

	if ticket.ThreadMode() {
		threadInfoID, err := s.deps.Surface.SendMessage(ctx, ticket.ThreadID, msg)
		if err != nil {
			s.deps.Logger.Warn("failed to post thread info message",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
		} else {
			ticket.ThreadInfoMessageID = threadInfoID
		}
	}
	return nil
}

// refreshInfoSurface re-renders the info message(s) after a state change.
// Edit failures are logged; ticket state is already committed.
func (s *Service) refreshInfoSurface(ctx context.Context, ticket *domain.Ticket) {
	callCtx, cancel := context.WithTimeout(ctx, surfaceCallTimeout)
	defer cancel()

	msg := platform.Outbound{
		AuthorName: "modmail",
		Content:    infoContent(ticket),
		IsStaff:    true,
		Color:      events.PriorityColor(ticket.Priority),
	}
	if ticket.InfoMessageID != "" {
		if err := s.deps.Surface.EditMessage(callCtx, ticket.ChannelID, ticket.InfoMessageID, msg); err != nil {
			s.deps.Logger.Warn("failed to refresh info message",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}
	if ticket.ThreadInfoMessageID != "" {
		if err := s.deps.Surface.EditMessage(callCtx, ticket.ThreadID, ticket.ThreadInfoMessageID, msg); err != nil {
			s.deps.Logger.Warn("failed to refresh thread info message",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}
}

func (s *Service) publish(ctx context.Context, eventType events.EventType, ticket *domain.Ticket, payload any) {
	if s.deps.Dispatcher == nil {
		return
	}
	_ = s.deps.Dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticket.ID,
		GuildID:   ticket.GuildID,
		Timestamp: s.now(),
		Payload:   payload,
	})
}

// infoContent renders the ticket summary kept in sync with ticket state.
func infoContent(ticket *domain.Ticket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticket #%s\n", ticket.NumericID)
	fmt.Fprintf(&b, "User: %s (%s)\n", ticket.UserTag, ticket.UserID)
	fmt.Fprintf(&b, "Status: %s\n", ticket.Status)
	fmt.Fprintf(&b, "Priority: %s\n", ticket.Priority)
	if ticket.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", ticket.Category)
	}
	if len(ticket.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(ticket.Tags, ", "))
	}
	if ticket.AssignedTo != "" {
		fmt.Fprintf(&b, "Claimed by: %s\n", ticket.AssignedToTag)
	} else {
		b.WriteString("Claimed by: nobody yet\n")
	}
	fmt.Fprintf(&b, "Opened: %s", ticket.CreatedAt.UTC().Format(time.RFC1123))
	return b.String()
}

// sanitize neutralizes mass-mention triggers in relayed content.
func sanitize(content string) string {
	content = strings.ReplaceAll(content, "@everyone", "@​everyone")
	content = strings.ReplaceAll(content, "@here", "@​here")
	return content
}

func preview(content string) string {
	const max = 100
	content = strings.TrimSpace(content)
	if len(content) <= max {
		return content
	}
	// Back off to a rune boundary so the cut never emits invalid UTF-8.
	cut := max
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "..."
}

func toTranscript(messages []platform.Message) []domain.TranscriptMessage {
	transcript := make([]domain.TranscriptMessage, 0, len(messages))
	for _, msg := range messages {
		transcript = append(transcript, domain.TranscriptMessage{
			ID:          msg.ID,
			Author:      msg.AuthorTag,
			AuthorID:    msg.AuthorID,
			Content:     msg.Content,
			Timestamp:   msg.Timestamp,
			IsStaff:     msg.IsStaff,
			IsNote:      msg.IsNote,
			Attachments: msg.Attachments,
		})
	}
	return transcript
}
