package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/modmail-service/internal/domain"
	"github.com/spec-kit/modmail-service/pkg/util"
)

const (
	historyFile  = "ticket-history.json"
	countersFile = "ticket-counters.json"
)

// ArchiveMirror is an optional secondary sink for closed-ticket records,
// e.g. a Postgres table. Mirror failures are logged, never surfaced.
type ArchiveMirror interface {
	InsertRecord(ctx context.Context, record *domain.HistoryRecord) error
	UpdateRating(ctx context.Context, ticketID string, rating int, feedback string) error
}

type historyData struct {
	Tickets []*domain.HistoryRecord        `json:"tickets"`
	Users   map[string]*domain.UserStats   `json:"users"`
	Servers map[string]*domain.ServerStats `json:"servers"`
	Stats   domain.GlobalStats             `json:"stats"`
}

// HistoryStore is the append-only archive of closed tickets plus the
// rollups derived from it. Rollups are maintained incrementally at write
// time so analytics reads stay cheap.
type HistoryStore struct {
	mu          sync.RWMutex
	path        string
	counterPath string
	logger      *zap.Logger
	data        historyData
	counters    map[string]int
	byID        map[string]*domain.HistoryRecord
	mirror      ArchiveMirror
}

// NewHistoryStore loads or initializes the archive under dir.
func NewHistoryStore(dir string, logger *zap.Logger) (*HistoryStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, util.NewPersistenceError("create data directory", err)
	}
	s := &HistoryStore{
		path:        filepath.Join(dir, historyFile),
		counterPath: filepath.Join(dir, countersFile),
		logger:      logger,
		counters:    make(map[string]int),
		byID:        make(map[string]*domain.HistoryRecord),
	}
	s.loadHistory()
	s.loadCounters()
	return s, nil
}

// SetMirror attaches an optional archive mirror.
func (s *HistoryStore) SetMirror(mirror ArchiveMirror) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mirror = mirror
}

func (s *HistoryStore) loadHistory() {
	data, err := os.ReadFile(s.path)
	if err == nil {
		if err := json.Unmarshal(data, &s.data); err != nil {
			s.logger.Error("history archive corrupt, starting fresh", zap.Error(err))
		}
	} else if !os.IsNotExist(err) {
		s.logger.Error("failed to read history archive", zap.Error(err))
	}
	if s.data.Users == nil {
		s.data.Users = make(map[string]*domain.UserStats)
	}
	if s.data.Servers == nil {
		s.data.Servers = make(map[string]*domain.ServerStats)
	}
	if s.data.Stats.CategoryCounts == nil {
		s.data.Stats.CategoryCounts = make(map[string]int)
	}
	if s.data.Stats.TagCounts == nil {
		s.data.Stats.TagCounts = make(map[string]int)
	}
	for _, record := range s.data.Tickets {
		s.byID[record.ID] = record
	}
}

func (s *HistoryStore) loadCounters() {
	data, err := os.ReadFile(s.counterPath)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("failed to read ticket counters", zap.Error(err))
		}
		return
	}
	if err := json.Unmarshal(data, &s.counters); err != nil {
		s.logger.Error("ticket counters corrupt, starting fresh", zap.Error(err))
		s.counters = make(map[string]int)
	}
}

func (s *HistoryStore) saveHistory() {
	data, err := json.MarshalIndent(&s.data, "", "  ")
	if err != nil {
		s.logger.Error("failed to encode history archive", zap.Error(err))
		return
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		s.logger.Error("failed to write history archive", zap.Error(err))
	}
}

func (s *HistoryStore) saveCounters() {
	data, err := json.MarshalIndent(s.counters, "", "  ")
	if err != nil {
		s.logger.Error("failed to encode ticket counters", zap.Error(err))
		return
	}
	if err := os.WriteFile(s.counterPath, data, 0o644); err != nil {
		s.logger.Error("failed to write ticket counters", zap.Error(err))
	}
}

// NextTicketID allocates the next per-guild numeric id as a zero-padded
// display string. The counter is persisted before the id is handed out, so
// a creation that later fails burns the number; ids are never reused.
func (s *HistoryStore) NextTicketID(guildID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[guildID]++
	s.saveCounters()
	return fmt.Sprintf("%04d", s.counters[guildID])
}

// Archive appends one closed-ticket record and updates the four rollups.
// A ticket id can be archived at most once; a second attempt is a conflict
// and leaves the archive untouched.
func (s *HistoryStore) Archive(ticket *domain.Ticket, messages []domain.TranscriptMessage) (*domain.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[ticket.ID]; exists {
		return nil, util.NewConflict("ticket already archived", map[string]any{"ticket_id": ticket.ID})
	}

	closedAt := time.Now()
	if ticket.ClosedAt != nil {
		closedAt = *ticket.ClosedAt
	}

	staffCount := 0
	for _, msg := range messages {
		if msg.IsStaff {
			staffCount++
		}
	}

	record := &domain.HistoryRecord{
		ID:                ticket.ID,
		NumericID:         ticket.NumericID,
		UserID:            ticket.UserID,
		UserTag:           ticket.UserTag,
		GuildID:           ticket.GuildID,
		ThreadID:          ticket.ThreadID,
		CreatedAt:         ticket.CreatedAt,
		ClosedAt:          closedAt,
		ClosedBy:          ticket.ClosedBy,
		CloseReason:       ticket.CloseReason,
		Status:            domain.TicketStatusClosed,
		Category:          ticket.Category,
		Priority:          ticket.Priority,
		Tags:              append([]string(nil), ticket.Tags...),
		AssignedTo:        ticket.AssignedTo,
		AssignedToTag:     ticket.AssignedToTag,
		FirstResponseTime: ticket.FirstResponseTime,
		MessageCount:      len(messages),
		StaffMessageCount: staffCount,
		UserMessageCount:  len(messages) - staffCount,
		Messages:          messages,
		Events:            append([]domain.TicketEvent(nil), ticket.Events...),
	}

	s.data.Tickets = append(s.data.Tickets, record)
	s.byID[record.ID] = record
	s.applyRollups(record)
	s.saveHistory()

	if s.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.mirror.InsertRecord(ctx, record); err != nil {
			s.logger.Warn("archive mirror insert failed",
				zap.String("ticket_id", record.ID), zap.Error(err))
		}
	}
	return record, nil
}

func (s *HistoryStore) applyRollups(record *domain.HistoryRecord) {
	s.data.Stats.TotalTickets++
	s.data.Stats.ClosedTickets++
	if record.Category != "" {
		s.data.Stats.CategoryCounts[record.Category]++
	}
	for _, tag := range record.Tags {
		s.data.Stats.TagCounts[tag]++
	}

	user := s.data.Users[record.UserID]
	if user == nil {
		user = &domain.UserStats{
			Tags:       make(map[string]int),
			Categories: make(map[string]int),
		}
		s.data.Users[record.UserID] = user
	}
	user.Tickets = append(user.Tickets, record.ID)
	user.TotalTickets++
	for _, tag := range record.Tags {
		user.Tags[tag]++
	}
	if record.Category != "" {
		user.Categories[record.Category]++
	}
	if record.SatisfactionRating > 0 {
		user.Ratings = append(user.Ratings, record.SatisfactionRating)
		user.AverageRating = average(user.Ratings)
	}

	server := s.data.Servers[record.GuildID]
	if server == nil {
		server = &domain.ServerStats{
			Categories: make(map[string]int),
			Tags:       make(map[string]int),
			Users:      make(map[string]*domain.UserCount),
			Staff:      make(map[string]*domain.StaffStats),
		}
		s.data.Servers[record.GuildID] = server
	}
	server.Tickets = append(server.Tickets, record.ID)
	server.TotalTickets++
	server.ClosedTickets++
	if record.Category != "" {
		server.Categories[record.Category]++
	}
	for _, tag := range record.Tags {
		server.Tags[tag]++
	}
	userCount := server.Users[record.UserID]
	if userCount == nil {
		userCount = &domain.UserCount{}
		server.Users[record.UserID] = userCount
	}
	userCount.Tickets = append(userCount.Tickets, record.ID)
	userCount.TotalTickets++

	if record.AssignedTo != "" {
		staff := server.Staff[record.AssignedTo]
		if staff == nil {
			staff = &domain.StaffStats{}
			server.Staff[record.AssignedTo] = staff
		}
		staff.Tickets = append(staff.Tickets, record.ID)
		staff.TotalTickets++
		if record.SatisfactionRating > 0 {
			staff.Ratings = append(staff.Ratings, record.SatisfactionRating)
			staff.AverageRating = average(staff.Ratings)
		}
		if record.AssignedToTag != "" {
			staff.DisplayName = record.AssignedToTag
		}
	}
}

// Patch applies late-arriving satisfaction data to an archived record and
// updates the user and staff rating rollups.
func (s *HistoryStore) Patch(ticketID string, rating int, feedback string) (*domain.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.byID[ticketID]
	if !ok {
		return nil, util.NewNotFound("history record", map[string]any{"ticket_id": ticketID})
	}
	if rating < 1 || rating > 5 {
		return nil, util.NewValidationError("rating must be between 1 and 5", map[string]any{"rating": rating})
	}

	record.SatisfactionRating = rating
	if feedback != "" {
		record.SatisfactionFeedback = feedback
	}

	if user := s.data.Users[record.UserID]; user != nil {
		user.Ratings = append(user.Ratings, rating)
		user.AverageRating = average(user.Ratings)
	}
	if record.AssignedTo != "" {
		if server := s.data.Servers[record.GuildID]; server != nil {
			if staff := server.Staff[record.AssignedTo]; staff != nil {
				staff.Ratings = append(staff.Ratings, rating)
				staff.AverageRating = average(staff.Ratings)
			}
		}
	}

	s.saveHistory()

	if s.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.mirror.UpdateRating(ctx, ticketID, rating, feedback); err != nil {
			s.logger.Warn("archive mirror rating update failed",
				zap.String("ticket_id", ticketID), zap.Error(err))
		}
	}
	return record, nil
}

// SearchCriteria filters archive records; zero values mean "any".
type SearchCriteria struct {
	GuildID   string
	UserID    string
	Username  string
	TicketID  string
	Category  string
	Tags      []string
	Content   string
	StaffID   string
	StartDate *time.Time
	EndDate   *time.Time
	MinRating int
	MaxRating int
}

// Search returns all records matching every supplied criterion. Results are
// unsorted; callers sort, typically newest-first.
func (s *HistoryStore) Search(criteria SearchCriteria) []*domain.HistoryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*domain.HistoryRecord
	for _, record := range s.data.Tickets {
		if matches(record, criteria) {
			results = append(results, record)
		}
	}
	return results
}

func matches(record *domain.HistoryRecord, c SearchCriteria) bool {
	if c.GuildID != "" && record.GuildID != c.GuildID {
		return false
	}
	if c.UserID != "" && record.UserID != c.UserID {
		return false
	}
	if c.Username != "" && !strings.Contains(strings.ToLower(record.UserTag), strings.ToLower(c.Username)) {
		return false
	}
	if c.TicketID != "" && !strings.Contains(record.ID, c.TicketID) && record.NumericID != c.TicketID {
		return false
	}
	if c.Category != "" && record.Category != c.Category {
		return false
	}
	if len(c.Tags) > 0 && !anyTagMatch(record.Tags, c.Tags) {
		return false
	}
	if c.Content != "" {
		needle := strings.ToLower(c.Content)
		found := false
		for _, msg := range record.Messages {
			if strings.Contains(strings.ToLower(msg.Content), needle) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if c.StaffID != "" && record.AssignedTo != c.StaffID {
		return false
	}
	if c.StartDate != nil && record.CreatedAt.Before(*c.StartDate) {
		return false
	}
	if c.EndDate != nil && record.CreatedAt.After(*c.EndDate) {
		return false
	}
	if c.MinRating > 0 && (record.SatisfactionRating == 0 || record.SatisfactionRating < c.MinRating) {
		return false
	}
	if c.MaxRating > 0 && (record.SatisfactionRating == 0 || record.SatisfactionRating > c.MaxRating) {
		return false
	}
	return true
}

func anyTagMatch(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

// Record returns an archived record by ticket id.
func (s *HistoryStore) Record(ticketID string) (*domain.HistoryRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.byID[ticketID]
	return record, ok
}

// RecordsByGuild returns all archived records for a guild.
func (s *HistoryStore) RecordsByGuild(guildID string) []*domain.HistoryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []*domain.HistoryRecord
	for _, record := range s.data.Tickets {
		if record.GuildID == guildID {
			results = append(results, record)
		}
	}
	return results
}

// Stats returns the archive-wide rollup.
func (s *HistoryStore) Stats() domain.GlobalStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Stats
}

// ServerStats returns the per-guild rollup, or nil if the guild has no
// archived tickets.
func (s *HistoryStore) ServerStats(guildID string) *domain.ServerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Servers[guildID]
}

// UserStats returns the per-user rollup, or nil.
func (s *HistoryStore) UserStats(userID string) *domain.UserStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Users[userID]
}

func average(ratings []int) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return float64(sum) / float64(len(ratings))
}
