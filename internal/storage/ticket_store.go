package storage

import (
	"encoding/json"
	"errors"
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
	activeTicketsFile = "active-tickets.json"
	activeBackupFile  = "active-tickets-backup.json"
)

// TicketStore is the durable at-rest form of the open-ticket set. Saves are
// serialized: the write is a non-atomic temp-write/backup-copy/rename
// sequence and must not interleave with a concurrent save.
type TicketStore struct {
	mu         sync.Mutex
	path       string
	backupPath string
	logger     *zap.Logger
}

// NewTicketStore creates the store rooted at dir, creating dir if needed.
func NewTicketStore(dir string, logger *zap.Logger) (*TicketStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, util.NewPersistenceError("create data directory", err)
	}
	return &TicketStore{
		path:       filepath.Join(dir, activeTicketsFile),
		backupPath: filepath.Join(dir, activeBackupFile),
		logger:     logger,
	}, nil
}

// Save serializes the full open-ticket set. The previous good file is
// mirrored to the backup path before the primary is replaced.
func (s *TicketStore) Save(tickets []domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	data, err := json.MarshalIndent(tickets, "", "  ")
	if err != nil {
		return util.NewPersistenceError("encode open tickets", err)
	}

	if _, err := os.Stat(s.path); err == nil {
		if err := copyFile(s.path, s.backupPath); err != nil {
			s.logger.Warn("failed to mirror ticket snapshot to backup", zap.Error(err))
		}
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return util.NewPersistenceError("write ticket snapshot", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		return util.NewPersistenceError("replace ticket snapshot", err)
	}

	s.logger.Debug("saved open tickets", zap.Int("count", len(tickets)))
	return nil
}

// Load reads the open-ticket set from the primary file, falling back to the
// backup on absence or parse failure. A recovery from backup rewrites the
// primary. Load never fails the process: an unreadable store yields an
// empty set.
func (s *TicketStore) Load() []domain.Ticket {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Error("failed to read ticket snapshot", zap.Error(err))
		}
		return s.loadBackup()
	}

	var tickets []domain.Ticket
	if err := json.Unmarshal(data, &tickets); err != nil {
		s.logger.Error("ticket snapshot corrupt, trying backup", zap.Error(err))
		return s.loadBackup()
	}
	s.logger.Info("loaded open tickets", zap.Int("count", len(tickets)))
	return tickets
}

func (s *TicketStore) loadBackup() []domain.Ticket {
	data, err := os.ReadFile(s.backupPath)
	if err != nil {
		return nil
	}
	var tickets []domain.Ticket
	if err := json.Unmarshal(data, &tickets); err != nil {
		s.logger.Error("ticket backup corrupt", zap.Error(err))
		return nil
	}

	// Recovered from backup; restore the primary from it.
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		s.logger.Warn("failed to rewrite primary from backup", zap.Error(err))
	}
	s.logger.Info("loaded open tickets from backup", zap.Int("count", len(tickets)))
	return tickets
}

// VerifyIntegrity defends against partially written records: it repairs a
// missing or invalid status, createdAt, and numericId, and returns nil when
// the id itself is absent (ticket dropped).
func (s *TicketStore) VerifyIntegrity(ticket *domain.Ticket) *domain.Ticket {
	if ticket.ID == "" {
		s.logger.Warn("dropping stored ticket with no id")
		return nil
	}
	if !ticket.Status.Valid() {
		s.logger.Warn("repairing ticket with invalid status",
			zap.String("ticket_id", ticket.ID),
			zap.String("status", string(ticket.Status)))
		ticket.Status = domain.TicketStatusInProgress
	}
	if ticket.CreatedAt.IsZero() {
		s.logger.Warn("repairing ticket with missing createdAt", zap.String("ticket_id", ticket.ID))
		ticket.CreatedAt = time.Now()
	}
	if ticket.NumericID == "" {
		parts := strings.Split(ticket.ID, "-")
		ticket.NumericID = parts[len(parts)-1]
		s.logger.Warn("repairing ticket with missing numericId",
			zap.String("ticket_id", ticket.ID),
			zap.String("numeric_id", ticket.NumericID))
	}
	return ticket
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	return os.WriteFile(dst, data, 0o644)
}
