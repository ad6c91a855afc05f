// Package transcript renders closed tickets to durable markdown documents.
package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/modmail-service/internal/domain"
	"github.com/spec-kit/modmail-service/pkg/util"
)

const timeLayout = "2006-01-02 15:04:05 MST"

// Generator writes one markdown file per closed ticket under dir.
type Generator struct {
	dir    string
	logger *zap.Logger
}

// NewGenerator creates the generator, creating dir if needed.
func NewGenerator(dir string, logger *zap.Logger) (*Generator, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, util.NewPersistenceError("create transcripts directory", err)
	}
	return &Generator{dir: dir, logger: logger}, nil
}

// Write renders the record and stores it as <ticket id>.md, returning the
// file path.
func (g *Generator) Write(record *domain.HistoryRecord) (string, error) {
	path := filepath.Join(g.dir, record.ID+".md")
	if err := os.WriteFile(path, []byte(Render(record)), 0o644); err != nil {
		return "", util.NewPersistenceError("write transcript", err)
	}
	g.logger.Debug("transcript written", zap.String("ticket_id", record.ID), zap.String("path", path))
	return path, nil
}

// Read returns a previously written transcript by ticket id.
func (g *Generator) Read(ticketID string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(g.dir, ticketID+".md"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, util.NewNotFound("transcript", map[string]any{"ticket_id": ticketID})
		}
		return nil, util.NewPersistenceError("read transcript", err)
	}
	return data, nil
}

// Render produces the markdown document for a closed ticket: a metadata
// header followed by the chronological message log.
func Render(record *domain.HistoryRecord) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Ticket %s\n\n", record.ID)
	fmt.Fprintf(&b, "- **User:** %s (%s)\n", record.UserTag, record.UserID)
	fmt.Fprintf(&b, "- **Opened:** %s\n", record.CreatedAt.UTC().Format(timeLayout))
	fmt.Fprintf(&b, "- **Closed:** %s", record.ClosedAt.UTC().Format(timeLayout))
	if record.ClosedBy != "" {
		fmt.Fprintf(&b, " by %s", record.ClosedBy)
	}
	b.WriteString("\n")
	if record.CloseReason != "" {
		fmt.Fprintf(&b, "- **Reason:** %s\n", record.CloseReason)
	}
	if record.Category != "" {
		fmt.Fprintf(&b, "- **Category:** %s\n", record.Category)
	}
	if record.Priority != "" {
		fmt.Fprintf(&b, "- **Priority:** %s\n", record.Priority)
	}
	if len(record.Tags) > 0 {
		fmt.Fprintf(&b, "- **Tags:** %s\n", strings.Join(record.Tags, ", "))
	}
	if record.AssignedTo != "" {
		name := record.AssignedToTag
		if name == "" {
			name = record.AssignedTo
		}
		fmt.Fprintf(&b, "- **Handled by:** %s\n", name)
	}
	fmt.Fprintf(&b, "- **Messages:** %d (%d staff, %d user)\n",
		record.MessageCount, record.StaffMessageCount, record.UserMessageCount)
	if record.SatisfactionRating > 0 {
		fmt.Fprintf(&b, "- **Rating:** %d/5\n", record.SatisfactionRating)
		if record.SatisfactionFeedback != "" {
			fmt.Fprintf(&b, "- **Feedback:** %s\n", record.SatisfactionFeedback)
		}
	}

	b.WriteString("\n## Conversation\n\n")
	if len(record.Messages) == 0 {
		b.WriteString("_No messages recorded._\n")
		return b.String()
	}

	for _, msg := range record.Messages {
		label := msg.Author
		if msg.IsStaff {
			label += " [STAFF]"
		}
		if msg.IsNote {
			label += " [NOTE]"
		}
		fmt.Fprintf(&b, "**%s** (%s)\n", label, msg.Timestamp.UTC().Format(timeLayout))
		if msg.Content != "" {
			fmt.Fprintf(&b, "%s\n", msg.Content)
		}
		for _, att := range msg.Attachments {
			fmt.Fprintf(&b, "[attachment] %s\n", att)
		}
		b.WriteString("\n")
	}
	return b.String()
}
