package platform

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// pagedSurface serves a fixed message log newest-first in pages, the way
// the chat platform paginates.
type pagedSurface struct {
	ConversationSurface
	messages []Message // oldest-first
	calls    int
}

func (p *pagedSurface) FetchHistoryPage(ctx context.Context, surfaceID, beforeID string, limit int) ([]Message, error) {
	p.calls++
	end := len(p.messages)
	if beforeID != "" {
		for i, m := range p.messages {
			if m.ID == beforeID {
				end = i
				break
			}
		}
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	page := make([]Message, 0, end-start)
	for i := end - 1; i >= start; i-- {
		page = append(page, p.messages[i])
	}
	return page, nil
}

func TestFetchFullHistoryReassemblesChronologically(t *testing.T) {
	const total = 250 // spans three pages
	surface := &pagedSurface{}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < total; i++ {
		surface.messages = append(surface.messages, Message{
			ID:        fmt.Sprintf("m%04d", i),
			Content:   fmt.Sprintf("message %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}

	history, err := FetchFullHistory(context.Background(), surface, "chan-1")
	if err != nil {
		t.Fatalf("FetchFullHistory: %v", err)
	}
	if len(history) != total {
		t.Fatalf("history length = %d, want %d", len(history), total)
	}
	for i := range history {
		if history[i].ID != fmt.Sprintf("m%04d", i) {
			t.Fatalf("position %d holds %s", i, history[i].ID)
		}
	}
	if surface.calls != 3 {
		t.Fatalf("page fetches = %d, want 3", surface.calls)
	}
}

func TestFetchFullHistoryEmptySurface(t *testing.T) {
	history, err := FetchFullHistory(context.Background(), &pagedSurface{}, "chan-1")
	if err != nil {
		t.Fatalf("FetchFullHistory: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("history = %v, want empty", history)
	}
}
