package storage

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/modmail-service/internal/domain"
	"github.com/spec-kit/modmail-service/pkg/util"
)

func newSnippetStore(t *testing.T, dir string) *SnippetStore {
	t.Helper()
	store, err := NewSnippetStore(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSnippetStore: %v", err)
	}
	return store
}

func TestSnippetSetOverwrites(t *testing.T) {
	store := newSnippetStore(t, t.TempDir())

	store.Set("guild-1", domain.Snippet{Name: "greeting", Content: "Hello!", CreatedAt: time.Now()})
	store.Set("guild-1", domain.Snippet{Name: "Greeting", Content: "Hi there!", CreatedAt: time.Now()})

	if got := store.GuildSnippets("guild-1"); len(got) != 1 {
		t.Fatalf("snippets = %d, want re-add to overwrite", len(got))
	}
	snippet, ok := store.Get("guild-1", "GREETING")
	if !ok || snippet.Content != "Hi there!" {
		t.Fatalf("snippet = %+v/%v", snippet, ok)
	}
}

func TestSnippetScopedPerGuild(t *testing.T) {
	store := newSnippetStore(t, t.TempDir())
	store.Set("guild-1", domain.Snippet{Name: "greeting", Content: "Hello!"})

	if _, ok := store.Get("guild-2", "greeting"); ok {
		t.Fatal("snippet leaked across guilds")
	}
}

func TestSnippetRemove(t *testing.T) {
	store := newSnippetStore(t, t.TempDir())
	store.Set("guild-1", domain.Snippet{Name: "greeting", Content: "Hello!"})

	if err := store.Remove("guild-1", "greeting"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := store.Get("guild-1", "greeting"); ok {
		t.Fatal("removed snippet still resolves")
	}
	if err := store.Remove("guild-1", "greeting"); !util.HasCode(err, "NOT_FOUND") {
		t.Fatalf("second remove err = %v, want NOT_FOUND", err)
	}
}

func TestSnippetSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	store := newSnippetStore(t, dir)
	store.Set("guild-1", domain.Snippet{Name: "greeting", Content: "Hello!", CreatedBy: "staff-1"})

	reloaded := newSnippetStore(t, dir)
	snippet, ok := reloaded.Get("guild-1", "greeting")
	if !ok || snippet.Content != "Hello!" || snippet.CreatedBy != "staff-1" {
		t.Fatalf("reloaded snippet = %+v/%v", snippet, ok)
	}
}
