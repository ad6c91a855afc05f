package storage

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/modmail-service/internal/domain"
	"github.com/spec-kit/modmail-service/pkg/util"
)

func newTestTagStore(t *testing.T) *TagStore {
	t.Helper()
	store, err := NewTagStore(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("NewTagStore: %v", err)
	}
	return store
}

func TestTagAddGetRemove(t *testing.T) {
	store := newTestTagStore(t)
	tag := domain.Tag{
		Name:        "refund",
		Description: "payment refunds",
		Color:       "#ff0000",
		CreatedBy:   "staff-1",
		CreatedAt:   time.Now(),
	}

	if err := store.Add("guild-1", tag); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := store.Add("guild-1", domain.Tag{Name: "Refund"}); !util.HasCode(err, "CONFLICT") {
		t.Fatalf("duplicate add err = %v, want CONFLICT (case insensitive)", err)
	}
	if err := store.Add("guild-2", domain.Tag{Name: "refund"}); err != nil {
		t.Fatalf("same name in another guild should be allowed: %v", err)
	}

	got, ok := store.Get("guild-1", "REFUND")
	if !ok || got.Description != "payment refunds" {
		t.Fatalf("Get = %+v/%v", got, ok)
	}

	if err := store.Remove("guild-1", "refund"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := store.Remove("guild-1", "refund"); !util.HasCode(err, "NOT_FOUND") {
		t.Fatalf("removing absent tag err = %v, want NOT_FOUND", err)
	}
	if _, ok := store.Get("guild-1", "refund"); ok {
		t.Fatal("tag still present after removal")
	}
}

func TestTagUpdate(t *testing.T) {
	store := newTestTagStore(t)
	if err := store.Add("guild-1", domain.Tag{Name: "vip", Color: "#00ff00"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	updated, err := store.Update("guild-1", "vip", "priority members", "")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Description != "priority members" || updated.Color != "#00ff00" {
		t.Fatalf("Update = %+v", updated)
	}

	if _, err := store.Update("guild-1", "missing", "x", ""); !util.HasCode(err, "NOT_FOUND") {
		t.Fatalf("update of absent tag err = %v, want NOT_FOUND", err)
	}
}

func TestTagPersistence(t *testing.T) {
	dir := t.TempDir()
	store, err := NewTagStore(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("NewTagStore: %v", err)
	}
	if err := store.Add("guild-1", domain.Tag{Name: "spam"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	reloaded, err := NewTagStore(dir, zap.NewNop())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if tags := reloaded.GuildTags("guild-1"); len(tags) != 1 || tags[0].Name != "spam" {
		t.Fatalf("reloaded tags = %+v", tags)
	}
}
