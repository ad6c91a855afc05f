package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadGuildStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	payload := `{
  "guild-1": {"modmailChannelId": "chan-1", "staffRoleId": "role-1", "useThreads": true},
  "guild-2": {"modmailChannelId": "chan-2", "staffRoleId": "role-2"}
}`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	store, err := LoadGuildStore(path)
	if err != nil {
		t.Fatalf("LoadGuildStore: %v", err)
	}
	if len(store.GuildIDs()) != 2 {
		t.Fatalf("guilds = %v", store.GuildIDs())
	}

	cfg, ok := store.Get("guild-1")
	if !ok {
		t.Fatal("guild-1 missing")
	}
	// The map key is authoritative for the guild id.
	if cfg.GuildID != "guild-1" || cfg.ModmailChannelID != "chan-1" || !cfg.UseThreads {
		t.Fatalf("guild-1 config = %+v", cfg)
	}
	if _, ok := store.Get("guild-unknown"); ok {
		t.Fatal("unknown guild resolved")
	}
}

func TestLoadGuildStoreMissingFile(t *testing.T) {
	store, err := LoadGuildStore(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("missing file should yield empty store, got %v", err)
	}
	if len(store.GuildIDs()) != 0 {
		t.Fatalf("guilds = %v, want none", store.GuildIDs())
	}
}

func TestLoadBlacklist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blacklist.json")
	payload := `{"guild-1": {"user-9": {"reason": "spam", "blacklistedBy": "staff-1"}}}`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write blacklist: %v", err)
	}

	bl, err := LoadBlacklist(path)
	if err != nil {
		t.Fatalf("LoadBlacklist: %v", err)
	}
	entry, barred := bl.Lookup("user-9")
	if !barred || entry.Reason != "spam" {
		t.Fatalf("lookup = %+v/%v", entry, barred)
	}
	if _, barred := bl.Lookup("user-1"); barred {
		t.Fatal("clean user reported barred")
	}

	bl.Add("guild-2", "user-1", BlacklistEntry{Reason: "abuse"})
	if _, barred := bl.Lookup("user-1"); !barred {
		t.Fatal("added user not barred")
	}
}

func TestLoadBlacklistMissingFile(t *testing.T) {
	bl, err := LoadBlacklist(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("missing file should yield empty blacklist, got %v", err)
	}
	if _, barred := bl.Lookup("anyone"); barred {
		t.Fatal("empty blacklist barred a user")
	}
}
