package config

import (
	"encoding/json"
	"os"
	"sync"
)

// GuildConfig is the per-guild modmail setup, loaded once at startup and
// read-only to the core. A guild without an entry has modmail disabled.
type GuildConfig struct {
	GuildID          string   `json:"guildId"`
	ModmailChannelID string   `json:"modmailChannelId"`
	LogChannelID     string   `json:"logChannelId,omitempty"`
	StaffRoleID      string   `json:"staffRoleId"`
	UseThreads       bool     `json:"useThreads"`
	WebhookURL       string   `json:"webhookUrl,omitempty"`
	AdminChannelIDs  []string `json:"adminChannelIds,omitempty"`
}

// GuildStore holds guild configurations keyed by guild id.
type GuildStore struct {
	mu     sync.RWMutex
	guilds map[string]GuildConfig
}

// NewGuildStore creates an empty store.
func NewGuildStore() *GuildStore {
	return &GuildStore{guilds: make(map[string]GuildConfig)}
}

// LoadGuildStore reads guild configurations from a JSON file mapping
// guild id to config. A missing file yields an empty store, not an error.
func LoadGuildStore(path string) (*GuildStore, error) {
	store := NewGuildStore()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return nil, err
	}
	var raw map[string]GuildConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	for guildID, cfg := range raw {
		cfg.GuildID = guildID
		store.guilds[guildID] = cfg
	}
	return store, nil
}

// Get returns the configuration for a guild, if modmail is set up there.
func (s *GuildStore) Get(guildID string) (GuildConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.guilds[guildID]
	return cfg, ok
}

// Set registers or replaces a guild configuration. Used by tests and setup.
func (s *GuildStore) Set(cfg GuildConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guilds[cfg.GuildID] = cfg
}

// GuildIDs lists configured guilds.
func (s *GuildStore) GuildIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.guilds))
	for id := range s.guilds {
		ids = append(ids, id)
	}
	return ids
}

// BlacklistEntry records why a user was barred from opening tickets.
type BlacklistEntry struct {
	Reason        string `json:"reason"`
	BlacklistedBy string `json:"blacklistedBy,omitempty"`
	BlacklistedAt string `json:"blacklistedAt,omitempty"`
}

// Blacklist is the per-guild set of users barred from opening tickets.
type Blacklist struct {
	mu      sync.RWMutex
	entries map[string]map[string]BlacklistEntry
}

// NewBlacklist creates an empty blacklist.
func NewBlacklist() *Blacklist {
	return &Blacklist{entries: make(map[string]map[string]BlacklistEntry)}
}

// LoadBlacklist reads the blacklist file. A missing file yields an empty
// blacklist.
func LoadBlacklist(path string) (*Blacklist, error) {
	bl := NewBlacklist()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return bl, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &bl.entries); err != nil {
		return nil, err
	}
	return bl, nil
}

// Lookup returns the entry barring a user in any guild, checked before
// ticket creation.
func (b *Blacklist) Lookup(userID string) (BlacklistEntry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, users := range b.entries {
		if entry, ok := users[userID]; ok {
			return entry, true
		}
	}
	return BlacklistEntry{}, false
}

// Add bars a user in a guild.
func (b *Blacklist) Add(guildID, userID string, entry BlacklistEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.entries[guildID] == nil {
		b.entries[guildID] = make(map[string]BlacklistEntry)
	}
	b.entries[guildID][userID] = entry
}
