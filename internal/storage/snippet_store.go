package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/modmail-service/internal/domain"
	"github.com/spec-kit/modmail-service/pkg/util"
)

const snippetsFile = "snippets.json"

// SnippetStore holds canned staff responses per guild. Names are matched
// case insensitively; Set overwrites an existing snippet of the same name,
// so re-adding is how a snippet is edited.
type SnippetStore struct {
	mu       sync.RWMutex
	path     string
	logger   *zap.Logger
	snippets map[string][]domain.Snippet
}

// NewSnippetStore loads or initializes the registry under dir.
func NewSnippetStore(dir string, logger *zap.Logger) (*SnippetStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, util.NewPersistenceError("create data directory", err)
	}
	s := &SnippetStore{
		path:     filepath.Join(dir, snippetsFile),
		logger:   logger,
		snippets: make(map[string][]domain.Snippet),
	}
	data, err := os.ReadFile(s.path)
	if err == nil {
		if err := json.Unmarshal(data, &s.snippets); err != nil {
			logger.Error("snippet registry corrupt, starting fresh", zap.Error(err))
			s.snippets = make(map[string][]domain.Snippet)
		}
	} else if !os.IsNotExist(err) {
		logger.Error("failed to read snippet registry", zap.Error(err))
	}
	return s, nil
}

func (s *SnippetStore) save() {
	data, err := json.MarshalIndent(s.snippets, "", "  ")
	if err != nil {
		s.logger.Error("failed to encode snippet registry", zap.Error(err))
		return
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		s.logger.Error("failed to write snippet registry", zap.Error(err))
	}
}

// GuildSnippets lists a guild's snippets.
func (s *SnippetStore) GuildSnippets(guildID string) []domain.Snippet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Snippet(nil), s.snippets[guildID]...)
}

// Get returns a guild snippet by name.
func (s *SnippetStore) Get(guildID, name string) (domain.Snippet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, snippet := range s.snippets[guildID] {
		if strings.EqualFold(snippet.Name, name) {
			return snippet, true
		}
	}
	return domain.Snippet{}, false
}

// Set registers a snippet, replacing any existing one of the same name.
func (s *SnippetStore) Set(guildID string, snippet domain.Snippet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.snippets[guildID] {
		if strings.EqualFold(existing.Name, snippet.Name) {
			s.snippets[guildID][i] = snippet
			s.save()
			return
		}
	}
	s.snippets[guildID] = append(s.snippets[guildID], snippet)
	s.save()
}

// Remove deletes a snippet by name.
func (s *SnippetStore) Remove(guildID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snippets := s.snippets[guildID]
	for i, snippet := range snippets {
		if strings.EqualFold(snippet.Name, name) {
			s.snippets[guildID] = append(snippets[:i], snippets[i+1:]...)
			s.save()
			return nil
		}
	}
	return util.NewNotFound("snippet", map[string]any{"name": name})
}
