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

const tagsFile = "tags.json"

// TagStore holds named, colored, described labels scoped per guild. Tag
// names are unique per guild, case insensitive. Removing a tag leaves
// historical references on tickets intact; it only blocks future use of
// the name until it is recreated.
type TagStore struct {
	mu     sync.RWMutex
	path   string
	logger *zap.Logger
	tags   map[string][]domain.Tag
}

// NewTagStore loads or initializes the registry under dir.
func NewTagStore(dir string, logger *zap.Logger) (*TagStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, util.NewPersistenceError("create data directory", err)
	}
	s := &TagStore{
		path:   filepath.Join(dir, tagsFile),
		logger: logger,
		tags:   make(map[string][]domain.Tag),
	}
	data, err := os.ReadFile(s.path)
	if err == nil {
		if err := json.Unmarshal(data, &s.tags); err != nil {
			logger.Error("tag registry corrupt, starting fresh", zap.Error(err))
			s.tags = make(map[string][]domain.Tag)
		}
	} else if !os.IsNotExist(err) {
		logger.Error("failed to read tag registry", zap.Error(err))
	}
	return s, nil
}

func (s *TagStore) save() {
	data, err := json.MarshalIndent(s.tags, "", "  ")
	if err != nil {
		s.logger.Error("failed to encode tag registry", zap.Error(err))
		return
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		s.logger.Error("failed to write tag registry", zap.Error(err))
	}
}

// GuildTags lists a guild's tags.
func (s *TagStore) GuildTags(guildID string) []domain.Tag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Tag(nil), s.tags[guildID]...)
}

// Get returns a guild tag by name.
func (s *TagStore) Get(guildID, name string) (domain.Tag, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, tag := range s.tags[guildID] {
		if strings.EqualFold(tag.Name, name) {
			return tag, true
		}
	}
	return domain.Tag{}, false
}

// Add registers a new tag; a name collision is a conflict.
func (s *TagStore) Add(guildID string, tag domain.Tag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tags[guildID] {
		if strings.EqualFold(existing.Name, tag.Name) {
			return util.NewConflict("tag already exists", map[string]any{"name": tag.Name})
		}
	}
	s.tags[guildID] = append(s.tags[guildID], tag)
	s.save()
	return nil
}

// Remove deletes a tag by name.
func (s *TagStore) Remove(guildID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tags := s.tags[guildID]
	for i, tag := range tags {
		if strings.EqualFold(tag.Name, name) {
			s.tags[guildID] = append(tags[:i], tags[i+1:]...)
			s.save()
			return nil
		}
	}
	return util.NewNotFound("tag", map[string]any{"name": name})
}

// Update modifies a tag's description or color in place.
func (s *TagStore) Update(guildID, name, description, color string) (domain.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tags := s.tags[guildID]
	for i, tag := range tags {
		if strings.EqualFold(tag.Name, name) {
			if description != "" {
				tags[i].Description = description
			}
			if color != "" {
				tags[i].Color = color
			}
			s.save()
			return tags[i], nil
		}
	}
	return domain.Tag{}, util.NewNotFound("tag", map[string]any{"name": name})
}
