package storage

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"smartmailbox/internal/models"
)

// TagStore is the durable tag collection. A fresh store is seeded with
// the built-in system tags.
type TagStore struct {
	mu     sync.RWMutex
	path   string
	logger zerolog.Logger
	byID   map[string]models.Tag
}

func openTags(path string, logger zerolog.Logger) (*TagStore, error) {
	var records []models.Tag
	if err := loadCollection(path, &records, logger); err != nil {
		return nil, err
	}

	s := &TagStore{path: path, logger: logger, byID: make(map[string]models.Tag, len(records))}
	for _, t := range records {
		s.byID[t.ID] = t
	}

	if len(s.byID) == 0 {
		for _, t := range defaultTags() {
			s.byID[t.ID] = t
		}
		if err := s.persistLocked(); err != nil {
			return nil, err
		}
		logger.Info().Int("count", len(s.byID)).Msg("Seeded default system tags")
	}
	return s, nil
}

// defaultTags are the system tags a fresh installation starts with.
func defaultTags() []models.Tag {
	now := time.Now().UTC()
	mk := func(id, display, color, prompt string) models.Tag {
		return models.Tag{
			ID:          id,
			Name:        id,
			DisplayName: display,
			Color:       color,
			IsSystem:    true,
			IsActive:    true,
			Prompt:      prompt,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}
	return []models.Tag{
		mk("important", "Important", "#FF0000",
			"Decide whether this email is urgent or contains highly important content."),
		mk("needs-reply", "Needs Reply", "#0000FF",
			"Decide whether this email explicitly or implicitly asks for a reply."),
		mk("spam", "Spam", "#808080",
			"Decide whether this email is unsolicited spam or junk mail."),
		mk("advertisement", "Advertisement", "#FFA500",
			"Decide whether this email is marketing or advertising for a product or service."),
	}
}

// Create stores a new tag. Names must be unique across system and user
// tags; a clash is a write conflict.
func (s *TagStore) Create(tag models.Tag) (models.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.byID {
		if strings.EqualFold(existing.Name, tag.Name) {
			return models.Tag{}, &Error{Kind: KindWriteConflict, Collection: "tags"}
		}
	}

	if tag.ID == "" {
		tag.ID = uuid.NewString()
	}
	tag.IsSystem = false
	now := time.Now().UTC()
	tag.CreatedAt = now
	tag.UpdatedAt = now

	s.byID[tag.ID] = tag
	if err := s.persistLocked(); err != nil {
		return models.Tag{}, err
	}
	return tag, nil
}

// Update modifies an existing tag. The system flag and creation time of
// the stored record are preserved.
func (s *TagStore) Update(tag models.Tag) (models.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[tag.ID]
	if !ok {
		return models.Tag{}, &Error{Kind: KindNotFound, Collection: "tags"}
	}

	// A rename must not collide with another tag's name.
	for id, other := range s.byID {
		if id != tag.ID && strings.EqualFold(other.Name, tag.Name) {
			return models.Tag{}, &Error{Kind: KindWriteConflict, Collection: "tags"}
		}
	}

	tag.IsSystem = existing.IsSystem
	tag.CreatedAt = existing.CreatedAt
	tag.UpdatedAt = time.Now().UTC()

	s.byID[tag.ID] = tag
	if err := s.persistLocked(); err != nil {
		return models.Tag{}, err
	}
	return tag, nil
}

// Delete removes a user tag. System tags cannot be deleted; deactivate
// them instead.
func (s *TagStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tag, ok := s.byID[id]
	if !ok {
		return &Error{Kind: KindNotFound, Collection: "tags"}
	}
	if tag.IsSystem {
		return &Error{Kind: KindWriteConflict, Collection: "tags"}
	}

	delete(s.byID, id)
	return s.persistLocked()
}

// Get returns the tag with the given id.
func (s *TagStore) Get(id string) (models.Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	if !ok {
		return models.Tag{}, &Error{Kind: KindNotFound, Collection: "tags"}
	}
	return t, nil
}

// List returns every tag, system tags first, then by name.
func (s *TagStore) List() []models.Tag {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Tag, 0, len(s.byID))
	for _, t := range s.byID {
		out = append(out, t)
	}
	sortTags(out)
	return out
}

// Active returns the tags currently eligible for classification.
func (s *TagStore) Active() []models.Tag {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Tag
	for _, t := range s.byID {
		if t.IsActive {
			out = append(out, t)
		}
	}
	sortTags(out)
	return out
}

func (s *TagStore) persistLocked() error {
	records := make([]models.Tag, 0, len(s.byID))
	for _, t := range s.byID {
		records = append(records, t)
	}
	sortTags(records)
	return saveCollection(s.path, records)
}

func sortTags(tags []models.Tag) {
	sort.SliceStable(tags, func(i, j int) bool {
		if tags[i].IsSystem != tags[j].IsSystem {
			return tags[i].IsSystem
		}
		return tags[i].Name < tags[j].Name
	})
}
