package storage

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"smartmailbox/internal/models"
)

// ReplyStore is the durable reply draft collection. Drafts live apart
// from messages so a message can exist without one and a draft can be
// regenerated without touching message history.
type ReplyStore struct {
	mu     sync.RWMutex
	path   string
	logger zerolog.Logger
	byID   map[string]models.ReplyDraft
}

func openReplies(path string, logger zerolog.Logger) (*ReplyStore, error) {
	var records []models.ReplyDraft
	if err := loadCollection(path, &records, logger); err != nil {
		return nil, err
	}
	byID := make(map[string]models.ReplyDraft, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}
	return &ReplyStore{path: path, logger: logger, byID: byID}, nil
}

// Upsert stores the draft, assigning an id when missing.
func (s *ReplyStore) Upsert(draft models.ReplyDraft) (models.ReplyDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if draft.ID == "" {
		draft.ID = uuid.NewString()
	}
	s.byID[draft.ID] = draft
	if err := s.persistLocked(); err != nil {
		return models.ReplyDraft{}, err
	}
	return draft, nil
}

// Get returns the draft with the given id.
func (s *ReplyStore) Get(id string) (models.ReplyDraft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	if !ok {
		return models.ReplyDraft{}, &Error{Kind: KindNotFound, Collection: "reply_drafts"}
	}
	return r, nil
}

// ForMessage returns the drafts linked to a message, newest first.
func (s *ReplyStore) ForMessage(messageID string) []models.ReplyDraft {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.ReplyDraft
	for _, r := range s.byID {
		if r.MessageID == messageID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].GeneratedAt.After(out[j].GeneratedAt)
	})
	return out
}

// Delete removes a single draft.
func (s *ReplyStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return &Error{Kind: KindNotFound, Collection: "reply_drafts"}
	}
	delete(s.byID, id)
	return s.persistLocked()
}

// DeleteForMessage removes every draft linked to a message. Used when a
// message is deleted.
func (s *ReplyStore) DeleteForMessage(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := false
	for id, r := range s.byID {
		if r.MessageID == messageID {
			delete(s.byID, id)
			removed = true
		}
	}
	if !removed {
		return nil
	}
	return s.persistLocked()
}

func (s *ReplyStore) persistLocked() error {
	records := make([]models.ReplyDraft, 0, len(s.byID))
	for _, r := range s.byID {
		records = append(records, r)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].GeneratedAt.After(records[j].GeneratedAt)
	})
	return saveCollection(s.path, records)
}
