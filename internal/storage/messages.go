package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"smartmailbox/internal/models"
)

// Filter narrows List results. Zero values mean no constraint.
type Filter struct {
	TagID string
	Since time.Time
	Until time.Time
}

// MessageStore is the durable message collection. It also owns the
// retained copies of the original message files.
type MessageStore struct {
	mu       sync.RWMutex
	path     string
	emailDir string
	logger   zerolog.Logger
	byID     map[string]models.Message
}

func openMessages(path, emailDir string, logger zerolog.Logger) (*MessageStore, error) {
	var records []models.Message
	if err := loadCollection(path, &records, logger); err != nil {
		return nil, err
	}
	byID := make(map[string]models.Message, len(records))
	for _, m := range records {
		byID[m.ID] = m
	}
	return &MessageStore{path: path, emailDir: emailDir, logger: logger, byID: byID}, nil
}

// Upsert stores the message. A message whose content hash matches an
// existing record replaces that record in place, keeping the original id
// and received time, so re-ingesting the same file never creates a
// duplicate. The stored record is returned.
func (s *MessageStore) Upsert(msg models.Message) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.findByHashLocked(msg.FileHash); ok {
		msg.ID = existing.ID
		msg.DateReceived = existing.DateReceived
	} else if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.DateReceived.IsZero() {
		msg.DateReceived = time.Now().UTC()
	}

	s.byID[msg.ID] = msg
	if err := s.persistLocked(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// Get returns the message with the given id.
func (s *MessageStore) Get(id string) (models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	if !ok {
		return models.Message{}, &Error{Kind: KindNotFound, Collection: "messages"}
	}
	return m, nil
}

// FindByHash returns the message whose content hash matches, if any.
func (s *MessageStore) FindByHash(hash string) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findByHashLocked(hash)
}

func (s *MessageStore) findByHashLocked(hash string) (models.Message, bool) {
	if hash == "" {
		return models.Message{}, false
	}
	for _, m := range s.byID {
		if m.FileHash == hash {
			return m, true
		}
	}
	return models.Message{}, false
}

// Delete removes the message and its retained file copy, when that copy
// lives inside the store's email directory.
func (s *MessageStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[id]
	if !ok {
		return &Error{Kind: KindNotFound, Collection: "messages"}
	}
	delete(s.byID, id)
	if err := s.persistLocked(); err != nil {
		return err
	}

	if m.FilePath != "" && strings.HasPrefix(filepath.Clean(m.FilePath), s.emailDir+string(os.PathSeparator)) {
		if err := os.Remove(m.FilePath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("file", m.FilePath).Msg("Failed to remove retained message file")
		}
	}
	return nil
}

// List returns messages matching the filter, newest received first.
func (s *MessageStore) List(f Filter) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Message, 0, len(s.byID))
	for _, m := range s.byID {
		if f.TagID != "" && !m.HasTag(f.TagID) {
			continue
		}
		if !f.Since.IsZero() && m.DateReceived.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && m.DateReceived.After(f.Until) {
			continue
		}
		out = append(out, m)
	}
	sortByReceivedDesc(out)
	return out
}

// Search returns messages whose subject, sender or body contains the
// query, case-insensitively, newest received first.
func (s *MessageStore) Search(query string) []models.Message {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return s.List(Filter{})
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Message
	for _, m := range s.byID {
		if messageMatches(m, q) {
			out = append(out, m)
		}
	}
	sortByReceivedDesc(out)
	return out
}

func messageMatches(m models.Message, q string) bool {
	return strings.Contains(strings.ToLower(m.Subject), q) ||
		strings.Contains(strings.ToLower(m.Sender), q) ||
		strings.Contains(strings.ToLower(m.SenderName), q) ||
		strings.Contains(strings.ToLower(m.BodyText), q) ||
		strings.Contains(strings.ToLower(m.BodyHTML), q)
}

// Count returns the number of stored messages.
func (s *MessageStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Retain copies the raw bytes of an ingested file into the store's email
// directory so processing can later be replayed from the original bytes.
// Name collisions get a numeric suffix. The retained path is returned.
func (s *MessageStore) Retain(srcPath string, raw []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := filepath.Base(srcPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	dest := filepath.Join(s.emailDir, base)
	for n := 1; ; n++ {
		if _, err := os.Stat(dest); os.IsNotExist(err) {
			break
		}
		dest = filepath.Join(s.emailDir, fmt.Sprintf("%s_%d%s", stem, n, ext))
	}

	if err := os.WriteFile(dest, raw, 0o644); err != nil {
		return "", fmt.Errorf("retaining %s: %w", base, err)
	}
	return dest, nil
}

func (s *MessageStore) persistLocked() error {
	records := make([]models.Message, 0, len(s.byID))
	for _, m := range s.byID {
		records = append(records, m)
	}
	sortByReceivedDesc(records)
	return saveCollection(s.path, records)
}

func sortByReceivedDesc(msgs []models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].DateReceived.Equal(msgs[j].DateReceived) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].DateReceived.After(msgs[j].DateReceived)
	})
}
