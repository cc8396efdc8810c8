package storage

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"smartmailbox/internal/models"
)

// maxLogEntries bounds the processing log so the file never grows
// without limit. Oldest entries fall off first.
const maxLogEntries = 1000

// LogStore is the append-only processing log, newest entries last on
// disk.
type LogStore struct {
	mu      sync.Mutex
	path    string
	logger  zerolog.Logger
	entries []models.ProcessingLog
}

func openLogs(path string, logger zerolog.Logger) (*LogStore, error) {
	var entries []models.ProcessingLog
	if err := loadCollection(path, &entries, logger); err != nil {
		return nil, err
	}
	return &LogStore{path: path, logger: logger, entries: entries}, nil
}

// Append records one processing outcome.
func (s *LogStore) Append(entry models.ProcessingLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	s.entries = append(s.entries, entry)
	if len(s.entries) > maxLogEntries {
		s.entries = s.entries[len(s.entries)-maxLogEntries:]
	}
	return saveCollection(s.path, s.entries)
}

// Recent returns up to limit entries, newest first. A non-positive limit
// returns everything.
func (s *LogStore) Recent(limit int) []models.ProcessingLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.ProcessingLog, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.entries[i])
	}
	return out
}
