// Package storage is the JSON-backed durable store for messages, tags,
// reply drafts, settings and the processing log. Each collection lives
// in its own file under the data directory, is guarded by its own lock,
// and is written atomically. A collection file that fails to parse on
// load is renamed to a timestamped backup and the collection starts
// empty, so one corrupt file never takes the application down.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

const (
	messagesFile = "messages.json"
	tagsFile     = "tags.json"
	repliesFile  = "reply_drafts.json"
	logsFile     = "processing_log.json"

	// SettingsFile is exported so callers can detect a first run before
	// opening the store.
	SettingsFile = "settings.json"

	// emailsDirName holds retained copies of ingested message files.
	emailsDirName = "emails"
)

// Store bundles the durable collections.
type Store struct {
	Messages *MessageStore
	Tags     *TagStore
	Replies  *ReplyStore
	Settings *SettingsStore
	Logs     *LogStore

	dataDir string
}

// Open prepares the data directory and loads every collection.
func Open(dataDir string, logger zerolog.Logger) (*Store, error) {
	emailDir := filepath.Join(dataDir, emailsDirName)
	if err := os.MkdirAll(emailDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	logger = logger.With().Str("component", "storage").Logger()

	messages, err := openMessages(filepath.Join(dataDir, messagesFile), emailDir, logger)
	if err != nil {
		return nil, err
	}
	tags, err := openTags(filepath.Join(dataDir, tagsFile), logger)
	if err != nil {
		return nil, err
	}
	replies, err := openReplies(filepath.Join(dataDir, repliesFile), logger)
	if err != nil {
		return nil, err
	}
	settings, err := openSettings(filepath.Join(dataDir, SettingsFile), logger)
	if err != nil {
		return nil, err
	}
	logs, err := openLogs(filepath.Join(dataDir, logsFile), logger)
	if err != nil {
		return nil, err
	}

	return &Store{
		Messages: messages,
		Tags:     tags,
		Replies:  replies,
		Settings: settings,
		Logs:     logs,
		dataDir:  dataDir,
	}, nil
}

// DataDir returns the directory backing this store.
func (s *Store) DataDir() string { return s.dataDir }
