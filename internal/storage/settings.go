package storage

import (
	"sync"

	"github.com/rs/zerolog"

	"smartmailbox/internal/models"
)

// DefaultSettings returns the inference settings a fresh installation
// starts with.
func DefaultSettings() models.Settings {
	return models.Settings{
		ServerURL:      "http://localhost:11434",
		Model:          "llama3.2",
		Temperature:    0.7,
		MaxTokens:      1024,
		TimeoutSeconds: 60,
		ReplyTone:      "professional",
		NeedsReplyTag:  "needs-reply",
	}
}

// SettingsStore holds the runtime-mutable inference settings. Stored
// values are merged over the defaults on load, so settings added in
// later versions pick up their default without migration.
type SettingsStore struct {
	mu      sync.RWMutex
	path    string
	logger  zerolog.Logger
	current models.Settings
}

func openSettings(path string, logger zerolog.Logger) (*SettingsStore, error) {
	current := DefaultSettings()
	if err := loadCollection(path, &current, logger); err != nil {
		return nil, err
	}
	s := &SettingsStore{path: path, logger: logger, current: current}
	if err := saveCollection(path, current); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the current settings snapshot.
func (s *SettingsStore) Get() models.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update replaces the settings and persists them.
func (s *SettingsStore) Update(settings models.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := saveCollection(s.path, settings); err != nil {
		return err
	}
	s.current = settings
	return nil
}
