package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// loadCollection reads a JSON collection file into v. A missing or empty
// file leaves v untouched. A file that fails to parse is preserved under
// a backup name and v is left untouched, so the caller starts with an
// empty collection instead of crashing.
func loadCollection(path string, v any, logger zerolog.Logger) error {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if len(raw) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw, v); err == nil {
		return nil
	}

	backup := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
	if renameErr := os.Rename(path, backup); renameErr != nil {
		return &Error{Kind: KindCorruptOnLoad, Collection: filepath.Base(path), Err: renameErr}
	}
	logger.Warn().
		Str("file", path).
		Str("backup", backup).
		Msg("Collection file corrupt, preserved backup and starting empty")
	return nil
}

// saveCollection writes v to path atomically: marshal to a temp file in
// the same directory, then rename over the target so readers never see a
// half-written file.
func saveCollection(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting mode on %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
