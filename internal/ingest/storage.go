package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const maxKeyLength = 160

// Storage keeps the raw bytes of queued documents so a restart can dispatch or
// preview them again. Keys are derived from the record id and never reused.
type Storage interface {
	// Save stores the document of a record and returns its key
	Save(recordID, filename string, data []byte) (string, error)

	// Get reads the document stored under key
	Get(key string) ([]byte, error)

	// Delete drops the document stored under key
	Delete(key string) error
}

// LocalStorage keeps documents as files in one directory
type LocalStorage struct {
	dir string
}

// NewLocalStorage creates dir if needed
func NewLocalStorage(dir string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalStorage{dir: dir}, nil
}

// Save writes to a temporary file first, so a crash never leaves a truncated
// document behind for Restore to pick up.
func (l *LocalStorage) Save(recordID, filename string, data []byte) (string, error) {
	key := documentKey(recordID, filename)

	tmp, err := os.CreateTemp(l.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing document %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("writing document %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(l.dir, key)); err != nil {
		return "", fmt.Errorf("storing document %s: %w", key, err)
	}
	return key, nil
}

func (l *LocalStorage) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.dir, sanitizeFilename(key)))
	if err != nil {
		return nil, fmt.Errorf("reading document %s: %w", key, err)
	}
	return data, nil
}

// Delete treats a document that is already gone as deleted
func (l *LocalStorage) Delete(key string) error {
	err := os.Remove(filepath.Join(l.dir, sanitizeFilename(key)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting document %s: %w", key, err)
	}
	return nil
}

// documentKey is "<record id>_<upload name>", cut to maxKeyLength while keeping
// the extension so previews still get a sensible content type.
func documentKey(recordID, filename string) string {
	key := sanitizeFilename(recordID + "_" + sanitizeFilename(filename))
	if len(key) <= maxKeyLength {
		return key
	}
	ext := filepath.Ext(key)
	if len(ext) > 16 {
		ext = ""
	}
	return strings.ToValidUTF8(key[:maxKeyLength-len(ext)], "") + ext
}

// sanitizeFilename keeps the base name and replaces characters that are unsafe in paths
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "document"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, strings.ContainsRune(`<>:"|?*`, r):
			return '_'
		}
		return r
	}, name)
}
