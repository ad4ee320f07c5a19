// storage/file.go
package storage

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// FileStore keeps each document as <dir>/<name>.json.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.Dir, name+".json")
}

// Load never fails: missing, unreadable and corrupt files all come back empty.
func (s *FileStore) Load(_ context.Context, name string) (Document, error) {
	raw, err := os.ReadFile(s.path(name))
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("⚠️  [STORE] Failed to read %s, using empty document: %v", s.path(name), err)
		}
		return Document{}, nil
	}
	doc, err := decodeDocument(raw)
	if err != nil {
		log.Printf("⚠️  [STORE] Corrupt document %s, using empty document: %v", s.path(name), err)
		return Document{}, nil
	}
	return doc, nil
}

// Save writes to a temp file in the same directory and renames it over the
// target, so readers see either the old or the new document.
func (s *FileStore) Save(_ context.Context, name string, doc Document) error {
	if err := os.MkdirAll(s.Dir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	data, err := encodeDocument(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.Dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpName, s.path(name)); err != nil {
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}
