package storage

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore is a process-local Documents implementation. Documents are
// copied in and out so callers never share maps with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document)}
}

func (s *MemoryStore) Load(_ context.Context, name string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyDocument(s.docs[name]), nil
}

func (s *MemoryStore) Save(_ context.Context, name string, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[name] = copyDocument(doc)
	return nil
}

func copyDocument(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}
