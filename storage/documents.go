// Package storage persists named JSON documents, each a mapping from key to record.
package storage

import (
	"context"
	"encoding/json"
)

// Document names used by the duel service.
const (
	DuelsDocument     = "duels"
	CooldownsDocument = "duel_cooldowns"
)

// Document is the decoded form of one stored mapping.
type Document map[string]json.RawMessage

// Documents loads and saves whole documents. Save overwrites prior content
// entirely and no locking is provided: callers must serialize their own
// read-modify-write cycles.
type Documents interface {
	// Load returns the last saved document, or an empty one when it is
	// absent or cannot be parsed.
	Load(ctx context.Context, name string) (Document, error)
	Save(ctx context.Context, name string, doc Document) error
}

func decodeDocument(raw []byte) (Document, error) {
	doc := Document{}
	if len(raw) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, err
	}
	// "null" decodes to a nil map
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

func encodeDocument(doc Document) ([]byte, error) {
	if doc == nil {
		doc = Document{}
	}
	return json.MarshalIndent(doc, "", "  ")
}
