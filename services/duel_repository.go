package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"bubbles-duel/models"
	"bubbles-duel/storage"
)

// DuelRepository is the durable side of the duel registry.
//
// UpdateDuel must be linearizable per duel id: fn sees the latest committed
// state and its changes are committed before any other update of the same
// duel starts. If fn returns an error nothing is written.
//
// CreateDuel and SubmitDuel additionally hold the cooldown entries of the
// duel's players for the whole callback, so a cooldown read there cannot go
// stale before the matching write commits.
type DuelRepository interface {
	// CreateDuel stores a new duel. check may be nil.
	CreateDuel(ctx context.Context, duel *models.Duel, check func(cooldowns CooldownTable) error) error
	GetDuel(ctx context.Context, id string) (*models.Duel, error)
	UpdateDuel(ctx context.Context, id string, fn func(duel *models.Duel) error) (*models.Duel, error)
	SubmitDuel(ctx context.Context, id string, fn func(duel *models.Duel, cooldowns CooldownTable) error) (*models.Duel, error)

	// LastCooldown returns the user's last cooldown timestamp (epoch ms).
	LastCooldown(ctx context.Context, userID string) (int64, bool, error)

	PruneDuels(ctx context.Context, expiredBefore int64) (int, error)
	PruneCooldowns(ctx context.Context, before int64) (int, error)
}

// CooldownTable is the cooldown state visible inside CreateDuel and
// SubmitDuel. Set values are written together with the duel.
type CooldownTable interface {
	Last(userID string) (int64, bool)
	Set(at int64, userIDs ...string)
}

type cooldownTable struct {
	last    map[string]int64
	changed map[string]int64
}

func newCooldownTable() *cooldownTable {
	return &cooldownTable{last: map[string]int64{}, changed: map[string]int64{}}
}

func (t *cooldownTable) Last(userID string) (int64, bool) {
	if at, ok := t.changed[userID]; ok {
		return at, true
	}
	at, ok := t.last[userID]
	return at, ok
}

func (t *cooldownTable) Set(at int64, userIDs ...string) {
	for _, id := range userIDs {
		t.changed[id] = at
	}
}

// DocumentDuelRepository stores duels and cooldowns as two whole documents.
// Every mutation of a document happens under that document's mutex, which
// is what makes UpdateDuel linearizable within one process. When both are
// needed, duelsMu is taken before cooldownsMu.
type DocumentDuelRepository struct {
	docs storage.Documents

	duelsMu     sync.Mutex
	cooldownsMu sync.Mutex
}

func NewDocumentDuelRepository(docs storage.Documents) *DocumentDuelRepository {
	return &DocumentDuelRepository{docs: docs}
}

func (r *DocumentDuelRepository) CreateDuel(ctx context.Context, duel *models.Duel, check func(cooldowns CooldownTable) error) error {
	r.duelsMu.Lock()
	defer r.duelsMu.Unlock()

	doc, err := r.docs.Load(ctx, storage.DuelsDocument)
	if err != nil {
		return err
	}
	if _, exists := doc[duel.ID]; exists {
		return fmt.Errorf("duel %s already exists", duel.ID)
	}
	if check != nil {
		r.cooldownsMu.Lock()
		defer r.cooldownsMu.Unlock()

		_, table, err := r.loadCooldowns(ctx)
		if err != nil {
			return err
		}
		if err := check(table); err != nil {
			return err
		}
	}
	raw, err := json.Marshal(duel)
	if err != nil {
		return err
	}
	doc[duel.ID] = raw
	return r.docs.Save(ctx, storage.DuelsDocument, doc)
}

func (r *DocumentDuelRepository) GetDuel(ctx context.Context, id string) (*models.Duel, error) {
	doc, err := r.docs.Load(ctx, storage.DuelsDocument)
	if err != nil {
		return nil, err
	}
	return decodeDuel(doc, id)
}

func (r *DocumentDuelRepository) UpdateDuel(ctx context.Context, id string, fn func(duel *models.Duel) error) (*models.Duel, error) {
	r.duelsMu.Lock()
	defer r.duelsMu.Unlock()

	doc, err := r.docs.Load(ctx, storage.DuelsDocument)
	if err != nil {
		return nil, err
	}
	duel, err := decodeDuel(doc, id)
	if err != nil {
		return nil, err
	}
	if err := fn(duel); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(duel)
	if err != nil {
		return nil, err
	}
	doc[id] = raw
	if err := r.docs.Save(ctx, storage.DuelsDocument, doc); err != nil {
		return nil, err
	}
	return duel, nil
}

func (r *DocumentDuelRepository) LastCooldown(ctx context.Context, userID string) (int64, bool, error) {
	doc, err := r.docs.Load(ctx, storage.CooldownsDocument)
	if err != nil {
		return 0, false, err
	}
	raw, ok := doc[userID]
	if !ok {
		return 0, false, nil
	}
	var at int64
	if err := json.Unmarshal(raw, &at); err != nil {
		// unreadable entries count as no cooldown, like a corrupt document
		return 0, false, nil
	}
	return at, true, nil
}

func (r *DocumentDuelRepository) SubmitDuel(ctx context.Context, id string, fn func(duel *models.Duel, cooldowns CooldownTable) error) (*models.Duel, error) {
	r.duelsMu.Lock()
	defer r.duelsMu.Unlock()
	r.cooldownsMu.Lock()
	defer r.cooldownsMu.Unlock()

	doc, err := r.docs.Load(ctx, storage.DuelsDocument)
	if err != nil {
		return nil, err
	}
	duel, err := decodeDuel(doc, id)
	if err != nil {
		return nil, err
	}
	cooldownDoc, table, err := r.loadCooldowns(ctx)
	if err != nil {
		return nil, err
	}
	if err := fn(duel, table); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(duel)
	if err != nil {
		return nil, err
	}
	doc[id] = raw
	if err := r.docs.Save(ctx, storage.DuelsDocument, doc); err != nil {
		return nil, err
	}
	if len(table.changed) == 0 {
		return duel, nil
	}
	for userID, at := range table.changed {
		raw, err := json.Marshal(at)
		if err != nil {
			return nil, err
		}
		cooldownDoc[userID] = raw
	}
	if err := r.docs.Save(ctx, storage.CooldownsDocument, cooldownDoc); err != nil {
		return nil, fmt.Errorf("failed to record cooldowns: %w", err)
	}
	return duel, nil
}

// loadCooldowns must be called with cooldownsMu held.
func (r *DocumentDuelRepository) loadCooldowns(ctx context.Context) (storage.Document, *cooldownTable, error) {
	doc, err := r.docs.Load(ctx, storage.CooldownsDocument)
	if err != nil {
		return nil, nil, err
	}
	table := newCooldownTable()
	for userID, raw := range doc {
		var at int64
		if err := json.Unmarshal(raw, &at); err != nil {
			continue
		}
		table.last[userID] = at
	}
	return doc, table, nil
}

func (r *DocumentDuelRepository) PruneDuels(ctx context.Context, expiredBefore int64) (int, error) {
	r.duelsMu.Lock()
	defer r.duelsMu.Unlock()

	doc, err := r.docs.Load(ctx, storage.DuelsDocument)
	if err != nil {
		return 0, err
	}
	removed := 0
	for id, raw := range doc {
		var d struct {
			ExpiresAt int64 `json:"expiresAt"`
		}
		if err := json.Unmarshal(raw, &d); err != nil || d.ExpiresAt < expiredBefore {
			delete(doc, id)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, r.docs.Save(ctx, storage.DuelsDocument, doc)
}

func (r *DocumentDuelRepository) PruneCooldowns(ctx context.Context, before int64) (int, error) {
	r.cooldownsMu.Lock()
	defer r.cooldownsMu.Unlock()

	doc, err := r.docs.Load(ctx, storage.CooldownsDocument)
	if err != nil {
		return 0, err
	}
	removed := 0
	for id, raw := range doc {
		var at int64
		if err := json.Unmarshal(raw, &at); err != nil || at < before {
			delete(doc, id)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, r.docs.Save(ctx, storage.CooldownsDocument, doc)
}

func decodeDuel(doc storage.Document, id string) (*models.Duel, error) {
	raw, ok := doc[id]
	if !ok {
		return nil, ErrDuelNotFound
	}
	var duel models.Duel
	if err := json.Unmarshal(raw, &duel); err != nil {
		return nil, fmt.Errorf("failed to decode duel %s: %w", id, err)
	}
	if duel.Players == nil {
		duel.Players = map[string]*models.PlayerEntry{}
	}
	return &duel, nil
}
