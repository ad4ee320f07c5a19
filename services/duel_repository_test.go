package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"bubbles-duel/models"
	"bubbles-duel/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentRepositoryPersistsToFiles(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	repo := NewDocumentDuelRepository(storage.NewFileStore(dir))
	duel := &models.Duel{
		ID:           "d1",
		ExpiresAt:    100,
		BubbleValues: []int{10, 20},
		Players:      map[string]*models.PlayerEntry{"A": {UserID: "A", Username: "alice", PoppedIndices: []int{}}},
		Status:       models.DuelStatusWaiting,
	}
	require.NoError(t, repo.CreateDuel(ctx, duel, nil))
	require.Error(t, repo.CreateDuel(ctx, duel, nil), "duplicate id")
	_, err := repo.SubmitDuel(ctx, "d1", func(_ *models.Duel, cooldowns CooldownTable) error {
		cooldowns.Set(42, "A", "B")
		return nil
	})
	require.NoError(t, err)

	// a second repository over the same directory sees everything
	reopened := NewDocumentDuelRepository(storage.NewFileStore(dir))
	got, err := reopened.GetDuel(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, duel, got)

	at, ok, err := reopened.LastCooldown(ctx, "B")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), at)

	_, ok, err = reopened.LastCooldown(ctx, "C")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDocumentRepositoryUpdateRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentDuelRepository(storage.NewMemoryStore())
	require.NoError(t, repo.CreateDuel(ctx, &models.Duel{ID: "d1", Status: models.DuelStatusWaiting}, nil))

	boom := errors.New("rule violated")
	_, err := repo.UpdateDuel(ctx, "d1", func(d *models.Duel) error {
		d.Status = models.DuelStatusCompleted
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := repo.GetDuel(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.DuelStatusWaiting, got.Status)
	assert.NotNil(t, got.Players)

	_, err = repo.UpdateDuel(ctx, "missing", func(*models.Duel) error { return nil })
	assert.ErrorIs(t, err, ErrDuelNotFound)
}

func TestDocumentRepositoryIgnoresCorruptCooldown(t *testing.T) {
	ctx := context.Background()
	docs := storage.NewMemoryStore()
	require.NoError(t, docs.Save(ctx, storage.CooldownsDocument, storage.Document{
		"A": json.RawMessage(`"yesterday"`),
	}))

	_, ok, err := NewDocumentDuelRepository(docs).LastCooldown(ctx, "A")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDocumentRepositoryPrune(t *testing.T) {
	ctx := context.Background()
	docs := storage.NewMemoryStore()
	repo := NewDocumentDuelRepository(docs)

	require.NoError(t, repo.CreateDuel(ctx, &models.Duel{ID: "old", ExpiresAt: 10}, nil))
	require.NoError(t, repo.CreateDuel(ctx, &models.Duel{ID: "new", ExpiresAt: 1000}, nil))
	require.NoError(t, docs.Save(ctx, storage.CooldownsDocument, storage.Document{
		"A": json.RawMessage(`5`),
		"B": json.RawMessage(`500`),
	}))

	n, err := repo.PruneDuels(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = repo.GetDuel(ctx, "old")
	assert.ErrorIs(t, err, ErrDuelNotFound)
	_, err = repo.GetDuel(ctx, "new")
	assert.NoError(t, err)

	n, err = repo.PruneCooldowns(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = repo.PruneCooldowns(ctx, 100)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDocumentRepositorySubmitKeepsCooldownsOnError(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentDuelRepository(storage.NewMemoryStore())
	require.NoError(t, repo.CreateDuel(ctx, &models.Duel{ID: "d1", Status: models.DuelStatusInProgress}, nil))

	boom := errors.New("rule violated")
	_, err := repo.SubmitDuel(ctx, "d1", func(d *models.Duel, cooldowns CooldownTable) error {
		d.Status = models.DuelStatusCompleted
		cooldowns.Set(99, "A")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, ok, err := repo.LastCooldown(ctx, "A")
	require.NoError(t, err)
	assert.False(t, ok)
	got, err := repo.GetDuel(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.DuelStatusInProgress, got.Status)

	_, err = repo.SubmitDuel(ctx, "missing", func(*models.Duel, CooldownTable) error { return nil })
	assert.ErrorIs(t, err, ErrDuelNotFound)
}

func TestDocumentRepositoryCreateRunsCheckAgainstCooldowns(t *testing.T) {
	ctx := context.Background()
	docs := storage.NewMemoryStore()
	repo := NewDocumentDuelRepository(docs)
	require.NoError(t, docs.Save(ctx, storage.CooldownsDocument, storage.Document{
		"A": json.RawMessage(`1234`),
	}))

	refused := errors.New("cooling down")
	err := repo.CreateDuel(ctx, &models.Duel{ID: "d1"}, func(cooldowns CooldownTable) error {
		at, ok := cooldowns.Last("A")
		require.True(t, ok)
		assert.Equal(t, int64(1234), at)
		return refused
	})
	assert.ErrorIs(t, err, refused)

	_, err = repo.GetDuel(ctx, "d1")
	assert.ErrorIs(t, err, ErrDuelNotFound)
}
