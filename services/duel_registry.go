package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"bubbles-duel/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const defaultUsername = "Anonymous"

// SubmitResult is what a player learns right after submitting.
type SubmitResult struct {
	Total  int     `json:"total"`
	Status string  `json:"status"`
	Winner *string `json:"winner"`
}

// DuelRegistry implements the duel rules on top of a DuelRepository.
// It holds no duel state of its own; every call re-reads the repository.
type DuelRegistry struct {
	repo  DuelRepository
	clock clockwork.Clock

	rngMu sync.Mutex
	rng   *rand.Rand

	newID func() string
}

type RegistryOption func(*DuelRegistry)

// WithClock swaps the wall clock, mostly for clockwork.FakeClock in tests.
func WithClock(clock clockwork.Clock) RegistryOption {
	return func(r *DuelRegistry) { r.clock = clock }
}

// WithRand makes reward tables reproducible.
func WithRand(rng *rand.Rand) RegistryOption {
	return func(r *DuelRegistry) { r.rng = rng }
}

// WithIDGenerator overrides uuid-based duel ids.
func WithIDGenerator(fn func() string) RegistryOption {
	return func(r *DuelRegistry) { r.newID = fn }
}

func NewDuelRegistry(repo DuelRepository, opts ...RegistryOption) *DuelRegistry {
	r := &DuelRegistry{
		repo:  repo,
		clock: clockwork.NewRealClock(),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Clock exposes the registry's clock so the sweep scheduler can share it.
func (r *DuelRegistry) Clock() clockwork.Clock {
	return r.clock
}

// CreateDuel opens a new duel with a fresh reward table and the creator as
// the only player.
func (r *DuelRegistry) CreateDuel(ctx context.Context, userID, username string) (*models.Duel, error) {
	now := r.clock.Now()
	duel := &models.Duel{
		ID:           r.newID(),
		CreatedAt:    now.UnixMilli(),
		ExpiresAt:    now.Add(models.DuelDuration).UnixMilli(),
		BubbleValues: r.rewardTable(),
		Players: map[string]*models.PlayerEntry{
			userID: newPlayerEntry(userID, username),
		},
		Status: models.DuelStatusWaiting,
	}
	err := r.repo.CreateDuel(ctx, duel, func(cooldowns CooldownTable) error {
		return checkCooldown(cooldowns, userID, now)
	})
	if err != nil {
		if errors.Is(err, ErrCooldownActive) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to store duel: %w", err)
	}

	log.Printf("✅ [DUEL] Created duel %s for user %s", duel.ID, userID)
	return duel, nil
}

func (r *DuelRegistry) GetDuel(ctx context.Context, id string) (*models.Duel, error) {
	return r.repo.GetDuel(ctx, id)
}

// JoinDuel adds userID as the second player. Joining a duel you are already
// in succeeds without changes.
func (r *DuelRegistry) JoinDuel(ctx context.Context, id, userID, username string) (*models.Duel, error) {
	now := r.clock.Now()
	return r.repo.UpdateDuel(ctx, id, func(duel *models.Duel) error {
		if duel.Expired(now) {
			return ErrDuelExpired
		}
		if _, ok := duel.Players[userID]; !ok {
			if len(duel.Players) >= models.DuelMaxPlayers {
				return ErrDuelFull
			}
			duel.Players[userID] = newPlayerEntry(userID, username)
			log.Printf("👥 [DUEL] User %s joined duel %s", userID, id)
		}
		if duel.Status == models.DuelStatusWaiting && len(duel.Players) == models.DuelMaxPlayers {
			duel.Status = models.DuelStatusInProgress
		}
		return nil
	})
}

// Submit records a player's picks. When this submission is the second one,
// the duel completes, the winner is fixed and both players enter cooldown.
func (r *DuelRegistry) Submit(ctx context.Context, id, userID string, poppedIndices []int) (*SubmitResult, error) {
	duel, err := r.repo.GetDuel(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, ok := duel.Players[userID]; !ok {
		return nil, ErrNotParticipant
	}
	if len(poppedIndices) != models.DuelPickCount {
		return nil, fmt.Errorf("%w: exactly %d bubbles must be popped", ErrInvalidSubmission, models.DuelPickCount)
	}

	now := r.clock.Now()
	var (
		result    SubmitResult
		completed bool
	)
	// the cooldown check and the cooldown write share one critical section
	_, err = r.repo.SubmitDuel(ctx, id, func(duel *models.Duel, cooldowns CooldownTable) error {
		player, ok := duel.Players[userID]
		if !ok {
			return ErrNotParticipant
		}
		if err := checkCooldown(cooldowns, userID, now); err != nil {
			return err
		}
		if player.Submitted() || duel.Status == models.DuelStatusCompleted {
			return ErrAlreadySubmitted
		}

		total, err := scorePicks(duel.BubbleValues, poppedIndices)
		if err != nil {
			return err
		}
		submittedAt := now.UnixMilli()
		player.PoppedIndices = append([]int(nil), poppedIndices...)
		player.Total = &total
		player.SubmittedAt = &submittedAt

		if duel.BothSubmitted() {
			winner := decideWinner(duel)
			duel.Status = models.DuelStatusCompleted
			duel.Winner = &winner
			completed = true
			for pid := range duel.Players {
				cooldowns.Set(submittedAt, pid)
			}
		}

		result = SubmitResult{Total: total, Status: duel.Status, Winner: duel.Winner}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if completed {
		log.Printf("🏁 [DUEL] Duel %s completed, winner=%s", id, *result.Winner)
	}
	return &result, nil
}

// CooldownRemaining reports how long userID must still wait; zero when free.
func (r *DuelRegistry) CooldownRemaining(ctx context.Context, userID string) (time.Duration, error) {
	return r.cooldownRemaining(ctx, userID, r.clock.Now())
}

func (r *DuelRegistry) cooldownRemaining(ctx context.Context, userID string, now time.Time) (time.Duration, error) {
	last, ok, err := r.repo.LastCooldown(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load cooldown: %w", err)
	}
	if !ok {
		return 0, nil
	}
	return remainingSince(last, now), nil
}

func remainingSince(last int64, now time.Time) time.Duration {
	elapsed := now.Sub(time.UnixMilli(last))
	if elapsed >= models.DuelCooldownWindow {
		return 0
	}
	return models.DuelCooldownWindow - elapsed
}

func checkCooldown(cooldowns CooldownTable, userID string, now time.Time) error {
	last, ok := cooldowns.Last(userID)
	if !ok {
		return nil
	}
	if remaining := remainingSince(last, now); remaining > 0 {
		return &CooldownError{Remaining: remaining}
	}
	return nil
}

// SweepResult counts what a retention sweep removed.
type SweepResult struct {
	Duels     int
	Cooldowns int
}

// Sweep drops duels that expired more than retention ago and cooldown
// entries that can no longer block anyone.
func (r *DuelRegistry) Sweep(ctx context.Context, retention time.Duration) (SweepResult, error) {
	now := r.clock.Now()
	var res SweepResult

	n, err := r.repo.PruneDuels(ctx, now.Add(-retention).UnixMilli())
	if err != nil {
		return res, fmt.Errorf("failed to prune duels: %w", err)
	}
	res.Duels = n

	n, err = r.repo.PruneCooldowns(ctx, now.Add(-models.DuelCooldownWindow).UnixMilli())
	if err != nil {
		return res, fmt.Errorf("failed to prune cooldowns: %w", err)
	}
	res.Cooldowns = n
	return res, nil
}

// rewardTable draws DuelBubbleCount values uniformly from [DuelMinReward, DuelMaxReward].
func (r *DuelRegistry) rewardTable() []int {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()

	span := models.DuelMaxReward - models.DuelMinReward + 1
	values := make([]int, models.DuelBubbleCount)
	for i := range values {
		values[i] = models.DuelMinReward + r.rng.Intn(span)
	}
	return values
}

func newPlayerEntry(userID, username string) *models.PlayerEntry {
	if strings.TrimSpace(username) == "" {
		username = defaultUsername
	}
	return &models.PlayerEntry{
		UserID:        userID,
		Username:      username,
		PoppedIndices: []int{},
	}
}

func scorePicks(values []int, indices []int) (int, error) {
	total := 0
	for _, idx := range indices {
		if idx < 0 || idx >= len(values) {
			return 0, fmt.Errorf("%w: invalid bubble index %d", ErrInvalidSubmission, idx)
		}
		total += values[idx]
	}
	return total, nil
}

// decideWinner compares the two totals; equal totals give models.DuelTie.
func decideWinner(duel *models.Duel) string {
	ids := make([]string, 0, len(duel.Players))
	for id := range duel.Players {
		ids = append(ids, id)
	}
	a, b := ids[0], ids[1]
	at, bt := *duel.Players[a].Total, *duel.Players[b].Total
	switch {
	case at > bt:
		return a
	case bt > at:
		return b
	default:
		return models.DuelTie
	}
}
