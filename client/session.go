package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"bubbles-duel/models"
)

type State string

const (
	StateIdle      State = "idle"
	StateCreated   State = "created"
	StateJoined    State = "joined"
	StatePicking   State = "picking"
	StateWaiting   State = "waiting" // submitted, opponent still playing
	StateCompleted State = "completed"
	StateFailed    State = "failed" // cooldown or expiry ended the attempt
)

var (
	ErrWrongState  = errors.New("action not allowed in current state")
	ErrInvalidPick = errors.New("invalid pick")
)

// Session is one player's walk through a single duel: create or join,
// pick exactly five distinct bubbles, submit once, then wait for the result.
// Bubble values are kept private until the duel is over.
type Session struct {
	client   *Client
	userID   string
	username string

	mu      sync.Mutex
	state   State
	duelID  string
	values  []int
	picks   []int
	total   *int
	winner  *string
	lastErr error
}

func NewSession(c *Client, userID, username string) *Session {
	return &Session{client: c, userID: userID, username: username, state: StateIdle}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) DuelID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duelID
}

// Targets is the number of bubbles the player can pick from.
func (s *Session) Targets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}

func (s *Session) Picks() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.picks...)
}

// Total is the player's score once submitted.
func (s *Session) Total() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.total == nil {
		return 0, false
	}
	return *s.total, true
}

// Winner is the winning user id or models.DuelTie once completed.
func (s *Session) Winner() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.winner == nil {
		return "", false
	}
	return *s.winner, true
}

// Err is the error that moved the session to StateFailed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Create starts a new duel; its id is the join token to share.
func (s *Session) Create(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return "", ErrWrongState
	}

	created, err := s.client.CreateDuel(ctx, s.userID, s.username)
	if err != nil {
		return "", s.fail(err)
	}
	if err := s.load(ctx, created.ID); err != nil {
		return "", s.fail(err)
	}
	s.state = StateCreated
	return created.ID, nil
}

// Join enters an existing duel by its shared id.
func (s *Session) Join(ctx context.Context, duelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return ErrWrongState
	}

	if err := s.client.JoinDuel(ctx, duelID, s.userID, s.username); err != nil {
		return s.fail(err)
	}
	if err := s.load(ctx, duelID); err != nil {
		return s.fail(err)
	}
	s.state = StateJoined
	return nil
}

// Pick selects one bubble. Picks are distinct and capped at five.
func (s *Session) Pick(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateCreated, StateJoined, StatePicking:
	default:
		return ErrWrongState
	}

	if index < 0 || index >= len(s.values) {
		return fmt.Errorf("%w: index %d out of range", ErrInvalidPick, index)
	}
	if len(s.picks) >= models.DuelPickCount {
		return fmt.Errorf("%w: already picked %d bubbles", ErrInvalidPick, models.DuelPickCount)
	}
	for _, p := range s.picks {
		if p == index {
			return fmt.Errorf("%w: bubble %d already popped", ErrInvalidPick, index)
		}
	}
	s.picks = append(s.picks, index)
	s.state = StatePicking
	return nil
}

// Submit sends the five picks. It succeeds at most once per session.
// If the server already recorded them, for instance after a reply was lost,
// the session moves to waiting and Refresh picks up the result.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePicking || len(s.picks) != models.DuelPickCount {
		return ErrWrongState
	}

	res, err := s.client.SubmitDuel(ctx, s.duelID, s.userID, s.picks)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.AlreadySubmitted() {
		s.state = StateWaiting
		return nil
	}
	if err != nil {
		return s.fail(err)
	}

	total := res.Total
	s.total = &total
	if res.Status == models.DuelStatusCompleted {
		s.winner = res.Winner
		s.state = StateCompleted
	} else {
		s.state = StateWaiting
	}
	return nil
}

// Refresh polls the duel while waiting and reports whether it completed.
func (s *Session) Refresh(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateCompleted:
		return true, nil
	case StateWaiting:
	default:
		return false, ErrWrongState
	}

	duel, err := s.client.GetDuel(ctx, s.duelID)
	if err != nil {
		return false, err
	}
	if p, ok := duel.Players[s.userID]; ok && p.Total != nil {
		total := *p.Total
		s.total = &total
	}
	if duel.Status != models.DuelStatusCompleted {
		return false, nil
	}
	s.winner = duel.Winner
	s.state = StateCompleted
	return true, nil
}

func (s *Session) load(ctx context.Context, duelID string) error {
	duel, err := s.client.GetDuel(ctx, duelID)
	if err != nil {
		return err
	}
	s.duelID = duel.ID
	s.values = duel.BubbleValues
	return nil
}

// fail records terminal errors; anything else leaves the state untouched.
func (s *Session) fail(err error) error {
	if IsTerminal(err) {
		s.state = StateFailed
		s.lastErr = err
	}
	return err
}
