package services

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrDuelNotFound      = errors.New("duel not found")
	ErrDuelExpired       = errors.New("duel expired")
	ErrDuelFull          = errors.New("duel full")
	ErrNotParticipant    = errors.New("not a participant")
	ErrInvalidSubmission = errors.New("invalid submission")
	ErrAlreadySubmitted  = errors.New("already submitted")
	ErrCooldownActive    = errors.New("cooldown active")
)

// CooldownError is returned while a user's duel cooldown is running.
// errors.Is(err, ErrCooldownActive) matches it.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown active: %s remaining", e.Remaining.Round(time.Second))
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrCooldownActive
}

// RemainingMs is the value reported to clients.
func (e *CooldownError) RemainingMs() int64 {
	return e.Remaining.Milliseconds()
}
