// models/duel.go
package models

import "time"

const (
	DuelStatusWaiting    = "waiting"     // creator only, nobody started
	DuelStatusInProgress = "in_progress" // second player joined
	DuelStatusCompleted  = "completed"   // both players submitted
)

// DuelTie is stored in Winner when both totals are equal.
const DuelTie = "tie"

const (
	DuelBubbleCount = 20
	DuelPickCount   = 5
	DuelMinReward   = 10
	DuelMaxReward   = 50
	DuelMaxPlayers  = 2
)

const (
	DuelDuration       = 4 * time.Hour // join window from creation
	DuelCooldownWindow = 2 * time.Hour // after a completed duel
)

// Duel is one two-player match scored against a shared reward table.
// Timestamps are epoch milliseconds so the JSON documents stay compatible
// with the web client.
type Duel struct {
	ID           string                  `json:"id" gorm:"primaryKey"`
	CreatedAt    int64                   `json:"createdAt" gorm:"autoCreateTime:milli;not null"`
	ExpiresAt    int64                   `json:"expiresAt" gorm:"index;not null"`
	BubbleValues []int                   `json:"bubbleValues" gorm:"serializer:json;not null"`
	Players      map[string]*PlayerEntry `json:"players" gorm:"serializer:json;not null"`
	Status       string                  `json:"status" gorm:"type:varchar(16);not null;default:'waiting'"`
	Winner       *string                 `json:"winner"`
}

// PlayerEntry is one player's participation in a duel.
type PlayerEntry struct {
	UserID        string `json:"userId"`
	Username      string `json:"username"`
	PoppedIndices []int  `json:"poppedIndices"`
	Total         *int   `json:"total"`
	SubmittedAt   *int64 `json:"submittedAt"`
}

// Submitted reports whether the player already has a recorded total.
func (p *PlayerEntry) Submitted() bool {
	return p != nil && p.Total != nil
}

// Expired reports whether the join window closed before now.
func (d *Duel) Expired(now time.Time) bool {
	return now.UnixMilli() > d.ExpiresAt
}

// BothSubmitted is true once the duel has two players and both totals.
func (d *Duel) BothSubmitted() bool {
	if len(d.Players) != DuelMaxPlayers {
		return false
	}
	for _, p := range d.Players {
		if !p.Submitted() {
			return false
		}
	}
	return true
}
