package models

// DuelCooldown records when a user last completed a duel (epoch ms).
// The document store keeps the same data as a plain userId -> timestamp map.
type DuelCooldown struct {
	UserID string `gorm:"primaryKey" json:"userId"`
	LastAt int64  `gorm:"not null;index" json:"lastAt"`
}
