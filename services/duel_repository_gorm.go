package services

import (
	"context"
	"errors"
	"sort"

	"bubbles-duel/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormDuelRepository keeps one row per duel and per cooldown. Updates lock
// only the duel's own row, so different duels proceed in parallel and the
// guarantee holds across processes sharing the database. Creates and submits
// also lock the players' cooldown rows, always in user id order.
type GormDuelRepository struct {
	DB *gorm.DB
}

func NewGormDuelRepository(db *gorm.DB) *GormDuelRepository {
	return &GormDuelRepository{DB: db}
}

// Migrate creates or updates the duel tables.
func (r *GormDuelRepository) Migrate() error {
	return r.DB.AutoMigrate(&models.Duel{}, &models.DuelCooldown{})
}

func (r *GormDuelRepository) CreateDuel(ctx context.Context, duel *models.Duel, check func(cooldowns CooldownTable) error) error {
	if check == nil {
		return r.DB.WithContext(ctx).Create(duel).Error
	}
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		table, err := lockCooldowns(tx, playerIDs(duel))
		if err != nil {
			return err
		}
		if err := check(table); err != nil {
			return err
		}
		return tx.Create(duel).Error
	})
}

func (r *GormDuelRepository) GetDuel(ctx context.Context, id string) (*models.Duel, error) {
	var duel models.Duel
	if err := r.DB.WithContext(ctx).First(&duel, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDuelNotFound
		}
		return nil, err
	}
	return &duel, nil
}

func (r *GormDuelRepository) UpdateDuel(ctx context.Context, id string, fn func(duel *models.Duel) error) (*models.Duel, error) {
	var duel models.Duel
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// SELECT ... FOR UPDATE holds the row until commit
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&duel, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDuelNotFound
			}
			return err
		}
		if duel.Players == nil {
			duel.Players = map[string]*models.PlayerEntry{}
		}
		if err := fn(&duel); err != nil {
			return err
		}
		return tx.Save(&duel).Error
	})
	if err != nil {
		return nil, err
	}
	return &duel, nil
}

func (r *GormDuelRepository) SubmitDuel(ctx context.Context, id string, fn func(duel *models.Duel, cooldowns CooldownTable) error) (*models.Duel, error) {
	var duel models.Duel
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&duel, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDuelNotFound
			}
			return err
		}
		if duel.Players == nil {
			duel.Players = map[string]*models.PlayerEntry{}
		}
		table, err := lockCooldowns(tx, playerIDs(&duel))
		if err != nil {
			return err
		}
		if err := fn(&duel, table); err != nil {
			return err
		}
		if err := tx.Save(&duel).Error; err != nil {
			return err
		}
		return upsertCooldowns(tx, table.changed)
	})
	if err != nil {
		return nil, err
	}
	return &duel, nil
}

func (r *GormDuelRepository) LastCooldown(ctx context.Context, userID string) (int64, bool, error) {
	var cd models.DuelCooldown
	if err := r.DB.WithContext(ctx).First(&cd, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	// zero marks a row created only to be locked
	return cd.LastAt, cd.LastAt > 0, nil
}

func (r *GormDuelRepository) PruneDuels(ctx context.Context, expiredBefore int64) (int, error) {
	res := r.DB.WithContext(ctx).Where("expires_at < ?", expiredBefore).Delete(&models.Duel{})
	return int(res.RowsAffected), res.Error
}

func (r *GormDuelRepository) PruneCooldowns(ctx context.Context, before int64) (int, error) {
	res := r.DB.WithContext(ctx).Where("last_at < ?", before).Delete(&models.DuelCooldown{})
	return int(res.RowsAffected), res.Error
}

// lockCooldowns takes FOR UPDATE locks on the cooldown rows of userIDs.
// Missing rows are inserted with LastAt 0 first so there is a row to lock;
// the retention sweep removes them again.
func lockCooldowns(tx *gorm.DB, userIDs []string) (*cooldownTable, error) {
	table := newCooldownTable()
	if len(userIDs) == 0 {
		return table, nil
	}
	placeholders := make([]models.DuelCooldown, 0, len(userIDs))
	for _, id := range userIDs {
		placeholders = append(placeholders, models.DuelCooldown{UserID: id})
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&placeholders).Error; err != nil {
		return nil, err
	}

	var rows []models.DuelCooldown
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id IN ?", userIDs).
		Order("user_id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.LastAt > 0 {
			table.last[row.UserID] = row.LastAt
		}
	}
	return table, nil
}

func upsertCooldowns(tx *gorm.DB, changed map[string]int64) error {
	if len(changed) == 0 {
		return nil
	}
	rows := make([]models.DuelCooldown, 0, len(changed))
	for id, at := range changed {
		rows = append(rows, models.DuelCooldown{UserID: id, LastAt: at})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].UserID < rows[j].UserID })
	return tx.Clauses(
		clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_at"}),
		},
	).Create(&rows).Error
}

// playerIDs returns the duel's player ids sorted, which fixes the lock order.
func playerIDs(duel *models.Duel) []string {
	ids := make([]string, 0, len(duel.Players))
	for id := range duel.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
