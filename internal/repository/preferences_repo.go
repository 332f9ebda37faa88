package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-matchmaking/internal/db"
)

type PreferencesRepository struct {
	db *gorm.DB
}

func NewPreferencesRepository(database *gorm.DB) *PreferencesRepository {
	return &PreferencesRepository{db: database}
}

// Get returns the preferences of a user or a wrapped ErrNotFound.
func (r *PreferencesRepository) Get(ctx context.Context, userID uint64) (*db.MatchmakingPreferences, error) {
	var p db.MatchmakingPreferences
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, notFound(err, "preferences for user", userID)
	}
	return &p, nil
}

// Upsert writes the full preference row keyed by user_id and returns the stored copy.
func (r *PreferencesRepository) Upsert(ctx context.Context, p *db.MatchmakingPreferences) (*db.MatchmakingPreferences, error) {
	p.ID = 0
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"mode", "age", "country", "city", "min_age", "max_age",
				"allowed_countries", "interests", "open_to_any", "updated_at",
			}),
		}).
		Create(p).Error
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, p.UserID)
}
