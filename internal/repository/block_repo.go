package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-matchmaking/internal/db"
)

// BlockRepository stores directed block edges. Reads are symmetric.
type BlockRepository struct {
	db *gorm.DB
}

func NewBlockRepository(database *gorm.DB) *BlockRepository {
	return &BlockRepository{db: database}
}

// Create records blocker → blocked. Repeating it is a no-op.
func (r *BlockRepository) Create(ctx context.Context, blockerID, blockedID uint64) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "blocker_id"}, {Name: "blocked_id"}},
			DoNothing: true,
		}).
		Create(&db.Block{BlockerID: blockerID, BlockedID: blockedID}).Error
}

func (r *BlockRepository) Delete(ctx context.Context, blockerID, blockedID uint64) error {
	return r.db.WithContext(ctx).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(&db.Block{}).Error
}

// Between reports whether either user blocked the other.
func (r *BlockRepository) Between(ctx context.Context, a, b uint64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&db.Block{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&n).Error
	return n > 0, err
}

// BlockedBy returns the ids the user blocked.
func (r *BlockRepository) BlockedBy(ctx context.Context, blockerID uint64) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).
		Model(&db.Block{}).
		Where("blocker_id = ?", blockerID).
		Pluck("blocked_id", &ids).Error
	return ids, err
}

// Related returns every id with a block edge to or from the user.
func (r *BlockRepository) Related(ctx context.Context, userID uint64) (map[uint64]struct{}, error) {
	var edges []db.Block
	err := r.db.WithContext(ctx).
		Where("blocker_id = ? OR blocked_id = ?", userID, userID).
		Find(&edges).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint64]struct{}, len(edges))
	for _, e := range edges {
		if e.BlockerID == userID {
			out[e.BlockedID] = struct{}{}
		} else {
			out[e.BlockerID] = struct{}{}
		}
	}
	return out, nil
}
