package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-matchmaking/internal/db"
	svcErr "github.com/oggyb/muzz-matchmaking/internal/errors"
	"github.com/oggyb/muzz-matchmaking/internal/utils/pagination"
)

// MatchRepository stores confirmed pairs under canonical (lower id first) ordering.
type MatchRepository struct {
	db *gorm.DB
}

func NewMatchRepository(database *gorm.DB) *MatchRepository {
	return &MatchRepository{db: database}
}

// CreateIfAbsent records the pair once, whichever order the ids arrive in.
//
// Behavior:
//   - Conditional insert on (user_a_id, user_b_id); concurrent callers race on
//     the unique index, never on a read-then-write.
//   - An existing inactive row is reactivated and reported as created.
//   - An existing active row is returned with created=false.
//
// Example:
//
//	m, created, err := repo.CreateIfAbsent(ctx, 7, 3, db.SourceIntroduction) // stored as (3, 7)
func (r *MatchRepository) CreateIfAbsent(ctx context.Context, a, b uint64, source string) (*db.Match, bool, error) {
	lo, hi := db.CanonicalPair(a, b)
	m := db.Match{UserAID: lo, UserBID: hi, Active: true, Source: source}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_a_id"}, {Name: "user_b_id"}},
			DoNothing: true,
		}).
		Create(&m)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return &m, true, nil
	}

	existing, err := r.FindPair(ctx, lo, hi)
	if err != nil {
		return nil, false, err
	}
	if existing.Active {
		return existing, false, nil
	}

	reactivated := r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("id = ? AND active = ?", existing.ID, false).
		Updates(map[string]any{"active": true, "source": source, "matched_at": r.db.NowFunc()})
	if reactivated.Error != nil {
		return nil, false, reactivated.Error
	}
	existing.Active = true
	return existing, reactivated.RowsAffected > 0, nil
}

// FindPair loads the row for a pair in either order.
func (r *MatchRepository) FindPair(ctx context.Context, a, b uint64) (*db.Match, error) {
	lo, hi := db.CanonicalPair(a, b)
	var m db.Match
	err := r.db.WithContext(ctx).
		Where("user_a_id = ? AND user_b_id = ?", lo, hi).
		First(&m).Error
	if err != nil {
		return nil, notFound(err, "match", fmt.Sprintf("%d:%d", lo, hi))
	}
	return &m, nil
}

func (r *MatchRepository) GetByID(ctx context.Context, id uint64) (*db.Match, error) {
	var m db.Match
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, notFound(err, "match", id)
	}
	return &m, nil
}

// ActiveCounterparts returns the ids the user has an active match with.
func (r *MatchRepository) ActiveCounterparts(ctx context.Context, userID uint64) (map[uint64]struct{}, error) {
	var rows []db.Match
	err := r.db.WithContext(ctx).
		Where("active = ? AND (user_a_id = ? OR user_b_id = ?)", true, userID, userID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint64]struct{}, len(rows))
	for _, m := range rows {
		out[m.Other(userID)] = struct{}{}
	}
	return out, nil
}

// Deactivate flips the active flag off for a pair. Missing pairs are ignored.
func (r *MatchRepository) Deactivate(ctx context.Context, a, b uint64) error {
	lo, hi := db.CanonicalPair(a, b)
	return r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("user_a_id = ? AND user_b_id = ?", lo, hi).
		Update("active", false).Error
}

// ListActive returns the user's active matches, newest first.
//
// Behavior:
//   - Ordered by matched_at DESC, id DESC.
//   - Supports cursor-based pagination via paginationToken.
func (r *MatchRepository) ListActive(
	ctx context.Context,
	userID uint64,
	paginationToken *string,
	limit int,
) ([]db.Match, *string, error) {
	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, fmt.Errorf("%v: %w", err, svcErr.ErrBadRequest)
	}

	query := r.db.WithContext(ctx).
		Where("active = ? AND (user_a_id = ? OR user_b_id = ?)", true, userID, userID).
		Order("matched_at DESC, id DESC").
		Limit(limit + 1)

	// apply cursor
	if cursor.Valid() {
		ts := time.UnixMilli(cursor.Unix).UTC()
		query = query.Where("(matched_at < ? OR (matched_at = ? AND id < ?))", ts, ts, cursor.ID)
	}

	var matches []db.Match
	if err := query.Find(&matches).Error; err != nil {
		return nil, nil, err
	}

	// pagination: build next cursor if needed
	var nextToken *string
	if len(matches) > limit {
		last := matches[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{
			ID:   last.ID,
			Unix: last.MatchedAt.UnixMilli(),
		})
		nextToken = &token
		matches = matches[:limit]
	}

	return matches, nextToken, nil
}
