package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-matchmaking/internal/db"
	svcErr "github.com/oggyb/muzz-matchmaking/internal/errors"
)

// CandidateRepository owns the daily introduction rows (match_candidates).
type CandidateRepository struct {
	db *gorm.DB
}

func NewCandidateRepository(database *gorm.DB) *CandidateRepository {
	return &CandidateRepository{db: database}
}

// ExistsForDate reports whether any candidate row exists for (user, date).
func (r *CandidateRepository) ExistsForDate(ctx context.Context, userID uint64, date string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&db.Candidate{}).
		Where("user_id = ? AND match_date = ?", userID, date).
		Count(&n).Error
	return n > 0, err
}

// InsertIfAbsent creates a candidate unless its (user, candidate, date) triple exists.
//
// Behavior:
//   - Conditional insert keyed by the unique triple, so concurrent generators
//     never produce duplicate rows.
//   - Returns true only if this call inserted the row.
func (r *CandidateRepository) InsertIfAbsent(ctx context.Context, c *db.Candidate) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "candidate_user_id"}, {Name: "match_date"}},
			DoNothing: true,
		}).
		Create(c)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListForDate returns a user's candidates for a date with the given statuses,
// best score first. No statuses means all.
func (r *CandidateRepository) ListForDate(
	ctx context.Context,
	userID uint64,
	date string,
	limit int,
	statuses ...db.CandidateStatus,
) ([]db.Candidate, error) {
	q := r.db.WithContext(ctx).
		Where("user_id = ? AND match_date = ?", userID, date).
		Order("score DESC, id ASC")
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []db.Candidate
	err := q.Find(&out).Error
	return out, err
}

func (r *CandidateRepository) GetByID(ctx context.Context, id uint64) (*db.Candidate, error) {
	var c db.Candidate
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, notFound(err, "candidate", id)
	}
	return &c, nil
}

// MarkShown moves PENDING → SHOWN. Any other state is left untouched.
// The surfaced time is stamped once and never overwritten.
func (r *CandidateRepository) MarkShown(ctx context.Context, id uint64, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&db.Candidate{}).
		Where("id = ? AND status = ?", id, db.CandidatePending).
		Updates(map[string]any{
			"status":      db.CandidateShown,
			"surfaced_at": gorm.Expr("COALESCE(surfaced_at, ?)", now),
		}).Error
}

// Resolve moves a candidate into a terminal status.
//
// Behavior:
//   - PENDING or SHOWN → target.
//   - Re-entering the same terminal status is a no-op success.
//   - Switching between ACCEPTED and PASSED is rejected with ErrBadRequest.
//   - Surfaced time is stamped if unset.
//   - A non-terminal target is rejected with ErrBadRequest.
func (r *CandidateRepository) Resolve(ctx context.Context, id uint64, target db.CandidateStatus, now time.Time) error {
	if !target.Terminal() {
		return fmt.Errorf("candidate %d: %s is not a terminal status: %w", id, target, svcErr.ErrBadRequest)
	}
	res := r.db.WithContext(ctx).
		Model(&db.Candidate{}).
		Where("id = ? AND status IN ?", id, []db.CandidateStatus{db.CandidatePending, db.CandidateShown, target}).
		Updates(map[string]any{
			"status":      target,
			"surfaced_at": gorm.Expr("COALESCE(surfaced_at, ?)", now),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == target {
		return nil
	}
	return fmt.Errorf("candidate %d is already %s: %w", id, current.Status, svcErr.ErrBadRequest)
}

// FindReverseAccepted returns the counterpart's ACCEPTED candidate pointing back
// at userID for the same date, or nil.
func (r *CandidateRepository) FindReverseAccepted(ctx context.Context, userID, counterpartID uint64, date string) (*db.Candidate, error) {
	var rows []db.Candidate
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND candidate_user_id = ? AND match_date = ? AND status = ?",
			counterpartID, userID, date, db.CandidateAccepted).
		Limit(1).
		Find(&rows).Error
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// PassedSince returns the ids the user PASSED on any match date after sinceDate.
func (r *CandidateRepository) PassedSince(ctx context.Context, userID uint64, sinceDate string) (map[uint64]struct{}, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).
		Model(&db.Candidate{}).
		Where("user_id = ? AND status = ? AND match_date > ?", userID, db.CandidatePassed, sinceDate).
		Pluck("candidate_user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}
