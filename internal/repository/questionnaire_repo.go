package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-matchmaking/internal/db"
)

// QuestionnaireRepository provides access to the question catalog and answers.
type QuestionnaireRepository struct {
	db *gorm.DB
}

func NewQuestionnaireRepository(database *gorm.DB) *QuestionnaireRepository {
	return &QuestionnaireRepository{db: database}
}

// ListQuestions returns the catalog ordered by display order.
func (r *QuestionnaireRepository) ListQuestions(ctx context.Context) ([]db.QuestionnaireQuestion, error) {
	var qs []db.QuestionnaireQuestion
	err := r.db.WithContext(ctx).Order("display_order, id").Find(&qs).Error
	return qs, err
}

// UpsertAnswers inserts or overwrites answers for a user.
//
// Behavior:
//   - If (user_id, question_id) exists → value is replaced.
//   - Otherwise a new row is inserted.
//   - All answers are written in one transaction.
func (r *QuestionnaireRepository) UpsertAnswers(ctx context.Context, userID uint64, answers []db.QuestionnaireAnswer) error {
	if len(answers) == 0 {
		return nil
	}
	for i := range answers {
		answers[i].UserID = userID
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&answers).Error
	})
}

// AnswersForUsers returns every answer of the given users keyed by user id.
func (r *QuestionnaireRepository) AnswersForUsers(ctx context.Context, ids []uint64) (map[uint64][]db.QuestionnaireAnswer, error) {
	out := make(map[uint64][]db.QuestionnaireAnswer, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var answers []db.QuestionnaireAnswer
	if err := r.db.WithContext(ctx).
		Where("user_id IN ?", ids).
		Order("user_id, question_id").
		Find(&answers).Error; err != nil {
		return nil, err
	}
	for _, a := range answers {
		out[a.UserID] = append(out[a.UserID], a)
	}
	return out, nil
}

// AnswerCount returns how many questions the user has answered.
func (r *QuestionnaireRepository) AnswerCount(ctx context.Context, userID uint64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&db.QuestionnaireAnswer{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

// UsersWithAnswers returns the subset of ids that answered at least one question.
func (r *QuestionnaireRepository) UsersWithAnswers(ctx context.Context, ids []uint64) (map[uint64]struct{}, error) {
	out := make(map[uint64]struct{}, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var found []uint64
	if err := r.db.WithContext(ctx).
		Model(&db.QuestionnaireAnswer{}).
		Where("user_id IN ?", ids).
		Distinct("user_id").
		Pluck("user_id", &found).Error; err != nil {
		return nil, err
	}
	for _, id := range found {
		out[id] = struct{}{}
	}
	return out, nil
}
