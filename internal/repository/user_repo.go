package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-matchmaking/internal/db"
)

// UserRepository reads accounts owned by the account subsystem.
// The only write it exposes is the matching-paused flag.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(database *gorm.DB) *UserRepository {
	return &UserRepository{db: database}
}

func (r *UserRepository) GetByID(ctx context.Context, id uint64) (*db.User, error) {
	var u db.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, notFound(err, "user", id)
	}
	return &u, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*db.User, error) {
	var u db.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, notFound(err, "user", username)
	}
	return &u, nil
}

// ListByIDs returns users keyed by id. Missing ids are simply absent.
func (r *UserRepository) ListByIDs(ctx context.Context, ids []uint64) (map[uint64]db.User, error) {
	out := make(map[uint64]db.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []db.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// ListByUsernames returns users in the order of the given names, skipping unknown ones.
func (r *UserRepository) ListByUsernames(ctx context.Context, names []string) ([]db.User, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var users []db.User
	if err := r.db.WithContext(ctx).Where("username IN ?", names).Find(&users).Error; err != nil {
		return nil, err
	}
	byName := make(map[string]db.User, len(users))
	for _, u := range users {
		byName[u.Username] = u
	}
	out := make([]db.User, 0, len(users))
	for _, n := range names {
		if u, ok := byName[n]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

// ListOthers returns every active user except the given one, ordered by id.
func (r *UserRepository) ListOthers(ctx context.Context, userID uint64) ([]db.User, error) {
	var users []db.User
	err := r.db.WithContext(ctx).
		Where("id <> ? AND active = ?", userID, true).
		Order("id").
		Find(&users).Error
	return users, err
}

// ListMatchable returns active, unpaused users who answered at least one question.
// Used by the nightly introductions job.
func (r *UserRepository) ListMatchable(ctx context.Context) ([]db.User, error) {
	var users []db.User
	err := r.db.WithContext(ctx).
		Where("active = ? AND matching_paused = ?", true, false).
		Where("EXISTS (SELECT 1 FROM questionnaire_answers a WHERE a.user_id = users.id)").
		Order("id").
		Find(&users).Error
	return users, err
}

func (r *UserRepository) SetMatchingPaused(ctx context.Context, userID uint64, paused bool) error {
	if _, err := r.GetByID(ctx, userID); err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&db.User{}).
		Where("id = ?", userID).
		Update("matching_paused", paused).Error
}

// PromptTexts returns the free-text prompt answers for each given user.
func (r *UserRepository) PromptTexts(ctx context.Context, ids []uint64) (map[uint64][]string, error) {
	out := make(map[uint64][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var prompts []db.UserPrompt
	if err := r.db.WithContext(ctx).Where("user_id IN ?", ids).Order("id").Find(&prompts).Error; err != nil {
		return nil, err
	}
	for _, p := range prompts {
		out[p.UserID] = append(out[p.UserID], p.Text)
	}
	return out, nil
}
