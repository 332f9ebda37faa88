package questionnaire

import (
	"context"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/oggyb/muzz-matchmaking/internal/api"
	"github.com/oggyb/muzz-matchmaking/internal/app"
	"github.com/oggyb/muzz-matchmaking/internal/db"
	svcErr "github.com/oggyb/muzz-matchmaking/internal/errors"
	"github.com/oggyb/muzz-matchmaking/internal/repository"
	"github.com/oggyb/muzz-matchmaking/internal/service/caller"
)

const catalogKey = "catalog"

// catalogTTL bounds how stale the in-process catalog can get after a reseed.
const catalogTTL = 10 * time.Minute

// Service exposes the question catalog and records answers.
type Service struct {
	appCtx *app.AppContext
	users  *repository.UserRepository
	repo   *repository.QuestionnaireRepository
	cache  *gocache.Cache
}

func NewQuestionnaireService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx: appCtx,
		users:  repository.NewUserRepository(appCtx.DB),
		repo:   repository.NewQuestionnaireRepository(appCtx.DB),
		cache:  gocache.New(catalogTTL, 2*catalogTTL),
	}
}

// Catalog returns the seeded questions ordered by display order.
// Served from the in-process cache; an empty catalog is not cached.
func (s *Service) Catalog(ctx context.Context) ([]db.QuestionnaireQuestion, error) {
	if v, ok := s.cache.Get(catalogKey); ok {
		return v.([]db.QuestionnaireQuestion), nil
	}
	qs, err := s.repo.ListQuestions(ctx)
	if err != nil {
		return nil, err
	}
	if len(qs) > 0 {
		s.cache.SetDefault(catalogKey, qs)
	}
	return qs, nil
}

// ListQuestions returns the catalog to an authenticated caller.
func (s *Service) ListQuestions(ctx context.Context, _ *api.Empty) (*api.ListQuestionsResponse, error) {
	user, err := caller.Resolve(ctx, s.users)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	s.appCtx.Logger.Debug("ListQuestions called", "user", user.Username)

	qs, err := s.Catalog(ctx)
	if err != nil {
		s.appCtx.Logger.Error("ListQuestions failed", "err", err)
		return nil, svcErr.Map(err)
	}
	resp := &api.ListQuestionsResponse{Questions: make([]api.Question, 0, len(qs))}
	for _, q := range qs {
		resp.Questions = append(resp.Questions, api.QuestionOf(q))
	}
	return resp, nil
}

// SubmitAnswers records the caller's answers.
//
// Behavior:
//   - One answer per (user, question); resubmitting overwrites the value.
//   - Empty answer list or a blank value → InvalidArgument.
//   - Unknown question id → NotFound; nothing is written.
//   - A question repeated in one request keeps its last value.
//
// Example:
//
//	svc.SubmitAnswers(ctx, &api.SubmitAnswersRequest{Answers: []api.Answer{{QuestionID: 1, Value: "Trust and honesty"}}})
func (s *Service) SubmitAnswers(ctx context.Context, req *api.SubmitAnswersRequest) (*api.SubmitAnswersResponse, error) {
	user, err := caller.Resolve(ctx, s.users)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	s.appCtx.Logger.Debug("SubmitAnswers called", "user", user.Username, "count", len(req.Answers))

	if len(req.Answers) == 0 {
		return nil, svcErr.InvalidArgument("answers must not be empty")
	}

	qs, err := s.Catalog(ctx)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	known := make(map[uint64]struct{}, len(qs))
	for _, q := range qs {
		known[q.ID] = struct{}{}
	}

	latest := make(map[uint64]string, len(req.Answers))
	order := make([]uint64, 0, len(req.Answers))
	for _, a := range req.Answers {
		value := strings.TrimSpace(a.Value)
		if value == "" {
			return nil, svcErr.InvalidArgument(fmt.Sprintf("answer to question %d must not be empty", a.QuestionID))
		}
		if _, ok := known[a.QuestionID]; !ok {
			return nil, svcErr.Map(fmt.Errorf("question %d: %w", a.QuestionID, svcErr.ErrNotFound))
		}
		if _, seen := latest[a.QuestionID]; !seen {
			order = append(order, a.QuestionID)
		}
		latest[a.QuestionID] = value
	}

	rows := make([]db.QuestionnaireAnswer, 0, len(order))
	for _, id := range order {
		rows = append(rows, db.QuestionnaireAnswer{QuestionID: id, Value: latest[id]})
	}
	if err := s.repo.UpsertAnswers(ctx, user.ID, rows); err != nil {
		s.appCtx.Logger.Error("UpsertAnswers failed", "user", user.Username, "err", err)
		return nil, svcErr.Map(err)
	}

	answered, err := s.repo.AnswerCount(ctx, user.ID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &api.SubmitAnswersResponse{Saved: len(rows), Answered: answered}, nil
}
