package introductions

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/datatypes"

	"github.com/oggyb/muzz-matchmaking/internal/ai"
	"github.com/oggyb/muzz-matchmaking/internal/api"
	"github.com/oggyb/muzz-matchmaking/internal/app"
	"github.com/oggyb/muzz-matchmaking/internal/blocking"
	"github.com/oggyb/muzz-matchmaking/internal/conversation"
	"github.com/oggyb/muzz-matchmaking/internal/db"
	svcErr "github.com/oggyb/muzz-matchmaking/internal/errors"
	"github.com/oggyb/muzz-matchmaking/internal/filter"
	"github.com/oggyb/muzz-matchmaking/internal/materializer"
	"github.com/oggyb/muzz-matchmaking/internal/metrics"
	"github.com/oggyb/muzz-matchmaking/internal/repository"
	"github.com/oggyb/muzz-matchmaking/internal/scoring"
	"github.com/oggyb/muzz-matchmaking/internal/service/caller"
	"github.com/oggyb/muzz-matchmaking/internal/service/questionnaire"
)

const (
	// MaxIntroductions caps the daily set per user.
	MaxIntroductions = 3
	// MinScore is the lowest compatibility that becomes an introduction.
	MinScore = 0.5
)

// CatalogSource provides the question catalog the scoring engine weighs answers with.
type CatalogSource interface {
	Catalog(ctx context.Context) ([]db.QuestionnaireQuestion, error)
}

// Service implements the daily introductions API: generation, listing and
// the accept / pass protocol.
type Service struct {
	appCtx      *app.AppContext
	users       *repository.UserRepository
	answers     *repository.QuestionnaireRepository
	candidates  *repository.CandidateRepository
	pipeline    *filter.Pipeline
	catalog     CatalogSource
	materialize *materializer.Materializer
	now         func() time.Time
}

type Option func(*Service)

// WithClock overrides the clock that decides "today".
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCatalog shares a catalog (and its cache) with other services.
func WithCatalog(c CatalogSource) Option {
	return func(s *Service) { s.catalog = c }
}

func WithMaterializer(m *materializer.Materializer) Option {
	return func(s *Service) { s.materialize = m }
}

func WithPipeline(p *filter.Pipeline) Option {
	return func(s *Service) { s.pipeline = p }
}

// NewIntroductionsService creates the service with dependencies from AppContext.
// Collaborators not supplied via options are built from appCtx.
func NewIntroductionsService(appCtx *app.AppContext, opts ...Option) *Service {
	s := &Service{
		appCtx:     appCtx,
		users:      repository.NewUserRepository(appCtx.DB),
		answers:    repository.NewQuestionnaireRepository(appCtx.DB),
		candidates: repository.NewCandidateRepository(appCtx.DB),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.pipeline == nil || s.materialize == nil {
		blocks := blocking.NewService(appCtx)
		if s.pipeline == nil {
			s.pipeline = filter.NewPipeline(appCtx, blocks)
		}
		if s.materialize == nil {
			rooms := conversation.NewRooms(appCtx, blocks)
			s.materialize = materializer.New(appCtx, rooms, ai.NewClient(appCtx.Config, appCtx.Logger))
		}
	}
	if s.catalog == nil {
		s.catalog = questionnaire.NewQuestionnaireService(appCtx)
	}
	return s
}

// Today is the current UTC match date.
func (s *Service) Today() string {
	return s.now().UTC().Format(filter.DateLayout)
}

type scored struct {
	user   db.User
	result scoring.Result
}

// Generate builds the user's introductions for a day.
//
// Behavior:
//   - Idempotent: if any candidate row exists for (user, date) nothing happens.
//   - Runs the filter pipeline, scores every eligible user, drops scores below MinScore.
//   - Keeps the MaxIntroductions best, persisted as PENDING through a conditional insert.
//   - An empty result is not an error.
//
// Returns how many rows this call inserted.
func (s *Service) Generate(ctx context.Context, user db.User, day time.Time) (int, error) {
	date := day.UTC().Format(filter.DateLayout)

	exists, err := s.candidates.ExistsForDate(ctx, user.ID, date)
	if err != nil {
		return 0, fmt.Errorf("check existing introductions: %w", err)
	}
	if exists {
		return 0, nil
	}

	eligible, err := s.pipeline.Eligible(ctx, user, day)
	if err != nil {
		return 0, err
	}
	if len(eligible) == 0 {
		s.appCtx.Logger.Info("no eligible candidates", "user", user.Username, "date", date)
		return 0, nil
	}

	catalog, err := s.catalog.Catalog(ctx)
	if err != nil {
		return 0, fmt.Errorf("load catalog: %w", err)
	}
	engine := scoring.NewEngine(catalog)

	profiles, err := s.profiles(ctx, append([]db.User{user}, eligible...))
	if err != nil {
		return 0, err
	}
	self := profiles[user.ID]

	var ranked []scored
	for _, c := range eligible {
		res := engine.Evaluate(self, profiles[c.ID])
		if res.Score >= MinScore {
			ranked = append(ranked, scored{user: c, result: res})
		}
	}
	if len(ranked) == 0 {
		s.appCtx.Logger.Info("no candidates above threshold", "user", user.Username, "date", date, "eligible", len(eligible))
		return 0, nil
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].result.Score > ranked[j].result.Score })
	if len(ranked) > MaxIntroductions {
		ranked = ranked[:MaxIntroductions]
	}

	inserted := 0
	for _, r := range ranked {
		ok, err := s.candidates.InsertIfAbsent(ctx, &db.Candidate{
			UserID:          user.ID,
			CandidateUserID: r.user.ID,
			MatchDate:       date,
			Score:           r.result.Score,
			Reasons:         datatypes.NewJSONType(r.result.StoredReasons()),
			Status:          db.CandidatePending,
		})
		if err != nil {
			return inserted, fmt.Errorf("persist introduction: %w", err)
		}
		if ok {
			inserted++
		}
	}
	metrics.IntroductionsGenerated.Add(float64(inserted))

	s.appCtx.Logger.Info("introductions generated", "user", user.Username, "date", date, "count", inserted)
	return inserted, nil
}

// profiles loads answers, bio and prompts into scoring profiles.
func (s *Service) profiles(ctx context.Context, users []db.User) (map[uint64]scoring.Profile, error) {
	ids := make([]uint64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	answers, err := s.answers.AnswersForUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	prompts, err := s.users.PromptTexts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	out := make(map[uint64]scoring.Profile, len(users))
	for _, u := range users {
		p := scoring.Profile{Answers: map[uint64]string{}, Bio: u.Bio, Prompts: prompts[u.ID]}
		for _, a := range answers[u.ID] {
			p.Answers[a.QuestionID] = a.Value
		}
		out[u.ID] = p
	}
	return out, nil
}

// GetIntroductions returns today's open introductions for the caller.
//
// Behavior:
//   - Generates today's set on first read; generation failures are logged and
//     the (possibly empty) stored set is returned.
//   - Only PENDING and SHOWN rows, best score first, at most MaxIntroductions.
//
// Example:
//
//	svc.GetIntroductions(ctx, &api.Empty{})
func (s *Service) GetIntroductions(ctx context.Context, _ *api.Empty) (*api.GetIntroductionsResponse, error) {
	user, err := caller.Resolve(ctx, s.users)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	s.appCtx.Logger.Debug("GetIntroductions called", "user", user.Username)

	now := s.now()
	date := now.UTC().Format(filter.DateLayout)
	if _, err := s.Generate(ctx, *user, now); err != nil {
		s.appCtx.Logger.Error("lazy generation failed", "user", user.Username, "err", err)
	}

	rows, err := s.candidates.ListForDate(ctx, user.ID, date, MaxIntroductions, db.CandidatePending, db.CandidateShown)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	ids := make([]uint64, 0, len(rows))
	for _, c := range rows {
		ids = append(ids, c.CandidateUserID)
	}
	people, err := s.users.ListByIDs(ctx, ids)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	resp := &api.GetIntroductionsResponse{Date: date, Introductions: []api.Introduction{}}
	for _, c := range rows {
		other, ok := people[c.CandidateUserID]
		if !ok {
			continue
		}
		resp.Introductions = append(resp.Introductions, api.IntroductionOf(c, other))
	}

	s.appCtx.Logger.Debug("GetIntroductions result", "user", user.Username, "count", len(resp.Introductions))
	return resp, nil
}

// MarkShown moves an introduction from PENDING to SHOWN. Any other state is left as is.
func (s *Service) MarkShown(ctx context.Context, req *api.IntroductionRequest) (*api.IntroductionResponse, error) {
	user, cand, err := s.owned(ctx, req.ID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	s.appCtx.Logger.Debug("MarkShown called", "user", user.Username, "candidate", cand.ID)

	if err := s.candidates.MarkShown(ctx, cand.ID, s.now().UTC()); err != nil {
		return nil, svcErr.Map(err)
	}
	view, err := s.view(ctx, cand.ID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &api.IntroductionResponse{Introduction: *view}, nil
}

// Accept records the caller's acceptance and materializes the match once both
// sides have accepted each other for the same date.
//
// Behavior:
//   - Re-accepting is a no-op success; accepting a PASSED introduction is InvalidArgument.
//   - The reverse check runs on every call, so acceptance order does not matter.
//   - The match, room and notifications come from the materializer; only the
//     call that creates the match notifies.
//
// Example:
//
//	svc.Accept(ctx, &api.IntroductionRequest{ID: 12})
func (s *Service) Accept(ctx context.Context, req *api.IntroductionRequest) (*api.AcceptResponse, error) {
	user, cand, err := s.owned(ctx, req.ID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	s.appCtx.Logger.Debug("Accept called", "user", user.Username, "candidate", cand.ID)

	if err := s.candidates.Resolve(ctx, cand.ID, db.CandidateAccepted, s.now().UTC()); err != nil {
		return nil, svcErr.Map(err)
	}

	resp := &api.AcceptResponse{}
	reverse, err := s.candidates.FindReverseAccepted(ctx, user.ID, cand.CandidateUserID, cand.MatchDate)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if reverse != nil {
		counterpart, err := s.users.GetByID(ctx, cand.CandidateUserID)
		if err != nil {
			return nil, svcErr.Map(err)
		}
		res, err := s.materialize.Materialize(ctx, materializer.Request{
			A:    *user,
			B:    *counterpart,
			Mode: db.ModeDating,
			Path: metrics.PathIntroduction,
		})
		if err != nil {
			s.appCtx.Logger.Error("materialize failed", "user", user.Username, "counterpart", counterpart.Username, "err", err)
			return nil, svcErr.Map(err)
		}
		resp.Matched = true
		resp.RoomID = res.Room.RoomID
	}

	view, err := s.view(ctx, cand.ID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	resp.Introduction = *view
	return resp, nil
}

// Pass records the caller's rejection. The pair stays apart in the filter
// pipeline for the pass cooldown window.
func (s *Service) Pass(ctx context.Context, req *api.IntroductionRequest) (*api.IntroductionResponse, error) {
	user, cand, err := s.owned(ctx, req.ID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	s.appCtx.Logger.Debug("Pass called", "user", user.Username, "candidate", cand.ID)

	if err := s.candidates.Resolve(ctx, cand.ID, db.CandidatePassed, s.now().UTC()); err != nil {
		return nil, svcErr.Map(err)
	}
	view, err := s.view(ctx, cand.ID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &api.IntroductionResponse{Introduction: *view}, nil
}

// owned resolves the caller and a candidate that belongs to them. A candidate
// owned by someone else is reported as not found.
func (s *Service) owned(ctx context.Context, id uint64) (*db.User, *db.Candidate, error) {
	user, err := caller.Resolve(ctx, s.users)
	if err != nil {
		return nil, nil, err
	}
	if id == 0 {
		return nil, nil, fmt.Errorf("introduction id is required: %w", svcErr.ErrBadRequest)
	}
	cand, err := s.candidates.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if cand.UserID != user.ID {
		return nil, nil, fmt.Errorf("candidate %d for user %s: %w", id, user.Username, svcErr.ErrNotFound)
	}
	return user, cand, nil
}

func (s *Service) view(ctx context.Context, id uint64) (*api.Introduction, error) {
	cand, err := s.candidates.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	other, err := s.users.GetByID(ctx, cand.CandidateUserID)
	if err != nil {
		return nil, err
	}
	v := api.IntroductionOf(*cand, *other)
	return &v, nil
}
