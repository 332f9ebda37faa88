package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oggyb/muzz-matchmaking/internal/ai"
	"github.com/oggyb/muzz-matchmaking/internal/api"
	"github.com/oggyb/muzz-matchmaking/internal/app"
	"github.com/oggyb/muzz-matchmaking/internal/blocking"
	"github.com/oggyb/muzz-matchmaking/internal/conversation"
	"github.com/oggyb/muzz-matchmaking/internal/db"
	svcErr "github.com/oggyb/muzz-matchmaking/internal/errors"
	"github.com/oggyb/muzz-matchmaking/internal/filter"
	"github.com/oggyb/muzz-matchmaking/internal/materializer"
	"github.com/oggyb/muzz-matchmaking/internal/repository"
	"github.com/oggyb/muzz-matchmaking/internal/service/caller"
)

// Service implements the real-time matchmaking API on top of the coordination
// store (queues, pointers, cooldowns) and the relational store.
type Service struct {
	appCtx      *app.AppContext
	users       *repository.UserRepository
	prefs       *repository.PreferencesRepository
	matches     *repository.MatchRepository
	store       CoordinationStore
	blocks      filter.BlockChecker
	rooms       *conversation.Rooms
	scorer      Scorer
	materialize *materializer.Materializer
}

type Option func(*Service)

// WithScorer replaces the batch-scoring collaborator.
func WithScorer(sc Scorer) Option {
	return func(s *Service) { s.scorer = sc }
}

// WithOpeners replaces the opener-generation collaborator.
func WithOpeners(o materializer.OpenerGenerator) Option {
	return func(s *Service) {
		s.materialize = materializer.New(s.appCtx, s.rooms, o)
	}
}

func WithStore(st CoordinationStore) Option {
	return func(s *Service) { s.store = st }
}

// NewMatchmakingService creates the service with dependencies from AppContext.
// By default the AI client serves both scoring and openers.
func NewMatchmakingService(appCtx *app.AppContext, opts ...Option) *Service {
	blocks := blocking.NewService(appCtx)
	rooms := conversation.NewRooms(appCtx, blocks)
	client := ai.NewClient(appCtx.Config, appCtx.Logger)

	s := &Service{
		appCtx:      appCtx,
		users:       repository.NewUserRepository(appCtx.DB),
		prefs:       repository.NewPreferencesRepository(appCtx.DB),
		matches:     repository.NewMatchRepository(appCtx.DB),
		store:       appCtx.RedisCache,
		blocks:      blocks,
		rooms:       rooms,
		scorer:      client,
		materialize: materializer.New(appCtx, rooms, client),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpdatePreferences upserts the caller's matchmaking preferences.
//
// Behavior:
//   - Mode is required (DATING or FRIENDS); minAge must not exceed maxAge.
//   - Age, country and city default to the profile values when omitted.
//   - A queued user whose queue key changes is moved to the new queue.
//   - The cached copy is refreshed best-effort.
//
// Example:
//
//	svc.UpdatePreferences(ctx, &api.PreferencesRequest{Preferences: api.Preferences{Mode: "DATING"}})
func (s *Service) UpdatePreferences(ctx context.Context, req *api.PreferencesRequest) (*api.PreferencesResponse, error) {
	user, err := caller.Resolve(ctx, s.users)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	in := req.Preferences
	s.appCtx.Logger.Debug("UpdatePreferences called", "user", user.Username, "mode", in.Mode)

	mode := strings.ToUpper(strings.TrimSpace(in.Mode))
	if mode != db.ModeDating && mode != db.ModeFriends {
		return nil, svcErr.InvalidArgument("mode must be DATING or FRIENDS")
	}
	if in.MinAge != nil && in.MaxAge != nil && *in.MinAge > *in.MaxAge {
		return nil, svcErr.InvalidArgument("minAge must not exceed maxAge")
	}

	previous, err := s.cachedPreferences(ctx, *user)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	p := &db.MatchmakingPreferences{
		UserID:           user.ID,
		Mode:             mode,
		Age:              in.Age,
		Country:          in.Country,
		City:             in.City,
		MinAge:           in.MinAge,
		MaxAge:           in.MaxAge,
		AllowedCountries: in.AllowedCountries,
		Interests:        in.Interests,
		OpenToAny:        in.OpenToAny,
	}
	if p.Age == nil {
		p.Age = user.Age
	}
	if p.Country == "" {
		p.Country = user.Country
	}
	if p.City == "" {
		p.City = user.City
	}

	saved, err := s.prefs.Upsert(ctx, p)
	if err != nil {
		s.appCtx.Logger.Error("Upsert preferences failed", "user", user.Username, "err", err)
		return nil, svcErr.Map(err)
	}
	s.cachePreferences(ctx, *user, saved)

	if previous != nil {
		if err := s.requeue(ctx, user.Username, s.queueKey(previous), s.queueKey(saved)); err != nil {
			s.appCtx.Logger.Warn("queue move failed", "user", user.Username, "err", err)
		}
	}

	return &api.PreferencesResponse{Preferences: api.PreferencesOf(saved)}, nil
}

func (s *Service) requeue(ctx context.Context, username, from, to string) error {
	if from == to {
		return nil
	}
	queued, err := s.store.SIsMember(ctx, from, username)
	if err != nil || !queued {
		return err
	}
	if err := s.store.SRem(ctx, from, username); err != nil {
		return err
	}
	return s.store.SAdd(ctx, to, username)
}

// GetPreferences returns the caller's stored preferences, NotFound if never set.
func (s *Service) GetPreferences(ctx context.Context, _ *api.Empty) (*api.PreferencesResponse, error) {
	user, err := caller.Resolve(ctx, s.users)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	p, err := s.cachedPreferences(ctx, *user)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if p == nil {
		return nil, svcErr.Map(fmt.Errorf("preferences for %s: %w", user.Username, svcErr.ErrNotFound))
	}
	return &api.PreferencesResponse{Preferences: api.PreferencesOf(p)}, nil
}

// Start enqueues the caller and immediately tries to match them.
//
// Behavior:
//   - Paused users get FailedPrecondition (ErrMatchingPaused).
//   - Preferences must exist (ErrPreferencesMissing otherwise).
//   - Any stale active-match pointer of the caller is cleared first.
//   - Returns MATCHED with the room on success, SEARCHING otherwise.
func (s *Service) Start(ctx context.Context, _ *api.Empty) (*api.StatusResponse, error) {
	user, err := caller.Resolve(ctx, s.users)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	s.appCtx.Logger.Debug("Start called", "user", user.Username)

	if user.MatchingPaused {
		return nil, svcErr.Map(fmt.Errorf("start for %s: %w", user.Username, svcErr.ErrMatchingPaused))
	}

	prefs, err := s.cachedPreferences(ctx, *user)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if prefs == nil {
		return nil, svcErr.Map(fmt.Errorf("start for %s: %w", user.Username, svcErr.ErrPreferencesMissing))
	}

	if err := s.store.Del(ctx, s.store.KeyForActiveMatch(user.Username)); err != nil {
		return nil, svcErr.Map(err)
	}
	if err := s.store.SAdd(ctx, s.queueKey(prefs), user.Username); err != nil {
		return nil, svcErr.Map(err)
	}

	match, err := s.attemptMatch(ctx, *user, prefs)
	if err != nil {
		s.appCtx.Logger.Error("attemptMatch failed", "user", user.Username, "err", err)
		return nil, svcErr.Map(err)
	}
	if match != nil {
		return &api.StatusResponse{Status: api.StatusMatched, Match: match}, nil
	}
	return &api.StatusResponse{Status: api.StatusSearching}, nil
}

// GetStatus reports MATCHED, SEARCHING or IDLE.
//
// Behavior:
//   - MATCHED if the active pointer names a room that is still active.
//   - A queued caller gets one more match attempt before SEARCHING is reported,
//     so polling clients are matched without calling Start again.
//   - IDLE otherwise.
func (s *Service) GetStatus(ctx context.Context, _ *api.Empty) (*api.StatusResponse, error) {
	user, err := caller.Resolve(ctx, s.users)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	s.appCtx.Logger.Debug("GetStatus called", "user", user.Username)

	active, err := s.activeMatch(ctx, *user)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if active != nil {
		return &api.StatusResponse{Status: api.StatusMatched, Match: active}, nil
	}

	prefs, err := s.cachedPreferences(ctx, *user)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if prefs == nil {
		return &api.StatusResponse{Status: api.StatusIdle}, nil
	}
	queued, err := s.store.SIsMember(ctx, s.queueKey(prefs), user.Username)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if !queued {
		return &api.StatusResponse{Status: api.StatusIdle}, nil
	}

	match, err := s.attemptMatch(ctx, *user, prefs)
	if err != nil {
		s.appCtx.Logger.Error("attemptMatch failed", "user", user.Username, "err", err)
		return nil, svcErr.Map(err)
	}
	if match != nil {
		return &api.StatusResponse{Status: api.StatusMatched, Match: match}, nil
	}
	return &api.StatusResponse{Status: api.StatusSearching}, nil
}

// activeMatch resolves the caller's pointer. A pointer to a vanished room is dropped.
func (s *Service) activeMatch(ctx context.Context, user db.User) (*api.RealtimeMatch, error) {
	key := s.store.KeyForActiveMatch(user.Username)
	roomID, ok, err := s.store.Lookup(ctx, key)
	if err != nil || !ok {
		return nil, err
	}

	room, err := s.rooms.Get(ctx, roomID)
	if errors.Is(err, svcErr.ErrNotFound) {
		_ = s.store.Del(ctx, key)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !room.Active || !room.HasParticipant(user.ID) {
		return nil, nil
	}

	other, err := s.users.GetByID(ctx, room.Other(user.ID))
	if err != nil {
		return nil, err
	}
	openers, err := s.rooms.Openers(ctx, room)
	if err != nil {
		s.appCtx.Logger.Warn("load openers failed", "room", room.RoomID, "err", err)
	}
	return &api.RealtimeMatch{RoomID: room.RoomID, OtherUser: api.ProfileOf(*other), Openers: openers}, nil
}

// Stop removes the caller from their queue and clears their pointer.
// The counterpart is not affected.
func (s *Service) Stop(ctx context.Context, _ *api.Empty) (*api.StatusResponse, error) {
	user, err := caller.Resolve(ctx, s.users)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	s.appCtx.Logger.Debug("Stop called", "user", user.Username)

	if err := s.leaveQueue(ctx, *user); err != nil {
		return nil, svcErr.Map(err)
	}
	if err := s.store.Del(ctx, s.store.KeyForActiveMatch(user.Username)); err != nil {
		return nil, svcErr.Map(err)
	}
	return &api.StatusResponse{Status: api.StatusIdle}, nil
}

func (s *Service) leaveQueue(ctx context.Context, user db.User) error {
	prefs, err := s.cachedPreferences(ctx, user)
	if err != nil || prefs == nil {
		return err
	}
	return s.store.SRem(ctx, s.queueKey(prefs), user.Username)
}

// Skip ends a real-time match.
//
// Behavior:
//   - roomId is required (InvalidArgument); unknown room → NotFound.
//   - The caller must be a participant (PermissionDenied otherwise).
//   - Sets the cooldown marker in both directions for CooldownTTL.
//   - Clears both active pointers, deactivates the room and the pair's match.
//
// Example:
//
//	svc.Skip(ctx, &api.SkipRequest{RoomID: "3f1c..."})
func (s *Service) Skip(ctx context.Context, req *api.SkipRequest) (*api.StatusResponse, error) {
	user, err := caller.Resolve(ctx, s.users)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	s.appCtx.Logger.Debug("Skip called", "user", user.Username, "room", req.RoomID)

	if strings.TrimSpace(req.RoomID) == "" {
		return nil, svcErr.InvalidArgument("roomId is required")
	}
	room, err := s.rooms.Get(ctx, req.RoomID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if !room.HasParticipant(user.ID) {
		return nil, svcErr.Map(fmt.Errorf("room %s: %w", room.RoomID, svcErr.ErrUnauthorized))
	}
	other, err := s.users.GetByID(ctx, room.Other(user.ID))
	if err != nil {
		return nil, svcErr.Map(err)
	}

	for _, k := range []string{
		s.store.KeyForCooldown(user.Username, other.Username),
		s.store.KeyForCooldown(other.Username, user.Username),
	} {
		if err := s.store.Set(ctx, k, "1", CooldownTTL); err != nil {
			return nil, svcErr.Map(err)
		}
	}
	if err := s.store.Del(ctx,
		s.store.KeyForActiveMatch(user.Username),
		s.store.KeyForActiveMatch(other.Username),
	); err != nil {
		return nil, svcErr.Map(err)
	}
	if err := s.rooms.Deactivate(ctx, room); err != nil {
		return nil, svcErr.Map(err)
	}
	if err := s.matches.Deactivate(ctx, user.ID, other.ID); err != nil {
		return nil, svcErr.Map(err)
	}

	s.appCtx.Logger.Info("match skipped", "user", user.Username, "other", other.Username, "room", room.RoomID)
	return &api.StatusResponse{Status: api.StatusIdle}, nil
}

// SetMatchingPaused toggles the caller's pause flag. Pausing also leaves the queue.
func (s *Service) SetMatchingPaused(ctx context.Context, req *api.PauseRequest) (*api.PauseResponse, error) {
	user, err := caller.Resolve(ctx, s.users)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	s.appCtx.Logger.Debug("SetMatchingPaused called", "user", user.Username, "paused", req.Paused)

	if err := s.users.SetMatchingPaused(ctx, user.ID, req.Paused); err != nil {
		return nil, svcErr.Map(err)
	}
	if req.Paused {
		if err := s.leaveQueue(ctx, *user); err != nil {
			s.appCtx.Logger.Warn("leave queue on pause failed", "user", user.Username, "err", err)
		}
	}
	return &api.PauseResponse{Paused: req.Paused}, nil
}
