package matches

import (
	"context"
	"errors"
	"fmt"

	"github.com/oggyb/muzz-matchmaking/internal/api"
	"github.com/oggyb/muzz-matchmaking/internal/app"
	"github.com/oggyb/muzz-matchmaking/internal/db"
	svcErr "github.com/oggyb/muzz-matchmaking/internal/errors"
	"github.com/oggyb/muzz-matchmaking/internal/repository"
	"github.com/oggyb/muzz-matchmaking/internal/service/caller"
)

// PageSize is the number of matches per page.
const PageSize = 10

// Service lists the caller's confirmed matches from either path.
type Service struct {
	appCtx  *app.AppContext
	users   *repository.UserRepository
	matches *repository.MatchRepository
	rooms   *repository.RoomRepository
}

func NewMatchesService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:  appCtx,
		users:   repository.NewUserRepository(appCtx.DB),
		matches: repository.NewMatchRepository(appCtx.DB),
		rooms:   repository.NewRoomRepository(appCtx.DB),
	}
}

// ListMatches returns the caller's active matches, newest first.
//
// Behavior:
//   - Cursor-based pagination via paginationToken; a malformed token is InvalidArgument.
//   - Each entry carries the counterpart profile and the pair's room id, if any.
//
// Example:
//
//	svc.ListMatches(ctx, &api.ListMatchesRequest{})
func (s *Service) ListMatches(ctx context.Context, req *api.ListMatchesRequest) (*api.ListMatchesResponse, error) {
	user, err := caller.Resolve(ctx, s.users)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	s.appCtx.Logger.Debug("ListMatches called", "user", user.Username, "token", req.PaginationToken)

	rows, next, err := s.matches.ListActive(ctx, user.ID, req.PaginationToken, PageSize)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	ids := make([]uint64, 0, len(rows))
	for _, m := range rows {
		ids = append(ids, m.Other(user.ID))
	}
	people, err := s.users.ListByIDs(ctx, ids)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	resp := &api.ListMatchesResponse{Matches: []api.Match{}, NextPaginationToken: next}
	for _, m := range rows {
		other, ok := people[m.Other(user.ID)]
		if !ok {
			continue
		}
		view, err := s.view(ctx, m, other)
		if err != nil {
			return nil, svcErr.Map(err)
		}
		resp.Matches = append(resp.Matches, view)
	}

	s.appCtx.Logger.Debug("ListMatches result", "user", user.Username, "count", len(resp.Matches))
	return resp, nil
}

// GetMatch returns one match. Callers outside the pair get PermissionDenied.
func (s *Service) GetMatch(ctx context.Context, req *api.GetMatchRequest) (*api.GetMatchResponse, error) {
	user, err := caller.Resolve(ctx, s.users)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	s.appCtx.Logger.Debug("GetMatch called", "user", user.Username, "match", req.ID)

	m, err := s.matches.GetByID(ctx, req.ID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if m.UserAID != user.ID && m.UserBID != user.ID {
		return nil, svcErr.Map(fmt.Errorf("match %d: %w", m.ID, svcErr.ErrUnauthorized))
	}
	other, err := s.users.GetByID(ctx, m.Other(user.ID))
	if err != nil {
		return nil, svcErr.Map(err)
	}
	view, err := s.view(ctx, *m, *other)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &api.GetMatchResponse{Match: view}, nil
}

func (s *Service) view(ctx context.Context, m db.Match, other db.User) (api.Match, error) {
	v := api.Match{
		ID:        m.ID,
		OtherUser: api.ProfileOf(other),
		Source:    m.Source,
		MatchedAt: m.MatchedAt.UnixMilli(),
	}
	room, err := s.rooms.FindByPair(ctx, m.UserAID, m.UserBID)
	switch {
	case err == nil:
		v.RoomID = room.RoomID
	case !errors.Is(err, svcErr.ErrNotFound):
		return v, err
	}
	return v, nil
}
