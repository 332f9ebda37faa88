// Package blocking exposes the yes/no block predicate the matching core consults.
package blocking

import (
	"context"
	"log/slog"

	"github.com/oggyb/muzz-matchmaking/internal/app"
	"github.com/oggyb/muzz-matchmaking/internal/cache"
	"github.com/oggyb/muzz-matchmaking/internal/db"
	"github.com/oggyb/muzz-matchmaking/internal/repository"
)

// Service answers IsBlocked from the Redis set user:blocked:<name> first and
// the blocks table second. The cache only ever holds positive edges.
type Service struct {
	repo   *repository.BlockRepository
	cache  *cache.RedisCache
	logger *slog.Logger
}

func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		repo:   repository.NewBlockRepository(appCtx.DB),
		cache:  appCtx.RedisCache,
		logger: appCtx.Logger,
	}
}

// IsBlocked reports whether either user blocked the other.
func (s *Service) IsBlocked(ctx context.Context, a, b db.User) (bool, error) {
	if s.cached(ctx, a.Username, b.Username) || s.cached(ctx, b.Username, a.Username) {
		return true, nil
	}

	blocked, err := s.repo.Between(ctx, a.ID, b.ID)
	if err != nil {
		return false, err
	}
	if blocked {
		s.warm(ctx, a, b)
	}
	return blocked, nil
}

// Related returns the ids of everyone with a block edge to or from the user.
// The blocks table is authoritative; the cache holds only pairwise hits.
func (s *Service) Related(ctx context.Context, user db.User) (map[uint64]struct{}, error) {
	return s.repo.Related(ctx, user.ID)
}

// Block records blocker → blocked and mirrors it in the cache.
func (s *Service) Block(ctx context.Context, blocker, blocked db.User) error {
	if err := s.repo.Create(ctx, blocker.ID, blocked.ID); err != nil {
		return err
	}
	if err := s.cache.SAdd(ctx, s.cache.KeyForBlocked(blocker.Username), blocked.Username); err != nil {
		s.logger.Warn("block cache update failed", "blocker", blocker.Username, "err", err)
	}
	return nil
}

func (s *Service) Unblock(ctx context.Context, blocker, blocked db.User) error {
	if err := s.repo.Delete(ctx, blocker.ID, blocked.ID); err != nil {
		return err
	}
	if err := s.cache.SRem(ctx, s.cache.KeyForBlocked(blocker.Username), blocked.Username); err != nil {
		s.logger.Warn("block cache update failed", "blocker", blocker.Username, "err", err)
	}
	return nil
}

func (s *Service) cached(ctx context.Context, blocker, blocked string) bool {
	ok, err := s.cache.SIsMember(ctx, s.cache.KeyForBlocked(blocker), blocked)
	if err != nil {
		s.logger.Debug("block cache read failed", "blocker", blocker, "err", err)
		return false
	}
	return ok
}

// warm copies the directed edges for the pair into the cache.
func (s *Service) warm(ctx context.Context, a, b db.User) {
	for _, pair := range [][2]db.User{{a, b}, {b, a}} {
		ids, err := s.repo.BlockedBy(ctx, pair[0].ID)
		if err != nil {
			return
		}
		for _, id := range ids {
			if id == pair[1].ID {
				_ = s.cache.SAdd(ctx, s.cache.KeyForBlocked(pair[0].Username), pair[1].Username)
			}
		}
	}
}
