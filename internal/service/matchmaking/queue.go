package matchmaking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/oggyb/muzz-matchmaking/internal/ai"
	"github.com/oggyb/muzz-matchmaking/internal/api"
	"github.com/oggyb/muzz-matchmaking/internal/db"
	svcErr "github.com/oggyb/muzz-matchmaking/internal/errors"
	"github.com/oggyb/muzz-matchmaking/internal/materializer"
	"github.com/oggyb/muzz-matchmaking/internal/metrics"
)

const (
	// MinScore is the lowest collaborator score that still produces a match.
	MinScore = 0.3
	// FallbackScore is used when the collaborator fails or returns nothing.
	FallbackScore = 0.5
	// CooldownTTL keeps a skipped pair apart.
	CooldownTTL = time.Hour

	maxClaimAttempts = 3
)

// CoordinationStore is the shared key-value store behind queues, pointers,
// cooldowns and cached preferences. Every method is a single atomic operation.
type CoordinationStore interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Lookup(ctx context.Context, key string) (string, bool, error)
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)
	ClaimPair(ctx context.Context, key, a, b string) (bool, error)

	KeyForQueue(mode, country string) string
	KeyForActiveMatch(username string) string
	KeyForCooldown(a, b string) string
	KeyForPreferences(username string) string
}

// Scorer is the batch-scoring collaborator.
type Scorer interface {
	BatchScore(ctx context.Context, user ai.Profile, candidates []ai.Profile) ([]ai.ScoreResult, error)
}

func (s *Service) queueKey(p *db.MatchmakingPreferences) string {
	return s.store.KeyForQueue(p.Mode, p.Country)
}

// attemptMatch tries to pair user with someone already waiting in the same queue.
//
// Behavior:
//   - Candidates: queue members except the caller, minus blocked, cooled-down and
//     paused users, then the caller's age and country preferences.
//   - Scores them with the collaborator; on failure or no results the first
//     candidate is taken with FallbackScore, otherwise the best score must reach MinScore.
//   - Both users leave the queue through one conditional removal. A lost race
//     rescans, up to maxClaimAttempts times.
//   - On success the match is materialized and both active pointers are set.
//
// Returns nil when there is no match yet; the queue is left untouched in that case.
func (s *Service) attemptMatch(ctx context.Context, user db.User, prefs *db.MatchmakingPreferences) (*api.RealtimeMatch, error) {
	key := s.queueKey(prefs)

	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		candidates, err := s.queueCandidates(ctx, user, prefs, key)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			return nil, nil
		}

		pick, score, shared := s.pick(ctx, user, prefs, candidates)
		if pick == nil {
			s.appCtx.Logger.Debug("best score below bar", "user", user.Username, "score", score)
			return nil, nil
		}

		claimed, err := s.store.ClaimPair(ctx, key, user.Username, pick.Username)
		if err != nil {
			return nil, err
		}
		if !claimed {
			metrics.QueueClaimConflicts.Inc()
			stillQueued, err := s.store.SIsMember(ctx, key, user.Username)
			if err != nil {
				return nil, err
			}
			if !stillQueued {
				// someone else matched the caller in the meantime
				return nil, nil
			}
			s.appCtx.Logger.Debug("queue claim lost, rescanning", "user", user.Username, "candidate", pick.Username, "attempt", attempt+1)
			continue
		}

		return s.complete(ctx, user, *pick, prefs, key, score, shared)
	}
	return nil, nil
}

// complete materializes a claimed pair and points both users at the room.
func (s *Service) complete(
	ctx context.Context,
	user, other db.User,
	prefs *db.MatchmakingPreferences,
	key string,
	score float64,
	shared []string,
) (*api.RealtimeMatch, error) {
	res, err := s.materialize.Materialize(ctx, materializer.Request{
		A:      user,
		B:      other,
		PrefsA: prefs,
		Mode:   prefs.Mode,
		Path:   metrics.PathRealtime,
		Score:  &score,
		Shared: shared,
	})
	if err != nil {
		// put both back so neither is silently dropped from matchmaking
		if qErr := s.store.SAdd(ctx, key, user.Username, other.Username); qErr != nil {
			s.appCtx.Logger.Error("re-enqueue failed", "key", key, "err", qErr)
		}
		return nil, fmt.Errorf("materialize %s/%s: %w", user.Username, other.Username, err)
	}

	for _, name := range []string{user.Username, other.Username} {
		if err := s.store.Set(ctx, s.store.KeyForActiveMatch(name), res.Room.RoomID, 0); err != nil {
			return nil, fmt.Errorf("set active match for %s: %w", name, err)
		}
	}

	s.appCtx.Logger.Info("realtime match", "user", user.Username, "other", other.Username, "room", res.Room.RoomID, "score", score)
	return &api.RealtimeMatch{
		RoomID:          res.Room.RoomID,
		OtherUser:       api.ProfileOf(other),
		Score:           &score,
		SharedInterests: shared,
		Openers:         res.Openers,
	}, nil
}

// queueCandidates returns the filtered queue occupants in username order.
func (s *Service) queueCandidates(ctx context.Context, user db.User, prefs *db.MatchmakingPreferences, key string) ([]db.User, error) {
	members, err := s.store.SMembers(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read queue %s: %w", key, err)
	}
	sort.Strings(members)

	names := make([]string, 0, len(members))
	for _, m := range members {
		if m == user.Username {
			continue
		}
		cooling, err := s.onCooldown(ctx, user.Username, m)
		if err != nil {
			return nil, err
		}
		if !cooling {
			names = append(names, m)
		}
	}
	if len(names) == 0 {
		return nil, nil
	}

	users, err := s.users.ListByUsernames(ctx, names)
	if err != nil {
		return nil, err
	}

	var out []db.User
	for _, c := range users {
		if !c.Active || c.MatchingPaused {
			continue
		}
		blocked, err := s.blocks.IsBlocked(ctx, user, c)
		if err != nil {
			return nil, fmt.Errorf("block check: %w", err)
		}
		if blocked || !PassesPreferences(prefs, c) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Service) onCooldown(ctx context.Context, a, b string) (bool, error) {
	for _, k := range []string{s.store.KeyForCooldown(a, b), s.store.KeyForCooldown(b, a)} {
		ok, err := s.store.Exists(ctx, k)
		if err != nil {
			return false, fmt.Errorf("cooldown check: %w", err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// PassesPreferences applies the caller's age range and allowed-country list to a candidate.
// An unknown candidate age fails any bound; OpenToAny skips the country check.
func PassesPreferences(prefs *db.MatchmakingPreferences, c db.User) bool {
	if prefs.MinAge != nil && (c.Age == nil || *c.Age < *prefs.MinAge) {
		return false
	}
	if prefs.MaxAge != nil && (c.Age == nil || *c.Age > *prefs.MaxAge) {
		return false
	}
	if prefs.OpenToAny {
		return true
	}
	if len(prefs.AllowedCountries) > 0 && !slices.Contains(prefs.AllowedCountries, c.Country) {
		return false
	}
	return true
}

// pick chooses the counterpart. A nil user means the best score missed MinScore.
func (s *Service) pick(ctx context.Context, user db.User, prefs *db.MatchmakingPreferences, candidates []db.User) (*db.User, float64, []string) {
	profiles := make([]ai.Profile, 0, len(candidates))
	for _, c := range candidates {
		profiles = append(profiles, ai.NewProfile(c, nil))
	}

	results, err := s.scorer.BatchScore(ctx, ai.NewProfile(user, prefs), profiles)
	switch {
	case err != nil:
		if !errors.Is(err, ai.ErrDisabled) {
			s.appCtx.Logger.Warn("batch scoring failed, using fallback", "user", user.Username, "err", err)
		}
		metrics.ScoringFallbacks.WithLabelValues(metrics.FallbackError).Inc()
		return &candidates[0], FallbackScore, nil
	case len(results) == 0:
		metrics.ScoringFallbacks.WithLabelValues(metrics.FallbackEmpty).Inc()
		return &candidates[0], FallbackScore, nil
	}

	best := slices.MaxFunc(results, func(a, b ai.ScoreResult) int {
		switch {
		case a.Score < b.Score:
			return -1
		case a.Score > b.Score:
			return 1
		}
		return 0
	})
	if best.Score < MinScore {
		return nil, best.Score, nil
	}
	for i := range candidates {
		if candidates[i].Username == best.CandidateUsername {
			return &candidates[i], best.Score, best.SharedInterests
		}
	}
	return &candidates[0], best.Score, best.SharedInterests
}

// cachedPreferences reads the coordination-store copy, falling back to the
// durable row and re-caching it. Returns nil if the user never set preferences.
func (s *Service) cachedPreferences(ctx context.Context, user db.User) (*db.MatchmakingPreferences, error) {
	raw, ok, err := s.store.Lookup(ctx, s.store.KeyForPreferences(user.Username))
	if err != nil {
		s.appCtx.Logger.Warn("preferences cache read failed", "user", user.Username, "err", err)
	}
	if ok {
		var p db.MatchmakingPreferences
		if err := json.Unmarshal([]byte(raw), &p); err == nil && p.UserID == user.ID {
			return &p, nil
		}
	}

	p, err := s.prefs.Get(ctx, user.ID)
	if errors.Is(err, svcErr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.cachePreferences(ctx, user, p)
	return p, nil
}

// cachePreferences is best-effort; the durable row stays authoritative.
func (s *Service) cachePreferences(ctx context.Context, user db.User, p *db.MatchmakingPreferences) {
	payload, err := json.Marshal(p)
	if err != nil {
		s.appCtx.Logger.Warn("encode preferences failed", "user", user.Username, "err", err)
		return
	}
	if err := s.store.Set(ctx, s.store.KeyForPreferences(user.Username), payload, 0); err != nil {
		s.appCtx.Logger.Warn("preferences cache write failed", "user", user.Username, "err", err)
	}
}
