package matchmaking_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/oggyb/muzz-matchmaking/internal/ai"
	"github.com/oggyb/muzz-matchmaking/internal/api"
	"github.com/oggyb/muzz-matchmaking/internal/blocking"
	"github.com/oggyb/muzz-matchmaking/internal/cache"
	"github.com/oggyb/muzz-matchmaking/internal/db"
	"github.com/oggyb/muzz-matchmaking/internal/identity"
	"github.com/oggyb/muzz-matchmaking/internal/service/matchmaking"
	"github.com/oggyb/muzz-matchmaking/internal/testutil"
)

const ukDating = "matchmaking:queue:DATING:UK"

type stubScorer struct {
	results []ai.ScoreResult
	err     error
	calls   int
}

func (s *stubScorer) BatchScore(_ context.Context, _ ai.Profile, _ []ai.Profile) ([]ai.ScoreResult, error) {
	s.calls++
	return s.results, s.err
}

func as(username string) context.Context {
	return identity.With(context.Background(), username)
}

func intp(v int) *int { return &v }

func setup(t *testing.T, opts ...matchmaking.Option) (*testutil.Env, *matchmaking.Service) {
	t.Helper()
	env := testutil.New(t)
	return env, matchmaking.NewMatchmakingService(env.App, opts...)
}

func withPrefs(t *testing.T, svc *matchmaking.Service, username string, p api.Preferences) {
	t.Helper()
	if p.Mode == "" {
		p.Mode = db.ModeDating
	}
	_, err := svc.UpdatePreferences(as(username), &api.PreferencesRequest{Preferences: p})
	require.NoError(t, err)
}

func queued(t *testing.T, env *testutil.Env, key, username string) bool {
	t.Helper()
	ok, err := env.Redis.SIsMember(key, username)
	if err != nil {
		return false
	}
	return ok
}

func TestStart_Preconditions(t *testing.T) {
	env, svc := setup(t)
	env.SeedUser(t, testutil.UserSpec{Username: "alice"})
	env.SeedUser(t, testutil.UserSpec{Username: "paula", Paused: true})

	_, err := svc.Start(as("alice"), &api.Empty{})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	assert.False(t, queued(t, env, ukDating, "alice"))

	withPrefs(t, svc, "paula", api.Preferences{})
	_, err = svc.Start(as("paula"), &api.Empty{})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	assert.False(t, queued(t, env, ukDating, "paula"))

	_, err = svc.Start(context.Background(), &api.Empty{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestStart_AloneKeepsSearching(t *testing.T) {
	env, svc := setup(t)
	env.SeedUser(t, testutil.UserSpec{Username: "alice"})
	withPrefs(t, svc, "alice", api.Preferences{})

	resp, err := svc.Start(as("alice"), &api.Empty{})
	require.NoError(t, err)
	assert.Equal(t, api.StatusSearching, resp.Status)
	assert.True(t, queued(t, env, ukDating, "alice"))

	st, err := svc.GetStatus(as("alice"), &api.Empty{})
	require.NoError(t, err)
	assert.Equal(t, api.StatusSearching, st.Status)
	assert.True(t, queued(t, env, ukDating, "alice"))
}

func TestStart_FallbackMatchesFirstCandidate(t *testing.T) {
	scorer := &stubScorer{err: errors.New("collaborator down")}
	env, svc := setup(t, matchmaking.WithScorer(scorer))
	env.SeedUser(t, testutil.UserSpec{Username: "alice", Gender: "female"})
	env.SeedUser(t, testutil.UserSpec{Username: "bob", Age: 31})
	withPrefs(t, svc, "alice", api.Preferences{})
	withPrefs(t, svc, "bob", api.Preferences{})

	_, err := svc.Start(as("alice"), &api.Empty{})
	require.NoError(t, err)

	resp, err := svc.Start(as("bob"), &api.Empty{})
	require.NoError(t, err)
	require.Equal(t, api.StatusMatched, resp.Status)
	require.NotNil(t, resp.Match)
	assert.Equal(t, "alice", resp.Match.OtherUser.Username)
	require.NotNil(t, resp.Match.Score)
	assert.Equal(t, matchmaking.FallbackScore, *resp.Match.Score)
	assert.NotEmpty(t, resp.Match.Openers)
	assert.Equal(t, 1, scorer.calls)

	assert.False(t, queued(t, env, ukDating, "alice"))
	assert.False(t, queued(t, env, ukDating, "bob"))

	for _, name := range []string{"alice", "bob"} {
		roomID, err := env.Redis.Get(env.App.RedisCache.KeyForActiveMatch(name))
		require.NoError(t, err)
		assert.Equal(t, resp.Match.RoomID, roomID)
	}

	st, err := svc.GetStatus(as("alice"), &api.Empty{})
	require.NoError(t, err)
	assert.Equal(t, api.StatusMatched, st.Status)
	assert.Equal(t, "bob", st.Match.OtherUser.Username)
	assert.Equal(t, 31, *st.Match.OtherUser.Age)

	var m db.Match
	require.NoError(t, env.DB.First(&m).Error)
	assert.Equal(t, db.SourceRealtime, m.Source)

	var room db.ChatRoom
	require.NoError(t, env.DB.Where("room_id = ?", resp.Match.RoomID).First(&room).Error)
	assert.Equal(t, db.ModeDating, room.Mode)
	assert.True(t, room.Active)
}

func TestStart_EmptyScoresFallBack(t *testing.T) {
	env, svc := setup(t, matchmaking.WithScorer(&stubScorer{}))
	env.SeedUser(t, testutil.UserSpec{Username: "alice"})
	env.SeedUser(t, testutil.UserSpec{Username: "bob"})
	withPrefs(t, svc, "alice", api.Preferences{})
	withPrefs(t, svc, "bob", api.Preferences{})

	_, err := svc.Start(as("alice"), &api.Empty{})
	require.NoError(t, err)
	resp, err := svc.Start(as("bob"), &api.Empty{})
	require.NoError(t, err)
	assert.Equal(t, api.StatusMatched, resp.Status)
}

func TestStart_BelowBarIsNoMatch(t *testing.T) {
	scorer := &stubScorer{results: []ai.ScoreResult{{CandidateUsername: "alice", Score: 0.2}}}
	env, svc := setup(t, matchmaking.WithScorer(scorer))
	env.SeedUser(t, testutil.UserSpec{Username: "alice"})
	env.SeedUser(t, testutil.UserSpec{Username: "bob"})
	withPrefs(t, svc, "alice", api.Preferences{})
	withPrefs(t, svc, "bob", api.Preferences{})

	_, err := svc.Start(as("alice"), &api.Empty{})
	require.NoError(t, err)
	resp, err := svc.Start(as("bob"), &api.Empty{})
	require.NoError(t, err)
	assert.Equal(t, api.StatusSearching, resp.Status)
	assert.True(t, queued(t, env, ukDating, "alice"))
	assert.True(t, queued(t, env, ukDating, "bob"))

	var count int64
	require.NoError(t, env.DB.Model(&db.Match{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestStart_PicksBestScore(t *testing.T) {
	scorer := &stubScorer{results: []ai.ScoreResult{
		{CandidateUsername: "carol", Score: 0.4},
		{CandidateUsername: "dave", Score: 0.9, SharedInterests: []string{"music"}},
	}}
	env, svc := setup(t, matchmaking.WithScorer(scorer))
	for _, name := range []string{"alice", "carol", "dave"} {
		env.SeedUser(t, testutil.UserSpec{Username: name})
	}
	withPrefs(t, svc, "carol", api.Preferences{})
	withPrefs(t, svc, "dave", api.Preferences{})
	withPrefs(t, svc, "alice", api.Preferences{})
	require.NoError(t, env.App.RedisCache.SAdd(context.Background(), ukDating, "carol", "dave"))

	resp, err := svc.Start(as("alice"), &api.Empty{})
	require.NoError(t, err)
	require.Equal(t, api.StatusMatched, resp.Status)
	assert.Equal(t, "dave", resp.Match.OtherUser.Username)
	assert.Equal(t, 0.9, *resp.Match.Score)
	assert.Equal(t, []string{"music"}, resp.Match.SharedInterests)
	assert.True(t, queued(t, env, ukDating, "carol"))
}

func TestAttempt_FiltersCandidates(t *testing.T) {
	ctx := context.Background()

	t.Run("blocked", func(t *testing.T) {
		env, svc := setup(t)
		alice := env.SeedUser(t, testutil.UserSpec{Username: "alice"})
		bob := env.SeedUser(t, testutil.UserSpec{Username: "bob"})
		require.NoError(t, blocking.NewService(env.App).Block(ctx, bob, alice))
		withPrefs(t, svc, "alice", api.Preferences{})
		withPrefs(t, svc, "bob", api.Preferences{})

		_, err := svc.Start(as("bob"), &api.Empty{})
		require.NoError(t, err)
		resp, err := svc.Start(as("alice"), &api.Empty{})
		require.NoError(t, err)
		assert.Equal(t, api.StatusSearching, resp.Status)
	})

	t.Run("age range", func(t *testing.T) {
		env, svc := setup(t)
		env.SeedUser(t, testutil.UserSpec{Username: "alice", Age: 30})
		env.SeedUser(t, testutil.UserSpec{Username: "young", Age: 22})
		env.SeedUser(t, testutil.UserSpec{Username: "unknown"})
		withPrefs(t, svc, "young", api.Preferences{})
		withPrefs(t, svc, "unknown", api.Preferences{})
		withPrefs(t, svc, "alice", api.Preferences{MinAge: intp(25), MaxAge: intp(35)})
		require.NoError(t, env.App.RedisCache.SAdd(ctx, ukDating, "young", "unknown"))

		resp, err := svc.Start(as("alice"), &api.Empty{})
		require.NoError(t, err)
		assert.Equal(t, api.StatusSearching, resp.Status)
	})

	t.Run("paused candidate", func(t *testing.T) {
		env, svc := setup(t)
		env.SeedUser(t, testutil.UserSpec{Username: "alice"})
		env.SeedUser(t, testutil.UserSpec{Username: "bob", Paused: true})
		withPrefs(t, svc, "alice", api.Preferences{})
		require.NoError(t, env.App.RedisCache.SAdd(ctx, ukDating, "bob"))

		resp, err := svc.Start(as("alice"), &api.Empty{})
		require.NoError(t, err)
		assert.Equal(t, api.StatusSearching, resp.Status)
	})

	t.Run("modes are separate queues", func(t *testing.T) {
		env, svc := setup(t)
		env.SeedUser(t, testutil.UserSpec{Username: "alice"})
		env.SeedUser(t, testutil.UserSpec{Username: "bob"})
		withPrefs(t, svc, "alice", api.Preferences{Mode: db.ModeFriends})
		withPrefs(t, svc, "bob", api.Preferences{})

		_, err := svc.Start(as("bob"), &api.Empty{})
		require.NoError(t, err)
		resp, err := svc.Start(as("alice"), &api.Empty{})
		require.NoError(t, err)
		assert.Equal(t, api.StatusSearching, resp.Status)
		assert.True(t, queued(t, env, "matchmaking:queue:FRIENDS:UK", "alice"))
	})
}

func TestPassesPreferences(t *testing.T) {
	tests := []struct {
		name  string
		prefs db.MatchmakingPreferences
		user  db.User
		want  bool
	}{
		{"no constraints", db.MatchmakingPreferences{}, db.User{}, true},
		{"below min", db.MatchmakingPreferences{MinAge: intp(25)}, db.User{Age: intp(20)}, false},
		{"above max", db.MatchmakingPreferences{MaxAge: intp(25)}, db.User{Age: intp(30)}, false},
		{"unknown age with bound", db.MatchmakingPreferences{MinAge: intp(18)}, db.User{}, false},
		{"in range", db.MatchmakingPreferences{MinAge: intp(18), MaxAge: intp(40)}, db.User{Age: intp(30)}, true},
		{"country not allowed", db.MatchmakingPreferences{AllowedCountries: []string{"FR"}}, db.User{Country: "UK"}, false},
		{"country allowed", db.MatchmakingPreferences{AllowedCountries: []string{"FR", "UK"}}, db.User{Country: "UK"}, true},
		{"open to any", db.MatchmakingPreferences{AllowedCountries: []string{"FR"}, OpenToAny: true}, db.User{Country: "UK"}, true},
		{"open to any keeps age", db.MatchmakingPreferences{MinAge: intp(30), OpenToAny: true}, db.User{Age: intp(20)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchmaking.PassesPreferences(&tt.prefs, tt.user))
		})
	}
}

func TestGetStatus_PollingMatches(t *testing.T) {
	env, svc := setup(t)
	env.SeedUser(t, testutil.UserSpec{Username: "alice"})
	env.SeedUser(t, testutil.UserSpec{Username: "bob"})
	withPrefs(t, svc, "alice", api.Preferences{})
	withPrefs(t, svc, "bob", api.Preferences{})

	resp, err := svc.Start(as("alice"), &api.Empty{})
	require.NoError(t, err)
	require.Equal(t, api.StatusSearching, resp.Status)

	// bob joins without running his own attempt
	require.NoError(t, env.App.RedisCache.SAdd(context.Background(), ukDating, "bob"))

	st, err := svc.GetStatus(as("alice"), &api.Empty{})
	require.NoError(t, err)
	assert.Equal(t, api.StatusMatched, st.Status)
	assert.Equal(t, "bob", st.Match.OtherUser.Username)

	st, err = svc.GetStatus(as("bob"), &api.Empty{})
	require.NoError(t, err)
	assert.Equal(t, api.StatusMatched, st.Status)
	assert.Equal(t, "alice", st.Match.OtherUser.Username)
}

func TestGetStatus_IdleWithoutQueue(t *testing.T) {
	env, svc := setup(t)
	env.SeedUser(t, testutil.UserSpec{Username: "alice"})

	st, err := svc.GetStatus(as("alice"), &api.Empty{})
	require.NoError(t, err)
	assert.Equal(t, api.StatusIdle, st.Status)

	withPrefs(t, svc, "alice", api.Preferences{})
	st, err = svc.GetStatus(as("alice"), &api.Empty{})
	require.NoError(t, err)
	assert.Equal(t, api.StatusIdle, st.Status)
}

func matchPair(t *testing.T, env *testutil.Env, svc *matchmaking.Service) string {
	t.Helper()
	env.SeedUser(t, testutil.UserSpec{Username: "alice"})
	env.SeedUser(t, testutil.UserSpec{Username: "bob"})
	withPrefs(t, svc, "alice", api.Preferences{})
	withPrefs(t, svc, "bob", api.Preferences{})
	_, err := svc.Start(as("alice"), &api.Empty{})
	require.NoError(t, err)
	resp, err := svc.Start(as("bob"), &api.Empty{})
	require.NoError(t, err)
	require.Equal(t, api.StatusMatched, resp.Status)
	return resp.Match.RoomID
}

func TestStop(t *testing.T) {
	env, svc := setup(t)
	roomID := matchPair(t, env, svc)

	resp, err := svc.Stop(as("alice"), &api.Empty{})
	require.NoError(t, err)
	assert.Equal(t, api.StatusIdle, resp.Status)
	assert.False(t, env.Redis.Exists(env.App.RedisCache.KeyForActiveMatch("alice")))

	// the counterpart keeps their pointer
	got, err := env.Redis.Get(env.App.RedisCache.KeyForActiveMatch("bob"))
	require.NoError(t, err)
	assert.Equal(t, roomID, got)

	st, err := svc.GetStatus(as("alice"), &api.Empty{})
	require.NoError(t, err)
	assert.Equal(t, api.StatusIdle, st.Status)
}

func TestSkip_CooldownBothWays(t *testing.T) {
	env, svc := setup(t)
	roomID := matchPair(t, env, svc)

	resp, err := svc.Skip(as("bob"), &api.SkipRequest{RoomID: roomID})
	require.NoError(t, err)
	assert.Equal(t, api.StatusIdle, resp.Status)

	rc := env.App.RedisCache
	assert.True(t, env.Redis.Exists(rc.KeyForCooldown("alice", "bob")))
	assert.True(t, env.Redis.Exists(rc.KeyForCooldown("bob", "alice")))
	assert.Equal(t, matchmaking.CooldownTTL, env.Redis.TTL(rc.KeyForCooldown("alice", "bob")))
	assert.False(t, env.Redis.Exists(rc.KeyForActiveMatch("alice")))
	assert.False(t, env.Redis.Exists(rc.KeyForActiveMatch("bob")))

	var room db.ChatRoom
	require.NoError(t, env.DB.Where("room_id = ?", roomID).First(&room).Error)
	assert.False(t, room.Active)

	// neither side can be matched with the other while cooling down
	for _, name := range []string{"alice", "bob"} {
		r, err := svc.Start(as(name), &api.Empty{})
		require.NoError(t, err)
		assert.Equal(t, api.StatusSearching, r.Status, name)
	}

	env.Redis.FastForward(matchmaking.CooldownTTL + time.Minute)

	st, err := svc.GetStatus(as("alice"), &api.Empty{})
	require.NoError(t, err)
	assert.Equal(t, api.StatusMatched, st.Status)
	assert.Equal(t, roomID, st.Match.RoomID, "the pair reuses its room")
}

func TestSkip_Errors(t *testing.T) {
	env, svc := setup(t)
	roomID := matchPair(t, env, svc)
	env.SeedUser(t, testutil.UserSpec{Username: "mallory"})

	_, err := svc.Skip(as("alice"), &api.SkipRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = svc.Skip(as("alice"), &api.SkipRequest{RoomID: "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = svc.Skip(as("mallory"), &api.SkipRequest{RoomID: roomID})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

// racingStore loses the first claim by removing the picked candidate first,
// as a concurrent matcher would.
type racingStore struct {
	*cache.RedisCache
	stolen bool
}

func (r *racingStore) ClaimPair(ctx context.Context, key, a, b string) (bool, error) {
	if !r.stolen {
		r.stolen = true
		if err := r.SRem(ctx, key, b); err != nil {
			return false, err
		}
	}
	return r.RedisCache.ClaimPair(ctx, key, a, b)
}

func TestAttempt_LostClaimRescans(t *testing.T) {
	env := testutil.New(t)
	svc := matchmaking.NewMatchmakingService(env.App, matchmaking.WithStore(&racingStore{RedisCache: env.App.RedisCache}))
	for _, name := range []string{"alice", "bob", "carol"} {
		env.SeedUser(t, testutil.UserSpec{Username: name})
		withPrefs(t, svc, name, api.Preferences{})
	}
	require.NoError(t, env.App.RedisCache.SAdd(context.Background(), ukDating, "bob", "carol"))

	resp, err := svc.Start(as("alice"), &api.Empty{})
	require.NoError(t, err)
	require.Equal(t, api.StatusMatched, resp.Status)
	// bob was taken by the simulated concurrent matcher
	assert.Equal(t, "carol", resp.Match.OtherUser.Username)
}

func TestUpdatePreferences(t *testing.T) {
	env, svc := setup(t)
	env.SeedUser(t, testutil.UserSpec{Username: "alice", Age: 28, Country: "UK"})

	t.Run("defaults from profile", func(t *testing.T) {
		resp, err := svc.UpdatePreferences(as("alice"), &api.PreferencesRequest{Preferences: api.Preferences{
			Mode: "dating", Interests: []string{"music"},
		}})
		require.NoError(t, err)
		assert.Equal(t, db.ModeDating, resp.Preferences.Mode)
		assert.Equal(t, 28, *resp.Preferences.Age)
		assert.Equal(t, "UK", resp.Preferences.Country)
		assert.Equal(t, "London", resp.Preferences.City)
		assert.Equal(t, []string{"music"}, resp.Preferences.Interests)

		got, err := svc.GetPreferences(as("alice"), &api.Empty{})
		require.NoError(t, err)
		assert.Equal(t, resp.Preferences, got.Preferences)
	})

	t.Run("moves queued user to the new queue", func(t *testing.T) {
		_, err := svc.Start(as("alice"), &api.Empty{})
		require.NoError(t, err)
		require.True(t, queued(t, env, ukDating, "alice"))

		withPrefs(t, svc, "alice", api.Preferences{Country: "FR"})
		assert.False(t, queued(t, env, ukDating, "alice"))
		assert.True(t, queued(t, env, "matchmaking:queue:DATING:FR", "alice"))
	})

	t.Run("validation", func(t *testing.T) {
		_, err := svc.UpdatePreferences(as("alice"), &api.PreferencesRequest{Preferences: api.Preferences{Mode: "SPEED"}})
		assert.Equal(t, codes.InvalidArgument, status.Code(err))

		_, err = svc.UpdatePreferences(as("alice"), &api.PreferencesRequest{Preferences: api.Preferences{
			Mode: db.ModeDating, MinAge: intp(40), MaxAge: intp(30),
		}})
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})
}

func TestSetMatchingPaused(t *testing.T) {
	env, svc := setup(t)
	env.SeedUser(t, testutil.UserSpec{Username: "alice"})
	withPrefs(t, svc, "alice", api.Preferences{})

	_, err := svc.Start(as("alice"), &api.Empty{})
	require.NoError(t, err)

	resp, err := svc.SetMatchingPaused(as("alice"), &api.PauseRequest{Paused: true})
	require.NoError(t, err)
	assert.True(t, resp.Paused)
	assert.False(t, queued(t, env, ukDating, "alice"))

	_, err = svc.Start(as("alice"), &api.Empty{})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = svc.SetMatchingPaused(as("alice"), &api.PauseRequest{Paused: false})
	require.NoError(t, err)
	r, err := svc.Start(as("alice"), &api.Empty{})
	require.NoError(t, err)
	assert.Equal(t, api.StatusSearching, r.Status)
}

func TestStart_ConcurrentCallersNeverDoubleMatch(t *testing.T) {
	env, svc := setup(t)
	sqlDB, err := env.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1) // sqlite shared cache; Redis claims still race

	const n = 8
	names := make([]string, n)
	ids := make(map[uint64]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("user%d", i)
		u := env.SeedUser(t, testutil.UserSpec{Username: names[i]})
		ids[u.ID] = names[i]
		withPrefs(t, svc, names[i], api.Preferences{})
	}

	errs := make([]error, n)
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			_, errs[i] = svc.Start(as(name), &api.Empty{})
		}(i, name)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, names[i])
	}

	var rows []db.Match
	require.NoError(t, env.DB.Where("active = ?", true).Find(&rows).Error)
	require.NotEmpty(t, rows)

	perUser := map[string]int{}
	for _, m := range rows {
		perUser[ids[m.UserAID]]++
		perUser[ids[m.UserBID]]++
	}
	for _, name := range names {
		assert.LessOrEqual(t, perUser[name], 1, "%s matched more than once", name)

		pointed := env.Redis.Exists(env.App.RedisCache.KeyForActiveMatch(name))
		assert.False(t, pointed && queued(t, env, ukDating, name), "%s is both queued and matched", name)
		assert.Equal(t, perUser[name] == 1, pointed, "%s pointer disagrees with match rows", name)
	}
}
