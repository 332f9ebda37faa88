package materializer_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-matchmaking/internal/ai"
	"github.com/oggyb/muzz-matchmaking/internal/blocking"
	"github.com/oggyb/muzz-matchmaking/internal/conversation"
	"github.com/oggyb/muzz-matchmaking/internal/db"
	svcErr "github.com/oggyb/muzz-matchmaking/internal/errors"
	"github.com/oggyb/muzz-matchmaking/internal/materializer"
	"github.com/oggyb/muzz-matchmaking/internal/metrics"
	"github.com/oggyb/muzz-matchmaking/internal/notify"
	"github.com/oggyb/muzz-matchmaking/internal/testutil"
)

type stubOpeners struct {
	calls int
	out   []string
}

func (s *stubOpeners) GenerateOpeners(_ context.Context, _, _ ai.Profile, _ []string) []string {
	s.calls++
	return s.out
}

func setup(t *testing.T) (*testutil.Env, *materializer.Materializer, *stubOpeners, *blocking.Service) {
	env := testutil.New(t)
	blocks := blocking.NewService(env.App)
	openers := &stubOpeners{out: []string{"Hi!", "Hello!"}}
	m := materializer.New(env.App, conversation.NewRooms(env.App, blocks), openers)
	return env, m, openers, blocks
}

func TestMaterialize_RealtimeCreatesRoomMatchAndOpeners(t *testing.T) {
	env, m, openers, _ := setup(t)
	ctx := context.Background()
	alice := env.SeedUser(t, testutil.UserSpec{Username: "alice", Gender: "female"})
	bob := env.SeedUser(t, testutil.UserSpec{Username: "bob"})

	before := promtest.ToFloat64(metrics.MatchesCreated.WithLabelValues(metrics.PathRealtime))

	score := 0.8
	res, err := m.Materialize(ctx, materializer.Request{
		A: bob, B: alice, Mode: db.ModeFriends, Path: metrics.PathRealtime, Score: &score, Shared: []string{"music"},
	})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.True(t, res.Room.Active)
	assert.Equal(t, db.ModeFriends, res.Room.Mode)
	assert.Equal(t, []string{"Hi!", "Hello!"}, res.Openers)
	assert.Equal(t, 1, openers.calls)

	// canonical ordering regardless of argument order
	assert.Equal(t, alice.ID, res.Match.UserAID)
	assert.Equal(t, bob.ID, res.Match.UserBID)
	assert.Equal(t, db.SourceRealtime, res.Match.Source)

	var stored []db.ConversationOpener
	require.NoError(t, env.DB.Where("chat_room_id = ?", res.Room.ID).Find(&stored).Error)
	assert.Len(t, stored, 2)

	after := promtest.ToFloat64(metrics.MatchesCreated.WithLabelValues(metrics.PathRealtime))
	assert.Equal(t, before+1, after)
}

func TestMaterialize_ReusesRoomAndMatch(t *testing.T) {
	env, m, _, _ := setup(t)
	ctx := context.Background()
	alice := env.SeedUser(t, testutil.UserSpec{Username: "alice"})
	bob := env.SeedUser(t, testutil.UserSpec{Username: "bob"})

	first, err := m.Materialize(ctx, materializer.Request{A: alice, B: bob, Path: metrics.PathIntroduction})
	require.NoError(t, err)
	second, err := m.Materialize(ctx, materializer.Request{A: bob, B: alice, Path: metrics.PathIntroduction})
	require.NoError(t, err)

	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, first.Room.RoomID, second.Room.RoomID)
	assert.Equal(t, first.Match.ID, second.Match.ID)
	assert.Equal(t, db.ModeDating, second.Room.Mode)
	assert.Empty(t, second.Openers)

	var count int64
	require.NoError(t, env.DB.Model(&db.Match{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestMaterialize_BlockedPair(t *testing.T) {
	env, m, _, blocks := setup(t)
	ctx := context.Background()
	alice := env.SeedUser(t, testutil.UserSpec{Username: "alice"})
	bob := env.SeedUser(t, testutil.UserSpec{Username: "bob"})
	require.NoError(t, blocks.Block(ctx, bob, alice))

	_, err := m.Materialize(ctx, materializer.Request{A: alice, B: bob, Path: metrics.PathRealtime})
	require.ErrorIs(t, err, svcErr.ErrBlocked)

	var count int64
	require.NoError(t, env.DB.Model(&db.Match{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestMaterialize_NotifiesBothUsers(t *testing.T) {
	env, m, _, _ := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	alice := env.SeedUser(t, testutil.UserSpec{Username: "alice"})
	bob := env.SeedUser(t, testutil.UserSpec{Username: "bob"})

	rc := env.App.RedisCache
	sub := rc.Client.Subscribe(ctx, rc.ChannelForMatch("alice"), rc.ChannelForMatch("bob"))
	defer sub.Close()
	for i := 0; i < 2; i++ {
		_, err := sub.Receive(ctx)
		require.NoError(t, err)
	}

	res, err := m.Materialize(ctx, materializer.Request{A: alice, B: bob, Path: metrics.PathIntroduction})
	require.NoError(t, err)

	got := map[string]notify.MatchFound{}
	for i := 0; i < 2; i++ {
		msg, err := sub.ReceiveMessage(ctx)
		require.NoError(t, err)
		var ev notify.MatchFound
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
		got[ev.Username] = ev
	}
	assert.Equal(t, "bob", got["alice"].OtherUser.Username)
	assert.Equal(t, "alice", got["bob"].OtherUser.Username)
	assert.Equal(t, res.Room.RoomID, got["alice"].RoomID)
	assert.Nil(t, got["alice"].Score)
}
