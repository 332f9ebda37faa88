package matches_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/oggyb/muzz-matchmaking/internal/api"
	"github.com/oggyb/muzz-matchmaking/internal/db"
	"github.com/oggyb/muzz-matchmaking/internal/identity"
	"github.com/oggyb/muzz-matchmaking/internal/repository"
	"github.com/oggyb/muzz-matchmaking/internal/service/matches"
	"github.com/oggyb/muzz-matchmaking/internal/testutil"
)

func as(username string) context.Context {
	return identity.With(context.Background(), username)
}

func TestListMatches_Paginates(t *testing.T) {
	env := testutil.New(t)
	ctx := context.Background()
	alice := env.SeedUser(t, testutil.UserSpec{Username: "alice"})
	repo := repository.NewMatchRepository(env.DB)
	rooms := repository.NewRoomRepository(env.DB)

	total := matches.PageSize + 2
	for i := 0; i < total; i++ {
		u := env.SeedUser(t, testutil.UserSpec{Username: fmt.Sprintf("user%02d", i)})
		_, _, err := repo.CreateIfAbsent(ctx, alice.ID, u.ID, db.SourceIntroduction)
		require.NoError(t, err)
		if i == 0 {
			_, _, err := rooms.GetOrCreate(ctx, alice.ID, u.ID, db.ModeDating)
			require.NoError(t, err)
		}
	}

	svc := matches.NewMatchesService(env.App)
	first, err := svc.ListMatches(as("alice"), &api.ListMatchesRequest{})
	require.NoError(t, err)
	require.Len(t, first.Matches, matches.PageSize)
	require.NotNil(t, first.NextPaginationToken)

	second, err := svc.ListMatches(as("alice"), &api.ListMatchesRequest{PaginationToken: first.NextPaginationToken})
	require.NoError(t, err)
	require.Len(t, second.Matches, 2)
	assert.Nil(t, second.NextPaginationToken)

	seen := map[uint64]bool{}
	for _, m := range append(first.Matches, second.Matches...) {
		assert.False(t, seen[m.ID], "duplicate match %d", m.ID)
		seen[m.ID] = true
		assert.NotEqual(t, "alice", m.OtherUser.Username)
	}
	// the oldest match is the one with a room
	assert.Equal(t, "user00", second.Matches[1].OtherUser.Username)
	assert.NotEmpty(t, second.Matches[1].RoomID)

	bad := "not-a-token"
	_, err = svc.ListMatches(as("alice"), &api.ListMatchesRequest{PaginationToken: &bad})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGetMatch(t *testing.T) {
	env := testutil.New(t)
	ctx := context.Background()
	alice := env.SeedUser(t, testutil.UserSpec{Username: "alice"})
	bob := env.SeedUser(t, testutil.UserSpec{Username: "bob", Bio: "hi"})
	env.SeedUser(t, testutil.UserSpec{Username: "mallory"})

	m, _, err := repository.NewMatchRepository(env.DB).CreateIfAbsent(ctx, alice.ID, bob.ID, db.SourceRealtime)
	require.NoError(t, err)

	svc := matches.NewMatchesService(env.App)
	resp, err := svc.GetMatch(as("alice"), &api.GetMatchRequest{ID: m.ID})
	require.NoError(t, err)
	assert.Equal(t, "bob", resp.Match.OtherUser.Username)
	assert.Equal(t, "hi", resp.Match.OtherUser.Bio)
	assert.Equal(t, db.SourceRealtime, resp.Match.Source)
	assert.Empty(t, resp.Match.RoomID)

	_, err = svc.GetMatch(as("mallory"), &api.GetMatchRequest{ID: m.ID})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = svc.GetMatch(as("alice"), &api.GetMatchRequest{ID: 999})
	assert.Equal(t, codes.NotFound, status.Code(err))
}
