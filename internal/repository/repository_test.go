package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-matchmaking/internal/db"
	svcErr "github.com/oggyb/muzz-matchmaking/internal/errors"
	"github.com/oggyb/muzz-matchmaking/internal/repository"
)

// setup in-memory DB
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	})
	require.NoError(t, err)
	sqlDB, err := database.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(database))
	return database
}

func seedUsers(t *testing.T, gdb *gorm.DB, names ...string) []db.User {
	t.Helper()
	users := make([]db.User, 0, len(names))
	for i, n := range names {
		users = append(users, db.User{
			ID: uint64(i + 1), Username: n, Email: n + "@test.com", PasswordHash: "x", Gender: "male", Active: true,
		})
	}
	require.NoError(t, gdb.Create(&users).Error)
	return users
}

func TestCandidateInsertIfAbsent(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCandidateRepository(setupTestDB(t))

	c := db.Candidate{UserID: 1, CandidateUserID: 2, MatchDate: "2026-10-14", Score: 0.8, Status: db.CandidatePending}
	inserted, err := repo.InsertIfAbsent(ctx, &c)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := db.Candidate{UserID: 1, CandidateUserID: 2, MatchDate: "2026-10-14", Score: 0.1, Status: db.CandidatePending}
	inserted, err = repo.InsertIfAbsent(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	rows, err := repo.ListForDate(ctx, 1, "2026-10-14", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 0.8, rows[0].Score)
}

func TestCandidateReasonsRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCandidateRepository(setupTestDB(t))

	c := db.Candidate{
		UserID: 1, CandidateUserID: 2, MatchDate: "2026-10-14", Score: 0.9, Status: db.CandidatePending,
		Reasons: datatypes.NewJSONType(db.Reasons{
			Signals:             []string{"What energizes you most?"},
			Reasons:             []string{"Shared values: What energizes you most?"},
			ContributingFactors: 1,
		}),
	}
	_, err := repo.InsertIfAbsent(ctx, &c)
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"What energizes you most?"}, got.Reasons.Data().Signals)
	assert.Equal(t, 1, got.Reasons.Data().ContributingFactors)
}

func TestCandidateStateMachine(t *testing.T) {
	ctx := context.Background()
	gdb := setupTestDB(t)
	repo := repository.NewCandidateRepository(gdb)

	c := db.Candidate{UserID: 1, CandidateUserID: 2, MatchDate: "2026-10-14", Score: 0.7, Status: db.CandidatePending}
	_, err := repo.InsertIfAbsent(ctx, &c)
	require.NoError(t, err)

	first := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.MarkShown(ctx, c.ID, first))
	require.NoError(t, repo.Resolve(ctx, c.ID, db.CandidateAccepted, first.Add(time.Hour)))
	// idempotent re-entry
	require.NoError(t, repo.Resolve(ctx, c.ID, db.CandidateAccepted, first.Add(2*time.Hour)))
	// shown after terminal is a no-op
	require.NoError(t, repo.MarkShown(ctx, c.ID, first.Add(3*time.Hour)))

	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, db.CandidateAccepted, got.Status)
	require.NotNil(t, got.SurfacedAt)
	assert.True(t, got.SurfacedAt.Equal(first), "surfaced time must never be overwritten")

	err = repo.Resolve(ctx, c.ID, db.CandidatePassed, first)
	assert.ErrorIs(t, err, svcErr.ErrBadRequest)

	err = repo.Resolve(ctx, c.ID, db.CandidateShown, first)
	assert.ErrorIs(t, err, svcErr.ErrBadRequest, "resolve only targets terminal states")

	assert.True(t, db.CandidatePassed.Terminal())
	assert.False(t, db.CandidatePending.Terminal())
	assert.False(t, db.CandidateShown.Terminal())
}

func TestCandidateGetByID_NotFound(t *testing.T) {
	repo := repository.NewCandidateRepository(setupTestDB(t))
	_, err := repo.GetByID(context.Background(), 404)
	assert.ErrorIs(t, err, svcErr.ErrNotFound)
}

func TestPassedSince(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewCandidateRepository(setupTestDB(t))

	rows := []db.Candidate{
		{UserID: 1, CandidateUserID: 2, MatchDate: "2026-10-10", Status: db.CandidatePassed},
		{UserID: 1, CandidateUserID: 3, MatchDate: "2026-10-01", Status: db.CandidatePassed}, // too old
		{UserID: 1, CandidateUserID: 4, MatchDate: "2026-10-12", Status: db.CandidateAccepted},
		{UserID: 5, CandidateUserID: 1, MatchDate: "2026-10-12", Status: db.CandidatePassed}, // other user's history
	}
	for i := range rows {
		_, err := repo.InsertIfAbsent(ctx, &rows[i])
		require.NoError(t, err)
	}

	passed, err := repo.PassedSince(ctx, 1, "2026-10-07")
	require.NoError(t, err)
	assert.Equal(t, map[uint64]struct{}{2: {}}, passed)
}

func TestMatchCreateIfAbsent_Canonical(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMatchRepository(setupTestDB(t))

	m, created, err := repo.CreateIfAbsent(ctx, 7, 3, db.SourceIntroduction)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, uint64(3), m.UserAID)
	assert.Equal(t, uint64(7), m.UserBID)

	again, created, err := repo.CreateIfAbsent(ctx, 3, 7, db.SourceRealtime)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, m.ID, again.ID)

	require.NoError(t, repo.Deactivate(ctx, 7, 3))
	revived, created, err := repo.CreateIfAbsent(ctx, 7, 3, db.SourceRealtime)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, m.ID, revived.ID)
	assert.True(t, revived.Active)
}

func TestMatchListActive_Pagination(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMatchRepository(setupTestDB(t))

	for other := uint64(2); other <= 6; other++ {
		_, _, err := repo.CreateIfAbsent(ctx, 1, other, db.SourceRealtime)
		require.NoError(t, err)
	}
	require.NoError(t, repo.Deactivate(ctx, 1, 6))

	page1, next, err := repo.ListActive(ctx, 1, nil, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	require.NotNil(t, next)

	page2, next, err := repo.ListActive(ctx, 1, next, 2)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Nil(t, next)

	seen := map[uint64]bool{}
	for _, m := range append(page1, page2...) {
		assert.False(t, seen[m.ID], "match listed twice")
		seen[m.ID] = true
		assert.NotEqual(t, uint64(6), m.Other(1))
	}

	bad := "%%%"
	_, _, err = repo.ListActive(ctx, 1, &bad, 2)
	assert.ErrorIs(t, err, svcErr.ErrBadRequest)
}

func TestRoomGetOrCreate_ReusesPair(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewRoomRepository(setupTestDB(t))

	room, created, err := repo.GetOrCreate(ctx, 2, 1, db.ModeDating)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, room.RoomID, 36)

	same, created, err := repo.GetOrCreate(ctx, 1, 2, db.ModeFriends)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, room.RoomID, same.RoomID)

	require.NoError(t, repo.AddOpeners(ctx, room.ID, []string{"hi", "hello"}))
	texts, err := repo.Openers(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"hi", "hello"}, texts)
}

func TestBlockBetween_Symmetric(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewBlockRepository(setupTestDB(t))

	require.NoError(t, repo.Create(ctx, 1, 2))
	require.NoError(t, repo.Create(ctx, 1, 2))

	for _, pair := range [][2]uint64{{1, 2}, {2, 1}} {
		blocked, err := repo.Between(ctx, pair[0], pair[1])
		require.NoError(t, err)
		assert.True(t, blocked)
	}
	related, err := repo.Related(ctx, 2)
	require.NoError(t, err)
	assert.Contains(t, related, uint64(1))

	require.NoError(t, repo.Delete(ctx, 1, 2))
	blocked, err := repo.Between(ctx, 2, 1)
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestUpsertAnswers(t *testing.T) {
	ctx := context.Background()
	gdb := setupTestDB(t)
	repo := repository.NewQuestionnaireRepository(gdb)
	seedUsers(t, gdb, "alice")
	_, err := db.SeedQuestions(gdb)
	require.NoError(t, err)

	require.NoError(t, repo.UpsertAnswers(ctx, 1, []db.QuestionnaireAnswer{{QuestionID: 1, Value: "Trust and honesty"}}))
	require.NoError(t, repo.UpsertAnswers(ctx, 1, []db.QuestionnaireAnswer{{QuestionID: 1, Value: "Independence"}, {QuestionID: 3, Value: "4"}}))

	answers, err := repo.AnswersForUsers(ctx, []uint64{1})
	require.NoError(t, err)
	require.Len(t, answers[1], 2)
	assert.Equal(t, "Independence", answers[1][0].Value)

	n, err := repo.AnswerCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestPreferencesUpsert(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewPreferencesRepository(setupTestDB(t))

	_, err := repo.Get(ctx, 1)
	assert.ErrorIs(t, err, svcErr.ErrNotFound)

	minAge := 25
	stored, err := repo.Upsert(ctx, &db.MatchmakingPreferences{UserID: 1, Mode: db.ModeDating, MinAge: &minAge, AllowedCountries: []string{"UK"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"UK"}, []string(stored.AllowedCountries))

	stored, err = repo.Upsert(ctx, &db.MatchmakingPreferences{UserID: 1, Mode: db.ModeFriends, OpenToAny: true})
	require.NoError(t, err)
	assert.Equal(t, db.ModeFriends, stored.Mode)
	assert.True(t, stored.OpenToAny)
	assert.Nil(t, stored.MinAge)
}

func TestUserListing(t *testing.T) {
	ctx := context.Background()
	gdb := setupTestDB(t)
	repo := repository.NewUserRepository(gdb)
	seedUsers(t, gdb, "alice", "bob", "carol")
	require.NoError(t, gdb.Create(&db.QuestionnaireAnswer{UserID: 2, QuestionID: 1, Value: "x"}).Error)

	others, err := repo.ListOthers(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, others, 2)

	ordered, err := repo.ListByUsernames(ctx, []string{"carol", "ghost", "alice"})
	require.NoError(t, err)
	require.Len(t, ordered, 2)
	assert.Equal(t, "carol", ordered[0].Username)

	matchable, err := repo.ListMatchable(ctx)
	require.NoError(t, err)
	require.Len(t, matchable, 1)
	assert.Equal(t, "bob", matchable[0].Username)

	require.NoError(t, repo.SetMatchingPaused(ctx, 2, true))
	matchable, err = repo.ListMatchable(ctx)
	require.NoError(t, err)
	assert.Empty(t, matchable)

	assert.ErrorIs(t, repo.SetMatchingPaused(ctx, 99, true), svcErr.ErrNotFound)
}
