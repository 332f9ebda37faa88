// Package testutil wires an isolated sqlite + miniredis AppContext for tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/oggyb/muzz-matchmaking/internal/app"
	"github.com/oggyb/muzz-matchmaking/internal/cache"
	"github.com/oggyb/muzz-matchmaking/internal/config"
	"github.com/oggyb/muzz-matchmaking/internal/db"
	"github.com/oggyb/muzz-matchmaking/internal/logger"
)

// Env is what a test needs to drive services and inspect state.
type Env struct {
	App   *app.AppContext
	DB    *gorm.DB
	Redis *miniredis.Miniredis
}

// New spins up an in-memory SQLite DB (migrated), a miniredis and an AppContext
// with logs discarded. AI is disabled unless the test sets Config.AI.URL.
//
// Each test gets its own isolated DB + Redis.
func New(t *testing.T) *Env {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dbase, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		NowFunc:                func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	sqlDB, err := dbase.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(dbase))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	cfg.AI.URL = ""

	redisCache := cache.NewRedisCache(cfg)
	t.Cleanup(func() { _ = redisCache.Close() })

	return &Env{
		App:   app.New(dbase, redisCache, logger.Discard(), cfg),
		DB:    dbase,
		Redis: mr,
	}
}

// UserSpec describes a seeded user. Zero values get sensible defaults.
type UserSpec struct {
	Username string
	Gender   string
	Seeking  string
	Age      int
	Country  string
	Bio      string
	Paused   bool
	// Answers maps question display order to value.
	Answers map[int]string
}

// SeedQuestions inserts the default catalog and returns it keyed by display order.
func (e *Env) SeedQuestions(t *testing.T) map[int]db.QuestionnaireQuestion {
	t.Helper()
	_, err := db.SeedQuestions(e.DB)
	require.NoError(t, err)

	var qs []db.QuestionnaireQuestion
	require.NoError(t, e.DB.Find(&qs).Error)
	out := make(map[int]db.QuestionnaireQuestion, len(qs))
	for _, q := range qs {
		out[q.DisplayOrder] = q
	}
	return out
}

// SeedUser inserts a user plus answers. Questions must already be seeded when
// Answers is non-empty.
func (e *Env) SeedUser(t *testing.T, spec UserSpec) db.User {
	t.Helper()
	if spec.Gender == "" {
		spec.Gender = "male"
	}
	if spec.Country == "" {
		spec.Country = "UK"
	}
	u := db.User{
		Username:       spec.Username,
		Email:          spec.Username + "@test.com",
		PasswordHash:   "x",
		Active:         true,
		Gender:         spec.Gender,
		Seeking:        spec.Seeking,
		Bio:            spec.Bio,
		Country:        spec.Country,
		City:           "London",
		MatchingPaused: spec.Paused,
	}
	if spec.Age > 0 {
		age := spec.Age
		u.Age = &age
	}
	require.NoError(t, e.DB.Create(&u).Error)

	if len(spec.Answers) > 0 {
		var qs []db.QuestionnaireQuestion
		require.NoError(t, e.DB.Find(&qs).Error)
		byOrder := make(map[int]uint64, len(qs))
		for _, q := range qs {
			byOrder[q.DisplayOrder] = q.ID
		}
		for order, value := range spec.Answers {
			qid, ok := byOrder[order]
			require.True(t, ok, "question %d not seeded", order)
			require.NoError(t, e.DB.Create(&db.QuestionnaireAnswer{UserID: u.ID, QuestionID: qid, Value: value}).Error)
		}
	}
	return u
}

// SamePicks answers the first three multiple-choice questions with their first option.
func SamePicks() map[int]string {
	return map[int]string{1: "Trust and honesty", 2: "Outdoors and adventure", 4: "Dinner and conversation"}
}
