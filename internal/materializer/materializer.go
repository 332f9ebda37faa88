// Package materializer turns a confirmed pair into a room, a Match row and
// match-found notifications. Shared by the real-time queue and introductions.
package materializer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oggyb/muzz-matchmaking/internal/ai"
	"github.com/oggyb/muzz-matchmaking/internal/app"
	"github.com/oggyb/muzz-matchmaking/internal/conversation"
	"github.com/oggyb/muzz-matchmaking/internal/db"
	"github.com/oggyb/muzz-matchmaking/internal/metrics"
	"github.com/oggyb/muzz-matchmaking/internal/notify"
	"github.com/oggyb/muzz-matchmaking/internal/repository"
)

// OpenerGenerator produces first-message suggestions. It never fails; it
// falls back internally.
type OpenerGenerator interface {
	GenerateOpeners(ctx context.Context, user, match ai.Profile, shared []string) []string
}

type Request struct {
	A, B db.User
	// PrefsA/PrefsB enrich the opener request; optional.
	PrefsA, PrefsB *db.MatchmakingPreferences
	Mode           string
	Path           string // metrics.PathRealtime or metrics.PathIntroduction
	Score          *float64
	Shared         []string
}

type Result struct {
	Room    *db.ChatRoom
	Match   *db.Match
	Created bool
	Openers []string
}

type Materializer struct {
	rooms    *conversation.Rooms
	matches  *repository.MatchRepository
	openers  OpenerGenerator
	notifier *notify.Publisher
	logger   *slog.Logger
}

func New(appCtx *app.AppContext, rooms *conversation.Rooms, openers OpenerGenerator) *Materializer {
	return &Materializer{
		rooms:    rooms,
		matches:  repository.NewMatchRepository(appCtx.DB),
		openers:  openers,
		notifier: notify.NewPublisher(appCtx.RedisCache, appCtx.Logger),
		logger:   appCtx.Logger,
	}
}

// Materialize links A and B.
//
// Behavior:
//   - Gets or creates the pair's room (ErrBlocked if either side blocks) and marks it active with the mode.
//   - Real-time path only: generates openers (collaborator or templated fallback) and attaches them to the room.
//   - Records the Match under canonical ordering if absent in either ordering.
//   - Notifies each user with the counterpart profile and room id. The introduction
//     path notifies only when this call created the Match.
func (m *Materializer) Materialize(ctx context.Context, req Request) (*Result, error) {
	if req.Mode == "" {
		req.Mode = db.ModeDating
	}
	realtime := req.Path == metrics.PathRealtime

	room, err := m.rooms.GetOrCreateRoom(ctx, req.A, req.B, req.Mode)
	if err != nil {
		return nil, err
	}
	if err := m.rooms.Activate(ctx, room, req.Mode); err != nil {
		return nil, fmt.Errorf("activate room %s: %w", room.RoomID, err)
	}

	res := &Result{Room: room}
	if realtime && m.openers != nil {
		res.Openers = m.openers.GenerateOpeners(ctx, ai.NewProfile(req.A, req.PrefsA), ai.NewProfile(req.B, req.PrefsB), req.Shared)
		if err := m.rooms.SaveOpeners(ctx, room, res.Openers); err != nil {
			m.logger.Warn("saving openers failed", "room", room.RoomID, "err", err)
		}
	}

	source := db.SourceIntroduction
	if realtime {
		source = db.SourceRealtime
	}
	match, created, err := m.matches.CreateIfAbsent(ctx, req.A.ID, req.B.ID, source)
	if err != nil {
		return nil, fmt.Errorf("record match: %w", err)
	}
	res.Match, res.Created = match, created

	if created {
		metrics.MatchesCreated.WithLabelValues(req.Path).Inc()
		m.logger.Info("match created", "a", req.A.Username, "b", req.B.Username, "room", room.RoomID, "path", req.Path)
	}

	if realtime || created {
		m.notify(ctx, req, room, req.A, req.B)
		m.notify(ctx, req, room, req.B, req.A)
	}
	return res, nil
}

func (m *Materializer) notify(ctx context.Context, req Request, room *db.ChatRoom, to, other db.User) {
	ev := notify.MatchFound{
		Username:  to.Username,
		RoomID:    room.RoomID,
		OtherUser: CounterpartOf(other),
	}
	if req.Path == metrics.PathRealtime {
		ev.SharedInterests = req.Shared
		ev.Score = req.Score
	}
	m.notifier.MatchFound(ctx, ev)
}

// CounterpartOf builds the public profile view of a user.
func CounterpartOf(u db.User) notify.Counterpart {
	return notify.Counterpart{
		Username:  u.Username,
		Age:       u.Age,
		Country:   u.Country,
		City:      u.City,
		Bio:       u.Bio,
		AvatarURL: u.AvatarURL,
	}
}
