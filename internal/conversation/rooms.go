// Package conversation is the boundary to the conversation subsystem: rooms
// keyed by a user pair plus opener suggestions. Message storage lives elsewhere.
package conversation

import (
	"context"
	"fmt"

	"github.com/oggyb/muzz-matchmaking/internal/app"
	"github.com/oggyb/muzz-matchmaking/internal/db"
	svcErr "github.com/oggyb/muzz-matchmaking/internal/errors"
	"github.com/oggyb/muzz-matchmaking/internal/filter"
	"github.com/oggyb/muzz-matchmaking/internal/repository"
)

type Rooms struct {
	repo   *repository.RoomRepository
	blocks filter.BlockChecker
}

func NewRooms(appCtx *app.AppContext, blocks filter.BlockChecker) *Rooms {
	return &Rooms{repo: repository.NewRoomRepository(appCtx.DB), blocks: blocks}
}

// GetOrCreateRoom returns the single room for the pair, creating it if needed.
// Fails with ErrBlocked if either user blocked the other.
func (r *Rooms) GetOrCreateRoom(ctx context.Context, a, b db.User, mode string) (*db.ChatRoom, error) {
	blocked, err := r.blocks.IsBlocked(ctx, a, b)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, fmt.Errorf("room %s/%s: %w", a.Username, b.Username, svcErr.ErrBlocked)
	}
	room, _, err := r.repo.GetOrCreate(ctx, a.ID, b.ID, mode)
	return room, err
}

// Activate records the mode and marks the room active.
func (r *Rooms) Activate(ctx context.Context, room *db.ChatRoom, mode string) error {
	if err := r.repo.SetState(ctx, room.ID, mode, true); err != nil {
		return err
	}
	room.Mode, room.Active = mode, true
	return nil
}

func (r *Rooms) Deactivate(ctx context.Context, room *db.ChatRoom) error {
	if err := r.repo.SetActive(ctx, room.ID, false); err != nil {
		return err
	}
	room.Active = false
	return nil
}

func (r *Rooms) Get(ctx context.Context, roomID string) (*db.ChatRoom, error) {
	return r.repo.GetByRoomID(ctx, roomID)
}

func (r *Rooms) FindByPair(ctx context.Context, a, b uint64) (*db.ChatRoom, error) {
	return r.repo.FindByPair(ctx, a, b)
}

func (r *Rooms) SaveOpeners(ctx context.Context, room *db.ChatRoom, openers []string) error {
	return r.repo.AddOpeners(ctx, room.ID, openers)
}

func (r *Rooms) Openers(ctx context.Context, room *db.ChatRoom) ([]string, error) {
	return r.repo.Openers(ctx, room.ID)
}
