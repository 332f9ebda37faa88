package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-matchmaking/internal/db"
)

// RoomRepository is the slice of the conversation store the matching core needs:
// rooms keyed by an unordered pair, their mode/active flags and opener suggestions.
type RoomRepository struct {
	db *gorm.DB
}

func NewRoomRepository(database *gorm.DB) *RoomRepository {
	return &RoomRepository{db: database}
}

// GetOrCreate returns the room for the pair, creating it if absent.
// A concurrent creator losing the unique race reads the winner's row.
func (r *RoomRepository) GetOrCreate(ctx context.Context, a, b uint64, mode string) (*db.ChatRoom, bool, error) {
	lo, hi := db.CanonicalPair(a, b)
	room := db.ChatRoom{
		RoomID:  uuid.NewString(),
		User1ID: lo,
		User2ID: hi,
		Mode:    mode,
		Active:  true,
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user1_id"}, {Name: "user2_id"}},
			DoNothing: true,
		}).
		Create(&room)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return &room, true, nil
	}

	existing, err := r.FindByPair(ctx, lo, hi)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *RoomRepository) FindByPair(ctx context.Context, a, b uint64) (*db.ChatRoom, error) {
	lo, hi := db.CanonicalPair(a, b)
	var room db.ChatRoom
	err := r.db.WithContext(ctx).
		Where("user1_id = ? AND user2_id = ?", lo, hi).
		First(&room).Error
	if err != nil {
		return nil, notFound(err, "room for pair", []uint64{lo, hi})
	}
	return &room, nil
}

func (r *RoomRepository) GetByRoomID(ctx context.Context, roomID string) (*db.ChatRoom, error) {
	var room db.ChatRoom
	if err := r.db.WithContext(ctx).Where("room_id = ?", roomID).First(&room).Error; err != nil {
		return nil, notFound(err, "room", roomID)
	}
	return &room, nil
}

// SetState records the mode and active flag the core owns on a room.
func (r *RoomRepository) SetState(ctx context.Context, id uint64, mode string, active bool) error {
	return r.db.WithContext(ctx).
		Model(&db.ChatRoom{}).
		Where("id = ?", id).
		Updates(map[string]any{"mode": mode, "active": active}).Error
}

func (r *RoomRepository) SetActive(ctx context.Context, id uint64, active bool) error {
	return r.db.WithContext(ctx).
		Model(&db.ChatRoom{}).
		Where("id = ?", id).
		Update("active", active).Error
}

// AddOpeners attaches opener suggestions to a room in order.
func (r *RoomRepository) AddOpeners(ctx context.Context, roomID uint64, texts []string) error {
	if len(texts) == 0 {
		return nil
	}
	rows := make([]db.ConversationOpener, 0, len(texts))
	for _, t := range texts {
		rows = append(rows, db.ConversationOpener{ChatRoomID: roomID, Text: t})
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

func (r *RoomRepository) Openers(ctx context.Context, roomID uint64) ([]string, error) {
	var texts []string
	err := r.db.WithContext(ctx).
		Model(&db.ConversationOpener{}).
		Where("chat_room_id = ?", roomID).
		Order("id").
		Pluck("text", &texts).Error
	return texts, err
}
