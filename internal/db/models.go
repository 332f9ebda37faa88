package db

import (
	"time"

	"gorm.io/datatypes"
)

// User is owned by the account subsystem. The matching core only reads it,
// except for MatchingPaused.
type User struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement"`
	Username       string `gorm:"uniqueIndex;size:64;not null"`
	Email          string `gorm:"uniqueIndex;size:128;not null"`
	PasswordHash   string `gorm:"size:255;not null"`
	Active         bool   `gorm:"default:true"`
	Gender         string `gorm:"size:16;not null"`
	Orientation    string `gorm:"size:32"`
	Seeking        string `gorm:"size:16"` // MEN, WOMEN, EVERYONE
	Bio            string `gorm:"type:text"`
	Age            *int
	Country        string `gorm:"size:64"`
	City           string `gorm:"size:64"`
	AvatarURL      string `gorm:"size:255"`
	MatchingPaused bool   `gorm:"not null;default:false"`
	LastLoginAt    *time.Time
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// UserPrompt is a free-text profile prompt answer. Only read for
// shared-interest keyword extraction.
type UserPrompt struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	UserID    uint64    `gorm:"not null;index"`
	Text      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Question types.
const (
	QuestionMultipleChoice = "MULTIPLE_CHOICE"
	QuestionScale          = "SCALE"
	QuestionText           = "TEXT"
)

// QuestionnaireQuestion is immutable seed data.
type QuestionnaireQuestion struct {
	ID           uint64                      `gorm:"primaryKey;autoIncrement"`
	Text         string                      `gorm:"type:text;not null"`
	Type         string                      `gorm:"size:32;not null"`
	Options      datatypes.JSONSlice[string] `gorm:"type:text"`
	Weight       float64                     `gorm:"not null;default:1"`
	DisplayOrder int                         `gorm:"not null;index"`
	CreatedAt    time.Time                   `gorm:"autoCreateTime"`
}

// QuestionnaireAnswer holds one answer per (user, question).
type QuestionnaireAnswer struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	UserID     uint64    `gorm:"not null;uniqueIndex:idx_answer_user_question,priority:1"`
	QuestionID uint64    `gorm:"not null;uniqueIndex:idx_answer_user_question,priority:2"`
	Value      string    `gorm:"type:text;not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

// Matchmaking modes partition queues and preferences.
const (
	ModeDating  = "DATING"
	ModeFriends = "FRIENDS"
)

// MatchmakingPreferences is one-to-one with User.
type MatchmakingPreferences struct {
	ID               uint64                      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID           uint64                      `gorm:"not null;uniqueIndex" json:"user_id"`
	Mode             string                      `gorm:"size:16;not null" json:"mode"`
	Age              *int                        `json:"age,omitempty"`
	Country          string                      `gorm:"size:64" json:"country,omitempty"`
	City             string                      `gorm:"size:64" json:"city,omitempty"`
	MinAge           *int                        `json:"min_age,omitempty"`
	MaxAge           *int                        `json:"max_age,omitempty"`
	AllowedCountries datatypes.JSONSlice[string] `gorm:"type:text" json:"allowed_countries,omitempty"`
	Interests        datatypes.JSONSlice[string] `gorm:"type:text" json:"interests,omitempty"`
	OpenToAny        bool                        `gorm:"not null;default:false" json:"open_to_any"`
	CreatedAt        time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MatchmakingPreferences) TableName() string { return "matchmaking_preferences" }

// CandidateStatus is the introduction state machine:
//
//	PENDING -> SHOWN -> {ACCEPTED, PASSED}
//	PENDING -> {ACCEPTED, PASSED}
type CandidateStatus string

const (
	CandidatePending  CandidateStatus = "PENDING"
	CandidateShown    CandidateStatus = "SHOWN"
	CandidateAccepted CandidateStatus = "ACCEPTED"
	CandidatePassed   CandidateStatus = "PASSED"
)

// Terminal reports whether no further transition is allowed except
// idempotent re-entry.
func (s CandidateStatus) Terminal() bool {
	return s == CandidateAccepted || s == CandidatePassed
}

// Reasons is the stored explanation attached to a Candidate.
type Reasons struct {
	Signals             []string `json:"signals"`
	Reasons             []string `json:"reasons"`
	ContributingFactors int      `json:"contributingFactors"`
}

// Candidate is a scored daily introduction of CandidateUserID to UserID.
//
// Unique: (UserID, CandidateUserID, MatchDate). MatchDate is YYYY-MM-DD in UTC.
type Candidate struct {
	ID              uint64                      `gorm:"primaryKey;autoIncrement"`
	UserID          uint64                      `gorm:"not null;uniqueIndex:idx_candidate_triple,priority:1;index:idx_candidate_user_date,priority:1"`
	CandidateUserID uint64                      `gorm:"not null;uniqueIndex:idx_candidate_triple,priority:2"`
	MatchDate       string                      `gorm:"size:10;not null;uniqueIndex:idx_candidate_triple,priority:3;index:idx_candidate_user_date,priority:2"`
	Score           float64                     `gorm:"not null"`
	Reasons         datatypes.JSONType[Reasons] `gorm:"type:text"`
	Status          CandidateStatus             `gorm:"size:16;not null;default:PENDING"`
	SurfacedAt      *time.Time
	CreatedAt       time.Time `gorm:"autoCreateTime"`
}

func (Candidate) TableName() string { return "match_candidates" }

// Match sources.
const (
	SourceRealtime     = "REALTIME"
	SourceIntroduction = "INTRODUCTION"
)

// Match is an unordered pair stored with the lower user id first.
type Match struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	UserAID   uint64    `gorm:"column:user_a_id;not null;uniqueIndex:idx_match_pair,priority:1"`
	UserBID   uint64    `gorm:"column:user_b_id;not null;uniqueIndex:idx_match_pair,priority:2;index"`
	Active    bool      `gorm:"not null;default:true"`
	Source    string    `gorm:"size:16"`
	MatchedAt time.Time `gorm:"autoCreateTime;index"`
}

// Other returns the counterpart of userID in the pair.
func (m Match) Other(userID uint64) uint64 {
	if m.UserAID == userID {
		return m.UserBID
	}
	return m.UserAID
}

// ChatRoom belongs to the conversation subsystem. The pair is stored in
// canonical order so a pair maps to exactly one room.
type ChatRoom struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	RoomID        string    `gorm:"uniqueIndex;size:36;not null"`
	User1ID       uint64    `gorm:"column:user1_id;not null;uniqueIndex:idx_room_pair,priority:1"`
	User2ID       uint64    `gorm:"column:user2_id;not null;uniqueIndex:idx_room_pair,priority:2"`
	Mode          string    `gorm:"size:16;not null;default:DATING"`
	Active        bool      `gorm:"not null;default:true"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	LastMessageAt time.Time `gorm:"autoCreateTime"`
}

// HasParticipant reports whether userID is one side of the room.
func (r ChatRoom) HasParticipant(userID uint64) bool {
	return r.User1ID == userID || r.User2ID == userID
}

// Other returns the counterpart of userID in the room.
func (r ChatRoom) Other(userID uint64) uint64 {
	if r.User1ID == userID {
		return r.User2ID
	}
	return r.User1ID
}

// ConversationOpener is a suggested first message attached to a room.
type ConversationOpener struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	ChatRoomID uint64    `gorm:"not null;index"`
	Text       string    `gorm:"type:text;not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

// Block is a directed block relationship. Consulted symmetrically.
type Block struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	BlockerID uint64    `gorm:"not null;uniqueIndex:idx_block_pair,priority:1"`
	BlockedID uint64    `gorm:"not null;uniqueIndex:idx_block_pair,priority:2"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&User{}, &UserPrompt{}, &QuestionnaireQuestion{}, &QuestionnaireAnswer{},
		&MatchmakingPreferences{}, &Candidate{}, &Match{}, &ChatRoom{},
		&ConversationOpener{}, &Block{},
	}
}

// CanonicalPair orders two user ids lower-first.
func CanonicalPair(a, b uint64) (uint64, uint64) {
	if a < b {
		return a, b
	}
	return b, a
}
