// Package api holds the request/response messages shared by the gRPC and REST
// transports. The acting user is never part of a message; it travels in the
// context (see package identity).
package api

// Match statuses reported by the real-time queue.
const (
	StatusIdle      = "IDLE"
	StatusSearching = "SEARCHING"
	StatusMatched   = "MATCHED"
)

type Empty struct{}

// Profile is the public view of another user.
type Profile struct {
	Username  string `json:"username"`
	Gender    string `json:"gender,omitempty"`
	Age       *int   `json:"age,omitempty"`
	Country   string `json:"country,omitempty"`
	City      string `json:"city,omitempty"`
	Bio       string `json:"bio,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

//
// Introductions
//

type Introduction struct {
	ID        uint64   `json:"id"`
	Profile   Profile  `json:"profile"`
	Score     float64  `json:"score"`
	Signals   []string `json:"signals"`
	Reasons   []string `json:"reasons"`
	Status    string   `json:"status"`
	MatchDate string   `json:"matchDate"`
}

type GetIntroductionsResponse struct {
	Date          string         `json:"date"`
	Introductions []Introduction `json:"introductions"`
}

type IntroductionRequest struct {
	ID uint64 `json:"id"`
}

type IntroductionResponse struct {
	Introduction Introduction `json:"introduction"`
}

type AcceptResponse struct {
	Introduction Introduction `json:"introduction"`
	Matched      bool         `json:"matched"`
	RoomID       string       `json:"roomId,omitempty"`
}

//
// Real-time matchmaking
//

type Preferences struct {
	Mode             string   `json:"mode"`
	Age              *int     `json:"age,omitempty"`
	Country          string   `json:"country,omitempty"`
	City             string   `json:"city,omitempty"`
	MinAge           *int     `json:"minAge,omitempty"`
	MaxAge           *int     `json:"maxAge,omitempty"`
	AllowedCountries []string `json:"allowedCountries,omitempty"`
	Interests        []string `json:"interests,omitempty"`
	OpenToAny        bool     `json:"openToAny"`
}

type PreferencesRequest struct {
	Preferences Preferences `json:"preferences"`
}

type PreferencesResponse struct {
	Preferences Preferences `json:"preferences"`
}

// RealtimeMatch describes the room a successful attempt produced.
type RealtimeMatch struct {
	RoomID          string   `json:"roomId"`
	OtherUser       Profile  `json:"otherUser"`
	Score           *float64 `json:"score,omitempty"`
	SharedInterests []string `json:"sharedInterests,omitempty"`
	Openers         []string `json:"openers,omitempty"`
}

// StatusResponse answers start and status. Match is set only when MATCHED.
type StatusResponse struct {
	Status string         `json:"status"`
	Match  *RealtimeMatch `json:"match,omitempty"`
}

type SkipRequest struct {
	RoomID string `json:"roomId"`
}

type PauseRequest struct {
	Paused bool `json:"paused"`
}

type PauseResponse struct {
	Paused bool `json:"paused"`
}

//
// Questionnaire
//

type Question struct {
	ID           uint64   `json:"id"`
	Text         string   `json:"text"`
	Type         string   `json:"type"`
	Options      []string `json:"options,omitempty"`
	Weight       float64  `json:"weight"`
	DisplayOrder int      `json:"displayOrder"`
}

type ListQuestionsResponse struct {
	Questions []Question `json:"questions"`
}

type Answer struct {
	QuestionID uint64 `json:"questionId"`
	Value      string `json:"value"`
}

type SubmitAnswersRequest struct {
	Answers []Answer `json:"answers"`
}

type SubmitAnswersResponse struct {
	Saved    int   `json:"saved"`
	Answered int64 `json:"answered"`
}

//
// Matches
//

type Match struct {
	ID        uint64  `json:"id"`
	RoomID    string  `json:"roomId,omitempty"`
	OtherUser Profile `json:"otherUser"`
	Source    string  `json:"source"`
	MatchedAt int64   `json:"matchedAt"` // unix millis
}

type ListMatchesRequest struct {
	PaginationToken *string `json:"paginationToken,omitempty"`
}

type ListMatchesResponse struct {
	Matches             []Match `json:"matches"`
	NextPaginationToken *string `json:"nextPaginationToken,omitempty"`
}

type GetMatchRequest struct {
	ID uint64 `json:"id"`
}

type GetMatchResponse struct {
	Match Match `json:"match"`
}
