// Package notify publishes match-found events on per-user Redis channels.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/oggyb/muzz-matchmaking/internal/cache"
)

const TypeMatchFound = "match_found"

// Counterpart is the profile view of the other user in an event.
type Counterpart struct {
	Username  string `json:"username"`
	Age       *int   `json:"age,omitempty"`
	Country   string `json:"country,omitempty"`
	City      string `json:"city,omitempty"`
	Bio       string `json:"bio,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// MatchFound is published to user:<username>:match.
// SharedInterests and Score are only set on the real-time path.
type MatchFound struct {
	Type            string      `json:"type"`
	Username        string      `json:"username"`
	RoomID          string      `json:"roomId"`
	OtherUser       Counterpart `json:"otherUser"`
	SharedInterests []string    `json:"sharedInterests,omitempty"`
	Score           *float64    `json:"score,omitempty"`
}

type Publisher struct {
	cache  *cache.RedisCache
	logger *slog.Logger
}

func NewPublisher(c *cache.RedisCache, logger *slog.Logger) *Publisher {
	return &Publisher{cache: c, logger: logger}
}

// MatchFound delivers the event to one user. Failures are logged, never returned.
func (p *Publisher) MatchFound(ctx context.Context, ev MatchFound) {
	ev.Type = TypeMatchFound
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("encode match event failed", "user", ev.Username, "err", err)
		return
	}
	if err := p.cache.Publish(ctx, p.cache.ChannelForMatch(ev.Username), payload); err != nil {
		p.logger.Warn("publish match event failed", "user", ev.Username, "err", err)
	}
}
