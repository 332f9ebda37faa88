package notify_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-matchmaking/internal/cache"
	"github.com/oggyb/muzz-matchmaking/internal/config"
	"github.com/oggyb/muzz-matchmaking/internal/notify"
)

func TestMatchFound_PublishesToUserChannel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	rc := cache.NewRedisCache(cfg)
	defer rc.Close()

	sub := rc.Client.Subscribe(ctx, "user:alice:match")
	defer sub.Close()
	_, err = sub.Receive(ctx) // subscription confirmation
	require.NoError(t, err)

	score := 0.9
	pub := notify.NewPublisher(rc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	pub.MatchFound(ctx, notify.MatchFound{
		Username:        "alice",
		RoomID:          "room-1",
		OtherUser:       notify.Counterpart{Username: "bob"},
		SharedInterests: []string{"music"},
		Score:           &score,
	})

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var ev notify.MatchFound
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
	assert.Equal(t, notify.TypeMatchFound, ev.Type)
	assert.Equal(t, "room-1", ev.RoomID)
	assert.Equal(t, "bob", ev.OtherUser.Username)
	require.NotNil(t, ev.Score)
	assert.Equal(t, 0.9, *ev.Score)
}
