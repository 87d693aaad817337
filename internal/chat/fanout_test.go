package chat

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swapmeet/marketplace/backend/internal/models"
)

func TestLocalFanout_RequiresStart(t *testing.T) {
	f := NewLocalFanout()
	assert.Error(t, f.Publish(context.Background(), Delivery{All: true}))

	var got []Delivery
	require.NoError(t, f.Start(func(d Delivery) { got = append(got, d) }))
	require.NoError(t, f.Publish(context.Background(), Delivery{Room: "item-1"}))
	assert.Equal(t, []Delivery{{Room: "item-1"}}, got)
}

func TestRoomArg(t *testing.T) {
	name, ok := roomArg(json.RawMessage(`"item-7"`))
	assert.True(t, ok)
	assert.Equal(t, "item-7", name)

	name, ok = roomArg(json.RawMessage(`7`))
	assert.True(t, ok)
	assert.Equal(t, "item-7", name)

	for _, bad := range []string{`""`, `-1`, `{}`, `null`} {
		_, ok = roomArg(json.RawMessage(bad))
		assert.False(t, ok, bad)
	}
}

// Two relays sharing a Redis channel behave like one: a message sent
// through the first reaches a room member attached to the second.
func TestRedisFanout_SpansInstances(t *testing.T) {
	_ = godotenv.Load("../../.env")
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")})
	t.Cleanup(func() { rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())

	log := logrus.New()
	log.SetOutput(io.Discard)
	channel := "swapmeet:test:" + uuid.NewString()

	w := newWorld(t, WithFanout(NewRedisFanout(rdb, channel, log)))
	second, err := NewRelay(w.db, WithFanout(NewRedisFanout(rdb, channel, log)))
	require.NoError(t, err)
	t.Cleanup(func() { second.Close() })

	member := second.Attach(w.buyer.ID)
	second.Join(member, RoomName(w.item.ID))

	_, err = w.relay.Send(context.Background(), nil, w.owner.ID, models.SendRequest{ItemID: w.item.ID, Text: "across"})
	require.NoError(t, err)

	select {
	case raw := <-member.Frames():
		var f Frame
		require.NoError(t, json.Unmarshal(raw, &f))
		assert.Equal(t, EventReceiveMessage, f.Event)
	case <-time.After(3 * time.Second):
		t.Fatal("delivery did not cross instances")
	}
}
