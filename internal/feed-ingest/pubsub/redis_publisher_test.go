package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/bet-feed/internal/feed"
	"github.com/radieske/bet-feed/pkg/contracts/topics"
)

func setup(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func receive(t *testing.T, sub *redis.PubSub) *redis.Message {
	t.Helper()
	select {
	case msg := <-sub.Channel():
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestPublishTabDelta(t *testing.T) {
	rdb := setup(t)
	ctx := context.Background()
	sub := rdb.Subscribe(ctx, topics.FeedDeltas)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	item := feed.Item{ID: "b-1", Game: feed.DescribeGame("CRASH", ""), User: &feed.User{ID: "u-1", Name: "Alice"}}
	d := feed.NewDelta(feed.TabLuckyWinners, item, time.Unix(100, 0))
	require.NoError(t, NewRedisBroadcaster(rdb).PublishTabDelta(ctx, d))

	msg := receive(t, sub)
	assert.Equal(t, topics.FeedDeltas, msg.Channel)
	var got feed.Delta
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, feed.TabLuckyWinners, got.Tab)
	assert.Equal(t, 1, got.Count)
	require.Len(t, got.NewBets, 1)
	require.NotNil(t, got.NewBets[0].User, "bus carries unmasked items")
	assert.Equal(t, "u-1", got.NewBets[0].User.ID)
}

func TestPublishUserDelta(t *testing.T) {
	rdb := setup(t)
	ctx := context.Background()
	sub := rdb.PSubscribe(ctx, topics.FeedUserPattern)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	d := feed.NewDelta("", feed.Item{ID: "b-2"}, time.Unix(100, 0))
	require.NoError(t, NewRedisBroadcaster(rdb).PublishUserDelta(ctx, "u-7", d))

	msg := receive(t, sub)
	assert.Equal(t, "bet-feed:user:u-7", msg.Channel)
	assert.NotContains(t, msg.Payload, `"tab"`)
}
