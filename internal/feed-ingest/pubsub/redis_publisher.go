package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/bet-feed/internal/feed"
	"github.com/radieske/bet-feed/pkg/contracts/topics"
)

// RedisBroadcaster publica deltas no barramento compartilhado entre instâncias.
// Os deltas saem sem máscara; cada gateway aplica a privacidade no envio.
type RedisBroadcaster struct {
	r redis.Cmdable
}

func NewRedisBroadcaster(r redis.Cmdable) *RedisBroadcaster {
	return &RedisBroadcaster{r: r}
}

// Publish envia um payload já serializado (usado também pelo canal legado)
func (b *RedisBroadcaster) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.r.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// PublishTabDelta envia o delta de uma aba para a sala compartilhada.
func (b *RedisBroadcaster) PublishTabDelta(ctx context.Context, d feed.Delta) error {
	return b.publishJSON(ctx, topics.FeedDeltas, d)
}

// PublishUserDelta envia o delta para a sala pessoal do dono da aposta.
func (b *RedisBroadcaster) PublishUserDelta(ctx context.Context, userID string, d feed.Delta) error {
	return b.publishJSON(ctx, topics.UserChannel(userID), d)
}

func (b *RedisBroadcaster) publishJSON(ctx context.Context, channel string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal delta: %w", err)
	}
	return b.Publish(ctx, channel, payload)
}
