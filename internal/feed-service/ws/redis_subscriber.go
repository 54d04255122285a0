package ws

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/bet-feed/internal/feed"
	"github.com/radieske/bet-feed/pkg/contracts/topics"
)

// StartRedisSubscriber inicia uma goroutine que escuta o barramento Redis
// Pub/Sub e repassa os deltas aos clientes conectados nesta instância.
//
// Canais:
// - bet-feed:deltas: deltas por aba vindos da ingestão
// - bet-feed:legacy-deltas: deltas pré-calculados, repassados sem reclassificar
// - bet-feed:user:<id> (pattern): deltas pessoais
func StartRedisSubscriber(ctx context.Context, r *redis.Client, hub *Hub, log *zap.Logger) *redis.PubSub {
	sub := r.Subscribe(ctx, topics.FeedDeltas, topics.FeedLegacyDeltas)
	if err := sub.PSubscribe(ctx, topics.FeedUserPattern); err != nil {
		log.Warn("psubscribe personal channels failed", zap.Error(err))
	}
	ch := sub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close() // encerra a inscrição ao finalizar o contexto
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg == nil {
					continue
				}
				dispatch(ctx, hub, log, msg)
			}
		}
	}()
	return sub
}

func dispatch(ctx context.Context, hub *Hub, log *zap.Logger, msg *redis.Message) {
	var d feed.Delta
	if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil {
		log.Warn("ws subscriber unmarshal error", zap.String("channel", msg.Channel), zap.Error(err))
		return
	}

	switch {
	case msg.Channel == topics.FeedDeltas, msg.Channel == topics.FeedLegacyDeltas:
		hub.BroadcastTab(ctx, d)
	case strings.HasPrefix(msg.Channel, topics.FeedUserPrefix):
		userID := strings.TrimPrefix(msg.Channel, topics.FeedUserPrefix)
		if userID == "" {
			return
		}
		hub.BroadcastUser(ctx, userID, d)
	}
}
