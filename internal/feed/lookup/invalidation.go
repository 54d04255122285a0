package lookup

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/bet-feed/pkg/contracts/topics"
)

// Invalidator é qualquer cache que aceite remoção explícita por chave.
type Invalidator interface {
	Invalidate(key string)
}

// InvalidationSubscriber escuta o canal de mudança de privacidade e remove o
// usuário do cache local, forçando uma nova busca no próximo envio.
type InvalidationSubscriber struct {
	rdb     *redis.Client
	targets []Invalidator
	log     *zap.Logger
}

func NewInvalidationSubscriber(rdb *redis.Client, log *zap.Logger, targets ...Invalidator) *InvalidationSubscriber {
	return &InvalidationSubscriber{rdb: rdb, targets: targets, log: log}
}

// Start bloqueia até o contexto ser cancelado ou a inscrição fechar.
func (s *InvalidationSubscriber) Start(ctx context.Context) {
	sub := s.rdb.Subscribe(ctx, topics.UserPrivacyChanged)
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok || msg == nil {
				return
			}
			s.handle(msg.Payload)
		case <-ctx.Done():
			return
		}
	}
}

func (s *InvalidationSubscriber) handle(userID string) {
	if userID == "" {
		s.log.Warn("empty privacy invalidation message")
		return
	}
	for _, t := range s.targets {
		t.Invalidate(userID)
	}
	s.log.Debug("user lookup invalidated", zap.String("user_id", userID))
}

// PublishPrivacyChanged avisa todas as instâncias que o usuário mudou a privacidade.
func PublishPrivacyChanged(ctx context.Context, rdb redis.Cmdable, userID string) error {
	if err := rdb.Publish(ctx, topics.UserPrivacyChanged, userID).Err(); err != nil {
		return fmt.Errorf("publish privacy invalidation: %w", err)
	}
	return nil
}
