package window

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/bet-feed/internal/feed"
)

const (
	DefaultCapacity = 50
	DefaultTTL      = time.Hour
)

// RedisStore mantém uma janela por aba numa lista Redis, mais recente primeiro.
// Todas as instâncias do serviço enxergam a mesma janela.
// Client: cliente Redis
// Capacity: tamanho máximo da janela
// TTL: expiração da lista, renovada a cada escrita
type RedisStore struct {
	Client   redis.Cmdable
	Capacity int
	TTL      time.Duration
	Log      *zap.Logger
}

// NewRedisStore cria a store com capacidade e TTL; valores <= 0 usam os padrões.
func NewRedisStore(c redis.Cmdable, capacity int, ttl time.Duration, log *zap.Logger) *RedisStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisStore{Client: c, Capacity: capacity, TTL: ttl, Log: log}
}

// key gera a chave Redis da janela de uma aba
func key(tab feed.Tab) string { return "bet-feed:window:" + string(tab) }

// Prepend insere o item no topo e corta a lista na capacidade, numa única
// transação MULTI/EXEC: escritores concorrentes não perdem atualizações.
func (s *RedisStore) Prepend(ctx context.Context, tab feed.Tab, item feed.Item) error {
	b, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal feed item: %w", err)
	}
	k := key(tab)
	_, err = s.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, k, b)
		p.LTrim(ctx, k, 0, int64(s.Capacity-1))
		p.Expire(ctx, k, s.TTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("prepend %s: %w", tab, err)
	}
	return nil
}

// Read devolve a janela atual. Janela ausente ou expirada é vazia;
// a leitura nunca dispara reconstrução.
func (s *RedisStore) Read(ctx context.Context, tab feed.Tab) ([]feed.Item, error) {
	raw, err := s.Client.LRange(ctx, key(tab), 0, int64(s.Capacity-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", tab, err)
	}
	items := make([]feed.Item, 0, len(raw))
	for _, r := range raw {
		var it feed.Item
		if err := json.Unmarshal([]byte(r), &it); err != nil {
			s.Log.Warn("skipping malformed window entry", zap.String("tab", string(tab)), zap.Error(err))
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

// Rebuild substitui a janela inteira pelos itens informados (mais recente primeiro).
func (s *RedisStore) Rebuild(ctx context.Context, tab feed.Tab, items []feed.Item) error {
	if len(items) > s.Capacity {
		items = items[:s.Capacity]
	}
	values := make([]any, 0, len(items))
	for _, it := range items {
		b, err := json.Marshal(it)
		if err != nil {
			return fmt.Errorf("marshal feed item %s: %w", it.ID, err)
		}
		values = append(values, b)
	}

	k := key(tab)
	_, err := s.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, k)
		if len(values) > 0 {
			p.RPush(ctx, k, values...)
			p.Expire(ctx, k, s.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rebuild %s: %w", tab, err)
	}
	return nil
}
