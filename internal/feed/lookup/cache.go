package lookup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL          = 5 * time.Minute
	DefaultFetchTimeout = 3 * time.Second
)

// Fetcher busca o valor na fonte externa. (nil, nil) significa "não existe".
type Fetcher[T any] func(ctx context.Context, key string) (*T, error)

// Cache é um cache TTL em memória com deduplicação de buscas em andamento:
// chamadas concorrentes para a mesma chave ausente compartilham uma única busca.
//
// Erros de busca não são cacheados; o chamador recebe nil e segue com dados parciais.
type Cache[T any] struct {
	name         string
	fetch        Fetcher[T]
	ttl          time.Duration
	fetchTimeout time.Duration
	clock        clockwork.Clock
	log          *zap.Logger

	mu      sync.RWMutex
	entries map[string]entry[T]
	gens    map[string]uint64
	loading map[string]int // buscas em andamento por chave
	flight  singleflight.Group

	OnHit   func()
	OnMiss  func()
	OnError func()
}

type entry[T any] struct {
	value     *T
	expiresAt time.Time
}

type Option[T any] func(*Cache[T])

func WithTTL[T any](ttl time.Duration) Option[T] {
	return func(c *Cache[T]) { c.ttl = ttl }
}

func WithFetchTimeout[T any](d time.Duration) Option[T] {
	return func(c *Cache[T]) { c.fetchTimeout = d }
}

func WithClock[T any](clock clockwork.Clock) Option[T] {
	return func(c *Cache[T]) { c.clock = clock }
}

func WithLogger[T any](log *zap.Logger) Option[T] {
	return func(c *Cache[T]) { c.log = log }
}

// New cria um cache nomeado (o nome aparece nos logs) para o fetcher informado.
func New[T any](name string, fetch Fetcher[T], opts ...Option[T]) *Cache[T] {
	c := &Cache[T]{
		name:         name,
		fetch:        fetch,
		ttl:          DefaultTTL,
		fetchTimeout: DefaultFetchTimeout,
		clock:        clockwork.NewRealClock(),
		log:          zap.NewNop(),
		entries:      make(map[string]entry[T]),
		gens:         make(map[string]uint64),
		loading:      make(map[string]int),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get retorna o valor vivo do cache ou busca na fonte, compartilhando a busca
// com outros chamadores da mesma chave. Retorna nil em caso de ausência ou erro.
func (c *Cache[T]) Get(ctx context.Context, key string) *T {
	if key == "" {
		return nil
	}
	if v, ok := c.lookup(key); ok {
		call(c.OnHit)
		return v
	}
	call(c.OnMiss)

	ch := c.flight.DoChan(key, func() (any, error) {
		return c.load(ctx, key)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil
		}
		v, _ := res.Val.(*T)
		return v
	case <-ctx.Done():
		// a busca continua para os demais chamadores
		return nil
	}
}

// Peek retorna a entrada viva sem disparar busca.
func (c *Cache[T]) Peek(key string) (*T, bool) {
	return c.lookup(key)
}

// Set grava (ou sobrescreve) o valor com TTL completo.
func (c *Cache[T]) Set(key string, value *T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[T]{value: value, expiresAt: c.clock.Now().Add(c.ttl)}
}

// Invalidate remove a entrada. Uma busca já em andamento não é cancelada:
// seus chamadores recebem o resultado, mas ele não repopula o cache.
func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.gens[key]++
}

// Size inclui entradas expiradas ainda não removidas.
func (c *Cache[T]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// EvictExpired remove entradas expiradas e retorna quantas foram removidas.
func (c *Cache[T]) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	evicted := 0
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			evicted++
		}
	}
	// a geração de uma chave com busca em andamento precisa sobreviver
	for key := range c.gens {
		if _, ok := c.entries[key]; !ok && c.loading[key] == 0 {
			delete(c.gens, key)
		}
	}
	return evicted
}

// StartEvictionTimer roda EvictExpired periodicamente. Retorna a função de parada.
func (c *Cache[T]) StartEvictionTimer(interval time.Duration) func() {
	ticker := c.clock.NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				if n := c.EvictExpired(); n > 0 {
					c.log.Debug("evicted expired lookup entries",
						zap.String("cache", c.name),
						zap.Int("count", n),
						zap.Int("remaining", c.Size()),
					)
				}
			case <-done:
				return
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }
}

func (c *Cache[T]) lookup(key string) (*T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || c.clock.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// begin registra a busca em andamento e devolve a geração vista no início.
func (c *Cache[T]) begin(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loading[key]++
	return c.gens[key]
}

func (c *Cache[T]) end(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loading[key]--; c.loading[key] <= 0 {
		delete(c.loading, key)
	}
}

// load roda dentro do singleflight; o grupo libera a chave ao retornar,
// com sucesso ou erro.
func (c *Cache[T]) load(ctx context.Context, key string) (*T, error) {
	// outro chamador pode ter populado a chave entre o miss e a entrada no grupo
	if v, ok := c.lookup(key); ok {
		return v, nil
	}
	gen := c.begin(key)
	defer c.end(key)

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
	defer cancel()

	v, err := c.safeFetch(fctx, key)
	if err != nil {
		call(c.OnError)
		c.log.Warn("lookup fetch failed",
			zap.String("cache", c.name),
			zap.String("key", key),
			zap.Error(err),
		)
		return nil, err
	}

	c.mu.Lock()
	if c.gens[key] == gen {
		c.entries[key] = entry[T]{value: v, expiresAt: c.clock.Now().Add(c.ttl)}
	}
	c.mu.Unlock()
	return v, nil
}

// safeFetch converte panic do fetcher em erro de busca.
func (c *Cache[T]) safeFetch(ctx context.Context, key string) (v *T, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, fmt.Errorf("lookup fetch panicked: %v", r)
		}
	}()
	return c.fetch(ctx, key)
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}
