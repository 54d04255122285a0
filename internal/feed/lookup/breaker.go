package lookup

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// BreakerSettings controla o circuit breaker que protege a fonte de lookups.
type BreakerSettings struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

var DefaultBreakerSettings = BreakerSettings{
	MaxRequests:      1,
	Interval:         time.Minute,
	Timeout:          10 * time.Second,
	FailureThreshold: 5,
}

// WithBreaker envolve o fetcher num circuit breaker: com a fonte fora do ar,
// as buscas falham rápido em vez de segurar o slot em andamento até o timeout.
// "Não encontrado" (nil, nil) conta como sucesso.
func WithBreaker[T any](name string, fetch Fetcher[T], st BreakerSettings, log *zap.Logger) Fetcher[T] {
	if log == nil {
		log = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker[*T](gobreaker.Settings{
		Name:        name,
		MaxRequests: st.MaxRequests,
		Interval:    st.Interval,
		Timeout:     st.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= st.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("lookup breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return func(ctx context.Context, key string) (*T, error) {
		return cb.Execute(func() (*T, error) {
			return fetch(ctx, key)
		})
	}
}
