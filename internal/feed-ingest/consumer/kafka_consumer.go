package consumer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/bet-feed/internal/feed"
	"github.com/radieske/bet-feed/pkg/contracts/events"
)

// MessageReader é o subconjunto de *kafka.Reader usado pelo loop.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

type ItemTransformer interface {
	Transform(ctx context.Context, bet events.BetSettled) feed.Item
}

type WindowWriter interface {
	Prepend(ctx context.Context, tab feed.Tab, item feed.Item) error
}

type DeltaPublisher interface {
	PublishTabDelta(ctx context.Context, d feed.Delta) error
	PublishUserDelta(ctx context.Context, userID string, d feed.Delta) error
}

// Processor consome eventos bet_settled do Kafka, atualiza as janelas por aba
// e publica os deltas no barramento. Um evento com problema é logado e
// descartado sem interromper o loop.
type Processor struct {
	Log         *zap.Logger
	Reader      MessageReader
	Thresholds  feed.Thresholds
	Transformer ItemTransformer
	Windows     WindowWriter
	Publisher   DeltaPublisher
	Clock       clockwork.Clock // nil = relógio real

	OnConsumed func()         // métricas (counter++)
	OnDelta    func(feed.Tab) // métricas por aba
	OnError    func(string)   // métricas por fase
}

// Run inicia o loop principal de consumo; retorna quando o contexto é cancelado.
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err() // encerra se o contexto for cancelado
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			p.fail("read")
			select {
			case <-time.After(500 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		if p.OnConsumed != nil {
			p.OnConsumed() // callback de métrica: mensagem consumida
		}
		p.Handle(ctx, m.Value)
	}
}

// Handle processa um único evento. Nunca propaga erro nem pânico.
func (p *Processor) Handle(ctx context.Context, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			p.Log.Error("bet event handler panicked", zap.Any("panic", r))
			p.fail("panic")
		}
	}()

	var bet events.BetSettled
	if err := json.Unmarshal(payload, &bet); err != nil {
		p.Log.Warn("invalid message", zap.Error(err))
		p.fail("decode")
		return
	}
	if err := bet.Validate(); err != nil {
		p.Log.Warn("dropping malformed bet event", zap.String("bet_id", bet.BetID), zap.Error(err))
		p.fail("validate")
		return
	}

	tabs := feed.Classify(bet, p.Thresholds)
	if len(tabs) == 0 {
		p.Log.Debug("demo bet skipped", zap.String("bet_id", bet.BetID))
		return
	}

	// transformação única, compartilhada entre as abas
	item := p.Transformer.Transform(ctx, bet)
	p.prependAll(ctx, tabs, item)

	now := p.now()
	for _, tab := range tabs {
		if err := p.Publisher.PublishTabDelta(ctx, feed.NewDelta(tab, item, now)); err != nil {
			p.Log.Warn("publish tab delta failed", zap.String("tab", tab.String()), zap.String("bet_id", bet.BetID), zap.Error(err))
			p.fail("publish")
			continue
		}
		if p.OnDelta != nil {
			p.OnDelta(tab)
		}
	}

	if bet.IsAuthenticated() {
		if err := p.Publisher.PublishUserDelta(ctx, bet.UserID, feed.NewDelta("", item, now)); err != nil {
			p.Log.Warn("publish user delta failed", zap.String("user_id", bet.UserID), zap.Error(err))
			p.fail("publish_user")
		}
	}
}

// prependAll atualiza as abas em paralelo; a falha de uma não afeta as outras.
func (p *Processor) prependAll(ctx context.Context, tabs []feed.Tab, item feed.Item) {
	var wg sync.WaitGroup
	for _, tab := range tabs {
		wg.Add(1)
		go func(tab feed.Tab) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					p.Log.Error("window update panicked", zap.String("tab", tab.String()), zap.Any("panic", r))
					p.fail("window")
				}
			}()
			if err := p.Windows.Prepend(ctx, tab, item); err != nil {
				p.Log.Warn("window prepend failed",
					zap.String("tab", tab.String()),
					zap.String("bet_id", item.ID),
					zap.Error(err),
				)
				p.fail("window")
			}
		}(tab)
	}
	wg.Wait()
}

func (p *Processor) now() time.Time {
	if p.Clock == nil {
		return time.Now()
	}
	return p.Clock.Now()
}

func (p *Processor) fail(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}
