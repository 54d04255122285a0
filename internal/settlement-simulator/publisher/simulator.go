package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/radieske/bet-feed/internal/feed"
	"github.com/radieske/bet-feed/pkg/contracts/events"
	"github.com/radieske/bet-feed/pkg/contracts/topics"
)

type EventPublisher interface {
	Publish(ctx context.Context, e events.BetSettled) error
}

// Ledger grava a aposta no banco de liquidações lido pelo bootstrap.
type Ledger interface {
	InsertSettled(ctx context.Context, b events.BetSettled) error
}

type Profiles interface {
	UpsertUser(ctx context.Context, u feed.UserSnapshot) error
	SetVip(ctx context.Context, userID string, level int) error
	SetPrivate(ctx context.Context, userID string, private bool) error
}

// PrivacyNotifier avisa as instâncias do feed que o usuário mudou a privacidade.
type PrivacyNotifier func(ctx context.Context, userID string) error

type RawPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Simulator alimenta o ambiente de desenvolvimento: a cada tick gera uma
// aposta, grava no ledger e publica no Kafka. Periodicamente alterna a
// privacidade de um jogador e publica um delta no canal legado.
// Ledger, Profiles, Notify e Legacy são opcionais.
type Simulator struct {
	Log      *zap.Logger
	Gen      *Generator
	Events   EventPublisher
	Ledger   Ledger
	Profiles Profiles
	Notify   PrivacyNotifier
	Legacy   RawPublisher
	Clock    clockwork.Clock // nil = relógio real
	Interval time.Duration

	PrivacyFlipEvery int // em ticks; 0 desliga
	LegacyEvery      int // em ticks; 0 desliga

	OnPublished func()
	OnError     func(string)

	ticks int
}

// Seed cadastra o pool de jogadores e seus níveis VIP.
func (s *Simulator) Seed(ctx context.Context) error {
	if s.Profiles == nil {
		return nil
	}
	for _, p := range s.Gen.Players() {
		if err := s.Profiles.UpsertUser(ctx, p.Snapshot()); err != nil {
			return err
		}
		if p.Vip > 0 {
			if err := s.Profiles.SetVip(ctx, p.ID, p.Vip); err != nil {
				return err
			}
		}
		if err := s.Profiles.SetPrivate(ctx, p.ID, false); err != nil {
			return err
		}
		s.Gen.SetPrivate(p.ID, false)
	}
	s.Log.Info("simulator players seeded", zap.Int("count", len(s.Gen.Players())))
	return nil
}

// Run gera eventos no intervalo configurado até o contexto ser cancelado.
func (s *Simulator) Run(ctx context.Context) error {
	clock := s.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	interval := s.Interval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			s.Step(ctx)
		}
	}
}

// Step executa um tick. Falhas são logadas e não interrompem o loop.
func (s *Simulator) Step(ctx context.Context) {
	s.ticks++

	ev := s.Gen.Next()
	if s.Ledger != nil {
		// grava antes de publicar
		if err := s.Ledger.InsertSettled(ctx, ev); err != nil {
			s.fail("ledger", err)
		}
	}
	if err := s.Events.Publish(ctx, ev); err != nil {
		s.fail("publish", err)
	} else if s.OnPublished != nil {
		s.OnPublished()
	}

	if s.PrivacyFlipEvery > 0 && s.ticks%s.PrivacyFlipEvery == 0 {
		if err := s.flipPrivacy(ctx); err != nil {
			s.fail("privacy", err)
		}
	}
	if s.Legacy != nil && s.LegacyEvery > 0 && s.ticks%s.LegacyEvery == 0 {
		if err := s.publishLegacy(ctx); err != nil {
			s.fail("legacy", err)
		}
	}
}

func (s *Simulator) flipPrivacy(ctx context.Context) error {
	p := s.Gen.RandomPlayer()
	next := !s.Gen.IsPrivate(p.ID)
	if s.Profiles != nil {
		if err := s.Profiles.SetPrivate(ctx, p.ID, next); err != nil {
			return err
		}
	}
	s.Gen.SetPrivate(p.ID, next)
	if s.Notify != nil {
		if err := s.Notify(ctx, p.ID); err != nil {
			return err
		}
	}
	s.Log.Info("player privacy toggled", zap.String("user_id", p.ID), zap.Bool("private", next))
	return nil
}

// publishLegacy envia um delta pronto para a aba ALL, como faria o produtor
// legado que não passa pelo Kafka.
func (s *Simulator) publishLegacy(ctx context.Context) error {
	ev := s.Gen.Next()
	if ev.IsDemo() {
		return nil
	}
	item := feed.Item{
		ID:         ev.BetID,
		Game:       feed.DescribeGame(ev.GameType, ev.GameName),
		Timestamp:  ev.SettledAt,
		BetAmount:  ev.BetAmount,
		Multiplier: ev.Multiplier,
		Payout:     ev.Payout,
		Asset:      ev.Asset,
	}
	for _, p := range s.Gen.Players() {
		if p.ID == ev.UserID {
			snap := p.Snapshot()
			item.User = &feed.User{ID: p.ID, Name: snap.Name(), VipLevel: p.Vip}
			break
		}
	}
	payload, err := json.Marshal(feed.NewDelta(feed.TabAll, item, s.now()))
	if err != nil {
		return fmt.Errorf("marshal legacy delta: %w", err)
	}
	return s.Legacy.Publish(ctx, topics.FeedLegacyDeltas, payload)
}

func (s *Simulator) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

func (s *Simulator) fail(stage string, err error) {
	s.Log.Warn("simulator step failed", zap.String("stage", stage), zap.Error(err))
	if s.OnError != nil {
		s.OnError(stage)
	}
}
