package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/radieske/bet-feed/internal/feed"
	"github.com/radieske/bet-feed/pkg/contracts/events"
)

type SettlementSource interface {
	RecentForTab(ctx context.Context, tab feed.Tab, th feed.Thresholds, limit int) ([]events.BetSettled, error)
}

type BatchTransformer interface {
	TransformAll(ctx context.Context, bets []events.BetSettled) []feed.Item
}

type WindowRebuilder interface {
	Rebuild(ctx context.Context, tab feed.Tab, items []feed.Item) error
}

// Resyncer reconstrói as janelas a partir do banco de liquidações.
// Roda no startup (cold start) e, opcionalmente, em intervalo fixo para
// recuperar eventos perdidos pelo canal.
type Resyncer struct {
	Log         *zap.Logger
	Source      SettlementSource
	Transformer BatchTransformer
	Windows     WindowRebuilder
	Thresholds  feed.Thresholds
	Capacity    int
	Clock       clockwork.Clock // nil = relógio real

	OnRebuilt func(tab feed.Tab, n int)
	OnError   func(string)
}

// RunOnce reconstrói todas as abas. Uma aba com falha mantém a janela atual
// e não impede as demais; os erros voltam agregados.
func (r *Resyncer) RunOnce(ctx context.Context) error {
	var errs []error
	for _, tab := range feed.Tabs {
		if err := r.rebuild(ctx, tab); err != nil {
			r.Log.Warn("window resync failed", zap.String("tab", tab.String()), zap.Error(err))
			if r.OnError != nil {
				r.OnError("resync")
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Resyncer) rebuild(ctx context.Context, tab feed.Tab) error {
	bets, err := r.Source.RecentForTab(ctx, tab, r.Thresholds, r.Capacity)
	if err != nil {
		return fmt.Errorf("load %s: %w", tab, err)
	}

	// a fonte já filtra; reaplicar o classificador mantém as janelas coerentes com a ingestão
	kept := bets[:0]
	for _, b := range bets {
		if feed.Qualifies(b, tab, r.Thresholds) {
			kept = append(kept, b)
		}
	}

	items := r.Transformer.TransformAll(ctx, kept)
	if err := r.Windows.Rebuild(ctx, tab, items); err != nil {
		return fmt.Errorf("rebuild %s: %w", tab, err)
	}

	r.Log.Info("window rebuilt", zap.String("tab", tab.String()), zap.Int("items", len(items)))
	if r.OnRebuilt != nil {
		r.OnRebuilt(tab, len(items))
	}
	return nil
}

// Run executa o bootstrap e, se interval > 0, repete o resync até o contexto
// ser cancelado. Com interval <= 0 retorna logo após o bootstrap.
func (r *Resyncer) Run(ctx context.Context, interval time.Duration) {
	if err := r.RunOnce(ctx); err != nil {
		r.Log.Warn("bootstrap finished with errors", zap.Error(err))
	}
	if interval <= 0 {
		return
	}

	clock := r.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	r.Log.Info("periodic resync enabled", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := r.RunOnce(ctx); err != nil {
				r.Log.Warn("periodic resync finished with errors", zap.Error(err))
			}
		}
	}
}
