package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/radieske/bet-feed/internal/feed"
	"github.com/radieske/bet-feed/pkg/contracts/events"
)

// SettlementRepo lê apostas liquidadas do banco principal (somente leitura).
type SettlementRepo struct {
	DB *sql.DB
}

const selectSettled = `
		SELECT id, game_type, COALESCE(game_name, ''), user_id, bet_amount, asset,
		       multiplier, payout, payout_usd, settled_at
		FROM bets
		WHERE status = 'SETTLED' AND bet_amount > 0`

// RecentForTab devolve até limit apostas mais recentes que entram na aba,
// da mais nova para a mais antiga. Apostas demo nunca são retornadas.
func (r *SettlementRepo) RecentForTab(ctx context.Context, tab feed.Tab, th feed.Thresholds, limit int) ([]events.BetSettled, error) {
	var (
		q    string
		args []any
	)
	switch tab {
	case feed.TabAll:
		q = selectSettled + `
		ORDER BY settled_at DESC
		LIMIT $1;`
		args = []any{limit}
	case feed.TabLuckyWinners:
		q = selectSettled + ` AND multiplier >= $1
		ORDER BY settled_at DESC
		LIMIT $2;`
		args = []any{th.LuckyMultiplier, limit}
	case feed.TabBigWins:
		q = selectSettled + ` AND payout_usd >= $1
		ORDER BY settled_at DESC
		LIMIT $2;`
		args = []any{th.BigWinValue, limit}
	default:
		return nil, fmt.Errorf("%w: %q", feed.ErrInvalidTab, tab)
	}
	return r.query(ctx, q, args...)
}

// TopWinners devolve os maiores ganhadores de um jogo, sem passar pela janela.
// O jogo casa pelo tipo (CRASH, DICE...) ou pelo nome composto de provedor.
func (r *SettlementRepo) TopWinners(ctx context.Context, game string, cat feed.WinnerCategory, limit int) ([]events.BetSettled, error) {
	var order string
	switch cat {
	case feed.CategoryBigWins:
		order = `payout_usd DESC, settled_at DESC`
	case feed.CategoryLuckyWins:
		order = `multiplier DESC, bet_amount DESC, settled_at DESC`
	default:
		return nil, fmt.Errorf("%w: %q", feed.ErrInvalidCategory, cat)
	}
	q := selectSettled + ` AND (game_type = upper($1) OR game_name = $1)
		ORDER BY ` + order + `
		LIMIT $2;`
	return r.query(ctx, q, strings.TrimSpace(game), limit)
}

func (r *SettlementRepo) query(ctx context.Context, q string, args ...any) ([]events.BetSettled, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query settled bets: %w", err)
	}
	defer rows.Close()

	var out []events.BetSettled
	for rows.Next() {
		var (
			b      events.BetSettled
			userID sql.NullString
		)
		if err := rows.Scan(&b.BetID, &b.GameType, &b.GameName, &userID,
			&b.BetAmount, &b.Asset, &b.Multiplier, &b.Payout, &b.PayoutValue, &b.SettledAt); err != nil {
			return nil, fmt.Errorf("scan settled bet: %w", err)
		}
		b.UserID = userID.String
		out = append(out, b)
	}
	return out, rows.Err()
}

// InsertSettled grava uma aposta liquidada. Usado apenas pelo simulador de
// desenvolvimento; em produção o ledger pertence ao sistema de liquidação.
func (r *SettlementRepo) InsertSettled(ctx context.Context, b events.BetSettled) error {
	const q = `
		INSERT INTO bets (id, user_id, game_type, game_name, asset, bet_amount,
		                  multiplier, payout, payout_usd, status, settled_at)
		VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), $5, $6, $7, $8, $9, 'SETTLED', $10)
		ON CONFLICT (id) DO NOTHING;
	`
	_, err := r.DB.ExecContext(ctx, q, b.BetID, b.UserID, b.GameType, b.GameName, b.Asset,
		b.BetAmount, b.Multiplier, b.Payout, b.PayoutValue, b.SettledAt)
	if err != nil {
		return fmt.Errorf("insert settled bet: %w", err)
	}
	return nil
}
