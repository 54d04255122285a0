package transform

import (
	"context"

	"github.com/radieske/bet-feed/internal/feed"
	"github.com/radieske/bet-feed/pkg/contracts/events"
)

// UserLookup devolve a identidade pública do usuário ou nil quando ausente/indisponível.
type UserLookup interface {
	Get(ctx context.Context, userID string) *feed.UserSnapshot
}

// VipLookup devolve o nível VIP atual do usuário ou nil.
type VipLookup interface {
	Get(ctx context.Context, userID string) *feed.VipSnapshot
}

// Transformer converte um evento de aposta liquidada no item canônico do feed.
// O item sai com o usuário preenchido mesmo que o perfil seja privado:
// o mascaramento é feito em cada caminho de saída.
type Transformer struct {
	Users UserLookup
	Vip   VipLookup
}

func New(users UserLookup, vip VipLookup) *Transformer {
	return &Transformer{Users: users, Vip: vip}
}

// Transform assume um evento já validado e não-demo.
func (t *Transformer) Transform(ctx context.Context, bet events.BetSettled) feed.Item {
	return feed.Item{
		ID:         bet.BetID,
		Game:       feed.DescribeGame(bet.GameType, bet.GameName),
		User:       t.resolveUser(ctx, bet),
		Timestamp:  bet.SettledAt.UTC(),
		BetAmount:  bet.BetAmount,
		Multiplier: bet.Multiplier,
		Payout:     bet.Payout,
		Asset:      bet.Asset,
	}
}

// TransformAll preserva a ordem de entrada.
func (t *Transformer) TransformAll(ctx context.Context, bets []events.BetSettled) []feed.Item {
	out := make([]feed.Item, 0, len(bets))
	for _, b := range bets {
		out = append(out, t.Transform(ctx, b))
	}
	return out
}

func (t *Transformer) resolveUser(ctx context.Context, bet events.BetSettled) *feed.User {
	userID := bet.UserID
	if userID == "" && bet.User != nil {
		userID = bet.User.ID
	}
	if userID == "" {
		return nil
	}

	u := &feed.User{ID: userID}
	switch {
	case bet.User != nil:
		u.Name = feed.UserSnapshot{DisplayName: bet.User.DisplayName, Handle: bet.User.Handle}.Name()
	case t.Users != nil:
		// falha na busca deixa o nome vazio; o item segue com dados parciais
		if snap := t.Users.Get(ctx, userID); snap != nil {
			u.Name = snap.Name()
		}
	}

	if t.Vip != nil {
		if vip := t.Vip.Get(ctx, userID); vip != nil {
			u.VipLevel = vip.Level
			u.Badge = vip.BadgeImageURL
		}
	}
	return u
}
