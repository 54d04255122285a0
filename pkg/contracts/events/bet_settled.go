package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrMalformedEvent indica um evento que não pode ser processado pelo feed.
var ErrMalformedEvent = errors.New("malformed bet_settled event")

// UserView é a visão denormalizada do usuário que alguns produtores já
// embutem no evento, evitando a consulta ao cache de usuários.
type UserView struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Handle      string `json:"handle"`
	IsPrivate   bool   `json:"isPrivate"`
}

// BetSettled é o evento publicado no tópico "bet_settled" pelo sistema de
// liquidação. Valores monetários trafegam como strings decimais.
type BetSettled struct {
	BetID       string          `json:"betId"`
	GameType    string          `json:"gameType"`           // "PLINKO", "CRASH", "PROVIDER", ...
	GameName    string          `json:"gameName,omitempty"` // jogos de provedor: "<code>:<nome>"
	UserID      string          `json:"userId,omitempty"`   // vazio = anônimo/demo
	BetAmount   decimal.Decimal `json:"betAmount"`
	Asset       string          `json:"asset"`
	Multiplier  decimal.Decimal `json:"multiplier"`
	Payout      decimal.Decimal `json:"payout"`
	PayoutValue decimal.Decimal `json:"payoutValue"` // payout na moeda de referência (USD)
	SettledAt   time.Time       `json:"settledAt"`
	User        *UserView       `json:"user,omitempty"`
}

// IsDemo reporta apostas de valor zero, que nunca entram no feed público.
func (b BetSettled) IsDemo() bool { return !b.BetAmount.IsPositive() }

// IsAuthenticated reporta apostas associadas a um usuário.
func (b BetSettled) IsAuthenticated() bool { return b.UserID != "" }

// Validate rejeita eventos sem os campos mínimos para montar um item do feed.
func (b BetSettled) Validate() error {
	switch {
	case b.BetID == "":
		return fmt.Errorf("%w: missing betId", ErrMalformedEvent)
	case b.GameType == "":
		return fmt.Errorf("%w: missing gameType", ErrMalformedEvent)
	case b.SettledAt.IsZero():
		return fmt.Errorf("%w: missing settledAt", ErrMalformedEvent)
	case b.BetAmount.IsNegative(), b.Multiplier.IsNegative(), b.Payout.IsNegative(), b.PayoutValue.IsNegative():
		return fmt.Errorf("%w: negative amount", ErrMalformedEvent)
	}
	return nil
}
