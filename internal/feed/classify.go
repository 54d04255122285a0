package feed

import (
	"github.com/shopspring/decimal"

	"github.com/radieske/bet-feed/pkg/contracts/events"
)

// Thresholds são constantes de deploy, não dados de runtime.
type Thresholds struct {
	LuckyMultiplier decimal.Decimal
	BigWinValue     decimal.Decimal
}

// DefaultThresholds: multiplicador >= 25x ou payout >= 1000 na moeda de referência.
var DefaultThresholds = Thresholds{
	LuckyMultiplier: decimal.NewFromInt(25),
	BigWinValue:     decimal.NewFromInt(1000),
}

// Classify retorna as abas em que a aposta entra, na ordem canônica.
// Apostas demo (valor zero) não entram em nenhuma aba.
func Classify(bet events.BetSettled, th Thresholds) []Tab {
	if bet.IsDemo() {
		return nil
	}
	tabs := []Tab{TabAll}
	if bet.Multiplier.GreaterThanOrEqual(th.LuckyMultiplier) {
		tabs = append(tabs, TabLuckyWinners)
	}
	if bet.PayoutValue.GreaterThanOrEqual(th.BigWinValue) {
		tabs = append(tabs, TabBigWins)
	}
	return tabs
}

// Qualifies reporta se a aposta entra na aba informada.
func Qualifies(bet events.BetSettled, tab Tab, th Thresholds) bool {
	for _, t := range Classify(bet, th) {
		if t == tab {
			return true
		}
	}
	return false
}
