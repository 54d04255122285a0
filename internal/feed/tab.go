package feed

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidTab      = errors.New("invalid tab")
	ErrInvalidCategory = errors.New("invalid winners category")
)

// Tab é uma categoria nomeada do feed, cada uma com sua própria janela.
type Tab string

const (
	TabAll          Tab = "ALL"
	TabLuckyWinners Tab = "LUCKY_WINNERS"
	TabBigWins      Tab = "BIG_WINS"
)

// Tabs lista o conjunto fechado de abas, na ordem canônica.
var Tabs = []Tab{TabAll, TabLuckyWinners, TabBigWins}

// ParseTab aceita o nome da aba sem diferenciar caixa e com "-" no lugar de "_".
func ParseTab(s string) (Tab, error) {
	name := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for _, t := range Tabs {
		if string(t) == name {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTab, s)
}

func (t Tab) String() string { return string(t) }

// WinnerCategory define a ordenação da consulta de maiores ganhadores por jogo.
type WinnerCategory string

const (
	CategoryBigWins   WinnerCategory = "big-wins"   // por payout na moeda de referência
	CategoryLuckyWins WinnerCategory = "lucky-wins" // por multiplicador, depois valor apostado
)

func ParseWinnerCategory(s string) (WinnerCategory, error) {
	switch WinnerCategory(strings.ToLower(strings.TrimSpace(s))) {
	case "", CategoryBigWins:
		return CategoryBigWins, nil
	case CategoryLuckyWins:
		return CategoryLuckyWins, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}
