package feed

import "strings"

// Game descreve o jogo para exibição. ProviderName e ProviderCode só existem
// para jogos hospedados por provedores externos.
type Game struct {
	Type         string `json:"type"`
	Name         string `json:"name"`
	Icon         string `json:"icon"`
	ProviderName string `json:"providerName,omitempty"`
	ProviderCode string `json:"providerCode,omitempty"`
}

// GameTypeProvider marca jogos de provedor; o nome composto vem em GameName.
const GameTypeProvider = "PROVIDER"

type gameMeta struct{ name, icon string }

var originals = map[string]gameMeta{
	"CRASH":     {"Crash", "game-crash"},
	"DICE":      {"Dice", "game-dice"},
	"PLINKO":    {"Plinko", "game-plinko"},
	"LIMBO":     {"Limbo", "game-limbo"},
	"MINES":     {"Mines", "game-mines"},
	"KENO":      {"Keno", "game-keno"},
	"BLACKJACK": {"Blackjack", "game-blackjack"},
	"ROULETTE":  {"Roulette", "game-roulette"},
	"HILO":      {"Hilo", "game-hilo"},
	"WHEEL":     {"Wheel", "game-wheel"},
}

// DescribeGame deriva nome e ícone de forma determinística a partir do tipo.
// Para jogos de provedor, gameName segue o formato "<code>:<nome>".
func DescribeGame(gameType, gameName string) Game {
	t := strings.ToUpper(strings.TrimSpace(gameType))
	if t == GameTypeProvider {
		code, name := splitProviderName(gameName)
		display := name
		if display == "" {
			display = "Slots"
		}
		return Game{Type: t, Name: display, Icon: "game-provider", ProviderName: name, ProviderCode: code}
	}
	if m, ok := originals[t]; ok {
		return Game{Type: t, Name: m.name, Icon: m.icon}
	}
	return Game{Type: t, Name: titleCase(t), Icon: "game-generic"}
}

func splitProviderName(s string) (code, name string) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ":"); i >= 0 {
		return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:])
	}
	return "", s
}

func titleCase(s string) string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
