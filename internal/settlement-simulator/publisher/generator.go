package publisher

import (
	"math"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/radieske/bet-feed/internal/feed"
	"github.com/radieske/bet-feed/pkg/contracts/events"
)

// Player é um usuário fictício do simulador.
type Player struct {
	ID          string
	Handle      string
	DisplayName string
	Vip         int // 0 = sem VIP
}

func (p Player) Snapshot() feed.UserSnapshot {
	return feed.UserSnapshot{ID: p.ID, DisplayName: p.DisplayName, Handle: p.Handle}
}

var DefaultPlayers = []Player{
	{ID: "u-1001", Handle: "luckyluke", DisplayName: "Lucky Luke", Vip: 5},
	{ID: "u-1002", Handle: "highroller", DisplayName: "High Roller", Vip: 4},
	{ID: "u-1003", Handle: "satoshi_fan", Vip: 3},
	{ID: "u-1004", Handle: "mariana", DisplayName: "Mariana", Vip: 2},
	{ID: "u-1005", Handle: "diceking", DisplayName: "Dice King", Vip: 1},
	{ID: "u-1006", Handle: "quietwhale"},
	{ID: "u-1007", Handle: "plinko_pro", DisplayName: "Plinko Pro"},
	{ID: "u-1008", Handle: "crashtest"},
}

type gameSpec struct{ gameType, gameName string }

var games = []gameSpec{
	{"CRASH", ""}, {"DICE", ""}, {"PLINKO", ""}, {"LIMBO", ""}, {"MINES", ""},
	{"KENO", ""}, {"ROULETTE", ""},
	{feed.GameTypeProvider, "pragmatic-sweet-bonanza:Sweet Bonanza"},
	{feed.GameTypeProvider, "evolution-crazy-time:Crazy Time"},
	{feed.GameTypeProvider, "hacksaw-wanted:Wanted Dead or a Wild"},
}

type asset struct {
	symbol   string
	usdPrice decimal.Decimal
	places   int32
}

var assets = []asset{
	{"BTC", decimal.NewFromInt(60000), 8},
	{"ETH", decimal.NewFromInt(3000), 8},
	{"USDT", decimal.NewFromInt(1), 2},
	{"SOL", decimal.NewFromInt(150), 6},
}

// Generator produz eventos bet_settled plausíveis: a maioria das apostas
// perde, os multiplicadores seguem cauda longa e parte das apostas é demo
// ou anônima.
type Generator struct {
	rng     *rand.Rand
	players []Player
	clock   clockwork.Clock
	private map[string]bool

	DemoRatio      float64 // apostas de valor zero
	AnonymousRatio float64 // apostas sem usuário
	EmbedRatio     float64 // eventos que já trazem a visão do usuário
	LossRatio      float64
}

func NewGenerator(seed uint64, players []Player, clock clockwork.Clock) *Generator {
	if len(players) == 0 {
		players = DefaultPlayers
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Generator{
		rng:            rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		players:        players,
		clock:          clock,
		private:        make(map[string]bool),
		DemoRatio:      0.05,
		AnonymousRatio: 0.1,
		EmbedRatio:     0.25,
		LossRatio:      0.4,
	}
}

func (g *Generator) Players() []Player { return g.players }

// SetPrivate registra o estado de privacidade usado nas visões embutidas.
func (g *Generator) SetPrivate(userID string, private bool) { g.private[userID] = private }

func (g *Generator) IsPrivate(userID string) bool { return g.private[userID] }

// RandomPlayer escolhe um jogador do pool.
func (g *Generator) RandomPlayer() Player { return g.players[g.rng.IntN(len(g.players))] }

// Next gera o próximo evento.
func (g *Generator) Next() events.BetSettled {
	gs := games[g.rng.IntN(len(games))]
	a := assets[g.rng.IntN(len(assets))]

	ev := events.BetSettled{
		BetID:     uuid.NewString(),
		GameType:  gs.gameType,
		GameName:  gs.gameName,
		Asset:     a.symbol,
		SettledAt: g.clock.Now().UTC(),
	}

	if g.rng.Float64() >= g.AnonymousRatio {
		p := g.RandomPlayer()
		ev.UserID = p.ID
		if g.rng.Float64() < g.EmbedRatio {
			ev.User = &events.UserView{ID: p.ID, DisplayName: p.DisplayName, Handle: p.Handle, IsPrivate: g.private[p.ID]}
		}
	}

	if g.rng.Float64() < g.DemoRatio {
		ev.BetAmount, ev.Multiplier, ev.Payout, ev.PayoutValue = decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
		return ev
	}

	// valor em USD log-uniforme entre 0.10 e 5000
	usd := decimal.NewFromFloat(0.1 * math.Pow(50000, g.rng.Float64())).Round(2)
	if usd.IsZero() {
		usd = decimal.NewFromFloat(0.1)
	}
	ev.BetAmount = usd.Div(a.usdPrice).Round(a.places)
	if ev.BetAmount.IsZero() {
		ev.BetAmount = decimal.New(1, -a.places)
	}
	ev.Multiplier = g.multiplier()
	ev.Payout = ev.BetAmount.Mul(ev.Multiplier).Round(a.places)
	ev.PayoutValue = ev.BetAmount.Mul(a.usdPrice).Mul(ev.Multiplier).Round(2)
	return ev
}

// multiplier: perda com LossRatio, senão 0.99/U com U uniforme em (0.001, 1].
func (g *Generator) multiplier() decimal.Decimal {
	if g.rng.Float64() < g.LossRatio {
		return decimal.Zero
	}
	u := 0.001 + g.rng.Float64()*0.999
	m := decimal.NewFromFloat(0.99 / u).Round(2)
	if m.LessThan(decimal.RequireFromString("1.01")) {
		m = decimal.RequireFromString("1.01")
	}
	return m
}
