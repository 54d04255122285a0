package feed

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item é a forma canônica e exibível de uma aposta no feed.
// Nunca carrega flag de privacidade: o mascaramento acontece na leitura.
type Item struct {
	ID         string          `json:"id"`
	Game       Game            `json:"game"`
	User       *User           `json:"user"`
	Timestamp  time.Time       `json:"timestamp"`
	BetAmount  decimal.Decimal `json:"betAmount"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Payout     decimal.Decimal `json:"payout"`
	Asset      string          `json:"asset"`
}

// User identifica o apostador e seu selo VIP no momento da transformação.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	VipLevel int    `json:"vipLevel,omitempty"`
	Badge    string `json:"badge,omitempty"`
}

// UserSnapshot é o retorno do serviço de identidade pública.
type UserSnapshot struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Handle      string `json:"handle"`
	IsPrivate   bool   `json:"isPrivate"`
}

// Name prefere o nome de exibição e cai para o handle.
func (u UserSnapshot) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Handle
}

// VipSnapshot é o nível VIP atual do usuário e a imagem do selo.
type VipSnapshot struct {
	Level         int    `json:"vipLevel"`
	BadgeImageURL string `json:"badgeImageUrl"`
}

// Delta é a notificação incremental de novos itens de uma aba
// (ou do feed pessoal, quando Tab é vazio).
type Delta struct {
	Tab       Tab       `json:"tab,omitempty"`
	NewBets   []Item    `json:"newBets"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// NewDelta monta um delta de um único item.
func NewDelta(tab Tab, item Item, now time.Time) Delta {
	return Delta{Tab: tab, NewBets: []Item{item}, Count: 1, Timestamp: now.UTC()}
}
