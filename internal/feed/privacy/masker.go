package privacy

import (
	"context"
	"encoding/json"
	"time"

	"github.com/radieske/bet-feed/internal/feed"
)

// UserLookup consulta o estado de privacidade atual (possivelmente recém-invalidado).
type UserLookup interface {
	Get(ctx context.Context, userID string) *feed.UserSnapshot
}

// Visible é um item já mascarado e pronto para sair do processo.
// Só este pacote constrói valores Visible, então todo caminho de saída
// que serializa Visible passou obrigatoriamente pelo Masker.
type Visible struct {
	item feed.Item
}

func (v Visible) MarshalJSON() ([]byte, error) { return json.Marshal(v.item) }

// Item devolve uma cópia do item mascarado.
func (v Visible) Item() feed.Item { return v.item }

// Delta é a forma de saída de um feed.Delta.
type Delta struct {
	Tab       feed.Tab  `json:"tab,omitempty"`
	NewBets   []Visible `json:"newBets"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// Masker aplica a política de privacidade no momento da leitura.
// Falha na consulta do usuário mascara o item (fail closed).
type Masker struct {
	users UserLookup
}

func NewMasker(users UserLookup) *Masker {
	return &Masker{users: users}
}

// Public é a política padrão: usuário privado ou desconhecido sai como null.
func (m *Masker) Public(ctx context.Context, items []feed.Item) []Visible {
	return m.mask(ctx, "", items)
}

// ForOwner revela os itens do próprio dono mesmo com perfil privado.
func (m *Masker) ForOwner(ctx context.Context, ownerID string, items []feed.Item) []Visible {
	return m.mask(ctx, ownerID, items)
}

// PublicDelta mascara um delta de aba.
func (m *Masker) PublicDelta(ctx context.Context, d feed.Delta) Delta {
	return Delta{Tab: d.Tab, NewBets: m.Public(ctx, d.NewBets), Count: d.Count, Timestamp: d.Timestamp}
}

// OwnerDelta mascara um delta pessoal para o seu dono.
func (m *Masker) OwnerDelta(ctx context.Context, ownerID string, d feed.Delta) Delta {
	return Delta{Tab: d.Tab, NewBets: m.ForOwner(ctx, ownerID, d.NewBets), Count: d.Count, Timestamp: d.Timestamp}
}

func (m *Masker) mask(ctx context.Context, ownerID string, items []feed.Item) []Visible {
	out := make([]Visible, 0, len(items))
	private := make(map[string]bool) // uma consulta por usuário por lote
	for _, it := range items {
		if it.User == nil {
			out = append(out, Visible{item: it})
			continue
		}
		if it.User.ID != ownerID {
			p, seen := private[it.User.ID]
			if !seen {
				p = m.isPrivate(ctx, it.User.ID)
				private[it.User.ID] = p
			}
			if p {
				it.User = nil
				out = append(out, Visible{item: it})
				continue
			}
		}
		u := *it.User
		it.User = &u
		out = append(out, Visible{item: it})
	}
	return out
}

func (m *Masker) isPrivate(ctx context.Context, userID string) bool {
	if m.users == nil {
		return true
	}
	snap := m.users.Get(ctx, userID)
	return snap == nil || snap.IsPrivate
}
