package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/bet-feed/internal/feed"
	"github.com/radieske/bet-feed/internal/feed/privacy"
)

// WindowReader é a leitura das janelas por aba (snapshot inicial).
type WindowReader interface {
	Read(ctx context.Context, tab feed.Tab) ([]feed.Item, error)
}

// Hub gerencia as conexões WebSocket do feed.
// clients: sala compartilhada; todo cliente entra ao conectar e recebe os
// deltas de todas as abas, filtrados pela aba atual da conexão.
// personal: userID -> conexões inscritas na sala pessoal.
type Hub struct {
	upgrader websocket.Upgrader
	windows  WindowReader
	masker   *privacy.Masker
	auth     *Authenticator // nil = todos anônimos
	log      *zap.Logger

	mu       sync.RWMutex
	clients  map[*Client]struct{}
	personal map[string]map[*Client]struct{}

	OnConnect    func()
	OnDisconnect func()
	OnDropped    func() // cliente lento desconectado
	OnDelta      func(feed.Tab)
}

// NewHub cria uma instância de Hub com política customizada de origem (CORS)
func NewHub(allowOrigin func(r *http.Request) bool, windows WindowReader, masker *privacy.Masker, auth *Authenticator, log *zap.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		windows:  windows,
		masker:   masker,
		auth:     auth,
		log:      log,
		clients:  make(map[*Client]struct{}),
		personal: make(map[string]map[*Client]struct{}),
	}
}

// AllowOrigins monta o CheckOrigin a partir de WS_ALLOWED_ORIGINS ("*" libera tudo).
func AllowOrigins(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // clientes não-browser
		}
		_, ok := allowed[origin]
		return ok
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket.
// Token ausente = conexão anônima; token inválido = erro e desconexão.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := TokenFromRequest(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(h, conn)
	if token != "" && h.auth != nil {
		userID, err := h.auth.Validate(token)
		if err != nil {
			h.log.Info("websocket auth rejected", zap.Error(err))
			rejectAndClose(conn, "invalid or expired token")
			return
		}
		c.userID = userID
	}

	h.register(c)
	defer h.unregister(c)

	c.enqueueMsg(EvtConnected, ConnectedData{Authenticated: c.userID != "", UserID: c.userID})

	go c.writePump()
	c.readPump(r.Context())
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	if h.OnConnect != nil {
		h.OnConnect()
	}
}

// unregister libera todas as salas da conexão
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	if uid := c.personalRoom(); uid != "" {
		if set, ok := h.personal[uid]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.personal, uid)
			}
		}
	}
	h.mu.Unlock()
	c.close()
	if h.OnDisconnect != nil {
		h.OnDisconnect()
	}
}

func (h *Hub) joinPersonal(c *Client, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.personal[userID]; !ok {
		h.personal[userID] = make(map[*Client]struct{})
	}
	h.personal[userID][c] = struct{}{}
}

func (h *Hub) leavePersonal(c *Client, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.personal[userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.personal, userID)
		}
	}
}

// ClientCount retorna o número de conexões na sala compartilhada.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastTab envia o delta de uma aba aos clientes que estão nela.
// A máscara de privacidade é aplicada uma vez por delta, com o estado atual.
func (h *Hub) BroadcastTab(ctx context.Context, d feed.Delta) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	b, err := json.Marshal(ServerMsg{Type: EvtDelta, Data: h.masker.PublicDelta(ctx, d)})
	if err != nil {
		h.log.Warn("marshal delta failed", zap.Error(err))
		return
	}
	for _, c := range targets {
		c.deliverTab(d.Tab, b)
	}
	if h.OnDelta != nil {
		h.OnDelta(d.Tab)
	}
}

// BroadcastUser envia o delta pessoal às conexões do dono da aposta.
func (h *Hub) BroadcastUser(ctx context.Context, userID string, d feed.Delta) {
	h.mu.RLock()
	set := h.personal[userID]
	targets := make([]*Client, 0, len(set))
	for c := range set {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	d.Tab = ""
	b, err := json.Marshal(ServerMsg{Type: EvtPersonalDelta, Data: h.masker.OwnerDelta(ctx, userID, d)})
	if err != nil {
		h.log.Warn("marshal personal delta failed", zap.Error(err))
		return
	}
	for _, c := range targets {
		c.enqueue(b)
	}
}

// snapshot lê a janela e aplica a máscara pública. Falha no store
// degrada para janela vazia.
func (h *Hub) snapshot(ctx context.Context, tab feed.Tab) []privacy.Visible {
	items, err := h.windows.Read(ctx, tab)
	if err != nil {
		h.log.Warn("window read failed", zap.String("tab", tab.String()), zap.Error(err))
		items = nil
	}
	return h.masker.Public(ctx, items)
}

// dropped pode rodar com o lock do cliente adquirido; não toca no estado dele.
func (h *Hub) dropped(c *Client) {
	h.log.Warn("dropping slow websocket client", zap.String("remote", c.conn.RemoteAddr().String()))
	if h.OnDropped != nil {
		h.OnDropped()
	}
}
