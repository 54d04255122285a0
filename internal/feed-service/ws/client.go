package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/bet-feed/internal/feed"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 256
	backlogLimit   = 64
)

// Client é o estado de uma conexão: identidade opcional, aba atual e
// participação na sala pessoal. Nada disso sobrevive à conexão.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte // nil na fila = fechar após escrever o que veio antes
	done chan struct{}
	once sync.Once

	mu         sync.Mutex
	userID     string
	tab        feed.Tab // "" = sem aba
	syncing    bool     // snapshot inicial em andamento
	backlog    [][]byte // deltas recebidos durante o snapshot
	personalID string   // sala pessoal em que está inscrito
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

func (c *Client) identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Client) personalRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.personalID
}

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

// enqueue nunca bloqueia: buffer cheio derruba o cliente lento.
func (c *Client) enqueue(b []byte) {
	select {
	case <-c.done:
	case c.send <- b:
	default:
		c.hub.dropped(c)
		c.close()
	}
}

func (c *Client) enqueueMsg(typ string, data any) {
	b, err := json.Marshal(ServerMsg{Type: typ, Data: data})
	if err != nil {
		c.hub.log.Warn("marshal ws message failed", zap.String("type", typ), zap.Error(err))
		return
	}
	c.enqueue(b)
}

func (c *Client) sendError(code, message string) {
	c.enqueueMsg(EvtError, ErrorData{Message: message, Code: code})
}

// deliverTab aplica o filtro por aba. Durante o snapshot inicial os deltas
// ficam retidos e saem logo depois dele, preservando a ordem.
func (c *Client) deliverTab(tab feed.Tab, b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tab == "" || (tab != "" && c.tab != tab) {
		return
	}
	if c.syncing {
		if len(c.backlog) < backlogLimit {
			c.backlog = append(c.backlog, b)
		}
		return
	}
	c.enqueue(b)
}

// readPump lê comandos até a conexão fechar. Erros de protocolo voltam ao
// próprio cliente sem derrubar a conexão.
func (c *Client) readPump(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("unexpected websocket close", zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg ClientMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError(CodeBadRequest, "malformed message")
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *Client) handle(ctx context.Context, msg ClientMsg) {
	switch msg.Type {
	case CmdSubscribe, CmdSwitchTab:
		tab, err := feed.ParseTab(msg.Tab)
		if err != nil {
			c.sendError(CodeInvalidTab, err.Error())
			return
		}
		c.subscribe(ctx, tab)
	case CmdUnsubscribe:
		c.mu.Lock()
		prev := c.tab
		c.tab = ""
		c.mu.Unlock()
		c.enqueueMsg(EvtUnsubscribed, RoomData{Room: RoomFeed, Tab: prev})
	case CmdSubscribePersonal:
		uid := c.identity()
		if uid == "" {
			c.sendError(CodeUnauthorized, "authentication required for personal feed")
			return
		}
		c.mu.Lock()
		c.personalID = uid
		c.mu.Unlock()
		c.hub.joinPersonal(c, uid)
		c.enqueueMsg(EvtSubscribed, RoomData{Room: RoomPersonal})
	case CmdUnsubscribePersonal:
		if uid := c.personalRoom(); uid != "" {
			c.hub.leavePersonal(c, uid)
			c.mu.Lock()
			c.personalID = ""
			c.mu.Unlock()
		}
		c.enqueueMsg(EvtUnsubscribed, RoomData{Room: RoomPersonal})
	case CmdAuth:
		c.authenticate(msg.Token)
	case CmdPing:
		c.enqueueMsg(EvtPong, nil)
	default:
		c.sendError(CodeUnknownCommand, "unknown command: "+msg.Type)
	}
}

// subscribe troca a aba e envia o snapshot completo antes de qualquer delta da nova aba.
func (c *Client) subscribe(ctx context.Context, tab feed.Tab) {
	c.mu.Lock()
	prev := c.tab
	c.tab = tab
	c.syncing = true
	c.backlog = nil
	c.mu.Unlock()

	items := c.hub.snapshot(ctx, tab)

	c.mu.Lock()
	defer c.mu.Unlock()
	if prev != "" && prev != tab {
		c.enqueueMsg(EvtUnsubscribed, RoomData{Room: RoomFeed, Tab: prev})
	}
	c.enqueueMsg(EvtSubscribed, RoomData{Room: RoomFeed, Tab: tab})
	c.enqueueMsg(EvtInitial, InitialData{Tab: tab, Items: items})
	for _, b := range c.backlog {
		c.enqueue(b)
	}
	c.backlog = nil
	c.syncing = false
}

// authenticate trata o token enviado no payload de handshake. Token inválido
// encerra a conexão depois de entregar o erro.
func (c *Client) authenticate(token string) {
	if uid := c.identity(); c.hub.auth == nil || uid != "" {
		c.enqueueMsg(EvtConnected, ConnectedData{Authenticated: uid != "", UserID: uid})
		return
	}
	userID, err := c.hub.auth.Validate(token)
	if err != nil {
		c.hub.log.Info("websocket auth rejected", zap.Error(err))
		c.sendError(CodeUnauthorized, "invalid or expired token")
		c.closeAfterFlush()
		return
	}
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
	c.enqueueMsg(EvtConnected, ConnectedData{Authenticated: true, UserID: userID})
}

// closeAfterFlush pede ao writePump que feche depois das mensagens já enfileiradas.
func (c *Client) closeAfterFlush() {
	select {
	case c.send <- nil:
	default:
		c.close()
	}
}

// writePump é o único escritor da conexão.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if b == nil {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized"))
				c.close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// rejectAndClose responde ao handshake com token inválido antes de qualquer pump.
func rejectAndClose(conn *websocket.Conn, reason string) {
	defer conn.Close()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	b, _ := json.Marshal(ServerMsg{Type: EvtError, Data: ErrorData{Message: reason, Code: CodeUnauthorized}})
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized"))
}
