package ws

import (
	"github.com/radieske/bet-feed/internal/feed"
	"github.com/radieske/bet-feed/internal/feed/privacy"
)

// ClientMsg representa uma mensagem recebida do cliente WebSocket
// Type: subscribe | switch-tab | unsubscribe | subscribe-personal | unsubscribe-personal | auth | ping
type ClientMsg struct {
	Type  string `json:"type"`
	Tab   string `json:"tab,omitempty"`   // subscribe / switch-tab
	Token string `json:"token,omitempty"` // auth
}

const (
	CmdSubscribe           = "subscribe"
	CmdSwitchTab           = "switch-tab"
	CmdUnsubscribe         = "unsubscribe"
	CmdSubscribePersonal   = "subscribe-personal"
	CmdUnsubscribePersonal = "unsubscribe-personal"
	CmdAuth                = "auth"
	CmdPing                = "ping"
)

// ServerMsg é o envelope de tudo que o servidor envia.
type ServerMsg struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

const (
	EvtConnected     = "connected"
	EvtSubscribed    = "subscribed"
	EvtUnsubscribed  = "unsubscribed"
	EvtError         = "error"
	EvtInitial       = "bet-feed-initial"
	EvtDelta         = "bet-feed-delta"
	EvtPersonalDelta = "my-bet-feed-delta"
	EvtPong          = "pong"
)

// salas lógicas: uma compartilhada por todas as abas e a pessoal
const (
	RoomFeed     = "bet-feed"
	RoomPersonal = "my-bets"
)

// códigos de erro de protocolo; a conexão continua aberta, exceto em UNAUTHORIZED no handshake
const (
	CodeInvalidTab     = "INVALID_TAB"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeUnknownCommand = "UNKNOWN_COMMAND"
	CodeBadRequest     = "BAD_REQUEST"
)

type ConnectedData struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"userId,omitempty"`
}

type RoomData struct {
	Room string   `json:"room"`
	Tab  feed.Tab `json:"tab,omitempty"`
}

type ErrorData struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type InitialData struct {
	Tab   feed.Tab          `json:"tab"`
	Items []privacy.Visible `json:"items"`
}
