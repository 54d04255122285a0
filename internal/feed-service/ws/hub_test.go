package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/bet-feed/internal/feed"
	"github.com/radieske/bet-feed/internal/feed/privacy"
)

const testSecret = "test-secret"

type fakeWindows struct {
	mu    sync.Mutex
	items map[feed.Tab][]feed.Item
}

func (f *fakeWindows) Read(_ context.Context, tab feed.Tab) ([]feed.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]feed.Item(nil), f.items[tab]...), nil
}

type fakeUsers map[string]*feed.UserSnapshot

func (f fakeUsers) Get(_ context.Context, id string) *feed.UserSnapshot { return f[id] }

type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type testEnv struct {
	hub  *Hub
	auth *Authenticator
	url  string
}

func newTestEnv(t *testing.T, windows map[feed.Tab][]feed.Item) *testEnv {
	t.Helper()
	users := fakeUsers{
		"alice": {ID: "alice", DisplayName: "Alice"},
		"bob":   {ID: "bob", DisplayName: "Bob", IsPrivate: true},
	}
	auth := NewAuthenticator(testSecret)
	hub := NewHub(AllowOrigins([]string{"*"}), &fakeWindows{items: windows}, privacy.NewMasker(users), auth, zap.NewNop())

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)
	return &testEnv{hub: hub, auth: auth, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func (e *testEnv) dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := e.auth.Issue(userID, time.Minute)
	require.NoError(t, err)
	return tok
}

func read(t *testing.T, conn *websocket.Conn) inbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m inbound
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func readType(t *testing.T, conn *websocket.Conn, typ string) inbound {
	t.Helper()
	m := read(t, conn)
	require.Equal(t, typ, m.Type, "payload: %s", m.Data)
	return m
}

func send(t *testing.T, conn *websocket.Conn, msg ClientMsg) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

type wireItem struct {
	ID   string     `json:"id"`
	User *feed.User `json:"user"`
}

type wireInitial struct {
	Tab   feed.Tab   `json:"tab"`
	Items []wireItem `json:"items"`
}

type wireDelta struct {
	Tab     feed.Tab   `json:"tab"`
	NewBets []wireItem `json:"newBets"`
	Count   int        `json:"count"`
}

func feedItem(id, userID string) feed.Item {
	it := feed.Item{
		ID:         id,
		Game:       feed.DescribeGame("DICE", ""),
		Timestamp:  time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		BetAmount:  decimal.RequireFromString("1"),
		Multiplier: decimal.RequireFromString("2"),
		Payout:     decimal.RequireFromString("2"),
		Asset:      "USDT",
	}
	if userID != "" {
		it.User = &feed.User{ID: userID, Name: userID}
	}
	return it
}

func TestHandleWS_AnonymousConnect(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.dial(t, env.url, nil)

	m := readType(t, conn, EvtConnected)
	got := decode[ConnectedData](t, m.Data)
	assert.False(t, got.Authenticated)
	assert.Empty(t, got.UserID)
}

func TestHandleWS_TokenSources(t *testing.T) {
	env := newTestEnv(t, nil)
	tok := env.token(t, "alice")

	cases := map[string]func() (string, http.Header){
		"header": func() (string, http.Header) {
			return env.url, http.Header{"Authorization": {"Bearer " + tok}}
		},
		"query": func() (string, http.Header) {
			return env.url + "?token=" + tok, nil
		},
		"cookie": func() (string, http.Header) {
			return env.url, http.Header{"Cookie": {"access_token=" + tok}}
		},
	}
	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			url, header := build()
			conn := env.dial(t, url, header)
			got := decode[ConnectedData](t, readType(t, conn, EvtConnected).Data)
			assert.True(t, got.Authenticated)
			assert.Equal(t, "alice", got.UserID)
		})
	}
}

func TestHandleWS_InvalidTokenClosesConnection(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.dial(t, env.url+"?token=bogus", nil)

	m := readType(t, conn, EvtError)
	assert.Equal(t, CodeUnauthorized, decode[ErrorData](t, m.Data).Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
	assert.Zero(t, env.hub.ClientCount())
}

func TestSubscribe_SendsSnapshotThenFilteredDeltas(t *testing.T) {
	env := newTestEnv(t, map[feed.Tab][]feed.Item{
		feed.TabBigWins: {feedItem("big-2", "alice"), feedItem("big-1", "bob")},
	})
	conn := env.dial(t, env.url, nil)
	readType(t, conn, EvtConnected)

	send(t, conn, ClientMsg{Type: CmdSubscribe, Tab: "big-wins"})
	sub := decode[RoomData](t, readType(t, conn, EvtSubscribed).Data)
	assert.Equal(t, RoomData{Room: RoomFeed, Tab: feed.TabBigWins}, sub)

	initial := decode[wireInitial](t, readType(t, conn, EvtInitial).Data)
	assert.Equal(t, feed.TabBigWins, initial.Tab)
	require.Len(t, initial.Items, 2)
	assert.Equal(t, "big-2", initial.Items[0].ID)
	require.NotNil(t, initial.Items[0].User)
	assert.Nil(t, initial.Items[1].User, "private user is masked in the snapshot")

	ctx := context.Background()
	env.hub.BroadcastTab(ctx, feed.NewDelta(feed.TabAll, feedItem("all-1", "alice"), time.Now()))
	env.hub.BroadcastTab(ctx, feed.NewDelta(feed.TabBigWins, feedItem("big-3", "bob"), time.Now()))

	d := decode[wireDelta](t, readType(t, conn, EvtDelta).Data)
	assert.Equal(t, feed.TabBigWins, d.Tab)
	require.Len(t, d.NewBets, 1)
	assert.Equal(t, "big-3", d.NewBets[0].ID)
	assert.Nil(t, d.NewBets[0].User)
	assert.Equal(t, 1, d.Count)
}

func TestSwitchTab_UnsubscribesPrevious(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.dial(t, env.url, nil)
	readType(t, conn, EvtConnected)

	send(t, conn, ClientMsg{Type: CmdSubscribe, Tab: "ALL"})
	readType(t, conn, EvtSubscribed)
	readType(t, conn, EvtInitial)

	send(t, conn, ClientMsg{Type: CmdSwitchTab, Tab: "LUCKY_WINNERS"})
	prev := decode[RoomData](t, readType(t, conn, EvtUnsubscribed).Data)
	assert.Equal(t, feed.TabAll, prev.Tab)
	next := decode[RoomData](t, readType(t, conn, EvtSubscribed).Data)
	assert.Equal(t, feed.TabLuckyWinners, next.Tab)
	initial := decode[wireInitial](t, readType(t, conn, EvtInitial).Data)
	assert.Equal(t, feed.TabLuckyWinners, initial.Tab)

	env.hub.BroadcastTab(context.Background(), feed.NewDelta(feed.TabAll, feedItem("a", ""), time.Now()))
	env.hub.BroadcastTab(context.Background(), feed.NewDelta(feed.TabLuckyWinners, feedItem("l", ""), time.Now()))
	d := decode[wireDelta](t, readType(t, conn, EvtDelta).Data)
	assert.Equal(t, "l", d.NewBets[0].ID)
}

func TestSubscribe_InvalidTabKeepsConnection(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.dial(t, env.url, nil)
	readType(t, conn, EvtConnected)

	send(t, conn, ClientMsg{Type: CmdSubscribe, Tab: "HIGH_ROLLERS"})
	assert.Equal(t, CodeInvalidTab, decode[ErrorData](t, readType(t, conn, EvtError).Data).Code)

	send(t, conn, ClientMsg{Type: CmdPing})
	readType(t, conn, EvtPong)
}

func TestProtocolErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.dial(t, env.url, nil)
	readType(t, conn, EvtConnected)

	send(t, conn, ClientMsg{Type: "dance"})
	assert.Equal(t, CodeUnknownCommand, decode[ErrorData](t, readType(t, conn, EvtError).Data).Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, CodeBadRequest, decode[ErrorData](t, readType(t, conn, EvtError).Data).Code)

	send(t, conn, ClientMsg{Type: CmdSubscribePersonal})
	assert.Equal(t, CodeUnauthorized, decode[ErrorData](t, readType(t, conn, EvtError).Data).Code)

	send(t, conn, ClientMsg{Type: CmdPing})
	readType(t, conn, EvtPong)
}

func TestPersonalFeed_DeliversToOwnerUnmasked(t *testing.T) {
	env := newTestEnv(t, nil)
	owner := env.dial(t, env.url, http.Header{"Authorization": {"Bearer " + env.token(t, "bob")}})
	readType(t, owner, EvtConnected)
	other := env.dial(t, env.url, http.Header{"Authorization": {"Bearer " + env.token(t, "alice")}})
	readType(t, other, EvtConnected)

	send(t, owner, ClientMsg{Type: CmdSubscribePersonal})
	assert.Equal(t, RoomPersonal, decode[RoomData](t, readType(t, owner, EvtSubscribed).Data).Room)
	send(t, other, ClientMsg{Type: CmdSubscribePersonal})
	readType(t, other, EvtSubscribed)

	env.hub.BroadcastUser(context.Background(), "bob", feed.NewDelta(feed.TabBigWins, feedItem("mine", "bob"), time.Now()))

	d := decode[wireDelta](t, readType(t, owner, EvtPersonalDelta).Data)
	assert.Empty(t, d.Tab)
	require.Len(t, d.NewBets, 1)
	require.NotNil(t, d.NewBets[0].User, "private owner sees their own bet")
	assert.Equal(t, "bob", d.NewBets[0].User.ID)

	send(t, other, ClientMsg{Type: CmdPing})
	readType(t, other, EvtPong)
}

func TestUnsubscribePersonal(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.dial(t, env.url, http.Header{"Authorization": {"Bearer " + env.token(t, "alice")}})
	readType(t, conn, EvtConnected)

	send(t, conn, ClientMsg{Type: CmdSubscribePersonal})
	readType(t, conn, EvtSubscribed)
	send(t, conn, ClientMsg{Type: CmdUnsubscribePersonal})
	readType(t, conn, EvtUnsubscribed)

	env.hub.BroadcastUser(context.Background(), "alice", feed.NewDelta("", feedItem("x", "alice"), time.Now()))
	send(t, conn, ClientMsg{Type: CmdPing})
	readType(t, conn, EvtPong)
}

func TestAuthCommand(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.dial(t, env.url, nil)
	readType(t, conn, EvtConnected)

	send(t, conn, ClientMsg{Type: CmdAuth, Token: env.token(t, "alice")})
	got := decode[ConnectedData](t, readType(t, conn, EvtConnected).Data)
	assert.True(t, got.Authenticated)
	assert.Equal(t, "alice", got.UserID)

	send(t, conn, ClientMsg{Type: CmdSubscribePersonal})
	readType(t, conn, EvtSubscribed)
}

func TestAuthCommand_InvalidTokenDisconnects(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.dial(t, env.url, nil)
	readType(t, conn, EvtConnected)

	send(t, conn, ClientMsg{Type: CmdAuth, Token: "bogus"})
	assert.Equal(t, CodeUnauthorized, decode[ErrorData](t, readType(t, conn, EvtError).Data).Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
	assert.Eventually(t, func() bool { return env.hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestDisconnect_ReleasesRooms(t *testing.T) {
	env := newTestEnv(t, nil)
	conn := env.dial(t, env.url, http.Header{"Authorization": {"Bearer " + env.token(t, "alice")}})
	readType(t, conn, EvtConnected)
	send(t, conn, ClientMsg{Type: CmdSubscribePersonal})
	readType(t, conn, EvtSubscribed)
	require.Equal(t, 1, env.hub.ClientCount())

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		if env.hub.ClientCount() != 0 {
			return false
		}
		env.hub.mu.RLock()
		defer env.hub.mu.RUnlock()
		return len(env.hub.personal) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcastTab_ReportsDelta(t *testing.T) {
	env := newTestEnv(t, nil)
	var mu sync.Mutex
	var tabs []feed.Tab
	env.hub.OnDelta = func(tab feed.Tab) {
		mu.Lock()
		tabs = append(tabs, tab)
		mu.Unlock()
	}

	// sem clientes, nada a entregar
	env.hub.BroadcastTab(context.Background(), feed.NewDelta(feed.TabAll, feedItem("x", ""), time.Now()))

	conn := env.dial(t, env.url, nil)
	readType(t, conn, EvtConnected)
	send(t, conn, ClientMsg{Type: CmdSubscribe, Tab: "ALL"})
	readType(t, conn, EvtSubscribed)
	readType(t, conn, EvtInitial)

	env.hub.BroadcastTab(context.Background(), feed.NewDelta(feed.TabAll, feedItem("y", ""), time.Now()))
	readType(t, conn, EvtDelta)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []feed.Tab{feed.TabAll}, tabs)
}

func TestAllowOrigins(t *testing.T) {
	check := AllowOrigins([]string{"https://app.example.com"})

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, check(r), "non-browser clients have no origin")

	r.Header.Set("Origin", "https://app.example.com")
	assert.True(t, check(r))

	r.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(r))

	r.Header.Set("Origin", "https://anything")
	assert.True(t, AllowOrigins([]string{"*"})(r))
}
