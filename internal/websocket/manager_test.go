package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/barter-api/internal/models"
	"github.com/rajivgeraev/barter-api/internal/utils"
)

type fakeTrades map[uuid.UUID]*models.Trade

func (f fakeTrades) GetByID(_ context.Context, id uuid.UUID) (*models.Trade, error) {
	if t, ok := f[id]; ok {
		return t, nil
	}
	return nil, errors.New("not found")
}

func TestRoomPolicy(t *testing.T) {
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	trade := &models.Trade{ID: uuid.New(), ProposerID: alice, ReceiverID: bob}
	policy := RoomPolicy{Trades: fakeTrades{trade.ID: trade}}
	ctx := context.Background()

	assert.NoError(t, policy.CanJoin(ctx, alice, UserRoom(alice)))
	assert.ErrorIs(t, policy.CanJoin(ctx, alice, UserRoom(bob)), ErrForbiddenRoom)
	assert.NoError(t, policy.CanJoin(ctx, bob, TradeRoom(trade.ID)))
	assert.ErrorIs(t, policy.CanJoin(ctx, carol, TradeRoom(trade.ID)), ErrForbiddenRoom)
	assert.Error(t, policy.CanJoin(ctx, alice, TradeRoom(uuid.New())))
	assert.ErrorIs(t, policy.CanJoin(ctx, alice, "lobby"), ErrUnknownRoom)
	assert.ErrorIs(t, policy.CanJoin(ctx, alice, "chat:"+uuid.NewString()), ErrUnknownRoom)
}

func readQueued(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case raw := <-c.send:
		var ev Event
		require.NoError(t, json.Unmarshal(raw, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event queued")
		return Event{}
	}
}

func TestManager_PublishAndRemove(t *testing.T) {
	alice, bob := uuid.New(), uuid.New()
	trade := &models.Trade{ID: uuid.New(), ProposerID: alice, ReceiverID: bob}
	m := NewManager(RoomPolicy{Trades: fakeTrades{trade.ID: trade}}, nil)

	a := NewClient(alice, nil, m)
	b := NewClient(bob, nil, m)
	m.AddClient(a)
	m.AddClient(b)

	assert.Equal(t, 1, m.SendToUser(alice, Event{Type: EventTradeCreated}))
	assert.Equal(t, EventTradeCreated, readQueued(t, a).Type)
	assert.Empty(t, b.send)

	room := TradeRoom(trade.ID)
	require.NoError(t, m.Subscribe(context.Background(), a, room))
	require.NoError(t, m.Subscribe(context.Background(), b, room))

	require.NoError(t, m.PublishFrom(a, room, json.RawMessage(`{"text":"hi"}`)))
	ev := readQueued(t, b)
	assert.Equal(t, EventMessage, ev.Type)
	assert.Equal(t, alice.String(), ev.UserID)
	assert.JSONEq(t, `{"text":"hi"}`, string(ev.Payload))
	assert.Empty(t, a.send, "sender does not receive own message")

	m.Unsubscribe(b, room)
	assert.Equal(t, 1, m.Publish(room, Event{Type: EventTradeUpdated}))
	assert.ErrorIs(t, m.PublishFrom(b, room, nil), ErrNotSubscribed)

	m.RemoveClient(a.ID)
	assert.Equal(t, 0, m.Publish(room, Event{Type: EventTradeUpdated}))
	assert.Equal(t, 0, m.SendToUser(alice, Event{Type: EventTradeUpdated}))
}

func TestManager_SlowClientDropped(t *testing.T) {
	alice := uuid.New()
	m := NewManager(RoomPolicy{}, nil)
	c := NewClient(alice, nil, m)
	m.AddClient(c)

	for i := 0; i < writeBufferSize; i++ {
		m.SendToUser(alice, Event{Type: EventTradeUpdated})
	}
	assert.Equal(t, 0, m.SendToUser(alice, Event{Type: EventTradeUpdated}))
	assert.Empty(t, m.Rooms(c))

	select {
	case <-c.closeChan:
	default:
		t.Fatal("slow client not closed")
	}
}

func dial(t *testing.T, srv *httptest.Server, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	return websocket.DefaultDialer.Dial(url, nil)
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestHandler_EndToEnd(t *testing.T) {
	jwtService := utils.NewJWTService("secret", time.Hour)
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	trade := &models.Trade{ID: uuid.New(), ProposerID: alice, ReceiverID: bob}

	m := NewManager(RoomPolicy{Trades: fakeTrades{trade.ID: trade}}, nil)
	defer m.Shutdown()
	srv := httptest.NewServer(NewHandler(m, jwtService))
	defer srv.Close()

	_, resp, err := dial(t, srv, "bad")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	connect := func(user uuid.UUID) *websocket.Conn {
		token, err := jwtService.GenerateToken(user)
		require.NoError(t, err)
		conn, _, err := dial(t, srv, token)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		return conn
	}
	subscribe := func(conn *websocket.Conn, room string) Event {
		require.NoError(t, conn.WriteJSON(Event{Type: EventSubscribe, Room: room}))
		return readEvent(t, conn)
	}

	a, b, c := connect(alice), connect(bob), connect(carol)
	room := TradeRoom(trade.ID)

	assert.Equal(t, EventSubscribed, subscribe(a, room).Type)
	assert.Equal(t, EventSubscribed, subscribe(b, room).Type)
	denied := subscribe(c, room)
	assert.Equal(t, EventError, denied.Type)
	assert.Equal(t, room, denied.Room)
	assert.Equal(t, EventError, subscribe(c, UserRoom(alice)).Type)

	require.NoError(t, a.WriteJSON(Event{Type: EventPublish, Room: room, Payload: json.RawMessage(`{"text":"deal?"}`)}))
	got := readEvent(t, b)
	assert.Equal(t, EventMessage, got.Type)
	assert.Equal(t, alice.String(), got.UserID)

	require.NoError(t, c.WriteJSON(Event{Type: EventPublish, Room: room}))
	assert.Equal(t, EventError, readEvent(t, c).Type)

	// серверное уведомление в личную комнату
	assert.Equal(t, 1, m.SendToUser(bob, Event{Type: EventTradeUpdated}))
	assert.Equal(t, EventTradeUpdated, readEvent(t, b).Type)
}
