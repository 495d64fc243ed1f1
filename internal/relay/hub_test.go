package relay

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

func startRelay(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub()
	srv := httptest.NewServer(NewHandler(hub, nil))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, hub *Hub, url string) *websocket.Conn {
	t.Helper()
	before := hub.ConnectionCount()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return hub.ConnectionCount() > before }, waitFor, 5*time.Millisecond)
	return conn
}

func emit(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Envelope{Event: event, Data: raw}))
}

func next(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func join(t *testing.T, hub *Hub, conn *websocket.Conn, room string) {
	t.Helper()
	before := hub.RoomSize(room)
	emit(t, conn, EventJoinConversation, room)
	require.Eventually(t, func() bool { return hub.RoomSize(room) > before }, waitFor, 5*time.Millisecond)
}

// signal pushes a sentinel to everyone so a test can assert that nothing
// else was queued for a connection before it.
func signal(t *testing.T, hub *Hub) {
	t.Helper()
	require.NoError(t, hub.Broadcast(Everyone, EventNewSignal, map[string]string{"pair": "EURUSD"}, ""))
}

func TestSendMessageReachesOnlyRoomMembers(t *testing.T) {
	hub, url := startRelay(t)
	sender := dial(t, hub, url)
	member := dial(t, hub, url)
	outsider := dial(t, hub, url)
	join(t, hub, sender, "conv-1")
	join(t, hub, member, "conv-1")

	payload := map[string]string{"conversation_id": "conv-1", "message": "hello", "sender_type": "agent"}
	emit(t, sender, EventSendMessage, payload)

	for _, conn := range []*websocket.Conn{member, sender} {
		env := next(t, conn)
		assert.Equal(t, EventReceiveMessage, env.Event)
		want, _ := json.Marshal(payload)
		assert.JSONEq(t, string(want), string(env.Data))
	}

	signal(t, hub)
	assert.Equal(t, EventNewSignal, next(t, outsider).Event)
}

func TestTypingSkipsSender(t *testing.T) {
	hub, url := startRelay(t)
	typist := dial(t, hub, url)
	peer := dial(t, hub, url)
	join(t, hub, typist, "conv-2")
	join(t, hub, peer, "conv-2")

	emit(t, typist, EventTyping, map[string]any{"conversation_id": "conv-2", "user_id": "agent-1", "is_typing": true})
	assert.Equal(t, EventUserTyping, next(t, peer).Event)

	signal(t, hub)
	assert.Equal(t, EventNewSignal, next(t, typist).Event)
}

func TestAgentStatusSkipsSender(t *testing.T) {
	hub, url := startRelay(t)
	agent := dial(t, hub, url)
	other := dial(t, hub, url)

	emit(t, agent, EventAgentStatus, map[string]string{"agent_id": "agent-1", "status": "away"})
	env := next(t, other)
	assert.Equal(t, EventAgentStatusUpdate, env.Event)
	assert.JSONEq(t, `{"agent_id":"agent-1","status":"away"}`, string(env.Data))

	signal(t, hub)
	assert.Equal(t, EventNewSignal, next(t, agent).Event)
}

func TestNewChatReachesEveryone(t *testing.T) {
	hub, url := startRelay(t)
	creator := dial(t, hub, url)
	other := dial(t, hub, url)

	emit(t, creator, EventNewChat, map[string]string{"conversation_id": "conv-3", "customer_name": "Jane"})
	assert.Equal(t, EventNewChatNotification, next(t, creator).Event)
	assert.Equal(t, EventNewChatNotification, next(t, other).Event)
}

func TestJoinAcceptsStringOrObject(t *testing.T) {
	hub, url := startRelay(t)
	conn := dial(t, hub, url)

	emit(t, conn, EventJoinConversation, "room-a")
	emit(t, conn, EventJoinConversation, map[string]string{"conversation_id": "room-b"})
	require.Eventually(t, func() bool {
		return hub.RoomSize("room-a") == 1 && hub.RoomSize("room-b") == 1
	}, waitFor, 5*time.Millisecond)
}

func TestInvalidFramesAnsweredWithError(t *testing.T) {
	hub, url := startRelay(t)
	conn := dial(t, hub, url)

	cases := []struct {
		name  string
		frame string
		event string
	}{
		{"malformed json", `{"event":`, ""},
		{"unknown envelope field", `{"event":"newChat","data":{"conversation_id":"c"},"extra":1}`, ""},
		{"unknown event", `{"event":"dance","data":{}}`, "dance"},
		{"missing room", `{"event":"sendMessage","data":{"message":"hi"}}`, EventSendMessage},
		{"unknown payload field", `{"event":"typing","data":{"conversation_id":"c","mood":"happy"}}`, EventTyping},
		{"missing data", `{"event":"agentStatus"}`, EventAgentStatus},
		{"empty room id", `{"event":"joinConversation","data":""}`, EventJoinConversation},
	}
	for _, tc := range cases {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tc.frame)), tc.name)
		env := next(t, conn)
		require.Equal(t, EventError, env.Event, tc.name)
		var p ErrorPayload
		require.NoError(t, json.Unmarshal(env.Data, &p), tc.name)
		assert.Equal(t, tc.event, p.Event, tc.name)
		assert.NotEmpty(t, p.Message, tc.name)
	}
	assert.Zero(t, hub.RoomSize("c"))
}

func TestServerBroadcastToRoom(t *testing.T) {
	hub, url := startRelay(t)
	member := dial(t, hub, url)
	join(t, hub, member, "conv-4")

	require.NoError(t, hub.Broadcast("conv-4", EventReceiveMessage, struct {
		Message string `json:"message"`
	}{"from the server"}, ""))
	env := next(t, member)
	assert.Equal(t, EventReceiveMessage, env.Event)
	assert.JSONEq(t, `{"message":"from the server"}`, string(env.Data))
}

func TestDisconnectDropsMemberships(t *testing.T) {
	hub, url := startRelay(t)
	conn := dial(t, hub, url)
	join(t, hub, conn, "conv-5")

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return hub.ConnectionCount() == 0 && hub.RoomSize("conv-5") == 0
	}, waitFor, 5*time.Millisecond)
}

func TestCloseRejectsNewConnections(t *testing.T) {
	hub, url := startRelay(t)
	conn := dial(t, hub, url)

	hub.Close()
	assert.Zero(t, hub.ConnectionCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	late, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer late.Close()
	require.NoError(t, late.SetReadDeadline(time.Now().Add(waitFor)))
	_, _, err = late.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestHubIgnoresUnknownConnections(t *testing.T) {
	hub := NewHub()
	hub.Join("room", "ghost")
	assert.Zero(t, hub.RoomSize("room"))
	hub.Leave("room", "ghost")
	assert.NoError(t, hub.Broadcast("room", EventNewSignal, nil, ""))
}

func TestOriginCheck(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(NewHandler(hub, []string{"https://desk.example.com"}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	allowed, _, err := websocket.DefaultDialer.Dial(url, map[string][]string{"Origin": {"https://desk.example.com"}})
	require.NoError(t, err)
	allowed.Close()

	_, resp, err := websocket.DefaultDialer.Dial(url, map[string][]string{"Origin": {"https://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 403, resp.StatusCode)
}
