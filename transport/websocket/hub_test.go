package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wricardo/sessionrelay/game/config"
	"github.com/wricardo/sessionrelay/game/service"
)

type testServer struct {
	relay  *service.Relay
	hub    *Hub
	server *httptest.Server
	url    string
}

func newTestServer(t *testing.T, cfg config.Config) *testServer {
	t.Helper()

	relay := service.NewRelay(nil, nil)
	hub := NewHub(relay, relay.Metrics(), cfg, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &testServer{
		relay:  relay,
		hub:    hub,
		server: server,
		url:    "ws" + strings.TrimPrefix(server.URL, "http") + "/ws",
	}
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("Frame is not JSON: %v (%s)", err, data)
	}
	return frame
}

func readType(t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()
	frame := readFrame(t, conn)
	if frame["type"] != want {
		t.Fatalf("Expected %s frame, got %v", want, frame)
	}
	return frame
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("Failed to write frame: %v", err)
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestHubWelcome(t *testing.T) {
	s := newTestServer(t, config.Default())

	a := s.dial(t)
	welcomeA := readType(t, a, "welcome")
	if welcomeA["isFirstPlayer"] != true {
		t.Error("First connection should be told it is the first player")
	}
	if id, _ := welcomeA["playerID"].(string); id == "" {
		t.Error("Welcome should carry the player id")
	}

	b := s.dial(t)
	welcomeB := readType(t, b, "welcome")
	if welcomeB["isFirstPlayer"] != false {
		t.Error("Second connection should not be the first player")
	}
	players, ok := welcomeB["players"].(map[string]any)
	if !ok || len(players) != 2 {
		t.Errorf("Expected 2 players in welcome, got %v", welcomeB["players"])
	}

	eventually(t, func() bool { return s.hub.Count() == 2 }, "Expected hub to track 2 clients")
}

func TestHubEntityFanOut(t *testing.T) {
	s := newTestServer(t, config.Default())

	a := s.dial(t)
	readType(t, a, "welcome")
	b := s.dial(t)
	readType(t, b, "welcome")

	writeJSON(t, a, map[string]any{
		"type": "create_entity",
		"data": map[string]any{"position": map[string]any{"x": 1, "y": 2, "z": 3}, "rotation": 0.5},
	})

	for _, conn := range []*websocket.Conn{a, b} {
		frame := readType(t, conn, "entity_update")
		entity, _ := frame["entity"].(map[string]any)
		if entity["id"] != "entity_0" {
			t.Errorf("Expected entity_0, got %v", entity["id"])
		}
	}

	// b is not the authority; its delete is dropped and b still sees the
	// next event from a.
	writeJSON(t, b, map[string]any{"type": "delete_entity", "entityID": "entity_0"})
	writeJSON(t, a, map[string]any{"type": "delete_entity", "entityID": "entity_0"})

	frame := readType(t, b, "entity_delete")
	if frame["entityID"] != "entity_0" {
		t.Errorf("Expected entity_0 deleted, got %v", frame)
	}
	eventually(t, func() bool { return s.relay.Metrics().UnauthorizedDrops.Load() == 1 },
		"Expected one unauthorized drop")
}

func TestHubMalformedFrameKeepsConnection(t *testing.T) {
	s := newTestServer(t, config.Default())

	a := s.dial(t)
	readType(t, a, "welcome")

	if err := a.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("Failed to write frame: %v", err)
	}
	writeJSON(t, a, map[string]any{"type": "username", "username": "alice"})

	joined := readType(t, a, "join_leave")
	if joined["action"] != "joined" || joined["username"] != "alice" {
		t.Errorf("Unexpected join frame: %v", joined)
	}
	readType(t, a, "sync")

	if got := s.relay.Metrics().FramesMalformed.Load(); got != 1 {
		t.Errorf("Expected 1 malformed frame, got %d", got)
	}
}

func TestHubDisconnectTransfersAuthority(t *testing.T) {
	s := newTestServer(t, config.Default())

	a := s.dial(t)
	readType(t, a, "welcome")
	b := s.dial(t)
	welcomeB := readType(t, b, "welcome")
	bID := welcomeB["playerID"].(string)

	a.Close()

	sync := readType(t, b, "sync")
	players, _ := sync["players"].(map[string]any)
	if len(players) != 1 {
		t.Errorf("Expected 1 player after disconnect, got %d", len(players))
	}

	info, err := s.relay.Authority(t.Context())
	if err != nil {
		t.Fatalf("Authority failed: %v", err)
	}
	if !info.Held || info.ConnectionID != bID {
		t.Errorf("Expected %s to hold authority, got %+v", bID, info)
	}
}

func TestHubNamelessJoinClosesConnection(t *testing.T) {
	s := newTestServer(t, config.Default())

	a := s.dial(t)
	readType(t, a, "welcome")
	writeJSON(t, a, map[string]any{"type": "username", "username": ""})

	frame := readType(t, a, "error")
	if frame["message"] != "You must provide a username to join." {
		t.Errorf("Unexpected error frame: %v", frame)
	}

	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := a.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("Expected normal close, got %v", err)
	}
	eventually(t, func() bool { return s.hub.Count() == 0 }, "Expected client to be released")
}

func TestHubRateLimit(t *testing.T) {
	cfg := config.Default()
	cfg.MessagesPerSecond = 0.001
	cfg.MessageBurst = 1
	s := newTestServer(t, cfg)

	a := s.dial(t)
	readType(t, a, "welcome")

	writeJSON(t, a, map[string]any{"type": "username", "username": "alice"})
	writeJSON(t, a, map[string]any{"type": "username", "username": "bob"})
	writeJSON(t, a, map[string]any{"type": "username", "username": "carol"})

	eventually(t, func() bool { return s.relay.Metrics().FramesRateLimited.Load() == 2 },
		"Expected 2 rate-limited frames")
	if got := s.relay.Metrics().FramesHandled.Load(); got != 1 {
		t.Errorf("Expected 1 handled frame, got %d", got)
	}
}

func TestHubShutdown(t *testing.T) {
	s := newTestServer(t, config.Default())

	a := s.dial(t)
	readType(t, a, "welcome")
	eventually(t, func() bool { return s.hub.Count() == 1 }, "Expected hub to track the client")

	s.hub.Shutdown()

	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := a.ReadMessage(); err == nil {
		t.Error("Expected the connection to close")
	}
	eventually(t, func() bool {
		view, _ := s.relay.Snapshot(t.Context())
		return view.Connections == 0
	}, "Expected relay to drop the connection")
}

func TestClientSendAndClose(t *testing.T) {
	c := &Client{send: make(chan []byte, 1)}

	if c.State() != StateConnecting {
		t.Errorf("Expected connecting, got %s", c.State())
	}
	if !c.Send([]byte("one")) {
		t.Error("First send should be queued")
	}
	if c.Send([]byte("two")) {
		t.Error("Send to a full queue should be refused")
	}

	c.Close()
	c.Close()

	if c.State() != StateClosed {
		t.Errorf("Expected closed, got %s", c.State())
	}
	if c.Send([]byte("three")) {
		t.Error("Send after close should be refused")
	}
	if msg, ok := <-c.send; !ok || string(msg) != "one" {
		t.Errorf("Queued frame should survive close, got %q", msg)
	}
}

func TestClientEvictedWhenQueueFull(t *testing.T) {
	relay := service.NewRelay(nil, nil)
	authority := &Client{send: make(chan []byte, 8)}
	authorityID, err := relay.Connect(authority)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// The welcome fills the one-slot queue; nothing drains it
	slow := &Client{send: make(chan []byte, 1)}
	slowID, err := relay.Connect(slow)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if slow.State() == StateClosed {
		t.Fatal("Client should accept its welcome")
	}

	relay.HandleFrame(authorityID, []byte(`{"type":"create_entity","data":{"rotation":1}}`))

	if slow.State() != StateClosed {
		t.Errorf("Expected client with full queue to be closed, got %s", slow.State())
	}
	if authority.State() == StateClosed {
		t.Error("Client with room in its queue should stay open")
	}
	if _, ok := <-slow.send; !ok {
		t.Error("Welcome should still be queued for the write pump")
	}
	if _, ok := <-slow.send; ok {
		t.Error("Send channel should be closed after eviction")
	}

	relay.Disconnect(slowID)
	view, _ := relay.Snapshot(t.Context())
	if view.Connections != 1 {
		t.Errorf("Expected 1 connection after eviction, got %d", view.Connections)
	}
}

func TestHubSlowClientDisconnected(t *testing.T) {
	cfg := config.Default()
	cfg.SendBuffer = 1
	s := newTestServer(t, cfg)

	a := s.dial(t)
	readType(t, a, "welcome")
	eventually(t, func() bool { return s.hub.Count() == 1 }, "Expected hub to track the client")

	var client *Client
	s.hub.mu.Lock()
	for c := range s.hub.clients {
		client = c
	}
	s.hub.mu.Unlock()

	// Broadcasting faster than the write pump drains overflows the one slot
	for i := 0; i < 10000 && client.State() != StateClosed; i++ {
		s.relay.BroadcastSync()
	}
	if client.State() != StateClosed {
		t.Fatal("Expected client to be closed after its queue overflowed")
	}

	eventually(t, func() bool { return s.hub.Count() == 0 }, "Expected slow client to be released")
	eventually(t, func() bool {
		view, _ := s.relay.Snapshot(t.Context())
		return view.Connections == 0
	}, "Expected relay to drop the slow connection")
}
