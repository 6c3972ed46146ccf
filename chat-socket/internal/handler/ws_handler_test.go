package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/broadcast"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/config"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/domain"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/hub"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/repository"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/service"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/testutil"
)

const testSocketPath = "/chat-socket"

var testWSConfig = config.WebSocketConfig{
	Path:           testSocketPath,
	PingInterval:   time.Minute,
	PongWait:       2 * time.Minute,
	WriteWait:      5 * time.Second,
	MaxMessageSize: 65536,
	SendBuffer:     64,
}

type testServer struct {
	*httptest.Server
	hub *hub.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithHealth(t, nil)
}

func newTestServerWithHealth(t *testing.T, health HealthCheck) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	testutil.SeedConversation(t, db, 10, 0, "1", "2")
	store := repository.NewGormStore(db)

	h := hub.NewHub(testWSConfig)
	router := broadcast.NewRouter(h, nil)
	svc := service.NewChatService(h, router, store, nil, nil, service.Options{})
	origins := NewOriginPolicy([]string{"*"})
	ws := NewWSHandler(h, svc, testWSConfig, origins)

	srv := httptest.NewServer(NewRouter(ws, testSocketPath, origins, zerolog.Nop(), health))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, hub: h}
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + testSocketPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event, ackID string, data interface{}) {
	t.Helper()
	frame := map[string]interface{}{"type": event, "data": data}
	if ackID != "" {
		frame["ack_id"] = ackID
	}
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// readUntil reads frames until one of type event arrives.
func readUntil(t *testing.T, conn *websocket.Conn, event string) domain.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var env domain.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if env.Type == event {
			return env
		}
	}
}

// TestSocketSendMessage drives authenticate, join and send_message over a
// real websocket and checks the ack and the conversation broadcast.
func TestSocketSendMessage(t *testing.T) {
	srv := newTestServer(t)

	sender := srv.dial(t)
	receiver := srv.dial(t)

	send(t, receiver, domain.EventAuthenticate, "", map[string]string{"user_id": "2"})
	send(t, receiver, domain.EventJoin, "", 10)
	send(t, receiver, domain.EventPing, "p1", nil)
	if env := readUntil(t, receiver, domain.EventPong); env.AckID != "p1" {
		t.Errorf("pong ack_id = %q", env.AckID)
	}

	send(t, sender, domain.EventAuthenticate, "", 1)
	send(t, sender, domain.EventSendMessage, "a1", map[string]interface{}{
		"conversation_id":   "10",
		"sender_id":         1,
		"receiver_id":       "2",
		"content":           "hi",
		"correlation_token": "tmp-1",
	})

	ackEnv := readUntil(t, sender, domain.EventAck)
	if ackEnv.AckID != "a1" {
		t.Errorf("ack_id = %q, want a1", ackEnv.AckID)
	}
	var ack domain.AckPayload
	if err := json.Unmarshal(ackEnv.Data, &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if !ack.Success || ack.Message == nil || ack.Message.Content != "hi" || ack.CorrelationToken != "tmp-1" {
		t.Fatalf("ack = %+v", ack)
	}

	var nm domain.NewMessagePayload
	if err := json.Unmarshal(readUntil(t, receiver, domain.EventNewMessage).Data, &nm); err != nil {
		t.Fatalf("decode new_message: %v", err)
	}
	if nm.Message == nil || nm.Message.ID != ack.Message.ID || nm.CorrelationToken != "tmp-1" {
		t.Errorf("new_message = %+v", nm)
	}

	var conv domain.Conversation
	if err := json.Unmarshal(readUntil(t, receiver, domain.EventConversationUpdated).Data, &conv); err != nil {
		t.Fatalf("decode conversation_updated: %v", err)
	}
	if conv.ID != 10 || conv.UnreadCount != 1 {
		t.Errorf("conversation_updated = %+v", conv)
	}
}

// TestSocketSendMessageFailureAck verifies failures are acked to the caller
// only.
func TestSocketSendMessageFailureAck(t *testing.T) {
	srv := newTestServer(t)
	conn := srv.dial(t)

	send(t, conn, domain.EventSendMessage, "a1", map[string]interface{}{
		"conversation_id": 99,
		"sender_id":       "1",
		"receiver_id":     "2",
		"content":         "hi",
	})
	var ack domain.AckPayload
	if err := json.Unmarshal(readUntil(t, conn, domain.EventAck).Data, &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.Success || ack.Error == nil || ack.Error.Code != domain.ErrCodeNotFound {
		t.Errorf("ack = %+v", ack)
	}

	send(t, conn, domain.EventSendMessage, "a2", "not an object")
	if err := json.Unmarshal(readUntil(t, conn, domain.EventAck).Data, &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.Success || ack.Error == nil || ack.Error.Code != domain.ErrCodeBadRequest {
		t.Errorf("malformed ack = %+v", ack)
	}
}

// TestSocketMalformedFrames verifies malformed frames produce error events
// and keep the connection open.
func TestSocketMalformedFrames(t *testing.T) {
	srv := newTestServer(t)
	conn := srv.dial(t)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	var info domain.ErrorInfo
	if err := json.Unmarshal(readUntil(t, conn, domain.EventError).Data, &info); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if info.Code != domain.ErrCodeBadRequest {
		t.Errorf("code = %q", info.Code)
	}

	send(t, conn, "dance", "", nil)
	readUntil(t, conn, domain.EventError)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"join"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntil(t, conn, domain.EventError)

	send(t, conn, domain.EventJoin, "", "ten")
	readUntil(t, conn, domain.EventError)

	send(t, conn, domain.EventPing, "", nil)
	readUntil(t, conn, domain.EventPong)
}

// TestSocketDisconnectReleasesRooms verifies a closed socket leaves the hub.
func TestSocketDisconnectReleasesRooms(t *testing.T) {
	srv := newTestServer(t)
	conn := srv.dial(t)

	send(t, conn, domain.EventAuthenticate, "", "1")
	send(t, conn, domain.EventJoin, "", 10)
	send(t, conn, domain.EventPing, "", nil)
	readUntil(t, conn, domain.EventPong)

	if n := len(srv.hub.Members(domain.ConversationRoom(10))); n != 1 {
		t.Fatalf("conversation members = %d, want 1", n)
	}
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for srv.hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d after close", srv.hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if n := len(srv.hub.Members(domain.UserRoom("1"))); n != 0 {
		t.Errorf("user room members = %d, want 0", n)
	}
}

func TestStatusAndHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + testSocketPath)
	if err != nil {
		t.Fatalf("GET socket path: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.Data.Status != "chat socket endpoint ready" {
		t.Errorf("body = %+v", body)
	}

	health, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer health.Body.Close()
	b, _ := io.ReadAll(health.Body)
	if health.StatusCode != http.StatusOK || string(b) != "OK" {
		t.Errorf("/health = %d %q", health.StatusCode, b)
	}

	metricsResp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer metricsResp.Body.Close()
	b, _ = io.ReadAll(metricsResp.Body)
	if !strings.Contains(string(b), "chat_socket_active_connections") {
		t.Error("/metrics missing active connections gauge")
	}
}

func TestHealthReportsDatabaseFailure(t *testing.T) {
	srv := newTestServerWithHealth(t, func(context.Context) error {
		return errors.New("connection refused")
	})

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Success || body.Error.Code != "SERVICE_UNAVAILABLE" {
		t.Errorf("body = %+v", body)
	}
}
