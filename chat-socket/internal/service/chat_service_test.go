package service

import (
	"context"
	"errors"
	"testing"

	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/config"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/domain"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/hub"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/testutil"
)

func (f *fixture) service(opts Options) ChatService {
	return NewChatService(f.hub, f.router, f.store, nil, nil, opts)
}

func (f *fixture) newClient(id string) *hub.Client {
	return hub.NewClient(id, f.hub, nil, config.WebSocketConfig{SendBuffer: 64})
}

func hasRoom(h *hub.Hub, c *hub.Client, room domain.Room) bool {
	for _, r := range h.Rooms(c) {
		if r == room {
			return true
		}
	}
	return false
}

// TestHandleAuthenticate verifies binding and the empty-id rejection.
func TestHandleAuthenticate(t *testing.T) {
	f := newFixture(t)
	svc := f.service(Options{})
	ctx := context.Background()
	c := f.newClient("c1")
	svc.HandleConnect(ctx, c)

	if err := svc.HandleAuthenticate(ctx, c, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("HandleAuthenticate(\"\") error = %v, want ErrValidation", err)
	}
	if err := svc.HandleAuthenticate(ctx, c, "1"); err != nil {
		t.Fatalf("HandleAuthenticate() error = %v", err)
	}
	if err := svc.HandleAuthenticate(ctx, c, "2"); err != nil {
		t.Fatalf("HandleAuthenticate() rebind error = %v", err)
	}

	if c.UserID() != "2" {
		t.Errorf("UserID() = %q, want 2", c.UserID())
	}
	if hasRoom(f.hub, c, domain.UserRoom("1")) || !hasRoom(f.hub, c, domain.UserRoom("2")) {
		t.Errorf("rooms = %v", f.hub.Rooms(c))
	}
}

// TestHandleJoinReadOnJoin verifies the configured read-on-join policy.
func TestHandleJoinReadOnJoin(t *testing.T) {
	tests := []struct {
		name       string
		readOnJoin bool
		userID     string
		wantUnread int
		wantStatus domain.MessageStatus
	}{
		{"enabled", true, "2", 0, domain.StatusRead},
		{"disabled", false, "2", 1, domain.StatusSent},
		{"enabled but anonymous", true, "", 1, domain.StatusSent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			testutil.SeedConversation(t, f.db, 10, 1, "1", "2")
			id := testutil.SeedMessage(t, f.db, 10, "1", "2", domain.StatusSent)
			svc := f.service(Options{ReadOnJoin: tt.readOnJoin})
			ctx := context.Background()

			c := f.newClient("c1")
			svc.HandleConnect(ctx, c)
			if tt.userID != "" {
				if err := svc.HandleAuthenticate(ctx, c, tt.userID); err != nil {
					t.Fatalf("HandleAuthenticate() error = %v", err)
				}
			}
			if err := svc.HandleJoin(ctx, c, 10); err != nil {
				t.Fatalf("HandleJoin() error = %v", err)
			}

			if !hasRoom(f.hub, c, domain.ConversationRoom(10)) {
				t.Error("client not in conversation room")
			}
			if got := testutil.Conversation(t, f.db, 10).UnreadCount; got != tt.wantUnread {
				t.Errorf("unread_count = %d, want %d", got, tt.wantUnread)
			}
			if got := testutil.MessageStatus(t, f.db, id); got != tt.wantStatus {
				t.Errorf("status = %q, want %q", got, tt.wantStatus)
			}
		})
	}
}

// TestHandleJoinMissingConversation verifies a failed read-on-join does not
// undo the join.
func TestHandleJoinMissingConversation(t *testing.T) {
	f := newFixture(t)
	svc := f.service(Options{ReadOnJoin: true})
	ctx := context.Background()
	c := f.newClient("c1")
	svc.HandleConnect(ctx, c)
	_ = svc.HandleAuthenticate(ctx, c, "1")

	if err := svc.HandleJoin(ctx, c, 404); err != nil {
		t.Fatalf("HandleJoin() error = %v", err)
	}
	if !hasRoom(f.hub, c, domain.ConversationRoom(404)) {
		t.Error("join rolled back by read-on-join failure")
	}
}

// TestHandleLeave verifies leave removes exactly the conversation room and
// tolerates rooms never joined.
func TestHandleLeave(t *testing.T) {
	f := newFixture(t)
	svc := f.service(Options{})
	ctx := context.Background()
	c := f.newClient("c1")
	svc.HandleConnect(ctx, c)
	_ = svc.HandleAuthenticate(ctx, c, "10")
	_ = svc.HandleJoin(ctx, c, 10)
	_ = svc.HandleJoin(ctx, c, 11)

	if err := svc.HandleLeave(ctx, c, 10); err != nil {
		t.Fatalf("HandleLeave() error = %v", err)
	}
	if err := svc.HandleLeave(ctx, c, 12); err != nil {
		t.Fatalf("HandleLeave() on a room not joined error = %v", err)
	}
	if err := svc.HandleLeave(ctx, c, 0); !errors.Is(err, ErrValidation) {
		t.Errorf("HandleLeave(0) error = %v, want ErrValidation", err)
	}

	if hasRoom(f.hub, c, domain.ConversationRoom(10)) {
		t.Error("conversation:10 still joined")
	}
	for _, room := range []domain.Room{domain.GlobalRoom, domain.UserRoom("10"), domain.ConversationRoom(11)} {
		if !hasRoom(f.hub, c, room) {
			t.Errorf("%s lost on leave", room.Key())
		}
	}
}

// TestHandleSendMessageAck verifies both ack shapes.
func TestHandleSendMessageAck(t *testing.T) {
	f := newFixture(t)
	testutil.SeedConversation(t, f.db, 10, 0, "1", "2")
	svc := f.service(Options{})
	ctx := context.Background()
	c := f.newClient("c1")
	svc.HandleConnect(ctx, c)
	_ = svc.HandleAuthenticate(ctx, c, "1")

	ack := svc.HandleSendMessage(ctx, c, &domain.SendMessagePayload{
		ConversationID:   10,
		SenderID:         "1",
		ReceiverID:       "2",
		Content:          "hi",
		CorrelationToken: "tmp-9",
	})
	if !ack.Success || ack.Error != nil || ack.Message == nil || ack.Message.ID == 0 {
		t.Fatalf("ack = %+v", ack)
	}
	if ack.CorrelationToken != "tmp-9" {
		t.Errorf("correlation_token = %q", ack.CorrelationToken)
	}

	ack = svc.HandleSendMessage(ctx, c, &domain.SendMessagePayload{
		ConversationID:   10,
		SenderID:         "2",
		ReceiverID:       "1",
		Content:          "spoofed",
		CorrelationToken: "tmp-10",
	})
	if ack.Success || ack.Error == nil || ack.Error.Code != domain.ErrCodeBadRequest {
		t.Fatalf("spoofed ack = %+v", ack)
	}
	if ack.CorrelationToken != "tmp-10" {
		t.Errorf("failure correlation_token = %q", ack.CorrelationToken)
	}

	ack = svc.HandleSendMessage(ctx, c, &domain.SendMessagePayload{ConversationID: 99, SenderID: "1", ReceiverID: "2", Content: "hi"})
	if ack.Success || ack.Error == nil || ack.Error.Code != domain.ErrCodeNotFound {
		t.Errorf("missing conversation ack = %+v", ack)
	}

	if n := testutil.CountMessages(t, f.db, 10, ""); n != 1 {
		t.Errorf("messages = %d, want 1", n)
	}
}

// TestHandleMarkAsReadAnonymous verifies unauthenticated sockets are
// skipped.
func TestHandleMarkAsReadAnonymous(t *testing.T) {
	f := newFixture(t)
	testutil.SeedConversation(t, f.db, 10, 2, "1", "2")
	svc := f.service(Options{})
	ctx := context.Background()
	c := f.newClient("c1")
	svc.HandleConnect(ctx, c)

	if err := svc.HandleMarkAsRead(ctx, c, 10); err != nil {
		t.Fatalf("HandleMarkAsRead() error = %v", err)
	}
	if got := testutil.Conversation(t, f.db, 10).UnreadCount; got != 2 {
		t.Errorf("unread_count = %d, want 2", got)
	}
}

// TestHandleDisconnect verifies every room is released.
func TestHandleDisconnect(t *testing.T) {
	f := newFixture(t)
	svc := f.service(Options{})
	ctx := context.Background()
	c := f.newClient("c1")
	svc.HandleConnect(ctx, c)
	_ = svc.HandleAuthenticate(ctx, c, "1")
	_ = svc.HandleJoin(ctx, c, 10)

	svc.HandleDisconnect(ctx, c)

	if f.hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", f.hub.ClientCount())
	}
	for _, room := range []domain.Room{domain.GlobalRoom, domain.UserRoom("1"), domain.ConversationRoom(10)} {
		if n := len(f.hub.Members(room)); n != 0 {
			t.Errorf("%s members = %d, want 0", room.Key(), n)
		}
	}
	if _, ok := <-c.Send; ok {
		t.Error("send queue still open")
	}
	if err := svc.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
