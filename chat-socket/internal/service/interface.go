package service

import (
	"context"

	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/domain"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/hub"
)

// ChatService handles client socket events.
type ChatService interface {
	HandleConnect(ctx context.Context, client *hub.Client)
	HandleAuthenticate(ctx context.Context, client *hub.Client, userID string) error
	HandleJoin(ctx context.Context, client *hub.Client, conversationID int64) error
	HandleLeave(ctx context.Context, client *hub.Client, conversationID int64) error
	HandleSendMessage(ctx context.Context, client *hub.Client, payload *domain.SendMessagePayload) *domain.AckPayload
	HandleMarkAsRead(ctx context.Context, client *hub.Client, conversationID int64) error
	HandleUpdateStatus(ctx context.Context, client *hub.Client, messageID int64, status domain.MessageStatus) error
	HandleDisconnect(ctx context.Context, client *hub.Client)
	Start(ctx context.Context) error
	Stop() error
}
