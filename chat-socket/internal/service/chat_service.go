package service

import (
	"context"
	"strconv"

	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/attachment"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/audit"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/broadcast"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/domain"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/hub"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/kafka"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/repository"
	"github.com/weiawesome/wes-chat-socket/pkg/log"
)

// Options tunes coordinator policy.
type Options struct {
	// ReadOnJoin marks the conversation read for the bound user on join.
	ReadOnJoin bool
}

type chatService struct {
	hub      *hub.Hub
	router   *broadcast.Router
	producer kafka.MessageProducer
	ingest   *MessageIngest
	receipts *ReadReceiptTracker
	statuses *StatusUpdater
	opts     Options
}

func NewChatService(
	h *hub.Hub,
	router *broadcast.Router,
	store repository.Store,
	resolver *attachment.Resolver,
	producer kafka.MessageProducer,
	opts Options,
) ChatService {
	if producer == nil {
		producer = kafka.NoopProducer{}
	}
	locks := newKeyedLocker()
	return &chatService{
		hub:      h,
		router:   router,
		producer: producer,
		ingest:   NewMessageIngest(store, router, locks, resolver, producer),
		receipts: NewReadReceiptTracker(store, router, locks, resolver),
		statuses: NewStatusUpdater(store, router),
		opts:     opts,
	}
}

func (s *chatService) HandleConnect(ctx context.Context, c *hub.Client) {
	s.hub.Register(c)
	audit.Log(ctx, audit.ActionConnect, "", "socket connected")
}

func (s *chatService) HandleAuthenticate(ctx context.Context, c *hub.Client, userID string) error {
	if userID == "" {
		return validationError("user_id is required")
	}

	prev := s.hub.Bind(c, userID)
	if prev != "" && prev != userID {
		audit.LogWithDetail(ctx, audit.ActionAuthenticate, userID, "rebound from "+prev, "socket re-authenticated")
		return nil
	}
	audit.Log(ctx, audit.ActionAuthenticate, userID, "socket authenticated")
	return nil
}

func (s *chatService) HandleJoin(ctx context.Context, c *hub.Client, conversationID int64) error {
	if conversationID <= 0 {
		return validationError("conversation_id is required")
	}

	s.hub.Join(c, domain.ConversationRoom(conversationID))
	audit.LogTarget(ctx, audit.ActionJoin, c.UserID(), strconv.FormatInt(conversationID, 10), "joined conversation")

	if !s.opts.ReadOnJoin {
		return nil
	}
	userID := c.UserID()
	if userID == "" {
		l := log.Ctx(ctx)
		l.Debug().Int64(log.FieldConversationID, conversationID).Msg("read on join skipped, socket not authenticated")
		return nil
	}
	// Best-effort: MarkRead logs its own failures and the join stands.
	_, _ = s.receipts.MarkRead(ctx, conversationID, userID)
	return nil
}

func (s *chatService) HandleLeave(ctx context.Context, c *hub.Client, conversationID int64) error {
	if conversationID <= 0 {
		return validationError("conversation_id is required")
	}

	if !s.hub.Leave(c, domain.ConversationRoom(conversationID)) {
		l := log.Ctx(ctx)
		l.Debug().Int64(log.FieldConversationID, conversationID).Msg("leave for a conversation not joined")
		return nil
	}
	audit.LogTarget(ctx, audit.ActionLeave, c.UserID(), strconv.FormatInt(conversationID, 10), "left conversation")
	return nil
}

func (s *chatService) HandleSendMessage(ctx context.Context, c *hub.Client, p *domain.SendMessagePayload) *domain.AckPayload {
	delivery, err := s.ingest.Send(ctx, SendMessageInput{
		ConversationID:   int64(p.ConversationID),
		SenderID:         string(p.SenderID),
		ReceiverID:       string(p.ReceiverID),
		Content:          p.Content,
		Type:             p.Type,
		Attachments:      p.Attachments,
		CorrelationToken: p.CorrelationToken,
		BoundUserID:      c.UserID(),
	})
	if err != nil {
		audit.LogWithDetail(ctx, audit.ActionSendFailed, string(p.SenderID), err.Error(), "send_message failed")
		return &domain.AckPayload{
			Success:          false,
			CorrelationToken: p.CorrelationToken,
			Error:            AckErrorFor(err),
		}
	}

	audit.LogTarget(ctx, audit.ActionSendMessage, string(p.SenderID), strconv.FormatInt(delivery.Message.ID, 10), "message sent")
	return &domain.AckPayload{
		Success:          true,
		Message:          delivery.Message,
		CorrelationToken: delivery.CorrelationToken,
	}
}

func (s *chatService) HandleMarkAsRead(ctx context.Context, c *hub.Client, conversationID int64) error {
	userID := c.UserID()
	if userID == "" {
		l := log.Ctx(ctx)
		l.Debug().Int64(log.FieldConversationID, conversationID).Msg("mark_as_read skipped, socket not authenticated")
		return nil
	}

	n, err := s.receipts.MarkRead(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	audit.LogWithDetail(ctx, audit.ActionMarkRead, userID, strconv.FormatInt(n, 10)+" messages", "conversation marked read")
	return nil
}

func (s *chatService) HandleUpdateStatus(ctx context.Context, c *hub.Client, messageID int64, status domain.MessageStatus) error {
	applied, err := s.statuses.UpdateStatus(ctx, messageID, status)
	if err != nil {
		return err
	}
	if applied {
		audit.LogTarget(ctx, audit.ActionUpdateStatus, c.UserID(), strconv.FormatInt(messageID, 10), "message status set to "+string(status))
	}
	return nil
}

func (s *chatService) HandleDisconnect(ctx context.Context, c *hub.Client) {
	s.hub.Unregister(c)
	audit.Log(ctx, audit.ActionDisconnect, c.UserID(), "socket disconnected")
}

func (s *chatService) Start(ctx context.Context) error {
	if err := s.router.Start(ctx); err != nil {
		return err
	}
	l := log.L()
	l.Info().Bool("read_on_join", s.opts.ReadOnJoin).Msg("chat service started")
	return nil
}

func (s *chatService) Stop() error {
	l := log.L()
	if err := s.producer.Close(); err != nil {
		l.Warn().Err(err).Msg("failed to close kafka producer")
	}
	if err := s.router.Close(); err != nil {
		l.Warn().Err(err).Msg("failed to close broadcast backplane")
	}
	return nil
}
