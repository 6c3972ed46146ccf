package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/attachment"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/broadcast"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/domain"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/kafka"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/metrics"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/repository"
	"github.com/weiawesome/wes-chat-socket/pkg/log"
)

// SendMessageInput is a send_message request after decoding.
type SendMessageInput struct {
	ConversationID   int64
	SenderID         string
	ReceiverID       string
	Content          string
	Type             domain.MessageType
	Attachments      []string // file ids
	CorrelationToken string
	// BoundUserID is the user bound to the sending connection, if any.
	BoundUserID string
}

func (in *SendMessageInput) validate() error {
	if in.ConversationID <= 0 {
		return validationError("conversation_id is required")
	}
	if in.SenderID == "" {
		return validationError("sender_id is required")
	}
	if in.ReceiverID == "" {
		return validationError("receiver_id is required")
	}
	if in.BoundUserID != "" && in.BoundUserID != in.SenderID {
		return validationError("sender_id does not match the authenticated user")
	}
	for i, fileID := range in.Attachments {
		if strings.TrimSpace(fileID) == "" {
			return validationError("attachments[%d] is empty", i)
		}
	}
	if len(in.Attachments) == 0 {
		if strings.TrimSpace(in.Content) == "" {
			return validationError("content is required")
		}
		if in.Type != "" && !in.Type.Valid() {
			return validationError("unknown message type %q", in.Type)
		}
	}
	return nil
}

// Delivery is the committed result of a send.
type Delivery struct {
	Message          *domain.Message
	Conversation     *domain.Conversation
	CorrelationToken string
}

// MessageIngest persists messages together with the conversation state they
// imply and fans the result out once committed.
type MessageIngest struct {
	store    repository.Store
	emitter  broadcast.Emitter
	locks    *keyedLocker
	resolver *attachment.Resolver
	producer kafka.MessageProducer
}

func NewMessageIngest(
	store repository.Store,
	emitter broadcast.Emitter,
	locks *keyedLocker,
	resolver *attachment.Resolver,
	producer kafka.MessageProducer,
) *MessageIngest {
	if locks == nil {
		locks = newKeyedLocker()
	}
	if producer == nil {
		producer = kafka.NoopProducer{}
	}
	return &MessageIngest{
		store:    store,
		emitter:  emitter,
		locks:    locks,
		resolver: resolver,
		producer: producer,
	}
}

// Send validates in, then in one transaction creates the message, bumps the
// unread counter when receiver and sender differ, points last_message at the
// new row and reads back the conversation snapshot. Nothing is emitted
// unless the transaction commits.
func (m *MessageIngest) Send(ctx context.Context, in SendMessageInput) (*Delivery, error) {
	start := time.Now()
	ctx = log.WithFields(ctx, log.FieldConversationID, strconv.FormatInt(in.ConversationID, 10))
	l := log.Ctx(ctx)

	if err := in.validate(); err != nil {
		m.recordFailure(err)
		l.Debug().Err(err).Msg("send_message rejected")
		return nil, err
	}

	msg, conv, err := m.persist(ctx, in)
	if err != nil {
		m.recordFailure(err)
		l.Error().Err(err).Str(log.FieldUserID, in.SenderID).Msg("failed to ingest message")
		return nil, err
	}

	metrics.IngestDuration.Observe(time.Since(start).Seconds())
	metrics.MessagesIngested.WithLabelValues(string(msg.Type)).Inc()
	l.Info().Int64(log.FieldMessageID, msg.ID).Int("unread_count", conv.UnreadCount).Msg("message ingested")

	m.resolver.ResolveMessage(ctx, msg)
	m.resolver.ResolveConversation(ctx, conv)

	m.emit(ctx, domain.EventNewMessage, &domain.NewMessagePayload{
		Message:          msg,
		CorrelationToken: in.CorrelationToken,
	}, domain.ConversationRoom(in.ConversationID))

	for _, room := range conversationUpdateRooms(in.SenderID, in.ReceiverID, in.ConversationID) {
		m.emit(ctx, domain.EventConversationUpdated, conv, room)
	}

	if err := m.producer.ProduceMessage(ctx, msg); err != nil {
		l.Warn().Err(err).Int64(log.FieldMessageID, msg.ID).Msg("failed to publish persisted message")
	}

	return &Delivery{Message: msg, Conversation: conv, CorrelationToken: in.CorrelationToken}, nil
}

// persist runs the send transaction while holding the conversation lock.
func (m *MessageIngest) persist(ctx context.Context, in SendMessageInput) (msg *domain.Message, conv *domain.Conversation, err error) {
	unlock := m.locks.Lock(in.ConversationID)
	defer unlock()

	err = m.store.Transaction(ctx, func(tx repository.Store) error {
		created := &domain.Message{
			ConversationID: in.ConversationID,
			SenderID:       in.SenderID,
			ReceiverID:     in.ReceiverID,
			Content:        in.Content,
			Type:           domain.EffectiveType(in.Type, len(in.Attachments)),
			Status:         domain.StatusSent,
			Attachments:    make([]domain.Attachment, len(in.Attachments)),
		}
		for i, fileID := range in.Attachments {
			created.Attachments[i] = domain.Attachment{FileID: fileID}
		}
		if err := tx.Messages().Create(ctx, created); err != nil {
			return err
		}

		persisted, err := tx.Messages().GetByID(ctx, created.ID)
		if err != nil {
			return err
		}

		current, err := tx.Conversations().GetForUpdate(ctx, in.ConversationID)
		if err != nil {
			return err
		}

		nextUnread := current.UnreadCount
		if in.ReceiverID != in.SenderID {
			nextUnread++
		}

		if err := tx.Conversations().UpdateState(ctx, in.ConversationID, repository.ConversationState{
			LastMessageID:   persisted.ID,
			LastMessageTime: persisted.DateCreated,
			UnreadCount:     nextUnread,
		}); err != nil {
			return err
		}

		snapshot, err := tx.Conversations().GetSnapshot(ctx, in.ConversationID)
		if err != nil {
			return err
		}

		msg, conv = persisted, snapshot
		return nil
	})
	return msg, conv, err
}

func (m *MessageIngest) emit(ctx context.Context, event string, payload interface{}, room domain.Room) {
	if err := m.emitter.Emit(ctx, event, payload, room); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldEvent, event).Str(log.FieldRoom, room.Key()).Msg("emit failed")
	}
}

func (m *MessageIngest) recordFailure(err error) {
	metrics.IngestFailures.WithLabelValues(AckErrorFor(err).Code).Inc()
}

// conversationUpdateRooms lists sender, receiver and conversation rooms,
// without repeating the user room when a user messages themselves.
func conversationUpdateRooms(senderID, receiverID string, conversationID int64) []domain.Room {
	rooms := []domain.Room{domain.UserRoom(senderID)}
	if receiverID != senderID {
		rooms = append(rooms, domain.UserRoom(receiverID))
	}
	return append(rooms, domain.ConversationRoom(conversationID))
}
