package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/domain"
)

var (
	// ErrPersistence wraps any failed storage call.
	ErrPersistence = errors.New("persistence failure")
	// ErrTransaction wraps a failed begin, commit or rollback.
	ErrTransaction = errors.New("transaction failure")

	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
)

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// ConversationState is the denormalized last-message and counter state
// written alongside every message insert.
type ConversationState struct {
	LastMessageID   int64
	LastMessageTime time.Time
	UnreadCount     int
}

// MessageRepository defines message persistence.
type MessageRepository interface {
	// Create inserts the message and its attachment rows, filling ID and
	// DateCreated.
	Create(ctx context.Context, msg *domain.Message) error
	// GetByID reads a message with its attachments.
	GetByID(ctx context.Context, id int64) (*domain.Message, error)
	// MarkRead flips every sent or delivered message addressed to
	// receiverID in the conversation to read and returns how many rows
	// changed.
	MarkRead(ctx context.Context, conversationID int64, receiverID string) (int64, error)
	// AdvanceStatus sets status only if it moves the message forward.
	// It reports whether a row changed.
	AdvanceStatus(ctx context.Context, id int64, status domain.MessageStatus) (bool, error)
}

// ConversationRepository defines conversation state persistence.
type ConversationRepository interface {
	// GetForUpdate reads the conversation row, locking it until the
	// surrounding transaction ends where the database supports it.
	GetForUpdate(ctx context.Context, id int64) (*domain.Conversation, error)
	UpdateState(ctx context.Context, id int64, state ConversationState) error
	// ResetUnread zeroes the counter without checking that the row exists.
	ResetUnread(ctx context.Context, id int64) error
	// GetSnapshot reads the conversation with participants, their profiles
	// and the last message.
	GetSnapshot(ctx context.Context, id int64) (*domain.Conversation, error)
}

// Store groups the repositories behind one transaction boundary.
type Store interface {
	Messages() MessageRepository
	Conversations() ConversationRepository
	// Transaction runs fn against a Store bound to a single transaction.
	// fn returning an error rolls back; otherwise the transaction commits.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}
