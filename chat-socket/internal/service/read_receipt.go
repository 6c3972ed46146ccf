package service

import (
	"context"
	"strconv"

	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/attachment"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/broadcast"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/domain"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/metrics"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/repository"
	"github.com/weiawesome/wes-chat-socket/pkg/log"
)

// ReadReceiptTracker marks a conversation read for one user.
type ReadReceiptTracker struct {
	store    repository.Store
	emitter  broadcast.Emitter
	locks    *keyedLocker
	resolver *attachment.Resolver
}

func NewReadReceiptTracker(
	store repository.Store,
	emitter broadcast.Emitter,
	locks *keyedLocker,
	resolver *attachment.Resolver,
) *ReadReceiptTracker {
	if locks == nil {
		locks = newKeyedLocker()
	}
	return &ReadReceiptTracker{
		store:    store,
		emitter:  emitter,
		locks:    locks,
		resolver: resolver,
	}
}

// MarkRead flips every sent or delivered message addressed to userID in the
// conversation to read and resets unread_count, in one transaction. After commit it emits
// conversation_updated to the user and messages_read to the conversation.
// It returns the number of messages transitioned. Errors are logged here;
// callers treat the call as best-effort.
func (t *ReadReceiptTracker) MarkRead(ctx context.Context, conversationID int64, userID string) (int64, error) {
	ctx = log.WithFields(ctx,
		log.FieldConversationID, strconv.FormatInt(conversationID, 10),
		log.FieldUserID, userID,
	)
	l := log.Ctx(ctx)

	if conversationID <= 0 {
		return 0, validationError("conversation_id is required")
	}
	if userID == "" {
		return 0, validationError("user is not authenticated")
	}

	transitioned, err := t.commit(ctx, conversationID, userID)
	if err != nil {
		metrics.ReadReceipts.WithLabelValues("failed").Inc()
		l.Error().Err(err).Msg("failed to mark conversation read")
		return 0, err
	}

	metrics.ReadReceipts.WithLabelValues("committed").Inc()
	metrics.MessagesMarkedRead.Add(float64(transitioned))
	l.Debug().Int64("transitioned", transitioned).Msg("conversation marked read")

	conv, err := t.store.Conversations().GetSnapshot(ctx, conversationID)
	if err != nil {
		l.Error().Err(err).Msg("failed to read conversation after mark read")
		return transitioned, err
	}
	t.resolver.ResolveConversation(ctx, conv)

	if err := t.emitter.Emit(ctx, domain.EventConversationUpdated, conv, domain.UserRoom(userID)); err != nil {
		l.Warn().Err(err).Str(log.FieldEvent, domain.EventConversationUpdated).Msg("emit failed")
	}
	if err := t.emitter.Emit(ctx, domain.EventMessagesRead, &domain.MessagesReadPayload{
		ConversationID: conversationID,
		UserID:         userID,
	}, domain.ConversationRoom(conversationID)); err != nil {
		l.Warn().Err(err).Str(log.FieldEvent, domain.EventMessagesRead).Msg("emit failed")
	}

	return transitioned, nil
}

// commit locks the conversation row, transitions the messages and resets
// the counter in one transaction while holding the conversation lock.
func (t *ReadReceiptTracker) commit(ctx context.Context, conversationID int64, userID string) (int64, error) {
	unlock := t.locks.Lock(conversationID)
	defer unlock()

	var transitioned int64
	err := t.store.Transaction(ctx, func(tx repository.Store) error {
		if _, err := tx.Conversations().GetForUpdate(ctx, conversationID); err != nil {
			return err
		}
		n, err := tx.Messages().MarkRead(ctx, conversationID, userID)
		if err != nil {
			return err
		}
		if err := tx.Conversations().ResetUnread(ctx, conversationID); err != nil {
			return err
		}
		transitioned = n
		return nil
	})
	return transitioned, err
}
