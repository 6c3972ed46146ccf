package service

import (
	"context"
	"strconv"

	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/broadcast"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/domain"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/metrics"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/repository"
	"github.com/weiawesome/wes-chat-socket/pkg/log"
)

// StatusUpdater applies single-message status changes.
type StatusUpdater struct {
	store   repository.Store
	emitter broadcast.Emitter
}

func NewStatusUpdater(store repository.Store, emitter broadcast.Emitter) *StatusUpdater {
	return &StatusUpdater{store: store, emitter: emitter}
}

// UpdateStatus moves the message to status and emits message_status_updated
// to the global room. A status that does not move the message forward is
// ignored without an emit; it reports whether the update applied.
func (s *StatusUpdater) UpdateStatus(ctx context.Context, messageID int64, status domain.MessageStatus) (bool, error) {
	ctx = log.WithFields(ctx, log.FieldMessageID, strconv.FormatInt(messageID, 10))
	l := log.Ctx(ctx)

	if messageID <= 0 {
		return false, validationError("message_id is required")
	}
	if !status.Valid() {
		return false, validationError("unknown status %q", status)
	}

	applied, err := s.store.Messages().AdvanceStatus(ctx, messageID, status)
	if err != nil {
		metrics.StatusUpdates.WithLabelValues("failed").Inc()
		l.Error().Err(err).Str("status", string(status)).Msg("failed to update message status")
		return false, err
	}
	if !applied {
		metrics.StatusUpdates.WithLabelValues("ignored").Inc()
		l.Debug().Str("status", string(status)).Msg("status update does not advance message, ignored")
		return false, nil
	}

	metrics.StatusUpdates.WithLabelValues("applied").Inc()
	if err := s.emitter.Emit(ctx, domain.EventMessageStatusUpdated, &domain.MessageStatusPayload{
		MessageID: messageID,
		Status:    status,
	}, domain.GlobalRoom); err != nil {
		l.Warn().Err(err).Str(log.FieldEvent, domain.EventMessageStatusUpdated).Msg("emit failed")
	}
	return true, nil
}
