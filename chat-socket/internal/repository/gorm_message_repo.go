package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/domain"
	"github.com/weiawesome/wes-chat-socket/pkg/log"
)

// GormMessageRepository implements MessageRepository using GORM.
type GormMessageRepository struct {
	db *gorm.DB
}

// Create inserts the message row and its attachments.
func (r *GormMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	l := log.Ctx(ctx)

	if msg.DateCreated.IsZero() {
		msg.DateCreated = time.Now().UTC().Truncate(time.Microsecond)
	}

	model := domain.MessageToModel(msg)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		l.Error().Err(err).Int64(log.FieldConversationID, msg.ConversationID).Msg("failed to create message in db")
		return persistenceError("create message", err)
	}

	msg.ID = model.ID
	msg.DateCreated = model.CreatedAt
	for i := range model.Attachments {
		msg.Attachments[i].ID = model.Attachments[i].ID
	}
	l.Debug().Int64(log.FieldMessageID, msg.ID).Msg("message created in db")
	return nil
}

// GetByID retrieves a message by ID with its attachments.
func (r *GormMessageRepository) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	var model domain.MessageModel
	err := r.db.WithContext(ctx).
		Preload("Attachments", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		l := log.Ctx(ctx)
		l.Error().Err(err).Int64(log.FieldMessageID, id).Msg("failed to get message by id")
		return nil, persistenceError("read message", err)
	}
	return model.ToDomain(), nil
}

// MarkRead transitions unread messages addressed to receiverID to read.
func (r *GormMessageRepository) MarkRead(ctx context.Context, conversationID int64, receiverID string) (int64, error) {
	unread := []string{string(domain.StatusSent), string(domain.StatusDelivered)}
	result := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("conversation_id = ? AND receiver_id = ? AND status IN ?", conversationID, receiverID, unread).
		Update("status", string(domain.StatusRead))
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Int64(log.FieldConversationID, conversationID).Msg("failed to mark messages read")
		return 0, persistenceError("mark read", result.Error)
	}
	return result.RowsAffected, nil
}

// AdvanceStatus updates the status when status ranks after the stored one.
func (r *GormMessageRepository) AdvanceStatus(ctx context.Context, id int64, status domain.MessageStatus) (bool, error) {
	l := log.Ctx(ctx)

	below := domain.StatusesBelow(status)
	values := make([]string, len(below))
	for i, s := range below {
		values[i] = string(s)
	}

	if len(values) > 0 {
		result := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
			Where("id = ? AND status IN ?", id, values).
			Update("status", string(status))
		if result.Error != nil {
			l.Error().Err(result.Error).Int64(log.FieldMessageID, id).Msg("failed to update message status")
			return false, persistenceError("update status", result.Error)
		}
		if result.RowsAffected > 0 {
			return true, nil
		}
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.MessageModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, persistenceError("check message", err)
	}
	if count == 0 {
		return false, ErrMessageNotFound
	}
	return false, nil
}
