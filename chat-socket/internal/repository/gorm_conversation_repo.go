package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/domain"
	"github.com/weiawesome/wes-chat-socket/pkg/log"
)

// GormConversationRepository implements ConversationRepository using GORM.
type GormConversationRepository struct {
	db *gorm.DB
}

// GetForUpdate reads the bare conversation row with SELECT ... FOR UPDATE.
// The sqlite dialect drops the locking clause.
func (r *GormConversationRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Conversation, error) {
	var model domain.ConversationModel
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&model, "id = ?", id).Error
	if err != nil {
		return nil, r.readError(ctx, id, err)
	}
	return model.ToDomain(), nil
}

// UpdateState writes last message and unread counter.
func (r *GormConversationRepository) UpdateState(ctx context.Context, id int64, state ConversationState) error {
	return r.update(ctx, id, map[string]interface{}{
		"last_message_id":   state.LastMessageID,
		"last_message_time": state.LastMessageTime,
		"unread_count":      state.UnreadCount,
	})
}

// ResetUnread zeroes the counter. Resetting a counter that is already zero
// is not an error, and neither is a missing row; callers that need the row
// read it with GetForUpdate first.
func (r *GormConversationRepository) ResetUnread(ctx context.Context, id int64) error {
	err := r.db.WithContext(ctx).Model(&domain.ConversationModel{}).
		Where("id = ?", id).
		Update("unread_count", 0).Error
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Int64(log.FieldConversationID, id).Msg("failed to reset unread count")
		return persistenceError("reset unread", err)
	}
	return nil
}

// GetSnapshot reads the denormalized conversation.
func (r *GormConversationRepository) GetSnapshot(ctx context.Context, id int64) (*domain.Conversation, error) {
	var model domain.ConversationModel
	err := r.db.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Participants.User").
		Preload("LastMessage").
		Preload("LastMessage.Attachments", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&model, "id = ?", id).Error
	if err != nil {
		return nil, r.readError(ctx, id, err)
	}
	return model.ToDomain(), nil
}

func (r *GormConversationRepository) update(ctx context.Context, id int64, fields map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&domain.ConversationModel{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Int64(log.FieldConversationID, id).Msg("failed to update conversation")
		return persistenceError("update conversation", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (r *GormConversationRepository) readError(ctx context.Context, id int64, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrConversationNotFound
	}
	l := log.Ctx(ctx)
	l.Error().Err(err).Int64(log.FieldConversationID, id).Msg("failed to read conversation")
	return persistenceError("read conversation", err)
}
