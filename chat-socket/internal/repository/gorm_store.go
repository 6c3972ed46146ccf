package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-chat-socket/pkg/log"
)

// GormStore implements Store using GORM.
type GormStore struct {
	db   *gorm.DB
	inTx bool
}

// NewGormStore creates a new GORM-based store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Messages() MessageRepository {
	return &GormMessageRepository{db: s.db}
}

func (s *GormStore) Conversations() ConversationRepository {
	return &GormConversationRepository{db: s.db}
}

// Transaction begins a transaction, hands fn a store bound to it and commits
// or rolls back. Nested calls join the outer transaction.
func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}

	l := log.Ctx(ctx)

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("%w: begin: %w", ErrTransaction, tx.Error)
	}

	committed := false
	defer func() {
		if !committed {
			if p := recover(); p != nil {
				tx.Rollback()
				panic(p)
			}
		}
	}()

	if err := fn(&GormStore{db: tx, inTx: true}); err != nil {
		if rbErr := tx.Rollback().Error; rbErr != nil {
			l.Error().Err(rbErr).AnErr("cause", err).Msg("failed to roll back transaction")
			return fmt.Errorf("%w: rollback: %w", ErrTransaction, rbErr)
		}
		l.Debug().Err(err).Msg("transaction rolled back")
		return err
	}

	if err := tx.Commit().Error; err != nil {
		l.Error().Err(err).Msg("failed to commit transaction")
		return fmt.Errorf("%w: commit: %w", ErrTransaction, err)
	}
	committed = true

	return nil
}
