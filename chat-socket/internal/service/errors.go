package service

import (
	"errors"
	"fmt"

	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/domain"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/repository"
)

// ErrValidation marks malformed client input. Nothing is persisted.
var ErrValidation = errors.New("validation failed")

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// AckErrorFor maps a handler error to the error carried in an ack.
// Only validation messages are passed through to the client.
func AckErrorFor(err error) *domain.ErrorInfo {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrValidation):
		return domain.NewErrorPayload(domain.ErrCodeBadRequest, err.Error())
	case errors.Is(err, repository.ErrConversationNotFound):
		return domain.NewErrorPayload(domain.ErrCodeNotFound, "conversation not found")
	case errors.Is(err, repository.ErrMessageNotFound):
		return domain.NewErrorPayload(domain.ErrCodeNotFound, "message not found")
	case errors.Is(err, repository.ErrTransaction):
		return domain.NewErrorPayload(domain.ErrCodeTransactionFailed, "failed to commit message")
	case errors.Is(err, repository.ErrPersistence):
		return domain.NewErrorPayload(domain.ErrCodePersistenceFailed, "failed to persist message")
	default:
		return domain.NewErrorPayload(domain.ErrCodeInternalError, "internal error")
	}
}
