package audit

import (
	"context"

	"github.com/weiawesome/wes-chat-socket/pkg/log"
)

// Audit actions for chat-socket.
const (
	ActionConnect      = "chat.connect"
	ActionAuthenticate = "chat.authenticate"
	ActionJoin         = "chat.join_conversation"
	ActionLeave        = "chat.leave_conversation"
	ActionSendMessage  = "chat.send_message"
	ActionSendFailed   = "chat.send_message_failed"
	ActionMarkRead     = "chat.mark_as_read"
	ActionUpdateStatus = "chat.update_status"
	ActionDisconnect   = "chat.disconnect"
)

// Field constants for audit entries.
const (
	FieldAction   = "action"
	FieldTargetID = "target_id"
	FieldDetail   = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action string, userID string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Msg(msg)
}

// LogTarget emits an audit log naming the affected conversation or message.
func LogTarget(ctx context.Context, action, userID, targetID, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldTargetID, targetID).
		Msg(msg)
}

// LogWithDetail emits an audit log with extra detail field.
func LogWithDetail(ctx context.Context, action string, userID string, detail string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldDetail, detail).
		Msg(msg)
}
