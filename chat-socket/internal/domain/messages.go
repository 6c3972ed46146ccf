package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Client -> server events.
const (
	EventAuthenticate      = "authenticate"
	EventJoin              = "join"
	EventLeaveConversation = "leave_conversation"
	EventSendMessage       = "send_message"
	EventMarkAsRead        = "mark_as_read"
	EventUpdateStatus      = "update_status"
	EventPing              = "ping"
)

// Server -> client events.
const (
	EventNewMessage           = "new_message"
	EventConversationUpdated  = "conversation_updated"
	EventMessagesRead         = "messages_read"
	EventMessageStatusUpdated = "message_status_updated"
	EventAck                  = "ack"
	EventError                = "error"
	EventPong                 = "pong"
)

// Error codes
const (
	ErrCodeBadRequest        = "BAD_REQUEST"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodePersistenceFailed = "PERSISTENCE_FAILED"
	ErrCodeTransactionFailed = "TRANSACTION_FAILED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// Envelope frames every websocket message in both directions.
type Envelope struct {
	Type  string          `json:"type"`
	AckID string          `json:"ack_id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope encodes payload into an envelope frame.
func NewEnvelope(eventType, ackID string, payload interface{}) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = encoded
	}
	return json.Marshal(&Envelope{Type: eventType, AckID: ackID, Data: data})
}

// UserID accepts both JSON strings and numbers; user ids are opaque strings
// internally.
type UserID string

func (u *UserID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*u = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*u = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("user id must be a string or number: %w", err)
	}
	*u = UserID(n.String())
	return nil
}

// ID accepts both JSON numbers and numeric strings.
type ID int64

func (i *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*i = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(s)
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %q", string(b))
	}
	*i = ID(n)
	return nil
}

// Client -> Server payloads

// AuthenticatePayload accepts {"user_id": ...} or a bare user id.
type AuthenticatePayload struct {
	UserID UserID `json:"user_id"`
}

func (p *AuthenticatePayload) UnmarshalJSON(b []byte) error {
	if isObject(b) {
		type plain AuthenticatePayload
		return json.Unmarshal(b, (*plain)(p))
	}
	return json.Unmarshal(b, &p.UserID)
}

// ConversationPayload accepts {"conversation_id": ...} or a bare id.
type ConversationPayload struct {
	ConversationID ID `json:"conversation_id"`
}

func (p *ConversationPayload) UnmarshalJSON(b []byte) error {
	if isObject(b) {
		type plain ConversationPayload
		return json.Unmarshal(b, (*plain)(p))
	}
	return json.Unmarshal(b, &p.ConversationID)
}

func isObject(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '{'
}

type SendMessagePayload struct {
	ConversationID   ID          `json:"conversation_id"`
	SenderID         UserID      `json:"sender_id"`
	ReceiverID       UserID      `json:"receiver_id"`
	Content          string      `json:"content"`
	Type             MessageType `json:"type,omitempty"`
	Attachments      []string    `json:"attachments,omitempty"`
	CorrelationToken string      `json:"correlation_token,omitempty"`
}

type UpdateStatusPayload struct {
	MessageID ID            `json:"message_id"`
	Status    MessageStatus `json:"status"`
}

// Server -> Client payloads

type NewMessagePayload struct {
	Message          *Message `json:"message"`
	CorrelationToken string   `json:"correlation_token,omitempty"`
}

type MessagesReadPayload struct {
	ConversationID int64  `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

type MessageStatusPayload struct {
	MessageID int64         `json:"message_id"`
	Status    MessageStatus `json:"status"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type AckPayload struct {
	Success          bool       `json:"success"`
	Message          *Message   `json:"message,omitempty"`
	CorrelationToken string     `json:"correlation_token,omitempty"`
	Error            *ErrorInfo `json:"error,omitempty"`
}

func NewErrorPayload(code, message string) *ErrorInfo {
	return &ErrorInfo{Code: code, Message: message}
}
