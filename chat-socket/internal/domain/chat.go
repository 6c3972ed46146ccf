package domain

import "time"

// MessageType is the content kind of a message.
type MessageType string

const (
	MessageTypeText MessageType = "text"
	MessageTypeFile MessageType = "file"
)

// EffectiveType derives the stored type: any attachment forces "file",
// otherwise the hint is used, defaulting to "text".
func EffectiveType(hint MessageType, attachmentCount int) MessageType {
	if attachmentCount > 0 {
		return MessageTypeFile
	}
	if hint == "" {
		return MessageTypeText
	}
	return hint
}

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	return t == MessageTypeText || t == MessageTypeFile
}

// MessageStatus is the delivery state of a message. It only moves forward.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Rank orders statuses; unknown statuses rank 0.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

func (s MessageStatus) Valid() bool {
	return s.Rank() > 0
}

// Advances reports whether moving from s to next is a forward transition.
func (s MessageStatus) Advances(next MessageStatus) bool {
	return next.Rank() > s.Rank()
}

// StatusesBelow returns every known status strictly before s.
func StatusesBelow(s MessageStatus) []MessageStatus {
	var out []MessageStatus
	for _, st := range []MessageStatus{StatusSent, StatusDelivered, StatusRead} {
		if st.Rank() < s.Rank() {
			out = append(out, st)
		}
	}
	return out
}

type Attachment struct {
	ID     int64  `json:"id"`
	FileID string `json:"file_id"`
	URL    string `json:"url,omitempty"`
}

type Message struct {
	ID             int64         `json:"id"`
	ConversationID int64         `json:"conversation_id"`
	SenderID       string        `json:"sender_id"`
	ReceiverID     string        `json:"receiver_id"`
	Content        string        `json:"content"`
	Type           MessageType   `json:"type"`
	Status         MessageStatus `json:"status"`
	Attachments    []Attachment  `json:"attachments"`
	DateCreated    time.Time     `json:"date_created"`
}

type UserProfile struct {
	ID          string `json:"id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

type Participant struct {
	ID     int64        `json:"id"`
	UserID string       `json:"user_id"`
	User   *UserProfile `json:"user,omitempty"`
}

// Conversation is the denormalized snapshot sent with conversation_updated.
type Conversation struct {
	ID              int64         `json:"id"`
	Participants    []Participant `json:"participants"`
	LastMessage     *Message      `json:"last_message"`
	LastMessageTime *time.Time    `json:"last_message_time"`
	UnreadCount     int           `json:"unread_count"`
	DateCreated     time.Time     `json:"date_created"`
	DateUpdated     time.Time     `json:"date_updated"`
}
