package domain

import (
	"time"
)

// UserModel is the read-only profile row owned by the auth service.
type UserModel struct {
	ID          string `gorm:"type:varchar(36);primaryKey"`
	Username    string `gorm:"type:varchar(100)"`
	DisplayName string `gorm:"type:varchar(200)"`
	Avatar      string `gorm:"type:varchar(64)"` // file id
}

func (UserModel) TableName() string {
	return "users"
}

func (m *UserModel) ToDomain() *UserProfile {
	return &UserProfile{
		ID:          m.ID,
		Username:    m.Username,
		DisplayName: m.DisplayName,
		Avatar:      m.Avatar,
	}
}

// ConversationModel is the GORM model for conversations table.
type ConversationModel struct {
	ID              int64              `gorm:"primaryKey;autoIncrement"`
	LastMessageID   *int64             `gorm:"index"`
	LastMessage     *MessageModel      `gorm:"foreignKey:LastMessageID"`
	LastMessageTime *time.Time
	UnreadCount     int                `gorm:"not null;default:0"`
	Participants    []ParticipantModel `gorm:"foreignKey:ConversationID"`
	CreatedAt       time.Time          `gorm:"column:date_created;autoCreateTime"`
	UpdatedAt       time.Time          `gorm:"column:date_updated;autoUpdateTime"`
}

func (ConversationModel) TableName() string {
	return "conversations"
}

func (m *ConversationModel) ToDomain() *Conversation {
	c := &Conversation{
		ID:              m.ID,
		Participants:    make([]Participant, len(m.Participants)),
		LastMessageTime: m.LastMessageTime,
		UnreadCount:     m.UnreadCount,
		DateCreated:     m.CreatedAt,
		DateUpdated:     m.UpdatedAt,
	}
	for i := range m.Participants {
		c.Participants[i] = *m.Participants[i].ToDomain()
	}
	if m.LastMessage != nil {
		c.LastMessage = m.LastMessage.ToDomain()
	}
	return c
}

// ParticipantModel links a user to a conversation.
type ParticipantModel struct {
	ID             int64      `gorm:"primaryKey;autoIncrement"`
	ConversationID int64      `gorm:"index;not null"`
	UserID         string     `gorm:"type:varchar(36);index;not null"`
	User           *UserModel `gorm:"foreignKey:UserID"`
}

func (ParticipantModel) TableName() string {
	return "conversation_participants"
}

func (m *ParticipantModel) ToDomain() *Participant {
	p := &Participant{
		ID:     m.ID,
		UserID: m.UserID,
	}
	if m.User != nil {
		p.User = m.User.ToDomain()
	}
	return p
}

// MessageModel is the GORM model for messages table.
type MessageModel struct {
	ID             int64             `gorm:"primaryKey;autoIncrement"`
	ConversationID int64             `gorm:"index;not null"`
	SenderID       string            `gorm:"type:varchar(36);not null"`
	ReceiverID     string            `gorm:"type:varchar(36);index;not null"`
	Content        string            `gorm:"type:text"`
	Type           string            `gorm:"type:varchar(16);not null"`
	Status         string            `gorm:"type:varchar(16);index;not null"`
	Attachments    []AttachmentModel `gorm:"foreignKey:MessageID"`
	CreatedAt      time.Time         `gorm:"column:date_created;autoCreateTime"`
}

func (MessageModel) TableName() string {
	return "messages"
}

func (m *MessageModel) ToDomain() *Message {
	msg := &Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Content:        m.Content,
		Type:           MessageType(m.Type),
		Status:         MessageStatus(m.Status),
		Attachments:    make([]Attachment, len(m.Attachments)),
		DateCreated:    m.CreatedAt,
	}
	for i, a := range m.Attachments {
		msg.Attachments[i] = Attachment{ID: a.ID, FileID: a.FileID}
	}
	return msg
}

// MessageToModel converts a domain Message into a MessageModel, including
// its attachment rows.
func MessageToModel(msg *Message) *MessageModel {
	m := &MessageModel{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		ReceiverID:     msg.ReceiverID,
		Content:        msg.Content,
		Type:           string(msg.Type),
		Status:         string(msg.Status),
		CreatedAt:      msg.DateCreated,
	}
	for _, a := range msg.Attachments {
		m.Attachments = append(m.Attachments, AttachmentModel{FileID: a.FileID})
	}
	return m
}

// AttachmentModel references a stored file from a message.
type AttachmentModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	MessageID int64  `gorm:"index;not null"`
	FileID    string `gorm:"type:varchar(64);not null"`
}

func (AttachmentModel) TableName() string {
	return "message_attachments"
}

// Models lists every table for auto-migration.
func Models() []interface{} {
	return []interface{}{
		&UserModel{},
		&ConversationModel{},
		&ParticipantModel{},
		&MessageModel{},
		&AttachmentModel{},
	}
}
