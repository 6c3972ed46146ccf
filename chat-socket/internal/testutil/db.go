// Package testutil provides database fixtures for package tests.
package testutil

import (
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/domain"
	"github.com/weiawesome/wes-chat-socket/pkg/database"
)

// NewDB opens a migrated in-memory SQLite database private to t. A single
// connection keeps the in-memory database alive and serializes access.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	db, err := database.New(&database.Config{
		Driver:       "sqlite",
		FilePath:     "file:" + name + "?mode=memory&cache=shared",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     "silent",
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.AutoMigrate(db, domain.Models()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() {
		database.Close(db)
	})
	return db
}

// SeedUsers inserts user profiles.
func SeedUsers(t *testing.T, db *gorm.DB, users ...domain.UserModel) {
	t.Helper()
	for i := range users {
		if err := db.Create(&users[i]).Error; err != nil {
			t.Fatalf("failed to seed user %s: %v", users[i].ID, err)
		}
	}
}

// SeedConversation inserts a conversation with the given id, unread count
// and participants.
func SeedConversation(t *testing.T, db *gorm.DB, id int64, unread int, participants ...string) {
	t.Helper()
	conv := domain.ConversationModel{ID: id}
	if err := db.Create(&conv).Error; err != nil {
		t.Fatalf("failed to seed conversation %d: %v", id, err)
	}
	if unread != 0 {
		if err := db.Model(&domain.ConversationModel{}).Where("id = ?", id).Update("unread_count", unread).Error; err != nil {
			t.Fatalf("failed to set unread_count: %v", err)
		}
	}
	for _, userID := range participants {
		p := domain.ParticipantModel{ConversationID: id, UserID: userID}
		if err := db.Create(&p).Error; err != nil {
			t.Fatalf("failed to seed participant %s: %v", userID, err)
		}
	}
}

// SeedMessage inserts a message row directly and returns its id.
func SeedMessage(t *testing.T, db *gorm.DB, conversationID int64, sender, receiver string, status domain.MessageStatus) int64 {
	t.Helper()
	m := domain.MessageModel{
		ConversationID: conversationID,
		SenderID:       sender,
		ReceiverID:     receiver,
		Content:        "seed",
		Type:           string(domain.MessageTypeText),
		Status:         string(status),
		CreatedAt:      time.Now().UTC(),
	}
	if err := db.Create(&m).Error; err != nil {
		t.Fatalf("failed to seed message: %v", err)
	}
	return m.ID
}

// Conversation reads the raw conversation row.
func Conversation(t *testing.T, db *gorm.DB, id int64) domain.ConversationModel {
	t.Helper()
	var conv domain.ConversationModel
	if err := db.First(&conv, "id = ?", id).Error; err != nil {
		t.Fatalf("failed to read conversation %d: %v", id, err)
	}
	return conv
}

// CountMessages counts messages in a conversation, optionally by status.
func CountMessages(t *testing.T, db *gorm.DB, conversationID int64, status domain.MessageStatus) int64 {
	t.Helper()
	q := db.Model(&domain.MessageModel{}).Where("conversation_id = ?", conversationID)
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("failed to count messages: %v", err)
	}
	return n
}

// MessageStatus reads the stored status of one message.
func MessageStatus(t *testing.T, db *gorm.DB, id int64) domain.MessageStatus {
	t.Helper()
	var m domain.MessageModel
	if err := db.First(&m, "id = ?", id).Error; err != nil {
		t.Fatalf("failed to read message %d: %v", id, err)
	}
	return domain.MessageStatus(m.Status)
}
