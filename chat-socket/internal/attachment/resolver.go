package attachment

import (
	"context"
	"time"

	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/domain"
	"github.com/weiawesome/wes-chat-socket/pkg/log"
	"github.com/weiawesome/wes-chat-socket/pkg/storage"
)

// Resolver fills attachment and avatar URLs from file ids.
type Resolver struct {
	store  storage.Storage
	expiry time.Duration
}

// NewResolver returns a resolver. A nil store leaves every URL empty.
func NewResolver(store storage.Storage, expiry time.Duration) *Resolver {
	return &Resolver{store: store, expiry: expiry}
}

// ResolveMessage sets URL on each attachment of msg.
func (r *Resolver) ResolveMessage(ctx context.Context, msg *domain.Message) {
	if r == nil || r.store == nil || msg == nil {
		return
	}
	for i := range msg.Attachments {
		msg.Attachments[i].URL = r.url(ctx, msg.Attachments[i].FileID)
	}
}

// ResolveConversation sets avatar URLs on participants and attachment URLs
// on the last message.
func (r *Resolver) ResolveConversation(ctx context.Context, conv *domain.Conversation) {
	if r == nil || r.store == nil || conv == nil {
		return
	}
	for i := range conv.Participants {
		if u := conv.Participants[i].User; u != nil && u.Avatar != "" {
			u.AvatarURL = r.url(ctx, u.Avatar)
		}
	}
	r.ResolveMessage(ctx, conv.LastMessage)
}

func (r *Resolver) url(ctx context.Context, fileID string) string {
	if fileID == "" {
		return ""
	}
	u, err := r.store.GetURL(ctx, fileID, r.expiry)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str("file_id", fileID).Msg("failed to resolve file url")
		return ""
	}
	return u
}
