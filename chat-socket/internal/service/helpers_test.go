package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/broadcast"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/config"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/domain"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/hub"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/repository"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/testutil"
)

type fixture struct {
	db     *gorm.DB
	store  repository.Store
	hub    *hub.Hub
	router *broadcast.Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	h := hub.NewHub(config.WebSocketConfig{SendBuffer: 64})
	return &fixture{
		db:     db,
		store:  repository.NewGormStore(db),
		hub:    h,
		router: broadcast.NewRouter(h, nil),
	}
}

// connect registers a client, optionally bound to userID and joined to
// conversation rooms.
func (f *fixture) connect(t *testing.T, id, userID string, conversations ...int64) *hub.Client {
	t.Helper()
	c := hub.NewClient(id, f.hub, nil, config.WebSocketConfig{SendBuffer: 64})
	f.hub.Register(c)
	if userID != "" {
		f.hub.Bind(c, userID)
	}
	for _, conv := range conversations {
		f.hub.Join(c, domain.ConversationRoom(conv))
	}
	return c
}

// drain returns every frame queued for c, decoded.
func drain(t *testing.T, c *hub.Client) []domain.Envelope {
	t.Helper()
	var out []domain.Envelope
	for {
		select {
		case frame, ok := <-c.Send:
			if !ok {
				return out
			}
			var env domain.Envelope
			if err := json.Unmarshal(frame, &env); err != nil {
				t.Fatalf("invalid frame %q: %v", frame, err)
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func countEvents(envs []domain.Envelope, event string) int {
	n := 0
	for _, e := range envs {
		if e.Type == event {
			n++
		}
	}
	return n
}

func findEvent(t *testing.T, envs []domain.Envelope, event string, v interface{}) {
	t.Helper()
	for _, e := range envs {
		if e.Type == event {
			if err := json.Unmarshal(e.Data, v); err != nil {
				t.Fatalf("decode %s: %v", event, err)
			}
			return
		}
	}
	t.Fatalf("no %s event among %d frames", event, len(envs))
}

// wrappedStore swaps in a decorated conversation repository, inside
// transactions too.
type wrappedStore struct {
	repository.Store
	wrap func(repository.ConversationRepository) repository.ConversationRepository
}

func (s *wrappedStore) Conversations() repository.ConversationRepository {
	return s.wrap(s.Store.Conversations())
}

func (s *wrappedStore) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.Store.Transaction(ctx, func(tx repository.Store) error {
		return fn(&wrappedStore{Store: tx, wrap: s.wrap})
	})
}

// failingStore injects a persistence failure into the conversation update
// that follows the message insert.
func failingStore(base repository.Store) repository.Store {
	return &wrappedStore{Store: base, wrap: func(r repository.ConversationRepository) repository.ConversationRepository {
		return failingConversations{r}
	}}
}

type failingConversations struct {
	repository.ConversationRepository
}

func (failingConversations) UpdateState(context.Context, int64, repository.ConversationState) error {
	return fmt.Errorf("%w: injected", repository.ErrPersistence)
}

// panickingStore panics in the counter write of either a send or a mark
// read.
func panickingStore(base repository.Store) repository.Store {
	return &wrappedStore{Store: base, wrap: func(r repository.ConversationRepository) repository.ConversationRepository {
		return panickingConversations{r}
	}}
}

type panickingConversations struct {
	repository.ConversationRepository
}

func (panickingConversations) UpdateState(context.Context, int64, repository.ConversationState) error {
	panic("update state")
}

func (panickingConversations) ResetUnread(context.Context, int64) error {
	panic("reset unread")
}

// readGate holds each conversation reader until want readers have arrived
// or wait has passed, forcing concurrent read-modify-write cycles to
// overlap when nothing serializes them.
type readGate struct {
	want    int32
	arrived atomic.Int32
	all     chan struct{}
	once    sync.Once
	wait    time.Duration
}

func newReadGate(want int32, wait time.Duration) *readGate {
	return &readGate{want: want, all: make(chan struct{}), wait: wait}
}

func (g *readGate) arrive() {
	if g.arrived.Add(1) >= g.want {
		g.once.Do(func() { close(g.all) })
	}
	select {
	case <-g.all:
	case <-time.After(g.wait):
	}
}

func gatedStore(base repository.Store, gate *readGate) repository.Store {
	return &wrappedStore{Store: base, wrap: func(r repository.ConversationRepository) repository.ConversationRepository {
		return gatedConversations{ConversationRepository: r, gate: gate}
	}}
}

type gatedConversations struct {
	repository.ConversationRepository
	gate *readGate
}

func (c gatedConversations) GetForUpdate(ctx context.Context, id int64) (*domain.Conversation, error) {
	conv, err := c.ConversationRepository.GetForUpdate(ctx, id)
	c.gate.arrive()
	return conv, err
}

// memoryStore applies writes immediately. Its transactions give no
// isolation and take no row locks, so any serialization must come from
// the caller.
type memoryStore struct {
	mu            sync.Mutex
	nextID        int64
	messages      map[int64]*domain.Message
	conversations map[int64]*domain.Conversation
}

func newMemoryStore(conversationIDs ...int64) *memoryStore {
	s := &memoryStore{
		messages:      make(map[int64]*domain.Message),
		conversations: make(map[int64]*domain.Conversation),
	}
	for _, id := range conversationIDs {
		s.conversations[id] = &domain.Conversation{ID: id}
	}
	return s
}

func (s *memoryStore) Messages() repository.MessageRepository { return memoryMessages{s} }

func (s *memoryStore) Conversations() repository.ConversationRepository {
	return memoryConversations{s}
}

func (s *memoryStore) Transaction(_ context.Context, fn func(tx repository.Store) error) error {
	return fn(s)
}

func (s *memoryStore) unread(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversations[id].UnreadCount
}

type memoryMessages struct{ s *memoryStore }

func (m memoryMessages) Create(_ context.Context, msg *domain.Message) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.nextID++
	msg.ID = m.s.nextID
	msg.DateCreated = time.Now()
	stored := *msg
	m.s.messages[msg.ID] = &stored
	return nil
}

func (m memoryMessages) GetByID(_ context.Context, id int64) (*domain.Message, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	msg, ok := m.s.messages[id]
	if !ok {
		return nil, repository.ErrMessageNotFound
	}
	out := *msg
	return &out, nil
}

func (m memoryMessages) MarkRead(_ context.Context, conversationID int64, receiverID string) (int64, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var n int64
	for _, msg := range m.s.messages {
		if msg.ConversationID == conversationID && msg.ReceiverID == receiverID && msg.Status.Advances(domain.StatusRead) {
			msg.Status = domain.StatusRead
			n++
		}
	}
	return n, nil
}

func (m memoryMessages) AdvanceStatus(_ context.Context, id int64, status domain.MessageStatus) (bool, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	msg, ok := m.s.messages[id]
	if !ok {
		return false, repository.ErrMessageNotFound
	}
	if !msg.Status.Advances(status) {
		return false, nil
	}
	msg.Status = status
	return true, nil
}

type memoryConversations struct{ s *memoryStore }

func (c memoryConversations) GetForUpdate(_ context.Context, id int64) (*domain.Conversation, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	conv, ok := c.s.conversations[id]
	if !ok {
		return nil, repository.ErrConversationNotFound
	}
	out := *conv
	return &out, nil
}

func (c memoryConversations) UpdateState(_ context.Context, id int64, state repository.ConversationState) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	conv, ok := c.s.conversations[id]
	if !ok {
		return repository.ErrConversationNotFound
	}
	last := *c.s.messages[state.LastMessageID]
	conv.LastMessage = &last
	conv.LastMessageTime = &state.LastMessageTime
	conv.UnreadCount = state.UnreadCount
	return nil
}

func (c memoryConversations) ResetUnread(_ context.Context, id int64) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if conv, ok := c.s.conversations[id]; ok {
		conv.UnreadCount = 0
	}
	return nil
}

func (c memoryConversations) GetSnapshot(ctx context.Context, id int64) (*domain.Conversation, error) {
	return c.GetForUpdate(ctx, id)
}

// recordingEmitter captures emits without delivering them.
type recordingEmitter struct {
	mu    sync.Mutex
	calls []emitCall
}

type emitCall struct {
	event string
	rooms []domain.Room
}

func (r *recordingEmitter) Emit(_ context.Context, event string, _ interface{}, rooms ...domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, emitCall{event: event, rooms: rooms})
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
