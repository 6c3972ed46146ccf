package broadcast

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/domain"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/metrics"
	"github.com/weiawesome/wes-chat-socket/pkg/log"
)

// LocalDeliverer delivers an encoded frame to the members of a room on this
// instance. *hub.Hub implements it.
type LocalDeliverer interface {
	Deliver(room domain.Room, data []byte) int
}

// Emitter is what services depend on to fan out state changes.
type Emitter interface {
	Emit(ctx context.Context, event string, payload interface{}, rooms ...domain.Room) error
}

// Router fans out events to local members and, when configured, to other
// instances through a Backplane.
type Router struct {
	local     LocalDeliverer
	backplane Backplane
}

// NewRouter creates a router. backplane may be nil for single-instance
// deployments.
func NewRouter(local LocalDeliverer, backplane Backplane) *Router {
	return &Router{local: local, backplane: backplane}
}

// Start subscribes to the backplane, delivering remote frames locally.
func (r *Router) Start(ctx context.Context) error {
	if r.backplane == nil {
		return nil
	}
	if err := r.backplane.Subscribe(ctx, func(room domain.Room, frame []byte) {
		r.local.Deliver(room, frame)
	}); err != nil {
		return fmt.Errorf("failed to subscribe to backplane: %w", err)
	}
	return nil
}

// Emit encodes payload once and delivers it to every member of each room at
// the time of the call. Each room is an independent send; no ordering holds
// between rooms or between calls. Local delivery never fails; a backplane
// error is returned after local delivery has completed.
func (r *Router) Emit(ctx context.Context, event string, payload interface{}, rooms ...domain.Room) error {
	frame, err := domain.NewEnvelope(event, "", payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event, err)
	}

	l := log.Ctx(ctx)
	for _, room := range rooms {
		n := r.local.Deliver(room, frame)
		metrics.Broadcasts.WithLabelValues(event).Inc()
		l.Debug().Str(log.FieldEvent, event).Str(log.FieldRoom, room.Key()).Int("recipients", n).Msg("event emitted")
	}

	if r.backplane == nil {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, room := range rooms {
		room := room
		g.Go(func() error {
			return r.backplane.Publish(gctx, room, event, frame)
		})
	}
	if err := g.Wait(); err != nil {
		metrics.BackplaneErrors.WithLabelValues("publish").Inc()
		l.Warn().Err(err).Str(log.FieldEvent, event).Msg("failed to publish event to backplane")
		return err
	}
	return nil
}

// Close releases the backplane.
func (r *Router) Close() error {
	if r.backplane == nil {
		return nil
	}
	return r.backplane.Close()
}
