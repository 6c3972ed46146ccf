package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/domain"
	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/metrics"
	"github.com/weiawesome/wes-chat-socket/pkg/log"
	"github.com/weiawesome/wes-chat-socket/pkg/pubsub"
)

// Backplane relays encoded frames between instances sharing the same rooms.
type Backplane interface {
	Publish(ctx context.Context, room domain.Room, event string, frame []byte) error
	// Subscribe delivers frames published by other instances until ctx ends.
	Subscribe(ctx context.Context, deliver func(room domain.Room, frame []byte)) error
	Close() error
}

// PubSubBackplane implements Backplane on a pkg/pubsub bus (Redis in
// production). Frames carry the publishing instance id so an instance never
// re-delivers its own frames.
type PubSubBackplane struct {
	bus     pubsub.PubSub
	channel string
	origin  string
}

func NewPubSubBackplane(bus pubsub.PubSub, channel, origin string) *PubSubBackplane {
	return &PubSubBackplane{bus: bus, channel: channel, origin: origin}
}

func (b *PubSubBackplane) Publish(ctx context.Context, room domain.Room, event string, frame []byte) error {
	evt, err := pubsub.NewEvent(event, room.Key(), b.origin, json.RawMessage(frame))
	if err != nil {
		return err
	}
	if err := b.bus.Publish(ctx, b.channel, evt); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event, room.Key(), err)
	}
	return nil
}

func (b *PubSubBackplane) Subscribe(ctx context.Context, deliver func(room domain.Room, frame []byte)) error {
	events, err := b.bus.Subscribe(ctx, b.channel)
	if err != nil {
		return err
	}

	go func() {
		l := log.L()
		for evt := range events {
			if evt.Origin == b.origin {
				continue
			}
			room, err := domain.ParseRoom(evt.Room)
			if err != nil {
				metrics.BackplaneErrors.WithLabelValues("decode").Inc()
				l.Warn().Err(err).Str(log.FieldEvent, evt.Type).Msg("dropping backplane frame")
				continue
			}
			deliver(room, evt.Payload)
		}
		l.Debug().Str("channel", b.channel).Msg("backplane subscription ended")
	}()

	return nil
}

func (b *PubSubBackplane) Close() error {
	return b.bus.Close()
}
