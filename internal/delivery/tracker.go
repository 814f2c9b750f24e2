// Package delivery applies asynchronous delivery outcomes to stored
// messages. Every outgoing message carries two tracks: the radio track
// (queue status, mesh ACK/NAK) and the MQTT track (broker relay through the
// proxy bridge). The tracker is the only writer of either track.
package delivery

import (
	"context"
	"log/slog"

	"meshchat/internal/bus"
	"meshchat/internal/domain"
	"meshchat/internal/events"
	"meshchat/internal/radio"
)

// MessageStore is the slice of the message repository the tracker needs.
type MessageStore interface {
	UpdateRadioStatusByPacketID(ctx context.Context, packetID uint32, next domain.RadioStatus) ([]domain.Message, error)
	UpdateMQTTStatusByPacketID(ctx context.Context, packetID uint32, next domain.MQTTStatus) ([]domain.Message, error)
}

type Tracker struct {
	logger *slog.Logger
	bus    bus.MessageBus
	store  MessageStore
}

func NewTracker(logger *slog.Logger, b bus.MessageBus, store MessageStore) *Tracker {
	return &Tracker{logger: logger, bus: b, store: store}
}

// Run consumes status events until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	radioCh := t.bus.Subscribe(events.TopicMessageStatus)
	mqttCh := t.bus.Subscribe(events.TopicMQTTStatus)
	defer t.bus.Unsubscribe(radioCh, events.TopicMessageStatus)
	defer t.bus.Unsubscribe(mqttCh, events.TopicMQTTStatus)

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-radioCh:
			if !ok {
				return
			}
			if update, valid := raw.(radio.StatusUpdate); valid {
				t.applyRadio(ctx, update)
			}
		case raw, ok := <-mqttCh:
			if !ok {
				return
			}
			if update, valid := raw.(events.MQTTStatusUpdate); valid {
				t.applyMQTT(ctx, update)
			}
		}
	}
}

func (t *Tracker) applyRadio(ctx context.Context, update radio.StatusUpdate) {
	updated, err := t.store.UpdateRadioStatusByPacketID(ctx, update.PacketID, update.Radio)
	if err != nil {
		t.logger.Error("apply radio status failed", "packet_id", update.PacketID, "error", err)

		return
	}
	if len(updated) > 0 && update.Reason != "" {
		t.logger.Info("message delivery outcome", "packet_id", update.PacketID, "status", update.Radio, "reason", update.Reason)
	}
	t.publishUpdated(updated)

	// A frame that never reached the device cannot be uplinked either.
	if update.HandoffFailed {
		failed, err := t.store.UpdateMQTTStatusByPacketID(ctx, update.PacketID, domain.MQTTStatusFailed)
		if err != nil {
			t.logger.Error("fail mqtt track failed", "packet_id", update.PacketID, "error", err)

			return
		}
		t.publishUpdated(failed)
	}
}

func (t *Tracker) applyMQTT(ctx context.Context, update events.MQTTStatusUpdate) {
	next := domain.MQTTStatusFailed
	if update.Sent {
		next = domain.MQTTStatusSent
	}
	updated, err := t.store.UpdateMQTTStatusByPacketID(ctx, update.PacketID, next)
	if err != nil {
		t.logger.Error("apply mqtt status failed", "packet_id", update.PacketID, "error", err)

		return
	}
	t.publishUpdated(updated)
}

func (t *Tracker) publishUpdated(msgs []domain.Message) {
	for _, m := range msgs {
		t.bus.Publish(events.TopicMessageUpdate, m)
	}
}
