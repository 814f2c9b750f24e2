// Package mqttproxy owns the broker connection when the device runs in MQTT
// proxy-to-client mode: uplink frames the device hands over are published to
// the broker, and broker traffic under the configured root is relayed back
// down to the device.
package mqttproxy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"meshchat/internal/bus"
	"meshchat/internal/domain"
	"meshchat/internal/events"
	"meshchat/internal/radio"
	"meshchat/internal/radio/protocol"
)

const (
	brokerConnectTimeout = 10 * time.Second
	brokerOpTimeout      = 5 * time.Second
	defaultTopicRoot     = "msh"
)

// BrokerMessage is one message received from the broker.
type BrokerMessage struct {
	Topic    string
	Payload  []byte
	Retained bool
}

// Broker abstracts the paho client so the bridge can be tested without a
// live broker.
type Broker interface {
	Connect() error
	Publish(topic string, payload []byte, retained bool) error
	Subscribe(filter string, handler func(BrokerMessage)) error
	Disconnect()
}

// DeviceSender hands broker payloads down to the device through the session
// outbox.
type DeviceSender interface {
	SendMQTTProxy(topic string, data []byte, retained bool) <-chan radio.SendResult
}

type Bridge struct {
	logger *slog.Logger
	bus    bus.MessageBus
	broker Broker
	device DeviceSender
	root   string
}

func NewBridge(logger *slog.Logger, b bus.MessageBus, broker Broker, device DeviceSender, root string) *Bridge {
	root = strings.TrimSuffix(strings.TrimSpace(root), "/")
	if root == "" {
		root = defaultTopicRoot
	}

	return &Bridge{
		logger: logger,
		bus:    b,
		broker: broker,
		device: device,
		root:   root,
	}
}

// Run connects to the broker and relays both directions until ctx is
// cancelled. Device frames arrive on the bus; broker frames arrive through
// the subscription handler.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.broker.Connect(); err != nil {
		return fmt.Errorf("connect mqtt broker: %w", err)
	}
	defer b.broker.Disconnect()

	if err := b.broker.Subscribe(b.root+"/#", b.handleBrokerMessage); err != nil {
		return fmt.Errorf("subscribe %s/#: %w", b.root, err)
	}
	b.logger.Info("mqtt proxy bridge up", "root", b.root)

	sub := b.bus.Subscribe(events.TopicMQTTProxyIn)
	defer b.bus.Unsubscribe(sub, events.TopicMQTTProxyIn)

	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-sub:
			if !ok {
				return nil
			}
			frame, valid := raw.(*protocol.MQTTProxyMessage)
			if !valid {
				continue
			}
			b.publishUplink(frame)
		}
	}
}

// publishUplink pushes one device frame to the broker and reports the
// outcome on the MQTT delivery track, keyed by the packet id inside the
// frame's service envelope.
func (b *Bridge) publishUplink(frame *protocol.MQTTProxyMessage) {
	payload := frame.Data
	if len(payload) == 0 && frame.Text != "" {
		payload = []byte(frame.Text)
	}
	if frame.Topic == "" || len(payload) == 0 {
		b.logger.Warn("dropping empty proxy frame", "topic", frame.Topic)

		return
	}

	err := b.broker.Publish(frame.Topic, payload, frame.Retained)
	if err != nil {
		b.logger.Warn("broker publish failed", "topic", frame.Topic, "error", err)
	} else {
		b.logger.Debug("uplinked proxy frame", "topic", frame.Topic, "bytes", len(payload))
	}

	packetID := uplinkPacketID(frame.Data)
	if packetID == 0 {
		return
	}
	update := events.MQTTStatusUpdate{PacketID: packetID, Sent: err == nil}
	if err != nil {
		update.Reason = err.Error()
	}
	b.bus.Publish(events.TopicMQTTStatus, update)
}

// handleBrokerMessage relays broker traffic down to the device. Delivery is
// fire-and-forget; the device decides what it cares about.
func (b *Bridge) handleBrokerMessage(msg BrokerMessage) {
	res := b.device.SendMQTTProxy(msg.Topic, msg.Payload, msg.Retained)
	go func() {
		if r := <-res; r.Err != nil {
			b.logger.Warn("downlink to device failed", "topic", msg.Topic, "error", r.Err)
		}
	}()
}

// uplinkPacketID digs the mesh packet id out of a service envelope payload.
// Returns 0 when the payload is not an envelope or carries no packet.
func uplinkPacketID(data []byte) uint32 {
	env, err := protocol.UnmarshalServiceEnvelope(data)
	if err != nil || env.Packet == nil {
		return 0
	}

	return env.Packet.ID
}

// PahoBroker is the production Broker backed by eclipse paho.
type PahoBroker struct {
	client mqtt.Client
}

// NewPahoBroker builds a paho client from the device-reported MQTT module
// settings. The address may carry an explicit scheme; otherwise tcp or ssl
// is picked from the TLS flag.
func NewPahoBroker(settings domain.MQTTSettings, clientID string) *PahoBroker {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL(settings)).
		SetClientID(clientID).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetConnectTimeout(brokerConnectTimeout)
	if settings.Username != "" {
		opts = opts.SetUsername(settings.Username).SetPassword(settings.Password)
	}

	return &PahoBroker{client: mqtt.NewClient(opts)}
}

func (p *PahoBroker) Connect() error {
	token := p.client.Connect()
	token.Wait()

	return token.Error()
}

func (p *PahoBroker) Publish(topic string, payload []byte, retained bool) error {
	token := p.client.Publish(topic, 0, retained, payload)
	if !token.WaitTimeout(brokerOpTimeout) {
		return fmt.Errorf("publish %s: broker timeout", topic)
	}

	return token.Error()
}

func (p *PahoBroker) Subscribe(filter string, handler func(BrokerMessage)) error {
	token := p.client.Subscribe(filter, 0, func(_ mqtt.Client, msg mqtt.Message) {
		handler(BrokerMessage{Topic: msg.Topic(), Payload: msg.Payload(), Retained: msg.Retained()})
	})
	if !token.WaitTimeout(brokerOpTimeout) {
		return fmt.Errorf("subscribe %s: broker timeout", filter)
	}

	return token.Error()
}

func (p *PahoBroker) Disconnect() {
	p.client.Disconnect(250)
}

func brokerURL(settings domain.MQTTSettings) string {
	addr := strings.TrimSpace(settings.Address)
	if strings.Contains(addr, "://") {
		return addr
	}
	scheme := "tcp"
	if settings.TLSEnabled {
		scheme = "ssl"
	}

	return fmt.Sprintf("%s://%s", scheme, addr)
}
