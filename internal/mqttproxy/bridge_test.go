package mqttproxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"meshchat/internal/bus"
	"meshchat/internal/domain"
	"meshchat/internal/events"
	"meshchat/internal/radio"
	"meshchat/internal/radio/protocol"
)

type fakeBroker struct {
	mu         sync.Mutex
	connected  bool
	published  []BrokerMessage
	publishErr error
	handler    func(BrokerMessage)
	filter     string
}

func (f *fakeBroker) Connect() error {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()

	return nil
}

func (f *fakeBroker) Publish(topic string, payload []byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, BrokerMessage{Topic: topic, Payload: payload, Retained: retained})

	return nil
}

func (f *fakeBroker) Subscribe(filter string, handler func(BrokerMessage)) error {
	f.mu.Lock()
	f.filter = filter
	f.handler = handler
	f.mu.Unlock()

	return nil
}

func (f *fakeBroker) Disconnect() {}

func (f *fakeBroker) publishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.published)
}

func (f *fakeBroker) subscription() (string, func(BrokerMessage)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.filter, f.handler
}

type fakeDevice struct {
	mu   sync.Mutex
	sent []BrokerMessage
}

func (f *fakeDevice) SendMQTTProxy(topic string, data []byte, retained bool) <-chan radio.SendResult {
	f.mu.Lock()
	f.sent = append(f.sent, BrokerMessage{Topic: topic, Payload: data, Retained: retained})
	f.mu.Unlock()

	ch := make(chan radio.SendResult, 1)
	ch <- radio.SendResult{}
	close(ch)

	return ch
}

func (f *fakeDevice) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.sent)
}

type bridgeRig struct {
	bus    bus.MessageBus
	broker *fakeBroker
	device *fakeDevice
	cancel context.CancelFunc
}

func startBridge(t *testing.T, root string) *bridgeRig {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := bus.New(logger)
	t.Cleanup(b.Close)

	rig := &bridgeRig{bus: b, broker: &fakeBroker{}, device: &fakeDevice{}}
	bridge := NewBridge(logger, b, rig.broker, rig.device, root)

	ctx, cancel := context.WithCancel(context.Background())
	rig.cancel = cancel
	t.Cleanup(cancel)
	go func() {
		if err := bridge.Run(ctx); err != nil {
			t.Errorf("bridge run: %v", err)
		}
	}()
	// Give Run a moment to connect and subscribe before the test publishes.
	time.Sleep(20 * time.Millisecond)

	return rig
}

func envelopeFrame(topic string, packetID uint32) *protocol.MQTTProxyMessage {
	env := &protocol.ServiceEnvelope{
		Packet:    &protocol.MeshPacket{ID: packetID, From: 0xAA55},
		ChannelID: "LongFast",
		GatewayID: "!0000aa55",
	}

	return &protocol.MQTTProxyMessage{Topic: topic, Data: env.Marshal()}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestBridgeUplinksDeviceFrames(t *testing.T) {
	rig := startBridge(t, "msh/EU_868")
	status := rig.bus.Subscribe(events.TopicMQTTStatus)
	defer rig.bus.Unsubscribe(status, events.TopicMQTTStatus)
	time.Sleep(20 * time.Millisecond)

	rig.bus.Publish(events.TopicMQTTProxyIn, envelopeFrame("msh/EU_868/2/e/LongFast/!0000aa55", 777))

	waitFor(t, "broker publish", func() bool { return rig.broker.publishedCount() == 1 })
	rig.broker.mu.Lock()
	got := rig.broker.published[0]
	rig.broker.mu.Unlock()
	if got.Topic != "msh/EU_868/2/e/LongFast/!0000aa55" {
		t.Fatalf("wrong topic: %q", got.Topic)
	}

	select {
	case raw := <-status:
		update, ok := raw.(events.MQTTStatusUpdate)
		if !ok {
			t.Fatalf("unexpected status payload %T", raw)
		}
		if update.PacketID != 777 || !update.Sent {
			t.Fatalf("wrong status update: %+v", update)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no mqtt status update")
	}
}

func TestBridgeReportsBrokerFailure(t *testing.T) {
	rig := startBridge(t, "msh")
	rig.broker.mu.Lock()
	rig.broker.publishErr = errors.New("broker gone")
	rig.broker.mu.Unlock()

	status := rig.bus.Subscribe(events.TopicMQTTStatus)
	defer rig.bus.Unsubscribe(status, events.TopicMQTTStatus)
	time.Sleep(20 * time.Millisecond)

	rig.bus.Publish(events.TopicMQTTProxyIn, envelopeFrame("msh/2/e/LongFast/!1", 42))

	select {
	case raw := <-status:
		update := raw.(events.MQTTStatusUpdate)
		if update.Sent || update.PacketID != 42 || update.Reason == "" {
			t.Fatalf("wrong failure update: %+v", update)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no mqtt status update")
	}
}

func TestBridgeForwardsBrokerTrafficToDevice(t *testing.T) {
	rig := startBridge(t, "msh/EU_868")
	filter, handler := rig.broker.subscription()
	if filter != "msh/EU_868/#" {
		t.Fatalf("wrong subscription filter: %q", filter)
	}

	handler(BrokerMessage{Topic: "msh/EU_868/2/e/LongFast/!2", Payload: []byte{1, 2, 3}, Retained: true})

	waitFor(t, "device downlink", func() bool { return rig.device.sentCount() == 1 })
	rig.device.mu.Lock()
	got := rig.device.sent[0]
	rig.device.mu.Unlock()
	if !got.Retained || len(got.Payload) != 3 {
		t.Fatalf("downlink frame mangled: %+v", got)
	}
}

func TestBridgeDropsFramesWithoutEnvelopeID(t *testing.T) {
	rig := startBridge(t, "msh")
	status := rig.bus.Subscribe(events.TopicMQTTStatus)
	defer rig.bus.Unsubscribe(status, events.TopicMQTTStatus)
	time.Sleep(20 * time.Millisecond)

	// A stat frame with free-text payload has no envelope, so no delivery
	// outcome is attributable.
	rig.bus.Publish(events.TopicMQTTProxyIn, &protocol.MQTTProxyMessage{
		Topic: "msh/2/stat/!1",
		Text:  "online",
	})

	waitFor(t, "broker publish", func() bool { return rig.broker.publishedCount() == 1 })
	select {
	case raw := <-status:
		t.Fatalf("unexpected status update: %+v", raw)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBrokerURL(t *testing.T) {
	cases := []struct {
		addr string
		tls  bool
		want string
	}{
		{"mqtt.example.org:1883", false, "tcp://mqtt.example.org:1883"},
		{"mqtt.example.org:8883", true, "ssl://mqtt.example.org:8883"},
		{"ws://mqtt.example.org/mqtt", true, "ws://mqtt.example.org/mqtt"},
	}
	for _, tc := range cases {
		got := brokerURL(domain.MQTTSettings{Address: tc.addr, TLSEnabled: tc.tls})
		if got != tc.want {
			t.Fatalf("brokerURL(%q, tls=%v) = %q, want %q", tc.addr, tc.tls, got, tc.want)
		}
	}
}
