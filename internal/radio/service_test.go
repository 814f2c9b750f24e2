package radio

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
)

type fakeTransport struct {
	mu       sync.Mutex
	written  [][]byte
	frames   chan []byte
	writeErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{frames: make(chan []byte, 16)}
}

func (t *fakeTransport) Name() string                    { return "fake" }
func (t *fakeTransport) Connect(_ context.Context) error { return nil }
func (t *fakeTransport) Close() error                    { return nil }

func (t *fakeTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case payload := <-t.frames:
		return payload, nil
	}
}

func (t *fakeTransport) WriteFrame(_ context.Context, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return t.writeErr
	}
	t.written = append(t.written, append([]byte(nil), payload...))

	return nil
}

func (t *fakeTransport) writeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.written)
}

type fakeSink struct {
	mu       sync.Mutex
	messages []domain.Message
	dropNext bool
	err      error
}

func (s *fakeSink) AddMessage(_ context.Context, msg domain.Message) (domain.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return domain.Message{}, false, s.err
	}
	if s.dropNext {
		s.dropNext = false

		return msg, false, nil
	}
	s.messages = append(s.messages, msg)

	return msg, true, nil
}

func (s *fakeSink) last(t *testing.T) domain.Message {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		t.Fatalf("no messages persisted")
	}

	return s.messages[len(s.messages)-1]
}

type fakeChannels struct{ uplink map[int]bool }

func (c *fakeChannels) UplinkEnabled(index int) bool { return c.uplink[index] }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, tr *fakeTransport, sink *fakeSink, channels ChannelDirectory) (*Service, bus.MessageBus) {
	t.Helper()
	logger := discardLogger()
	b := bus.New(logger)
	t.Cleanup(b.Close)
	codec := newTestCodec(t)
	svc := NewService(logger, b, tr, codec, sink, channels)

	return svc, b
}

func waitResult(t *testing.T, ch <-chan SendResult) SendResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for send result")
	}

	return SendResult{}
}

func TestSendTextPersistsPendingAndWrites(t *testing.T) {
	tr := newFakeTransport()
	sink := &fakeSink{}
	svc, _ := newTestService(t, tr, sink, &fakeChannels{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.runOutbox(ctx)

	res := waitResult(t, svc.SendText(domain.ChatKeyForDM(0x01020304), "on my way"))
	if res.Err != nil {
		t.Fatalf("send failed: %v", res.Err)
	}
	if res.PacketID == 0 {
		t.Fatalf("expected correlation packet id")
	}

	stored := sink.last(t)
	if stored.PacketID != res.PacketID {
		t.Fatalf("persisted packet id %d, result %d", stored.PacketID, res.PacketID)
	}
	if stored.RadioStatus != domain.RadioStatusPending {
		t.Fatalf("outgoing DM must start pending, got %v", stored.RadioStatus)
	}
	if stored.MQTTStatus != domain.MQTTStatusNotApplicable {
		t.Fatalf("DM has no MQTT track, got %v", stored.MQTTStatus)
	}
	if stored.ID == "" || !stored.Outgoing {
		t.Fatalf("outgoing row malformed: %+v", stored)
	}
	if tr.writeCount() != 1 {
		t.Fatalf("expected one device write, got %d", tr.writeCount())
	}
}

func TestSendTextOnUplinkChannelSeedsMQTTTrack(t *testing.T) {
	tr := newFakeTransport()
	sink := &fakeSink{}
	svc, _ := newTestService(t, tr, sink, &fakeChannels{uplink: map[int]bool{2: true}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.runOutbox(ctx)

	res := waitResult(t, svc.SendText(domain.ChatKeyForChannel(2), "net check"))
	if res.Err != nil {
		t.Fatalf("send failed: %v", res.Err)
	}
	stored := sink.last(t)
	if stored.MQTTStatus != domain.MQTTStatusPending {
		t.Fatalf("uplink channel message must track MQTT, got %v", stored.MQTTStatus)
	}
	if stored.Channel == nil || *stored.Channel != 2 {
		t.Fatalf("channel index lost: %+v", stored.Channel)
	}
	if stored.To != domain.BroadcastNodeNum {
		t.Fatalf("channel message must broadcast, got %08x", stored.To)
	}
}

func TestSendTextRejectsEmptyAndOversized(t *testing.T) {
	svc, _ := newTestService(t, newFakeTransport(), &fakeSink{}, &fakeChannels{})

	if res := waitResult(t, svc.SendText(domain.ChatKeyForDM(1), "  \n ")); res.Err == nil {
		t.Fatalf("expected error for blank body")
	}
	long := make([]byte, maxTextBytes+1)
	for i := range long {
		long[i] = 'a'
	}
	if res := waitResult(t, svc.SendText(domain.ChatKeyForDM(1), string(long))); res.Err == nil {
		t.Fatalf("expected error for oversized body")
	}
}

func TestSendFailurePublishesFailedStatus(t *testing.T) {
	tr := newFakeTransport()
	tr.writeErr = errors.New("link down")
	sink := &fakeSink{}
	svc, b := newTestService(t, tr, sink, &fakeChannels{})

	statusCh := b.Subscribe(events.TopicMessageStatus)
	defer b.Unsubscribe(statusCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.runOutbox(ctx)

	res := waitResult(t, svc.SendText(domain.ChatKeyForDM(0x01020304), "ping"))
	if res.Err == nil {
		t.Fatalf("expected transport error")
	}

	select {
	case raw := <-statusCh:
		update, ok := raw.(StatusUpdate)
		if !ok {
			t.Fatalf("unexpected payload type %T", raw)
		}
		if update.Radio != domain.RadioStatusFailed {
			t.Fatalf("expected failed status, got %v", update.Radio)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no failure status published")
	}
}

func TestDuplicateSendIsSilentNoOp(t *testing.T) {
	tr := newFakeTransport()
	sink := &fakeSink{dropNext: true}
	svc, _ := newTestService(t, tr, sink, &fakeChannels{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.runOutbox(ctx)

	res := waitResult(t, svc.SendText(domain.ChatKeyForDM(1), "again"))
	if res.Err != nil {
		t.Fatalf("duplicate send must not error: %v", res.Err)
	}
	if tr.writeCount() != 0 {
		t.Fatalf("duplicate send must not reach the device")
	}
}

func TestReaderDispatchesIncomingText(t *testing.T) {
	tr := newFakeTransport()
	sink := &fakeSink{}
	svc, b := newTestService(t, tr, sink, &fakeChannels{})

	msgCh := b.Subscribe(events.TopicTextMessage)
	defer b.Unsubscribe(msgCh)

	peer := newTestCodec(t)
	enc, err := peer.EncodeTextMessage("fire pit at 8", svc.codec.MyNodeNum(), 0x0A0B0C0D, 0, false)
	if err != nil {
		t.Fatalf("peer encode: %v", err)
	}
	tr.frames <- fromRadioPacket(t, enc.Payload)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.runReader(ctx) }()

	select {
	case raw := <-msgCh:
		msg, ok := raw.(domain.Message)
		if !ok {
			t.Fatalf("unexpected payload type %T", raw)
		}
		if msg.Text != "fire pit at 8" || msg.From != 0x0A0B0C0D {
			t.Fatalf("message mismatch: %+v", msg)
		}
		if msg.ID == "" {
			t.Fatalf("incoming message must get an id before storage")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("incoming message not dispatched")
	}

	if len(sink.messages) != 1 {
		t.Fatalf("incoming message not persisted")
	}
}

func TestReaderPublishesStatusUpdates(t *testing.T) {
	tr := newFakeTransport()
	svc, b := newTestService(t, tr, &fakeSink{}, &fakeChannels{})

	statusCh := b.Subscribe(events.TopicMessageStatus)
	defer b.Unsubscribe(statusCh)

	tr.frames <- ackFrame(t, 31337, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.runReader(ctx) }()

	select {
	case raw := <-statusCh:
		update := raw.(StatusUpdate)
		if update.PacketID != 31337 || update.Radio != domain.RadioStatusDelivered {
			t.Fatalf("status mismatch: %+v", update)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("status update not dispatched")
	}
}

func TestPollPauseResume(t *testing.T) {
	svc, _ := newTestService(t, newFakeTransport(), &fakeSink{}, &fakeChannels{})

	if svc.pollingPaused() {
		t.Fatalf("polling must start enabled")
	}
	svc.PausePolling()
	if !svc.pollingPaused() {
		t.Fatalf("pause did not take")
	}
	svc.ResumePolling()
	if svc.pollingPaused() {
		t.Fatalf("resume did not take")
	}
}

func TestReconnectClearsPollPause(t *testing.T) {
	svc, _ := newTestService(t, newFakeTransport(), &fakeSink{}, &fakeChannels{})

	// Simulate a settle sequence interrupted by a disconnect: the pause
	// was taken but the resume never ran.
	svc.PausePolling()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.runConnector(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for !svc.IsConnected() {
		if time.Now().After(deadline) {
			t.Fatalf("connector never reached connected state")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if svc.pollingPaused() {
		t.Fatalf("stale poll pause survived reconnect")
	}
}
