package radio

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"meshchat/internal/bus"
	"meshchat/internal/domain"
	"meshchat/internal/events"
	"meshchat/internal/radio/protocol"
	"meshchat/internal/transport"
)

// Device payload limit for a single text message.
const maxTextBytes = 200

// MessageSink persists chat messages as they enter the session. The bool
// result is false when the store dropped the row as a duplicate.
type MessageSink interface {
	AddMessage(ctx context.Context, msg domain.Message) (domain.Message, bool, error)
}

// ChannelDirectory answers uplink questions for outgoing status seeding.
type ChannelDirectory interface {
	UplinkEnabled(index int) bool
}

type SendResult struct {
	Message  domain.Message
	PacketID uint32
	Err      error
}

type sendRequest struct {
	encode  func() (Encoded, error)
	message *domain.Message
	result  chan SendResult
}

// Service owns the device session: a single-writer outbox serializes all
// frames to the device, a reader loop fans decoded events out on the bus,
// and a keepalive/poll loop keeps the device link warm.
type Service struct {
	logger    *slog.Logger
	transport transport.Transport
	codec     Codec
	bus       bus.MessageBus
	sink      MessageSink
	channels  ChannelDirectory
	outbox    chan sendRequest

	heartbeatInterval time.Duration
	pollInterval      time.Duration
	writeTimeout      time.Duration
	readTimeout       time.Duration

	pollMu     sync.Mutex
	pollPaused bool

	connected atomic.Bool
}

func NewService(logger *slog.Logger, b bus.MessageBus, tr transport.Transport, codec Codec, sink MessageSink, channels ChannelDirectory) *Service {
	return &Service{
		logger:    logger,
		transport: tr,
		codec:     codec,
		bus:       b,
		sink:      sink,
		channels:  channels,
		outbox:    make(chan sendRequest, 128),

		heartbeatInterval: 25 * time.Second,
		pollInterval:      5 * time.Minute,
		writeTimeout:      8 * time.Second,
		readTimeout:       30 * time.Second,
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.runOutbox(ctx)
	go s.runConnector(ctx)
}

// SendText queues a text message for the conversation identified by key.
// The returned channel yields exactly one result once the frame is handed
// to the device (or failed to be).
func (s *Service) SendText(key domain.ChatKey, text string) <-chan SendResult {
	resCh := make(chan SendResult, 1)
	if utf8.RuneCountInString(strings.TrimSpace(text)) == 0 {
		return failSend(resCh, errors.New("message body is empty"))
	}
	if len(text) > maxTextBytes {
		return failSend(resCh, fmt.Errorf("message body exceeds %d bytes: %d", maxTextBytes, len(text)))
	}

	to, channel := key.Destination()
	msg := s.newOutgoingMessage(key, text, domain.MessageTypeText, nil)
	s.outbox <- sendRequest{
		encode: func() (Encoded, error) {
			return s.codec.EncodeTextMessage(text, to, s.codec.MyNodeNum(), channel, true)
		},
		message: &msg,
		result:  resCh,
	}

	return resCh
}

// SendLocation queues a location share for the conversation.
func (s *Service) SendLocation(key domain.ChatKey, loc domain.Location) <-chan SendResult {
	resCh := make(chan SendResult, 1)
	to, channel := key.Destination()
	msg := s.newOutgoingMessage(key, "", domain.MessageTypeLocation, &loc)
	s.outbox <- sendRequest{
		encode: func() (Encoded, error) {
			return s.codec.EncodePositionMessage(loc, to, s.codec.MyNodeNum(), channel, true)
		},
		message: &msg,
		result:  resCh,
	}

	return resCh
}

// SendAdmin queues a device-configuration frame through the same outbox the
// chat traffic uses, so admin writes never interleave mid-frame.
func (s *Service) SendAdmin(admin AdminSend) <-chan SendResult {
	resCh := make(chan SendResult, 1)
	if admin.Message == nil {
		return failSend(resCh, errors.New("admin payload is required"))
	}
	s.outbox <- sendRequest{
		encode: func() (Encoded, error) {
			to := admin.To
			if to == 0 {
				to = s.codec.MyNodeNum()
			}

			return s.codec.EncodeAdminMessage(admin.Message, to, s.codec.MyNodeNum())
		},
		result: resCh,
	}

	return resCh
}

// SendMQTTProxy forwards a broker payload down to the device.
func (s *Service) SendMQTTProxy(topic string, data []byte, retained bool) <-chan SendResult {
	resCh := make(chan SendResult, 1)
	s.outbox <- sendRequest{
		encode: func() (Encoded, error) {
			payload, err := s.codec.EncodeMQTTProxyFrame(topic, data, retained)

			return Encoded{Payload: payload}, err
		},
		result: resCh,
	}

	return resCh
}

// IsConnected reports whether the device link is currently up.
func (s *Service) IsConnected() bool {
	return s.connected.Load()
}

// PausePolling suspends the periodic config poll, keeping heartbeats
// running. Config writers pause the poll so a mid-write snapshot never
// overwrites their optimistic local state.
func (s *Service) PausePolling() {
	s.pollMu.Lock()
	s.pollPaused = true
	s.pollMu.Unlock()
}

func (s *Service) ResumePolling() {
	s.pollMu.Lock()
	s.pollPaused = false
	s.pollMu.Unlock()
}

func (s *Service) pollingPaused() bool {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	return s.pollPaused
}

func (s *Service) newOutgoingMessage(key domain.ChatKey, text string, typ domain.MessageType, loc *domain.Location) domain.Message {
	to, channel := key.Destination()
	msg := domain.Message{
		ID:       uuid.NewString(),
		From:     s.codec.MyNodeNum(),
		To:       to,
		Text:     text,
		At:       time.Now(),
		Outgoing: true,
		Type:     typ,
		Location: loc,
	}
	uplink := false
	if key.Channel {
		idx := int(channel)
		msg.Channel = &idx
		if s.channels != nil {
			uplink = s.channels.UplinkEnabled(idx)
		}
	}
	msg.RadioStatus, msg.MQTTStatus = domain.NewOutgoingStatus(uplink)
	msg.Status = domain.LegacyForRadio(msg.RadioStatus)

	return msg
}

func (s *Service) runConnector(ctx context.Context) {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return
		}

		s.publishConnStatus(events.ConnectionStateConnecting, nil)
		if err := s.transport.Connect(ctx); err != nil {
			s.publishConnStatus(events.ConnectionStateReconnecting, err)
			s.logger.Error("transport connect failed", "error", err)
			if !sleepWithContext(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)

			continue
		}

		backoff = time.Second
		s.connected.Store(true)
		// A settle sequence cut short by a disconnect must not leave the
		// poll paused for the rest of the process.
		s.ResumePolling()
		s.publishConnStatus(events.ConnectionStateConnected, nil)
		if err := s.requestConfig(ctx); err != nil {
			s.logger.Warn("want_config send failed", "error", err)
		}

		loopCtx, cancelLoops := context.WithCancel(ctx)
		go s.runKeepAlive(loopCtx)
		go s.runConfigPoll(loopCtx)
		err := s.runReader(ctx)
		cancelLoops()
		s.connected.Store(false)
		_ = s.transport.Close()
		s.publishConnStatus(events.ConnectionStateReconnecting, err)

		if !sleepWithContext(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

func (s *Service) runReader(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		readCtx, cancel := context.WithTimeout(ctx, s.readTimeout)
		payload, err := s.transport.ReadFrame(readCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				continue
			}

			return err
		}

		s.bus.Publish(events.TopicRawFrameIn, events.RawFrame{Hex: strings.ToUpper(hex.EncodeToString(payload)), Len: len(payload)})
		decoded, err := s.codec.DecodeInbound(payload)
		if err != nil {
			s.logger.Warn("decode inbound frame failed", "error", err)
			s.bus.Publish(events.TopicError, events.ErrorEvent{
				Component: "radio",
				Err:       err.Error(),
				At:        time.Now(),
			})

			continue
		}
		s.dispatch(ctx, decoded)
	}
}

func (s *Service) dispatch(ctx context.Context, decoded DecodedEvent) {
	s.bus.Publish(events.TopicRadioDecoded, decoded)

	if decoded.NodeUpdate != nil {
		s.bus.Publish(events.TopicNodeInfo, *decoded.NodeUpdate)
	}
	if decoded.Channel != nil {
		s.bus.Publish(events.TopicChannel, *decoded.Channel)
	}
	if decoded.ConfigSection != nil {
		s.bus.Publish(events.TopicConfigSection, decoded.ConfigSection)
	}
	if decoded.ModuleConfig != nil {
		s.bus.Publish(events.TopicModuleConfig, decoded.ModuleConfig)
	}
	if decoded.Metadata != nil {
		s.bus.Publish(events.TopicMetadata, *decoded.Metadata)
	}
	if decoded.Admin != nil {
		s.bus.Publish(events.TopicAdminMessage, *decoded.Admin)
	}
	if decoded.MQTTProxy != nil {
		s.bus.Publish(events.TopicMQTTProxyIn, decoded.MQTTProxy)
	}
	if decoded.StatusUpdate != nil {
		s.bus.Publish(events.TopicMessageStatus, *decoded.StatusUpdate)
	}
	if decoded.WantConfigReady {
		s.bus.Publish(events.TopicConfigReady, events.ConfigReady{MyNodeNum: s.codec.MyNodeNum(), At: time.Now()})
	}
	if decoded.TextMessage != nil {
		s.storeIncoming(ctx, *decoded.TextMessage)
	}
}

func (s *Service) storeIncoming(ctx context.Context, msg domain.Message) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	stored, added, err := s.sink.AddMessage(ctx, msg)
	if err != nil {
		s.logger.Error("persist incoming message failed", "error", err)

		return
	}
	if !added {
		s.logger.Debug("duplicate incoming message dropped", "packet_id", msg.PacketID)

		return
	}
	s.bus.Publish(events.TopicTextMessage, stored)
}

func (s *Service) runKeepAlive(ctx context.Context) {
	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload, err := s.codec.EncodeHeartbeat()
			if err != nil {
				continue
			}
			if err := s.writeFrame(ctx, payload); err != nil {
				s.logger.Debug("heartbeat write failed", "error", err)
			}
		}
	}
}

// runConfigPoll periodically re-requests the device config so drift made by
// other clients (phone app, web UI) converges into this session.
func (s *Service) runConfigPoll(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.pollingPaused() {
				continue
			}
			if err := s.requestConfig(ctx); err != nil {
				s.logger.Debug("config poll failed", "error", err)
			}
		}
	}
}

func (s *Service) runOutbox(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.outbox:
			res := s.handleSend(ctx, req)
			req.result <- res
			close(req.result)
		}
	}
}

func (s *Service) handleSend(ctx context.Context, req sendRequest) SendResult {
	enc, err := req.encode()
	if err != nil {
		return SendResult{Err: fmt.Errorf("encode outgoing frame: %w", err)}
	}

	var stored domain.Message
	if req.message != nil {
		msg := *req.message
		msg.PacketID = enc.PacketID
		var added bool
		stored, added, err = s.sink.AddMessage(ctx, msg)
		if err != nil {
			return SendResult{Err: fmt.Errorf("persist outgoing message: %w", err)}
		}
		if !added {
			// Duplicate send inside the dedup window is a silent no-op.
			return SendResult{Message: stored, PacketID: stored.PacketID}
		}
	}

	if err := s.writeFrame(ctx, enc.Payload); err != nil {
		if req.message != nil {
			// The frame never reached the device, so both delivery
			// tracks are dead on arrival.
			s.bus.Publish(events.TopicMessageStatus, StatusUpdate{
				PacketID:      enc.PacketID,
				Radio:         domain.RadioStatusFailed,
				Reason:        "transport write failed",
				HandoffFailed: true,
			})
		}

		return SendResult{Err: fmt.Errorf("send outgoing frame: %w", err)}
	}

	if req.message != nil {
		// Hand-off to the device succeeded: the radio track moves to
		// sent, meaning transmitted and awaiting confirmation.
		s.bus.Publish(events.TopicMessageStatus, StatusUpdate{
			PacketID: enc.PacketID,
			Radio:    domain.RadioStatusSent,
		})
		s.bus.Publish(events.TopicTextMessage, stored)
	}

	return SendResult{Message: stored, PacketID: enc.PacketID}
}

func (s *Service) requestConfig(ctx context.Context) error {
	payload, err := s.codec.EncodeWantConfig()
	if err != nil {
		return err
	}

	return s.writeFrame(ctx, payload)
}

func (s *Service) writeFrame(ctx context.Context, payload []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	if err := s.transport.WriteFrame(writeCtx, payload); err != nil {
		return err
	}
	s.bus.Publish(events.TopicRawFrameOut, events.RawFrame{Hex: strings.ToUpper(hex.EncodeToString(payload)), Len: len(payload)})

	return nil
}

func (s *Service) publishConnStatus(state events.ConnectionState, err error) {
	status := events.ConnStatus{
		State:         state,
		TransportName: s.transport.Name(),
		Timestamp:     time.Now(),
	}
	if err != nil {
		status.Err = err.Error()
	}
	s.bus.Publish(events.TopicConnStatus, status)
}

// AdminSend is a queued admin write. A zero To targets the local node.
type AdminSend struct {
	To      uint32
	Message *protocol.AdminMessage
}

func failSend(ch chan SendResult, err error) <-chan SendResult {
	ch <- SendResult{Err: err}
	close(ch)

	return ch
}

func nextBackoff(current time.Duration) time.Duration {
	if current >= 15*time.Second {
		return current
	}

	return current * 2
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
