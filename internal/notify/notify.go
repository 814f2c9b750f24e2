// Package notify raises desktop notifications for incoming chat messages.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gen2brain/beeep"

	"meshchat/internal/bus"
	"meshchat/internal/domain"
	"meshchat/internal/events"
)

const maxBodyRunes = 120

// Payload is a generic user-facing notification payload.
type Payload struct {
	Title   string
	Content string
}

// Sender sends notifications using a platform-specific backend.
type Sender interface {
	Send(payload Payload)
}

// NodeDirectory resolves node numbers to display names for DM titles.
type NodeDirectory interface {
	Get(ctx context.Context, nodeNum uint32) (domain.NodeInfo, error)
}

// ChannelDirectory resolves channel indexes to channel names.
type ChannelDirectory interface {
	Channel(index int) (domain.Channel, bool)
}

// Service listens to bus events and emits notifications for incoming
// messages. Outgoing messages and non-text payloads stay silent.
type Service struct {
	logger   *slog.Logger
	bus      bus.MessageBus
	sender   Sender
	nodes    NodeDirectory
	channels ChannelDirectory
	enabled  func() bool
}

func NewService(
	logger *slog.Logger,
	b bus.MessageBus,
	sender Sender,
	nodes NodeDirectory,
	channels ChannelDirectory,
	enabled func() bool,
) *Service {
	if enabled == nil {
		enabled = func() bool { return true }
	}

	return &Service{
		logger:   logger,
		bus:      b,
		sender:   sender,
		nodes:    nodes,
		channels: channels,
		enabled:  enabled,
	}
}

// Run consumes message events until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	sub := s.bus.Subscribe(events.TopicTextMessage)
	defer s.bus.Unsubscribe(sub, events.TopicTextMessage)

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-sub:
			if !ok {
				return
			}
			msg, valid := raw.(domain.Message)
			if !valid {
				continue
			}
			s.handleMessage(ctx, msg)
		}
	}
}

func (s *Service) handleMessage(ctx context.Context, msg domain.Message) {
	if msg.Outgoing || msg.Type != domain.MessageTypeText {
		return
	}
	if !s.enabled() {
		return
	}

	payload := Payload{
		Title:   s.title(ctx, msg),
		Content: truncateBody(msg.Text),
	}
	s.sender.Send(payload)
	s.logger.Debug("notification sent", "from", msg.From, "title", payload.Title)
}

// title names the conversation: the channel name for broadcasts, the
// sender's long name (or hex num) for DMs.
func (s *Service) title(ctx context.Context, msg domain.Message) string {
	if msg.IsChannelMessage() && msg.Channel != nil {
		if s.channels != nil {
			if c, ok := s.channels.Channel(*msg.Channel); ok && c.Name != "" {
				return c.Name
			}
		}

		return fmt.Sprintf("Channel %d", *msg.Channel)
	}

	if s.nodes != nil {
		if node, err := s.nodes.Get(ctx, msg.From); err == nil {
			if name := strings.TrimSpace(node.LongName); name != "" {
				return name
			}
		}
	}

	return fmt.Sprintf("!%08x", msg.From)
}

func truncateBody(text string) string {
	runes := []rune(text)
	if len(runes) <= maxBodyRunes {
		return text
	}

	return string(runes[:maxBodyRunes-1]) + "…"
}

// BeeepSender delivers notifications through the OS notification daemon.
type BeeepSender struct {
	logger  *slog.Logger
	appName string
}

func NewBeeepSender(logger *slog.Logger, appName string) *BeeepSender {
	beeep.AppName = appName

	return &BeeepSender{logger: logger, appName: appName}
}

func (s *BeeepSender) Send(payload Payload) {
	if err := beeep.Notify(payload.Title, payload.Content, ""); err != nil {
		s.logger.Warn("desktop notification failed", "error", err)
	}
}
