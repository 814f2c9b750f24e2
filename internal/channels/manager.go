// Package channels manages the device's 8 channel slots: admin writes,
// slot allocation for scanned QR channels, pre-shared key generation and
// the meshtastic.org share-link format.
package channels

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"meshchat/internal/bus"
	"meshchat/internal/domain"
	"meshchat/internal/events"
	"meshchat/internal/radio"
	"meshchat/internal/radio/protocol"
)

const (
	maxChannelIndex = 7
	channelURLBase  = "https://meshtastic.org/e/#"

	// Consecutive admin writes saturate the device's admin queue, so bulk
	// updates space themselves out.
	interWriteDelay = 500 * time.Millisecond

	// ensureChannelSettings forces at least this location precision so
	// uplinked positions stay usable.
	minPositionPrecision = 32
)

var (
	// ErrNoFreeSlot means all secondary slots 1..7 are occupied.
	ErrNoFreeSlot = errors.New("no available channel slot")
	// ErrPrimaryChannel guards slot 0, which can never be disabled.
	ErrPrimaryChannel = errors.New("primary channel cannot be deleted")
)

// AdminSender hands admin frames to the device through the session outbox.
type AdminSender interface {
	SendAdmin(send radio.AdminSend) <-chan radio.SendResult
}

type Manager struct {
	logger *slog.Logger
	bus    bus.MessageBus
	sender AdminSender
	sleep  func(time.Duration)

	mu    sync.Mutex
	slots map[int]domain.Channel
}

func NewManager(logger *slog.Logger, b bus.MessageBus, sender AdminSender) *Manager {
	return &Manager{
		logger: logger,
		bus:    b,
		sender: sender,
		sleep:  time.Sleep,
		slots:  make(map[int]domain.Channel),
	}
}

// Run absorbs device-reported channel descriptors until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ch := m.bus.Subscribe(events.TopicChannel)
	defer m.bus.Unsubscribe(ch, events.TopicChannel)

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			if channel, valid := raw.(domain.Channel); valid {
				m.absorb(channel)
			}
		}
	}
}

func (m *Manager) absorb(channel domain.Channel) {
	if channel.Index < 0 || channel.Index > maxChannelIndex {
		return
	}
	m.mu.Lock()
	m.slots[channel.Index] = channel
	m.mu.Unlock()
}

// Channels returns the current slot cache ordered by index.
func (m *Manager) Channels() []domain.Channel {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Channel, 0, len(m.slots))
	for i := 0; i <= maxChannelIndex; i++ {
		if c, ok := m.slots[i]; ok {
			out = append(out, c)
		}
	}

	return out
}

// Channel returns one slot from the cache.
func (m *Manager) Channel(index int) (domain.Channel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.slots[index]

	return c, ok
}

// UplinkEnabled reports whether a channel slot relays to MQTT. Unknown
// slots count as no uplink.
func (m *Manager) UplinkEnabled(index int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.slots[index].UplinkEnabled
}

// SetChannel writes one channel slot and optimistically updates the local
// cache. The true state is confirmed by the device's next config replay.
func (m *Manager) SetChannel(ctx context.Context, channel domain.Channel) error {
	if channel.Index < 0 || channel.Index > maxChannelIndex {
		return fmt.Errorf("channel index %d out of range", channel.Index)
	}

	if err := m.sendAdmin(ctx, &protocol.AdminMessage{SetChannel: channelToWire(channel)}); err != nil {
		return fmt.Errorf("set channel %d: %w", channel.Index, err)
	}

	m.mu.Lock()
	if channel.Role == domain.ChannelRoleDisabled {
		delete(m.slots, channel.Index)
	} else {
		m.slots[channel.Index] = channel
	}
	m.mu.Unlock()
	m.logger.Info("channel written", "index", channel.Index, "name", channel.Name, "role", channel.Role)

	return nil
}

// AddChannelFromQR places a scanned channel into the first free secondary
// slot (1..7, ascending; a slot holding a disabled channel counts as free).
// Slot 0 is reserved for the primary channel and never eligible.
func (m *Manager) AddChannelFromQR(ctx context.Context, name string, psk []byte, uplinkEnabled, downlinkEnabled bool) (domain.Channel, error) {
	m.mu.Lock()
	slot := -1
	for i := 1; i <= maxChannelIndex; i++ {
		existing, ok := m.slots[i]
		if !ok || existing.Role == domain.ChannelRoleDisabled {
			slot = i

			break
		}
	}
	m.mu.Unlock()
	if slot == -1 {
		return domain.Channel{}, ErrNoFreeSlot
	}

	channel := domain.Channel{
		Index:           slot,
		Name:            strings.TrimSpace(name),
		Role:            domain.ChannelRoleSecondary,
		PSK:             psk,
		UplinkEnabled:   uplinkEnabled,
		DownlinkEnabled: downlinkEnabled,
	}
	if err := m.SetChannel(ctx, channel); err != nil {
		return domain.Channel{}, err
	}

	return channel, nil
}

// DeleteChannel disables a secondary slot. Slot 0 always fails without
// issuing any write.
func (m *Manager) DeleteChannel(ctx context.Context, index int) error {
	if index == 0 {
		return ErrPrimaryChannel
	}

	return m.SetChannel(ctx, domain.Channel{Index: index, Role: domain.ChannelRoleDisabled})
}

// UpdateChannelSettings rewrites a slot's relay/precision flags while
// preserving its name, role and key.
func (m *Manager) UpdateChannelSettings(ctx context.Context, channel domain.Channel, uplinkEnabled, downlinkEnabled bool, positionPrecision uint32) error {
	channel.UplinkEnabled = uplinkEnabled
	channel.DownlinkEnabled = downlinkEnabled
	channel.PositionPrecision = positionPrecision

	return m.SetChannel(ctx, channel)
}

// EnsureChannelSettings forces uplink, downlink and a usable position
// precision on every active channel that lacks them, pacing writes so the
// device's admin queue keeps up.
func (m *Manager) EnsureChannelSettings(ctx context.Context) error {
	needsWrite := make([]domain.Channel, 0)
	for _, c := range m.Channels() {
		if c.Role == domain.ChannelRoleDisabled {
			continue
		}
		if c.UplinkEnabled && c.DownlinkEnabled && c.PositionPrecision >= minPositionPrecision {
			continue
		}
		needsWrite = append(needsWrite, c)
	}

	for i, c := range needsWrite {
		if i > 0 {
			m.sleep(interWriteDelay)
		}
		if err := m.UpdateChannelSettings(ctx, c, true, true, minPositionPrecision); err != nil {
			return err
		}
	}

	return nil
}

// GeneratePSK returns a uniform random pre-shared key of 16 or 32 bytes.
func GeneratePSK(length int) ([]byte, error) {
	if length != 16 && length != 32 {
		return nil, fmt.Errorf("psk length must be 16 or 32 bytes, got %d", length)
	}
	key := make([]byte, length)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate psk: %w", err)
	}

	return key, nil
}

// ChannelURL renders the meshtastic.org share link for one channel: a
// single-channel channel-set, base64url-encoded without padding.
func ChannelURL(channel domain.Channel) string {
	set := &protocol.ChannelSet{Settings: []*protocol.ChannelSettings{{
		Name: channel.Name,
		PSK:  channel.PSK,
	}}}

	return channelURLBase + base64.RawURLEncoding.EncodeToString(set.Marshal())
}

// ParseChannelURL decodes a share link back into name and key. Links from
// other clients may carry padding or the standard alphabet; both are
// normalized before decoding.
func ParseChannelURL(link string) (name string, psk []byte, err error) {
	payload, ok := strings.CutPrefix(strings.TrimSpace(link), channelURLBase)
	if !ok {
		return "", nil, fmt.Errorf("not a channel link: %q", link)
	}
	payload = strings.TrimRight(payload, "=")
	payload = strings.ReplaceAll(payload, "+", "-")
	payload = strings.ReplaceAll(payload, "/", "_")

	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode channel link: %w", err)
	}
	set, err := protocol.UnmarshalChannelSet(raw)
	if err != nil {
		return "", nil, fmt.Errorf("parse channel link: %w", err)
	}
	if len(set.Settings) == 0 {
		return "", nil, errors.New("channel link carries no channel")
	}

	return set.Settings[0].Name, set.Settings[0].PSK, nil
}

func (m *Manager) sendAdmin(ctx context.Context, admin *protocol.AdminMessage) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-m.sender.SendAdmin(radio.AdminSend{Message: admin}):
		return res.Err
	}
}

func channelToWire(channel domain.Channel) *protocol.Channel {
	wire := &protocol.Channel{
		Index: int32(channel.Index),
		Role:  uint32(channel.Role),
		Settings: &protocol.ChannelSettings{
			Name:            channel.Name,
			PSK:             channel.PSK,
			UplinkEnabled:   channel.UplinkEnabled,
			DownlinkEnabled: channel.DownlinkEnabled,
		},
	}
	if channel.PositionPrecision != 0 {
		wire.Settings.Module = &protocol.ModuleSettings{PositionPrecision: channel.PositionPrecision}
	}

	return wire
}
