// Package deviceconfig converges device-side configuration to desired state
// with the minimum number of admin writes. Every write may trigger a
// firmware restart and always costs a round trip, so the reconciler diffs
// desired state against the last device-reported snapshot before touching
// the device.
package deviceconfig

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"meshchat/internal/bus"
	"meshchat/internal/domain"
	"meshchat/internal/events"
	"meshchat/internal/radio"
	"meshchat/internal/radio/protocol"
)

// ErrValidation marks desired-state input the reconciler refuses to write.
var ErrValidation = errors.New("invalid configuration")

const (
	// Settle delays after an MQTT module write. The device may reboot its
	// network stack, so the reconciler waits before trusting the link.
	mqttSettleDelay      = 3000 * time.Millisecond
	mqttExtraSettleDelay = 2000 * time.Millisecond

	shortNameMaxRunes = 4
)

// SyncState tracks one config section's reconciliation lifecycle.
type SyncState int

const (
	SyncStateUnknown SyncState = iota
	SyncStateSynced
	SyncStatePendingWrite
	SyncStateFailed
)

func (s SyncState) String() string {
	switch s {
	case SyncStateSynced:
		return "synced"
	case SyncStatePendingWrite:
		return "pending_write"
	case SyncStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Section names the config sections the reconciler tracks.
type Section string

const (
	SectionOwner Section = "owner"
	SectionMQTT  Section = "mqtt"
)

// AdminSender hands admin frames to the device through the session outbox.
type AdminSender interface {
	SendAdmin(send radio.AdminSend) <-chan radio.SendResult
}

// Poller is the periodic config poll the reconciler pauses around MQTT
// writes.
type Poller interface {
	PausePolling()
	ResumePolling()
}

type Reconciler struct {
	logger *slog.Logger
	bus    bus.MessageBus
	sender AdminSender
	poller Poller
	// connected probes the device link; sleep is injectable for tests.
	connected func() bool
	sleep     func(time.Duration)

	mu       sync.Mutex
	owner    *domain.Owner
	mqtt     *domain.MQTTSettings
	metadata *domain.DeviceMetadata
	states   map[Section]SyncState
}

func NewReconciler(logger *slog.Logger, b bus.MessageBus, sender AdminSender, poller Poller, connected func() bool) *Reconciler {
	return &Reconciler{
		logger:    logger,
		bus:       b,
		sender:    sender,
		poller:    poller,
		connected: connected,
		sleep:     time.Sleep,
		states:    make(map[Section]SyncState),
	}
}

// Run consumes device-reported config snapshots until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	moduleCh := r.bus.Subscribe(events.TopicModuleConfig)
	adminCh := r.bus.Subscribe(events.TopicAdminMessage)
	metaCh := r.bus.Subscribe(events.TopicMetadata)
	defer r.bus.Unsubscribe(moduleCh, events.TopicModuleConfig)
	defer r.bus.Unsubscribe(adminCh, events.TopicAdminMessage)
	defer r.bus.Unsubscribe(metaCh, events.TopicMetadata)

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-moduleCh:
			if !ok {
				return
			}
			if cfg, valid := raw.(*protocol.ModuleConfig); valid {
				r.absorbModuleConfig(cfg)
			}
		case raw, ok := <-adminCh:
			if !ok {
				return
			}
			if ev, valid := raw.(radio.AdminEvent); valid {
				r.absorbAdminResponse(ev)
			}
		case raw, ok := <-metaCh:
			if !ok {
				return
			}
			if meta, valid := raw.(domain.DeviceMetadata); valid {
				r.mu.Lock()
				snapshot := meta
				r.metadata = &snapshot
				r.mu.Unlock()
			}
		}
	}
}

func (r *Reconciler) absorbModuleConfig(cfg *protocol.ModuleConfig) {
	if cfg == nil || cfg.MQTT == nil {
		return
	}
	settings := mqttSettingsFromWire(cfg.MQTT)

	r.mu.Lock()
	// A write in flight keeps its pending state; the snapshot still
	// updates so the post-write comparison sees fresh truth.
	r.mqtt = &settings
	if r.states[SectionMQTT] != SyncStatePendingWrite {
		r.states[SectionMQTT] = SyncStateSynced
	}
	r.mu.Unlock()
}

func (r *Reconciler) absorbAdminResponse(ev radio.AdminEvent) {
	if ev.Message == nil {
		return
	}
	switch {
	case ev.Message.GetOwnerResponse != nil:
		user := ev.Message.GetOwnerResponse
		owner := domain.Owner{
			LongName:  strings.TrimSpace(user.LongName),
			ShortName: strings.TrimSpace(user.ShortName),
		}
		r.mu.Lock()
		r.owner = &owner
		if r.states[SectionOwner] != SyncStatePendingWrite {
			r.states[SectionOwner] = SyncStateSynced
		}
		r.mu.Unlock()
	case ev.Message.GetModuleConfigResponse != nil:
		r.absorbModuleConfig(ev.Message.GetModuleConfigResponse)
	}
}

// Owner returns the last device-reported identity, if any.
func (r *Reconciler) Owner() (domain.Owner, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owner == nil {
		return domain.Owner{}, false
	}

	return *r.owner, true
}

// MQTTSettings returns the last device-reported MQTT section, if any.
func (r *Reconciler) MQTTSettings() (domain.MQTTSettings, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mqtt == nil {
		return domain.MQTTSettings{}, false
	}

	return *r.mqtt, true
}

// SectionState reports where a section stands in the sync lifecycle.
func (r *Reconciler) SectionState(section Section) SyncState {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.states[section]
}

// SetOwner writes the device identity unless it already matches. ShortName
// is normalized to at most 4 characters. The local cache updates
// optimistically; the device's next node-info echo confirms it.
func (r *Reconciler) SetOwner(ctx context.Context, longName, shortName string, force bool) error {
	longName = strings.TrimSpace(longName)
	shortName = truncateRunes(strings.TrimSpace(shortName), shortNameMaxRunes)
	if longName == "" {
		return fmt.Errorf("%w: long name is empty", ErrValidation)
	}

	r.mu.Lock()
	if !force && r.owner != nil && r.owner.LongName == longName && r.owner.ShortName == shortName {
		r.mu.Unlock()
		r.logger.Debug("owner already matches, skipping write", "long_name", longName)

		return nil
	}
	r.states[SectionOwner] = SyncStatePendingWrite
	r.mu.Unlock()

	admin := &protocol.AdminMessage{
		SetOwner: &protocol.User{LongName: longName, ShortName: shortName},
	}
	if err := r.sendAdmin(ctx, admin); err != nil {
		r.setState(SectionOwner, SyncStateFailed)

		return fmt.Errorf("set owner: %w", err)
	}

	r.mu.Lock()
	r.owner = &domain.Owner{LongName: longName, ShortName: shortName}
	r.states[SectionOwner] = SyncStateSynced
	r.mu.Unlock()
	r.logger.Info("owner written", "long_name", longName, "short_name", shortName)

	return nil
}

// SetMQTTConfig writes the MQTT module section unless all user-meaningful
// fields already match. A real write pauses the config poll and runs the
// settle sequence, since the device may reboot its network stack while
// applying the change.
func (r *Reconciler) SetMQTTConfig(ctx context.Context, settings domain.MQTTSettings, force bool) error {
	if settings.Enabled && strings.TrimSpace(settings.Address) == "" {
		return fmt.Errorf("%w: mqtt enabled without an address", ErrValidation)
	}

	r.mu.Lock()
	if !force && r.mqtt != nil && mqttSettingsEqual(*r.mqtt, settings) {
		r.mu.Unlock()
		r.logger.Debug("mqtt config already matches, skipping write")

		return nil
	}
	r.states[SectionMQTT] = SyncStatePendingWrite
	r.mu.Unlock()

	r.poller.PausePolling()

	err := r.writeMQTT(ctx, settings)
	if err != nil {
		r.setState(SectionMQTT, SyncStateFailed)
		r.poller.ResumePolling()

		return err
	}

	r.sleep(mqttSettleDelay)
	if !r.connected() {
		r.logger.Info("device dropped after mqtt write, extending settle wait")
		r.sleep(mqttExtraSettleDelay)
	}
	if r.connected() {
		r.poller.ResumePolling()
	} else {
		// The reconnect path re-requests config, which resumes the
		// snapshot flow; polling stays off until then.
		r.logger.Warn("device still disconnected after mqtt settle sequence")
	}

	r.mu.Lock()
	snapshot := settings
	r.mqtt = &snapshot
	r.states[SectionMQTT] = SyncStateSynced
	r.mu.Unlock()
	r.logger.Info("mqtt config written", "enabled", settings.Enabled, "address", settings.Address)

	return nil
}

func (r *Reconciler) writeMQTT(ctx context.Context, settings domain.MQTTSettings) error {
	begin := &protocol.AdminMessage{BeginEditSettings: true}
	if err := r.sendAdmin(ctx, begin); err != nil {
		return fmt.Errorf("begin edit settings: %w", err)
	}

	set := &protocol.AdminMessage{
		SetModuleConfig: &protocol.ModuleConfig{
			MQTT: &protocol.MQTTConfig{
				Enabled:              settings.Enabled,
				Address:              settings.Address,
				Username:             settings.Username,
				Password:             settings.Password,
				EncryptionEnabled:    settings.EncryptionEnabled,
				TLSEnabled:           settings.TLSEnabled,
				Root:                 settings.Root,
				ProxyToClientEnabled: settings.ProxyToClientEnabled,
			},
		},
	}
	if err := r.sendAdmin(ctx, set); err != nil {
		return fmt.Errorf("set mqtt module config: %w", err)
	}

	commit := &protocol.AdminMessage{CommitEditSettings: true}
	if err := r.sendAdmin(ctx, commit); err != nil {
		return fmt.Errorf("commit edit settings: %w", err)
	}

	return nil
}

func (r *Reconciler) sendAdmin(ctx context.Context, admin *protocol.AdminMessage) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-r.sender.SendAdmin(radio.AdminSend{Message: admin}):
		return res.Err
	}
}

func (r *Reconciler) setState(section Section, state SyncState) {
	r.mu.Lock()
	r.states[section] = state
	r.mu.Unlock()
}

// GenerateShortName derives a 4-character short name from a long name: the
// initials of up to the first 4 words when the name has several, otherwise
// its first 4 characters, uppercased either way.
func GenerateShortName(longName string) string {
	words := strings.Fields(longName)
	if len(words) >= 2 {
		if len(words) > shortNameMaxRunes {
			words = words[:shortNameMaxRunes]
		}
		var b strings.Builder
		for _, w := range words {
			first, _ := utf8.DecodeRuneInString(w)
			b.WriteRune(first)
		}

		return strings.ToUpper(b.String())
	}

	return strings.ToUpper(truncateRunes(strings.TrimSpace(longName), shortNameMaxRunes))
}

func mqttSettingsEqual(a, b domain.MQTTSettings) bool {
	return a.Enabled == b.Enabled &&
		a.Address == b.Address &&
		a.Username == b.Username &&
		a.Password == b.Password &&
		a.EncryptionEnabled == b.EncryptionEnabled &&
		a.TLSEnabled == b.TLSEnabled &&
		a.ProxyToClientEnabled == b.ProxyToClientEnabled
}

func mqttSettingsFromWire(cfg *protocol.MQTTConfig) domain.MQTTSettings {
	return domain.MQTTSettings{
		Enabled:              cfg.Enabled,
		Address:              cfg.Address,
		Username:             cfg.Username,
		Password:             cfg.Password,
		EncryptionEnabled:    cfg.EncryptionEnabled,
		TLSEnabled:           cfg.TLSEnabled,
		Root:                 cfg.Root,
		ProxyToClientEnabled: cfg.ProxyToClientEnabled,
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)

	return string(runes[:n])
}
