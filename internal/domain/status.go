package domain

// RadioStatus tracks delivery over the LoRa mesh itself.
type RadioStatus int

const (
	RadioStatusUnknown RadioStatus = iota
	RadioStatusPending
	RadioStatusSent
	RadioStatusDelivered
	RadioStatusFailed
)

// MQTTStatus tracks relay through the device's MQTT uplink bridge.
type MQTTStatus int

const (
	MQTTStatusUnknown MQTTStatus = iota
	MQTTStatusNotApplicable
	MQTTStatusPending
	MQTTStatusSent
	MQTTStatusFailed
)

// LegacyStatus is the pre-dual-tracking single status value. New rows still
// record it so older readers keep working.
type LegacyStatus int

const (
	LegacyStatusUnknown LegacyStatus = iota
	LegacyStatusPending
	LegacyStatusSent
	LegacyStatusDelivered
	LegacyStatusFailed
)

// NewOutgoingStatus returns the initial status pair for a freshly created
// outgoing message. The MQTT track only participates when the destination
// channel has uplink enabled.
func NewOutgoingStatus(uplinkEnabled bool) (RadioStatus, MQTTStatus) {
	if uplinkEnabled {
		return RadioStatusPending, MQTTStatusPending
	}

	return RadioStatusPending, MQTTStatusNotApplicable
}

func (s RadioStatus) Terminal() bool {
	return s == RadioStatusDelivered || s == RadioStatusFailed
}

func (s MQTTStatus) Terminal() bool {
	return s == MQTTStatusSent || s == MQTTStatusFailed || s == MQTTStatusNotApplicable
}

// ShouldTransitionRadioStatus reports whether a stored radio status may be
// replaced by next. Terminal states are never reverted by stale non-terminal
// updates arriving out of order.
func ShouldTransitionRadioStatus(current, next RadioStatus) bool {
	if next == RadioStatusUnknown || current == next {
		return false
	}
	if current.Terminal() && !next.Terminal() {
		return false
	}

	return true
}

// ShouldTransitionMQTTStatus mirrors ShouldTransitionRadioStatus for the
// MQTT relay track.
func ShouldTransitionMQTTStatus(current, next MQTTStatus) bool {
	if next == MQTTStatusUnknown || current == next {
		return false
	}
	if current.Terminal() && !next.Terminal() {
		return false
	}

	return true
}

// EffectiveStatus reconciles the dual status pair into the single
// user-facing value. Rows persisted before dual tracking have only the
// legacy field set, so it is the fallback.
func EffectiveStatus(m Message) LegacyStatus {
	if m.RadioStatus == RadioStatusUnknown {
		return m.Status
	}

	switch m.RadioStatus {
	case RadioStatusFailed:
		return LegacyStatusFailed
	case RadioStatusDelivered:
		return LegacyStatusDelivered
	case RadioStatusSent:
		return LegacyStatusSent
	default:
		return LegacyStatusPending
	}
}

// LegacyForRadio maps a radio track value onto the legacy scale, used to
// keep the legacy column in step with dual-status writes.
func LegacyForRadio(s RadioStatus) LegacyStatus {
	switch s {
	case RadioStatusPending:
		return LegacyStatusPending
	case RadioStatusSent:
		return LegacyStatusSent
	case RadioStatusDelivered:
		return LegacyStatusDelivered
	case RadioStatusFailed:
		return LegacyStatusFailed
	default:
		return LegacyStatusUnknown
	}
}
