package domain

import "testing"

func TestNewOutgoingStatus(t *testing.T) {
	radio, mqtt := NewOutgoingStatus(true)
	if radio != RadioStatusPending || mqtt != MQTTStatusPending {
		t.Fatalf("uplinked channel: got %v/%v", radio, mqtt)
	}

	radio, mqtt = NewOutgoingStatus(false)
	if radio != RadioStatusPending || mqtt != MQTTStatusNotApplicable {
		t.Fatalf("no uplink: got %v/%v", radio, mqtt)
	}
}

func TestShouldTransitionRadioStatus(t *testing.T) {
	cases := []struct {
		name    string
		current RadioStatus
		next    RadioStatus
		want    bool
	}{
		{"pending to sent", RadioStatusPending, RadioStatusSent, true},
		{"sent to delivered", RadioStatusSent, RadioStatusDelivered, true},
		{"sent to failed", RadioStatusSent, RadioStatusFailed, true},
		{"same state", RadioStatusSent, RadioStatusSent, false},
		{"unknown next", RadioStatusSent, RadioStatusUnknown, false},
		{"delivered back to sent", RadioStatusDelivered, RadioStatusSent, false},
		{"failed back to pending", RadioStatusFailed, RadioStatusPending, false},
		{"delivered to failed", RadioStatusDelivered, RadioStatusFailed, true},
	}
	for _, tc := range cases {
		if got := ShouldTransitionRadioStatus(tc.current, tc.next); got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestShouldTransitionMQTTStatus(t *testing.T) {
	if ShouldTransitionMQTTStatus(MQTTStatusNotApplicable, MQTTStatusPending) {
		t.Fatalf("not_applicable must not regress to pending")
	}
	if !ShouldTransitionMQTTStatus(MQTTStatusPending, MQTTStatusSent) {
		t.Fatalf("pending to sent must transition")
	}
	if !ShouldTransitionMQTTStatus(MQTTStatusPending, MQTTStatusFailed) {
		t.Fatalf("pending to failed must transition")
	}
	if ShouldTransitionMQTTStatus(MQTTStatusSent, MQTTStatusPending) {
		t.Fatalf("sent must not regress to pending")
	}
}

func TestEffectiveStatusPrefersDualTrack(t *testing.T) {
	m := Message{RadioStatus: RadioStatusDelivered, Status: LegacyStatusPending}
	if got := EffectiveStatus(m); got != LegacyStatusDelivered {
		t.Fatalf("dual track ignored: %v", got)
	}
}

func TestEffectiveStatusLegacyFallback(t *testing.T) {
	// Rows persisted before dual tracking carry only the legacy value.
	m := Message{Status: LegacyStatusSent}
	if got := EffectiveStatus(m); got != LegacyStatusSent {
		t.Fatalf("legacy fallback broken: %v", got)
	}
}

func TestLegacyForRadio(t *testing.T) {
	pairs := map[RadioStatus]LegacyStatus{
		RadioStatusPending:   LegacyStatusPending,
		RadioStatusSent:      LegacyStatusSent,
		RadioStatusDelivered: LegacyStatusDelivered,
		RadioStatusFailed:    LegacyStatusFailed,
		RadioStatusUnknown:   LegacyStatusUnknown,
	}
	for radio, want := range pairs {
		if got := LegacyForRadio(radio); got != want {
			t.Fatalf("LegacyForRadio(%v) = %v, want %v", radio, got, want)
		}
	}
}
