package radio

import (
	"meshchat/internal/domain"
	"meshchat/internal/radio/protocol"
)

// Encoded is an outbound frame with the packet id the delivery tracker
// uses to correlate asynchronous ACKs.
type Encoded struct {
	Payload  []byte
	PacketID uint32
}

// StatusUpdate is a delivery outcome keyed by packet id. HandoffFailed
// marks a frame that never reached the device at all, which also dooms any
// MQTT relay that message was waiting on.
type StatusUpdate struct {
	PacketID      uint32
	Radio         domain.RadioStatus
	Reason        string
	HandoffFailed bool
}

// AdminEvent is a decoded ADMIN_APP payload with its correlation ids.
type AdminEvent struct {
	From      uint32
	To        uint32
	PacketID  uint32
	RequestID uint32
	Message   *protocol.AdminMessage
}

// DecodedEvent is a parsed inbound frame. Fields are nil/zero except the
// ones the frame actually carried.
type DecodedEvent struct {
	Raw              []byte
	MyNodeNum        uint32
	NodeUpdate       *domain.NodeInfo
	Channel          *domain.Channel
	ConfigSection    *protocol.Config
	ModuleConfig     *protocol.ModuleConfig
	Metadata         *domain.DeviceMetadata
	MQTTProxy        *protocol.MQTTProxyMessage
	TextMessage      *domain.Message
	StatusUpdate     *StatusUpdate
	Admin            *AdminEvent
	ConfigCompleteID uint32
	WantConfigReady  bool
	Rebooted         bool
}

// Codec translates between domain intents/events and device wire frames.
type Codec interface {
	EncodeTextMessage(text string, to, from, channel uint32, wantAck bool) (Encoded, error)
	EncodePositionMessage(loc domain.Location, to, from, channel uint32, wantAck bool) (Encoded, error)
	EncodeWantConfig() ([]byte, error)
	EncodeHeartbeat() ([]byte, error)
	EncodeAdminMessage(admin *protocol.AdminMessage, to, from uint32) (Encoded, error)
	EncodeMQTTProxyFrame(topic string, data []byte, retained bool) ([]byte, error)
	DecodeInbound(payload []byte) (DecodedEvent, error)
	MyNodeNum() uint32
}
