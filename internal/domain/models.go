package domain

import "time"

// BroadcastNodeNum is the destination of channel (broadcast) messages.
const BroadcastNodeNum = ^uint32(0)

type MessageType int

const (
	MessageTypeText MessageType = iota + 1
	MessageTypeLocation
)

// Location is the payload of a location-typed message. Altitude and
// CapturedAt stay nil when the sender did not report them.
type Location struct {
	Latitude   float64
	Longitude  float64
	Altitude   *int
	CapturedAt *time.Time
}

// Message is one chat message. Immutable after creation except for the
// status fields, which only the delivery tracker mutates.
type Message struct {
	ID       string
	PacketID uint32
	From     uint32
	To       uint32
	Text     string
	At       time.Time
	Outgoing bool
	Channel  *int
	Type     MessageType
	Location *Location

	RadioStatus RadioStatus
	MQTTStatus  MQTTStatus
	// Status is the legacy single-value field kept readable for rows
	// persisted before dual-status tracking. See EffectiveStatus.
	Status LegacyStatus
}

// IsChannelMessage reports whether the message belongs to a channel
// conversation rather than a DM.
func (m Message) IsChannelMessage() bool {
	return m.To == BroadcastNodeNum
}

type ChannelRole int

const (
	ChannelRoleDisabled ChannelRole = iota
	ChannelRolePrimary
	ChannelRoleSecondary
)

// Channel mirrors one device channel slot (index 0..7). Index 0 is always
// the primary channel.
type Channel struct {
	Index             int
	Name              string
	Role              ChannelRole
	PSK               []byte
	UplinkEnabled     bool
	DownlinkEnabled   bool
	PositionPrecision uint32
}

// HasEncryption holds iff the channel carries a non-empty pre-shared key.
func (c Channel) HasEncryption() bool {
	return len(c.PSK) > 0
}

// NodeInfo is a remote mesh participant's last-known snapshot, upserted on
// every decoded node-info, position or telemetry packet. NodeNum is the
// identity key; the local node is the entry equal to the session's own num.
type NodeInfo struct {
	NodeNum   uint32
	LongName  string
	ShortName string
	HwModel   string
	LastHeard time.Time
	Latitude  *float64
	Longitude *float64
	SNR       *float64
	UpdatedAt time.Time
}

// MQTTSettings mirrors the device's MQTT module config section.
type MQTTSettings struct {
	Enabled              bool
	Address              string
	Username             string
	Password             string
	EncryptionEnabled    bool
	TLSEnabled           bool
	Root                 string
	ProxyToClientEnabled bool
}

// Owner is the device's user identity.
type Owner struct {
	LongName  string
	ShortName string
}

// DeviceMetadata mirrors the device-reported metadata section.
type DeviceMetadata struct {
	FirmwareVersion string
	HwModel         string
	HasWifi         bool
	HasBluetooth    bool
}
