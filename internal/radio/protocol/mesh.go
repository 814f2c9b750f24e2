package protocol

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Port numbers identify the payload type of a decoded Data payload.
type PortNum uint32

const (
	PortUnknown     PortNum = 0
	PortTextMessage PortNum = 1
	PortPosition    PortNum = 3
	PortNodeInfo    PortNum = 4
	PortRouting     PortNum = 5
	PortAdmin       PortNum = 6
	PortTelemetry   PortNum = 67
	PortTraceroute  PortNum = 70
)

// MeshPacket priorities used by this client.
const (
	PriorityDefault  uint32 = 0
	PriorityReliable uint32 = 70
	PriorityAck      uint32 = 120
)

// Broadcast is the node number addressing every node on a channel.
const Broadcast = ^uint32(0)

// Routing error reasons (Routing.Error). Zero means delivered clean.
type RoutingError int32

const (
	RoutingNone          RoutingError = 0
	RoutingNoRoute       RoutingError = 1
	RoutingGotNak        RoutingError = 2
	RoutingTimeout       RoutingError = 3
	RoutingNoInterface   RoutingError = 4
	RoutingMaxRetransmit RoutingError = 5
	RoutingNoChannel     RoutingError = 6
	RoutingTooLarge      RoutingError = 7
	RoutingNoResponse    RoutingError = 8
)

// Data is the decoded payload variant of a MeshPacket.
type Data struct {
	Portnum      PortNum
	Payload      []byte
	WantResponse bool
	Dest         uint32
	Source       uint32
	RequestID    uint32
	ReplyID      uint32
}

// MeshPacket is the protocol's basic routable unit.
type MeshPacket struct {
	From     uint32
	To       uint32
	Channel  uint32
	Decoded  *Data
	ID       uint32
	RxTime   uint32
	RxSnr    float32
	HopLimit uint32
	WantAck  bool
	Priority uint32
	RxRssi   int32
	ViaMQTT  bool
	HopStart uint32
}

// Position carries fixed-point coordinates at 1e7 scale.
type Position struct {
	LatitudeI     int32
	LongitudeI    int32
	Altitude      int32
	HasAltitude   bool
	Time          uint32
	PrecisionBits uint32
}

// User is a node's identity record.
type User struct {
	ID         string
	LongName   string
	ShortName  string
	HwModel    uint32
	IsLicensed bool
	Role       uint32
}

// Routing is the ROUTING_APP payload carrying ACK/NACK outcomes.
type Routing struct {
	ErrorReason RoutingError
}

// QueueStatus reports the device's outbound queue state for a packet.
type QueueStatus struct {
	Res          int32
	Free         uint32
	Maxlen       uint32
	MeshPacketID uint32
}

// MyNodeInfo identifies the connected device itself.
type MyNodeInfo struct {
	MyNodeNum uint32
}

// NodeInfo is the device's stored snapshot of a remote node.
type NodeInfo struct {
	Num       uint32
	User      *User
	Position  *Position
	Snr       float32
	LastHeard uint32
	Channel   uint32
}

// DeviceMetadata describes the connected device's firmware capabilities.
type DeviceMetadata struct {
	FirmwareVersion string
	HasWifi         bool
	HasBluetooth    bool
	HwModel         uint32
}

// MQTTProxyMessage is a relay frame passed between the device and a broker
// through the client (mqtt proxy-to-client mode).
type MQTTProxyMessage struct {
	Topic    string
	Data     []byte
	Text     string
	Retained bool
}

// ServiceEnvelope wraps a mesh packet for broker transport. Uplinked proxy
// frames carry one as their payload.
type ServiceEnvelope struct {
	Packet    *MeshPacket
	ChannelID string
	GatewayID string
}

// ToRadio is the outbound envelope. Exactly one variant field is set.
type ToRadio struct {
	Packet       *MeshPacket
	WantConfigID uint32
	Disconnect   bool
	MQTTProxy    *MQTTProxyMessage
	Heartbeat    bool
}

// FromRadio is the inbound envelope. At most one variant field is set.
type FromRadio struct {
	Packet           *MeshPacket
	MyInfo           *MyNodeInfo
	NodeInfo         *NodeInfo
	Config           *Config
	ConfigCompleteID uint32
	Rebooted         bool
	ModuleConfig     *ModuleConfig
	Channel          *Channel
	QueueStatus      *QueueStatus
	Metadata         *DeviceMetadata
	MQTTProxy        *MQTTProxyMessage
}

func (m *ToRadio) Marshal() []byte {
	var b []byte
	switch {
	case m.Packet != nil:
		b = appendMessageField(b, 1, m.Packet.marshal())
	case m.WantConfigID != 0:
		b = appendVarintField(b, 3, uint64(m.WantConfigID))
	case m.Disconnect:
		b = appendBoolField(b, 4, true)
	case m.MQTTProxy != nil:
		b = appendMessageField(b, 6, m.MQTTProxy.marshal())
	case m.Heartbeat:
		b = appendMessageField(b, 7, nil)
	}

	return b
}

func (p *MeshPacket) marshal() []byte {
	var b []byte
	b = appendVarintField(b, 1, uint64(p.From))
	b = appendVarintField(b, 2, uint64(p.To))
	b = appendVarintField(b, 3, uint64(p.Channel))
	if p.Decoded != nil {
		b = appendMessageField(b, 4, p.Decoded.marshal())
	}
	b = appendVarintField(b, 6, uint64(p.ID))
	b = appendFixed32Field(b, 7, p.RxTime)
	b = appendVarintField(b, 9, uint64(p.HopLimit))
	b = appendBoolField(b, 10, p.WantAck)
	b = appendVarintField(b, 11, uint64(p.Priority))
	b = appendInt32Field(b, 12, p.RxRssi)
	b = appendBoolField(b, 14, p.ViaMQTT)
	b = appendVarintField(b, 15, uint64(p.HopStart))

	return b
}

func (d *Data) marshal() []byte {
	var b []byte
	b = appendVarintField(b, 1, uint64(d.Portnum))
	b = appendBytesField(b, 2, d.Payload)
	b = appendBoolField(b, 3, d.WantResponse)
	b = appendFixed32Field(b, 4, d.Dest)
	b = appendFixed32Field(b, 5, d.Source)
	b = appendFixed32Field(b, 6, d.RequestID)
	b = appendFixed32Field(b, 7, d.ReplyID)

	return b
}

func (p *Position) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, uint32(p.LatitudeI))
	b = protowire.AppendTag(b, 2, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, uint32(p.LongitudeI))
	if p.HasAltitude {
		b = appendInt32Field(b, 3, p.Altitude)
	}
	b = appendFixed32Field(b, 4, p.Time)
	b = appendVarintField(b, 22, uint64(p.PrecisionBits))

	return b
}

func (u *User) Marshal() []byte {
	var b []byte
	b = appendStringField(b, 1, u.ID)
	b = appendStringField(b, 2, u.LongName)
	b = appendStringField(b, 3, u.ShortName)
	b = appendVarintField(b, 5, uint64(u.HwModel))
	b = appendBoolField(b, 6, u.IsLicensed)
	b = appendVarintField(b, 7, uint64(u.Role))

	return b
}

func (m *MQTTProxyMessage) marshal() []byte {
	var b []byte
	b = appendStringField(b, 1, m.Topic)
	b = appendBytesField(b, 2, m.Data)
	b = appendStringField(b, 3, m.Text)
	b = appendBoolField(b, 4, m.Retained)

	return b
}

func UnmarshalFromRadio(buf []byte) (*FromRadio, error) {
	out := &FromRadio{}
	d := newDecoder("FromRadio", buf)
	for {
		more, err := d.next()
		if err != nil {
			return nil, err
		}
		if !more {
			return out, nil
		}
		switch d.num {
		case 2:
			raw, err := d.bytes()
			if err != nil {
				return nil, err
			}
			if out.Packet, err = unmarshalMeshPacket(raw); err != nil {
				return nil, err
			}
		case 3:
			raw, err := d.bytes()
			if err != nil {
				return nil, err
			}
			if out.MyInfo, err = unmarshalMyNodeInfo(raw); err != nil {
				return nil, err
			}
		case 4:
			raw, err := d.bytes()
			if err != nil {
				return nil, err
			}
			if out.NodeInfo, err = unmarshalNodeInfo(raw); err != nil {
				return nil, err
			}
		case 5:
			raw, err := d.bytes()
			if err != nil {
				return nil, err
			}
			if out.Config, err = UnmarshalConfig(raw); err != nil {
				return nil, err
			}
		case 7:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.ConfigCompleteID = uint32(v)
		case 8:
			v, err := d.bool()
			if err != nil {
				return nil, err
			}
			out.Rebooted = v
		case 9:
			raw, err := d.bytes()
			if err != nil {
				return nil, err
			}
			if out.ModuleConfig, err = UnmarshalModuleConfig(raw); err != nil {
				return nil, err
			}
		case 10:
			raw, err := d.bytes()
			if err != nil {
				return nil, err
			}
			if out.Channel, err = UnmarshalChannel(raw); err != nil {
				return nil, err
			}
		case 11:
			raw, err := d.bytes()
			if err != nil {
				return nil, err
			}
			if out.QueueStatus, err = unmarshalQueueStatus(raw); err != nil {
				return nil, err
			}
		case 13:
			raw, err := d.bytes()
			if err != nil {
				return nil, err
			}
			if out.Metadata, err = unmarshalDeviceMetadata(raw); err != nil {
				return nil, err
			}
		case 14:
			raw, err := d.bytes()
			if err != nil {
				return nil, err
			}
			if out.MQTTProxy, err = UnmarshalMQTTProxyMessage(raw); err != nil {
				return nil, err
			}
		default:
			if err := d.skip(); err != nil {
				return nil, err
			}
		}
	}
}

func unmarshalMeshPacket(buf []byte) (*MeshPacket, error) {
	out := &MeshPacket{}
	d := newDecoder("MeshPacket", buf)
	for {
		more, err := d.next()
		if err != nil {
			return nil, err
		}
		if !more {
			return out, nil
		}
		switch d.num {
		case 1:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.From = uint32(v)
		case 2:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.To = uint32(v)
		case 3:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.Channel = uint32(v)
		case 4:
			raw, err := d.bytes()
			if err != nil {
				return nil, err
			}
			if out.Decoded, err = unmarshalData(raw); err != nil {
				return nil, err
			}
		case 6:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.ID = uint32(v)
		case 7:
			v, err := d.fixed32()
			if err != nil {
				return nil, err
			}
			out.RxTime = v
		case 8:
			v, err := d.float32()
			if err != nil {
				return nil, err
			}
			out.RxSnr = v
		case 9:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.HopLimit = uint32(v)
		case 10:
			v, err := d.bool()
			if err != nil {
				return nil, err
			}
			out.WantAck = v
		case 11:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.Priority = uint32(v)
		case 12:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.RxRssi = int32(v)
		case 14:
			v, err := d.bool()
			if err != nil {
				return nil, err
			}
			out.ViaMQTT = v
		case 15:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.HopStart = uint32(v)
		default:
			if err := d.skip(); err != nil {
				return nil, err
			}
		}
	}
}

func unmarshalData(buf []byte) (*Data, error) {
	out := &Data{}
	d := newDecoder("Data", buf)
	for {
		more, err := d.next()
		if err != nil {
			return nil, err
		}
		if !more {
			return out, nil
		}
		switch d.num {
		case 1:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.Portnum = PortNum(v)
		case 2:
			v, err := d.bytes()
			if err != nil {
				return nil, err
			}
			out.Payload = v
		case 3:
			v, err := d.bool()
			if err != nil {
				return nil, err
			}
			out.WantResponse = v
		case 4:
			v, err := d.fixed32()
			if err != nil {
				return nil, err
			}
			out.Dest = v
		case 5:
			v, err := d.fixed32()
			if err != nil {
				return nil, err
			}
			out.Source = v
		case 6:
			v, err := d.fixed32()
			if err != nil {
				return nil, err
			}
			out.RequestID = v
		case 7:
			v, err := d.fixed32()
			if err != nil {
				return nil, err
			}
			out.ReplyID = v
		default:
			if err := d.skip(); err != nil {
				return nil, err
			}
		}
	}
}

func UnmarshalPosition(buf []byte) (*Position, error) {
	out := &Position{}
	d := newDecoder("Position", buf)
	for {
		more, err := d.next()
		if err != nil {
			return nil, err
		}
		if !more {
			return out, nil
		}
		switch d.num {
		case 1:
			v, err := d.fixed32()
			if err != nil {
				return nil, err
			}
			out.LatitudeI = int32(v)
		case 2:
			v, err := d.fixed32()
			if err != nil {
				return nil, err
			}
			out.LongitudeI = int32(v)
		case 3:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.Altitude = int32(v)
			out.HasAltitude = true
		case 4:
			v, err := d.fixed32()
			if err != nil {
				return nil, err
			}
			out.Time = v
		case 22:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.PrecisionBits = uint32(v)
		default:
			if err := d.skip(); err != nil {
				return nil, err
			}
		}
	}
}

func UnmarshalUser(buf []byte) (*User, error) {
	out := &User{}
	d := newDecoder("User", buf)
	for {
		more, err := d.next()
		if err != nil {
			return nil, err
		}
		if !more {
			return out, nil
		}
		switch d.num {
		case 1:
			v, err := d.string()
			if err != nil {
				return nil, err
			}
			out.ID = v
		case 2:
			v, err := d.string()
			if err != nil {
				return nil, err
			}
			out.LongName = v
		case 3:
			v, err := d.string()
			if err != nil {
				return nil, err
			}
			out.ShortName = v
		case 5:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.HwModel = uint32(v)
		case 6:
			v, err := d.bool()
			if err != nil {
				return nil, err
			}
			out.IsLicensed = v
		case 7:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.Role = uint32(v)
		default:
			if err := d.skip(); err != nil {
				return nil, err
			}
		}
	}
}

func UnmarshalRouting(buf []byte) (*Routing, error) {
	out := &Routing{}
	d := newDecoder("Routing", buf)
	for {
		more, err := d.next()
		if err != nil {
			return nil, err
		}
		if !more {
			return out, nil
		}
		if d.num == 3 {
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.ErrorReason = RoutingError(int32(v))
			continue
		}
		if err := d.skip(); err != nil {
			return nil, err
		}
	}
}

func unmarshalQueueStatus(buf []byte) (*QueueStatus, error) {
	out := &QueueStatus{}
	d := newDecoder("QueueStatus", buf)
	for {
		more, err := d.next()
		if err != nil {
			return nil, err
		}
		if !more {
			return out, nil
		}
		switch d.num {
		case 1:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.Res = int32(v)
		case 2:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.Free = uint32(v)
		case 3:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.Maxlen = uint32(v)
		case 4:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.MeshPacketID = uint32(v)
		default:
			if err := d.skip(); err != nil {
				return nil, err
			}
		}
	}
}

func unmarshalMyNodeInfo(buf []byte) (*MyNodeInfo, error) {
	out := &MyNodeInfo{}
	d := newDecoder("MyNodeInfo", buf)
	for {
		more, err := d.next()
		if err != nil {
			return nil, err
		}
		if !more {
			return out, nil
		}
		if d.num == 1 {
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.MyNodeNum = uint32(v)
			continue
		}
		if err := d.skip(); err != nil {
			return nil, err
		}
	}
}

func unmarshalNodeInfo(buf []byte) (*NodeInfo, error) {
	out := &NodeInfo{}
	d := newDecoder("NodeInfo", buf)
	for {
		more, err := d.next()
		if err != nil {
			return nil, err
		}
		if !more {
			return out, nil
		}
		switch d.num {
		case 1:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.Num = uint32(v)
		case 2:
			raw, err := d.bytes()
			if err != nil {
				return nil, err
			}
			if out.User, err = UnmarshalUser(raw); err != nil {
				return nil, err
			}
		case 3:
			raw, err := d.bytes()
			if err != nil {
				return nil, err
			}
			if out.Position, err = UnmarshalPosition(raw); err != nil {
				return nil, err
			}
		case 4:
			v, err := d.float32()
			if err != nil {
				return nil, err
			}
			out.Snr = v
		case 5:
			v, err := d.fixed32()
			if err != nil {
				return nil, err
			}
			out.LastHeard = v
		case 7:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.Channel = uint32(v)
		default:
			if err := d.skip(); err != nil {
				return nil, err
			}
		}
	}
}

func unmarshalDeviceMetadata(buf []byte) (*DeviceMetadata, error) {
	out := &DeviceMetadata{}
	d := newDecoder("DeviceMetadata", buf)
	for {
		more, err := d.next()
		if err != nil {
			return nil, err
		}
		if !more {
			return out, nil
		}
		switch d.num {
		case 1:
			v, err := d.string()
			if err != nil {
				return nil, err
			}
			out.FirmwareVersion = v
		case 4:
			v, err := d.bool()
			if err != nil {
				return nil, err
			}
			out.HasWifi = v
		case 5:
			v, err := d.bool()
			if err != nil {
				return nil, err
			}
			out.HasBluetooth = v
		case 9:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.HwModel = uint32(v)
		default:
			if err := d.skip(); err != nil {
				return nil, err
			}
		}
	}
}

func UnmarshalMQTTProxyMessage(buf []byte) (*MQTTProxyMessage, error) {
	out := &MQTTProxyMessage{}
	d := newDecoder("MqttClientProxyMessage", buf)
	for {
		more, err := d.next()
		if err != nil {
			return nil, err
		}
		if !more {
			return out, nil
		}
		switch d.num {
		case 1:
			v, err := d.string()
			if err != nil {
				return nil, err
			}
			out.Topic = v
		case 2:
			v, err := d.bytes()
			if err != nil {
				return nil, err
			}
			out.Data = v
		case 3:
			v, err := d.string()
			if err != nil {
				return nil, err
			}
			out.Text = v
		case 4:
			v, err := d.bool()
			if err != nil {
				return nil, err
			}
			out.Retained = v
		default:
			if err := d.skip(); err != nil {
				return nil, err
			}
		}
	}
}

func (e *ServiceEnvelope) Marshal() []byte {
	var b []byte
	if e.Packet != nil {
		b = appendMessageField(b, 1, e.Packet.marshal())
	}
	b = appendStringField(b, 3, e.ChannelID)
	b = appendStringField(b, 4, e.GatewayID)

	return b
}

func UnmarshalServiceEnvelope(buf []byte) (*ServiceEnvelope, error) {
	out := &ServiceEnvelope{}
	d := newDecoder("ServiceEnvelope", buf)
	for {
		more, err := d.next()
		if err != nil {
			return nil, err
		}
		if !more {
			return out, nil
		}
		switch d.num {
		case 1:
			raw, err := d.bytes()
			if err != nil {
				return nil, err
			}
			if out.Packet, err = unmarshalMeshPacket(raw); err != nil {
				return nil, err
			}
		case 3:
			v, err := d.string()
			if err != nil {
				return nil, err
			}
			out.ChannelID = v
		case 4:
			v, err := d.string()
			if err != nil {
				return nil, err
			}
			out.GatewayID = v
		default:
			if err := d.skip(); err != nil {
				return nil, err
			}
		}
	}
}

// SNRFromFloat keeps float handling in one place for callers that need to
// sanity check device-reported SNR values.
func SNRFromFloat(v float32) (float64, bool) {
	f := float64(v)
	if f == 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}

	return f, true
}
