package radio

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"meshchat/internal/domain"
	"meshchat/internal/radio/protocol"
)

const positionScale = 1e7

// MeshtasticCodec implements Codec for the Meshtastic wire protocol.
type MeshtasticCodec struct {
	packetID     atomic.Uint32
	wantConfigID atomic.Uint32
	myNodeNum    atomic.Uint32
}

func NewMeshtasticCodec() (*MeshtasticCodec, error) {
	var seedRaw [4]byte
	if _, err := rand.Read(seedRaw[:]); err != nil {
		return nil, fmt.Errorf("seed packet id counter: %w", err)
	}
	c := &MeshtasticCodec{}
	c.packetID.Store(binary.BigEndian.Uint32(seedRaw[:]))

	return c, nil
}

func (c *MeshtasticCodec) MyNodeNum() uint32 {
	return c.myNodeNum.Load()
}

func (c *MeshtasticCodec) EncodeTextMessage(text string, to, from, channel uint32, wantAck bool) (Encoded, error) {
	if strings.TrimSpace(text) == "" {
		return Encoded{}, fmt.Errorf("message text is empty")
	}
	packetID := c.nextNonZeroID()
	packet := &protocol.MeshPacket{
		From:    from,
		To:      to,
		Channel: channel,
		ID:      packetID,
		WantAck: wantAck,
		Decoded: &protocol.Data{
			Portnum: protocol.PortTextMessage,
			Payload: []byte(text),
		},
	}
	wire := (&protocol.ToRadio{Packet: packet}).Marshal()

	return Encoded{Payload: wire, PacketID: packetID}, nil
}

func (c *MeshtasticCodec) EncodePositionMessage(loc domain.Location, to, from, channel uint32, wantAck bool) (Encoded, error) {
	if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
		return Encoded{}, fmt.Errorf("invalid coordinates: %f, %f", loc.Latitude, loc.Longitude)
	}

	position := &protocol.Position{
		LatitudeI:  int32(math.Round(loc.Latitude * positionScale)),
		LongitudeI: int32(math.Round(loc.Longitude * positionScale)),
	}
	if loc.Altitude != nil {
		position.Altitude = int32(*loc.Altitude)
		position.HasAltitude = true
	}
	capturedAt := time.Now()
	if loc.CapturedAt != nil {
		capturedAt = *loc.CapturedAt
	}
	position.Time = uint32(capturedAt.Truncate(time.Second).Unix())

	packetID := c.nextNonZeroID()
	packet := &protocol.MeshPacket{
		From:    from,
		To:      to,
		Channel: channel,
		ID:      packetID,
		WantAck: wantAck,
		Decoded: &protocol.Data{
			Portnum: protocol.PortPosition,
			Payload: position.Marshal(),
		},
	}
	wire := (&protocol.ToRadio{Packet: packet}).Marshal()

	return Encoded{Payload: wire, PacketID: packetID}, nil
}

// EncodeWantConfig asks the device for a full config replay. The
// correlation id is the current wall clock truncated to seconds, which is
// unique enough per session and easy to spot in frame logs.
func (c *MeshtasticCodec) EncodeWantConfig() ([]byte, error) {
	id := uint32(time.Now().Truncate(time.Second).Unix())
	c.wantConfigID.Store(id)

	return (&protocol.ToRadio{WantConfigID: id}).Marshal(), nil
}

func (c *MeshtasticCodec) EncodeHeartbeat() ([]byte, error) {
	return (&protocol.ToRadio{Heartbeat: true}).Marshal(), nil
}

func (c *MeshtasticCodec) EncodeAdminMessage(admin *protocol.AdminMessage, to, from uint32) (Encoded, error) {
	if admin == nil {
		return Encoded{}, fmt.Errorf("admin payload is required")
	}
	packetID := c.nextNonZeroID()
	packet := &protocol.MeshPacket{
		From:     from,
		To:       to,
		ID:       packetID,
		WantAck:  true,
		Priority: protocol.PriorityReliable,
		Decoded: &protocol.Data{
			Portnum:      protocol.PortAdmin,
			Payload:      admin.Marshal(),
			WantResponse: true,
		},
	}
	wire := (&protocol.ToRadio{Packet: packet}).Marshal()

	return Encoded{Payload: wire, PacketID: packetID}, nil
}

func (c *MeshtasticCodec) EncodeMQTTProxyFrame(topic string, data []byte, retained bool) ([]byte, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("mqtt proxy topic is empty")
	}
	frame := &protocol.MQTTProxyMessage{Topic: topic, Data: data, Retained: retained}

	return (&protocol.ToRadio{MQTTProxy: frame}).Marshal(), nil
}

func (c *MeshtasticCodec) DecodeInbound(payload []byte) (DecodedEvent, error) {
	out := DecodedEvent{Raw: payload}

	wire, err := protocol.UnmarshalFromRadio(payload)
	if err != nil {
		return out, err
	}

	now := time.Now()
	if wire.MyInfo != nil && wire.MyInfo.MyNodeNum != 0 {
		c.myNodeNum.Store(wire.MyInfo.MyNodeNum)
		out.MyNodeNum = wire.MyInfo.MyNodeNum
	}
	if wire.ConfigCompleteID != 0 {
		out.ConfigCompleteID = wire.ConfigCompleteID
		if expected := c.wantConfigID.Load(); expected != 0 && wire.ConfigCompleteID == expected {
			out.WantConfigReady = true
		}
	}
	out.Rebooted = wire.Rebooted
	out.ConfigSection = wire.Config
	out.ModuleConfig = wire.ModuleConfig
	out.MQTTProxy = wire.MQTTProxy

	if wire.NodeInfo != nil {
		node := decodeNodeInfo(wire.NodeInfo, now)
		out.NodeUpdate = &node
	}
	if wire.Channel != nil {
		channel := decodeChannel(wire.Channel)
		out.Channel = &channel
	}
	if wire.Metadata != nil {
		out.Metadata = &domain.DeviceMetadata{
			FirmwareVersion: wire.Metadata.FirmwareVersion,
			HwModel:         protocol.HardwareModelName(wire.Metadata.HwModel),
			HasWifi:         wire.Metadata.HasWifi,
			HasBluetooth:    wire.Metadata.HasBluetooth,
		}
	}
	if wire.QueueStatus != nil {
		if update, ok := decodeQueueStatus(wire.QueueStatus); ok {
			out.StatusUpdate = &update
		}
	}
	if wire.Packet != nil {
		c.decodePacket(wire.Packet, now, &out)
	}

	return out, nil
}

func (c *MeshtasticCodec) decodePacket(packet *protocol.MeshPacket, now time.Time, out *DecodedEvent) {
	decoded := packet.Decoded
	if decoded == nil {
		return
	}
	if update, ok := decodePacketStatus(packet, decoded); ok {
		out.StatusUpdate = &update
	}

	switch decoded.Portnum {
	case protocol.PortTextMessage:
		text := string(decoded.Payload)
		if strings.TrimSpace(text) == "" {
			return
		}
		myNodeNum := c.myNodeNum.Load()
		msg := domain.Message{
			PacketID: packet.ID,
			From:     packet.From,
			To:       packet.To,
			Text:     text,
			At:       packetTimestamp(packet.RxTime, now),
			Outgoing: myNodeNum != 0 && packet.From == myNodeNum,
			Type:     domain.MessageTypeText,
		}
		if packet.To == protocol.Broadcast {
			channel := int(packet.Channel)
			msg.Channel = &channel
		}
		out.TextMessage = &msg
	case protocol.PortNodeInfo:
		user, err := protocol.UnmarshalUser(decoded.Payload)
		if err != nil || packet.From == 0 {
			return
		}
		node := domain.NodeInfo{
			NodeNum:   packet.From,
			LongName:  strings.TrimSpace(user.LongName),
			ShortName: strings.TrimSpace(user.ShortName),
			HwModel:   protocol.HardwareModelName(user.HwModel),
			LastHeard: packetTimestamp(packet.RxTime, now),
			UpdatedAt: now,
		}
		applyPacketSignal(&node, packet)
		out.NodeUpdate = &node
	case protocol.PortPosition:
		position, err := protocol.UnmarshalPosition(decoded.Payload)
		if err != nil || packet.From == 0 {
			return
		}
		node := domain.NodeInfo{
			NodeNum:   packet.From,
			LastHeard: packetTimestamp(packet.RxTime, now),
			UpdatedAt: now,
		}
		if !applyCoordinates(&node, position) {
			return
		}
		applyPacketSignal(&node, packet)
		out.NodeUpdate = &node
	case protocol.PortAdmin:
		admin, err := protocol.UnmarshalAdminMessage(decoded.Payload)
		if err != nil {
			return
		}
		out.Admin = &AdminEvent{
			From:      packet.From,
			To:        packet.To,
			PacketID:  packet.ID,
			RequestID: decoded.RequestID,
			Message:   admin,
		}
	}
}

func decodePacketStatus(packet *protocol.MeshPacket, decoded *protocol.Data) (StatusUpdate, bool) {
	if decoded.RequestID == 0 {
		return StatusUpdate{}, false
	}
	isRouting := decoded.Portnum == protocol.PortRouting
	isAck := packet.Priority == protocol.PriorityAck
	if !isRouting && !isAck {
		return StatusUpdate{}, false
	}

	update := StatusUpdate{PacketID: decoded.RequestID, Radio: domain.RadioStatusDelivered}
	if isRouting {
		if routing, err := protocol.UnmarshalRouting(decoded.Payload); err == nil {
			if routing.ErrorReason != protocol.RoutingNone {
				update.Radio = domain.RadioStatusFailed
				update.Reason = protocol.RoutingErrorName(routing.ErrorReason)
			}
		}
	}

	return update, true
}

func decodeQueueStatus(qs *protocol.QueueStatus) (StatusUpdate, bool) {
	if qs.MeshPacketID == 0 {
		return StatusUpdate{}, false
	}
	update := StatusUpdate{PacketID: qs.MeshPacketID, Radio: domain.RadioStatusSent}
	if qs.Res != 0 {
		update.Radio = domain.RadioStatusFailed
		update.Reason = protocol.RoutingErrorName(protocol.RoutingError(qs.Res))
	}

	return update, true
}

func decodeNodeInfo(info *protocol.NodeInfo, now time.Time) domain.NodeInfo {
	node := domain.NodeInfo{
		NodeNum:   info.Num,
		LastHeard: packetTimestamp(info.LastHeard, now),
		UpdatedAt: now,
	}
	if info.User != nil {
		node.LongName = strings.TrimSpace(info.User.LongName)
		node.ShortName = strings.TrimSpace(info.User.ShortName)
		node.HwModel = protocol.HardwareModelName(info.User.HwModel)
	}
	if info.Position != nil {
		applyCoordinates(&node, info.Position)
	}
	if snr, ok := protocol.SNRFromFloat(info.Snr); ok {
		node.SNR = &snr
	}

	return node
}

func decodeChannel(ch *protocol.Channel) domain.Channel {
	out := domain.Channel{
		Index: int(ch.Index),
		Role:  channelRole(ch.Role),
	}
	if ch.Settings != nil {
		out.Name = strings.TrimSpace(ch.Settings.Name)
		out.PSK = ch.Settings.PSK
		out.UplinkEnabled = ch.Settings.UplinkEnabled
		out.DownlinkEnabled = ch.Settings.DownlinkEnabled
		if ch.Settings.Module != nil {
			out.PositionPrecision = ch.Settings.Module.PositionPrecision
		}
	}

	return out
}

func channelRole(role uint32) domain.ChannelRole {
	switch role {
	case protocol.ChannelRolePrimary:
		return domain.ChannelRolePrimary
	case protocol.ChannelRoleSecondary:
		return domain.ChannelRoleSecondary
	default:
		return domain.ChannelRoleDisabled
	}
}

func applyCoordinates(node *domain.NodeInfo, position *protocol.Position) bool {
	if position.LatitudeI == 0 && position.LongitudeI == 0 {
		return false
	}
	lat := float64(position.LatitudeI) / positionScale
	lon := float64(position.LongitudeI) / positionScale
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return false
	}
	node.Latitude = &lat
	node.Longitude = &lon

	return true
}

func applyPacketSignal(node *domain.NodeInfo, packet *protocol.MeshPacket) {
	if snr, ok := protocol.SNRFromFloat(packet.RxSnr); ok {
		node.SNR = &snr
	}
}

func packetTimestamp(epochSec uint32, fallback time.Time) time.Time {
	if epochSec == 0 {
		return fallback
	}

	return time.Unix(int64(epochSec), 0)
}

func (c *MeshtasticCodec) nextNonZeroID() uint32 {
	for {
		if id := c.packetID.Add(1); id != 0 {
			return id
		}
	}
}

// The BLE characteristic layer carries frames as base64 text. The standard
// alphabet is used on the wire; channel-sharing links use the URL-safe
// variant (see channels.ChannelURL).

func EncodeBLEFrame(payload []byte) string {
	return base64.StdEncoding.EncodeToString(payload)
}

func DecodeBLEFrame(frame string) ([]byte, error) {
	payload, err := base64.StdEncoding.DecodeString(strings.TrimSpace(frame))
	if err != nil {
		return nil, fmt.Errorf("decode base64 frame: %w", err)
	}

	return payload, nil
}
