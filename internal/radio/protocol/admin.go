package protocol

import "google.golang.org/protobuf/encoding/protowire"

// Admin config section selectors (AdminMessage.ConfigType).
const (
	AdminConfigDevice    uint32 = 0
	AdminConfigPosition  uint32 = 1
	AdminConfigPower     uint32 = 2
	AdminConfigNetwork   uint32 = 3
	AdminConfigDisplay   uint32 = 4
	AdminConfigLoRa      uint32 = 5
	AdminConfigBluetooth uint32 = 6
)

// Admin module config section selectors (AdminMessage.ModuleConfigType).
const (
	AdminModuleConfigMQTT uint32 = 0
)

// AdminMessage is the privileged device-configuration sub-protocol carried
// inside an ADMIN_APP data payload. Exactly one variant field is set.
type AdminMessage struct {
	GetChannelRequest       uint32
	GetChannelResponse      *Channel
	GetOwnerRequest         bool
	GetOwnerResponse        *User
	GetConfigRequest        *uint32
	GetConfigResponse       *Config
	GetModuleConfigRequest  *uint32
	GetModuleConfigResponse *ModuleConfig
	SetOwner                *User
	SetChannel              *Channel
	SetConfig               *Config
	SetModuleConfig         *ModuleConfig
	BeginEditSettings       bool
	CommitEditSettings      bool
}

func (m *AdminMessage) Marshal() []byte {
	var b []byte
	switch {
	case m.GetChannelRequest != 0:
		b = appendVarintField(b, 1, uint64(m.GetChannelRequest))
	case m.GetChannelResponse != nil:
		b = appendMessageField(b, 2, m.GetChannelResponse.Marshal())
	case m.GetOwnerRequest:
		b = appendBoolField(b, 3, true)
	case m.GetOwnerResponse != nil:
		b = appendMessageField(b, 4, m.GetOwnerResponse.Marshal())
	case m.GetConfigRequest != nil:
		b = protowire.AppendTag(b, 5, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(*m.GetConfigRequest))
	case m.GetConfigResponse != nil:
		b = appendMessageField(b, 6, m.GetConfigResponse.Marshal())
	case m.GetModuleConfigRequest != nil:
		b = protowire.AppendTag(b, 7, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(*m.GetModuleConfigRequest))
	case m.GetModuleConfigResponse != nil:
		b = appendMessageField(b, 8, m.GetModuleConfigResponse.Marshal())
	case m.SetOwner != nil:
		b = appendMessageField(b, 32, m.SetOwner.Marshal())
	case m.SetChannel != nil:
		b = appendMessageField(b, 33, m.SetChannel.Marshal())
	case m.SetConfig != nil:
		b = appendMessageField(b, 34, m.SetConfig.Marshal())
	case m.SetModuleConfig != nil:
		b = appendMessageField(b, 35, m.SetModuleConfig.Marshal())
	case m.BeginEditSettings:
		b = appendBoolField(b, 64, true)
	case m.CommitEditSettings:
		b = appendBoolField(b, 65, true)
	}

	return b
}

func UnmarshalAdminMessage(buf []byte) (*AdminMessage, error) {
	out := &AdminMessage{}
	d := newDecoder("AdminMessage", buf)
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
			out.GetChannelRequest = uint32(v)
		case 2:
			raw, err := d.bytes()
			if err != nil {
				return nil, err
			}
			if out.GetChannelResponse, err = UnmarshalChannel(raw); err != nil {
				return nil, err
			}
		case 3:
			v, err := d.bool()
			if err != nil {
				return nil, err
			}
			out.GetOwnerRequest = v
		case 4:
			raw, err := d.bytes()
			if err != nil {
				return nil, err
			}
			if out.GetOwnerResponse, err = UnmarshalUser(raw); err != nil {
				return nil, err
			}
		case 5:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			section := uint32(v)
			out.GetConfigRequest = &section
		case 6:
			raw, err := d.bytes()
			if err != nil {
				return nil, err
			}
			if out.GetConfigResponse, err = UnmarshalConfig(raw); err != nil {
				return nil, err
			}
		case 7:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			section := uint32(v)
			out.GetModuleConfigRequest = &section
		case 8:
			raw, err := d.bytes()
			if err != nil {
				return nil, err
			}
			if out.GetModuleConfigResponse, err = UnmarshalModuleConfig(raw); err != nil {
				return nil, err
			}
		case 32:
			raw, err := d.bytes()
			if err != nil {
				return nil, err
			}
			if out.SetOwner, err = UnmarshalUser(raw); err != nil {
				return nil, err
			}
		case 33:
			raw, err := d.bytes()
			if err != nil {
				return nil, err
			}
			if out.SetChannel, err = UnmarshalChannel(raw); err != nil {
				return nil, err
			}
		case 34:
			raw, err := d.bytes()
			if err != nil {
				return nil, err
			}
			if out.SetConfig, err = UnmarshalConfig(raw); err != nil {
				return nil, err
			}
		case 35:
			raw, err := d.bytes()
			if err != nil {
				return nil, err
			}
			if out.SetModuleConfig, err = UnmarshalModuleConfig(raw); err != nil {
				return nil, err
			}
		case 64:
			v, err := d.bool()
			if err != nil {
				return nil, err
			}
			out.BeginEditSettings = v
		case 65:
			v, err := d.bool()
			if err != nil {
				return nil, err
			}
			out.CommitEditSettings = v
		default:
			if err := d.skip(); err != nil {
				return nil, err
			}
		}
	}
}
