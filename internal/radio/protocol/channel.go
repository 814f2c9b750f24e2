package protocol

// Channel roles as reported by the device.
const (
	ChannelRoleDisabled  uint32 = 0
	ChannelRolePrimary   uint32 = 1
	ChannelRoleSecondary uint32 = 2
)

// ChannelSettings carries one channel slot's name, key and relay flags.
type ChannelSettings struct {
	PSK             []byte
	Name            string
	ID              uint32
	UplinkEnabled   bool
	DownlinkEnabled bool
	Module          *ModuleSettings
}

// ModuleSettings holds per-channel module tuning; only position precision
// is meaningful to this client.
type ModuleSettings struct {
	PositionPrecision uint32
}

// Channel binds settings to a device slot index and role.
type Channel struct {
	Index    int32
	Settings *ChannelSettings
	Role     uint32
}

// ChannelSet is the payload of a channel-sharing link: one or more channel
// settings without slot assignments.
type ChannelSet struct {
	Settings []*ChannelSettings
}

func (s *ChannelSettings) Marshal() []byte {
	var b []byte
	b = appendBytesField(b, 2, s.PSK)
	b = appendStringField(b, 3, s.Name)
	b = appendFixed32Field(b, 4, s.ID)
	b = appendBoolField(b, 5, s.UplinkEnabled)
	b = appendBoolField(b, 6, s.DownlinkEnabled)
	if s.Module != nil {
		b = appendMessageField(b, 7, s.Module.marshal())
	}

	return b
}

func (m *ModuleSettings) marshal() []byte {
	var b []byte
	b = appendVarintField(b, 1, uint64(m.PositionPrecision))

	return b
}

func (c *Channel) Marshal() []byte {
	var b []byte
	b = appendInt32Field(b, 1, c.Index)
	if c.Settings != nil {
		b = appendMessageField(b, 2, c.Settings.Marshal())
	}
	b = appendVarintField(b, 3, uint64(c.Role))

	return b
}

func (s *ChannelSet) Marshal() []byte {
	var b []byte
	for _, settings := range s.Settings {
		if settings == nil {
			continue
		}
		b = appendMessageField(b, 1, settings.Marshal())
	}

	return b
}

func UnmarshalChannelSettings(buf []byte) (*ChannelSettings, error) {
	out := &ChannelSettings{}
	d := newDecoder("ChannelSettings", buf)
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
			v, err := d.bytes()
			if err != nil {
				return nil, err
			}
			out.PSK = v
		case 3:
			v, err := d.string()
			if err != nil {
				return nil, err
			}
			out.Name = v
		case 4:
			v, err := d.fixed32()
			if err != nil {
				return nil, err
			}
			out.ID = v
		case 5:
			v, err := d.bool()
			if err != nil {
				return nil, err
			}
			out.UplinkEnabled = v
		case 6:
			v, err := d.bool()
			if err != nil {
				return nil, err
			}
			out.DownlinkEnabled = v
		case 7:
			raw, err := d.bytes()
			if err != nil {
				return nil, err
			}
			if out.Module, err = unmarshalModuleSettings(raw); err != nil {
				return nil, err
			}
		default:
			if err := d.skip(); err != nil {
				return nil, err
			}
		}
	}
}

func unmarshalModuleSettings(buf []byte) (*ModuleSettings, error) {
	out := &ModuleSettings{}
	d := newDecoder("ModuleSettings", buf)
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
			out.PositionPrecision = uint32(v)
			continue
		}
		if err := d.skip(); err != nil {
			return nil, err
		}
	}
}

func UnmarshalChannel(buf []byte) (*Channel, error) {
	out := &Channel{}
	d := newDecoder("Channel", buf)
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
			out.Index = int32(v)
		case 2:
			raw, err := d.bytes()
			if err != nil {
				return nil, err
			}
			if out.Settings, err = UnmarshalChannelSettings(raw); err != nil {
				return nil, err
			}
		case 3:
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

func UnmarshalChannelSet(buf []byte) (*ChannelSet, error) {
	out := &ChannelSet{}
	d := newDecoder("ChannelSet", buf)
	for {
		more, err := d.next()
		if err != nil {
			return nil, err
		}
		if !more {
			return out, nil
		}
		if d.num == 1 {
			raw, err := d.bytes()
			if err != nil {
				return nil, err
			}
			settings, err := UnmarshalChannelSettings(raw)
			if err != nil {
				return nil, err
			}
			out.Settings = append(out.Settings, settings)
			continue
		}
		if err := d.skip(); err != nil {
			return nil, err
		}
	}
}
