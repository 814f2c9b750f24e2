package protocol

// Config is the device config envelope: exactly one section is set.
type Config struct {
	Device    *DeviceConfig
	Position  *PositionConfig
	Power     *PowerConfig
	Network   *NetworkConfig
	Display   *DisplayConfig
	LoRa      *LoRaConfig
	Bluetooth *BluetoothConfig
}

type DeviceConfig struct {
	Role                  uint32
	RebroadcastMode       uint32
	NodeInfoBroadcastSecs uint32
	Tzdef                 string
}

type PositionConfig struct {
	BroadcastSecs uint32
	SmartEnabled  bool
	FixedPosition bool
	PositionFlags uint32
	GpsMode       uint32
}

type PowerConfig struct {
	IsPowerSaving         bool
	OnBatteryShutdownSecs uint32
	MinWakeSecs           uint32
}

type NetworkConfig struct {
	WifiEnabled bool
	WifiSsid    string
	NtpServer   string
	EthEnabled  bool
}

type DisplayConfig struct {
	ScreenOnSecs uint32
	GpsFormat    uint32
	Units        uint32
	Oled         uint32
}

type LoRaConfig struct {
	UsePreset   bool
	ModemPreset uint32
	Region      uint32
	HopLimit    uint32
	TxEnabled   bool
	TxPower     int32
}

type BluetoothConfig struct {
	Enabled  bool
	Mode     uint32
	FixedPin uint32
}

// ModuleConfig is the module config envelope. Only the MQTT section is
// modeled; other sections are skipped on decode.
type ModuleConfig struct {
	MQTT *MQTTConfig
}

// MQTTConfig mirrors ModuleConfig.MQTTConfig.
type MQTTConfig struct {
	Enabled              bool
	Address              string
	Username             string
	Password             string
	EncryptionEnabled    bool
	JSONEnabled          bool
	TLSEnabled           bool
	Root                 string
	ProxyToClientEnabled bool
}

func (c *Config) Marshal() []byte {
	var b []byte
	switch {
	case c.Device != nil:
		b = appendMessageField(b, 1, c.Device.marshal())
	case c.Position != nil:
		b = appendMessageField(b, 2, c.Position.marshal())
	case c.Power != nil:
		b = appendMessageField(b, 3, c.Power.marshal())
	case c.Network != nil:
		b = appendMessageField(b, 4, c.Network.marshal())
	case c.Display != nil:
		b = appendMessageField(b, 5, c.Display.marshal())
	case c.LoRa != nil:
		b = appendMessageField(b, 6, c.LoRa.marshal())
	case c.Bluetooth != nil:
		b = appendMessageField(b, 7, c.Bluetooth.marshal())
	}

	return b
}

func (c *DeviceConfig) marshal() []byte {
	var b []byte
	b = appendVarintField(b, 1, uint64(c.Role))
	b = appendVarintField(b, 6, uint64(c.RebroadcastMode))
	b = appendVarintField(b, 7, uint64(c.NodeInfoBroadcastSecs))
	b = appendStringField(b, 11, c.Tzdef)

	return b
}

func (c *PositionConfig) marshal() []byte {
	var b []byte
	b = appendVarintField(b, 1, uint64(c.BroadcastSecs))
	b = appendBoolField(b, 2, c.SmartEnabled)
	b = appendBoolField(b, 3, c.FixedPosition)
	b = appendVarintField(b, 7, uint64(c.PositionFlags))
	b = appendVarintField(b, 13, uint64(c.GpsMode))

	return b
}

func (c *PowerConfig) marshal() []byte {
	var b []byte
	b = appendBoolField(b, 1, c.IsPowerSaving)
	b = appendVarintField(b, 2, uint64(c.OnBatteryShutdownSecs))
	b = appendVarintField(b, 8, uint64(c.MinWakeSecs))

	return b
}

func (c *NetworkConfig) marshal() []byte {
	var b []byte
	b = appendBoolField(b, 1, c.WifiEnabled)
	b = appendStringField(b, 3, c.WifiSsid)
	b = appendStringField(b, 5, c.NtpServer)
	b = appendBoolField(b, 6, c.EthEnabled)

	return b
}

func (c *DisplayConfig) marshal() []byte {
	var b []byte
	b = appendVarintField(b, 1, uint64(c.ScreenOnSecs))
	b = appendVarintField(b, 2, uint64(c.GpsFormat))
	b = appendVarintField(b, 6, uint64(c.Units))
	b = appendVarintField(b, 7, uint64(c.Oled))

	return b
}

func (c *LoRaConfig) marshal() []byte {
	var b []byte
	b = appendBoolField(b, 1, c.UsePreset)
	b = appendVarintField(b, 2, uint64(c.ModemPreset))
	b = appendVarintField(b, 7, uint64(c.Region))
	b = appendVarintField(b, 8, uint64(c.HopLimit))
	b = appendBoolField(b, 9, c.TxEnabled)
	b = appendInt32Field(b, 10, c.TxPower)

	return b
}

func (c *BluetoothConfig) marshal() []byte {
	var b []byte
	b = appendBoolField(b, 1, c.Enabled)
	b = appendVarintField(b, 2, uint64(c.Mode))
	b = appendVarintField(b, 3, uint64(c.FixedPin))

	return b
}

func (m *ModuleConfig) Marshal() []byte {
	var b []byte
	if m.MQTT != nil {
		b = appendMessageField(b, 1, m.MQTT.marshal())
	}

	return b
}

func (m *MQTTConfig) marshal() []byte {
	var b []byte
	b = appendBoolField(b, 1, m.Enabled)
	b = appendStringField(b, 2, m.Address)
	b = appendStringField(b, 3, m.Username)
	b = appendStringField(b, 4, m.Password)
	b = appendBoolField(b, 5, m.EncryptionEnabled)
	b = appendBoolField(b, 6, m.JSONEnabled)
	b = appendBoolField(b, 7, m.TLSEnabled)
	b = appendStringField(b, 8, m.Root)
	b = appendBoolField(b, 9, m.ProxyToClientEnabled)

	return b
}

func UnmarshalConfig(buf []byte) (*Config, error) {
	out := &Config{}
	d := newDecoder("Config", buf)
	for {
		more, err := d.next()
		if err != nil {
			return nil, err
		}
		if !more {
			return out, nil
		}
		if d.num < 1 || d.num > 7 {
			if err := d.skip(); err != nil {
				return nil, err
			}
			continue
		}
		raw, err := d.bytes()
		if err != nil {
			return nil, err
		}
		switch d.num {
		case 1:
			if out.Device, err = unmarshalDeviceConfig(raw); err != nil {
				return nil, err
			}
		case 2:
			if out.Position, err = unmarshalPositionConfig(raw); err != nil {
				return nil, err
			}
		case 3:
			if out.Power, err = unmarshalPowerConfig(raw); err != nil {
				return nil, err
			}
		case 4:
			if out.Network, err = unmarshalNetworkConfig(raw); err != nil {
				return nil, err
			}
		case 5:
			if out.Display, err = unmarshalDisplayConfig(raw); err != nil {
				return nil, err
			}
		case 6:
			if out.LoRa, err = unmarshalLoRaConfig(raw); err != nil {
				return nil, err
			}
		case 7:
			if out.Bluetooth, err = unmarshalBluetoothConfig(raw); err != nil {
				return nil, err
			}
		}
	}
}

func unmarshalDeviceConfig(buf []byte) (*DeviceConfig, error) {
	out := &DeviceConfig{}
	d := newDecoder("Config.DeviceConfig", buf)
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
			out.Role = uint32(v)
		case 6:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.RebroadcastMode = uint32(v)
		case 7:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.NodeInfoBroadcastSecs = uint32(v)
		case 11:
			v, err := d.string()
			if err != nil {
				return nil, err
			}
			out.Tzdef = v
		default:
			if err := d.skip(); err != nil {
				return nil, err
			}
		}
	}
}

func unmarshalPositionConfig(buf []byte) (*PositionConfig, error) {
	out := &PositionConfig{}
	d := newDecoder("Config.PositionConfig", buf)
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
			out.BroadcastSecs = uint32(v)
		case 2:
			v, err := d.bool()
			if err != nil {
				return nil, err
			}
			out.SmartEnabled = v
		case 3:
			v, err := d.bool()
			if err != nil {
				return nil, err
			}
			out.FixedPosition = v
		case 7:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.PositionFlags = uint32(v)
		case 13:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.GpsMode = uint32(v)
		default:
			if err := d.skip(); err != nil {
				return nil, err
			}
		}
	}
}

func unmarshalPowerConfig(buf []byte) (*PowerConfig, error) {
	out := &PowerConfig{}
	d := newDecoder("Config.PowerConfig", buf)
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
			v, err := d.bool()
			if err != nil {
				return nil, err
			}
			out.IsPowerSaving = v
		case 2:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.OnBatteryShutdownSecs = uint32(v)
		case 8:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.MinWakeSecs = uint32(v)
		default:
			if err := d.skip(); err != nil {
				return nil, err
			}
		}
	}
}

func unmarshalNetworkConfig(buf []byte) (*NetworkConfig, error) {
	out := &NetworkConfig{}
	d := newDecoder("Config.NetworkConfig", buf)
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
			v, err := d.bool()
			if err != nil {
				return nil, err
			}
			out.WifiEnabled = v
		case 3:
			v, err := d.string()
			if err != nil {
				return nil, err
			}
			out.WifiSsid = v
		case 5:
			v, err := d.string()
			if err != nil {
				return nil, err
			}
			out.NtpServer = v
		case 6:
			v, err := d.bool()
			if err != nil {
				return nil, err
			}
			out.EthEnabled = v
		default:
			if err := d.skip(); err != nil {
				return nil, err
			}
		}
	}
}

func unmarshalDisplayConfig(buf []byte) (*DisplayConfig, error) {
	out := &DisplayConfig{}
	d := newDecoder("Config.DisplayConfig", buf)
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
			out.ScreenOnSecs = uint32(v)
		case 2:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.GpsFormat = uint32(v)
		case 6:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.Units = uint32(v)
		case 7:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.Oled = uint32(v)
		default:
			if err := d.skip(); err != nil {
				return nil, err
			}
		}
	}
}

func unmarshalLoRaConfig(buf []byte) (*LoRaConfig, error) {
	out := &LoRaConfig{}
	d := newDecoder("Config.LoRaConfig", buf)
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
			v, err := d.bool()
			if err != nil {
				return nil, err
			}
			out.UsePreset = v
		case 2:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.ModemPreset = uint32(v)
		case 7:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.Region = uint32(v)
		case 8:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.HopLimit = uint32(v)
		case 9:
			v, err := d.bool()
			if err != nil {
				return nil, err
			}
			out.TxEnabled = v
		case 10:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.TxPower = int32(v)
		default:
			if err := d.skip(); err != nil {
				return nil, err
			}
		}
	}
}

func unmarshalBluetoothConfig(buf []byte) (*BluetoothConfig, error) {
	out := &BluetoothConfig{}
	d := newDecoder("Config.BluetoothConfig", buf)
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
			v, err := d.bool()
			if err != nil {
				return nil, err
			}
			out.Enabled = v
		case 2:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.Mode = uint32(v)
		case 3:
			v, err := d.varint()
			if err != nil {
				return nil, err
			}
			out.FixedPin = uint32(v)
		default:
			if err := d.skip(); err != nil {
				return nil, err
			}
		}
	}
}

func UnmarshalModuleConfig(buf []byte) (*ModuleConfig, error) {
	out := &ModuleConfig{}
	d := newDecoder("ModuleConfig", buf)
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
			if out.MQTT, err = unmarshalMQTTConfig(raw); err != nil {
				return nil, err
			}
			continue
		}
		if err := d.skip(); err != nil {
			return nil, err
		}
	}
}

func unmarshalMQTTConfig(buf []byte) (*MQTTConfig, error) {
	out := &MQTTConfig{}
	d := newDecoder("ModuleConfig.MQTTConfig", buf)
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
			v, err := d.bool()
			if err != nil {
				return nil, err
			}
			out.Enabled = v
		case 2:
			v, err := d.string()
			if err != nil {
				return nil, err
			}
			out.Address = v
		case 3:
			v, err := d.string()
			if err != nil {
				return nil, err
			}
			out.Username = v
		case 4:
			v, err := d.string()
			if err != nil {
				return nil, err
			}
			out.Password = v
		case 5:
			v, err := d.bool()
			if err != nil {
				return nil, err
			}
			out.EncryptionEnabled = v
		case 6:
			v, err := d.bool()
			if err != nil {
				return nil, err
			}
			out.JSONEnabled = v
		case 7:
			v, err := d.bool()
			if err != nil {
				return nil, err
			}
			out.TLSEnabled = v
		case 8:
			v, err := d.string()
			if err != nil {
				return nil, err
			}
			out.Root = v
		case 9:
			v, err := d.bool()
			if err != nil {
				return nil, err
			}
			out.ProxyToClientEnabled = v
		default:
			if err := d.skip(); err != nil {
				return nil, err
			}
		}
	}
}
