// meshchat-decode is an offline debugging tool: it takes captured device
// frames as hex or base64 and prints the decoded FromRadio content.
package main

import (
	"bufio"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"

	"meshchat/internal/radio/protocol"
)

const streamHeaderLen = 4

func main() {
	framed := flag.Bool("framed", false, "input carries the 0x94C3 stream header")
	asToRadio := flag.Bool("to-radio", false, "decode as a host-to-device frame instead")
	flag.Parse()

	inputs := flag.Args()
	if len(inputs) == 0 {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				inputs = append(inputs, line)
			}
		}
	}
	if len(inputs) == 0 {
		fmt.Fprintln(os.Stderr, "usage: meshchat-decode [-framed] [-to-radio] <hex-or-base64 frame>...")
		os.Exit(2)
	}

	failed := false
	for _, in := range inputs {
		if err := decodeOne(in, *framed, *asToRadio); err != nil {
			fmt.Fprintf(os.Stderr, "decode %q: %v\n", preview(in), err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func decodeOne(input string, framed, asToRadio bool) error {
	payload, err := parsePayload(input)
	if err != nil {
		return err
	}
	if framed {
		if payload, err = stripStreamHeader(payload); err != nil {
			return err
		}
	}

	if asToRadio {
		// No ToRadio unmarshal exists; host frames are only ever built
		// locally. Show the raw field layout instead.
		fmt.Printf("to-radio frame, %d bytes: %s\n", len(payload), hex.EncodeToString(payload))

		return nil
	}

	frame, err := protocol.UnmarshalFromRadio(payload)
	if err != nil {
		return err
	}
	printFromRadio(frame)

	return nil
}

// parsePayload accepts hex with optional spaces, or standard base64.
func parsePayload(input string) ([]byte, error) {
	compact := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' {
			return -1
		}

		return r
	}, input)

	if raw, err := hex.DecodeString(compact); err == nil {
		return raw, nil
	}
	if raw, err := base64.StdEncoding.DecodeString(compact); err == nil {
		return raw, nil
	}

	return nil, fmt.Errorf("input is neither hex nor base64")
}

func stripStreamHeader(payload []byte) ([]byte, error) {
	if len(payload) < streamHeaderLen {
		return nil, fmt.Errorf("framed payload shorter than header: %d bytes", len(payload))
	}
	if payload[0] != 0x94 || payload[1] != 0xC3 {
		return nil, fmt.Errorf("bad stream magic: %02x%02x", payload[0], payload[1])
	}
	length := int(binary.BigEndian.Uint16(payload[2:4]))
	body := payload[streamHeaderLen:]
	if len(body) < length {
		return nil, fmt.Errorf("truncated frame: header says %d bytes, got %d", length, len(body))
	}

	return body[:length], nil
}

func printFromRadio(frame *protocol.FromRadio) {
	switch {
	case frame.Packet != nil:
		printPacket(frame.Packet)
	case frame.MyInfo != nil:
		fmt.Printf("my_info: node_num=%d (!%08x)\n", frame.MyInfo.MyNodeNum, frame.MyInfo.MyNodeNum)
	case frame.NodeInfo != nil:
		n := frame.NodeInfo
		name := ""
		if n.User != nil {
			name = n.User.LongName
		}
		fmt.Printf("node_info: num=!%08x name=%q last_heard=%d\n", n.Num, name, n.LastHeard)
	case frame.Config != nil:
		fmt.Println(configSummary(frame.Config))
	case frame.ModuleConfig != nil:
		fmt.Println(moduleConfigSummary(frame.ModuleConfig))
	case frame.Channel != nil:
		c := frame.Channel
		name := ""
		if c.Settings != nil {
			name = c.Settings.Name
		}
		fmt.Printf("channel: index=%d role=%d name=%q\n", c.Index, c.Role, name)
	case frame.ConfigCompleteID != 0:
		fmt.Printf("config_complete_id: %d\n", frame.ConfigCompleteID)
	case frame.QueueStatus != nil:
		q := frame.QueueStatus
		fmt.Printf("queue_status: res=%d free=%d mesh_packet_id=%d\n", q.Res, q.Free, q.MeshPacketID)
	case frame.Metadata != nil:
		fmt.Printf("device_metadata: firmware=%q\n", frame.Metadata.FirmwareVersion)
	case frame.MQTTProxy != nil:
		p := frame.MQTTProxy
		fmt.Printf("mqtt_proxy: topic=%q retained=%v data=%d bytes\n", p.Topic, p.Retained, len(p.Data))
	default:
		fmt.Println("empty or unknown frame")
	}
}

func configSummary(c *protocol.Config) string {
	switch {
	case c.Device != nil:
		d := c.Device
		return fmt.Sprintf("config/device: role=%s rebroadcast=%s node_info_secs=%d tz=%q",
			protocol.DeviceRoleName(d.Role), protocol.RebroadcastModeName(d.RebroadcastMode),
			d.NodeInfoBroadcastSecs, d.Tzdef)
	case c.Position != nil:
		p := c.Position
		return fmt.Sprintf("config/position: broadcast_secs=%d smart=%v fixed=%v flags=%d",
			p.BroadcastSecs, p.SmartEnabled, p.FixedPosition, p.PositionFlags)
	case c.Power != nil:
		p := c.Power
		return fmt.Sprintf("config/power: power_saving=%v shutdown_secs=%d min_wake_secs=%d",
			p.IsPowerSaving, p.OnBatteryShutdownSecs, p.MinWakeSecs)
	case c.Network != nil:
		n := c.Network
		return fmt.Sprintf("config/network: wifi=%v ssid=%q ntp=%q eth=%v",
			n.WifiEnabled, n.WifiSsid, n.NtpServer, n.EthEnabled)
	case c.Display != nil:
		d := c.Display
		return fmt.Sprintf("config/display: screen_on_secs=%d gps_format=%s units=%s oled=%s",
			d.ScreenOnSecs, protocol.GpsFormatName(d.GpsFormat),
			protocol.DisplayUnitsName(d.Units), protocol.OledTypeName(d.Oled))
	case c.LoRa != nil:
		l := c.LoRa
		return fmt.Sprintf("config/lora: region=%s preset=%s use_preset=%v hop_limit=%d tx_enabled=%v tx_power=%d",
			protocol.RegionName(l.Region), protocol.ModemPresetName(l.ModemPreset),
			l.UsePreset, l.HopLimit, l.TxEnabled, l.TxPower)
	case c.Bluetooth != nil:
		b := c.Bluetooth
		return fmt.Sprintf("config/bluetooth: enabled=%v mode=%s fixed_pin=%d",
			b.Enabled, protocol.BluetoothModeName(b.Mode), b.FixedPin)
	default:
		return "config: empty section"
	}
}

func moduleConfigSummary(m *protocol.ModuleConfig) string {
	if m.MQTT == nil {
		return "module_config: unmodeled section"
	}
	q := m.MQTT

	return fmt.Sprintf("module_config/mqtt: enabled=%v address=%q root=%q proxy_to_client=%v tls=%v encryption=%v",
		q.Enabled, q.Address, q.Root, q.ProxyToClientEnabled, q.TLSEnabled, q.EncryptionEnabled)
}

func printPacket(p *protocol.MeshPacket) {
	fmt.Printf("packet: id=%d from=!%08x to=!%08x channel=%d priority=%d", p.ID, p.From, p.To, p.Channel, p.Priority)
	if p.Decoded == nil {
		fmt.Println(" (encrypted)")

		return
	}
	fmt.Printf(" portnum=%d request_id=%d\n", p.Decoded.Portnum, p.Decoded.RequestID)
	switch p.Decoded.Portnum {
	case protocol.PortTextMessage:
		fmt.Printf("  text: %q\n", string(p.Decoded.Payload))
	case protocol.PortRouting:
		if routing, err := protocol.UnmarshalRouting(p.Decoded.Payload); err == nil {
			fmt.Printf("  routing: error_reason=%d (%s)\n", routing.ErrorReason, protocol.RoutingErrorName(routing.ErrorReason))
		}
	case protocol.PortPosition:
		if pos, err := protocol.UnmarshalPosition(p.Decoded.Payload); err == nil {
			fmt.Printf("  position: lat=%.5f lon=%.5f\n", float64(pos.LatitudeI)/1e7, float64(pos.LongitudeI)/1e7)
		}
	case protocol.PortNodeInfo:
		if user, err := protocol.UnmarshalUser(p.Decoded.Payload); err == nil {
			fmt.Printf("  user: id=%q long=%q short=%q\n", user.ID, user.LongName, user.ShortName)
		}
	}
}

func preview(s string) string {
	const max = 32
	if len(s) <= max {
		return s
	}

	return s[:max] + "…"
}
