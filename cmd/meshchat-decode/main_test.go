package main

import (
	"strings"
	"testing"

	"meshchat/internal/radio/protocol"
)

func TestConfigSummaryNamesEnums(t *testing.T) {
	cases := []struct {
		name string
		cfg  protocol.Config
		want []string
	}{
		{
			"device",
			protocol.Config{Device: &protocol.DeviceConfig{Role: 2, RebroadcastMode: 2}},
			[]string{"config/device", "role=ROUTER", "rebroadcast=LOCAL_ONLY"},
		},
		{
			"lora",
			protocol.Config{LoRa: &protocol.LoRaConfig{Region: 3, ModemPreset: 0, UsePreset: true, HopLimit: 3}},
			[]string{"config/lora", "region=EU_868", "preset=LONG_FAST", "hop_limit=3"},
		},
		{
			"display",
			protocol.Config{Display: &protocol.DisplayConfig{GpsFormat: 1, Units: 1, Oled: 2}},
			[]string{"config/display", "gps_format=DMS", "units=IMPERIAL", "oled=OLED_SH1106"},
		},
		{
			"bluetooth",
			protocol.Config{Bluetooth: &protocol.BluetoothConfig{Enabled: true, Mode: 1, FixedPin: 123456}},
			[]string{"config/bluetooth", "mode=FIXED_PIN", "fixed_pin=123456"},
		},
		{
			"unknown codes fall back",
			protocol.Config{Device: &protocol.DeviceConfig{Role: 99}},
			[]string{"role=UNKNOWN(99)"},
		},
		{
			"empty envelope",
			protocol.Config{},
			[]string{"config: empty section"},
		},
	}
	for _, tc := range cases {
		got := configSummary(&tc.cfg)
		for _, want := range tc.want {
			if !strings.Contains(got, want) {
				t.Fatalf("%s: %q missing %q", tc.name, got, want)
			}
		}
	}
}

func TestModuleConfigSummary(t *testing.T) {
	got := moduleConfigSummary(&protocol.ModuleConfig{MQTT: &protocol.MQTTConfig{
		Enabled:              true,
		Address:              "mqtt.example.net:1883",
		Root:                 "msh/EU_868",
		ProxyToClientEnabled: true,
	}})
	for _, want := range []string{"module_config/mqtt", `address="mqtt.example.net:1883"`, "proxy_to_client=true"} {
		if !strings.Contains(got, want) {
			t.Fatalf("%q missing %q", got, want)
		}
	}

	if got := moduleConfigSummary(&protocol.ModuleConfig{}); got != "module_config: unmodeled section" {
		t.Fatalf("empty module config: %q", got)
	}
}

func TestStripStreamHeader(t *testing.T) {
	body := []byte{0x0A, 0x01, 0x02}
	framed := append([]byte{0x94, 0xC3, 0x00, byte(len(body))}, body...)

	got, err := stripStreamHeader(framed)
	if err != nil {
		t.Fatalf("strip: %v", err)
	}
	if string(got) != string(body) {
		t.Fatalf("body mismatch: % x", got)
	}

	if _, err := stripStreamHeader([]byte{0x12, 0x34, 0x00, 0x00}); err == nil {
		t.Fatalf("bad magic accepted")
	}
	if _, err := stripStreamHeader([]byte{0x94, 0xC3, 0x00, 0x10, 0x01}); err == nil {
		t.Fatalf("truncated frame accepted")
	}
}
