// Package config loads and persists the daemon's JSON configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	DefaultSerialBaud   = 115200
	DefaultKeepCount    = 5000
	DefaultDatabase     = "meshchat.db"
	DefaultMQTTClientID = "meshchat-proxy"
)

// ConnectionConfig selects and parameterizes the device transport.
type ConnectionConfig struct {
	SerialPort string `json:"serial_port"`
	SerialBaud int    `json:"serial_baud"`
}

// StorageConfig locates the message database and bounds its growth.
type StorageConfig struct {
	DatabasePath string `json:"database_path"`
	// KeepMessages is how many newest messages the retention sweep
	// preserves. Zero disables trimming.
	KeepMessages int `json:"keep_messages"`
}

// LoggingConfig defines runtime logging behavior.
type LoggingConfig struct {
	Level     string `json:"level"`
	LogToFile bool   `json:"log_to_file"`
}

// NotificationConfig stores desktop notification preferences.
type NotificationConfig struct {
	IncomingMessage bool `json:"incoming_message"`
}

// MQTTProxyConfig parameterizes the proxy-to-client bridge. The broker
// address and credentials come from the device's own MQTT module config;
// only the local client identity lives here.
type MQTTProxyConfig struct {
	ClientIDPrefix string `json:"client_id_prefix"`
}

// AppConfig is the root persisted configuration.
type AppConfig struct {
	Connection    ConnectionConfig   `json:"connection"`
	Storage       StorageConfig      `json:"storage"`
	Logging       LoggingConfig      `json:"logging"`
	Notifications NotificationConfig `json:"notifications"`
	MQTTProxy     MQTTProxyConfig    `json:"mqtt_proxy"`
}

func Default() AppConfig {
	return AppConfig{
		Connection: ConnectionConfig{
			SerialPort: "",
			SerialBaud: DefaultSerialBaud,
		},
		Storage: StorageConfig{
			DatabasePath: DefaultDatabase,
			KeepMessages: DefaultKeepCount,
		},
		Logging: LoggingConfig{
			Level:     "info",
			LogToFile: false,
		},
		Notifications: NotificationConfig{
			IncomingMessage: true,
		},
		MQTTProxy: MQTTProxyConfig{
			ClientIDPrefix: DefaultMQTTClientID,
		},
	}
}

// Load reads the config at path, falling back to defaults when the file
// does not exist yet.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path is resolved by the daemon and points to user config dir.
	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config json: %w", err)
	}

	cfg.FillMissingDefaults()

	return cfg, nil
}

func (c *AppConfig) FillMissingDefaults() {
	if c.Connection.SerialBaud <= 0 {
		c.Connection.SerialBaud = DefaultSerialBaud
	}
	if strings.TrimSpace(c.Storage.DatabasePath) == "" {
		c.Storage.DatabasePath = DefaultDatabase
	}
	if c.Storage.KeepMessages < 0 {
		c.Storage.KeepMessages = DefaultKeepCount
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.MQTTProxy.ClientIDPrefix) == "" {
		c.MQTTProxy.ClientIDPrefix = DefaultMQTTClientID
	}
}

func (c AppConfig) Validate() error {
	if strings.TrimSpace(c.Connection.SerialPort) == "" {
		return errors.New("serial port is required")
	}
	if c.Connection.SerialBaud <= 0 {
		return errors.New("serial baud must be positive")
	}
	if strings.TrimSpace(c.Storage.DatabasePath) == "" {
		return errors.New("database path is required")
	}

	return nil
}

// Save validates and atomically writes the config to path.
func Save(path string, cfg AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}
