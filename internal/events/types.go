package events

import "time"

// ConnectionState describes where the device link currently is in its
// connect/reconnect lifecycle.
type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateReconnecting ConnectionState = "reconnecting"
)

// ConnStatus is a bus snapshot of the device link state.
type ConnStatus struct {
	State         ConnectionState
	Err           string
	TransportName string
	Timestamp     time.Time
}

// RawFrame carries frame diagnostics for debug logging.
type RawFrame struct {
	Hex string
	Len int
}

// MQTTStatusUpdate is a broker-relay outcome keyed by packet id, reported
// by the MQTT proxy bridge.
type MQTTStatusUpdate struct {
	PacketID uint32
	Sent     bool
	Reason   string
}

// ErrorEvent reports a fault that no caller is positioned to handle, like a
// malformed inbound frame.
type ErrorEvent struct {
	Component string
	Err       string
	At        time.Time
}

// ConfigReady signals that the device finished replaying its config after a
// want_config request. MyNodeNum is the session's own node number.
type ConfigReady struct {
	MyNodeNum uint32
	At        time.Time
}
