package transport

import "context"

// Transport moves opaque protobuf frames to and from the device.
type Transport interface {
	Name() string
	Connect(ctx context.Context) error
	Close() error
	ReadFrame(ctx context.Context) ([]byte, error)
	WriteFrame(ctx context.Context, payload []byte) error
}

// DeviceLink is the contract with the host's GATT layer when the device is
// reached over BLE. The link carries base64 text over the Meshtastic
// characteristic pair; frame notifications arrive on Notifications.
type DeviceLink interface {
	WriteToDevice(ctx context.Context, frame string) error
	IsDeviceConnected() bool
	// Notifications yields base64 frames pushed by the device. The channel
	// closes when the link drops.
	Notifications() <-chan string
}
