package transport

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// BLEBridge adapts a host-provided DeviceLink to the Transport interface.
// The GATT plumbing itself lives outside this process; the bridge only
// handles the base64 text framing the link contract uses.
type BLEBridge struct {
	link DeviceLink

	mu       sync.Mutex
	notifyCh <-chan string
}

func NewBLEBridge(link DeviceLink) *BLEBridge {
	return &BLEBridge{link: link}
}

func (b *BLEBridge) Name() string {
	return "ble"
}

func (b *BLEBridge) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !b.link.IsDeviceConnected() {
		return errors.New("device link is not connected")
	}
	b.mu.Lock()
	b.notifyCh = b.link.Notifications()
	b.mu.Unlock()

	return nil
}

func (b *BLEBridge) Close() error {
	b.mu.Lock()
	b.notifyCh = nil
	b.mu.Unlock()

	return nil
}

func (b *BLEBridge) ReadFrame(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	ch := b.notifyCh
	b.mu.Unlock()
	if ch == nil {
		return nil, errors.New("bridge is not connected")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case frame, ok := <-ch:
		if !ok {
			return nil, errors.New("device link closed")
		}
		payload, err := base64.StdEncoding.DecodeString(strings.TrimSpace(frame))
		if err != nil {
			return nil, fmt.Errorf("decode base64 frame: %w", err)
		}

		return payload, nil
	}
}

func (b *BLEBridge) WriteFrame(ctx context.Context, payload []byte) error {
	if !b.link.IsDeviceConnected() {
		return errors.New("device link is not connected")
	}

	return b.link.WriteToDevice(ctx, base64.StdEncoding.EncodeToString(payload))
}
