package transport

import (
	"bytes"
	"testing"
)

func TestEncodeFrameHeader(t *testing.T) {
	frame, err := encodeFrame([]byte{0xAA, 0xBB, 0xCC})
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	want := []byte{0x94, 0xC3, 0x00, 0x03, 0xAA, 0xBB, 0xCC}
	if !bytes.Equal(frame, want) {
		t.Fatalf("frame mismatch: got %x want %x", frame, want)
	}
}

func TestEncodeFrameRejectsOversizedPayload(t *testing.T) {
	if _, err := encodeFrame(make([]byte, 70000)); err == nil {
		t.Fatalf("expected error for payload above uint16 range")
	}
}

func TestReadFrameResyncsPastGarbage(t *testing.T) {
	payload := []byte{0x08, 0x01}
	frame, err := encodeFrame(payload)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	// Boot log noise before the frame, including a lone 0x94.
	stream := append([]byte("boot\x94log\r\n"), frame...)

	got, err := readFrame(ioReadFullFunc(bytes.NewReader(stream)))
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: got %x want %x", got, payload)
	}
}

func TestReadFrameRejectsZeroLength(t *testing.T) {
	stream := []byte{0x94, 0xC3, 0x00, 0x00}
	if _, err := readFrame(ioReadFullFunc(bytes.NewReader(stream))); err == nil {
		t.Fatalf("expected error for zero-length frame")
	}
}

func TestReadFrameRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte{0x5A}, 300)
	frame, err := encodeFrame(payload)
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	got, err := readFrame(ioReadFullFunc(bytes.NewReader(frame)))
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch after round trip")
	}
}
