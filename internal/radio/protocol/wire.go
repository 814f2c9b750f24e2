// Package protocol implements the Meshtastic wire schema used over the
// device link: the ToRadio/FromRadio envelopes, mesh packets, admin
// messages and config sections. Messages are encoded and decoded directly
// with the protobuf wire primitives; unknown fields are skipped so newer
// firmware payloads still parse.
package protocol

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// DecodeError reports malformed or truncated wire bytes and names the
// message section that failed to parse.
type DecodeError struct {
	Section string
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("decode %s: malformed wire bytes", e.Section)
	}

	return fmt.Sprintf("decode %s: %v", e.Section, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErrf(section, format string, args ...any) error {
	return &DecodeError{Section: section, Err: fmt.Errorf(format, args...)}
}

// decoder walks one message's fields. It remembers the current tag so
// value reads and skips know the wire type.
type decoder struct {
	section string
	buf     []byte
	num     protowire.Number
	typ     protowire.Type
}

func newDecoder(section string, buf []byte) *decoder {
	return &decoder{section: section, buf: buf}
}

// next advances to the following field tag. It returns false at the clean
// end of the buffer and an error on a torn tag.
func (d *decoder) next() (bool, error) {
	if len(d.buf) == 0 {
		return false, nil
	}
	num, typ, n := protowire.ConsumeTag(d.buf)
	if n < 0 {
		return false, decodeErrf(d.section, "invalid field tag: %v", protowire.ParseError(n))
	}
	d.buf = d.buf[n:]
	d.num = num
	d.typ = typ

	return true, nil
}

func (d *decoder) skip() error {
	n := protowire.ConsumeFieldValue(d.num, d.typ, d.buf)
	if n < 0 {
		return decodeErrf(d.section, "field %d: truncated value: %v", d.num, protowire.ParseError(n))
	}
	d.buf = d.buf[n:]

	return nil
}

func (d *decoder) varint() (uint64, error) {
	if d.typ != protowire.VarintType {
		return 0, decodeErrf(d.section, "field %d: expected varint, got wire type %d", d.num, d.typ)
	}
	v, n := protowire.ConsumeVarint(d.buf)
	if n < 0 {
		return 0, decodeErrf(d.section, "field %d: truncated varint", d.num)
	}
	d.buf = d.buf[n:]

	return v, nil
}

func (d *decoder) bool() (bool, error) {
	v, err := d.varint()

	return v != 0, err
}

func (d *decoder) fixed32() (uint32, error) {
	if d.typ != protowire.Fixed32Type {
		return 0, decodeErrf(d.section, "field %d: expected fixed32, got wire type %d", d.num, d.typ)
	}
	v, n := protowire.ConsumeFixed32(d.buf)
	if n < 0 {
		return 0, decodeErrf(d.section, "field %d: truncated fixed32", d.num)
	}
	d.buf = d.buf[n:]

	return v, nil
}

func (d *decoder) float32() (float32, error) {
	v, err := d.fixed32()

	return math.Float32frombits(v), err
}

func (d *decoder) bytes() ([]byte, error) {
	if d.typ != protowire.BytesType {
		return nil, decodeErrf(d.section, "field %d: expected length-delimited, got wire type %d", d.num, d.typ)
	}
	v, n := protowire.ConsumeBytes(d.buf)
	if n < 0 {
		return nil, decodeErrf(d.section, "field %d: truncated length-delimited value", d.num)
	}
	d.buf = d.buf[n:]
	out := make([]byte, len(v))
	copy(out, v)

	return out, nil
}

func (d *decoder) string() (string, error) {
	v, err := d.bytes()

	return string(v), err
}

// Append helpers. Zero values are still written for fields inside oneof
// payloads where presence matters; plain fields use the appendNonzero
// variants to keep frames minimal, matching proto3 emission.

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)

	return protowire.AppendVarint(b, v)
}

func appendBoolField(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)

	return protowire.AppendVarint(b, 1)
}

func appendFixed32Field(b []byte, num protowire.Number, v uint32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)

	return protowire.AppendFixed32(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)

	return protowire.AppendBytes(b, v)
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)

	return protowire.AppendString(b, v)
}

// appendMessageField always writes the field, even when the nested message
// is empty, so oneof selection survives the round trip.
func appendMessageField(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)

	return protowire.AppendBytes(b, msg)
}

// appendInt32Field writes a proto3 int32 (sign-extended varint, not zigzag).
func appendInt32Field(b []byte, num protowire.Number, v int32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)

	return protowire.AppendVarint(b, uint64(int64(v)))
}
