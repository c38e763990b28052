package mqtt

import (
	"fmt"
	"io"
)

// PacketFlags represents the 4 least significant bits of the first byte of
// an MQTT fixed header. For PUBLISH these encode DUP/QoS/RETAIN; for
// SUBSCRIBE, UNSUBSCRIBE and PUBREL they are fixed at 0b0010; everywhere
// else they are reserved at 0.
type PacketFlags byte

// NewPublishFlags builds the flags nibble for a PUBLISH fixed header.
// QoS must be 0 or 1; QoS 2 and above are rejected with ErrParam since this
// client does not implement QoS 2 (spec.md §1 Non-goals).
func NewPublishFlags(qos QoSLevel, dup, retain bool) (PacketFlags, error) {
	if qos > QoS1 {
		return 0, fmt.Errorf("%w: PUBLISH QoS must be 0 or 1, got %d", ErrParam, qos)
	}
	var f PacketFlags
	if dup {
		f |= 1 << 3
	}
	f |= PacketFlags(qos) << 1
	if retain {
		f |= 1
	}
	return f, nil
}

// QoS extracts the QoS level encoded in a PUBLISH flags nibble.
func (f PacketFlags) QoS() QoSLevel { return QoSLevel(f>>1) & 0b11 }

// Dup reports the DUP bit of a PUBLISH flags nibble.
func (f PacketFlags) Dup() bool { return f&(1<<3) != 0 }

// Retain reports the RETAIN bit of a PUBLISH flags nibble.
func (f PacketFlags) Retain() bool { return f&1 != 0 }

// Header is the MQTT fixed header common to every control packet: a packet
// type, a 4 bit flags nibble, and the remaining-length of everything that
// follows (variable header + payload).
type Header struct {
	firstByte       byte
	RemainingLength uint32
}

// newHeader builds a Header without validating its arguments. Used
// internally and in tests where the caller already knows the values are
// sound (or is intentionally testing a malformed one).
func newHeader(tp PacketType, flags PacketFlags, remlen uint32) Header {
	return Header{firstByte: byte(tp)<<4 | byte(flags&0xF), RemainingLength: remlen}
}

// NewHeader builds a Header, validating the packet type's flags and the
// remaining length against MQTT v3.1.1's limits.
func NewHeader(tp PacketType, flags PacketFlags, remlen uint32) (Header, error) {
	if tp == 0 || tp > PacketDisconnect {
		return Header{}, fmt.Errorf("%w: packet type %d out of range", ErrParam, tp)
	}
	if err := tp.ValidateFlags(byte(flags)); err != nil {
		return Header{}, fmt.Errorf("%w: %s", ErrParam, err)
	}
	if remlen > maxRemainingLengthValue {
		return Header{}, fmt.Errorf("%w: remaining length %d exceeds %d", ErrParam, remlen, maxRemainingLengthValue)
	}
	return newHeader(tp, flags, remlen), nil
}

// Type returns the 4 most significant bits of the fixed header: the packet type.
func (h Header) Type() PacketType { return PacketType(h.firstByte >> 4) }

// Flags returns the 4 least significant bits of the fixed header.
func (h Header) Flags() PacketFlags { return PacketFlags(h.firstByte & 0xF) }

// HasPacketIdentifier reports whether packets of this header's type carry a
// 2 byte packet identifier in their variable header. For PUBLISH this
// depends on QoS, encoded in Flags.
func (h Header) HasPacketIdentifier() bool {
	tp := h.Type()
	if tp == PacketPublish {
		return h.Flags().QoS() > QoS0
	}
	switch tp {
	case PacketConnect, PacketConnack, PacketPingreq, PacketPingresp, PacketDisconnect:
		return false
	default:
		return true
	}
}

// Size returns the number of bytes this header takes up on the wire, or 0 if
// RemainingLength is too large to encode in the 4 bytes MQTT allows.
func (h Header) Size() int {
	n := remainingLengthSize(h.RemainingLength)
	if n == 0 {
		return 0
	}
	return 1 + n
}

// remainingLengthSize returns how many bytes are needed to encode remlen, or
// 0 if remlen exceeds the protocol's maximum encodable value.
func remainingLengthSize(remlen uint32) int {
	switch {
	case remlen > maxRemainingLengthValue:
		return 0
	case remlen < 128:
		return 1
	case remlen < 128*128:
		return 2
	case remlen < 128*128*128:
		return 3
	default:
		return 4
	}
}

// Put encodes the header into buf, which must be at least 5 bytes long, and
// returns the number of bytes written. It does not validate RemainingLength
// and panics if it exceeds maxRemainingLengthValue; a Header built with
// NewHeader never does.
func (h Header) Put(buf []byte) int {
	_ = buf[4]
	buf[0] = h.firstByte
	return encodeRemainingLength(h.RemainingLength, buf[1:]) + 1
}

// Encode writes the header to w, using at most 5 bytes.
func (h Header) Encode(w io.Writer) (n int, err error) {
	if h.RemainingLength > maxRemainingLengthValue {
		return 0, fmt.Errorf("%w: remaining length too large for MQTT v3.1.1", ErrParam)
	}
	var buf [5]byte
	n = h.Put(buf[:])
	return writeFull(w, buf[:n])
}

// DecodeHeader reads a fixed header from r. r should be positioned at the
// first byte of an MQTT control packet.
func DecodeHeader(r io.Reader) (Header, int, error) {
	first, err := decodeByte(r)
	if err != nil {
		return Header{}, 0, err
	}
	n := 1
	remlen, ngot, err := decodeRemainingLength(r)
	n += ngot
	if err != nil {
		return Header{}, n, err
	}
	tp := PacketType(first >> 4)
	flags := first & 0xF
	if tp == 0 || tp > PacketDisconnect {
		return Header{}, n, fmt.Errorf("%w: forbidden packet type %d", ErrPacketError, tp)
	}
	if err := tp.ValidateFlags(flags); err != nil {
		return Header{}, n, fmt.Errorf("%w: %s", ErrPacketError, err)
	}
	return Header{firstByte: first, RemainingLength: remlen}, n, nil
}

// String renders the header for debugging.
func (h Header) String() string {
	return fmt.Sprintf("%s(remlen=%d)", h.Type(), h.RemainingLength)
}

// ValidateFlags checks that flag4bits is legal for packet type p, per
// MQTT v3.1.1 2.2.2.
func (p PacketType) ValidateFlags(flag4bits byte) error {
	isFixedFlagControl := p == PacketPubrel || p == PacketSubscribe || p == PacketUnsubscribe
	if p == PacketPublish || (isFixedFlagControl && flag4bits == 0b0010) || (!isFixedFlagControl && flag4bits == 0) {
		return nil
	}
	if isFixedFlagControl {
		return fmt.Errorf("packet type %s expects flags 0b0010, got 0b%04b", p, flag4bits)
	}
	return fmt.Errorf("packet type %s expects flags 0, got 0b%04b", p, flag4bits)
}

// String renders the packet type's MQTT name.
func (p PacketType) String() string {
	switch p {
	case PacketConnect:
		return "CONNECT"
	case PacketConnack:
		return "CONNACK"
	case PacketPublish:
		return "PUBLISH"
	case PacketPuback:
		return "PUBACK"
	case PacketPubrec:
		return "PUBREC"
	case PacketPubrel:
		return "PUBREL"
	case PacketPubcomp:
		return "PUBCOMP"
	case PacketSubscribe:
		return "SUBSCRIBE"
	case PacketSuback:
		return "SUBACK"
	case PacketUnsubscribe:
		return "UNSUBSCRIBE"
	case PacketUnsuback:
		return "UNSUBACK"
	case PacketPingreq:
		return "PINGREQ"
	case PacketPingresp:
		return "PINGRESP"
	case PacketDisconnect:
		return "DISCONNECT"
	default:
		return "forbidden"
	}
}
