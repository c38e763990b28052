package mqtt

import (
	"errors"
	"fmt"
)

// Error kinds returned by codec, queue and instance operations. These are
// sentinel errors; callers should compare with errors.Is, not equality,
// since most are wrapped with additional context via fmt.Errorf("%w: ...").
var (
	// ErrParam marks a null, zero-length or logically inconsistent argument,
	// e.g. a will-topic given without a will-message, or QoS > 1 on encode.
	ErrParam = errors.New("mqtt: invalid parameter")
	// ErrBufSize marks an allocation failure or an undersized caller buffer.
	ErrBufSize = errors.New("mqtt: buffer too small or allocation failed")
	// ErrPacketError marks malformed inbound bytes or a remaining-length mismatch.
	ErrPacketError = errors.New("mqtt: malformed packet")
	// ErrNetwork marks a transport read/write failure or a partial write.
	ErrNetwork = errors.New("mqtt: network error")
	// ErrTimeout marks a CONNECT that went unacknowledged past CONNECT_TIMEOUT_MS,
	// or a PktBuf whose retry budget was exhausted.
	ErrTimeout = errors.New("mqtt: timeout")

	// errGotZeroPI marks decode or encode of a packet identifier of 0, which
	// is reserved and never valid on the wire for packets that carry one.
	errGotZeroPI = errors.New("mqtt: packet identifier is zero")
	// errBadRemainingLen marks a remaining-length field inconsistent with the
	// packet type being decoded (wrong fixed size, or too short a variable one).
	errBadRemainingLen = errors.New("mqtt: bad remaining length for packet type")
	// errUserBufferFull marks a caller-supplied scratch buffer too small to
	// hold a decoded MQTT string.
	errUserBufferFull = errors.New("mqtt: user buffer too small for string")
	// errBadConnectFlags marks a CONNECT flags byte with the reserved bit
	// set, or PASSWORD set without USERNAME.
	errBadConnectFlags = fmt.Errorf("%w: malformed CONNECT flags byte", ErrPacketError)
)

// errBadPacket wraps ErrPacketError with a short reason string.
func errBadPacket(reason string) error { return fmt.Errorf("%w: %s", ErrPacketError, reason) }
