package mqtt

import (
	"errors"
	"fmt"
	"io"
)

// decodeRemainingLength reads 1-4 bytes from r and decodes the Remaining
// Length field. It returns ErrPacketError if the field claims more than 4
// bytes (spec.md §4.1).
func decodeRemainingLength(r io.Reader) (value uint32, n int, err error) {
	multiplier := uint32(1)
	for i := 0; i < maxRemainingLengthSize; i++ {
		encodedByte, err := decodeByte(r)
		if err != nil {
			return value, n, err
		}
		n++
		value += uint32(encodedByte&127) * multiplier
		if encodedByte&128 == 0 {
			return value, n, nil
		}
		multiplier *= 128
	}
	return 0, n, fmt.Errorf("%w: remaining length claims more than 4 bytes", ErrPacketError)
}

func readFull(src io.Reader, dst []byte) (int, error) {
	n, err := src.Read(dst)
	if err == nil && n != len(dst) {
		var buf [256]byte
		i64, err := io.CopyBuffer(&limitedWriter{dst: dst[n:]}, src, buf[:])
		i := int(i64)
		if err != nil && errors.Is(err, io.EOF) && i == len(dst[n:]) {
			err = nil
		}
		return n + i, err
	}
	return n, err
}

// limitedWriter copies into a fixed destination slice, used by readFull's
// fallback path when a single Read does not fill dst.
type limitedWriter struct {
	dst []byte
	off int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	n := copy(w.dst[w.off:], p)
	w.off += n
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// decodeMQTTString reads a 2 byte length prefixed string from r into the
// start of buffer, which must be at least 2 bytes long. It returns a slice
// of buffer's backing array: callers needing to keep the result across
// decodes of further strings must copy it out.
func decodeMQTTString(r io.Reader, buffer []byte) ([]byte, int, error) {
	if len(buffer) < 2 {
		return nil, 0, errUserBufferFull
	}
	strLen, n, err := decodeUint16(r)
	if err != nil {
		return nil, n, err
	}
	if strLen > uint16(len(buffer)) {
		return nil, n, errUserBufferFull
	}
	ngot, err := readFull(r, buffer[:strLen])
	n += ngot
	if err != nil && errors.Is(err, io.EOF) && uint16(ngot) == strLen {
		err = nil
	}
	return buffer[:strLen], n, err
}

func decodeByte(r io.Reader) (value byte, err error) {
	var buf [1]byte
	n, err := r.Read(buf[:])
	if err != nil && errors.Is(err, io.EOF) && n == 1 {
		err = nil
	}
	return buf[0], err
}

func decodeUint16(r io.Reader) (value uint16, n int, err error) {
	var buf [2]byte
	n, err = readFull(r, buf[:])
	if err != nil && errors.Is(err, io.EOF) && n == 2 {
		err = nil
	}
	return uint16(buf[0])<<8 | uint16(buf[1]), n, err
}

func decodeConnack(r io.Reader) (VariablesConnack, int, error) {
	var buf [2]byte
	n, err := readFull(r, buf[:])
	if err != nil {
		return VariablesConnack{}, n, err
	}
	varConnack := VariablesConnack{AckFlags: buf[0], ReturnCode: ConnectReturnCode(buf[1])}
	if err := varConnack.validate(); err != nil {
		return VariablesConnack{}, n, err
	}
	return varConnack, n, nil
}

func decodePublish(r io.Reader, payloadDst []byte, qos QoSLevel) (VariablesPublish, int, error) {
	topic, n, err := decodeMQTTString(r, payloadDst)
	if err != nil {
		return VariablesPublish{}, n, err
	}
	var pi uint16
	if qos > QoS0 {
		var ngot int
		pi, ngot, err = decodeUint16(r)
		n += ngot
		if err != nil {
			return VariablesPublish{}, n, err
		}
		if pi == 0 {
			return VariablesPublish{}, n, errGotZeroPI
		}
	}
	return VariablesPublish{TopicName: topic, PacketIdentifier: pi}, n, nil
}

func decodeSubscribe(r io.Reader, buffer []byte, remainingLen uint32) (varSub VariablesSubscribe, n int, err error) {
	varSub.PacketIdentifier, n, err = decodeUint16(r)
	if err != nil {
		return VariablesSubscribe{}, n, err
	}
	if varSub.PacketIdentifier == 0 {
		return VariablesSubscribe{}, n, errGotZeroPI
	}
	for n < int(remainingLen) {
		topic, ngot, err := decodeMQTTString(r, buffer)
		n += ngot
		if err != nil {
			return VariablesSubscribe{}, n, err
		}
		topicCopy := append([]byte(nil), topic...)
		qos, err := decodeByte(r)
		if err != nil {
			return VariablesSubscribe{}, n, err
		}
		n++
		varSub.TopicFilters = append(varSub.TopicFilters, SubscribeRequest{TopicFilter: topicCopy, QoS: QoSLevel(qos)})
	}
	if len(varSub.TopicFilters) == 0 {
		return VariablesSubscribe{}, n, fmt.Errorf("%w: SUBSCRIBE with no topic filters", ErrPacketError)
	}
	return varSub, n, nil
}

func decodeSuback(r io.Reader, remainingLen uint32) (varSuback VariablesSuback, n int, err error) {
	varSuback.PacketIdentifier, n, err = decodeUint16(r)
	if err != nil {
		return VariablesSuback{}, n, err
	}
	for n < int(remainingLen) {
		rc, err := decodeByte(r)
		if err != nil {
			return VariablesSuback{}, n, err
		}
		n++
		varSuback.ReturnCodes = append(varSuback.ReturnCodes, QoSLevel(rc))
	}
	return varSuback, n, nil
}

func decodeUnsubscribe(r io.Reader, buffer []byte, remainingLen uint32) (varUnsub VariablesUnsubscribe, n int, err error) {
	varUnsub.PacketIdentifier, n, err = decodeUint16(r)
	if err != nil {
		return VariablesUnsubscribe{}, n, err
	}
	if varUnsub.PacketIdentifier == 0 {
		return VariablesUnsubscribe{}, n, errGotZeroPI
	}
	for n < int(remainingLen) {
		topic, ngot, err := decodeMQTTString(r, buffer)
		n += ngot
		if err != nil {
			return VariablesUnsubscribe{}, n, err
		}
		varUnsub.Topics = append(varUnsub.Topics, append([]byte(nil), topic...))
	}
	if len(varUnsub.Topics) == 0 {
		return VariablesUnsubscribe{}, n, fmt.Errorf("%w: UNSUBSCRIBE with no topics", ErrPacketError)
	}
	return varUnsub, n, nil
}
