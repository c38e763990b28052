package mqtt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// encodeRemainingLength emits the minimum number of bytes (1-4) required to
// represent remlen, per spec.md §4.1. remlen must already be known to be
// within maxRemainingLengthValue.
func encodeRemainingLength(remlen uint32, b []byte) (n int) {
	if remlen > maxRemainingLengthValue {
		panic("mqtt: remaining length too large to encode")
	}
	for n = 0; n == 0 || remlen > 0; n++ {
		encoded := byte(remlen % 128)
		remlen /= 128
		if remlen > 0 {
			encoded |= 128
		}
		b[n] = encoded
	}
	return n
}

func encodeMQTTString(w io.Writer, s []byte) (int, error) {
	if len(s) > math.MaxUint16 {
		return 0, fmt.Errorf("%w: string longer than MaxUint16", ErrParam)
	}
	n, err := encodeUint16(w, uint16(len(s)))
	if err != nil {
		return n, err
	}
	n2, err := writeFull(w, s)
	n += n2
	return n, err
}

func encodeByte(w io.Writer, value byte) (int, error) {
	var buf [1]byte
	buf[0] = value
	return writeFull(w, buf[:])
}

func encodeUint16(w io.Writer, value uint16) (int, error) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], value)
	return writeFull(w, buf[:])
}

func writeFull(dst io.Writer, src []byte) (int, error) {
	n, err := dst.Write(src)
	if err == nil && n != len(src) {
		var buf [256]byte
		i64, err := io.CopyBuffer(dst, bytes.NewReader(src[n:]), buf[:])
		return n + int(i64), err
	}
	return n, err
}

// encodeConnect writes the CONNECT variable header and payload (not the
// fixed header) to w. varConn must already have passed Validate.
func encodeConnect(w io.Writer, varConn *VariablesConnect) (n int, err error) {
	if err := varConn.Validate(); err != nil {
		return 0, err
	}
	ngot, err := encodeMQTTString(w, varConn.Protocol)
	n += ngot
	if err != nil {
		return n, err
	}
	var hdr [2]byte
	hdr[0] = varConn.ProtocolLevel
	hdr[1] = varConn.Flags()
	ngot, err = writeFull(w, hdr[:])
	n += ngot
	if err != nil {
		return n, err
	}
	ngot, err = encodeUint16(w, varConn.KeepAlive)
	n += ngot
	if err != nil {
		return n, err
	}
	ngot, err = encodeMQTTString(w, varConn.ClientID)
	n += ngot
	if err != nil {
		return n, err
	}
	if varConn.WillFlag() {
		ngot, err = encodeMQTTString(w, varConn.WillTopic)
		n += ngot
		if err != nil {
			return n, err
		}
		ngot, err = encodeMQTTString(w, varConn.WillMessage)
		n += ngot
		if err != nil {
			return n, err
		}
	}
	if len(varConn.Username) != 0 {
		ngot, err = encodeMQTTString(w, varConn.Username)
		n += ngot
		if err != nil {
			return n, err
		}
		if len(varConn.Password) != 0 {
			ngot, err = encodeMQTTString(w, varConn.Password)
			n += ngot
			if err != nil {
				return n, err
			}
		}
	}
	return n, nil
}

func encodeConnack(w io.Writer, varConnack VariablesConnack) (int, error) {
	var buf [2]byte
	buf[0] = varConnack.AckFlags
	buf[1] = byte(varConnack.ReturnCode)
	return writeFull(w, buf[:])
}

// encodePublish writes the PUBLISH variable header (topic + optional packet
// identifier) to w. Does not write the payload or fixed header.
func encodePublish(w io.Writer, qos QoSLevel, varPub VariablesPublish) (n int, err error) {
	n, err = encodeMQTTString(w, varPub.TopicName)
	if err != nil {
		return n, err
	}
	if qos > QoS0 {
		if varPub.PacketIdentifier == 0 {
			return n, errGotZeroPI
		}
		ngot, err := encodeUint16(w, varPub.PacketIdentifier)
		n += ngot
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func encodeSubscribe(w io.Writer, varSub VariablesSubscribe) (n int, err error) {
	if err := varSub.Validate(); err != nil {
		return 0, err
	}
	if varSub.PacketIdentifier == 0 {
		return 0, errGotZeroPI
	}
	n, err = encodeUint16(w, varSub.PacketIdentifier)
	if err != nil {
		return n, err
	}
	for _, tf := range varSub.TopicFilters {
		ngot, err := encodeMQTTString(w, tf.TopicFilter)
		n += ngot
		if err != nil {
			return n, err
		}
		ngot, err = encodeByte(w, byte(tf.QoS&0b11))
		n += ngot
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func encodeSuback(w io.Writer, varSuback VariablesSuback) (n int, err error) {
	if err := varSuback.Validate(); err != nil {
		return 0, err
	}
	n, err = encodeUint16(w, varSuback.PacketIdentifier)
	if err != nil {
		return n, err
	}
	for _, rc := range varSuback.ReturnCodes {
		ngot, err := encodeByte(w, byte(rc))
		n += ngot
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func encodeUnsubscribe(w io.Writer, varUnsub VariablesUnsubscribe) (n int, err error) {
	if err := varUnsub.Validate(); err != nil {
		return 0, err
	}
	if varUnsub.PacketIdentifier == 0 {
		return 0, errGotZeroPI
	}
	n, err = encodeUint16(w, varUnsub.PacketIdentifier)
	if err != nil {
		return n, err
	}
	for _, t := range varUnsub.Topics {
		ngot, err := encodeMQTTString(w, t)
		n += ngot
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// Pings and DISCONNECT have no variable header: nothing to encode beyond the fixed header.
