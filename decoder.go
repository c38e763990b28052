package mqtt

import "io"

// Decoder unmarshals the variable header and payload of packets whose
// payload may contain caller-controlled strings (CONNECT, PUBLISH,
// SUBSCRIBE, UNSUBSCRIBE). Suback/Connack/the identified packets need no
// Decoder since they contain no strings.
//
// Implementations decide how to stage the decoded strings: DecoderNoAlloc
// reuses a fixed caller-supplied buffer and performs no heap allocation;
// AllocDecoder asks an injected Allocator for fresh storage on every decode
// (see its doc for the sizes it allocates).
type Decoder interface {
	DecodeConnect(r io.Reader) (VariablesConnect, int, error)
	DecodePublish(r io.Reader, qos QoSLevel) (VariablesPublish, int, error)
	DecodeSubscribe(r io.Reader, remainingLen uint32) (VariablesSubscribe, int, error)
	DecodeUnsubscribe(r io.Reader, remainingLen uint32) (VariablesUnsubscribe, int, error)
}

// DecoderNoAlloc implements Decoder by decoding every string into slices of
// UserBuffer, advancing through it as each string is consumed. It performs
// no heap allocation and is suitable for memory constrained hosts, at the
// cost of rejecting any packet whose strings don't fit in UserBuffer with
// errUserBufferFull. Not safe for concurrent use.
type DecoderNoAlloc struct {
	UserBuffer []byte
}

func (d DecoderNoAlloc) DecodeConnect(r io.Reader) (varConn VariablesConnect, n int, err error) {
	buf := d.UserBuffer
	var ngot int
	varConn.Protocol, ngot, err = decodeMQTTString(r, buf)
	n += ngot
	if err != nil {
		return VariablesConnect{}, n, err
	}
	buf = buf[len(varConn.Protocol):]

	varConn.ProtocolLevel, err = decodeByte(r)
	if err != nil {
		return VariablesConnect{}, n, err
	}
	n++
	flags, err := decodeByte(r)
	if err != nil {
		return VariablesConnect{}, n, err
	}
	n++
	if flags&1 != 0 {
		return VariablesConnect{}, n, errBadConnectFlags
	}
	usernameFlag := flags&(1<<7) != 0
	passwordFlag := flags&(1<<6) != 0
	varConn.WillRetain = flags&(1<<5) != 0
	varConn.WillQoS = QoSLevel(flags>>3) & 0b11
	willFlag := flags&(1<<2) != 0
	varConn.CleanSession = flags&(1<<1) != 0
	if passwordFlag && !usernameFlag {
		return VariablesConnect{}, n, errBadConnectFlags
	}

	varConn.KeepAlive, ngot, err = decodeUint16(r)
	n += ngot
	if err != nil {
		return VariablesConnect{}, n, err
	}

	varConn.ClientID, ngot, err = decodeMQTTString(r, buf)
	n += ngot
	if err != nil {
		return VariablesConnect{}, n, err
	}
	buf = buf[len(varConn.ClientID):]

	if willFlag {
		varConn.WillTopic, ngot, err = decodeMQTTString(r, buf)
		n += ngot
		if err != nil {
			return VariablesConnect{}, n, err
		}
		buf = buf[len(varConn.WillTopic):]
		varConn.WillMessage, ngot, err = decodeMQTTString(r, buf)
		n += ngot
		if err != nil {
			return VariablesConnect{}, n, err
		}
		buf = buf[len(varConn.WillMessage):]
	}

	if usernameFlag {
		varConn.Username, ngot, err = decodeMQTTString(r, buf)
		n += ngot
		if err != nil {
			return VariablesConnect{}, n, err
		}
		buf = buf[len(varConn.Username):]
		if passwordFlag {
			varConn.Password, ngot, err = decodeMQTTString(r, buf)
			n += ngot
			if err != nil {
				return VariablesConnect{}, n, err
			}
		}
	}
	return varConn, n, nil
}

func (d DecoderNoAlloc) DecodePublish(r io.Reader, qos QoSLevel) (VariablesPublish, int, error) {
	return decodePublish(r, d.UserBuffer, qos)
}

func (d DecoderNoAlloc) DecodeSubscribe(r io.Reader, remainingLen uint32) (VariablesSubscribe, int, error) {
	return decodeSubscribeBuf(r, d.UserBuffer, remainingLen)
}

func (d DecoderNoAlloc) DecodeUnsubscribe(r io.Reader, remainingLen uint32) (VariablesUnsubscribe, int, error) {
	return decodeUnsubscribe(r, d.UserBuffer, remainingLen)
}

// decodeSubscribeBuf is like decodeSubscribe but advances through buffer for
// each topic filter decoded instead of reusing its start, so that earlier
// topic filters' bytes aren't overwritten by later ones.
func decodeSubscribeBuf(r io.Reader, buffer []byte, remainingLen uint32) (varSub VariablesSubscribe, n int, err error) {
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
		buffer = buffer[len(topic):]
		qos, err := decodeByte(r)
		if err != nil {
			return VariablesSubscribe{}, n, err
		}
		n++
		varSub.TopicFilters = append(varSub.TopicFilters, SubscribeRequest{TopicFilter: topic, QoS: QoSLevel(qos)})
	}
	if len(varSub.TopicFilters) == 0 {
		return VariablesSubscribe{}, n, errBadPacket("SUBSCRIBE with no topic filters")
	}
	return varSub, n, nil
}
