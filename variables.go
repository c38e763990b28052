package mqtt

import "fmt"

// VariablesConnect holds the CONNECT packet's variable header and payload
// fields (spec.md §4.1 CONNECT).
type VariablesConnect struct {
	// Protocol name, "MQTT" for v3.1.1.
	Protocol []byte
	// ProtocolLevel is 4 for v3.1.1.
	ProtocolLevel uint8
	CleanSession  bool
	WillQoS       QoSLevel
	WillRetain    bool
	KeepAlive     uint16
	ClientID      []byte
	WillTopic     []byte
	WillMessage   []byte
	Username      []byte
	Password      []byte
}

// SetDefaultMQTT sets the protocol fields to the MQTT v3.1.1 defaults and
// the given client ID, with CleanSession true and no will/user/password.
func (v *VariablesConnect) SetDefaultMQTT(clientID []byte) {
	v.Protocol = []byte(DefaultProtocol)
	v.ProtocolLevel = DefaultProtocolLevel
	v.CleanSession = true
	v.ClientID = clientID
}

// WillFlag reports whether a will topic/message pair is present.
func (v VariablesConnect) WillFlag() bool { return len(v.WillTopic) != 0 || len(v.WillMessage) != 0 }

// Flags encodes the CONNECT flags byte: username | password | will-retain |
// will-qos[4:3] | will-flag | clean-session | reserved(0).
func (v VariablesConnect) Flags() byte {
	var f byte
	if len(v.Username) != 0 {
		f |= 1 << 7
	}
	if len(v.Password) != 0 {
		f |= 1 << 6
	}
	if v.WillRetain {
		f |= 1 << 5
	}
	f |= byte(v.WillQoS&0b11) << 3
	if v.WillFlag() {
		f |= 1 << 2
	}
	if v.CleanSession {
		f |= 1 << 1
	}
	return f
}

// Validate checks the invariants spec.md §4.1 places on CONNECT fields:
// will-topic and will-message must both be present or both absent, and
// will-QoS must not exceed QoS1 (this client does not implement QoS2).
func (v VariablesConnect) Validate() error {
	haveTopic, haveMsg := len(v.WillTopic) != 0, len(v.WillMessage) != 0
	if haveTopic != haveMsg {
		return fmt.Errorf("%w: will-topic and will-message must both be present or both absent", ErrParam)
	}
	if v.WillFlag() && v.WillQoS > QoS1 {
		return fmt.Errorf("%w: will QoS must be 0 or 1, got %d", ErrParam, v.WillQoS)
	}
	if len(v.Password) != 0 && len(v.Username) == 0 {
		return fmt.Errorf("%w: password given without username", ErrParam)
	}
	return nil
}

// Size returns the number of bytes Size's CONNECT variable header and
// payload would occupy on the wire.
func (v VariablesConnect) Size() int {
	n := 2 + len(v.Protocol) + 1 + 1 + 2 // protocol string + level + flags + keepalive
	n += stringSize(v.ClientID)
	if v.WillFlag() {
		n += stringSize(v.WillTopic)
		n += stringSize(v.WillMessage)
	}
	if len(v.Username) != 0 {
		n += stringSize(v.Username)
		if len(v.Password) != 0 {
			n += stringSize(v.Password)
		}
	}
	return n
}

func stringSize(s []byte) int { return 2 + len(s) }

// VariablesConnack holds the CONNACK packet's variable header.
type VariablesConnack struct {
	// AckFlags bit 0 is the Session Present flag; bits 1-7 are reserved.
	AckFlags   byte
	ReturnCode ConnectReturnCode
}

// SessionPresent reports the Session Present flag.
func (v VariablesConnack) SessionPresent() bool { return v.AckFlags&1 != 0 }

// Size returns the fixed 2 byte size of a CONNACK variable header.
func (v VariablesConnack) Size() int { return 2 }

func (v VariablesConnack) validate() error {
	if v.ReturnCode != ReturnCodeConnAccepted && v.AckFlags&1 != 0 {
		return fmt.Errorf("%w: CONNACK session-present set with non-zero return code", ErrPacketError)
	}
	if v.ReturnCode >= minInvalidReturnCode {
		return fmt.Errorf("%w: CONNACK return code %d out of range", ErrPacketError, v.ReturnCode)
	}
	return nil
}

// VariablesPublish holds the PUBLISH packet's variable header.
type VariablesPublish struct {
	TopicName        []byte
	PacketIdentifier uint16
}

// Size returns the variable header size for a given QoS: the topic name
// string, plus 2 bytes of packet identifier if qos > 0.
func (v VariablesPublish) Size(qos QoSLevel) int {
	n := stringSize(v.TopicName)
	if qos > QoS0 {
		n += 2
	}
	return n
}

// SubscribeRequest is one (topic filter, requested QoS) pair in a SUBSCRIBE
// packet's payload.
type SubscribeRequest struct {
	TopicFilter []byte
	QoS         QoSLevel
}

// VariablesSubscribe holds the SUBSCRIBE packet's variable header and payload.
type VariablesSubscribe struct {
	PacketIdentifier uint16
	TopicFilters     []SubscribeRequest
}

// Validate checks that at least one topic filter/QoS pair is present, as
// required by spec.md §4.1.
func (v VariablesSubscribe) Validate() error {
	if len(v.TopicFilters) == 0 {
		return fmt.Errorf("%w: SUBSCRIBE requires at least one topic filter", ErrParam)
	}
	for _, tf := range v.TopicFilters {
		if len(tf.TopicFilter) == 0 {
			return fmt.Errorf("%w: empty topic filter in SUBSCRIBE", ErrParam)
		}
		if tf.QoS > QoS1 {
			return fmt.Errorf("%w: SUBSCRIBE QoS must be 0 or 1, got %d", ErrParam, tf.QoS)
		}
	}
	return nil
}

// Size returns the on-wire size of the SUBSCRIBE variable header + payload.
func (v VariablesSubscribe) Size() int {
	n := 2
	for _, tf := range v.TopicFilters {
		n += stringSize(tf.TopicFilter) + 1
	}
	return n
}

// VariablesSuback holds the SUBACK packet's variable header and payload.
type VariablesSuback struct {
	PacketIdentifier uint16
	ReturnCodes      []QoSLevel
}

// Validate checks that every return code is a valid QoS or the special
// QoSSubfail marker.
func (v VariablesSuback) Validate() error {
	if v.PacketIdentifier == 0 {
		return fmt.Errorf("%w: SUBACK packet identifier must be non-zero", ErrParam)
	}
	for _, rc := range v.ReturnCodes {
		if !rc.IsValid() && rc != QoSSubfail {
			return fmt.Errorf("%w: SUBACK return code %d invalid", ErrParam, rc)
		}
	}
	return nil
}

// Size returns the on-wire size of the SUBACK variable header + payload.
func (v VariablesSuback) Size() int { return 2 + len(v.ReturnCodes) }

// VariablesUnsubscribe holds the UNSUBSCRIBE packet's variable header and payload.
type VariablesUnsubscribe struct {
	PacketIdentifier uint16
	Topics           [][]byte
}

// Validate checks that at least one non-empty topic is present, as required
// by spec.md §4.1.
func (v VariablesUnsubscribe) Validate() error {
	if len(v.Topics) == 0 {
		return fmt.Errorf("%w: UNSUBSCRIBE requires at least one topic", ErrParam)
	}
	for _, t := range v.Topics {
		if len(t) == 0 {
			return fmt.Errorf("%w: empty topic in UNSUBSCRIBE", ErrParam)
		}
	}
	return nil
}

// Size returns the on-wire size of the UNSUBSCRIBE variable header + payload.
func (v VariablesUnsubscribe) Size() int {
	n := 2
	for _, t := range v.Topics {
		n += stringSize(t)
	}
	return n
}
