package mqtt

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Status is the connection status of an Instance (spec.md §3/§4.3): the
// three-state machine DISCONNECTED -> CONNECT_PENDING -> CONNECTED ->
// DISCONNECTED.
type Status uint8

const (
	Disconnected Status = iota
	ConnectPending
	Connected
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case ConnectPending:
		return "connect-pending"
	case Connected:
		return "connected"
	default:
		return "unknown status"
	}
}

// Callbacks groups the user-facing event handlers an Instance dispatches to
// as packets arrive, each invoked with the opaque Cookie given to NewInstance.
type Callbacks struct {
	OnConnack  func(cookie any, sessionPresent bool, rc ConnectReturnCode)
	OnPublish  func(cookie any, topic []byte, payload []byte, qos QoSLevel, retain bool)
	OnPuback   func(cookie any, packetID uint16)
	OnSuback   func(cookie any, packetID uint16, returnCodes []QoSLevel)
	OnUnsuback func(cookie any, packetID uint16)
	OnPingresp func(cookie any)
}

// ConnectOptions configures a Connect call. The protocol name and level are
// always the MQTT v3.1.1 values; ClientID is sent as given, with no default.
type ConnectOptions struct {
	CleanSession bool
	KeepAlive    uint16
	ClientID     []byte
	WillTopic    []byte
	WillMessage  []byte
	WillQoS      QoSLevel
	WillRetain   bool
	Username     []byte
	Password     []byte
}

// Instance is a single MQTT v3.1.1 client session. It owns the packet
// identifier counter, the pending-acknowledgement queue, and the current
// connection Status, and is driven entirely by the host calling Run with a
// monotonically increasing millisecond tick count - the sole time source
// anywhere in this type (spec.md's Design Notes: "avoid global monotonic
// time"; Run's ticks parameter is it).
//
// Not safe for concurrent use: a host sharing one Instance across goroutines
// must serialize every call itself.
type Instance struct {
	transport Transport
	alloc     Allocator
	decoder   Decoder
	rx        Rx
	queue     pktQueue
	state     clientState

	status        Status
	packetID      uint16
	keepAliveSecs uint16
	lastTxTicks   uint32
	nowTicks      uint32

	callbacks Callbacks
	cookie    any

	log *slog.Logger
}

// SetLogger overrides the structured logger Run uses to report operational
// events (keep-alive pings, retry exhaustion, connect timeouts). The
// default, used if this is never called, is slog.Default().
func (i *Instance) SetLogger(log *slog.Logger) { i.log = log }

// NewInstance builds an Instance over transport, using alloc for all packet
// buffer allocation (DefaultAllocator if nil) and decoder for strings found
// in inbound CONNECT/PUBLISH/SUBSCRIBE/UNSUBSCRIBE packets (AllocDecoder
// over alloc if nil). cookie is passed back unchanged to every Callbacks
// entry.
func NewInstance(transport Transport, alloc Allocator, decoder Decoder, cb Callbacks, cookie any) *Instance {
	if alloc == nil {
		alloc = DefaultAllocator{}
	}
	if decoder == nil {
		decoder = AllocDecoder{Alloc: alloc}
	}
	inst := &Instance{
		transport: transport,
		alloc:     alloc,
		decoder:   decoder,
		callbacks: cb,
		cookie:    cookie,
		queue:     pktQueue{alloc: alloc},
		log:       slog.Default(),
	}
	inst.state.inst = inst
	inst.rx.userDecoder = decoder
	inst.rx.RxCallbacks = inst.state.rxCallbacks()
	return inst
}

// Status reports the instance's current connection status.
func (i *Instance) Status() Status { return i.status }

// nextPacketID returns the next packet identifier, skipping the reserved
// value 0 and wrapping from 65535 back to 1.
func (i *Instance) nextPacketID() uint16 {
	i.packetID++
	if i.packetID == 0 {
		i.packetID = 1
	}
	return i.packetID
}

// frame allocates a buffer sized to exactly fit a fixed header with the
// given RemainingLength plus body, and returns it still holding only the
// encoded header (callers append the body themselves). Returns ErrBufSize
// if allocation failed or came back undersized.
func (i *Instance) frame(tp PacketType, flags PacketFlags, bodySize int) (*bytes.Buffer, error) {
	hdr, err := NewHeader(tp, flags, uint32(bodySize))
	if err != nil {
		return nil, err
	}
	raw := i.alloc.Alloc(hdr.Size() + bodySize)
	if len(raw) < hdr.Size()+bodySize {
		return nil, ErrBufSize
	}
	buf := bytes.NewBuffer(raw[:0])
	if _, err := hdr.Encode(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// send writes buf to the transport and, on success, records lastTxTicks.
// A short write without an I/O error is itself reported as ErrNetwork.
func (i *Instance) send(buf []byte) error {
	n, err := i.transport.WritePacket(buf, false)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNetwork, err)
	}
	if n != len(buf) {
		return fmt.Errorf("%w: short write, wrote %d of %d bytes", ErrNetwork, n, len(buf))
	}
	i.lastTxTicks = i.nowTicks
	return nil
}

// writeIdentified sends a bare (type, packet identifier) packet, used for
// PUBACK in response to an inbound QoS 1 PUBLISH. Not queued for retry:
// spec.md only requires client-originated sends to retry.
func (i *Instance) writeIdentified(tp PacketType, packetID uint16) error {
	var flags PacketFlags
	if tp == PacketPubrel {
		flags = PacketFlagsPubrelSubUnsub
	}
	buf, err := i.frame(tp, flags, 2)
	if err != nil {
		return err
	}
	if _, err := encodeUint16(buf, packetID); err != nil {
		return err
	}
	return i.send(buf.Bytes())
}

// Connect sends a CONNECT packet and transitions the instance to
// CONNECT_PENDING. It takes no ticks parameter: per spec.md §6 only Run
// carries the clock, so lastTxTicks (and this CONNECT's queue entry) starts
// out implicitly timestamped at whatever tick Run was last called with (0
// if Run has never run yet).
//
// Calling Connect again while CONNECT_PENDING or CONNECTED sends nothing and
// returns an error wrapping errAlreadyConnecting that names the current Status.
func (i *Instance) Connect(opts ConnectOptions) error {
	if i.status == ConnectPending || i.status == Connected {
		return i.status.asInfo()
	}
	var varConn VariablesConnect
	varConn.SetDefaultMQTT(opts.ClientID)
	varConn.CleanSession = opts.CleanSession
	varConn.KeepAlive = opts.KeepAlive
	varConn.WillTopic = opts.WillTopic
	varConn.WillMessage = opts.WillMessage
	varConn.WillQoS = opts.WillQoS
	varConn.WillRetain = opts.WillRetain
	varConn.Username = opts.Username
	varConn.Password = opts.Password
	if err := varConn.Validate(); err != nil {
		return err
	}

	buf, err := i.frame(PacketConnect, 0, varConn.Size())
	if err != nil {
		return err
	}
	if _, err := encodeConnect(buf, &varConn); err != nil {
		return err
	}
	if err := i.send(buf.Bytes()); err != nil {
		// A CONNECT that failed to go out at all is not retried by Run; the
		// caller is expected to call Connect again, as the original C test
		// suite's initiateConnect helper does.
		return err
	}
	i.keepAliveSecs = opts.KeepAlive
	i.queue.enqueue(buf.Bytes(), 0, i.nowTicks)
	i.status = ConnectPending
	return nil
}

// Publish sends a PUBLISH packet. For qos > QoS0 the packet is assigned a
// packet identifier and enqueued for retry until the matching PUBACK
// arrives; for QoS0 it is fire-and-forget. Returns the assigned packet
// identifier, or 0 for QoS0.
func (i *Instance) Publish(topic, payload []byte, qos QoSLevel, dup, retain bool) (uint16, error) {
	if i.status != Connected {
		return 0, fmt.Errorf("%w: not connected", ErrNetwork)
	}
	flags, err := NewPublishFlags(qos, dup, retain)
	if err != nil {
		return 0, err
	}
	var varPub VariablesPublish
	varPub.TopicName = topic
	var packetID uint16
	if qos > QoS0 {
		packetID = i.nextPacketID()
		varPub.PacketIdentifier = packetID
	}

	buf, err := i.frame(PacketPublish, flags, varPub.Size(qos)+len(payload))
	if err != nil {
		return 0, err
	}
	if _, err := encodePublish(buf, qos, varPub); err != nil {
		return 0, err
	}
	if _, err := writeFull(buf, payload); err != nil {
		return 0, err
	}

	sendErr := i.send(buf.Bytes())
	if qos > QoS0 {
		// spec.md §4.3: a write failure on a QoS>0 packet still leaves it
		// queued, so Run's retry scan gets a chance to retransmit it.
		i.queue.enqueue(buf.Bytes(), packetID, i.nowTicks)
	}
	return packetID, sendErr
}

// Subscribe sends a SUBSCRIBE packet for the given topic filters and enqueues
// it for retry until the matching SUBACK arrives. Returns the assigned
// packet identifier.
func (i *Instance) Subscribe(filters []SubscribeRequest) (uint16, error) {
	if i.status != Connected {
		return 0, fmt.Errorf("%w: not connected", ErrNetwork)
	}
	varSub := VariablesSubscribe{PacketIdentifier: i.nextPacketID(), TopicFilters: filters}
	if err := varSub.Validate(); err != nil {
		return 0, err
	}

	buf, err := i.frame(PacketSubscribe, PacketFlagsPubrelSubUnsub, varSub.Size())
	if err != nil {
		return 0, err
	}
	if _, err := encodeSubscribe(buf, varSub); err != nil {
		return 0, err
	}

	sendErr := i.send(buf.Bytes())
	i.queue.enqueue(buf.Bytes(), varSub.PacketIdentifier, i.nowTicks)
	i.state.pendingSubs = filters
	i.state.pendingSubsPI = varSub.PacketIdentifier
	return varSub.PacketIdentifier, sendErr
}

// Unsubscribe sends an UNSUBSCRIBE packet for the given topics and enqueues
// it for retry until the matching UNSUBACK arrives. Returns the assigned
// packet identifier.
func (i *Instance) Unsubscribe(topics [][]byte) (uint16, error) {
	if i.status != Connected {
		return 0, fmt.Errorf("%w: not connected", ErrNetwork)
	}
	varUnsub := VariablesUnsubscribe{PacketIdentifier: i.nextPacketID(), Topics: topics}
	if err := varUnsub.Validate(); err != nil {
		return 0, err
	}

	buf, err := i.frame(PacketUnsubscribe, PacketFlagsPubrelSubUnsub, varUnsub.Size())
	if err != nil {
		return 0, err
	}
	if _, err := encodeUnsubscribe(buf, varUnsub); err != nil {
		return 0, err
	}

	sendErr := i.send(buf.Bytes())
	i.queue.enqueue(buf.Bytes(), varUnsub.PacketIdentifier, i.nowTicks)
	return varUnsub.PacketIdentifier, sendErr
}

// Disconnect sends a DISCONNECT packet and immediately transitions to
// disconnected, regardless of whether the write succeeds: per MQTT v3.1.1
// a client that has asked to disconnect cleanly has no further use for the
// session either way.
func (i *Instance) Disconnect() error {
	if i.status == Disconnected {
		return nil
	}
	buf, err := i.frame(PacketDisconnect, 0, 0)
	var sendErr error
	if err == nil {
		sendErr = i.send(buf.Bytes())
	} else {
		sendErr = err
	}
	i.status = Disconnected
	return sendErr
}

// Run drives the instance's state machine forward, using ticks as the
// current absolute time in milliseconds. It performs, in order: (1) pumping
// every packet currently available from the transport, (2) checking for a
// CONNECT that has gone unacknowledged too long, (3) sending a keep-alive
// PINGREQ if idle too long, and (4) scanning the retry queue for
// unacknowledged QoS>0 packets due for retransmission.
//
// A transport read failure aborts Run immediately with ErrNetwork. A decode
// or dispatch failure during the pump is recorded but does not abort Run;
// it is returned only if no later step in this call reports its own error.
func (i *Instance) Run(ticks uint32) error {
	i.nowTicks = ticks

	pumpErr := i.pump()
	if pumpErr != nil && errors.Is(pumpErr, ErrNetwork) {
		return pumpErr
	}

	if i.status == ConnectPending && ticks-i.lastTxTicks > ConnectTimeoutMS {
		i.log.Warn("mqtt: CONNECT timed out waiting for CONNACK", "ticks", ticks)
		i.queue.removeByType(PacketConnect)
		i.status = Disconnected
		return ErrTimeout
	}

	if i.status == Connected && i.keepAliveSecs > 0 {
		keepAliveMS := uint32(i.keepAliveSecs) * 1000 * 2 / 3
		if ticks-i.lastTxTicks >= keepAliveMS {
			i.log.Debug("mqtt: sending keep-alive PINGREQ", "ticks", ticks)
			if err := i.ping(); err != nil {
				return err
			}
		}
	}

	if retryErr := i.queue.scanRetries(ticks, i.send); retryErr != nil {
		if errors.Is(retryErr, ErrTimeout) {
			i.log.Warn("mqtt: retry budget exhausted, dropping packet", "ticks", ticks)
		}
		return retryErr
	}

	return pumpErr
}

func (i *Instance) ping() error {
	buf, err := i.frame(PacketPingreq, 0, 0)
	if err != nil {
		return err
	}
	return i.send(buf.Bytes())
}

// pump reads and dispatches every packet currently buffered on the
// transport. A transport-level read error aborts the pump (and is wrapped
// as ErrNetwork); a decode/dispatch error on one packet is remembered and
// the pump keeps draining the transport, since later packets are
// independent of an earlier malformed one.
func (i *Instance) pump() error {
	var firstErr error
	for {
		raw, err := i.transport.ReadPacket()
		if err != nil {
			return fmt.Errorf("%w: %s", ErrNetwork, err)
		}
		if raw == nil {
			return firstErr
		}
		i.rx.SetRxTransport(io.NopCloser(bytes.NewReader(raw)))
		if _, err := i.rx.ReadNextPacket(); err != nil {
			i.log.Warn("mqtt: dropping malformed inbound packet", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
}

// asInfo turns a Status into the informational (non-error in spirit, but
// still returned to the caller for inspection) value Connect returns when
// called again mid-handshake or while already connected.
func (s Status) asInfo() error {
	return fmt.Errorf("%w: instance is %s", errAlreadyConnecting, s)
}

var errAlreadyConnecting = errors.New("mqtt: connect already in progress or established")
