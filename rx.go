package mqtt

import (
	"errors"
	"fmt"
	"io"
)

// Rx implements the receiving half of the MQTT v3.1.1 transport layer: it
// reads one framed packet at a time from an underlying transport, decodes
// it, and synchronously dispatches the result to the matching RxCallbacks
// entry before ReadNextPacket returns (spec.md §5: callbacks are invoked
// from within the call that received the packet, never from another
// goroutine). Not safe for concurrent use.
type Rx struct {
	rxTrp       io.ReadCloser
	RxCallbacks RxCallbacks
	userDecoder Decoder
	// scratchBuf is lazily allocated to exhaust PUBLISH payloads that have
	// no OnPub callback set.
	scratchBuf []byte
	// LastReceivedHeader is the fixed header of the most recently decoded
	// packet, valid for the duration of a RxCallbacks call.
	LastReceivedHeader Header
}

// RxCallbacks groups the functions invoked for each inbound packet type.
// All are optional; a nil callback for a given type causes that packet
// (or its payload, for PUBLISH) to be silently read and discarded.
type RxCallbacks struct {
	// OnConnect receives a pointer because VariablesConnect is large and
	// this avoids copying it for every CONNECT processed.
	OnConnect func(rx *Rx, vc *VariablesConnect) error
	OnConnack func(rx *Rx, vc VariablesConnack) error
	// OnPub's io.Reader is limited to the packet's payload length; r must
	// be read to completion (or have its remainder consumed) before
	// ReadNextPacket returns, or ReadNextPacket reports an error.
	OnPub func(rx *Rx, vp VariablesPublish, r io.Reader) error
	OnSub    func(rx *Rx, vs VariablesSubscribe) error
	OnSuback func(rx *Rx, vs VariablesSuback) error
	OnUnsub  func(rx *Rx, vu VariablesUnsubscribe) error
	// OnOther receives PUBACK, PUBREC, PUBREL, PUBCOMP, UNSUBACK packets
	// with their packet identifier (a zero identifier is passed through
	// as-is), and DISCONNECT/PINGREQ/
	// PINGRESP packets with packetIdentifier 0 (they carry none).
	OnOther func(rx *Rx, packetIdentifier uint16) error
	// OnRxError is called when decoding fails. If set, it becomes the
	// callback's responsibility to close the transport; otherwise
	// ReadNextPacket closes it automatically.
	OnRxError func(rx *Rx, err error)
}

// SetRxTransport sets the reader half of the transport.
func (rx *Rx) SetRxTransport(transport io.ReadCloser) { rx.rxTrp = transport }

// RxTransport returns the underlying reader, which may be nil.
func (rx *Rx) RxTransport() io.ReadCloser { return rx.rxTrp }

// CloseRx closes the underlying transport.
func (rx *Rx) CloseRx() error {
	if rx.rxTrp == nil {
		return nil
	}
	return rx.rxTrp.Close()
}

func (rx *Rx) rxErrHandler(err error) {
	if rx.RxCallbacks.OnRxError != nil {
		rx.RxCallbacks.OnRxError(rx, err)
		return
	}
	rx.CloseRx()
}

// ReadNextPacket reads, decodes and dispatches exactly one MQTT control
// packet. It returns the number of bytes consumed from the transport and
// any error encountered. For PUBLISH the count covers the fixed and
// variable headers only; payload bytes read through OnPub are not counted.
func (rx *Rx) ReadNextPacket() (int, error) {
	if rx.rxTrp == nil {
		return 0, fmt.Errorf("%w: nil transport", ErrNetwork)
	}
	rx.LastReceivedHeader = Header{}
	hdr, n, err := DecodeHeader(rx.rxTrp)
	if err != nil {
		if n > 0 {
			rx.rxErrHandler(err)
		}
		return n, err
	}
	rx.LastReceivedHeader = hdr

	var (
		packetIdentifier uint16
		ngot             int
	)
	switch hdr.Type() {
	case PacketPublish:
		qos := hdr.Flags().QoS()
		vp, got, decErr := rx.userDecoder.DecodePublish(rx.rxTrp, qos)
		ngot = got
		n += ngot
		err = decErr
		if err == nil {
			payloadLen := int(hdr.RemainingLength) - ngot
			if payloadLen < 0 {
				err = errBadPacket("PUBLISH topic longer than remaining length")
				break
			}
			lr := io.LimitedReader{R: rx.rxTrp, N: int64(payloadLen)}
			if rx.RxCallbacks.OnPub != nil {
				err = rx.RxCallbacks.OnPub(rx, vp, &lr)
			} else {
				err = rx.exhaustReader(&lr)
			}
			if err == nil && lr.N != 0 {
				err = errBadPacket("OnPub did not read the full payload")
			}
		}

	case PacketConnack:
		if hdr.RemainingLength != 2 {
			err = errBadPacket("CONNACK remaining length must be 2")
			break
		}
		vc, got, decErr := decodeConnack(rx.rxTrp)
		n += got
		err = decErr
		if err == nil && rx.RxCallbacks.OnConnack != nil {
			err = rx.RxCallbacks.OnConnack(rx, vc)
		}

	case PacketConnect:
		vc, got, decErr := rx.userDecoder.DecodeConnect(rx.rxTrp)
		n += got
		err = decErr
		if err == nil && rx.RxCallbacks.OnConnect != nil {
			err = rx.RxCallbacks.OnConnect(rx, &vc)
		}

	case PacketSuback:
		if hdr.RemainingLength < 3 {
			err = errBadPacket("SUBACK remaining length must be at least 3")
			break
		}
		vsb, got, decErr := decodeSuback(rx.rxTrp, hdr.RemainingLength)
		n += got
		err = decErr
		if err == nil && rx.RxCallbacks.OnSuback != nil {
			err = rx.RxCallbacks.OnSuback(rx, vsb)
		}

	case PacketSubscribe:
		vs, got, decErr := rx.userDecoder.DecodeSubscribe(rx.rxTrp, hdr.RemainingLength)
		n += got
		err = decErr
		if err == nil && rx.RxCallbacks.OnSub != nil {
			err = rx.RxCallbacks.OnSub(rx, vs)
		}

	case PacketUnsubscribe:
		vu, got, decErr := rx.userDecoder.DecodeUnsubscribe(rx.rxTrp, hdr.RemainingLength)
		n += got
		err = decErr
		if err == nil && rx.RxCallbacks.OnUnsub != nil {
			err = rx.RxCallbacks.OnUnsub(rx, vu)
		}

	case PacketPuback, PacketPubrec, PacketPubrel, PacketPubcomp, PacketUnsuback:
		if hdr.RemainingLength != 2 {
			err = errBadPacket("expected a 2 byte packet identifier")
			break
		}
		pi, got, decErr := decodeUint16(rx.rxTrp)
		n += got
		err = decErr
		if err == nil {
			packetIdentifier = pi
			if rx.RxCallbacks.OnOther != nil {
				err = rx.RxCallbacks.OnOther(rx, packetIdentifier)
			}
		}

	case PacketDisconnect, PacketPingreq, PacketPingresp:
		if hdr.RemainingLength != 0 {
			err = errBadPacket("expected no payload or variable header")
			break
		}
		if rx.RxCallbacks.OnOther != nil {
			err = rx.RxCallbacks.OnOther(rx, 0)
		}

	default:
		err = errBadPacket("unreachable: DecodeHeader should have rejected this type")
	}

	if err != nil {
		rx.rxErrHandler(err)
	}
	return n, err
}

func (rx *Rx) exhaustReader(r io.Reader) error {
	if len(rx.scratchBuf) == 0 {
		rx.scratchBuf = make([]byte, 1024)
	}
	var err error
	for err == nil {
		_, err = r.Read(rx.scratchBuf)
	}
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// ShallowCopy copies rx and its underlying transport/decoder references.
// Callbacks are not copied over; the caller must set them on the result.
func (rx *Rx) ShallowCopy() *Rx {
	return &Rx{rxTrp: rx.rxTrp, userDecoder: rx.userDecoder}
}
