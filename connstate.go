package mqtt

import "io"

// clientState tracks the protocol-level session bookkeeping an Instance
// needs beyond the raw PktBuf queue: pending subscriptions and the reason a
// session closed. It is built into the RxCallbacks table that drives
// dispatch during Run.
//
// Every timestamp this package cares about is a tick value the host passed
// into Run, read here off the owning Instance's nowTicks field. There is no
// wall-clock read anywhere in this type (spec.md's Design Notes call this
// out explicitly): a host that never calls Run never advances time.
type clientState struct {
	inst *Instance

	pendingSubs   []SubscribeRequest
	pendingSubsPI uint16

	// closeErr is the reason the session last closed, nil while connected.
	closeErr error
}

// rxCallbacks builds the RxCallbacks table that makes an Instance function:
// CONNACK completes or fails the pending CONNECT, PUBLISH synthesises a
// PUBACK for QoS 1, SUBACK/PUBACK/UNSUBACK dequeue their PktBuf, and a
// DISCONNECT received from the broker (which should never send one) tears
// the session down. A decode error is never handled here at all: it never
// reaches connection state, only Instance.pump's return value.
func (cs *clientState) rxCallbacks() RxCallbacks {
	inst := cs.inst
	closeConn := func(err error) {
		inst.status = Disconnected
		cs.closeErr = err
	}
	return RxCallbacks{
		OnConnack: func(r *Rx, vc VariablesConnack) error {
			if inst.status != ConnectPending {
				return nil
			}
			inst.queue.removeByType(PacketConnect)
			if vc.ReturnCode == ReturnCodeConnAccepted {
				inst.status = Connected
				inst.lastTxTicks = inst.nowTicks
				cs.closeErr = nil
			} else {
				inst.status = Disconnected
				cs.closeErr = vc.ReturnCode
			}
			if inst.callbacks.OnConnack != nil {
				inst.callbacks.OnConnack(inst.cookie, vc.SessionPresent(), vc.ReturnCode)
			}
			return nil
		},
		OnPub: func(r *Rx, vp VariablesPublish, payload io.Reader) error {
			qos := r.LastReceivedHeader.Flags().QoS()
			retain := r.LastReceivedHeader.Flags().Retain()
			msg, err := io.ReadAll(payload)
			if err != nil {
				return err
			}
			if qos == QoS1 {
				if err := inst.writeIdentified(PacketPuback, vp.PacketIdentifier); err != nil {
					return err
				}
			}
			if inst.callbacks.OnPublish != nil {
				inst.callbacks.OnPublish(inst.cookie, vp.TopicName, msg, qos, retain)
			}
			return nil
		},
		OnSuback: func(r *Rx, vs VariablesSuback) error {
			inst.queue.removeByID(vs.PacketIdentifier)
			if cs.pendingSubsPI == vs.PacketIdentifier {
				cs.pendingSubs = nil
				cs.pendingSubsPI = 0
			}
			if inst.callbacks.OnSuback != nil {
				inst.callbacks.OnSuback(inst.cookie, vs.PacketIdentifier, vs.ReturnCodes)
			}
			return nil
		},
		OnUnsub: nil, // a client never receives UNSUBSCRIBE
		OnSub:   nil, // a client never receives SUBSCRIBE
		OnOther: func(r *Rx, packetIdentifier uint16) error {
			switch r.LastReceivedHeader.Type() {
			case PacketPuback:
				inst.queue.removeByID(packetIdentifier)
				if inst.callbacks.OnPuback != nil {
					inst.callbacks.OnPuback(inst.cookie, packetIdentifier)
				}
			case PacketUnsuback:
				inst.queue.removeByID(packetIdentifier)
				if inst.callbacks.OnUnsuback != nil {
					inst.callbacks.OnUnsuback(inst.cookie, packetIdentifier)
				}
			case PacketPingresp:
				if inst.callbacks.OnPingresp != nil {
					inst.callbacks.OnPingresp(inst.cookie)
				}
			case PacketDisconnect:
				closeConn(errBadPacket("received a DISCONNECT, which a broker never sends"))
			}
			return nil
		},
		// OnRxError is left nil deliberately: a decode error drops the
		// offending packet and is surfaced from Run as ErrPacketError (see
		// Instance.pump), but it must never change connection state on its
		// own. Only a genuine transport failure, the connect-timeout check,
		// retry-budget exhaustion, or an explicit DISCONNECT from the broker
		// may do that. Rx falls back to closing its (per-packet, already
		// exhausted) transport wrapper, which is a harmless no-op.
	}
}
