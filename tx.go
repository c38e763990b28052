package mqtt

import (
	"bytes"
	"io"
)

// Tx implements the sending half of the MQTT v3.1.1 transport layer: each
// Write* method builds the fixed header for its packet, buffers the whole
// packet, and writes it to the underlying transport in one call. Not safe
// for concurrent use.
type Tx struct {
	txTrp       io.WriteCloser
	TxCallbacks TxCallbacks
	buf         bytes.Buffer
}

// TxCallbacks groups the functions invoked around outbound writes.
type TxCallbacks struct {
	// OnTxError is called when a Write* call fails, before the error is
	// returned to the caller. If set, it becomes the callback's
	// responsibility to close the transport; otherwise Tx closes it
	// automatically, matching Rx's OnRxError convention.
	OnTxError func(tx *Tx, err error)
	// OnSuccessfulTx is called after a packet is fully written, with the
	// number of bytes written.
	OnSuccessfulTx func(tx *Tx, n int)
}

// SetTxTransport sets the writer half of the transport.
func (tx *Tx) SetTxTransport(transport io.WriteCloser) { tx.txTrp = transport }

// TxTransport returns the underlying writer, which may be nil.
func (tx *Tx) TxTransport() io.WriteCloser { return tx.txTrp }

// CloseTx closes the underlying transport.
func (tx *Tx) CloseTx() error {
	if tx.txTrp == nil {
		return nil
	}
	return tx.txTrp.Close()
}

// ShallowCopy copies tx and its underlying transport reference. Callbacks
// are not copied over; the caller must set them on the result.
func (tx *Tx) ShallowCopy() *Tx {
	return &Tx{txTrp: tx.txTrp}
}

func (tx *Tx) flush() (int, error) {
	n, err := writeFull(tx.txTrp, tx.buf.Bytes())
	tx.buf.Reset()
	if err != nil {
		if tx.TxCallbacks.OnTxError != nil {
			tx.TxCallbacks.OnTxError(tx, err)
		} else if tx.txTrp != nil {
			tx.txTrp.Close()
		}
		return n, err
	}
	if tx.TxCallbacks.OnSuccessfulTx != nil {
		tx.TxCallbacks.OnSuccessfulTx(tx, n)
	}
	return n, nil
}

// WriteConnect writes a CONNECT packet built from varConn.
func (tx *Tx) WriteConnect(varConn *VariablesConnect) error {
	if err := varConn.Validate(); err != nil {
		return err
	}
	tx.buf.Reset()
	hdr := newHeader(PacketConnect, 0, uint32(varConn.Size()))
	if _, err := hdr.Encode(&tx.buf); err != nil {
		return err
	}
	if _, err := encodeConnect(&tx.buf, varConn); err != nil {
		return err
	}
	_, err := tx.flush()
	return err
}

// WriteConnack writes a CONNACK packet built from varConnack.
func (tx *Tx) WriteConnack(varConnack VariablesConnack) error {
	tx.buf.Reset()
	hdr := newHeader(PacketConnack, 0, uint32(varConnack.Size()))
	if _, err := hdr.Encode(&tx.buf); err != nil {
		return err
	}
	if _, err := encodeConnack(&tx.buf, varConnack); err != nil {
		return err
	}
	_, err := tx.flush()
	return err
}

// WritePublishPayload writes a PUBLISH packet using hdr as the fixed header
// verbatim (so the caller controls DUP/QoS/RETAIN and RemainingLength),
// varPub as the variable header, and payload as the packet payload.
func (tx *Tx) WritePublishPayload(hdr Header, varPub VariablesPublish, payload []byte) error {
	tx.buf.Reset()
	if _, err := hdr.Encode(&tx.buf); err != nil {
		return err
	}
	qos := hdr.Flags().QoS()
	if _, err := encodePublish(&tx.buf, qos, varPub); err != nil {
		return err
	}
	if _, err := writeFull(&tx.buf, payload); err != nil {
		return err
	}
	_, err := tx.flush()
	return err
}

// WriteSubscribe writes a SUBSCRIBE packet built from varSub.
func (tx *Tx) WriteSubscribe(varSub VariablesSubscribe) error {
	if err := varSub.Validate(); err != nil {
		return err
	}
	tx.buf.Reset()
	hdr := newHeader(PacketSubscribe, PacketFlagsPubrelSubUnsub, uint32(varSub.Size()))
	if _, err := hdr.Encode(&tx.buf); err != nil {
		return err
	}
	if _, err := encodeSubscribe(&tx.buf, varSub); err != nil {
		return err
	}
	_, err := tx.flush()
	return err
}

// WriteUnsubscribe writes an UNSUBSCRIBE packet built from varUnsub.
func (tx *Tx) WriteUnsubscribe(varUnsub VariablesUnsubscribe) error {
	if err := varUnsub.Validate(); err != nil {
		return err
	}
	tx.buf.Reset()
	hdr := newHeader(PacketUnsubscribe, PacketFlagsPubrelSubUnsub, uint32(varUnsub.Size()))
	if _, err := hdr.Encode(&tx.buf); err != nil {
		return err
	}
	if _, err := encodeUnsubscribe(&tx.buf, varUnsub); err != nil {
		return err
	}
	_, err := tx.flush()
	return err
}

// WriteSuback writes a SUBACK packet built from varSuback.
func (tx *Tx) WriteSuback(varSuback VariablesSuback) error {
	if err := varSuback.Validate(); err != nil {
		return err
	}
	tx.buf.Reset()
	hdr := newHeader(PacketSuback, 0, uint32(varSuback.Size()))
	if _, err := hdr.Encode(&tx.buf); err != nil {
		return err
	}
	if _, err := encodeSuback(&tx.buf, varSuback); err != nil {
		return err
	}
	_, err := tx.flush()
	return err
}

// WriteIdentified writes a packet whose variable header is exactly a 2 byte
// packet identifier: PUBACK, PUBREC, PUBREL, PUBCOMP or UNSUBACK.
func (tx *Tx) WriteIdentified(tp PacketType, packetIdentifier uint16) error {
	if packetIdentifier == 0 {
		return errGotZeroPI
	}
	var flags PacketFlags
	if tp == PacketPubrel {
		flags = PacketFlagsPubrelSubUnsub
	}
	tx.buf.Reset()
	hdr := newHeader(tp, flags, 2)
	if _, err := hdr.Encode(&tx.buf); err != nil {
		return err
	}
	if _, err := encodeUint16(&tx.buf, packetIdentifier); err != nil {
		return err
	}
	_, err := tx.flush()
	return err
}

// WriteSimple writes a packet with no variable header or payload:
// PINGREQ, PINGRESP or DISCONNECT.
func (tx *Tx) WriteSimple(tp PacketType) error {
	tx.buf.Reset()
	hdr := newHeader(tp, 0, 0)
	if _, err := hdr.Encode(&tx.buf); err != nil {
		return err
	}
	_, err := tx.flush()
	return err
}
