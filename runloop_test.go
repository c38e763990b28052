package mqtt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRunLoopPublishRetryExhaustion exercises the full Instance through the
// same decrement-then-check-then-retransmit-or-giveup algorithm as
// pktbuf_test.go's queue-level tests, but end to end: a QoS1 PUBLISH whose
// PUBACK never arrives gets retransmitted over the wire MaxRetries-1 times
// before Run finally reports ErrTimeout and drops it.
func TestRunLoopPublishRetryExhaustion(t *testing.T) {
	inst, trp := newTestInstance(Callbacks{})
	connectAndAccept(t, inst, trp, 60)

	pi, err := inst.Publish([]byte("a/b"), []byte("payload"), QoS1, false, false)
	require.NoError(t, err)
	require.NotZero(t, pi)
	baseOutbound := len(trp.outbound)

	var runErr error
	for tick := uint32(100 + RetryIntervalMS); tick <= 100+MaxRetries*RetryIntervalMS; tick += RetryIntervalMS {
		runErr = inst.Run(tick)
		if runErr != nil {
			break
		}
	}

	assert.ErrorIs(t, runErr, ErrTimeout)
	assert.Nil(t, inst.queue.head)
	assert.Equal(t, baseOutbound+MaxRetries-1, len(trp.outbound), "expected MaxRetries-1 retransmissions of the PUBLISH before giving up")
}

// TestRunLoopDecodeErrorStillRunsRetryScan checks the ordering rule from the
// run loop's inbound pump step: a decode error is recorded as ErrPacketError
// and the offending packet is dropped, but it never touches connection
// state and does not abort Run on the spot the way a genuine transport read
// failure does. The later retry-scan step still runs in the same Run call,
// and the deferred decode error is only returned once nothing later in the
// call supersedes it.
func TestRunLoopDecodeErrorStillRunsRetryScan(t *testing.T) {
	inst, trp := newTestInstance(Callbacks{})
	connectAndAccept(t, inst, trp, 60)

	_, err := inst.Publish([]byte("a/b"), []byte("payload"), QoS1, false, false)
	require.NoError(t, err)
	baseOutbound := len(trp.outbound)

	// A PUBACK header declaring the wrong remaining length is malformed.
	trp.inbound = append(trp.inbound, []byte{byte(PacketPuback) << 4, 1, 0})

	runErr := inst.Run(100 + RetryIntervalMS)
	assert.ErrorIs(t, runErr, ErrPacketError, "the decode error is still surfaced once nothing later overrides it")
	assert.NotErrorIs(t, runErr, ErrNetwork, "a decode error is not a transport-level failure")
	assert.Equal(t, Connected, inst.Status(), "a decode error drops the packet but must not change connection state")
	assert.Equal(t, baseOutbound+1, len(trp.outbound), "the retry scan still ran and retransmitted the queued PUBLISH")
}

// TestRunLoopNetworkErrorAbortsBeforeRetryScan is the contrasting case: a
// genuine transport read failure aborts Run immediately, before the retry
// scan gets a chance to run.
func TestRunLoopNetworkErrorAbortsBeforeRetryScan(t *testing.T) {
	inst, trp := newTestInstance(Callbacks{})
	connectAndAccept(t, inst, trp, 60)

	_, err := inst.Publish([]byte("a/b"), []byte("payload"), QoS1, false, false)
	require.NoError(t, err)
	baseOutbound := len(trp.outbound)

	trp.readErr = errors.New("connection reset by peer")
	runErr := inst.Run(100 + RetryIntervalMS)

	assert.ErrorIs(t, runErr, ErrNetwork)
	assert.Equal(t, baseOutbound, len(trp.outbound), "no retransmission once the transport read itself fails")
}
