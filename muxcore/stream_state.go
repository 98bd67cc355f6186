package muxcore

import (
	"sync"

	"github.com/streammux/muxcore/codec"
)

// StreamState is the per-stream mutable state the spec describes:
// credits for the local send window (or, symmetrically, the window we
// grant the peer on an inbound-opened stream), a single-slot inbound
// delivery queue, and a wake-up slot for a task suspended on credit.
//
// The inbound queue's capacity-1 channel *is* the recv_task suspension
// point: a consumer blocked on <-inbound is exactly a registered,
// superseded-on-next-poll "recv_task", and a producer blocked trying to
// send into a full channel is exactly the head-of-line block spec §4.3
// describes, with no separate bookkeeping required. sendWake plays the
// analogous role for send_task, since credit grants aren't themselves
// channel traffic.
type StreamState struct {
	id      StreamId
	credits Credits
	inbound chan codec.Frame
	// sendWake is a single-slot, non-blocking-send notification channel:
	// storing a new waiter (by receiving with a select/default send from
	// the grantor side) supersedes whatever was parked before, matching
	// spec §5's "latest task wins" task-registry rule.
	sendWake chan struct{}

	// closeOnce guards against closing inbound twice when both a local
	// Close and a peer-initiated StreamClose race each other.
	closeOnce sync.Once
}

func newStreamState(id StreamId, capacity uint32) *StreamState {
	return &StreamState{
		id:       id,
		credits:  NewCredits(capacity),
		inbound:  make(chan codec.Frame, 1),
		sendWake: make(chan struct{}, 1),
	}
}

// closeInbound closes the inbound delivery channel exactly once.
func (s *StreamState) closeInbound() {
	s.closeOnce.Do(func() { close(s.inbound) })
}

// notifySend wakes exactly one task blocked waiting for this stream's
// credits to become available, per spec §5's CreditUpdate wake-up rule.
func (s *StreamState) notifySend() {
	select {
	case s.sendWake <- struct{}{}:
	default:
	}
}
