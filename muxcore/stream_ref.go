package muxcore

import (
	"sync"

	"github.com/streammux/muxcore/codec"
)

// StreamRef is the application-facing handle to one multiplexed stream.
// It is intentionally narrow: Read/Write-shaped methods plus Close,
// mirroring smux's Stream type while routing everything through the
// shared ConnectionContext instead of a private per-stream socket.
type StreamRef struct {
	id  StreamId
	ctx *ConnectionContext
}

func newStreamRef(id StreamId, ctx *ConnectionContext) *StreamRef {
	return &StreamRef{id: id, ctx: ctx}
}

// ID returns the stream's identifier.
func (s *StreamRef) ID() StreamId { return s.id }

// Recv blocks for the next Data frame's payload, or returns ErrClosed once
// the peer has sent StreamClose or the connection has latched an error.
// The data returned is owned by the caller; it will not be reused.
func (s *StreamRef) Recv() ([]byte, error) {
	inbound, ok := s.ctx.streamInbound(s.id)
	if !ok {
		return nil, ErrClosed
	}
	select {
	case f, open := <-inbound:
		if !open {
			return nil, ErrClosed
		}
		if f.Kind != codec.KindData {
			return nil, ErrUnknownFrame
		}
		out := make([]byte, len(f.Payload))
		copy(out, f.Payload)
		codec.ReleasePayload(f.Payload)
		return out, nil
	case <-s.ctx.closeCh:
		return nil, ErrClosed
	}
}

// Send blocks until the stream has at least one byte of send credit (when
// flow control is enabled) and the outbound queue accepts the frame. It
// does not wait for credit covering the whole payload: if payload is
// larger than the credit available at that point, it returns
// ErrInsufficientCredit and nothing is sent.
func (s *StreamRef) Send(payload []byte) error {
	if s.ctx.cfg.FlowControlStrategy == FlowControlEnabled {
		if _, err := s.ctx.WaitStreamCapacity(s.id); err != nil {
			return err
		}
	}
	return s.ctx.SendFrame(codec.Frame{
		Kind:     codec.KindData,
		StreamId: uint32(s.id),
		Payload:  payload,
	})
}

// Release returns n bytes of receive credit to the peer, emitting a
// CreditUpdate frame once the threshold-batched policy decides enough has
// accumulated since the last announcement. Applications call this after
// consuming bytes handed back by Recv.
func (s *StreamRef) Release(n uint32) error {
	frame, should, err := s.ctx.returnCredit(s.id, n)
	if err != nil {
		return err
	}
	if !should {
		return nil
	}
	return s.ctx.SendFrame(frame)
}

// Close sends StreamClose to the peer, releases local resources for the
// stream, and unblocks any goroutine parked in Recv on it.
func (s *StreamRef) Close() error {
	err := s.ctx.SendFrame(codec.Frame{Kind: codec.KindStreamClose, StreamId: uint32(s.id)})
	s.ctx.mu.Lock()
	st, ok := s.ctx.streams[s.id]
	delete(s.ctx.streams, s.id)
	s.ctx.mu.Unlock()
	if ok {
		st.closeInbound()
	}
	return err
}

// IncomingStreams is the application-facing handle for accepting
// peer-opened streams, mirroring smux's Session.AcceptStream but exposed
// as its own narrow type since a connection may have many concurrent
// acceptors (e.g. a demuxing dispatcher) pulling from the same queue.
type IncomingStreams struct {
	ctx *ConnectionContext
}

func newIncomingStreams(ctx *ConnectionContext) *IncomingStreams {
	return &IncomingStreams{ctx: ctx}
}

// Accept blocks until a peer-opened stream is pending, returning a
// StreamRef for it, or returns ErrClosed once the connection has latched
// an error.
func (a *IncomingStreams) Accept() (*StreamRef, error) {
	select {
	case id := <-a.ctx.pending:
		return newStreamRef(id, a.ctx), nil
	case <-a.ctx.closeCh:
		return nil, ErrClosed
	}
}

// StreamRequester is the application-facing handle for opening new
// outbound streams, mirroring smux's Session.OpenStream. Ids are
// allocated odd-for-client/even-for-server and stepped by 2, exactly as
// smux does, so the two ends of a connection can never race each other
// into assigning the same id to different streams.
type StreamRequester struct {
	ctx    *ConnectionContext
	nextID uint32
	idLock sync.Mutex
}

func newStreamRequester(ctx *ConnectionContext, client bool) *StreamRequester {
	r := &StreamRequester{ctx: ctx}
	if client {
		r.nextID = 1
	} else {
		r.nextID = 0
	}
	return r
}

// Open allocates a fresh stream id, registers local state for it with the
// given receive-window capacity, sends StreamRequest to the peer, and
// returns a StreamRef for the new stream.
func (r *StreamRequester) Open(capacity uint32) (*StreamRef, error) {
	r.idLock.Lock()
	r.nextID += 2
	id := StreamId(r.nextID)
	r.idLock.Unlock()

	if err := r.ctx.openStream(id, capacity); err != nil {
		return nil, err
	}
	if err := r.ctx.SendFrame(codec.Frame{
		Kind:           codec.KindStreamRequest,
		StreamId:       uint32(id),
		CreditCapacity: capacity,
	}); err != nil {
		return nil, err
	}
	return newStreamRef(id, r.ctx), nil
}
