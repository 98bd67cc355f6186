package muxcore

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/streammux/muxcore/codec"
	"github.com/streammux/muxcore/internal/muxlog"
)

// ConnectionContext is the shared hub spec §3/§4.2 describes: one mutex
// guarding a map of StreamStates, the outbound frame queue, the pending
// inbound-stream-request queue, and the connection's latched terminal
// error. It is shared between the driver and every StreamRef/
// IncomingStreams/StreamRequester handle for the lifetime of the
// connection.
type ConnectionContext struct {
	id  uint32
	cfg *Config
	log *logrus.Entry

	mu      sync.Mutex
	err     error
	streams map[StreamId]*StreamState

	outbound chan codec.Frame // capacity cfg.OutboundQueueCapacity

	// pending is the FIFO of accepted-but-unclaimed StreamRequests,
	// capacity cfg.AcceptBacklog. Grounded directly on smux's chAccepts:
	// a full backlog blocks the read loop's StreamRequest handling rather
	// than dropping or growing unboundedly, applying backpressure all the
	// way to the peer's send side.
	pending chan StreamId

	closeOnce sync.Once
	closeCh   chan struct{} // closed once, unblocks every suspended operation

	// lastActivity is a unix-nanosecond timestamp of the last inbound frame
	// this connection received, read/written atomically so
	// the keepalive loop can poll it without touching mu. Grounded on
	// smux's atomic dataReady flag in session.go's keepalive, generalized
	// from a boolean to a timestamp since nothing here needs the bucket
	// back-pressure semantics that flag also served.
	lastActivity int64
}

func newConnectionContext(id uint32, cfg *Config) *ConnectionContext {
	ctx := &ConnectionContext{
		id:       id,
		cfg:      cfg,
		log:      muxlog.ForSession(id),
		streams:  make(map[StreamId]*StreamState),
		outbound: make(chan codec.Frame, cfg.OutboundQueueCapacity),
		pending:  make(chan StreamId, cfg.AcceptBacklog),
		closeCh:  make(chan struct{}),
	}
	ctx.touch()
	return ctx
}

func (ctx *ConnectionContext) touch() {
	atomic.StoreInt64(&ctx.lastActivity, time.Now().UnixNano())
}

// idleFor reports how long it has been since the last inbound frame
// arrived. Outbound frames do not reset it.
func (ctx *ConnectionContext) idleFor() time.Duration {
	last := atomic.LoadInt64(&ctx.lastActivity)
	if last == 0 {
		return 0
	}
	return time.Since(time.Unix(0, last))
}

// HasErr reports whether the connection has latched a terminal error.
func (ctx *ConnectionContext) HasErr() bool {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.err != nil
}

// SetErr latches a terminal error, waking every suspended task so it can
// observe the failure instead of hanging forever. Idempotent: the first
// caller's error wins.
func (ctx *ConnectionContext) SetErr(err error) {
	ctx.mu.Lock()
	if ctx.err == nil {
		ctx.err = err
	}
	ctx.mu.Unlock()
	ctx.closeOnce.Do(func() { close(ctx.closeCh) })
}

// Err returns the latched terminal error, if any.
func (ctx *ConnectionContext) Err() error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.err
}

// registerStream creates fresh StreamState for id with the given receive
// capacity. Caller must hold ctx.mu and have already verified id is not
// present.
func (ctx *ConnectionContext) registerStream(id StreamId, capacity uint32) *StreamState {
	st := newStreamState(id, capacity)
	ctx.streams[id] = st
	return st
}

// HandleFrame is the inbound dispatch described in spec §4.2. It is
// called from the driver's single read-loop goroutine, never
// concurrently, which is what lets it enforce strict per-stream and
// per-connection ordering.
func (ctx *ConnectionContext) HandleFrame(f codec.Frame) error {
	ctx.touch()
	switch f.Kind {
	case codec.KindStreamRequest:
		return ctx.handleStreamRequest(f)
	case codec.KindCreditUpdate:
		return ctx.handleCreditUpdate(f)
	case codec.KindData:
		return ctx.handleData(f)
	case codec.KindPing, codec.KindPong:
		return nil
	case codec.KindStreamClose:
		return ctx.handleStreamClose(f)
	default:
		return ErrUnknownFrame
	}
}

func (ctx *ConnectionContext) handleStreamRequest(f codec.Frame) error {
	id := StreamId(f.StreamId)
	ctx.mu.Lock()
	if _, exists := ctx.streams[id]; exists {
		ctx.mu.Unlock()
		return ErrInvalidStreamId
	}
	ctx.registerStream(id, f.CreditCapacity)
	ctx.mu.Unlock()

	select {
	case ctx.pending <- id:
		return nil
	case <-ctx.closeCh:
		return ErrClosed
	}
}

func (ctx *ConnectionContext) handleCreditUpdate(f codec.Frame) error {
	id := StreamId(f.StreamId)
	ctx.mu.Lock()
	st, ok := ctx.streams[id]
	if !ok {
		ctx.mu.Unlock()
		return ErrInvalidStreamId
	}
	st.credits.Grant(f.Credit)
	ctx.mu.Unlock()

	st.notifySend()
	return nil
}

// handleData looks up the stream, applies flow control, and delivers the
// frame to the stream's inbound queue. A full inbound queue blocks this
// call (and therefore the entire read loop, by design: spec §4.3/§5 make
// this per-connection head-of-line block deliberate) until the
// application drains the stream or the connection closes.
func (ctx *ConnectionContext) handleData(f codec.Frame) error {
	ctx.mu.Lock()
	st, ok := ctx.streams[StreamId(f.StreamId)]
	if !ok {
		ctx.mu.Unlock()
		return ErrInvalidStreamId
	}

	if ctx.cfg.FlowControlStrategy == FlowControlEnabled {
		size := uint32(len(f.Payload))
		if !st.credits.HasCapacity(size) {
			ctx.mu.Unlock()
			return ErrInsufficientCredit
		}
		st.credits.Reserve(size)
	}
	ctx.mu.Unlock()

	select {
	case st.inbound <- f:
		return nil
	case <-ctx.closeCh:
		return ErrClosed
	}
}

func (ctx *ConnectionContext) handleStreamClose(f codec.Frame) error {
	id := StreamId(f.StreamId)
	ctx.mu.Lock()
	st, ok := ctx.streams[id]
	if !ok {
		ctx.mu.Unlock()
		return ErrInvalidStreamId
	}
	delete(ctx.streams, id)
	ctx.mu.Unlock()
	st.closeInbound()
	return nil
}

// PollConnCapacity reports whether the outbound queue currently has room
// for another frame without blocking.
func (ctx *ConnectionContext) PollConnCapacity() bool {
	return len(ctx.outbound) < cap(ctx.outbound)
}

// StreamCapacity returns the current send credit available on id, or an
// error (ErrInvalidStreamId for an unknown stream, ErrGeneral once the
// connection has latched an error).
func (ctx *ConnectionContext) StreamCapacity(id StreamId) (uint32, error) {
	if ctx.HasErr() {
		return 0, ErrGeneral
	}
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	st, ok := ctx.streams[id]
	if !ok {
		return 0, ErrInvalidStreamId
	}
	return st.credits.Available(), nil
}

// WaitStreamCapacity blocks until id has at least 1 byte of send credit
// available (when flow control is enabled; it returns immediately
// otherwise), the connection closes, or the stream is unknown.
func (ctx *ConnectionContext) WaitStreamCapacity(id StreamId) (uint32, error) {
	for {
		ctx.mu.Lock()
		if ctx.err != nil {
			ctx.mu.Unlock()
			return 0, ErrGeneral
		}
		st, ok := ctx.streams[id]
		if !ok {
			ctx.mu.Unlock()
			return 0, ErrInvalidStreamId
		}
		if ctx.cfg.FlowControlStrategy == FlowControlDisabled {
			ctx.mu.Unlock()
			return st.credits.Available(), nil
		}
		avail := st.credits.Available()
		wake := st.sendWake
		ctx.mu.Unlock()

		if avail > 0 {
			return avail, nil
		}

		select {
		case <-wake:
			continue
		case <-ctx.closeCh:
			return 0, ErrClosed
		}
	}
}

// SendFrame validates flow control for Data frames (reserving credit when
// the strategy is enabled), then enqueues frame onto the outbound queue.
// Non-Data frames bypass flow control entirely. The enqueue blocks if the
// outbound queue (capacity cfg.OutboundQueueCapacity) is full, which is
// the backpressure path a saturated writer applies back to producers.
func (ctx *ConnectionContext) SendFrame(f codec.Frame) error {
	if f.Kind == codec.KindData {
		ctx.mu.Lock()
		st, ok := ctx.streams[StreamId(f.StreamId)]
		if !ok {
			ctx.mu.Unlock()
			return ErrInvalidStreamId
		}
		if ctx.cfg.FlowControlStrategy == FlowControlEnabled {
			size := uint32(len(f.Payload))
			if !st.credits.HasCapacity(size) {
				ctx.mu.Unlock()
				return ErrInsufficientCredit
			}
			st.credits.Reserve(size)
		}
		ctx.mu.Unlock()
	}

	select {
	case ctx.outbound <- f:
		return nil
	case <-ctx.closeCh:
		return ErrClosed
	}
}

// openStream registers local StreamState for a newly requested outbound
// stream. Returns ErrInvalidStreamId if id collides with an existing
// stream.
func (ctx *ConnectionContext) openStream(id StreamId, capacity uint32) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if _, exists := ctx.streams[id]; exists {
		return ErrInvalidStreamId
	}
	ctx.registerStream(id, capacity)
	return nil
}

// returnCredit implements the credit-return policy from spec §4.4,
// corrected per §9: grant n to id's credits, and only emit a
// CreditUpdate once the credit granted back since the last announcement
// (the unannounced balance) has reached the threshold, carrying exactly
// that unannounced delta.
func (ctx *ConnectionContext) returnCredit(id StreamId, n uint32) (codec.Frame, bool, error) {
	if n == 0 {
		return codec.Frame{}, false, nil
	}
	if ctx.cfg.FlowControlStrategy == FlowControlDisabled {
		return codec.Frame{}, false, nil
	}

	ctx.mu.Lock()
	st, ok := ctx.streams[id]
	if !ok {
		ctx.mu.Unlock()
		return codec.Frame{}, false, ErrInvalidStreamId
	}
	st.credits.Grant(n)
	delta, crossed := st.credits.ThresholdCrossed(FCNumerator, FCDenominator)
	if crossed {
		st.credits.MarkAnnounced(delta)
	}
	ctx.mu.Unlock()

	if !crossed {
		return codec.Frame{}, false, nil
	}
	return codec.Frame{Kind: codec.KindCreditUpdate, StreamId: uint32(id), Credit: delta}, true, nil
}

// streamInbound returns the inbound delivery channel for id, used by
// StreamRef to consume Data frames, plus whether id is known.
func (ctx *ConnectionContext) streamInbound(id StreamId) (chan codec.Frame, bool) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	st, ok := ctx.streams[id]
	if !ok {
		return nil, false
	}
	return st.inbound, true
}
