package muxcore

import (
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/streammux/muxcore/codec"
)

// Driver owns one underlying transport and pumps frames between it and a
// ConnectionContext: one goroutine decoding inbound frames, one goroutine
// encoding outbound ones, and (unless disabled) a keepalive goroutine. It
// plays the role smux's Session.recvLoop/sendLoop/keepalive play, but
// supervised through an errgroup.Group rather than session's hand-rolled
// s.die/atomic.Value error latch, since there's no shaper-priority queue
// to additionally coordinate here.
type Driver struct {
	ctx    *ConnectionContext
	conn   io.Closer
	reader *codec.Reader
	writer *codec.Writer

	group *errgroup.Group

	Incoming *IncomingStreams
	Requests *StreamRequester
}

// NewDriver wires conn (already connected, already framed as a
// byte-stream) into a fresh multiplexed connection. id is an opaque
// caller-assigned identifier used only for log correlation. client
// selects the odd/even stream-id partition a dialer vs. a listener uses,
// mirroring smux's NewSession(config, conn, client bool) so that two ends
// of one connection never race each other into allocating the same id.
func NewDriver(id uint32, conn io.ReadWriteCloser, cfg *Config, client bool) (*Driver, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := VerifyConfig(cfg); err != nil {
		return nil, err
	}

	ctx := newConnectionContext(id, cfg)
	d := &Driver{
		ctx:      ctx,
		conn:     conn,
		reader:   codec.NewReader(conn),
		writer:   codec.NewWriter(conn),
		Incoming: newIncomingStreams(ctx),
		Requests: newStreamRequester(ctx, client),
	}
	return d, nil
}

// Run starts the read loop, write loop, and (unless configured off) the
// keepalive loop, and blocks until one of them fails, the peer closes the
// transport cleanly, or ctx is cancelled by Close. The first error from any
// loop is returned (nil after a clean close); every loop is guaranteed to
// have exited by the time Run returns.
func (d *Driver) Run() error {
	g := &errgroup.Group{}
	d.group = g

	// Whichever loop exits first stops the others: latching closes closeCh
	// for the write and keepalive loops, and closing the transport unwinds
	// a read loop blocked inside Read.
	supervise := func(loop func() error) func() error {
		return func() error {
			err := loop()
			d.ctx.SetErr(err)
			d.conn.Close()
			return err
		}
	}

	g.Go(supervise(d.readLoop))
	g.Go(supervise(d.writeLoop))
	if !d.ctx.cfg.KeepAliveDisabled {
		g.Go(supervise(d.keepaliveLoop))
	}

	err := g.Wait()
	d.ctx.SetErr(err)
	return err
}

// Close latches ErrClosed, unblocking every suspended Send/Recv/Accept
// call, and closes the underlying transport so a read loop blocked
// inside the transport's Read (rather than on a channel select) also
// unwinds. Mirrors smux's Session.Close, which closes s.conn for the
// same reason.
func (d *Driver) Close() error {
	d.ctx.SetErr(ErrClosed)
	return d.conn.Close()
}

func (d *Driver) readLoop() error {
	for {
		f, err := d.reader.ReadFrame()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return wrapGeneral(err)
		}

		d.ctx.log.WithField("frame", f).Trace("inbound frame")

		if err := d.ctx.HandleFrame(f); err != nil {
			if Kind(err) == KindInvalidStreamId || Kind(err) == KindInsufficientCredit {
				d.ctx.log.WithError(err).Warn("dropping frame for misbehaving or stale stream")
				continue
			}
			return err
		}

		if f.Kind == codec.KindPing {
			if sendErr := d.ctx.SendFrame(codec.Frame{Kind: codec.KindPong, Nonce: f.Nonce}); sendErr != nil {
				return sendErr
			}
		}

		select {
		case <-d.ctx.closeCh:
			return d.ctx.Err()
		default:
		}
	}
}

func (d *Driver) writeLoop() error {
	for {
		select {
		case f := <-d.ctx.outbound:
			if err := d.writer.WriteFrame(f); err != nil {
				return wrapGeneral(err)
			}
		case <-d.ctx.closeCh:
			return d.ctx.Err()
		}
	}
}

// keepaliveLoop pings the peer every KeepAliveInterval and declares it
// dead if no inbound frame — Ping, Pong, Data, anything — has been
// received within KeepAliveTimeout. Grounded on smux's
// keepalive(), generalized from its dataReady boolean to an idle
// duration since this driver has no bucket/back-pressure state to fold
// into the same flag.
func (d *Driver) keepaliveLoop() error {
	ticker := time.NewTicker(d.ctx.cfg.KeepAliveInterval)
	defer ticker.Stop()

	var nonce uint64
	for {
		select {
		case <-ticker.C:
			if d.ctx.idleFor() > d.ctx.cfg.KeepAliveTimeout {
				return wrapGeneral(errKeepAliveTimeout)
			}
			nonce++
			if err := d.ctx.SendFrame(codec.Frame{Kind: codec.KindPing, Nonce: nonce}); err != nil {
				return err
			}
		case <-d.ctx.closeCh:
			return d.ctx.Err()
		}
	}
}

var errKeepAliveTimeout = errClosedPipeLike("muxcore: keepalive timeout, peer presumed dead")

type errClosedPipeLike string

func (e errClosedPipeLike) Error() string { return string(e) }
