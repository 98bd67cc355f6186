package codec

import (
	"io"
	"strconv"

	"github.com/sagernet/sing/common/bufio"
)

// Writer encodes and flushes Frames onto an underlying io.Writer. It is
// the FrameWriter collaborator: WriteFrame collapses poll_buffer_ready +
// buffer_and_flush into one blocking call, which is the natural Go
// rendering of "wait for buffer space, then write", since a single writer
// goroutine never needs to suspend separately from the write itself.
//
// Writer is not safe for concurrent use; muxcore's driver serializes all
// outbound frames through one write loop goroutine, per spec §5's
// locking discipline (never hold the context mutex across this call).
type Writer struct {
	w        io.Writer
	writeVec func([][]byte) (int, error)
	buf      []byte
	vecBufs  [][]byte
}

// NewWriter wraps w for frame encoding, using scatter-gather I/O when w
// supports it (mirroring smux's sendLoop, which prefers
// bufio.CreateVectorisedWriter to avoid a header+payload copy).
func NewWriter(w io.Writer) *Writer {
	wr := &Writer{w: w}
	if bw, ok := bufio.CreateVectorisedWriter(w); ok {
		wr.writeVec = func(vec [][]byte) (int, error) { return bufio.WriteVectorised(bw, vec) }
		wr.buf = make([]byte, headerSize)
		wr.vecBufs = make([][]byte, 2)
	} else {
		wr.buf = make([]byte, headerSize+MaxPayloadSize)
	}
	return wr
}

// WriteFrame encodes f and writes it to the underlying writer, flushing
// before returning.
func (e *Writer) WriteFrame(f Frame) error {
	cmd, ok := kindToCmd(f.Kind)
	if !ok {
		return errUnencodableFrame(f)
	}
	payload := body(f)
	if len(payload) > MaxPayloadSize {
		return errPayloadTooLarge(len(payload))
	}

	var hdr rawHeader
	putHeader(&hdr, cmd, f.StreamId, uint16(len(payload)))

	if e.writeVec != nil {
		e.vecBufs[0] = hdr[:]
		e.vecBufs[1] = payload
		_, err := e.writeVec(e.vecBufs)
		return err
	}

	copy(e.buf[:headerSize], hdr[:])
	copy(e.buf[headerSize:], payload)
	_, err := e.w.Write(e.buf[:headerSize+len(payload)])
	return err
}

func errUnencodableFrame(f Frame) error {
	return &unencodableFrameError{kind: f.Kind}
}

type unencodableFrameError struct{ kind Kind }

func (e *unencodableFrameError) Error() string {
	return "codec: cannot encode frame of kind " + e.kind.String()
}

func errPayloadTooLarge(n int) error {
	return &payloadTooLargeError{n: n}
}

type payloadTooLargeError struct{ n int }

func (e *payloadTooLargeError) Error() string {
	return "codec: payload of " + strconv.Itoa(e.n) + " bytes exceeds MaxPayloadSize"
}
