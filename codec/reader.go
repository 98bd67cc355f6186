package codec

import (
	"io"

	"github.com/pkg/errors"
)

// Reader decodes a stream of Frames from an underlying io.Reader. It is
// the FrameReader collaborator the spec describes: ReadFrame blocks until
// a full frame has arrived, mirroring poll_frame()'s Ready(Option<Frame>)
// by returning (Frame{}, io.EOF) at a clean close.
//
// Reader is not safe for concurrent use; muxcore's driver owns exactly one
// reader and calls ReadFrame from a single goroutine, per spec §5.
type Reader struct {
	r   io.Reader
	hdr rawHeader
}

// NewReader wraps r for frame decoding.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadFrame reads and decodes the next frame. It returns io.EOF (wrapped
// in nothing, so callers can errors.Is against it directly) when the
// underlying reader reaches a clean end between frames.
func (d *Reader) ReadFrame() (Frame, error) {
	if _, err := io.ReadFull(d.r, d.hdr[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Frame{}, errors.Wrap(err, "codec: truncated frame header")
		}
		return Frame{}, err // surfaces io.EOF untouched
	}

	if d.hdr.version() != protocolVersion {
		return Frame{}, errors.Errorf("codec: unsupported protocol version %d", d.hdr.version())
	}

	sid := d.hdr.streamID()
	kind := cmdToKind(d.hdr.cmd())
	length := d.hdr.length()

	if kind == KindUnknown {
		// Still consume the declared body so the stream stays framed
		// even though this frame will be treated as fatal upstream.
		if length > 0 {
			if _, err := io.CopyN(io.Discard, d.r, int64(length)); err != nil {
				return Frame{}, err
			}
		}
		return Frame{Kind: KindUnknown, StreamId: sid}, nil
	}

	if length == 0 {
		return decodeBody(kind, sid, nil), nil
	}

	var buf []byte
	if kind == KindData {
		// Data payloads are the hot path and the only body size that
		// varies with application traffic, so they're the ones worth
		// drawing from the pool; StreamRef.Recv returns the buffer once
		// it has copied the bytes out to the caller.
		p := defaultAllocator.get(int(length))
		buf = *p
	} else {
		buf = make([]byte, length)
	}
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return Frame{}, errors.Wrap(err, "codec: truncated frame body")
	}
	return decodeBody(kind, sid, buf), nil
}
