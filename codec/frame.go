// Package codec implements the wire framing muxcore treats as an external
// collaborator: turning typed Frames into bytes and back. muxcore only
// depends on the Reader/Writer interfaces this package satisfies; the wire
// format itself is this package's concern, grounded on smux's frame.go
// (github.com/sagernet/smux, and the fuller vendored copy under
// xtaci-kcptun/vendor/.../smux/frame.go).
package codec

import (
	"encoding/binary"
	"fmt"
)

// Kind is the tag of the Frame union.
type Kind byte

const (
	// KindStreamRequest opens a new stream with an initial receive
	// window (CreditCapacity).
	KindStreamRequest Kind = iota
	// KindCreditUpdate grants additional sending credit to a stream.
	KindCreditUpdate
	// KindData carries application payload bytes for a stream.
	KindData
	// KindPing is a liveness probe; HandleFrame ignores it and the driver
	// answers it with a KindPong carrying the same Nonce.
	KindPing
	// KindPong answers a KindPing; the core passes it through inert.
	KindPong
	// KindStreamClose tells the peer a stream is done: no more Data or
	// CreditUpdate frames will follow for it, and its receive resources
	// may be released.
	KindStreamClose
	// KindUnknown tags an undecodable or unsupported frame. It never
	// appears on the wire; ReadFrame produces it when the command byte is
	// outside the vocabulary above.
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindStreamRequest:
		return "StreamRequest"
	case KindCreditUpdate:
		return "CreditUpdate"
	case KindData:
		return "Data"
	case KindPing:
		return "Ping"
	case KindPong:
		return "Pong"
	case KindStreamClose:
		return "StreamClose"
	default:
		return "Unknown"
	}
}

// Frame is the wire vocabulary the core handles. Only the fields relevant
// to Kind are meaningful; StreamId is 0 for connection-level frames.
type Frame struct {
	Kind     Kind
	StreamId uint32

	// CreditCapacity is meaningful for KindStreamRequest: the initial
	// receive window the opener grants the peer.
	CreditCapacity uint32

	// Credit is meaningful for KindCreditUpdate: the additional send
	// credit being granted.
	Credit uint32

	// Payload is meaningful for KindData: the application bytes.
	Payload []byte

	// Nonce is meaningful for KindPing/KindPong: an opaque round-trip
	// correlator the liveness collaborator assigns and checks.
	Nonce uint64
}

func (f Frame) String() string {
	return fmt.Sprintf("%s{stream=%d}", f.Kind, f.StreamId)
}

// wire command bytes. Distinct from Kind so the wire representation can
// evolve independently of the in-memory tag; cmdUnknown is a sentinel
// used only to detect unrecognized bytes during decode, never sent.
const (
	cmdSYN byte = iota
	cmdUPD
	cmdPSH
	cmdPING
	cmdPONG
	cmdFIN
	cmdUnknown = 0xFF
)

const (
	sizeOfVer    = 1
	sizeOfCmd    = 1
	sizeOfLength = 2
	sizeOfSid    = 4
	headerSize   = sizeOfVer + sizeOfCmd + sizeOfSid + sizeOfLength

	protocolVersion byte = 1

	sizeOfCreditCapacity = 4
	sizeOfCredit         = 4
	sizeOfNonce          = 8

	// MaxPayloadSize bounds a single frame body to the largest length the
	// uint16 length field can carry.
	MaxPayloadSize = 1<<16 - 1
)

func kindToCmd(k Kind) (byte, bool) {
	switch k {
	case KindStreamRequest:
		return cmdSYN, true
	case KindCreditUpdate:
		return cmdUPD, true
	case KindData:
		return cmdPSH, true
	case KindPing:
		return cmdPING, true
	case KindPong:
		return cmdPONG, true
	case KindStreamClose:
		return cmdFIN, true
	default:
		return cmdUnknown, false
	}
}

func cmdToKind(cmd byte) Kind {
	switch cmd {
	case cmdSYN:
		return KindStreamRequest
	case cmdUPD:
		return KindCreditUpdate
	case cmdPSH:
		return KindData
	case cmdPING:
		return KindPing
	case cmdPONG:
		return KindPong
	case cmdFIN:
		return KindStreamClose
	default:
		return KindUnknown
	}
}

// rawHeader is the fixed 8-byte header preceding every frame's body:
// version(1) | cmd(1) | length(2, LE) | stream id(4, LE).
type rawHeader [headerSize]byte

func (h rawHeader) version() byte   { return h[0] }
func (h rawHeader) cmd() byte       { return h[1] }
func (h rawHeader) length() uint16  { return binary.LittleEndian.Uint16(h[2:]) }
func (h rawHeader) streamID() uint32 {
	return binary.LittleEndian.Uint32(h[4:])
}

func putHeader(h *rawHeader, cmd byte, sid uint32, length uint16) {
	h[0] = protocolVersion
	h[1] = cmd
	binary.LittleEndian.PutUint16(h[2:], length)
	binary.LittleEndian.PutUint32(h[4:], sid)
}

// body encodes the fixed-size or variable-size body that follows the
// header for a given frame. Data frames return Frame.Payload directly;
// the other kinds get a freshly allocated buffer, or nil if they carry no
// body.
func body(f Frame) []byte {
	switch f.Kind {
	case KindStreamRequest:
		buf := make([]byte, sizeOfCreditCapacity)
		binary.LittleEndian.PutUint32(buf, f.CreditCapacity)
		return buf
	case KindCreditUpdate:
		buf := make([]byte, sizeOfCredit)
		binary.LittleEndian.PutUint32(buf, f.Credit)
		return buf
	case KindData:
		return f.Payload
	case KindPing, KindPong:
		buf := make([]byte, sizeOfNonce)
		binary.LittleEndian.PutUint64(buf, f.Nonce)
		return buf
	default:
		return nil
	}
}

func decodeBody(kind Kind, sid uint32, raw []byte) Frame {
	f := Frame{Kind: kind, StreamId: sid}
	switch kind {
	case KindStreamRequest:
		if len(raw) >= sizeOfCreditCapacity {
			f.CreditCapacity = binary.LittleEndian.Uint32(raw)
		}
	case KindCreditUpdate:
		if len(raw) >= sizeOfCredit {
			f.Credit = binary.LittleEndian.Uint32(raw)
		}
	case KindData:
		f.Payload = raw
	case KindPing, KindPong:
		if len(raw) >= sizeOfNonce {
			f.Nonce = binary.LittleEndian.Uint64(raw)
		}
	}
	return f
}
