// MIT License
//
// Copyright (c) 2016-2017 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package muxcore

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// ErrKind classifies the fixed set of error kinds a ConnectionContext can
// report. It is not itself an error; Kind maps an error onto an ErrKind
// using errors.Is against the sentinel values below.
type ErrKind int

const (
	// KindInvalidStreamId means an operation referenced an unknown or
	// colliding stream id.
	KindInvalidStreamId ErrKind = iota
	// KindUnknownFrame means a decoded frame fell outside the wire
	// vocabulary.
	KindUnknownFrame
	// KindInsufficientCredit means flow control would be violated by the
	// requested send.
	KindInsufficientCredit
	// KindGeneral wraps a lower-level I/O or codec failure.
	KindGeneral
)

func (k ErrKind) String() string {
	switch k {
	case KindInvalidStreamId:
		return "invalid stream id"
	case KindUnknownFrame:
		return "unknown frame"
	case KindInsufficientCredit:
		return "insufficient credit"
	case KindGeneral:
		return "general"
	default:
		return "unknown error kind"
	}
}

var (
	// ErrInvalidStreamId is returned when a stream id is unknown where one
	// was expected, or already present where a fresh one was expected.
	ErrInvalidStreamId = errors.New("muxcore: invalid stream id")
	// ErrUnknownFrame is returned when handle_frame receives a frame
	// outside the wire vocabulary. This is always fatal.
	ErrUnknownFrame = errors.New("muxcore: unknown frame")
	// ErrInsufficientCredit is returned when a send would exceed the
	// stream's remaining credit.
	ErrInsufficientCredit = errors.New("muxcore: insufficient credit")
	// ErrGeneral wraps a latched, connection-terminal error whose root
	// cause came from the codec or transport.
	ErrGeneral = errors.New("muxcore: general connection error")
	// ErrClosed is returned by operations attempted after the connection
	// has latched a terminal error or the driver has stopped.
	ErrClosed = errors.New("muxcore: connection closed")
)

// generalErr wraps a lower-level I/O or codec failure so it still
// satisfies errors.Is(err, ErrGeneral) while keeping the original cause
// reachable via errors.Unwrap / pkgerrors.Cause for logging.
type generalErr struct {
	cause error
}

func (e *generalErr) Error() string  { return fmt.Sprintf("%s: %s", ErrGeneral, e.cause) }
func (e *generalErr) Unwrap() error  { return e.cause }
func (e *generalErr) Cause() error   { return e.cause }
func (e *generalErr) Is(target error) bool {
	return target == ErrGeneral
}

// wrapGeneral folds a lower-level I/O or codec failure into ErrGeneral,
// preserving the original cause via github.com/pkg/errors-compatible
// wrapping (pkgerrors.Cause still unwraps through it) so callers can log
// both the class of failure and its root cause.
func wrapGeneral(cause error) error {
	if cause == nil {
		return ErrGeneral
	}
	return &generalErr{cause: pkgerrors.WithStack(cause)}
}

// Kind reports which of the four error kinds best classifies err. Errors
// that this package did not produce are classified as KindGeneral.
func Kind(err error) ErrKind {
	switch {
	case errors.Is(err, ErrInvalidStreamId):
		return KindInvalidStreamId
	case errors.Is(err, ErrUnknownFrame):
		return KindUnknownFrame
	case errors.Is(err, ErrInsufficientCredit):
		return KindInsufficientCredit
	default:
		return KindGeneral
	}
}
