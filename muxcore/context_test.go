package muxcore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/streammux/muxcore/codec"
)

func TestHandleFrameUnknownStreamIsNonFatal(t *testing.T) {
	cfg := DefaultConfig()
	ctx := newConnectionContext(1, cfg)

	err := ctx.HandleFrame(codec.Frame{Kind: codec.KindData, StreamId: 99, Payload: []byte("x")})
	require.ErrorIs(t, err, ErrInvalidStreamId)
	require.False(t, ctx.HasErr(), "an invalid stream id must not latch a connection-terminal error")
}

func TestHandleFrameUnknownKindIsFatal(t *testing.T) {
	cfg := DefaultConfig()
	ctx := newConnectionContext(1, cfg)

	err := ctx.HandleFrame(codec.Frame{Kind: codec.KindUnknown})
	require.ErrorIs(t, err, ErrUnknownFrame)
}

func TestHandleDataEnforcesCreditWhenEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FlowControlStrategy = FlowControlEnabled
	ctx := newConnectionContext(1, cfg)

	require.NoError(t, ctx.HandleFrame(codec.Frame{
		Kind: codec.KindStreamRequest, StreamId: 1, CreditCapacity: 4,
	}))

	err := ctx.HandleFrame(codec.Frame{Kind: codec.KindData, StreamId: 1, Payload: []byte("toolong")})
	require.ErrorIs(t, err, ErrInsufficientCredit)
}

func TestHandleDataSkipsCreditWhenDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FlowControlStrategy = FlowControlDisabled
	ctx := newConnectionContext(1, cfg)

	require.NoError(t, ctx.HandleFrame(codec.Frame{
		Kind: codec.KindStreamRequest, StreamId: 1, CreditCapacity: 1,
	}))

	done := make(chan error, 1)
	go func() {
		done <- ctx.HandleFrame(codec.Frame{Kind: codec.KindData, StreamId: 1, Payload: make([]byte, 9000)})
	}()

	inbound, ok := ctx.streamInbound(1)
	require.True(t, ok)
	f := <-inbound
	require.NoError(t, <-done)
	require.Len(t, f.Payload, 9000)
}

func TestReturnCreditOnlyEmitsAtThreshold(t *testing.T) {
	cfg := DefaultConfig()
	ctx := newConnectionContext(1, cfg)
	require.NoError(t, ctx.openStream(1, 100))

	st := ctx.streams[StreamId(1)]
	st.credits.Reserve(90)

	_, emitted, err := ctx.returnCredit(1, 30)
	require.NoError(t, err)
	require.False(t, emitted)

	frame, emitted, err := ctx.returnCredit(1, 20)
	require.NoError(t, err)
	require.True(t, emitted)
	require.Equal(t, codec.KindCreditUpdate, frame.Kind)
	require.Equal(t, uint32(50), frame.Credit)
}

func TestCloseLatchesErrAndUnblocksHandleData(t *testing.T) {
	cfg := DefaultConfig()
	ctx := newConnectionContext(1, cfg)
	require.NoError(t, ctx.openStream(1, 10))

	// Fill the capacity-1 inbound queue so a second delivery blocks.
	inbound, _ := ctx.streamInbound(1)
	inbound <- codec.Frame{Kind: codec.KindData, StreamId: 1, Payload: []byte("a")}

	done := make(chan error, 1)
	go func() {
		done <- ctx.HandleFrame(codec.Frame{Kind: codec.KindData, StreamId: 1, Payload: []byte("b")})
	}()

	ctx.SetErr(ErrClosed)

	err := <-done
	require.ErrorIs(t, err, ErrClosed)
	require.True(t, ctx.HasErr())
}
