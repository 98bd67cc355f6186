package codec_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/streammux/muxcore/codec"
)

func TestWriterReaderRoundTripEachKind(t *testing.T) {
	cases := []codec.Frame{
		{Kind: codec.KindStreamRequest, StreamId: 7, CreditCapacity: 65536},
		{Kind: codec.KindCreditUpdate, StreamId: 7, Credit: 4096},
		{Kind: codec.KindData, StreamId: 7, Payload: []byte("hello multiplexed world")},
		{Kind: codec.KindData, StreamId: 7, Payload: []byte{}},
		{Kind: codec.KindPing, Nonce: 0xDEADBEEF},
		{Kind: codec.KindPong, Nonce: 0xDEADBEEF},
		{Kind: codec.KindStreamClose, StreamId: 7},
	}

	var buf bytes.Buffer
	w := codec.NewWriter(&buf)
	for _, f := range cases {
		require.NoError(t, w.WriteFrame(f))
	}

	r := codec.NewReader(&buf)
	for _, want := range cases {
		got, err := r.ReadFrame()
		require.NoError(t, err)
		require.Equal(t, want.Kind, got.Kind)
		require.Equal(t, want.StreamId, got.StreamId)
		require.Equal(t, want.CreditCapacity, got.CreditCapacity)
		require.Equal(t, want.Credit, got.Credit)
		require.Equal(t, want.Nonce, got.Nonce)
		if len(want.Payload) == 0 {
			require.Empty(t, got.Payload)
		} else {
			require.Equal(t, want.Payload, got.Payload)
		}
	}

	_, err := r.ReadFrame()
	require.ErrorIs(t, err, io.EOF)
}

func TestReaderRejectsUnsupportedVersion(t *testing.T) {
	var buf bytes.Buffer
	// hand-roll a header with an unsupported version byte
	buf.Write([]byte{0xFF, 0, 0, 0, 0, 0, 0, 0})

	r := codec.NewReader(&buf)
	_, err := r.ReadFrame()
	require.Error(t, err)
}

func TestWriterRejectsOversizePayload(t *testing.T) {
	var buf bytes.Buffer
	w := codec.NewWriter(&buf)
	err := w.WriteFrame(codec.Frame{
		Kind:     codec.KindData,
		StreamId: 1,
		Payload:  make([]byte, codec.MaxPayloadSize+1),
	})
	require.Error(t, err)
}

func TestReaderDiscardsUnknownFrameBody(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{1, 0xEE, 3, 0, 1, 0, 0, 0}) // version 1, unknown cmd, length 3, sid 1
	buf.Write([]byte{'x', 'y', 'z'})
	// a legitimate frame follows; the reader must still find it
	w := codec.NewWriter(&buf)
	require.NoError(t, w.WriteFrame(codec.Frame{Kind: codec.KindPing, Nonce: 42}))

	r := codec.NewReader(&buf)
	f, err := r.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, codec.KindUnknown, f.Kind)

	f, err = r.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, codec.KindPing, f.Kind)
	require.Equal(t, uint64(42), f.Nonce)
}
