package muxcore_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/streammux/muxcore/muxcore"
)

func pairedDrivers(t *testing.T, cfg *muxcore.Config) (*muxcore.Driver, *muxcore.Driver) {
	t.Helper()
	clientConn, serverConn := net.Pipe()

	client, err := muxcore.NewDriver(1, clientConn, cfg, true)
	require.NoError(t, err)
	server, err := muxcore.NewDriver(2, serverConn, cfg, false)
	require.NoError(t, err)

	go client.Run()
	go server.Run()

	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestOpenAndAcceptStream(t *testing.T) {
	client, server := pairedDrivers(t, muxcore.DefaultConfig())

	clientStream, err := client.Requests.Open(4096)
	require.NoError(t, err)

	serverStream, err := server.Incoming.Accept()
	require.NoError(t, err)
	require.Equal(t, clientStream.ID(), serverStream.ID())
}

func TestDataDeliveryAndCreditReturn(t *testing.T) {
	cfg := muxcore.DefaultConfig()
	client, server := pairedDrivers(t, cfg)

	clientStream, err := client.Requests.Open(64)
	require.NoError(t, err)
	serverStream, err := server.Incoming.Accept()
	require.NoError(t, err)

	payload := []byte("credit-flow-controlled byte stream")
	require.NoError(t, clientStream.Send(payload))

	got, err := serverStream.Recv()
	require.NoError(t, err)
	require.Equal(t, payload, got)

	// Returning the 34 consumed bytes reaches the threshold (32 of 64), so
	// this enqueues a CreditUpdate; it must not block or error.
	require.NoError(t, serverStream.Release(uint32(len(payload))))
}

func TestMultipleStreamsDeliverIndependently(t *testing.T) {
	cfg := muxcore.DefaultConfig()
	cfg.OutboundQueueCapacity = 8
	client, server := pairedDrivers(t, cfg)

	a, err := client.Requests.Open(65536)
	require.NoError(t, err)
	_, err = server.Incoming.Accept()
	require.NoError(t, err)

	b, err := client.Requests.Open(65536)
	require.NoError(t, err)
	bServer, err := server.Incoming.Accept()
	require.NoError(t, err)

	require.NoError(t, a.Send([]byte("first stream, first frame")))
	require.NoError(t, b.Send([]byte("second stream should still be readable")))

	got, err := bServer.Recv()
	require.NoError(t, err)
	require.Equal(t, []byte("second stream should still be readable"), got)
}

// TestUnreadDataBlocksEntireConnectionReadLoop exercises the deliberate
// per-connection head-of-line block: one stream's unconsumed first frame
// occupies its capacity-1 inbound queue, which stalls the single read
// loop on the second frame's channel send and so prevents a stream opened
// afterward from ever reaching Accept, until the stuck stream is drained.
func TestUnreadDataBlocksEntireConnectionReadLoop(t *testing.T) {
	cfg := muxcore.DefaultConfig()
	client, server := pairedDrivers(t, cfg)

	a, err := client.Requests.Open(65536)
	require.NoError(t, err)
	aServer, err := server.Incoming.Accept()
	require.NoError(t, err)

	require.NoError(t, a.Send([]byte("first")))
	require.NoError(t, a.Send([]byte("second")))
	// Give the read loop time to land "first" in a's inbound queue and
	// then block trying to deliver "second" into the same capacity-1
	// queue.
	time.Sleep(50 * time.Millisecond)

	_, err = client.Requests.Open(65536)
	require.NoError(t, err)

	acceptDone := make(chan error, 1)
	go func() {
		_, acceptErr := server.Incoming.Accept()
		acceptDone <- acceptErr
	}()

	select {
	case <-acceptDone:
		t.Fatal("Accept returned before the stuck stream was drained")
	case <-time.After(80 * time.Millisecond):
	}

	first, err := aServer.Recv()
	require.NoError(t, err)
	require.Equal(t, []byte("first"), first)

	select {
	case err := <-acceptDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Accept never unblocked after the stuck stream was drained")
	}

	second, err := aServer.Recv()
	require.NoError(t, err)
	require.Equal(t, []byte("second"), second)
}

func TestFlowControlDisabledSkipsCreditChecks(t *testing.T) {
	cfg := muxcore.DefaultConfig()
	cfg.FlowControlStrategy = muxcore.FlowControlDisabled
	client, server := pairedDrivers(t, cfg)

	clientStream, err := client.Requests.Open(1)
	require.NoError(t, err)
	serverStream, err := server.Incoming.Accept()
	require.NoError(t, err)

	big := make([]byte, 4096)
	require.NoError(t, clientStream.Send(big))

	got, err := serverStream.Recv()
	require.NoError(t, err)
	require.Len(t, got, 4096)
}

func TestCloseUnblocksPendingAccept(t *testing.T) {
	client, server := pairedDrivers(t, muxcore.DefaultConfig())

	done := make(chan error, 1)
	go func() {
		_, err := server.Incoming.Accept()
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	client.Close()
	server.Close()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Accept did not unblock after Close")
	}
}
