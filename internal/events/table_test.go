package events

import (
	"context"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/blueprint/internal/infrastructure/config"
	"github.com/GriffinCanCode/blueprint/internal/plan"
)

func testTable(t *testing.T) *Table {
	t.Helper()
	tab := NewTable(config.Default().Events, nil, nil)
	t.Cleanup(tab.Shutdown)
	return tab
}

// echoServer accepts one connection and replies to every read with the
// same bytes until the peer disconnects.
func echoServer(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 1024)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				conn.Write(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()
	return ln
}

func hostPort(t *testing.T, addr net.Addr) (string, int) {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr.String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

// freePort reserves an ephemeral port and releases it for the table to
// bind. The gap is a race in principle, negligible in tests.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, port := hostPort(t, ln.Addr())
	require.NoError(t, ln.Close())
	return port
}

func TestDialEchoRoundTrip(t *testing.T) {
	tab := testTable(t)
	host, port := hostPort(t, echoServer(t).Addr())

	h, err := tab.Open(context.Background(), plan.SourceTCPConnect, host, port, "")
	require.NoError(t, err)

	n, err := tab.Write(context.Background(), h, []byte("hello"), "", 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	ev, err := tab.Poll(context.Background(), []int64{h}, 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, EventData, ev.Type)
	assert.Equal(t, h, ev.Handle)
	assert.Equal(t, []byte("hello"), ev.Data)
}

func TestPeerCloseQueuesClosedEvent(t *testing.T) {
	tab := testTable(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Write([]byte("bye"))
		conn.Close()
	}()
	host, port := hostPort(t, ln.Addr())

	h, err := tab.Open(context.Background(), plan.SourceTCPConnect, host, port, "")
	require.NoError(t, err)

	ev, err := tab.Poll(context.Background(), []int64{h}, 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, EventData, ev.Type)

	ev, err = tab.Poll(context.Background(), []int64{h}, 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, EventClosed, ev.Type)

	// The wire is silent now; polling times out to nothing.
	ev, err = tab.Poll(context.Background(), []int64{h}, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestListenerAdoptsChildren(t *testing.T) {
	tab := testTable(t)
	port := freePort(t)

	h, err := tab.Open(context.Background(), plan.SourceTCPListen, "127.0.0.1", port, "")
	require.NoError(t, err)

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	defer conn.Close()

	ev, err := tab.Poll(context.Background(), []int64{h}, 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, ev)
	require.Equal(t, EventAccept, ev.Type)
	child := ev.Child
	require.NotZero(t, child)

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)
	ev, err = tab.Poll(context.Background(), []int64{child}, 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, EventData, ev.Type)
	assert.Equal(t, []byte("ping"), ev.Data)

	_, err = tab.Write(context.Background(), child, []byte("pong"), "", 0)
	require.NoError(t, err)
	buf := make([]byte, 4)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("pong"), buf)
}

func TestUDPCarriesSenderAddress(t *testing.T) {
	tab := testTable(t)
	port := freePort(t)

	h, err := tab.Open(context.Background(), plan.SourceUDPBind, "127.0.0.1", port, "")
	require.NoError(t, err)

	peer, err := net.Dial("udp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err)
	defer peer.Close()
	_, err = peer.Write([]byte("dgram"))
	require.NoError(t, err)

	ev, err := tab.Poll(context.Background(), []int64{h}, 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, EventData, ev.Type)
	assert.Equal(t, []byte("dgram"), ev.Data)
	assert.Equal(t, "127.0.0.1", ev.Host)
	assert.NotZero(t, ev.Port)

	// Reply to where the datagram came from.
	_, err = tab.Write(context.Background(), h, []byte("ack"), ev.Host, ev.Port)
	require.NoError(t, err)
	buf := make([]byte, 3)
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = peer.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("ack"), buf)
}

func TestPollTimeoutYieldsNothing(t *testing.T) {
	tab := testTable(t)
	host, port := hostPort(t, echoServer(t).Addr())

	h, err := tab.Open(context.Background(), plan.SourceTCPConnect, host, port, "")
	require.NoError(t, err)

	start := time.Now()
	ev, err := tab.Poll(context.Background(), []int64{h}, 40*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, ev)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestPollNegativeTimeoutRejected(t *testing.T) {
	tab := testTable(t)
	_, err := tab.Poll(context.Background(), []int64{1}, -time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not be negative")
}

func TestPollUnknownHandle(t *testing.T) {
	tab := testTable(t)
	_, err := tab.Poll(context.Background(), []int64{42}, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event source handle 42")
}

func TestEachEventConsumedOnce(t *testing.T) {
	tab := testTable(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	ready := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		ready <- conn
	}()
	host, port := hostPort(t, ln.Addr())

	h, err := tab.Open(context.Background(), plan.SourceTCPConnect, host, port, "")
	require.NoError(t, err)
	server := <-ready
	defer server.Close()

	var wg sync.WaitGroup
	got := make([]*Event, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i], errs[i] = tab.Poll(context.Background(), []int64{h}, 300*time.Millisecond)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	_, err = server.Write([]byte("one"))
	require.NoError(t, err)
	wg.Wait()

	delivered := 0
	for i, ev := range got {
		require.NoError(t, errs[i])
		if ev != nil {
			delivered++
			assert.Equal(t, []byte("one"), ev.Data)
		}
	}
	assert.Equal(t, 1, delivered, "one event, one consumer")
}

func TestWriteToListenerRejected(t *testing.T) {
	tab := testTable(t)
	port := freePort(t)

	h, err := tab.Open(context.Background(), plan.SourceTCPListen, "127.0.0.1", port, "")
	require.NoError(t, err)

	_, err = tab.Write(context.Background(), h, []byte("x"), "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot write to a listening handle")
}

func TestCloseMakesHandleUnusable(t *testing.T) {
	tab := testTable(t)
	host, port := hostPort(t, echoServer(t).Addr())

	h, err := tab.Open(context.Background(), plan.SourceTCPConnect, host, port, "")
	require.NoError(t, err)
	require.NoError(t, tab.Close(h))

	_, err = tab.Poll(context.Background(), []int64{h}, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is closed")

	_, err = tab.Write(context.Background(), h, []byte("x"), "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is closed")

	err = tab.Close(h)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is closed")
}

func TestShutdownReleasesEverything(t *testing.T) {
	tab := NewTable(config.Default().Events, nil, nil)
	host, port := hostPort(t, echoServer(t).Addr())

	h, err := tab.Open(context.Background(), plan.SourceTCPConnect, host, port, "")
	require.NoError(t, err)

	tab.Shutdown()

	_, err = tab.Poll(context.Background(), []int64{h}, time.Second)
	require.Error(t, err)

	_, err = tab.Open(context.Background(), plan.SourceTCPConnect, host, port, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shut down")

	// Second shutdown is a no-op.
	tab.Shutdown()
}

func TestPollHonorsContext(t *testing.T) {
	tab := testTable(t)
	host, port := hostPort(t, echoServer(t).Addr())

	h, err := tab.Open(context.Background(), plan.SourceTCPConnect, host, port, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err = tab.Poll(ctx, []int64{h}, 10*time.Second)
	require.ErrorIs(t, err, context.Canceled)
}
