package serialdefmt

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// startTCPServer accepts one connection and hands it to the test.
func startTCPServer(t *testing.T) (addr string, conns chan net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	conns = make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conns <- conn
	}()
	return ln.Addr().String(), conns
}

func openTCPSource(t *testing.T, addr string) Source {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Device = "tcp://" + addr
	cfg.ReadTimeout = "50ms"

	src, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })
	require.Equal(t, "tcp://"+addr, src.Name())
	return src
}

func TestTCPSource_BasicChunk(t *testing.T) {
	addr, conns := startTCPServer(t)
	src := openTCPSource(t, addr)

	chunks := make(chan []byte, 4)
	errors := make(chan error, 1)
	go src.ReadChunksLoop(
		func(chunk []byte) { chunks <- append([]byte(nil), chunk...) },
		func(err error) { errors <- err },
	)

	conn := <-conns
	t.Cleanup(func() { conn.Close() })
	_, err := conn.Write([]byte("hello"))
	require.NoError(t, err)

	select {
	case c := <-chunks:
		require.Equal(t, []byte("hello"), c)
	case err := <-errors:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for chunk")
	}
}

func TestTCPSource_IdleTimeoutIsNotAnError(t *testing.T) {
	addr, conns := startTCPServer(t)
	src := openTCPSource(t, addr)

	chunks := make(chan []byte, 4)
	errors := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		src.ReadChunksLoop(
			func(chunk []byte) { chunks <- append([]byte(nil), chunk...) },
			func(err error) { errors <- err },
		)
		close(done)
	}()

	conn := <-conns
	t.Cleanup(func() { conn.Close() })

	// Several deadline expiries with a silent peer.
	time.Sleep(200 * time.Millisecond)
	select {
	case c := <-chunks:
		t.Fatalf("unexpected chunk: %q", c)
	case err := <-errors:
		t.Fatalf("unexpected error: %v", err)
	case <-done:
		t.Fatal("loop exited without Close")
	default:
	}

	require.NoError(t, src.Close())
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for loop to exit after Close")
	}
}

func TestTCPSource_RemoteCloseIsAnError(t *testing.T) {
	addr, conns := startTCPServer(t)
	src := openTCPSource(t, addr)

	errors := make(chan error, 1)
	go src.ReadChunksLoop(
		func(chunk []byte) {},
		func(err error) { errors <- err },
	)

	conn := <-conns
	require.NoError(t, conn.Close())

	select {
	case err := <-errors:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for error after remote close")
	}
}

func TestOpen_DialFailureIsFatal(t *testing.T) {
	cfg := DefaultConfig()
	// Reserved port with nothing listening.
	cfg.Device = "tcp://127.0.0.1:1"
	_, err := Open(cfg)
	require.Error(t, err)
}
