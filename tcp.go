package serialdefmt

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// TCPSource reads from a serial-over-TCP bridge (e.g. ser2net, or a remote
// probe exposing its UART on a socket). It satisfies the same killability
// contract as SerialReader: Close unblocks a pending read via the read
// deadline and the done channel.
type TCPSource struct {
	conn      net.Conn
	address   string
	timeout   time.Duration
	done      chan struct{}
	closeOnce sync.Once
}

var _ Source = (*TCPSource)(nil)

const tcpDialTimeout = 2 * time.Second

func openTCP(address string, timeout time.Duration) (*TCPSource, error) {
	conn, err := net.DialTimeout("tcp", address, tcpDialTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", address, err)
	}
	return &TCPSource{
		conn:    conn,
		address: address,
		timeout: timeout,
		done:    make(chan struct{}),
	}, nil
}

// Name returns the remote address in tcp:// form.
func (t *TCPSource) Name() string {
	return "tcp://" + t.address
}

// ReadChunksLoop continuously reads available bytes and invokes onChunk with
// each non-empty chunk. Deadline expiry with no data is not an error; the
// loop just polls again. A read error after Close exits the loop silently.
func (t *TCPSource) ReadChunksLoop(onChunk func([]byte), onError func(error)) {
	buf := make([]byte, 4096)
	for {
		select {
		case <-t.done:
			return
		default:
		}
		t.conn.SetReadDeadline(time.Now().Add(t.timeout))
		n, err := t.conn.Read(buf)
		if n > 0 {
			onChunk(buf[:n])
		}
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-t.done:
				return
			default:
			}
			onError(err)
			return
		}
	}
}

// Close closes the connection and unblocks any ReadChunksLoop call.
// Safe to call multiple times; subsequent calls are no-ops.
func (t *TCPSource) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.conn.Close()
	})
	return err
}
