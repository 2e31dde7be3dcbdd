package serialdefmt

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// SerialReader provides low-latency, killable access to a Linux serial port.
// It reads raw defmt frame bytes; all rendering is left to the decoder
// subprocess.
type SerialReader struct {
	fd        int
	file      *os.File
	done      chan struct{}
	closeOnce sync.Once
	device    string
	timeout   time.Duration
	pipeR     int // self-pipe read fd
	pipeW     int // self-pipe write fd
}

var _ Source = (*SerialReader)(nil)

// openSerial opens a serial device configured for raw 8N1 operation at
// cfg.BaudRate. An open failure is returned to the caller; there is no
// retry.
func openSerial(cfg Config) (*SerialReader, error) {
	fd, err := syscall.Open(cfg.Device, syscall.O_RDWR|syscall.O_NOCTTY|syscall.O_NONBLOCK, 0666)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}

	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("get termios: %w", err)
	}

	// Raw mode
	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN

	// 8 data bits, no parity, 1 stop bit
	termios.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB
	termios.Cflag |= unix.CS8

	// Baud rate
	baud := baudToUnix(cfg.BaudRate)
	termios.Cflag &^= unix.CBAUD
	termios.Cflag |= baud

	// Set VMIN=1, VTIME=0 for immediate, non-blocking reads
	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("set termios: %w", err)
	}

	// Turn back into blocking mode now that config is done
	syscall.SetNonblock(fd, false)

	// Create self-pipe for killability
	pipeFds := make([]int, 2)
	if err := unix.Pipe(pipeFds); err != nil {
		syscall.Close(fd)
		return nil, fmt.Errorf("pipe: %w", err)
	}

	file := os.NewFile(uintptr(fd), cfg.Device)
	return &SerialReader{
		fd:        fd,
		file:      file,
		done:      make(chan struct{}),
		closeOnce: sync.Once{},
		device:    cfg.Device,
		timeout:   cfg.readTimeout(),
		pipeR:     pipeFds[0],
		pipeW:     pipeFds[1],
	}, nil
}

// Name returns the device path.
func (s *SerialReader) Name() string {
	return s.device
}

// ReadChunksLoop continuously reads available bytes and invokes onChunk with
// each non-empty chunk, in arrival order. A poll with no available bytes
// invokes nothing and the loop continues. If a read error occurs, onError is
// called and the loop exits; Close exits the loop silently.
func (s *SerialReader) ReadChunksLoop(onChunk func([]byte), onError func(error)) {
	buf := make([]byte, 4096)
	timeoutMs := int(s.timeout.Milliseconds())
	if timeoutMs <= 0 {
		timeoutMs = -1
	}
	for {
		// Use poll to wait for data or kill signal
		pfd := []unix.PollFd{
			{Fd: int32(s.fd), Events: unix.POLLIN},
			{Fd: int32(s.pipeR), Events: unix.POLLIN},
		}
		_, err := unix.Poll(pfd, timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			onError(err)
			return
		}
		// Check killability
		select {
		case <-s.done:
			return
		default:
		}
		if pfd[1].Revents&unix.POLLIN != 0 {
			// Drain pipe
			var b [1]byte
			unix.Read(s.pipeR, b[:])
			return
		}
		// POLLHUP/POLLERR without POLLIN still needs a read so the
		// device error surfaces instead of spinning.
		if pfd[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			n, err := s.file.Read(buf)
			if err != nil {
				onError(err)
				return
			}
			if n > 0 {
				onChunk(buf[:n])
			}
		}
	}
}

// Close closes the serial port and unblocks any ReadChunksLoop call.
// Safe to call multiple times; subsequent calls are no-ops.
func (s *SerialReader) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		// Wake up poll using self-pipe
		if s.pipeW > 0 {
			unix.Write(s.pipeW, []byte{1})
		}
		if s.file != nil {
			err = s.file.Close()
		}
		if s.pipeR > 0 {
			unix.Close(s.pipeR)
		}
		if s.pipeW > 0 {
			unix.Close(s.pipeW)
		}
	})
	return err
}

func baudToUnix(baud int) uint32 {
	switch baud {
	case 9600:
		return unix.B9600
	case 19200:
		return unix.B19200
	case 38400:
		return unix.B38400
	case 57600:
		return unix.B57600
	case 115200:
		return unix.B115200
	case 230400:
		return unix.B230400
	default:
		return unix.B115200 // fallback
	}
}
