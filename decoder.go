package serialdefmt

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// drainGrace bounds how long Close waits for the drain goroutine. Output
// buffered in the child but not yet drained when the grace period expires is
// lost; acceptable for a log viewer.
const drainGrace = 2 * time.Second

// Decoder owns the external decoder subprocess. Raw frame bytes written via
// Write go to the child's stdin; the child's stdout and stderr are merged
// into one pipe and drained to an output sink on a background goroutine.
type Decoder struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	output    *os.File // read end of the merged stdout+stderr pipe
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

// StartDecoder spawns the decoder subprocess described by cfg and begins
// draining its merged output to out. A spawn failure is returned to the
// caller; there is no restart policy.
func StartDecoder(cfg DecoderConfig, out io.Writer, logger *slog.Logger) (*Decoder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	args := append([]string{"-e", cfg.ELF}, cfg.Args...)
	cmd := exec.Command(cfg.Binary, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}

	// One pipe for both streams so diagnostics interleave with decoded
	// lines the way the child emits them. A manual pipe (instead of
	// StdoutPipe) keeps Wait safe to call while the drain goroutine is
	// still reading.
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("start %s: %w", cfg.Binary, err)
	}
	// Child holds its own copy of the write end now.
	pw.Close()

	d := &Decoder{
		cmd:    cmd,
		stdin:  stdin,
		output: pr,
		done:   make(chan struct{}),
		logger: logger,
	}

	go d.drain(out)

	logger.Debug("decoder started", "binary", cfg.Binary, "elf", cfg.ELF, "pid", cmd.Process.Pid)
	return d, nil
}

// Write forwards one chunk of raw bytes to the decoder's stdin. Pipe writes
// are unbuffered, so a nil return means the chunk has reached the child.
func (d *Decoder) Write(p []byte) error {
	_, err := d.stdin.Write(p)
	return err
}

// Done is closed when the drain goroutine has seen end of output.
func (d *Decoder) Done() <-chan struct{} {
	return d.done
}

// drain copies the child's merged output to the sink until end of stream,
// printing each read as soon as it arrives.
func (d *Decoder) drain(out io.Writer) {
	defer close(d.done)
	if _, err := io.Copy(out, d.output); err != nil {
		d.logger.Debug("decoder output drain ended", "err", err)
	}
}

// Close signals end of input to the decoder, waits briefly for the drain
// goroutine, and reaps the subprocess. Draining never blocks shutdown past
// the grace period; undrained output is dropped. Safe to call multiple
// times.
func (d *Decoder) Close() error {
	var err error
	d.closeOnce.Do(func() {
		if cerr := d.stdin.Close(); cerr != nil {
			err = cerr
		}

		select {
		case <-d.done:
		case <-time.After(drainGrace):
			d.logger.Warn("decoder output drain did not finish; abandoning")
		}
		d.output.Close()

		if werr := d.cmd.Wait(); werr != nil && err == nil {
			err = fmt.Errorf("decoder exit: %w", werr)
		}
	})
	return err
}
