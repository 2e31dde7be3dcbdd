package serialdefmt

import (
	"fmt"
	"log/slog"
)

// Bridge pumps byte chunks from a Source into a Decoder. Chunks are written
// in arrival order; any mid-loop read or write failure stops the pump and is
// returned from Run after the shutdown sequence (fail-fast, no retry).
type Bridge struct {
	src    Source
	dec    *Decoder
	logger *slog.Logger
}

// NewBridge wires a source to a decoder.
func NewBridge(src Source, dec *Decoder, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{src: src, dec: dec, logger: logger}
}

// Run drives the pump until the source is closed or a failure occurs, then
// runs the shutdown sequence: release the device, signal end of input to the
// decoder, wait for it to exit. Run blocks; stop it with Shutdown from
// another goroutine.
func (b *Bridge) Run() error {
	b.logger.Info("forwarding", "source", b.src.Name())

	var pumpErr error
	b.src.ReadChunksLoop(
		func(chunk []byte) {
			if pumpErr != nil {
				return
			}
			if err := b.dec.Write(chunk); err != nil {
				pumpErr = fmt.Errorf("forward to decoder: %w", err)
				b.src.Close()
			}
		},
		func(err error) {
			pumpErr = fmt.Errorf("read %s: %w", b.src.Name(), err)
		},
	)

	if err := b.src.Close(); err != nil && pumpErr == nil {
		pumpErr = fmt.Errorf("close source: %w", err)
	}
	if err := b.dec.Close(); err != nil && pumpErr == nil {
		pumpErr = err
	}

	b.logger.Info("bridge stopped")
	return pumpErr
}

// Shutdown stops the pump. The source's self-pipe unblocks a pending read,
// so Run returns promptly and performs the shutdown sequence.
func (b *Bridge) Shutdown() {
	b.src.Close()
}
