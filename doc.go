// Package serialdefmt bridges a Linux serial port to an external defmt
// decoder process.
//
// Embedded firmware built with defmt emits compact binary log frames over
// UART. This package reads those raw bytes from the serial device and pipes
// them into a decoder subprocess (defmt-print by default), which matches the
// frames against the firmware ELF and renders human-readable log lines on
// stdout.
//
// Features:
//   - Raw syscall-based serial I/O on Linux, no buffering delays
//   - Chunk-oriented forwarding: bytes reach the decoder in arrival order,
//     flushed immediately
//   - Self-pipe mechanism for killability: Close unblocks a pending read
//   - Serial-over-TCP sources via tcp:// addresses
//   - Decoder stdout and stderr merged and drained on a background goroutine
//   - PTY-based tests for reliability
//
// This package does **not** support Windows serial devices; tcp:// sources
// work anywhere.
//
// Example usage:
//
//	cfg := serialdefmt.Config{
//	    Device:   "/dev/ttyUSB0",
//	    BaudRate: 115200,
//	    Decoder: serialdefmt.DecoderConfig{
//	        Binary: "defmt-print",
//	        ELF:    "target/thumbv8m.main-none-eabihf/debug/firmware",
//	    },
//	}
//	src, err := serialdefmt.Open(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	dec, err := serialdefmt.StartDecoder(cfg.Decoder, os.Stdout, slog.Default())
//	if err != nil {
//	    src.Close()
//	    log.Fatal(err)
//	}
//	bridge := serialdefmt.NewBridge(src, dec, slog.Default())
//
//	// ... to stop, call bridge.Shutdown() from a signal handler
//	if err := bridge.Run(); err != nil {
//	    log.Fatal(err)
//	}
package serialdefmt
