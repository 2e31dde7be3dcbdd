package serialdefmt

import "strings"

// Source is a killable byte-chunk producer feeding the decoder bridge.
// Implementations deliver available bytes as chunks in arrival order and
// guarantee that Close unblocks a pending ReadChunksLoop.
type Source interface {
	// ReadChunksLoop continuously reads available bytes and invokes
	// onChunk for each non-empty chunk. The chunk is only valid for the
	// duration of the callback. If an error occurs, onError is called
	// and the loop exits. Closing the source exits the loop without an
	// error.
	ReadChunksLoop(onChunk func([]byte), onError func(error))

	// Close releases the underlying handle and unblocks a pending
	// ReadChunksLoop. Safe to call multiple times.
	Close() error

	// Name identifies the source for logging.
	Name() string
}

// Open opens the byte source named by cfg.Device. Addresses with a tcp://
// prefix dial a serial-over-TCP bridge; everything else is treated as a
// local serial device path.
func Open(cfg Config) (Source, error) {
	if strings.HasPrefix(cfg.Device, "tcp://") {
		return openTCP(strings.TrimPrefix(cfg.Device, "tcp://"), cfg.readTimeout())
	}
	return openSerial(cfg)
}
