package serialdefmt

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultBaudRate matches the defmt UART transport used by most probes.
	DefaultBaudRate = 115200

	// DefaultReadTimeout bounds a single poll on the serial device so an
	// idle port still cycles the read loop.
	DefaultReadTimeout = time.Second

	// DefaultDecoderBinary is the decoder spawned when none is configured.
	DefaultDecoderBinary = "defmt-print"
)

// Config holds the bridge configuration. It is loaded from a single YAML
// file and overridden by flags; there is no automatic discovery.
type Config struct {
	// Device is the serial device path (e.g. /dev/ttyUSB0) or a
	// tcp://host:port address for serial-over-TCP sources.
	Device string `yaml:"device"`

	// BaudRate applies to local serial devices only. Default 115200.
	// Framing is fixed at 8 data bits, no parity, 1 stop bit.
	BaudRate int `yaml:"baud_rate"`

	// ReadTimeout bounds a single poll for available bytes, in
	// time.ParseDuration syntax (e.g. "1s"). Default "1s".
	ReadTimeout string `yaml:"read_timeout"`

	// Decoder configures the subprocess that renders defmt frames.
	Decoder DecoderConfig `yaml:"decoder"`
}

// DecoderConfig describes the external decoder subprocess.
type DecoderConfig struct {
	// Binary is the decoder executable. Default "defmt-print".
	Binary string `yaml:"binary"`

	// ELF is the firmware image the decoder matches frames against.
	ELF string `yaml:"elf"`

	// Args are extra arguments appended after "-e <elf>".
	Args []string `yaml:"args,omitempty"`
}

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() Config {
	return Config{
		Device:      "/dev/ttyUSB0",
		BaudRate:    DefaultBaudRate,
		ReadTimeout: DefaultReadTimeout.String(),
		Decoder: DecoderConfig{
			Binary: DefaultDecoderBinary,
		},
	}
}

// LoadConfig reads a YAML config file on top of the defaults. Unknown keys
// are rejected so typos surface instead of silently falling back.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the configuration for values the bridge cannot run with.
func (c Config) Validate() error {
	if c.Device == "" {
		return fmt.Errorf("device must not be empty")
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", c.BaudRate)
	}
	if c.ReadTimeout != "" {
		if d, err := time.ParseDuration(c.ReadTimeout); err != nil {
			return fmt.Errorf("read_timeout: %w", err)
		} else if d <= 0 {
			return fmt.Errorf("read_timeout must be positive, got %s", c.ReadTimeout)
		}
	}
	if c.Decoder.Binary == "" {
		return fmt.Errorf("decoder.binary must not be empty")
	}
	if c.Decoder.ELF == "" {
		return fmt.Errorf("decoder.elf must not be empty")
	}
	return nil
}

// readTimeout returns the parsed ReadTimeout, falling back to the default
// when unset. Validate catches malformed values before this runs.
func (c Config) readTimeout() time.Duration {
	if c.ReadTimeout == "" {
		return DefaultReadTimeout
	}
	d, err := time.ParseDuration(c.ReadTimeout)
	if err != nil || d <= 0 {
		return DefaultReadTimeout
	}
	return d
}
