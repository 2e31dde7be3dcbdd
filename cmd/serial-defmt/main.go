// Serial-defmt tails a UART carrying defmt-encoded log frames and pipes the
// raw bytes into an external decoder subprocess (defmt-print by default).
// Decoded log lines appear on stdout; the bridge's own diagnostics go to
// stderr so the two never mix.
//
// Typical usage:
//
//	serial-defmt --device /dev/ttyUSB0 --elf target/debug/firmware
//
// The device may also be a tcp://host:port address for serial-over-TCP
// bridges. SIGINT or SIGTERM stops the bridge cleanly: the device is
// released, the decoder's stdin is closed, and the subprocess is waited for
// before exit.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	serialdefmt "github.com/luhtfiimanal/go-serial-defmt"
)

// Build-time variable (set via ldflags)
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		device      string
		baud        int
		readTimeout string
		decoderBin  string
		elfPath     string
		decoderArgs []string
		listPorts   bool
		logLevel    string
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("serial-defmt", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to YAML config file")
	flagSet.StringVar(&device, "device", "", "serial device path (e.g. /dev/ttyUSB0) or tcp://host:port")
	flagSet.IntVar(&baud, "baud", 0, "baud rate (default 115200)")
	flagSet.StringVar(&readTimeout, "read-timeout", "", "poll timeout, e.g. 500ms (default 1s)")
	flagSet.StringVar(&decoderBin, "decoder", "", "decoder executable (default defmt-print)")
	flagSet.StringVarP(&elfPath, "elf", "e", "", "firmware ELF the decoder matches frames against (required)")
	flagSet.StringArrayVar(&decoderArgs, "decoder-arg", nil, "extra argument passed to the decoder (repeatable)")
	flagSet.BoolVar(&listPorts, "list-ports", false, "list candidate serial ports and exit")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("serial-defmt %s\n", version)
		return nil
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(logLevel),
	}))
	slog.SetDefault(logger)

	if listPorts {
		ports, err := serialdefmt.AvailablePorts()
		if err != nil {
			return err
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	}

	cfg := serialdefmt.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = serialdefmt.LoadConfig(configPath); err != nil {
			return err
		}
	}
	if flagSet.Changed("device") {
		cfg.Device = device
	}
	if flagSet.Changed("baud") {
		cfg.BaudRate = baud
	}
	if flagSet.Changed("read-timeout") {
		cfg.ReadTimeout = readTimeout
	}
	if flagSet.Changed("decoder") {
		cfg.Decoder.Binary = decoderBin
	}
	if flagSet.Changed("elf") {
		cfg.Decoder.ELF = elfPath
	}
	if flagSet.Changed("decoder-arg") {
		cfg.Decoder.Args = decoderArgs
	}
	// Environment wins, so one invocation can serve machines with
	// different adapter paths.
	if env := os.Getenv("SERIALDEFMT_DEVICE"); env != "" {
		cfg.Device = env
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	src, err := serialdefmt.Open(cfg)
	if err != nil {
		return err
	}

	dec, err := serialdefmt.StartDecoder(cfg.Decoder, os.Stdout, logger)
	if err != nil {
		src.Close()
		return err
	}

	bridge := serialdefmt.NewBridge(src, dec, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		logger.Info("interrupt received, stopping")
		bridge.Shutdown()
	}()

	return bridge.Run()
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
