package serialdefmt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeDecoder builds a DecoderConfig that runs a shell script in place of
// defmt-print. StartDecoder invokes "<binary> -e <elf> <args...>", so with
// sh as the binary the ELF slot carries the script path ("-e" becomes
// errexit).
func fakeDecoder(t *testing.T, script string) DecoderConfig {
	t.Helper()
	path := filepath.Join(t.TempDir(), "decoder.sh")
	require.NoError(t, os.WriteFile(path, []byte(script+"\n"), 0o644))
	return DecoderConfig{Binary: "sh", ELF: path}
}

// channelWriter delivers every Write as one string, so tests can select on
// output with a timeout.
type channelWriter chan string

func (w channelWriter) Write(p []byte) (int, error) {
	w <- string(p)
	return len(p), nil
}

func TestDecoder_ForwardsInputImmediately(t *testing.T) {
	out := make(channelWriter, 16)
	dec, err := StartDecoder(fakeDecoder(t, "exec cat"), out, nil)
	require.NoError(t, err)
	t.Cleanup(func() { dec.Close() })

	// No trailing newline: cat echoes the bytes as soon as they arrive,
	// so this only passes if the chunk is flushed immediately.
	require.NoError(t, dec.Write([]byte("hello")))

	select {
	case s := <-out:
		require.Equal(t, "hello", s)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for decoder output")
	}
}

func TestDecoder_MergesStderrIntoOutput(t *testing.T) {
	out := make(channelWriter, 16)
	dec, err := StartDecoder(fakeDecoder(t, "echo decoded; echo diagnostic 1>&2"), out, nil)
	require.NoError(t, err)

	var got strings.Builder
	deadline := time.After(time.Second)
	for !strings.Contains(got.String(), "decoded") || !strings.Contains(got.String(), "diagnostic") {
		select {
		case s := <-out:
			got.WriteString(s)
		case <-deadline:
			t.Fatalf("timeout: merged output so far %q", got.String())
		}
	}

	require.NoError(t, dec.Close())
}

func TestDecoder_DrainTerminatesAtEOF(t *testing.T) {
	out := make(channelWriter, 16)
	dec, err := StartDecoder(fakeDecoder(t, "exec cat"), out, nil)
	require.NoError(t, err)

	require.NoError(t, dec.Write([]byte("x")))
	select {
	case <-out:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for echo")
	}

	// Closing stdin makes cat exit; its output stream hits EOF and the
	// drain goroutine finishes before Close returns.
	require.NoError(t, dec.Close())

	select {
	case <-dec.Done():
	default:
		t.Fatal("drain goroutine still running after Close")
	}

	// No further output after end of stream.
	select {
	case s := <-out:
		t.Fatalf("unexpected output after EOF: %q", s)
	default:
	}
}

func TestDecoder_SpawnFailureIsFatal(t *testing.T) {
	out := make(channelWriter, 1)
	cfg := DecoderConfig{Binary: "/nonexistent/defmt-print", ELF: "/dev/null"}
	_, err := StartDecoder(cfg, out, nil)
	require.Error(t, err)
}

func TestDecoder_WaitReportsExitStatus(t *testing.T) {
	out := make(channelWriter, 16)
	dec, err := StartDecoder(fakeDecoder(t, "exit 3"), out, nil)
	require.NoError(t, err)

	err = dec.Close()
	require.Error(t, err)
	require.Contains(t, err.Error(), "decoder exit")
}
