package serialdefmt

import (
	"fmt"
	"runtime"
	"strings"

	"go.bug.st/serial"
)

// AvailablePorts enumerates serial devices that look like UART adapters,
// filtered by OS naming conventions. Best effort: a probe is not attempted,
// so a listed port may still fail to open.
func AvailablePorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return filterPorts(ports), nil
}

// filterPorts drops devices that are never UART adapters (bluetooth
// endpoints, virtual consoles) and deduplicates.
func filterPorts(ports []string) []string {
	var filtered []string
	seen := make(map[string]bool)

	for _, port := range ports {
		if seen[port] {
			continue
		}
		seen[port] = true

		if runtime.GOOS == "windows" {
			if strings.HasPrefix(strings.ToUpper(port), "COM") {
				filtered = append(filtered, port)
			}
			continue
		}

		lower := strings.ToLower(port)
		if strings.Contains(lower, "bluetooth") {
			continue
		}

		if strings.Contains(lower, "ttyusb") ||
			strings.Contains(lower, "ttyacm") ||
			strings.Contains(lower, "usbserial") ||
			strings.Contains(lower, "cu.") {
			filtered = append(filtered, port)
		}
	}

	return filtered
}
