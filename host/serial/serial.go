// Package serial opens the host end of the link to the bridge firmware.
package serial

import (
	"io"
)

// Port is the byte stream a bridge client runs over. A NativePort is the
// USB CDC device of the firmware; tests and the simulator use net.Pipe.
type Port interface {
	io.ReadWriteCloser

	// Flush drops input left over from an earlier session, such as late
	// responses to requests that timed out.
	Flush() error
}

// Config selects the bridge device.
type Config struct {
	Device string // e.g. /dev/ttyACM0

	// Baud only matters for UART adapters; the RP2040 enumerates as USB CDC.
	Baud int

	// ReadTimeout in milliseconds bounds each blocking read so a closed
	// client is noticed. 0 blocks forever.
	ReadTimeout int
}

// DefaultConfig returns the settings the bridge firmware is built for.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100,
	}
}
