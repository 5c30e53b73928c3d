//go:build rp2040

package main

import (
	"machine"
	"time"
)

// usbPort adapts USB CDC to io.ReadWriter. machine.Serial.Read returns
// immediately when nothing is buffered, so Read polls until data arrives.
type usbPort struct{}

// InitUSB initializes USB serial communication.
// TinyGo sets up USB CDC-ACM on RP2040; the baud rate is ignored.
func InitUSB() usbPort {
	machine.Serial.Configure(machine.UARTConfig{})
	return usbPort{}
}

func (usbPort) Read(p []byte) (int, error) {
	for machine.Serial.Buffered() == 0 {
		// Yield to avoid a busy loop
		time.Sleep(100 * time.Microsecond)
	}
	return machine.Serial.Read(p)
}

func (usbPort) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := machine.Serial.Write(p[written:])
		written += n
		if err != nil {
			return written, err
		}
		if n == 0 {
			time.Sleep(100 * time.Microsecond)
		}
	}
	return written, nil
}
