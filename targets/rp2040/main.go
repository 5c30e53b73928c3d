//go:build rp2040

package main

import (
	"machine"
	"time"

	"watchy/bridge"
	"watchy/bus"
)

var (
	// Debug counters, visible from a debugger
	sessions  uint32
	msgerrors uint32
	lastError string
)

func main() {
	// Disable watchdog on boot to clear any previous state
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	port := InitUSB()

	i2c, err := InitI2C()
	if err != nil {
		lastError = err.Error()
		halt()
	}
	shared := bus.NewShared(i2c)

	for {
		serve(port, shared)
		// Back off before accepting the next session
		time.Sleep(100 * time.Millisecond)
	}
}

// serve runs one bridge session. A panic ends the session instead of
// crashing the firmware.
func serve(port usbPort, shared *bus.Shared) {
	defer func() {
		if r := recover(); r != nil {
			msgerrors++
		}
	}()

	sessions++
	srv := bridge.NewServer(port, shared)
	srv.SetDebugWriter(func(msg string) {
		msgerrors++
		lastError = msg
	})
	if err := srv.Serve(); err != nil {
		lastError = err.Error()
	}
}

func halt() {
	for {
		time.Sleep(time.Second)
	}
}
