package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"tinygo.org/x/drivers"

	"watchy/bma423"
	"watchy/bus"
)

var errQuit = errors.New("quit")

// shell runs bench commands against one sensor. Commands that issue more
// than one transaction hold the bus for their whole duration so the step
// watcher cannot interleave with a feature transfer. The watcher polls
// through its own device under the same lock.
type shell struct {
	bus     *bus.Shared
	dev     *bma423.Device
	address uint16
	out     io.Writer
	log     zerolog.Logger

	watchMu   sync.Mutex
	watchStop chan struct{}
	watchDone chan struct{}
}

func newShell(shared *bus.Shared, address uint16, out io.Writer, log zerolog.Logger) *shell {
	dev := bma423.New(shared)
	dev.Address = address
	return &shell{bus: shared, dev: dev, address: address, out: out, log: log}
}

// exclusive runs fn with a device bound to the locked bus.
func (s *shell) exclusive(fn func(d *bma423.Device) error) error {
	return s.bus.Exclusive(func(raw drivers.I2C) error {
		d := bma423.New(raw)
		d.Address = s.address
		d.SetDebugWriter(func(msg string) { s.log.Debug().Msg(msg) })
		return fn(d)
	})
}

// exec runs one command line. It returns errQuit for quit and exit.
func (s *shell) exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "help", "?":
		s.help()
		return nil
	case "quit", "exit", "q":
		s.stopWatch()
		return errQuit
	case "chip":
		return s.chip()
	case "power":
		return s.power(args)
	case "features":
		return s.features()
	case "read":
		return s.read(args)
	case "write":
		return s.write(args)
	case "reset-steps":
		if err := s.exclusive((*bma423.Device).ResetStepCounter); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "step counter reset")
		return nil
	case "steps":
		n, err := s.dev.StepCount()
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "steps: %d\n", n)
		return nil
	case "temp":
		c, ok, err := s.dev.Temperature()
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(s.out, "temperature: invalid")
			return nil
		}
		fmt.Fprintf(s.out, "temperature: %d C\n", c)
		return nil
	case "time":
		t, err := s.dev.SensorTime()
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "sensor time: %d (%.3fs)\n", t, float64(t)*39.0625e-6)
		return nil
	case "accel":
		x, y, z, err := s.dev.Acceleration()
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "accel: x=%d y=%d z=%d\n", x, y, z)
		return nil
	case "load":
		return s.load(args)
	case "watch":
		return s.watch(args)
	default:
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", cmd)
	}
}

func (s *shell) help() {
	fmt.Fprintln(s.out, "\nAvailable commands:")
	fmt.Fprintln(s.out, "  chip                 - Read and check the chip ID")
	fmt.Fprintln(s.out, "  power [aps|normal]   - Show or set the power mode")
	fmt.Fprintln(s.out, "  features             - Dump the 64-byte feature window")
	fmt.Fprintln(s.out, "  read <off> <len>     - Read config memory")
	fmt.Fprintln(s.out, "  write <off> <hex>    - Write config memory")
	fmt.Fprintln(s.out, "  reset-steps          - Reset the step counter")
	fmt.Fprintln(s.out, "  steps | temp | time | accel")
	fmt.Fprintln(s.out, "  load <file>          - Upload a config file")
	fmt.Fprintln(s.out, "  watch <ms>|off       - Print the step count periodically")
	fmt.Fprintln(s.out, "  quit/exit/q          - Exit the program")
	fmt.Fprintln(s.out)
}

func (s *shell) chip() error {
	id, err := s.dev.ChipID()
	if err != nil {
		return err
	}
	if id != bma423.ChipID {
		return &bma423.ChipIDError{ID: id}
	}
	fmt.Fprintf(s.out, "chip id: 0x%02x (BMA423 at 0x%02x)\n", id, s.address)
	return nil
}

func (s *shell) power(args []string) error {
	if len(args) > 0 {
		var mode bma423.PowerMode
		switch args[0] {
		case "aps":
			mode = bma423.AdvancedPowerSave
		case "normal":
		default:
			return fmt.Errorf("power: unknown mode %q", args[0])
		}
		if err := s.dev.SetPowerMode(mode); err != nil {
			return err
		}
	}

	mode, err := s.dev.PowerMode()
	if err != nil {
		return err
	}
	sensors, err := s.dev.EnabledSensors()
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "advanced power save: %t, accelerometer: %t\n",
		mode.Has(bma423.AdvancedPowerSave), sensors.Has(bma423.Accelerometer))
	return nil
}

func (s *shell) features() error {
	var window [bma423.FeatureSize]byte
	err := s.exclusive(func(d *bma423.Device) (err error) {
		window, err = d.ReadFeatures()
		return err
	})
	if err != nil {
		return err
	}
	dump(s.out, bma423.FeatureStart, window[:])
	return nil
}

func (s *shell) read(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: read <off> <len>")
	}
	off, err := parseInt(args[0])
	if err != nil {
		return err
	}
	n, err := parseInt(args[1])
	if err != nil {
		return err
	}
	if n < 0 || n > bma423.ConfigMemorySize {
		return bma423.ErrOutOfRange
	}

	buf := make([]byte, n)
	if err := s.exclusive(func(d *bma423.Device) error { return d.ReadRegion(off, buf) }); err != nil {
		return err
	}
	dump(s.out, off, buf)
	return nil
}

func (s *shell) write(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: write <off> <hex>")
	}
	off, err := parseInt(args[0])
	if err != nil {
		return err
	}
	data, err := hex.DecodeString(args[1])
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}

	if err := s.exclusive(func(d *bma423.Device) error { return d.WriteRegion(off, data) }); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "wrote %d bytes at 0x%04x\n", len(data), off)
	return nil
}

func (s *shell) load(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: load <file>")
	}
	blob, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	start := time.Now()
	if err := s.exclusive(func(d *bma423.Device) error { return d.LoadConfigFile(blob) }); err != nil {
		return err
	}
	s.log.Info().Int("bytes", len(blob)).Dur("took", time.Since(start)).Msg("config file loaded")
	return nil
}

func (s *shell) watch(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: watch <ms>|off")
	}
	s.stopWatch()
	if args[0] == "off" {
		return nil
	}

	ms, err := parseInt(args[0])
	if err != nil {
		return err
	}
	if ms <= 0 {
		return fmt.Errorf("watch: interval must be positive")
	}

	stop, done := make(chan struct{}), make(chan struct{})
	s.watchMu.Lock()
	s.watchStop, s.watchDone = stop, done
	s.watchMu.Unlock()

	go s.watchLoop(time.Duration(ms)*time.Millisecond, stop, done)
	return nil
}

func (s *shell) watchLoop(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := ^uint32(0)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			var n uint32
			err := s.exclusive(func(d *bma423.Device) (err error) {
				n, err = d.StepCount()
				return err
			})
			if err != nil {
				s.log.Warn().Err(err).Msg("step count")
				continue
			}
			if n != last {
				s.log.Info().Uint32("steps", n).Msg("step count")
				last = n
			}
		}
	}
}

func (s *shell) stopWatch() {
	s.watchMu.Lock()
	stop, done := s.watchStop, s.watchDone
	s.watchStop, s.watchDone = nil, nil
	s.watchMu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

// parseInt accepts decimal and 0x-prefixed hex.
func parseInt(s string) (int, error) {
	v, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return int(v), nil
}

// dump prints buf sixteen bytes per line, labelled with memory offsets.
func dump(w io.Writer, base int, buf []byte) {
	for i := 0; i < len(buf); i += 16 {
		end := min(i+16, len(buf))
		fmt.Fprintf(w, "%04x: % x\n", base+i, buf[i:end])
	}
}
