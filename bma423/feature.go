package bma423

import (
	"fmt"
	"time"

	"tinygo.org/x/drivers"
)

// SensorTimeSync is the settle time required after every PWR_CONF change
// before the next register access.
const SensorTimeSync = 450 * time.Microsecond

// Delayer waits for a fixed amount of time.
type Delayer interface {
	Sleep(d time.Duration)
}

type sleeper struct{}

func (sleeper) Sleep(d time.Duration) { time.Sleep(d) }

// DebugWriter receives diagnostic messages that do not change the result
// of an operation.
type DebugWriter func(string)

// FeatureTransport moves byte buffers between host memory and the
// configuration memory of a BMA423. The memory is reached through an
// 8-byte port (FEATURES_IN) addressed by a pointer register pair, and the
// port is only defined while advanced power save is off.
//
// Single register accesses keep no state in the transport, so on a
// bus.Shared each one is a single atomic Tx. Region operations are not safe
// for concurrent use: they share a chunk buffer, and another driver talking
// to the same device in the middle of a transfer corrupts it. Run them under
// bus.Shared.Exclusive.
type FeatureTransport struct {
	bus     drivers.I2C
	Address uint16
	delay   Delayer
	debug   DebugWriter

	// scratch holds the FEATURES_IN register address followed by one chunk.
	scratch [1 + FeatureChunkSize]byte
}

// NewFeatureTransport returns a transport for the device at address.
// A nil delay sleeps with time.Sleep.
func NewFeatureTransport(bus drivers.I2C, address uint16, delay Delayer) *FeatureTransport {
	t := &FeatureTransport{bus: bus, Address: address}
	t.SetDelayer(delay)
	return t
}

// SetDelayer replaces the delay provider. A nil delay sleeps with time.Sleep.
func (t *FeatureTransport) SetDelayer(delay Delayer) {
	if delay == nil {
		delay = sleeper{}
	}
	t.delay = delay
}

// SetDebugWriter installs a sink for suppressed errors. Nil disables it.
func (t *FeatureTransport) SetDebugWriter(w DebugWriter) {
	t.debug = w
}

func (t *FeatureTransport) debugf(format string, args ...any) {
	if t.debug != nil {
		t.debug(fmt.Sprintf(format, args...))
	}
}

// EncodePointer splits an even configuration memory address into the values
// of the low (0x5B) and high (0x5C) pointer registers. The device stores the
// address halved.
func EncodePointer(addr int) (lsb, msb uint8) {
	word := addr / 2
	return uint8(word & 0x0F), uint8(word >> 4)
}

// DecodePointer is the inverse of EncodePointer.
func DecodePointer(lsb, msb uint8) int {
	return (int(msb)<<4 | int(lsb&0x0F)) * 2
}

// ReadRegion fills buf with configuration memory starting at offset.
// Advanced power save is suspended for the duration of the transfer.
func (t *FeatureTransport) ReadRegion(offset int, buf []byte) error {
	if err := checkRegion(offset, len(buf)); err != nil {
		return err
	}
	return t.withPowerSaveSuspended(func() error {
		return t.burstRead(offset, buf)
	})
}

// WriteRegion stores data in configuration memory starting at offset.
// Advanced power save is suspended for the duration of the transfer.
//
// A trailing partial chunk is sent as a full port write with its unused
// tail zeroed. Only the requested prefix of that chunk is meaningful.
func (t *FeatureTransport) WriteRegion(offset int, data []byte) error {
	if err := checkRegion(offset, len(data)); err != nil {
		return err
	}
	return t.withPowerSaveSuspended(func() error {
		return t.burstWrite(offset, data)
	})
}

// WithFeatures runs a read-modify-write transaction over the feature window.
// fn receives the current FeatureSize bytes and edits them in place; the
// buffer is written back unless fn returns an error. Power save is
// suspended once for the whole transaction and restored even on failure.
func (t *FeatureTransport) WithFeatures(fn func(features []byte) error) error {
	var buf [FeatureSize]byte
	return t.withPowerSaveSuspended(func() error {
		if err := t.burstRead(FeatureStart, buf[:]); err != nil {
			return err
		}
		if err := fn(buf[:]); err != nil {
			return err
		}
		return t.burstWrite(FeatureStart, buf[:])
	})
}

// ReadFeatures returns a snapshot of the feature window.
func (t *FeatureTransport) ReadFeatures() (features [FeatureSize]byte, err error) {
	err = t.ReadRegion(FeatureStart, features[:])
	return features, err
}

// FeaturePointer reads back the current configuration memory pointer.
func (t *FeatureTransport) FeaturePointer() (int, error) {
	lsb, err := t.readRegister(REG_FEATURE_ADDR_0)
	if err != nil {
		return 0, err
	}
	msb, err := t.readRegister(REG_FEATURE_ADDR_1)
	if err != nil {
		return 0, err
	}
	return DecodePointer(lsb, msb), nil
}

func checkRegion(offset, length int) error {
	if offset%2 != 0 || length%2 != 0 {
		return fmt.Errorf("%w: offset %d length %d", ErrMisaligned, offset, length)
	}
	if offset < 0 || offset+length > ConfigMemorySize {
		return fmt.Errorf("%w: [%#x, %#x)", ErrOutOfRange, offset, offset+length)
	}
	return nil
}

// withPowerSaveSuspended clears advanced power save around fn when it is
// set, and writes the previous mode back afterwards whatever fn returned.
// fn's error takes precedence over a failed restore.
func (t *FeatureTransport) withPowerSaveSuspended(fn func() error) (err error) {
	prev, err := t.powerMode()
	if err != nil {
		return err
	}
	if !prev.Has(AdvancedPowerSave) {
		return fn()
	}

	defer func() {
		rerr := t.setPowerMode(prev)
		if rerr == nil {
			t.delay.Sleep(SensorTimeSync)
			return
		}
		if err != nil {
			t.debugf("bma423: restoring power mode %#x failed: %v", uint8(prev), rerr)
			return
		}
		err = rerr
	}()

	// A failed write here may still have reached the device, so the
	// deferred restore runs in that case too.
	if err := t.setPowerMode(prev &^ AdvancedPowerSave); err != nil {
		return err
	}
	t.delay.Sleep(SensorTimeSync)

	return fn()
}

// burstRead reads len(buf) bytes starting at offset. The pointer is set
// before every port read and advances by FeatureChunkSize between them.
func (t *FeatureTransport) burstRead(offset int, buf []byte) error {
	for len(buf) > 0 {
		n := min(len(buf), FeatureChunkSize)
		if err := t.setPointer(offset); err != nil {
			return err
		}
		if err := t.readRegisters(REG_FEATURES_IN, buf[:n]); err != nil {
			return err
		}
		offset += FeatureChunkSize
		buf = buf[n:]
	}
	return nil
}

// burstWrite is the write side of burstRead.
func (t *FeatureTransport) burstWrite(offset int, data []byte) error {
	chunk := t.scratch[:]
	chunk[0] = REG_FEATURES_IN
	for len(data) > 0 {
		n := copy(chunk[1:], data)
		clear(chunk[1+n:])
		if err := t.setPointer(offset); err != nil {
			return err
		}
		if err := t.bus.Tx(t.Address, chunk, nil); err != nil {
			return err
		}
		offset += FeatureChunkSize
		data = data[n:]
	}
	return nil
}

func (t *FeatureTransport) setPointer(addr int) error {
	lsb, msb := EncodePointer(addr)
	if err := t.writeRegister(REG_FEATURE_ADDR_0, lsb); err != nil {
		return err
	}
	return t.writeRegister(REG_FEATURE_ADDR_1, msb)
}

func (t *FeatureTransport) powerMode() (PowerMode, error) {
	v, err := t.readRegister(REG_PWR_CONF)
	return PowerMode(v), err
}

func (t *FeatureTransport) setPowerMode(mode PowerMode) error {
	return t.writeRegister(REG_PWR_CONF, uint8(mode))
}

// Register r/w utilities

func (t *FeatureTransport) readRegisters(reg uint8, buf []byte) error {
	w := [1]byte{reg}
	return t.bus.Tx(t.Address, w[:], buf)
}

func (t *FeatureTransport) readRegister(reg uint8) (uint8, error) {
	var data [1]byte
	err := t.readRegisters(reg, data[:])
	return data[0], err
}

func (t *FeatureTransport) writeRegister(reg, value uint8) error {
	w := [2]byte{reg, value}
	return t.bus.Tx(t.Address, w[:], nil)
}
