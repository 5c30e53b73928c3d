// Package sim emulates the register interface of a BMA423 well enough to
// exercise the bma423 driver without hardware. It implements drivers.I2C.
package sim

import (
	"encoding/binary"
	"errors"
	"sync"

	"watchy/bma423"
)

// ErrNack is returned for transactions addressed to another device.
var ErrNack = errors.New("sim: no acknowledge")

// Tx is one recorded bus transaction.
type Tx struct {
	Addr    uint16
	W       []byte
	ReadLen int
	Pointer int // configuration memory pointer when the transaction started
}

// Reg returns the register addressed by the transaction.
func (t Tx) Reg() uint8 {
	if len(t.W) == 0 {
		return 0
	}
	return t.W[0]
}

// IsRead reports whether the transaction is a register read.
func (t Tx) IsRead() bool { return t.ReadLen > 0 }

// Device is a simulated BMA423.
type Device struct {
	mu sync.Mutex

	Address uint16
	Regs    [128]byte
	Memory  [bma423.ConfigMemorySize]byte

	// Log records every transaction, including failed ones.
	Log []Tx

	// FailWhen, when set, is consulted before each transaction. A non-nil
	// result is returned to the caller and the transaction has no effect.
	FailWhen func(tx Tx) error

	// PortViolations counts FEATURES_IN accesses made while advanced power
	// save was on.
	PortViolations int

	// InitStatus is the value INTERNAL_STATUS takes once INIT_CTRL is set.
	InitStatus uint8

	// StepReset makes the step counter reset bit of the feature window
	// self-clearing, zeroing the step counter as the firmware does.
	StepReset bool
}

// New returns a powered-up device at the primary address, with advanced
// power save enabled as after reset.
func New() *Device {
	d := &Device{
		Address:    bma423.PrimaryAddress,
		InitStatus: bma423.InternalInitialized,
	}
	d.Regs[bma423.REG_CHIP_ID] = bma423.ChipID
	d.Regs[bma423.REG_PWR_CONF] = uint8(bma423.AdvancedPowerSave)
	return d
}

// Tx implements drivers.I2C.
func (d *Device) Tx(addr uint16, w, r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx := Tx{
		Addr:    addr,
		W:       append([]byte(nil), w...),
		ReadLen: len(r),
		Pointer: d.pointer(),
	}
	d.Log = append(d.Log, tx)

	if addr != d.Address {
		return ErrNack
	}
	if d.FailWhen != nil {
		if err := d.FailWhen(tx); err != nil {
			return err
		}
	}
	if len(w) == 0 {
		// Bare read without a register address: nothing to report.
		clear(r)
		return nil
	}

	reg := w[0]
	if len(r) > 0 {
		d.read(reg, r)
	}
	if len(w) > 1 {
		d.write(reg, w[1:])
	}
	return nil
}

func (d *Device) read(reg uint8, r []byte) {
	if reg == bma423.REG_FEATURES_IN {
		d.checkPort()
		copy(r, d.Memory[min(d.pointer(), len(d.Memory)):])
		return
	}
	for i := range r {
		r[i] = d.Regs[(int(reg)+i)%len(d.Regs)]
	}
}

func (d *Device) write(reg uint8, data []byte) {
	if reg == bma423.REG_FEATURES_IN {
		d.checkPort()
		copy(d.Memory[min(d.pointer(), len(d.Memory)):], data)
		if d.StepReset {
			d.applyFeatures()
		}
		return
	}
	for i, b := range data {
		r := (int(reg) + i) % len(d.Regs)
		d.Regs[r] = b
		if r == bma423.REG_INIT_CTRL && b&0x01 != 0 {
			d.Regs[bma423.REG_INTERNAL_STATUS] = d.InitStatus
		}
	}
}

func (d *Device) checkPort() {
	if bma423.PowerMode(d.Regs[bma423.REG_PWR_CONF]).Has(bma423.AdvancedPowerSave) {
		d.PortViolations++
	}
}

// applyFeatures acts on self-clearing feature bits.
func (d *Device) applyFeatures() {
	idx := bma423.FeatureStart + bma423.FeatureStepCounterSettings26 + 1
	if d.Memory[idx]&0b100 != 0 {
		d.Memory[idx] &^= 0b100
		d.SetStepCount(0)
	}
}

func (d *Device) pointer() int {
	return bma423.DecodePointer(d.Regs[bma423.REG_FEATURE_ADDR_0], d.Regs[bma423.REG_FEATURE_ADDR_1])
}

// SetStepCount stores n in the step counter registers.
func (d *Device) SetStepCount(n uint32) {
	binary.LittleEndian.PutUint32(d.Regs[bma423.REG_STEP_COUNTER_0:], n)
}

// SetAcceleration stores raw 12-bit samples in the data registers.
func (d *Device) SetAcceleration(x, y, z int16) {
	for i, v := range []int16{x, y, z} {
		binary.LittleEndian.PutUint16(d.Regs[bma423.REG_DATA_8+2*i:], uint16(v<<4))
	}
}

// PowerSaveEnabled reports the advanced power save bit of PWR_CONF.
func (d *Device) PowerSaveEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return bma423.PowerMode(d.Regs[bma423.REG_PWR_CONF]).Has(bma423.AdvancedPowerSave)
}

// ResetLog drops recorded transactions.
func (d *Device) ResetLog() {
	d.mu.Lock()
	d.Log = nil
	d.mu.Unlock()
}

// RegisterWrites returns the writes addressed to reg, in order.
func (d *Device) RegisterWrites(reg uint8) []Tx {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Tx
	for _, tx := range d.Log {
		if tx.Reg() == reg && len(tx.W) > 1 {
			out = append(out, tx)
		}
	}
	return out
}

// PortAccesses returns the FEATURES_IN transactions, reads and writes.
func (d *Device) PortAccesses() []Tx {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Tx
	for _, tx := range d.Log {
		if tx.Reg() == bma423.REG_FEATURES_IN {
			out = append(out, tx)
		}
	}
	return out
}
