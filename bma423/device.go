// Package bma423 provides a driver for the Bosch BMA423 accelerometer.
//
// The BMA423 runs its step counter and gesture features from a firmware
// blob that the host uploads at power-on. Feature settings live in a small
// window of that blob and are patched through FeatureTransport.
//
// Datasheet: https://www.bosch-sensortec.com/products/motion-sensors/accelerometers/bma423/
package bma423

import (
	"encoding/binary"
	"time"

	"tinygo.org/x/drivers"
)

// Polling parameters for ASIC start-up once the config file is loaded.
// The datasheet quotes 140-150ms.
const (
	initPollInterval = 50 * time.Millisecond
	initTimeout      = 200 * time.Millisecond
)

// Config holds the settings applied by Configure.
type Config struct {
	// Address defaults to PrimaryAddress.
	Address uint16

	// ConfigFile is the vendor firmware blob. When set, Configure uploads
	// it and waits for the ASIC to initialize.
	ConfigFile []byte

	// Delay defaults to time.Sleep.
	Delay Delayer

	// Debug receives non-fatal diagnostics.
	Debug DebugWriter
}

// Device wraps an I2C connection to a BMA423.
type Device struct {
	FeatureTransport
}

// New creates a new BMA423 connection on the primary address. The I2C bus
// must already be configured.
//
// This function only creates the Device object, it does not touch the device.
func New(bus drivers.I2C) *Device {
	d := &Device{}
	d.bus = bus
	d.Address = PrimaryAddress
	d.SetDelayer(nil)
	return d
}

// Configure checks the chip ID and, when cfg carries a config file, loads
// it into the device.
func (d *Device) Configure(cfg Config) error {
	if cfg.Address != 0 {
		d.Address = cfg.Address
	}
	if cfg.Delay != nil {
		d.SetDelayer(cfg.Delay)
	}
	if cfg.Debug != nil {
		d.SetDebugWriter(cfg.Debug)
	}

	id, err := d.ChipID()
	if err != nil {
		return err
	}
	if id != ChipID {
		return &ChipIDError{ID: id}
	}

	if len(cfg.ConfigFile) == 0 {
		return nil
	}
	return d.LoadConfigFile(cfg.ConfigFile)
}

// Connected returns whether a BMA423 has been found.
func (d *Device) Connected() bool {
	id, err := d.ChipID()
	return err == nil && id == ChipID
}

// ChipID reads the CHIP_ID register.
func (d *Device) ChipID() (uint8, error) {
	return d.readRegister(REG_CHIP_ID)
}

// LoadConfigFile uploads the feature firmware and waits for the ASIC to
// report that it is initialized. Advanced power save is enabled afterwards.
func (d *Device) LoadConfigFile(blob []byte) error {
	if len(blob)%2 != 0 || len(blob) > ConfigMemorySize {
		return ErrConfigFileSize
	}

	if err := d.setPowerMode(0); err != nil {
		return err
	}
	d.delay.Sleep(SensorTimeSync)

	// Disable config loading while the blob is written.
	if err := d.writeRegister(REG_INIT_CTRL, 0x00); err != nil {
		return err
	}
	if err := d.burstWrite(0, blob); err != nil {
		return err
	}
	if err := d.writeRegister(REG_INIT_CTRL, 0x01); err != nil {
		return err
	}

	if err := d.waitInitialized(); err != nil {
		return err
	}

	return d.setPowerMode(AdvancedPowerSave)
}

func (d *Device) waitInitialized() error {
	for waited := time.Duration(0); waited < initTimeout; waited += initPollInterval {
		d.delay.Sleep(initPollInterval)

		status, err := d.readRegister(REG_INTERNAL_STATUS)
		if err != nil {
			return err
		}
		switch status & 0x0F {
		case InternalNotInitialized:
			continue
		case InternalInitialized:
			return nil
		default:
			return &InitError{Status: status & 0x0F}
		}
	}
	return &InitError{Timeout: true}
}

// SensorStatus reads the STATUS register.
func (d *Device) SensorStatus() (SensorStatus, error) {
	v, err := d.readRegister(REG_STATUS)
	return SensorStatus(v), err
}

// PowerMode reads PWR_CONF.
func (d *Device) PowerMode() (PowerMode, error) {
	return d.powerMode()
}

// SetPowerMode writes PWR_CONF. Callers are expected to wait
// SensorTimeSync before the next access.
func (d *Device) SetPowerMode(mode PowerMode) error {
	return d.setPowerMode(mode)
}

// EnabledSensors reports which sensors are powered. To check the
// accelerometer:
//
//	p, err := dev.EnabledSensors()
//	on := err == nil && p.Has(bma423.Accelerometer)
func (d *Device) EnabledSensors() (SensorPower, error) {
	v, err := d.readRegister(REG_PWR_CTRL)
	return SensorPower(v), err
}

// EnableSensors powers exactly the given sensors.
func (d *Device) EnableSensors(sensors SensorPower) error {
	return d.writeRegister(REG_PWR_CTRL, uint8(sensors))
}

// SetInterruptPinConfig configures the electrical behavior of INT1 or INT2.
func (d *Device) SetInterruptPinConfig(pin InterruptPin, cfg InterruptPinConfig) error {
	return d.writeRegister(REG_INT1_IO_CTRL+uint8(pin), cfg.Bits())
}

// InterruptPinConfig reads back the configuration of INT1 or INT2.
func (d *Device) InterruptPinConfig(pin InterruptPin) (InterruptPinConfig, error) {
	v, err := d.readRegister(REG_INT1_IO_CTRL + uint8(pin))
	return ParseInterruptPinConfig(v), err
}

// Temperature returns the die temperature in degrees Celsius, in the range
// -104..150. It is refreshed every 1.28s while a sensor is active; ok is
// false when no valid measurement is available.
func (d *Device) Temperature() (celsius int16, ok bool, err error) {
	v, err := d.readRegister(REG_TEMPERATURE)
	if err != nil {
		return 0, false, err
	}
	celsius, ok = temperatureCelsius(v)
	return celsius, ok, nil
}

func temperatureCelsius(raw uint8) (int16, bool) {
	if raw == 0x80 {
		return 0, false
	}
	return int16(int8(raw)) + 23, true
}

// SensorTime reads the free running 24-bit counter. One tick is 39.0625µs.
func (d *Device) SensorTime() (uint32, error) {
	var buf [4]byte
	if err := d.readRegisters(REG_SENSORTIME_0, buf[:3]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// StepCount reads the step counter.
func (d *Device) StepCount() (uint32, error) {
	var buf [4]byte
	if err := d.readRegisters(REG_STEP_COUNTER_0, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// ResetStepCounter sets the reset bit of the step counter feature.
func (d *Device) ResetStepCounter() error {
	return d.WithFeatures(func(features []byte) error {
		features[FeatureStepCounterSettings26+1] |= stepCounterResetMask
		return nil
	})
}

// Acceleration returns the raw 12-bit acceleration on the three axes.
func (d *Device) Acceleration() (x, y, z int16, err error) {
	var buf [6]byte
	if err = d.readRegisters(REG_DATA_8, buf[:]); err != nil {
		return 0, 0, 0, err
	}
	// Samples are left aligned in 16 bits.
	x = int16(binary.LittleEndian.Uint16(buf[0:])) >> 4
	y = int16(binary.LittleEndian.Uint16(buf[2:])) >> 4
	z = int16(binary.LittleEndian.Uint16(buf[4:])) >> 4
	return x, y, z, nil
}
