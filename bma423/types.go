package bma423

// PowerMode mirrors the PWR_CONF register.
type PowerMode uint8

const (
	AdvancedPowerSave PowerMode = 0b01
	FIFOSelfWakeup    PowerMode = 0b10
)

// Has reports whether every bit of flag is set.
func (m PowerMode) Has(flag PowerMode) bool { return m&flag == flag }

// SensorPower mirrors the PWR_CTRL register.
type SensorPower uint8

const (
	Auxiliary     SensorPower = 0b001
	Accelerometer SensorPower = 0b100
)

func (p SensorPower) Has(flag SensorPower) bool { return p&flag == flag }

// SensorStatus mirrors the STATUS register.
type SensorStatus uint8

const (
	AuxInterfaceOperation  SensorStatus = 0b100
	CommandDecoderReady    SensorStatus = 0b10000
	AuxiliaryDataReady     SensorStatus = 0b100000
	AccelerometerDataReady SensorStatus = 0b1000000
)

func (s SensorStatus) Has(flag SensorStatus) bool { return s&flag == flag }

// InterruptPin selects INT1 or INT2.
type InterruptPin uint8

const (
	InterruptPin1 InterruptPin = 0
	InterruptPin2 InterruptPin = 1
)

type TriggerCondition uint8

const (
	TriggerLevel TriggerCondition = 0
	TriggerEdge  TriggerCondition = 1
)

type PinLevel uint8

const (
	ActiveLow  PinLevel = 0
	ActiveHigh PinLevel = 1
)

type PinDrain uint8

const (
	PushPull  PinDrain = 0
	OpenDrain PinDrain = 1
)

// InterruptPinConfig is the content of INT1_IO_CTRL / INT2_IO_CTRL.
type InterruptPinConfig struct {
	Trigger       TriggerCondition
	Level         PinLevel
	Drain         PinDrain
	OutputEnabled bool
	InputEnabled  bool
}

// Bits packs the config into its register layout.
func (c InterruptPinConfig) Bits() uint8 {
	b := uint8(c.Trigger) | uint8(c.Level)<<1 | uint8(c.Drain)<<2
	if c.OutputEnabled {
		b |= 1 << 3
	}
	if c.InputEnabled {
		b |= 1 << 4
	}
	return b
}

// ParseInterruptPinConfig unpacks a register value. Reserved bits are ignored.
func ParseInterruptPinConfig(b uint8) InterruptPinConfig {
	return InterruptPinConfig{
		Trigger:       TriggerCondition(b & 1),
		Level:         PinLevel((b >> 1) & 1),
		Drain:         PinDrain((b >> 2) & 1),
		OutputEnabled: b&(1<<3) != 0,
		InputEnabled:  b&(1<<4) != 0,
	}
}
