package bma423

// I2C addresses. SDO pulled low selects the primary address.
const (
	PrimaryAddress   = 0x18
	SecondaryAddress = 0x19
)

// Value of the CHIP_ID register on a BMA423.
const ChipID = 0x13

// Registers. Names and addresses follow the datasheet.
const (
	REG_CHIP_ID         = 0x00
	REG_ERR             = 0x02
	REG_STATUS          = 0x03
	REG_DATA_8          = 0x12 // ACC_X LSB
	REG_SENSORTIME_0    = 0x18
	REG_EVENT           = 0x1B
	REG_INT_STATUS_0    = 0x1C
	REG_INT_STATUS_1    = 0x1D
	REG_STEP_COUNTER_0  = 0x1E
	REG_TEMPERATURE     = 0x22
	REG_ACTIVITY_TYPE   = 0x27
	REG_INTERNAL_STATUS = 0x2A
	REG_ACC_CONF        = 0x40
	REG_ACC_RANGE       = 0x41
	REG_INT1_IO_CTRL    = 0x53
	REG_INT2_IO_CTRL    = 0x54
	REG_INT_LATCH       = 0x55
	REG_INIT_CTRL       = 0x59
	REG_FEATURE_ADDR_0  = 0x5B // config memory pointer, low nibble
	REG_FEATURE_ADDR_1  = 0x5C // config memory pointer, high bits
	REG_FEATURES_IN     = 0x5E // 8-byte config memory port
	REG_INTERNAL_ERROR  = 0x5F
	REG_PWR_CONF        = 0x7C
	REG_PWR_CTRL        = 0x7D
	REG_CMD             = 0x7E
)

// Configuration memory layout.
const (
	// ConfigFileSize is the size of the firmware blob loaded by LoadConfigFile.
	ConfigFileSize = 0x1800

	// ConfigMemorySize bounds every region transfer. The pointer encoding
	// cannot address anything past 0x1FFE.
	ConfigMemorySize = 0x2000

	// FeatureChunkSize is the width of the FEATURES_IN port.
	FeatureChunkSize = 8

	// FeatureSize is the size of the feature configuration window.
	FeatureSize = 64

	// FeatureStart is where the pointer sits once the config file is
	// loaded. The vendor driver saves it after loading and reuses it for
	// every feature access, which puts the window 8 bytes before the end
	// of the blob.
	FeatureStart = ConfigFileSize - FeatureChunkSize
)

// Offsets inside the feature window.
const (
	FeatureStepCounterSettings26 = 0x36

	// stepCounterResetMask is OR'ed into byte FeatureStepCounterSettings26+1.
	stepCounterResetMask = 0b100
)

// INTERNAL_STATUS message values (low nibble).
const (
	InternalNotInitialized      = 0x00
	InternalInitialized         = 0x01
	InternalInitializationError = 0x02
	InternalInvalidDriver       = 0x03
	InternalSensorStopped       = 0x04
)
