package bma423

import (
	"errors"
	"fmt"
)

var (
	// ErrMisaligned is returned when a region offset or length is odd.
	// The device only addresses its configuration memory in 2-byte words.
	ErrMisaligned = errors.New("bma423: feature region offset and length must be even")

	// ErrOutOfRange is returned for regions outside [0, ConfigMemorySize).
	ErrOutOfRange = errors.New("bma423: feature region outside configuration memory")

	// ErrConfigFileSize is returned when a config blob does not fit.
	ErrConfigFileSize = errors.New("bma423: config file size must be even and fit configuration memory")
)

// ChipIDError is returned by Configure when CHIP_ID does not read ChipID.
type ChipIDError struct {
	ID uint8
}

func (e *ChipIDError) Error() string {
	return fmt.Sprintf("bma423: invalid chip id 0x%02x", e.ID)
}

// InitError is returned when the ASIC fails to come up after the config
// file is loaded.
type InitError struct {
	Status  uint8 // low nibble of INTERNAL_STATUS
	Timeout bool
}

func (e *InitError) Error() string {
	if e.Timeout {
		return "bma423: ASIC initialization timed out"
	}
	return fmt.Sprintf("bma423: ASIC initialization failed (internal status 0x%x)", e.Status)
}
