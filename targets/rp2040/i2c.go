//go:build rp2040

package main

import (
	"machine"
)

// i2cFrequency is the BMA423 fast-mode limit.
const i2cFrequency = 400 * machine.KHz

// InitI2C configures I2C0 on its default pins (SDA=GP4, SCL=GP5).
func InitI2C() (*machine.I2C, error) {
	i2c := machine.I2C0
	err := i2c.Configure(machine.I2CConfig{
		Frequency: i2cFrequency,
		SDA:       machine.I2C0_SDA_PIN,
		SCL:       machine.I2C0_SCL_PIN,
	})
	if err != nil {
		return nil, err
	}
	return i2c, nil
}
