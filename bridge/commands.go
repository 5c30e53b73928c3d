// Package bridge tunnels I2C transactions over a serial link. The Server
// runs next to the bus (on the MCU); bridge/client implements drivers.I2C
// on the host, so host-side drivers run unchanged against real hardware.
//
// This package is built into the firmware and carries no host-only
// dependencies.
package bridge

import (
	"fmt"

	"watchy/protocol"
)

// Command identifiers
const (
	CmdI2CWrite  = 1 // addr=%u data=%*s
	CmdI2CRead   = 2 // addr=%u reg=%*s read_len=%u
	RspI2CResult = 3 // status=%u data=%*s message=%*s
)

// Result status codes
const (
	StatusOK         = 0
	StatusBusError   = 1
	StatusBadRequest = 2
)

// MaxAddress is the highest 7-bit I2C address a request may carry.
const MaxAddress = 0x7F

// MaxTransfer bounds the data of one transaction so that both the request
// and the result fit in a block.
const MaxTransfer = protocol.PayloadMax - 16

// RemoteError reports a failure on the far side of the bridge.
type RemoteError struct {
	Status  uint32
	Message string
}

func (e *RemoteError) Error() string {
	switch e.Status {
	case StatusBusError:
		return "bridge: remote bus error: " + e.Message
	case StatusBadRequest:
		return "bridge: bad request: " + e.Message
	}
	return fmt.Sprintf("bridge: remote status %d: %s", e.Status, e.Message)
}

// AppendWrite appends an i2c_write request to dst.
func AppendWrite(dst []byte, addr uint16, data []byte) []byte {
	dst = protocol.AppendVLQUint(dst, CmdI2CWrite)
	dst = protocol.AppendVLQUint(dst, uint32(addr))
	return protocol.AppendVLQBytes(dst, data)
}

// AppendRead appends an i2c_read request for n bytes after writing reg.
func AppendRead(dst []byte, addr uint16, reg []byte, n int) []byte {
	dst = protocol.AppendVLQUint(dst, CmdI2CRead)
	dst = protocol.AppendVLQUint(dst, uint32(addr))
	dst = protocol.AppendVLQBytes(dst, reg)
	return protocol.AppendVLQUint(dst, uint32(n))
}

// AppendResult appends an i2c_result response to dst.
func AppendResult(dst []byte, status uint32, data []byte, message string) []byte {
	dst = protocol.AppendVLQUint(dst, RspI2CResult)
	dst = protocol.AppendVLQUint(dst, status)
	dst = protocol.AppendVLQBytes(dst, data)
	return protocol.AppendVLQString(dst, message)
}

// Result is a decoded i2c_result.
type Result struct {
	Status  uint32
	Data    []byte
	Message string
}

// Err returns nil for StatusOK and a *RemoteError otherwise.
func (r Result) Err() error {
	if r.Status == StatusOK {
		return nil
	}
	return &RemoteError{Status: r.Status, Message: r.Message}
}

// DecodeResult parses an i2c_result payload.
func DecodeResult(payload []byte) (Result, error) {
	var r Result
	cmd, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return r, err
	}
	if cmd != RspI2CResult {
		return r, fmt.Errorf("bridge: unexpected response %d", cmd)
	}
	if r.Status, err = protocol.DecodeVLQUint(&payload); err != nil {
		return r, err
	}
	if r.Data, err = protocol.DecodeVLQBytes(&payload); err != nil {
		return r, err
	}
	if r.Message, err = protocol.DecodeVLQString(&payload); err != nil {
		return r, err
	}
	return r, nil
}
