// Package bus lets several drivers share one physical I2C bus.
package bus

import (
	"sync"

	"tinygo.org/x/drivers"
)

// Shared serializes access to an I2C bus. Every Tx is atomic with respect
// to other users of the same Shared; Exclusive extends that to a sequence
// of transactions, such as a feature region transfer.
type Shared struct {
	mu  sync.Mutex
	bus drivers.I2C
}

// NewShared wraps bus. The underlying bus must not be used directly once
// wrapped.
func NewShared(bus drivers.I2C) *Shared {
	return &Shared{bus: bus}
}

// Tx implements drivers.I2C.
func (s *Shared) Tx(addr uint16, w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bus.Tx(addr, w, r)
}

// Exclusive runs fn with the bus locked. fn receives the raw bus and must
// not call back into s.
func (s *Shared) Exclusive(fn func(bus drivers.I2C) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.bus)
}
