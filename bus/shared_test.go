package bus_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tinygo.org/x/drivers"

	"watchy/bma423"
	"watchy/bma423/sim"
	"watchy/bus"
)

// twoDevices routes transactions to a BMA423 simulator or, for any other
// address, to a counter standing in for a second device on the bus.
type twoDevices struct {
	accel *sim.Device
	mu    sync.Mutex
	other int
	log   []uint16
}

func (b *twoDevices) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	b.log = append(b.log, addr)
	b.mu.Unlock()
	if addr == b.accel.Address {
		return b.accel.Tx(addr, w, r)
	}
	b.mu.Lock()
	b.other++
	b.mu.Unlock()
	return nil
}

func TestExclusiveKeepsFeatureTransferContiguous(t *testing.T) {
	raw := &twoDevices{accel: sim.New()}
	shared := bus.NewShared(raw)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_ = shared.Tx(0x51, []byte{0x02}, make([]byte, 1))
			}
		}
	}()

	data := make([]byte, bma423.FeatureSize)
	for i := range data {
		data[i] = byte(i)
	}

	for i := 0; i < 20; i++ {
		raw.mu.Lock()
		start := len(raw.log)
		raw.mu.Unlock()

		err := shared.Exclusive(func(b drivers.I2C) error {
			tr := bma423.NewFeatureTransport(b, bma423.PrimaryAddress, nil)
			return tr.WriteRegion(bma423.FeatureStart, data)
		})
		require.NoError(t, err)

		raw.mu.Lock()
		seq := append([]uint16(nil), raw.log...)
		raw.mu.Unlock()

		// Once the transfer started, nothing else ran until it ended.
		first := -1
		last := -1
		for j := start; j < len(seq); j++ {
			if seq[j] == bma423.PrimaryAddress {
				if first < 0 {
					first = j
				}
				last = j
			}
		}
		require.GreaterOrEqual(t, first, 0)
		for j := first; j <= last; j++ {
			assert.Equal(t, uint16(bma423.PrimaryAddress), seq[j], "foreign transaction inside feature transfer")
		}
	}

	close(stop)
	wg.Wait()

	assert.Equal(t, data, raw.accel.Memory[bma423.FeatureStart:bma423.FeatureStart+bma423.FeatureSize])
	assert.Zero(t, raw.accel.PortViolations)
}

func TestSharedTxPassThrough(t *testing.T) {
	dev := sim.New()
	shared := bus.NewShared(dev)

	id := make([]byte, 1)
	require.NoError(t, shared.Tx(bma423.PrimaryAddress, []byte{bma423.REG_CHIP_ID}, id))
	assert.Equal(t, byte(bma423.ChipID), id[0])
	assert.ErrorIs(t, shared.Tx(0x30, []byte{0}, nil), sim.ErrNack)
}
