package bridge_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchy/bma423"
	"watchy/bma423/sim"
	"watchy/bridge"
	"watchy/protocol"
)

// loopback feeds a fixed request stream to a Server and captures its output.
type loopback struct {
	io.Reader
	bytes.Buffer
}

func (l *loopback) Write(p []byte) (int, error) { return l.Buffer.Write(p) }
func (l *loopback) Read(p []byte) (int, error)  { return l.Reader.Read(p) }

func TestServerBadRequest(t *testing.T) {
	var stream []byte
	stream, _ = protocol.AppendBlock(stream, protocol.SeqDest, protocol.AppendVLQUint(nil, 99))
	// i2c_read with a zero length
	read := protocol.AppendVLQUint(nil, bridge.CmdI2CRead)
	read = protocol.AppendVLQUint(read, bma423.PrimaryAddress)
	read = protocol.AppendVLQBytes(read, []byte{bma423.REG_CHIP_ID})
	read = protocol.AppendVLQUint(read, 0)
	stream, _ = protocol.AppendBlock(stream, protocol.SeqDest|1, read)

	rw := &loopback{Reader: bytes.NewReader(stream)}
	srv := bridge.NewServer(rw, sim.New())
	var logged []string
	srv.SetDebugWriter(func(s string) { logged = append(logged, s) })
	require.NoError(t, srv.Serve())

	dec := protocol.NewDecoder(&rw.Buffer)
	for i, seq := range []uint8{protocol.SeqDest, protocol.SeqDest | 1} {
		b, err := dec.Next()
		require.NoError(t, err, "response %d", i)
		assert.Equal(t, seq, b.Seq)

		payload := b.Payload
		cmd, err := protocol.DecodeVLQUint(&payload)
		require.NoError(t, err)
		assert.Equal(t, uint32(bridge.RspI2CResult), cmd)
		status, err := protocol.DecodeVLQUint(&payload)
		require.NoError(t, err)
		assert.Equal(t, uint32(bridge.StatusBadRequest), status)
	}

	assert.Equal(t, 2, srv.Failed)
	assert.Len(t, logged, 2)
}

func TestServerRejectsWideAddress(t *testing.T) {
	var stream []byte
	stream, _ = protocol.AppendBlock(stream, protocol.SeqDest,
		bridge.AppendWrite(nil, 0x100|bma423.PrimaryAddress, []byte{bma423.REG_PWR_CONF, 0x00}))
	stream, _ = protocol.AppendBlock(stream, protocol.SeqDest|1,
		bridge.AppendRead(nil, 0x80|bma423.PrimaryAddress, []byte{bma423.REG_CHIP_ID}, 1))

	dev := sim.New()
	rw := &loopback{Reader: bytes.NewReader(stream)}
	srv := bridge.NewServer(rw, dev)
	require.NoError(t, srv.Serve())

	dec := protocol.NewDecoder(&rw.Buffer)
	for i := 0; i < 2; i++ {
		b, err := dec.Next()
		require.NoError(t, err, "response %d", i)
		res, err := bridge.DecodeResult(b.Payload)
		require.NoError(t, err)
		assert.Equal(t, uint32(bridge.StatusBadRequest), res.Status)
		assert.Contains(t, res.Message, "7-bit")
	}

	assert.Empty(t, dev.Log)
	assert.True(t, dev.PowerSaveEnabled())
	assert.Equal(t, 2, srv.Failed)
}

func TestResultErr(t *testing.T) {
	assert.NoError(t, bridge.Result{Status: bridge.StatusOK}.Err())

	err := bridge.Result{Status: bridge.StatusBusError, Message: "nack"}.Err()
	var remote *bridge.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "bridge: remote bus error: nack", err.Error())
}
