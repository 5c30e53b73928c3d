package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchy/bma423"
	"watchy/bma423/sim"
	"watchy/bridge/client"
	"watchy/bus"
	"watchy/host/config"
)

func newTestShell(t *testing.T) (*shell, *sim.Device, *bytes.Buffer) {
	t.Helper()
	dev := sim.New()
	dev.StepReset = true
	out := &bytes.Buffer{}
	return newShell(bus.NewShared(dev), bma423.PrimaryAddress, out, zerolog.Nop()), dev, out
}

func TestShellChip(t *testing.T) {
	sh, dev, out := newTestShell(t)
	require.NoError(t, sh.exec("chip"))
	assert.Contains(t, out.String(), "chip id: 0x13")

	dev.Regs[bma423.REG_CHIP_ID] = 0x42
	var idErr *bma423.ChipIDError
	assert.ErrorAs(t, sh.exec("chip"), &idErr)
}

func TestShellReadWrite(t *testing.T) {
	sh, dev, out := newTestShell(t)

	require.NoError(t, sh.exec("write 0x100 deadbeef"))
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, dev.Memory[0x100:0x104])
	assert.True(t, dev.PowerSaveEnabled())

	out.Reset()
	require.NoError(t, sh.exec("read 256 4"))
	assert.Equal(t, "0100: de ad be ef\n", out.String())

	assert.ErrorIs(t, sh.exec("read 1 4"), bma423.ErrMisaligned)
	assert.ErrorIs(t, sh.exec("write 0x1FFE beef00"), bma423.ErrMisaligned)
	assert.ErrorIs(t, sh.exec("write 0x1FFE beefbeef"), bma423.ErrOutOfRange)
	assert.Error(t, sh.exec("write 0 xyz"))
	assert.Error(t, sh.exec("read 0"))
}

func TestShellFeatures(t *testing.T) {
	sh, dev, out := newTestShell(t)
	dev.Memory[bma423.FeatureStart] = 0xAB

	require.NoError(t, sh.exec("features"))
	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, bma423.FeatureSize/16)
	assert.True(t, bytes.HasPrefix(lines[0], []byte("17f8: ab 00")))
}

func TestShellSteps(t *testing.T) {
	sh, dev, out := newTestShell(t)
	dev.SetStepCount(77)

	require.NoError(t, sh.exec("steps"))
	assert.Contains(t, out.String(), "steps: 77")

	require.NoError(t, sh.exec("reset-steps"))
	out.Reset()
	require.NoError(t, sh.exec("steps"))
	assert.Contains(t, out.String(), "steps: 0")
}

func TestShellSensors(t *testing.T) {
	sh, dev, out := newTestShell(t)
	dev.Regs[bma423.REG_TEMPERATURE] = 0x80
	dev.SetAcceleration(10, -20, 30)

	require.NoError(t, sh.exec("temp"))
	require.NoError(t, sh.exec("accel"))
	require.NoError(t, sh.exec("time"))
	assert.Contains(t, out.String(), "temperature: invalid")
	assert.Contains(t, out.String(), "accel: x=10 y=-20 z=30")

	require.NoError(t, sh.exec("power normal"))
	assert.False(t, dev.PowerSaveEnabled())
	require.NoError(t, sh.exec("power aps"))
	assert.True(t, dev.PowerSaveEnabled())
	assert.Error(t, sh.exec("power turbo"))
}

func TestShellLoad(t *testing.T) {
	sh, dev, _ := newTestShell(t)
	path := filepath.Join(t.TempDir(), "config.bin")
	blob := bytes.Repeat([]byte{0x11, 0x22}, 64)
	require.NoError(t, os.WriteFile(path, blob, 0o644))

	require.NoError(t, sh.exec("load "+path))
	assert.Equal(t, blob, dev.Memory[:len(blob)])
	assert.Error(t, sh.exec("load"))
}

func TestShellWatch(t *testing.T) {
	sh, _, _ := newTestShell(t)
	require.NoError(t, sh.exec("watch 5"))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, sh.exec("watch off"))
	assert.Nil(t, sh.watchStop)

	assert.Error(t, sh.exec("watch 0"))
	require.NoError(t, sh.exec("watch 5"))
	assert.ErrorIs(t, sh.exec("quit"), errQuit)
	assert.Nil(t, sh.watchStop)
}

func TestShellWatchDoesNotCrossRegisters(t *testing.T) {
	sh, dev, out := newTestShell(t)
	dev.Regs[bma423.REG_TEMPERATURE] = 0x05
	// 0x80 is the invalid temperature marker, so a temp read that lands on
	// the step counter shows up as "invalid".
	dev.Regs[bma423.REG_STEP_COUNTER_0] = 0x80

	require.NoError(t, sh.exec("watch 1"))
	defer sh.stopWatch()

	const reads = 2000
	for i := 0; i < reads; i++ {
		out.Reset()
		require.NoError(t, sh.exec("temp"))
		require.Equal(t, "temperature: 28 C\n", out.String(), "read %d", i)
	}

	var steps uint32
	require.NoError(t, sh.exclusive(func(d *bma423.Device) (err error) {
		steps, err = d.StepCount()
		return err
	}))
	assert.Equal(t, uint32(0x80), steps)
}

func TestShellUnknown(t *testing.T) {
	sh, _, _ := newTestShell(t)
	assert.NoError(t, sh.exec(""))
	assert.NoError(t, sh.exec("help"))
	assert.Error(t, sh.exec("frobnicate"))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(config.LogConfig{Level: "warn"}, &buf)
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestRunClosesLinkOnError(t *testing.T) {
	*simulate = true
	defer func() { *simulate = false; interact = repl }()

	var sh *shell
	interact = func(s *shell) error {
		sh = s
		require.NoError(t, s.exec("chip"))
		return errors.New("terminal lost")
	}

	cfg := config.Default()
	err := run(cfg, zerolog.Nop())
	require.ErrorContains(t, err, "terminal lost")

	require.NotNil(t, sh)
	_, err = sh.dev.ChipID()
	assert.ErrorIs(t, err, client.ErrClosed)
}
