// Command bma423-host drives a BMA423 through the USB bridge firmware, or
// through the built-in simulator, from an interactive shell.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"

	"watchy/bma423"
	"watchy/bma423/sim"
	"watchy/bridge"
	"watchy/bridge/client"
	"watchy/bus"
	"watchy/host/config"
	"watchy/host/serial"
)

var (
	configPath = flag.String("config", "", "YAML configuration file")
	device     = flag.String("device", "", "Serial device path (overrides the config file)")
	simulate   = flag.Bool("sim", false, "Use the in-process simulator instead of a serial bridge")
	verbose    = flag.Bool("v", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log := newLogger(cfg.Log, os.Stderr)

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("exiting")
		os.Exit(1)
	}
}

// run owns the bridge link; it is closed before run returns on every path.
func run(cfg *config.Config, log zerolog.Logger) error {
	c, err := connect(cfg, log)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Debug().Err(err).Msg("close")
		}
	}()

	sh := newShell(bus.NewShared(c), cfg.Sensor.Address, os.Stdout, log)
	if err := configure(sh, cfg); err != nil {
		log.Error().Err(err).Msg("sensor setup")
	}

	if err := interact(sh); err != nil {
		return fmt.Errorf("shell: %w", err)
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}
	if *device != "" {
		cfg.Serial.Device = *device
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// connect returns an I2C bus backed by the bridge. Closing it closes the
// link. The simulator runs a bridge server on the far end of a pipe so both
// paths share the same wire protocol.
func connect(cfg *config.Config, log zerolog.Logger) (*client.Client, error) {
	var link io.ReadWriteCloser
	if *simulate {
		host, mcu := net.Pipe()
		dev := sim.New()
		dev.Address = cfg.Sensor.Address
		dev.StepReset = true
		dev.SetStepCount(1234)

		srv := bridge.NewServer(mcu, dev)
		srv.SetDebugWriter(func(msg string) { log.Debug().Str("side", "sim").Msg(msg) })
		go func() {
			if err := srv.Serve(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
				log.Warn().Err(err).Msg("simulator stopped")
			}
		}()
		link = host
		log.Info().Msg("using simulator")
	} else {
		port, err := serial.Open(cfg.SerialPort())
		if err != nil {
			return nil, err
		}
		if err := port.Flush(); err != nil {
			log.Debug().Err(err).Msg("flush")
		}
		link = port
		log.Info().Str("port", cfg.Serial.Device).Int("baud", cfg.Serial.Baud).Msg("connected")
	}

	c := client.New(link)
	c.Timeout = time.Duration(cfg.Bridge.TimeoutMS) * time.Millisecond
	c.SetLogger(log.With().Str("component", "bridge").Logger())
	return c, nil
}

// configure checks the chip and uploads the config file if one is named.
func configure(sh *shell, cfg *config.Config) error {
	var blob []byte
	if cfg.Sensor.ConfigFile != "" {
		var err error
		if blob, err = os.ReadFile(cfg.Sensor.ConfigFile); err != nil {
			return err
		}
	}

	return sh.exclusive(func(d *bma423.Device) error {
		return d.Configure(bma423.Config{Address: cfg.Sensor.Address, ConfigFile: blob})
	})
}

// interact drives the shell; tests replace it.
var interact = repl

func repl(sh *shell) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "bma423> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("chip"),
			readline.PcItem("power", readline.PcItem("aps"), readline.PcItem("normal")),
			readline.PcItem("features"),
			readline.PcItem("read"),
			readline.PcItem("write"),
			readline.PcItem("reset-steps"),
			readline.PcItem("steps"),
			readline.PcItem("temp"),
			readline.PcItem("time"),
			readline.PcItem("accel"),
			readline.PcItem("load"),
			readline.PcItem("watch", readline.PcItem("off")),
			readline.PcItem("help"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return err
	}
	defer rl.Close()
	sh.out = rl.Stdout()

	fmt.Fprintln(sh.out, "Type 'help' for available commands")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			sh.stopWatch()
			return nil
		}
		if err != nil {
			return err
		}

		if err := sh.exec(line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			fmt.Fprintf(sh.out, "Error: %v\n", err)
		}
	}
}
