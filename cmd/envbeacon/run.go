package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/epsg-gti/envbeacon"
	"github.com/epsg-gti/envbeacon/config"
	"github.com/epsg-gti/envbeacon/console"
	"github.com/epsg-gti/envbeacon/node"
	"github.com/epsg-gti/envbeacon/sensor"
)

var errNoSensors = errors.New("hosted nodes have no analog sensors, use --simulate")

var runFlags = []cli.Flag{
	cli.StringFlag{
		Name:   "config, c",
		Usage:  "YAML configuration file",
		EnvVar: "ENVBEACON_CONFIG",
	},
	cli.StringFlag{
		Name:   "name, n",
		Usage:  "Advertised device name",
		EnvVar: "ENVBEACON_NAME",
	},
	cli.StringFlag{
		Name:   "stack",
		Usage:  "Radio stack: bluez or tinygo",
		EnvVar: "ENVBEACON_STACK",
	},
	cli.StringFlag{
		Name:   "beacon-uuid",
		Usage:  "iBeacon UUID, canonical or up to 16 characters of text",
		EnvVar: "ENVBEACON_BEACON_UUID",
	},
	cli.DurationFlag{
		Name:   "interval",
		Usage:  "Time between publications",
		EnvVar: "ENVBEACON_INTERVAL",
	},
	cli.DurationFlag{
		Name:   "hold",
		Usage:  "Time each frame stays on air",
		EnvVar: "ENVBEACON_HOLD",
	},
	cli.BoolFlag{
		Name:   "simulate",
		Usage:  "Publish simulated readings",
		EnvVar: "ENVBEACON_SIMULATE",
	},
	cli.StringFlag{
		Name:   "log-level",
		Usage:  "Log level: debug, info, warning or error",
		EnvVar: "ENVBEACON_LOG_LEVEL",
	},
	cli.StringFlag{
		Name:   "serial",
		Usage:  "Send logs to this serial port instead of stderr",
		EnvVar: "ENVBEACON_SERIAL",
	},
	cli.BoolFlag{
		Name:  "keys",
		Usage: "Read single key commands from the terminal: p publishes, c calibrates, q quits",
	},
}

// loadConfig reads the configuration file, if any, and applies the flags
// that were set on top of it.
func loadConfig(c *cli.Context) (config.Node, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}
	if c.IsSet("name") {
		cfg.Name = c.String("name")
	}
	if c.IsSet("stack") {
		cfg.Stack = c.String("stack")
	}
	if c.IsSet("beacon-uuid") {
		cfg.BeaconUUID = c.String("beacon-uuid")
	}
	if c.IsSet("interval") {
		cfg.PublishInterval = config.Duration(c.Duration("interval"))
	}
	if c.IsSet("hold") {
		cfg.AdvertiseHold = config.Duration(c.Duration("hold"))
	}
	if c.IsSet("simulate") {
		cfg.Simulate = c.Bool("simulate")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("serial") {
		cfg.SerialPort = c.String("serial")
	}
	return cfg, cfg.Validate()
}

func runCommand(c *cli.Context) (err error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	keys := c.Bool("keys")
	restore := func() {}
	if keys {
		if restore, err = console.Configure(); err != nil {
			return err
		}
	}
	defer restore()

	log, closer, err := console.New(console.Options{
		Level: cfg.LogLevel,
		Port:  cfg.SerialPort,
		Baud:  cfg.SerialBaud,
		Raw:   keys,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	n, stack, err := buildNode(cfg, log)
	if err != nil {
		return err
	}
	if s, ok := stack.(io.Closer); ok {
		defer s.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if keys {
		go handleKeys(ctx, cancel, n, log)
	}

	err = n.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info("stopped")
		return nil
	}
	return err
}

func buildNode(cfg config.Node, log *logrus.Logger) (*node.Node, envbeacon.Stack, error) {
	if !cfg.Simulate {
		return nil, nil, errNoSensors
	}
	stack, err := newStack(cfg.Stack, log)
	if err != nil {
		return nil, nil, err
	}
	beacon, err := cfg.Beacon()
	if err != nil {
		return nil, nil, err
	}
	firmware, err := cfg.FirmwareVersion()
	if err != nil {
		return nil, nil, err
	}

	opts := []envbeacon.Option{envbeacon.WithLogger(log)}
	for mode, mc := range cfg.ModeConfigs() {
		opts = append(opts, envbeacon.WithModeConfig(mode, mc))
	}
	periph := envbeacon.NewPeripheral(stack, cfg.Identity(), opts...)
	pub := node.NewPublisher(periph,
		node.WithBeaconUUID(beacon),
		node.WithMeasuredPower(cfg.MeasuredPower),
		node.WithHold(time.Duration(cfg.AdvertiseHold)),
		node.WithPublisherLogger(log),
	)
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	n := node.New(periph, pub, sensor.Simulated(seed),
		node.WithInterval(time.Duration(cfg.PublishInterval)),
		node.WithBursts(cfg.Bursts),
		node.WithFirmware(firmware),
		node.WithManufacturer(cfg.Manufacturer),
		node.WithNodeLogger(log),
	)
	return n, stack, nil
}

func handleKeys(ctx context.Context, cancel context.CancelFunc, n *node.Node, log logrus.FieldLogger) {
	for key := range console.Keys(ctx, os.Stdin) {
		switch key {
		case 'p':
			n.Enqueue(node.Command{Op: node.OpPublishNow})
		case 'c':
			n.Enqueue(node.Command{Op: node.OpCalibrate})
		case 'q', 3: // 3 is Ctrl-C in raw mode
			cancel()
			return
		default:
			log.WithField("key", string(key)).Debug("unknown key")
		}
	}
}
