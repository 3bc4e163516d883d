package node

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/blang/semver"
	"github.com/sirupsen/logrus"

	"github.com/epsg-gti/envbeacon"
	"github.com/epsg-gti/envbeacon/sensor"
)

const (
	DefaultInterval     = 10 * time.Second
	DefaultManufacturer = "EPSG-GTI"
	commandQueueLen     = 8
)

// DefaultFirmware is reported by the Device Information Service unless
// WithFirmware is used.
var DefaultFirmware = semver.MustParse("1.0.0")

// Calibrator is implemented by sources that can recalibrate, such as
// sensor.Meter.
type Calibrator interface {
	Calibrate(samples int) error
}

// Node ties a peripheral, a publisher and the sensors together. All work
// happens in Run; the radio stack callbacks only set flags and queue
// commands.
type Node struct {
	periph     *envbeacon.Peripheral
	pub        *Publisher
	source     sensor.Source
	calibrator Calibrator
	log        logrus.FieldLogger

	env     *EnvironmentService
	battery *BatteryService
	info    *DeviceInformation

	manufacturer string
	firmware     semver.Version
	interval     time.Duration
	bursts       bool

	commands  chan Command
	connected atomic.Int32
	counter   uint8
}

type Option func(*Node)

func WithInterval(d time.Duration) Option {
	return func(n *Node) { n.interval = d }
}

func WithCalibrator(c Calibrator) Option {
	return func(n *Node) { n.calibrator = c }
}

func WithFirmware(v semver.Version) Option {
	return func(n *Node) { n.firmware = v }
}

func WithManufacturer(name string) Option {
	return func(n *Node) { n.manufacturer = name }
}

// WithBursts enables publishing every measurement in its own iBeacon frame
// before the multi-field frame.
func WithBursts(enabled bool) Option {
	return func(n *Node) { n.bursts = enabled }
}

func WithNodeLogger(log logrus.FieldLogger) Option {
	return func(n *Node) { n.log = log }
}

func New(periph *envbeacon.Peripheral, pub *Publisher, source sensor.Source, opts ...Option) *Node {
	n := &Node{
		periph:       periph,
		pub:          pub,
		source:       source,
		log:          logrus.StandardLogger(),
		manufacturer: DefaultManufacturer,
		firmware:     DefaultFirmware,
		interval:     DefaultInterval,
		bursts:       true,
		commands:     make(chan Command, commandQueueLen),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Enqueue queues a command for the main loop. It never blocks and reports
// whether the command was queued.
func (n *Node) Enqueue(cmd Command) bool {
	select {
	case n.commands <- cmd:
		return true
	default:
		return false
	}
}

// Connected reports whether at least one central is connected.
func (n *Node) Connected() bool {
	return n.connected.Load() > 0
}

func (n *Node) onConnect(envbeacon.Connection) {
	n.connected.Add(1)
}

func (n *Node) onDisconnect(envbeacon.Connection, envbeacon.DisconnectReason) {
	if n.connected.Add(-1) < 0 {
		n.connected.Store(0)
	}
}

func (n *Node) Interval() time.Duration {
	return n.interval
}

func (n *Node) Environment() *EnvironmentService {
	return n.env
}

// Start powers the peripheral on and activates the GATT services. A service
// that fails to activate is logged and the node carries on without it.
func (n *Node) Start() error {
	err := n.periph.PowerOnWithHandlers(n.onConnect, n.onDisconnect)
	if err != nil {
		return err
	}

	n.env = NewEnvironmentService(n.Enqueue, n.log)
	n.battery, err = NewBatteryService()
	if err != nil {
		return err
	}
	n.info, err = NewDeviceInformation(n.manufacturer, n.firmware)
	if err != nil {
		return err
	}
	err = n.periph.AddServiceWithCharacteristicsAndActivate(n.env.Service, n.env.Characteristics()...)
	if err != nil {
		n.log.WithError(err).Warn("environmental service incomplete")
	}
	err = n.periph.AddServiceWithCharacteristicsAndActivate(n.battery.Service, n.battery.Level)
	if err != nil {
		n.log.WithError(err).Warn("battery service incomplete")
	}
	if err := n.periph.ActivateService(n.info.Service); err != nil {
		n.log.WithError(err).Warn("device information service incomplete")
	}
	return nil
}

// Step samples the sensors once and publishes the readings: as beacon frames
// when no central is connected, as notifications otherwise.
func (n *Node) Step(ctx context.Context) error {
	r, err := n.source.Read()
	if err != nil {
		return err
	}
	counter := n.counter
	n.counter++
	n.log.WithFields(logrus.Fields{
		"counter":     counter,
		"co2":         r.CO2,
		"temperature": r.Temperature,
		"ozone":       r.Ozone,
		"battery":     r.Battery,
	}).Info("sampled")

	if n.Connected() {
		return n.notify(r)
	}
	if n.bursts {
		if err := n.pub.PublishCO2(ctx, r.CO2, counter); err != nil {
			return err
		}
		if err := n.pub.PublishTemperature(ctx, r.Temperature, counter); err != nil {
			return err
		}
		if err := n.pub.PublishOzone(ctx, r.Ozone, counter); err != nil {
			return err
		}
		if err := n.pub.PublishBattery(ctx, r.Battery, counter); err != nil {
			return err
		}
	}
	return n.pub.PublishReadings(ctx, counter, r)
}

func (n *Node) notify(r sensor.Readings) error {
	var errs []error
	if n.env != nil {
		errs = append(errs, n.env.Update(r))
	}
	if n.battery != nil {
		errs = append(errs, n.battery.Update(r.Battery))
	}
	return errors.Join(errs...)
}

// handle runs a command and reports whether the node should publish right
// away.
func (n *Node) handle(cmd Command) bool {
	log := n.log.WithField("op", cmd.Op.String())
	switch cmd.Op {
	case OpPublishNow:
		log.Info("command")
		return true
	case OpCalibrate:
		if n.calibrator == nil {
			log.Warn("no sensor to calibrate")
			return false
		}
		if err := n.calibrator.Calibrate(sensor.DefaultCalibrationSamples); err != nil {
			log.WithError(err).Warn("calibration failed")
		}
	case OpSetInterval:
		n.interval = time.Duration(cmd.Arg) * time.Second
		log.WithField("interval", n.interval).Info("command")
	}
	return false
}

// drain handles every queued command without blocking.
func (n *Node) drain() (publish bool) {
	for {
		select {
		case cmd := <-n.commands:
			if n.handle(cmd) {
				publish = true
			}
		default:
			return publish
		}
	}
}

// Run starts the node and publishes every interval until ctx is done.
func (n *Node) Run(ctx context.Context) error {
	if err := n.Start(); err != nil {
		return err
	}
	n.log.WithField("interval", n.interval).Info("node running")
	defer n.periph.StopAdvertising()

	for {
		if err := n.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			n.log.WithError(err).Warn("publication failed")
		}
		if n.drain() {
			continue
		}
		if err := n.wait(ctx); err != nil {
			return err
		}
	}
}

// wait sleeps for the interval, handling commands as they arrive. It returns
// early when a command asks for a publication.
func (n *Node) wait(ctx context.Context) error {
	t := time.NewTimer(n.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		case cmd := <-n.commands:
			if n.handle(cmd) {
				return nil
			}
		}
	}
}
