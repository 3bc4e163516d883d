// Package node runs an environmental sensor node: it samples the sensors,
// publishes the readings in beacon frames and serves them over GATT to
// connected centrals.
package node

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/epsg-gti/envbeacon"
	"github.com/epsg-gti/envbeacon/sensor"
)

// MeasurementID is sent in the high byte of the iBeacon major field.
type MeasurementID uint8

const (
	MeasurementCO2         MeasurementID = 11
	MeasurementTemperature MeasurementID = 12
	MeasurementNoise       MeasurementID = 13
	MeasurementOzone       MeasurementID = 14
	MeasurementBattery     MeasurementID = 15
)

func (id MeasurementID) String() string {
	switch id {
	case MeasurementCO2:
		return "co2"
	case MeasurementTemperature:
		return "temperature"
	case MeasurementNoise:
		return "noise"
	case MeasurementOzone:
		return "ozone"
	case MeasurementBattery:
		return "battery"
	default:
		return "unknown"
	}
}

const (
	// DefaultBeaconText names the sensor network in every iBeacon frame.
	DefaultBeaconText = "EPSG-GTI-PROY-3A"

	// DefaultMeasuredPower is the RSSI at one metre sent in iBeacon frames.
	DefaultMeasuredPower int8 = -53

	DefaultHold = time.Second
)

// Major packs a measurement ID and a counter into an iBeacon major field.
func Major(id MeasurementID, counter uint8) uint16 {
	return uint16(id)<<8 + uint16(counter)
}

// ReadingsVersion is the first byte of a multi-field readings frame.
const ReadingsVersion = 1

// ReadingsLen is the length of an encoded readings frame.
const ReadingsLen = 9

var errReadingsFrame = errors.New("node: not a readings frame")

// EncodeReadings packs all readings into one multi-field payload:
// version, counter, CO2 (ppm), temperature (0.1 °C), ozone (ppb) and battery
// (%), multi-byte values big endian.
func EncodeReadings(counter uint8, r sensor.Readings) []byte {
	b := make([]byte, ReadingsLen)
	b[0] = ReadingsVersion
	b[1] = counter
	binary.BigEndian.PutUint16(b[2:4], r.CO2)
	binary.BigEndian.PutUint16(b[4:6], uint16(r.Temperature))
	binary.BigEndian.PutUint16(b[6:8], r.OzonePPB())
	b[8] = r.Battery
	return b
}

// DecodeReadings parses a payload built by EncodeReadings.
func DecodeReadings(b []byte) (counter uint8, r sensor.Readings, err error) {
	if len(b) != ReadingsLen || b[0] != ReadingsVersion {
		return 0, r, errReadingsFrame
	}
	r.CO2 = binary.BigEndian.Uint16(b[2:4])
	r.Temperature = int16(binary.BigEndian.Uint16(b[4:6]))
	r.Ozone = float64(binary.BigEndian.Uint16(b[6:8])) / 1000
	r.Battery = b[8]
	return b[1], r, nil
}

// Publisher advertises measurements in short bursts: each publication starts
// advertising, holds the frame for a while and stops again.
type Publisher struct {
	periph *envbeacon.Peripheral
	uuid   envbeacon.BeaconUUID
	power  int8
	hold   time.Duration
	log    logrus.FieldLogger
}

type PublisherOption func(*Publisher)

func WithBeaconUUID(uuid envbeacon.BeaconUUID) PublisherOption {
	return func(p *Publisher) { p.uuid = uuid }
}

func WithMeasuredPower(dbm int8) PublisherOption {
	return func(p *Publisher) { p.power = dbm }
}

// WithHold sets how long each frame stays on air. Zero leaves the frame on
// air until the next publication.
func WithHold(d time.Duration) PublisherOption {
	return func(p *Publisher) { p.hold = d }
}

func WithPublisherLogger(log logrus.FieldLogger) PublisherOption {
	return func(p *Publisher) { p.log = log }
}

func NewPublisher(periph *envbeacon.Peripheral, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		periph: periph,
		uuid:   envbeacon.BeaconUUIDFromText(DefaultBeaconText),
		power:  DefaultMeasuredPower,
		hold:   DefaultHold,
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish advertises one measurement as an iBeacon frame with major set to
// Major(id, counter) and minor set to value.
func (p *Publisher) Publish(ctx context.Context, id MeasurementID, value uint16, counter uint8) error {
	major := Major(id, counter)
	if err := p.periph.StartIBeacon(p.uuid, major, value, p.power); err != nil {
		return err
	}
	p.log.WithField("measurement", id.String()).WithField("value", value).WithField("counter", counter).Debug("published")
	return p.holdAndStop(ctx)
}

func (p *Publisher) PublishCO2(ctx context.Context, ppm uint16, counter uint8) error {
	return p.Publish(ctx, MeasurementCO2, ppm, counter)
}

// PublishTemperature publishes tenths of a degree Celsius. Negative values
// are sent in two's complement.
func (p *Publisher) PublishTemperature(ctx context.Context, tenths int16, counter uint8) error {
	return p.Publish(ctx, MeasurementTemperature, uint16(tenths), counter)
}

// PublishOzone publishes ppm × 1000.
func (p *Publisher) PublishOzone(ctx context.Context, ppm float64, counter uint8) error {
	return p.Publish(ctx, MeasurementOzone, sensor.Readings{Ozone: ppm}.OzonePPB(), counter)
}

func (p *Publisher) PublishBattery(ctx context.Context, percent uint8, counter uint8) error {
	return p.Publish(ctx, MeasurementBattery, uint16(percent), counter)
}

// PublishReadings advertises all readings in one multi-field frame.
func (p *Publisher) PublishReadings(ctx context.Context, counter uint8, r sensor.Readings) error {
	if err := p.periph.StartMultiField(EncodeReadings(counter, r)); err != nil {
		return err
	}
	p.log.WithField("counter", counter).Debug("published readings")
	return p.holdAndStop(ctx)
}

// holdAndStop keeps the frame on air for the hold time. Advertising is
// stopped even when ctx is cancelled first.
func (p *Publisher) holdAndStop(ctx context.Context) error {
	if p.hold <= 0 {
		return nil
	}
	t := time.NewTimer(p.hold)
	defer t.Stop()
	var err error
	select {
	case <-t.C:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if serr := p.periph.StopAdvertising(); serr != nil && err == nil {
		err = serr
	}
	return err
}
