package sensor

import (
	"errors"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// Channel selects one analog input of the board.
type Channel uint8

const (
	ChannelOzoneGas Channel = iota // sensor working electrode (Vgas)
	ChannelOzoneRef                // sensor reference (Vref)
	ChannelBattery                 // battery through a 2:1 divider
)

func (c Channel) String() string {
	switch c {
	case ChannelOzoneGas:
		return "vgas"
	case ChannelOzoneRef:
		return "vref"
	case ChannelBattery:
		return "battery"
	default:
		return "unknown"
	}
}

// Sampler returns raw ADC readings.
type Sampler interface {
	Sample(ch Channel) (uint16, error)
}

// ADC describes how raw readings map to volts.
type ADC struct {
	VDD  float64 // reference voltage
	Bits uint    // resolution
}

// Volts converts a raw reading.
func (a ADC) Volts(raw float64) float64 {
	fullScale := float64(uint32(1)<<a.Bits - 1)
	return raw * a.VDD / fullScale
}

// Ozone sensor front end: transimpedance gain in ohms and electrochemical
// sensitivity in nA/ppm.
const (
	TIAGain     = 499.0
	Sensitivity = -44.26
)

// Battery voltages for an empty and a full LiPo cell.
const (
	BatteryMinVolts = 3.30
	BatteryMaxVolts = 4.20
)

var (
	// OzoneADC is the ADC setup of the ozone inputs.
	OzoneADC = ADC{VDD: 1.20, Bits: 12}

	// BatteryADC is the ADC setup of the battery input.
	BatteryADC = ADC{VDD: 3.30, Bits: 10}
)

const (
	DefaultCalibrationSamples = 50
	DefaultSamples            = 10
)

var errNoSamples = errors.New("sensor: sample count must be positive")

// OzonePPM converts the working electrode voltage to ppm, given the reference
// voltage measured at calibration time. The result is corrected with a linear
// slope and offset and never negative.
func OzonePPM(vgas, vref, slope, offset float64) float64 {
	denominator := TIAGain * Sensitivity * 1e-6
	ppm := math.Abs((vgas - vref) / denominator)
	ppm = ppm*slope + offset
	if ppm < 0 {
		return 0
	}
	return ppm
}

// BatteryPercent maps the voltage measured behind the 2:1 divider to a charge
// percentage.
func BatteryPercent(measured float64) uint8 {
	volts := measured * 2
	percent := (volts - BatteryMinVolts) / (BatteryMaxVolts - BatteryMinVolts) * 100
	if percent > 100 {
		percent = 100
	}
	if percent < 0 {
		percent = 0
	}
	return uint8(percent)
}

// Meter turns raw ADC samples into ozone and battery readings. Call Calibrate
// once at startup, with clean air, before reading ozone.
type Meter struct {
	sampler  Sampler
	log      logrus.FieldLogger
	sleep    func(time.Duration)
	slope    float64
	offset   float64
	vrefBase float64
}

type MeterOption func(*Meter)

// WithCorrection sets the linear correction applied to ozone readings. The
// default is slope 1 and offset 0.
func WithCorrection(slope, offset float64) MeterOption {
	return func(m *Meter) {
		m.slope = slope
		m.offset = offset
	}
}

// WithSleep replaces the pause between samples.
func WithSleep(sleep func(time.Duration)) MeterOption {
	return func(m *Meter) {
		m.sleep = sleep
	}
}

func WithMeterLogger(log logrus.FieldLogger) MeterOption {
	return func(m *Meter) {
		m.log = log
	}
}

func NewMeter(sampler Sampler, opts ...MeterOption) *Meter {
	m := &Meter{
		sampler: sampler,
		log:     logrus.StandardLogger(),
		sleep:   time.Sleep,
		slope:   1,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// average returns the mean raw reading of n samples taken pause apart.
func (m *Meter) average(ch Channel, n int, pause time.Duration) (float64, error) {
	if n <= 0 {
		return 0, errNoSamples
	}
	var acc uint64
	for i := 0; i < n; i++ {
		raw, err := m.sampler.Sample(ch)
		if err != nil {
			return 0, err
		}
		acc += uint64(raw)
		m.sleep(pause)
	}
	return float64(acc) / float64(n), nil
}

func (m *Meter) volts(ch Channel, n int) (float64, error) {
	raw, err := m.average(ch, n, 2*time.Millisecond)
	if err != nil {
		return 0, err
	}
	return OzoneADC.Volts(raw), nil
}

// Calibrate stores the reference voltage, averaged over n samples, as the
// zero point of the ozone sensor.
func (m *Meter) Calibrate(n int) error {
	v, err := m.volts(ChannelOzoneRef, n)
	if err != nil {
		return err
	}
	m.vrefBase = v
	m.log.WithField("vref", v).Info("ozone sensor calibrated")
	return nil
}

// VrefBase returns the reference voltage stored by Calibrate.
func (m *Meter) VrefBase() float64 {
	return m.vrefBase
}

// Vgas returns the working electrode voltage averaged over n samples.
func (m *Meter) Vgas(n int) (float64, error) {
	return m.volts(ChannelOzoneGas, n)
}

func (m *Meter) OzonePPM() (float64, error) {
	vgas, err := m.Vgas(DefaultSamples)
	if err != nil {
		return 0, err
	}
	ppm := OzonePPM(vgas, m.vrefBase, m.slope, m.offset)
	m.log.WithField("vgas", vgas).WithField("ppm", ppm).Debug("ozone")
	return ppm, nil
}

func (m *Meter) BatteryPercent() (uint8, error) {
	raw, err := m.average(ChannelBattery, DefaultSamples, time.Millisecond)
	if err != nil {
		return 0, err
	}
	return BatteryPercent(BatteryADC.Volts(raw)), nil
}
