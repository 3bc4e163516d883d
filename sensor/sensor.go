// Package sensor reads the environmental measurements the node publishes:
// CO2, temperature, ozone and battery level. Each quantity comes from its own
// source so that real sensors and simulated tables can be mixed.
package sensor

import "fmt"

// Readings is one sample of every measurement.
type Readings struct {
	CO2         uint16  // ppm
	Temperature int16   // tenths of a degree Celsius
	Ozone       float64 // ppm
	Battery     uint8   // percent
}

// OzonePPB returns the ozone concentration in parts per billion, saturated to
// the range of an uint16.
func (r Readings) OzonePPB() uint16 {
	ppb := r.Ozone*1000 + 0.5
	if ppb < 0 {
		return 0
	}
	if ppb > 0xFFFF {
		return 0xFFFF
	}
	return uint16(ppb)
}

type CO2Sensor interface {
	CO2() (uint16, error)
}

type Thermometer interface {
	Temperature() (int16, error)
}

type OzoneSensor interface {
	OzonePPM() (float64, error)
}

type BatteryGauge interface {
	BatteryPercent() (uint8, error)
}

// Source produces complete readings.
type Source interface {
	Read() (Readings, error)
}

// Station combines one source per quantity into a Source.
type Station struct {
	CO2         CO2Sensor
	Temperature Thermometer
	Ozone       OzoneSensor
	Battery     BatteryGauge
}

// Read samples every sensor in turn and stops at the first failure.
func (s Station) Read() (r Readings, err error) {
	if r.CO2, err = s.CO2.CO2(); err != nil {
		return r, fmt.Errorf("sensor: CO2: %w", err)
	}
	if r.Temperature, err = s.Temperature.Temperature(); err != nil {
		return r, fmt.Errorf("sensor: temperature: %w", err)
	}
	if r.Ozone, err = s.Ozone.OzonePPM(); err != nil {
		return r, fmt.Errorf("sensor: ozone: %w", err)
	}
	if r.Battery, err = s.Battery.BatteryPercent(); err != nil {
		return r, fmt.Errorf("sensor: battery: %w", err)
	}
	return r, nil
}
