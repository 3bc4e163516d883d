package sensor

import (
	"errors"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/bme280"
)

var errNotConnected = errors.New("sensor: BME280 not connected")

type temperatureReader interface {
	ReadTemperature() (int32, error)
}

// BME280Thermometer reads the temperature from a Bosch BME280 over I2C.
type BME280Thermometer struct {
	dev temperatureReader
}

// NewBME280Thermometer configures the sensor on bus at its default address.
func NewBME280Thermometer(bus drivers.I2C) (*BME280Thermometer, error) {
	dev := bme280.New(bus)
	if !dev.Connected() {
		return nil, errNotConnected
	}
	dev.Configure()
	return &BME280Thermometer{dev: &dev}, nil
}

// Temperature returns tenths of a degree Celsius, rounded towards zero.
func (t *BME280Thermometer) Temperature() (int16, error) {
	milli, err := t.dev.ReadTemperature()
	if err != nil {
		return 0, err
	}
	return int16(milli / 100), nil
}
