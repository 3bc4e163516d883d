package node

import (
	"encoding/binary"

	"github.com/blang/semver"
	"github.com/sirupsen/logrus"

	"github.com/epsg-gti/envbeacon"
	"github.com/epsg-gti/envbeacon/sensor"
)

// Text identifiers of the environmental service and its characteristics.
const (
	EnvironmentServiceText = "EPSG-GTI-SERV-01"
	CO2CharText            = "EPSG-GTI-CO2-PPM"
	TemperatureCharText    = "EPSG-GTI-TEMP-DC"
	OzoneCharText          = "EPSG-GTI-O3-PPB"
	CommandCharText        = "EPSG-GTI-COMMAND"
)

// EnvironmentService exposes the latest readings to connected centrals and
// accepts commands. Values are little endian, as usual in GATT.
type EnvironmentService struct {
	Service     *envbeacon.Service
	CO2         *envbeacon.Characteristic
	Temperature *envbeacon.Characteristic
	Ozone       *envbeacon.Characteristic
	Command     *envbeacon.Characteristic
}

// NewEnvironmentService builds the service. Valid commands written by a peer
// are passed to enqueue, which must not block.
func NewEnvironmentService(enqueue func(Command) bool, log logrus.FieldLogger) *EnvironmentService {
	readNotify := envbeacon.PropertyRead | envbeacon.PropertyNotify
	s := &EnvironmentService{
		Service:     envbeacon.NewService(EnvironmentServiceText),
		CO2:         envbeacon.NewCharacteristicWith(CO2CharText, readNotify, envbeacon.SecurityOpen, envbeacon.SecurityNoAccess, 2),
		Temperature: envbeacon.NewCharacteristicWith(TemperatureCharText, readNotify, envbeacon.SecurityOpen, envbeacon.SecurityNoAccess, 2),
		Ozone:       envbeacon.NewCharacteristicWith(OzoneCharText, readNotify, envbeacon.SecurityOpen, envbeacon.SecurityNoAccess, 2),
		Command:     envbeacon.NewCharacteristicWith(CommandCharText, envbeacon.PropertyWrite, envbeacon.SecurityNoAccess, envbeacon.SecurityOpen, MaxCommandLen),
	}
	s.Command.SetWriteHandler(func(conn envbeacon.Connection, _ *envbeacon.Characteristic, value []byte) {
		cmd, err := ParseCommand(value)
		if err != nil {
			log.WithField("conn", conn).WithError(err).Warn("bad command")
			return
		}
		if !enqueue(cmd) {
			log.WithField("conn", conn).WithField("op", cmd.Op.String()).Warn("command queue full")
		}
	})
	return s
}

// Characteristics returns the characteristics in declaration order.
func (s *EnvironmentService) Characteristics() []*envbeacon.Characteristic {
	return []*envbeacon.Characteristic{s.CO2, s.Temperature, s.Ozone, s.Command}
}

// Update notifies the new readings.
func (s *EnvironmentService) Update(r sensor.Readings) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], r.CO2)
	if _, err := s.CO2.Notify(b[:]); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b[:], uint16(r.Temperature))
	if _, err := s.Temperature.Notify(b[:]); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b[:], r.OzonePPB())
	_, err := s.Ozone.Notify(b[:])
	return err
}

// BatteryService is the standard Battery Service with its level
// characteristic.
type BatteryService struct {
	Service *envbeacon.Service
	Level   *envbeacon.Characteristic
}

func NewBatteryService() (*BatteryService, error) {
	s := &BatteryService{
		Service: envbeacon.NewServiceUUID(envbeacon.ServiceUUIDBattery),
		Level:   envbeacon.NewCharacteristicUUID(envbeacon.CharacteristicUUIDBatteryLevel),
	}
	err := s.Level.Configure(envbeacon.PropertyRead|envbeacon.PropertyNotify, envbeacon.SecurityOpen, envbeacon.SecurityNoAccess, 1)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *BatteryService) Update(percent uint8) error {
	_, err := s.Level.Notify([]byte{percent})
	return err
}

// DeviceInformation is the standard Device Information Service, limited to
// the manufacturer name and firmware revision.
type DeviceInformation struct {
	Service      *envbeacon.Service
	Manufacturer *envbeacon.Characteristic
	Firmware     *envbeacon.Characteristic
}

func NewDeviceInformation(manufacturer string, firmware semver.Version) (*DeviceInformation, error) {
	d := &DeviceInformation{
		Service:      envbeacon.NewServiceUUID(envbeacon.ServiceUUIDDeviceInformation),
		Manufacturer: envbeacon.NewCharacteristicUUID(envbeacon.CharacteristicUUIDManufacturerNameString),
		Firmware:     envbeacon.NewCharacteristicUUID(envbeacon.CharacteristicUUIDFirmwareRevisionString),
	}
	if err := d.Manufacturer.SetInitialValue([]byte(manufacturer)); err != nil {
		return nil, err
	}
	if err := d.Firmware.SetInitialValue([]byte(firmware.String())); err != nil {
		return nil, err
	}
	d.Service.AddCharacteristic(d.Manufacturer)
	d.Service.AddCharacteristic(d.Firmware)
	return d, nil
}
