//go:build linux

package bluezstack

import (
	"github.com/muka/go-bluetooth/api"
	"github.com/muka/go-bluetooth/bluez/profile/advertising"

	"github.com/epsg-gti/envbeacon"
)

// BlueZ uses the advertisement timeout as a lifetime in seconds. This is the
// largest value it accepts, used for "advertise until stopped".
const foreverTimeout = 1<<16 - 1

func (s *Stack) SetDeviceName(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.adapter == nil {
		return errNotEnabled
	}
	s.name = name
	return s.adapter.SetAlias(name)
}

// SetTxPower records the power level to include in the advertisement. BlueZ
// picks the actual transmit power itself.
func (s *Stack) SetTxPower(dbm int8) error {
	s.mu.Lock()
	s.txPower = dbm
	s.hasTxPower = true
	s.mu.Unlock()
	return nil
}

// ClearAdvertisingData also drops the tx power level from the advertisement.
func (s *Stack) ClearAdvertisingData() {
	s.mu.Lock()
	s.advData.Reset()
	s.hasTxPower = false
	s.mu.Unlock()
}

func (s *Stack) ClearScanResponseData() {
	s.mu.Lock()
	s.scanData.Reset()
	s.mu.Unlock()
}

func (s *Stack) AddAdvertisingFlags(flags byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advData.AddFlags(flags)
}

func (s *Stack) AddAdvertisingData(typ envbeacon.ADType, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advData.AddElement(typ, data)
}

func (s *Stack) AddAdvertisedService(uuid envbeacon.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advData.AddServiceUUID(uuid)
}

func (s *Stack) AddScanResponseName() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanData.AddLocalName(s.name)
}

// SetAdvertisingInterval is recorded but not applied: the BlueZ version this
// package targets has no per-advertisement interval property.
func (s *Stack) SetAdvertisingInterval(min, max envbeacon.AdvertisingInterval) error {
	s.mu.Lock()
	s.interval = min
	s.mu.Unlock()
	s.log.WithField("min", min.Duration()).WithField("max", max.Duration()).Debug("advertising interval is chosen by bluez")
	return nil
}

// SetFastTimeout has no effect, BlueZ manages the advertising intervals.
func (s *Stack) SetFastTimeout(seconds uint16) {
	s.log.WithField("seconds", seconds).Debug("fast advertising is chosen by bluez")
}

func (s *Stack) SetRestartOnDisconnect(restart bool) {
	s.mu.Lock()
	s.restart = restart
	s.mu.Unlock()
}

// StartAdvertising registers an LE advertisement built from the staged
// advertising and scan response data.
func (s *Stack) StartAdvertising(timeout uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.adapter == nil {
		return errNotEnabled
	}
	if s.stopAdv != nil {
		s.stopAdv()
		s.stopAdv = nil
	}

	props := s.properties(timeout)
	cancel, err := api.ExposeAdvertisement(s.id, props, uint32(props.Timeout))
	if err != nil {
		return err
	}
	s.stopAdv = cancel
	log := s.log.WithField("name", props.LocalName)
	if s.hasTxPower {
		log = log.WithField("tx_power", s.txPower)
	}
	log.Debug("advertisement registered")
	return nil
}

// properties must be called with s.mu held.
func (s *Stack) properties(timeout uint16) *advertising.LEAdvertisement1Properties {
	props := &advertising.LEAdvertisement1Properties{
		Type:    advertising.AdvertisementTypePeripheral,
		Timeout: timeout,
	}
	if timeout == 0 {
		props.Timeout = foreverTimeout
	}
	if name, ok := s.scanData.LocalName(); ok {
		props.LocalName = name
	} else if name, ok := s.advData.LocalName(); ok {
		props.LocalName = name
	}
	if companyID, data, ok := s.advData.ManufacturerData(); ok {
		props.ManufacturerData = map[uint16]interface{}{
			companyID: append([]byte(nil), data...),
		}
	}
	for _, uuid := range s.advData.ServiceUUIDs() {
		props.ServiceUUIDs = append(props.ServiceUUIDs, uuid.String())
	}
	if s.hasTxPower {
		props.Includes = append(props.Includes, "tx-power")
	}
	return props
}

func (s *Stack) StopAdvertising() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopAdv == nil {
		return nil
	}
	s.stopAdv()
	s.stopAdv = nil
	return nil
}

func (s *Stack) IsAdvertising() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopAdv != nil
}
