package tinygostack

import (
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/epsg-gti/envbeacon"
)

// SetDeviceName sets the name sent in the advertisement. The adapter has no
// separate GAP device name.
func (s *Stack) SetDeviceName(name string) error {
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
	return nil
}

// SetTxPower is accepted but has no effect, the adapter does not expose the
// radio power.
func (s *Stack) SetTxPower(dbm int8) error {
	s.log.WithField("dbm", dbm).Debug("tx power is fixed on this stack")
	return nil
}

func (s *Stack) ClearAdvertisingData() {
	s.mu.Lock()
	s.advData.Reset()
	s.mu.Unlock()
}

func (s *Stack) ClearScanResponseData() {
	s.mu.Lock()
	s.scanData.Reset()
	s.mu.Unlock()
}

// AddAdvertisingFlags only accepts the LE-only general discoverable flags,
// which the adapter puts in front of every advertisement.
func (s *Stack) AddAdvertisingFlags(flags byte) error {
	if flags != envbeacon.FlagsLEOnlyGeneralDiscoverable {
		return errFlags
	}
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

// SetAdvertisingInterval uses min for both bounds.
func (s *Stack) SetAdvertisingInterval(min, max envbeacon.AdvertisingInterval) error {
	s.mu.Lock()
	s.interval = min
	s.mu.Unlock()
	return nil
}

// SetFastTimeout has no effect, the adapter advertises at a single interval.
func (s *Stack) SetFastTimeout(seconds uint16) {
	s.log.WithField("seconds", seconds).Debug("fast advertising is not available on this stack")
}

func (s *Stack) SetRestartOnDisconnect(restart bool) {
	s.mu.Lock()
	s.restart = restart
	s.mu.Unlock()
}

func (s *Stack) StartAdvertising(timeout uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return errNotEnabled
	}
	opts, err := s.options()
	if err != nil {
		return err
	}
	if s.advertising {
		if err := s.adv.Stop(); err != nil {
			return err
		}
		s.advertising = false
	}
	if err := s.adv.Configure(opts); err != nil {
		return err
	}
	if err := s.adv.Start(); err != nil {
		return err
	}
	s.advertising = true
	if s.stopTimer != nil {
		s.stopTimer.Stop()
		s.stopTimer = nil
	}
	if timeout != 0 {
		s.stopTimer = time.AfterFunc(time.Duration(timeout)*time.Second, func() {
			if err := s.StopAdvertising(); err != nil {
				s.log.WithError(err).Warn("could not stop advertising")
			}
		})
	}
	return nil
}

// options must be called with s.mu held.
func (s *Stack) options() (bluetooth.AdvertisementOptions, error) {
	opts := bluetooth.AdvertisementOptions{
		AdvertisementType: bluetooth.AdvertisingTypeInd,
		Interval:          bluetooth.NewDuration(s.interval.Duration()),
	}
	if name, ok := s.scanData.LocalName(); ok {
		opts.LocalName = name
	} else if name, ok := s.advData.LocalName(); ok {
		opts.LocalName = name
	}
	if companyID, data, ok := s.advData.ManufacturerData(); ok {
		opts.ManufacturerData = []bluetooth.ManufacturerDataElement{
			{CompanyID: companyID, Data: append([]byte(nil), data...)},
		}
	}
	for _, uuid := range s.advData.ServiceUUIDs() {
		u, err := convertUUID(uuid)
		if err != nil {
			return opts, err
		}
		opts.ServiceUUIDs = append(opts.ServiceUUIDs, u)
	}

	// There is no scan response: everything shares one packet, and the
	// frame wins over the name.
	if packetLen(opts) > envbeacon.MaxAdvertisingDataLen && opts.LocalName != "" {
		s.log.WithField("name", opts.LocalName).Debug("name left out of the advertisement")
		opts.LocalName = ""
	}
	if packetLen(opts) > envbeacon.MaxAdvertisingDataLen {
		return opts, envbeacon.ErrAdvertisingDataOverflow
	}
	return opts, nil
}

// packetLen returns the size of the packet the adapter builds from opts. It
// always starts with a flags structure.
func packetLen(opts bluetooth.AdvertisementOptions) int {
	n := 3
	if opts.LocalName != "" {
		n += 2 + len(opts.LocalName)
	}
	for _, uuid := range opts.ServiceUUIDs {
		if uuid.Is16Bit() {
			n += 2 + 2
		} else {
			n += 2 + 16
		}
	}
	for _, m := range opts.ManufacturerData {
		n += 2 + 2 + len(m.Data)
	}
	return n
}

func (s *Stack) StopAdvertising() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopTimer != nil {
		s.stopTimer.Stop()
		s.stopTimer = nil
	}
	s.resume = false
	if !s.advertising {
		return nil
	}
	s.advertising = false
	return s.adv.Stop()
}

func (s *Stack) IsAdvertising() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advertising
}

func convertUUID(uuid envbeacon.UUID) (bluetooth.UUID, error) {
	if uuid.Is16Bit() {
		return bluetooth.New16BitUUID(uuid.Get16Bit()), nil
	}
	return bluetooth.ParseUUID(uuid.String())
}
