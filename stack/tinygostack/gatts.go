package tinygostack

import (
	"tinygo.org/x/bluetooth"

	"github.com/epsg-gti/envbeacon"
)

// DeclareService starts collecting a service. The adapter adds services in
// one call, so nothing reaches it before CommitService.
func (s *Stack) DeclareService(uuid envbeacon.UUID) (envbeacon.Handle, error) {
	u, err := convertUUID(uuid)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return 0, errNotEnabled
	}
	s.services = append(s.services, &pendingService{
		service: bluetooth.Service{UUID: u},
	})
	return envbeacon.Handle(len(s.services)), nil
}

func (s *Stack) DeclareCharacteristic(h envbeacon.Handle, params envbeacon.CharacteristicParams) (envbeacon.Handle, error) {
	u, err := convertUUID(params.UUID)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	svc := s.service(h)
	if svc == nil {
		return 0, errUnknownHandle
	}
	if svc.committed {
		return 0, errCommitted
	}
	char := new(bluetooth.Characteristic)
	config := bluetooth.CharacteristicConfig{
		Handle: char,
		UUID:   u,
		Value:  append([]byte(nil), params.Value...),
		Flags:  permissions(params.Properties),
	}
	if onWrite := params.OnWrite; onWrite != nil {
		config.WriteEvent = func(client bluetooth.Connection, offset int, value []byte) {
			if offset != 0 {
				// Long writes are not supported, values fit one packet.
				return
			}
			onWrite(envbeacon.Connection(client), value)
		}
	}
	svc.service.Characteristics = append(svc.service.Characteristics, config)
	s.chars = append(s.chars, char)
	return envbeacon.Handle(len(s.chars)), nil
}

func (s *Stack) CommitService(h envbeacon.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc := s.service(h)
	if svc == nil {
		return errUnknownHandle
	}
	if svc.committed {
		return errCommitted
	}
	if err := s.adapter.AddService(&svc.service); err != nil {
		return err
	}
	svc.committed = true
	return nil
}

// WriteCharacteristic updates the value. The adapter notifies subscribed
// centrals on every write.
func (s *Stack) WriteCharacteristic(h envbeacon.Handle, value []byte) (int, error) {
	s.mu.Lock()
	char := s.char(h)
	s.mu.Unlock()
	if char == nil {
		return 0, errUnknownHandle
	}
	return char.Write(value)
}

func (s *Stack) NotifyCharacteristic(h envbeacon.Handle, value []byte) (int, error) {
	return s.WriteCharacteristic(h, value)
}

func (s *Stack) service(h envbeacon.Handle) *pendingService {
	if h == 0 || int(h) > len(s.services) {
		return nil
	}
	return s.services[h-1]
}

func (s *Stack) char(h envbeacon.Handle) *bluetooth.Characteristic {
	if h == 0 || int(h) > len(s.chars) {
		return nil
	}
	return s.chars[h-1]
}

func permissions(p envbeacon.CharacteristicProperties) bluetooth.CharacteristicPermissions {
	var perm bluetooth.CharacteristicPermissions
	if p.Broadcast() {
		perm |= bluetooth.CharacteristicBroadcastPermission
	}
	if p.Read() {
		perm |= bluetooth.CharacteristicReadPermission
	}
	if p.WriteWithoutResponse() {
		perm |= bluetooth.CharacteristicWriteWithoutResponsePermission
	}
	if p.Write() {
		perm |= bluetooth.CharacteristicWritePermission
	}
	if p.Notify() {
		perm |= bluetooth.CharacteristicNotifyPermission
	}
	if p.Indicate() {
		perm |= bluetooth.CharacteristicIndicatePermission
	}
	return perm
}
