//go:build linux

package bluezstack

import (
	"errors"
	"sync"

	"github.com/muka/go-bluetooth/api/service"

	"github.com/epsg-gti/envbeacon"
)

var errUnknownHandle = errors.New("bluezstack: unknown attribute handle")

// char is a characteristic exported to BlueZ. Local writes go through the
// same D-Bus method a peer uses, so they are flagged to keep them away from
// the write handler.
type char struct {
	mu     sync.Mutex
	bluez  *service.Char
	params envbeacon.CharacteristicParams
	local  bool
}

// DeclareService creates a new GATT application holding one service. The
// service is registered with BlueZ by CommitService.
func (s *Stack) DeclareService(uuid envbeacon.UUID) (envbeacon.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id == "" {
		return 0, errNotEnabled
	}
	app, err := service.NewApp(service.AppOptions{
		AdapterID: s.id,
	})
	if err != nil {
		return 0, err
	}
	svc, err := app.NewService(uuid.String())
	if err != nil {
		return 0, err
	}
	s.apps = append(s.apps, app)
	s.services = append(s.services, svc)
	return envbeacon.Handle(len(s.services)), nil
}

func (s *Stack) DeclareCharacteristic(h envbeacon.Handle, params envbeacon.CharacteristicParams) (envbeacon.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc := s.service(h)
	if svc == nil {
		return 0, errUnknownHandle
	}
	bc, err := svc.NewChar(params.UUID.String())
	if err != nil {
		return 0, err
	}
	bc.Properties.Flags = flags(params)
	bc.Properties.Value = append([]byte(nil), params.Value...)

	c := &char{bluez: bc, params: params}
	bc.OnWrite(func(_ *service.Char, value []byte) ([]byte, error) {
		c.mu.Lock()
		local := c.local
		c.mu.Unlock()
		if !local && c.params.OnWrite != nil {
			s.mu.Lock()
			conn := s.lastConn
			s.mu.Unlock()
			c.params.OnWrite(conn, value)
		}
		return value, nil
	})
	if err := svc.AddChar(bc); err != nil {
		return 0, err
	}
	s.chars = append(s.chars, c)
	return envbeacon.Handle(len(s.chars)), nil
}

// CommitService registers the application that holds the service.
func (s *Stack) CommitService(h envbeacon.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc := s.service(h)
	if svc == nil {
		return errUnknownHandle
	}
	app := s.apps[h-1]
	if err := app.AddService(svc); err != nil {
		return err
	}
	return app.Run()
}

// WriteCharacteristic updates the value. BlueZ emits a notification to
// subscribed peers whenever the value changes, so writing and notifying are
// the same operation on this stack.
func (s *Stack) WriteCharacteristic(h envbeacon.Handle, value []byte) (int, error) {
	s.mu.Lock()
	c := s.char(h)
	s.mu.Unlock()
	if c == nil {
		return 0, errUnknownHandle
	}
	c.mu.Lock()
	c.local = true
	c.mu.Unlock()
	derr := c.bluez.WriteValue(value, nil)
	c.mu.Lock()
	c.local = false
	c.mu.Unlock()
	if derr != nil {
		return 0, derr
	}
	return len(value), nil
}

func (s *Stack) NotifyCharacteristic(h envbeacon.Handle, value []byte) (int, error) {
	return s.WriteCharacteristic(h, value)
}

func (s *Stack) service(h envbeacon.Handle) *service.Service {
	if h == 0 || int(h) > len(s.services) {
		return nil
	}
	return s.services[h-1]
}

func (s *Stack) char(h envbeacon.Handle) *char {
	if h == 0 || int(h) > len(s.chars) {
		return nil
	}
	return s.chars[h-1]
}

// flags translates properties and permissions to BlueZ characteristic flags.
func flags(params envbeacon.CharacteristicParams) []string {
	var f []string
	p := params.Properties
	if p.Broadcast() {
		f = append(f, "broadcast")
	}
	if p.Read() {
		f = append(f, readFlag(params.ReadPermission))
	}
	if p.WriteWithoutResponse() {
		f = append(f, "write-without-response")
	}
	if p.Write() {
		f = append(f, writeFlag(params.WritePermission))
	}
	if p.Notify() {
		f = append(f, "notify")
	}
	if p.Indicate() {
		f = append(f, "indicate")
	}
	return f
}

func readFlag(mode envbeacon.SecurityMode) string {
	switch mode {
	case envbeacon.SecurityEncryptedNoMITM:
		return "encrypt-read"
	case envbeacon.SecurityEncryptedMITM:
		return "encrypt-authenticated-read"
	case envbeacon.SecurityEncryptedLESC:
		return "secure-read"
	default:
		return "read"
	}
}

func writeFlag(mode envbeacon.SecurityMode) string {
	switch mode {
	case envbeacon.SecurityEncryptedNoMITM:
		return "encrypt-write"
	case envbeacon.SecurityEncryptedMITM:
		return "encrypt-authenticated-write"
	case envbeacon.SecurityEncryptedLESC:
		return "secure-write"
	case envbeacon.SecuritySignedNoMITM, envbeacon.SecuritySignedMITM:
		return "authenticated-signed-writes"
	default:
		return "write"
	}
}
