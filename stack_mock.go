package envbeacon

import (
	"fmt"
	"sync"
)

// MockStack is an in-memory radio stack. It records every call in order and
// lets tests inject stack failures and simulate peers. It is also used by the
// command line tool to dry-run a node without hardware.
type MockStack struct {
	mu sync.Mutex

	// Calls lists the calls made so far, such as "StopAdvertising" or
	// "StartAdvertising(0)".
	Calls []string

	// FailService and FailCharacteristic make the matching declaration fail
	// with the given code.
	FailService        map[UUID]StackError
	FailCharacteristic map[UUID]StackError

	// FailStart makes StartAdvertising fail.
	FailStart error

	// FailCommit makes CommitService fail.
	FailCommit error

	enabled      bool
	name         string
	txPower      int8
	advData      AdvertisingData
	scanData     AdvertisingData
	interval     [2]AdvertisingInterval
	fastTimeout  uint16
	restart      bool
	advertising  bool
	resumeOnDrop bool

	onConnect    func(Connection)
	onDisconnect func(Connection, DisconnectReason)
	connections  []ConnectionInfo

	services        []*mockService
	characteristics []*mockCharacteristic
}

type mockService struct {
	uuid            UUID
	characteristics []Handle
	committed       bool
}

type mockCharacteristic struct {
	service  Handle
	params   CharacteristicParams
	value    []byte
	notified [][]byte
}

// NewMockStack returns an empty mock stack.
func NewMockStack() *MockStack {
	return &MockStack{}
}

func (s *MockStack) record(format string, args ...interface{}) {
	s.Calls = append(s.Calls, fmt.Sprintf(format, args...))
}

// CallLog returns a copy of the recorded calls.
func (s *MockStack) CallLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Calls...)
}

// ResetCalls clears the recorded calls.
func (s *MockStack) ResetCalls() {
	s.mu.Lock()
	s.Calls = nil
	s.mu.Unlock()
}

func (s *MockStack) Enable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Enable")
	s.enabled = true
	return nil
}

func (s *MockStack) SetDeviceName(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("SetDeviceName(%s)", name)
	s.name = name
	return nil
}

func (s *MockStack) SetTxPower(dbm int8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("SetTxPower(%d)", dbm)
	s.txPower = dbm
	return nil
}

func (s *MockStack) ClearAdvertisingData() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("ClearAdvertisingData")
	s.advData.Reset()
}

func (s *MockStack) ClearScanResponseData() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("ClearScanResponseData")
	s.scanData.Reset()
}

func (s *MockStack) AddAdvertisingFlags(flags byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("AddAdvertisingFlags(0x%02x)", flags)
	return s.advData.AddFlags(flags)
}

func (s *MockStack) AddAdvertisingData(typ ADType, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("AddAdvertisingData(0x%02x, %d)", uint8(typ), len(data))
	return s.advData.AddElement(typ, data)
}

func (s *MockStack) AddAdvertisedService(uuid UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("AddAdvertisedService(%s)", uuid)
	return s.advData.AddServiceUUID(uuid)
}

func (s *MockStack) AddScanResponseName() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("AddScanResponseName")
	return s.scanData.AddLocalName(s.name)
}

func (s *MockStack) SetAdvertisingInterval(min, max AdvertisingInterval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("SetAdvertisingInterval(%d, %d)", min, max)
	s.interval = [2]AdvertisingInterval{min, max}
	return nil
}

func (s *MockStack) SetFastTimeout(seconds uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("SetFastTimeout(%d)", seconds)
	s.fastTimeout = seconds
}

func (s *MockStack) SetRestartOnDisconnect(restart bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("SetRestartOnDisconnect(%t)", restart)
	s.restart = restart
}

func (s *MockStack) StartAdvertising(timeout uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("StartAdvertising(%d)", timeout)
	if !s.enabled {
		return StackError(2)
	}
	if s.FailStart != nil {
		return s.FailStart
	}
	s.advertising = true
	return nil
}

func (s *MockStack) StopAdvertising() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("StopAdvertising")
	s.advertising = false
	s.resumeOnDrop = false
	return nil
}

func (s *MockStack) IsAdvertising() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advertising
}

func (s *MockStack) SetConnectHandler(h func(Connection)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnect = h
}

func (s *MockStack) SetDisconnectHandler(h func(Connection, DisconnectReason)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDisconnect = h
}

func (s *MockStack) Connection(conn Connection) (ConnectionInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.connections {
		if c.Handle == conn {
			return c, true
		}
	}
	return ConnectionInfo{}, false
}

// AdvertisingData returns a copy of the staged advertising packet.
func (s *MockStack) AdvertisingData() AdvertisingData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advData
}

// ScanResponseData returns a copy of the staged scan response packet.
func (s *MockStack) ScanResponseData() AdvertisingData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanData
}

// TxPower returns the last transmit power set.
func (s *MockStack) TxPower() int8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txPower
}

// Connect simulates a central connecting. Connectable advertising stops when
// a connection is established, as on the SoftDevice.
func (s *MockStack) Connect(conn Connection, peer MAC) {
	s.mu.Lock()
	s.connections = append(s.connections, ConnectionInfo{Handle: conn, Peer: peer})
	s.resumeOnDrop = s.advertising && s.restart
	s.advertising = false
	h := s.onConnect
	s.mu.Unlock()
	if h != nil {
		h(conn)
	}
}

// Disconnect simulates the link dropping. Advertising resumes if it was
// running at connection time and restart-on-disconnect is set.
func (s *MockStack) Disconnect(conn Connection, reason DisconnectReason) {
	s.mu.Lock()
	for i := range s.connections {
		if s.connections[i].Handle == conn {
			s.connections[i] = s.connections[len(s.connections)-1]
			s.connections = s.connections[:len(s.connections)-1]
			break
		}
	}
	if s.resumeOnDrop {
		s.advertising = true
		s.resumeOnDrop = false
	}
	h := s.onDisconnect
	s.mu.Unlock()
	if h != nil {
		h(conn, reason)
	}
}

func (s *MockStack) DeclareService(uuid UUID) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("DeclareService(%s)", uuid)
	if code, ok := s.FailService[uuid]; ok {
		return 0, makeError(uint32(code))
	}
	s.services = append(s.services, &mockService{uuid: uuid})
	return Handle(len(s.services)), nil
}

func (s *MockStack) DeclareCharacteristic(service Handle, params CharacteristicParams) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("DeclareCharacteristic(%s)", params.UUID)
	svc := s.service(service)
	if svc == nil {
		return 0, StackErrorNotFound
	}
	if code, ok := s.FailCharacteristic[params.UUID]; ok {
		return 0, makeError(uint32(code))
	}
	s.characteristics = append(s.characteristics, &mockCharacteristic{
		service: service,
		params:  params,
		value:   params.Value,
	})
	h := Handle(len(s.characteristics))
	svc.characteristics = append(svc.characteristics, h)
	return h, nil
}

func (s *MockStack) CommitService(service Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("CommitService(%d)", service)
	svc := s.service(service)
	if svc == nil {
		return StackErrorNotFound
	}
	if s.FailCommit != nil {
		return s.FailCommit
	}
	svc.committed = true
	return nil
}

func (s *MockStack) service(h Handle) *mockService {
	if h == 0 || int(h) > len(s.services) {
		return nil
	}
	return s.services[h-1]
}

func (s *MockStack) characteristic(h Handle) *mockCharacteristic {
	if h == 0 || int(h) > len(s.characteristics) {
		return nil
	}
	return s.characteristics[h-1]
}

func (s *MockStack) WriteCharacteristic(char Handle, value []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.characteristic(char)
	if c == nil {
		return 0, StackErrorNotFound
	}
	c.value = append([]byte(nil), value...)
	return len(value), nil
}

func (s *MockStack) NotifyCharacteristic(char Handle, value []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.characteristic(char)
	if c == nil {
		return 0, StackErrorNotFound
	}
	c.value = append([]byte(nil), value...)
	c.notified = append(c.notified, c.value)
	return len(value), nil
}

// RemoteWrite simulates a peer writing a characteristic.
func (s *MockStack) RemoteWrite(conn Connection, char Handle, value []byte) error {
	s.mu.Lock()
	c := s.characteristic(char)
	if c == nil {
		s.mu.Unlock()
		return StackErrorNotFound
	}
	if !c.params.Properties.Write() && !c.params.Properties.WriteWithoutResponse() {
		s.mu.Unlock()
		return StackErrorForbidden
	}
	c.value = append([]byte(nil), value...)
	h := c.params.OnWrite
	s.mu.Unlock()
	if h != nil {
		h(conn, value)
	}
	return nil
}

// CharacteristicValue returns the value the stack holds for a characteristic.
func (s *MockStack) CharacteristicValue(char Handle) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.characteristic(char); c != nil {
		return append([]byte(nil), c.value...)
	}
	return nil
}

// Notifications returns the values notified on a characteristic.
func (s *MockStack) Notifications(char Handle) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.characteristic(char); c != nil {
		return append([][]byte(nil), c.notified...)
	}
	return nil
}

// Committed reports whether the service was committed and lists its
// characteristic handles.
func (s *MockStack) Committed(service Handle) (bool, []Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc := s.service(service)
	if svc == nil {
		return false, nil
	}
	return svc.committed, append([]Handle(nil), svc.characteristics...)
}
