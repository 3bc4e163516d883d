package envbeacon

import (
	"sync"
)

// CharacteristicProperties is the properties bitmask of a characteristic, with
// the bit values of the Bluetooth core specification.
type CharacteristicProperties uint8

// Characteristic properties.
const (
	PropertyBroadcast CharacteristicProperties = 1 << iota
	PropertyRead
	PropertyWriteWithoutResponse
	PropertyWrite
	PropertyNotify
	PropertyIndicate
)

// Broadcast returns whether broadcasting of the value is permitted.
func (p CharacteristicProperties) Broadcast() bool {
	return p&PropertyBroadcast != 0
}

// Read returns whether reading of the value is permitted.
func (p CharacteristicProperties) Read() bool {
	return p&PropertyRead != 0
}

// WriteWithoutResponse returns whether writing of the value without response
// is permitted.
func (p CharacteristicProperties) WriteWithoutResponse() bool {
	return p&PropertyWriteWithoutResponse != 0
}

// Write returns whether writing of the value with response is permitted.
func (p CharacteristicProperties) Write() bool {
	return p&PropertyWrite != 0
}

// Notify returns whether notifications are permitted.
func (p CharacteristicProperties) Notify() bool {
	return p&PropertyNotify != 0
}

// Indicate returns whether indications are permitted.
func (p CharacteristicProperties) Indicate() bool {
	return p&PropertyIndicate != 0
}

// SecurityMode is the security level required to read or write an attribute.
type SecurityMode uint8

// Security modes. The high nibble is the security mode, the low nibble the
// level.
const (
	SecurityNoAccess        SecurityMode = 0x00
	SecurityOpen            SecurityMode = 0x11
	SecurityEncryptedNoMITM SecurityMode = 0x21
	SecurityEncryptedMITM   SecurityMode = 0x31
	SecurityEncryptedLESC   SecurityMode = 0x41
	SecuritySignedNoMITM    SecurityMode = 0x12
	SecuritySignedMITM      SecurityMode = 0x22
)

// Defaults of a characteristic that was not configured.
const (
	DefaultCharacteristicProperties = PropertyRead
	DefaultCharacteristicMaxLen     = 20
)

// WriteHandler is called when a connected peer writes a characteristic. It
// runs in the radio stack's event context and must return quickly; it should
// only record the value or signal the main loop.
type WriteHandler func(conn Connection, c *Characteristic, value []byte)

// Characteristic is a GATT characteristic owned by the caller and referenced
// by a Service. It can be configured until it is activated.
type Characteristic struct {
	uuid UUID

	mu        sync.Mutex
	props     CharacteristicProperties
	readPerm  SecurityMode
	writePerm SecurityMode
	maxLen    uint16
	value     []byte
	onWrite   WriteHandler

	server GATTServer
	handle Handle
	active bool
}

// NewCharacteristic declares a characteristic named by a text identifier (see
// TextUUID) with default properties and permissions.
func NewCharacteristic(text string) *Characteristic {
	return NewCharacteristicUUID(TextUUID(text))
}

// NewCharacteristicUUID declares a characteristic with an explicit UUID.
func NewCharacteristicUUID(uuid UUID) *Characteristic {
	return &Characteristic{
		uuid:      uuid,
		props:     DefaultCharacteristicProperties,
		readPerm:  SecurityOpen,
		writePerm: SecurityNoAccess,
		maxLen:    DefaultCharacteristicMaxLen,
	}
}

// NewCharacteristicWith declares and configures a characteristic in one call.
func NewCharacteristicWith(text string, props CharacteristicProperties, read, write SecurityMode, maxLen uint16) *Characteristic {
	c := NewCharacteristic(text)
	c.props, c.readPerm, c.writePerm, c.maxLen = props, read, write, maxLen
	return c
}

// Configure sets the properties, permissions and maximum value length at once.
func (c *Characteristic) Configure(props CharacteristicProperties, read, write SecurityMode, maxLen uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return ErrAlreadyActive
	}
	c.props, c.readPerm, c.writePerm, c.maxLen = props, read, write, maxLen
	return nil
}

// SetInitialValue sets the value the characteristic is declared with.
func (c *Characteristic) SetInitialValue(value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return ErrAlreadyActive
	}
	if len(value) > int(c.maxLen) {
		return ErrValueTooLong
	}
	c.value = append(c.value[:0], value...)
	return nil
}

// SetWriteHandler installs the callback for remote writes. Passing nil removes
// it.
func (c *Characteristic) SetWriteHandler(h WriteHandler) {
	c.mu.Lock()
	c.onWrite = h
	c.mu.Unlock()
}

// UUID returns the characteristic UUID.
func (c *Characteristic) UUID() UUID {
	return c.uuid
}

// Handle returns the value handle assigned by the radio stack. It is only
// meaningful once the characteristic is active.
func (c *Characteristic) Handle() Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

// Active reports whether the characteristic was activated.
func (c *Characteristic) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Properties returns the configured properties.
func (c *Characteristic) Properties() CharacteristicProperties {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.props
}

// Value returns a copy of the last value written locally.
func (c *Characteristic) Value() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.value...)
}

// Params returns the declaration parameters as they would be passed to the
// radio stack.
func (c *Characteristic) Params() CharacteristicParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params()
}

func (c *Characteristic) params() CharacteristicParams {
	return CharacteristicParams{
		UUID:            c.uuid,
		Properties:      c.props,
		ReadPermission:  c.readPerm,
		WritePermission: c.writePerm,
		MaxLen:          c.maxLen,
		Value:           append([]byte(nil), c.value...),
		OnWrite:         c.handleWrite,
	}
}

func (c *Characteristic) handleWrite(conn Connection, value []byte) {
	c.mu.Lock()
	h := c.onWrite
	c.mu.Unlock()
	if h != nil {
		h(conn, c, value)
	}
}

// Activate declares the characteristic to the radio stack inside the given
// service. A characteristic can only be activated once; later calls return
// ErrAlreadyActive. A rejection by the stack is returned as an
// *ActivationError.
func (c *Characteristic) Activate(server GATTServer, service Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return ErrAlreadyActive
	}
	handle, err := server.DeclareCharacteristic(service, c.params())
	if err != nil {
		return &ActivationError{UUID: c.uuid, Err: err}
	}
	c.server = server
	c.handle = handle
	c.active = true
	return nil
}

func (c *Characteristic) deactivate() {
	c.mu.Lock()
	c.server = nil
	c.handle = 0
	c.active = false
	c.mu.Unlock()
}

// Write replaces the local value of the characteristic, which connected peers
// read. It returns the number of bytes written.
func (c *Characteristic) Write(p []byte) (n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return 0, ErrNotActive
	}
	if len(p) > int(c.maxLen) {
		return 0, ErrValueTooLong
	}
	n, err = c.server.WriteCharacteristic(c.handle, p)
	if err != nil {
		return n, err
	}
	c.value = append(c.value[:0], p...)
	return n, nil
}

// Notify writes the value and sends it to subscribed peers.
func (c *Characteristic) Notify(p []byte) (n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return 0, ErrNotActive
	}
	if !c.props.Notify() {
		return 0, ErrNoNotify
	}
	if len(p) > int(c.maxLen) {
		return 0, ErrValueTooLong
	}
	n, err = c.server.NotifyCharacteristic(c.handle, p)
	if err != nil {
		return n, err
	}
	c.value = append(c.value[:0], p...)
	return n, nil
}

// Service is a GATT service: a UUID and an ordered list of characteristics.
// The service does not own the characteristics; they must outlive it.
type Service struct {
	uuid            UUID
	characteristics []*Characteristic
	handle          Handle
	active          bool
}

// NewService declares a service named by a text identifier (see TextUUID).
func NewService(text string) *Service {
	return &Service{uuid: TextUUID(text)}
}

// NewServiceUUID declares a service with an explicit UUID.
func NewServiceUUID(uuid UUID) *Service {
	return &Service{uuid: uuid}
}

// AddCharacteristic appends a characteristic. Activation follows the order in
// which characteristics were added.
func (s *Service) AddCharacteristic(c *Characteristic) {
	s.characteristics = append(s.characteristics, c)
}

// Characteristics returns the attached characteristics in order.
func (s *Service) Characteristics() []*Characteristic {
	return s.characteristics
}

// UUID returns the service UUID.
func (s *Service) UUID() UUID {
	return s.uuid
}

// Handle returns the handle the radio stack assigned to the service.
func (s *Service) Handle() Handle {
	return s.handle
}

// Active reports whether the service was activated.
func (s *Service) Active() bool {
	return s.active
}

// Activate declares the service and then each characteristic in order.
//
// A failing characteristic does not stop the others from being activated, and
// successful activations are not rolled back. All failures are returned in a
// *ServiceActivationError whose message names the first one. If the service
// declaration itself fails no characteristic is attempted and an
// *ActivationError is returned. The service only counts as active once the
// stack committed it; a failed commit is reported in
// ServiceActivationError.Commit next to the characteristic failures.
func (s *Service) Activate(server GATTServer) error {
	if s.active {
		return ErrAlreadyActive
	}
	handle, err := server.DeclareService(s.uuid)
	if err != nil {
		return &ActivationError{UUID: s.uuid, Err: err}
	}
	s.handle = handle

	var failed []*ActivationError
	var activated []*Characteristic
	for _, c := range s.characteristics {
		err := c.Activate(server, handle)
		if err == nil {
			activated = append(activated, c)
			continue
		}
		aerr, ok := err.(*ActivationError)
		if !ok {
			aerr = &ActivationError{UUID: c.uuid, Err: err}
		}
		failed = append(failed, aerr)
	}

	if err := server.CommitService(handle); err != nil {
		// Nothing was published, so a retry declares everything again.
		for _, c := range activated {
			c.deactivate()
		}
		s.handle = 0
		return &ServiceActivationError{
			Service: s.uuid,
			Commit:  &ActivationError{UUID: s.uuid, Err: err},
			Failed:  failed,
		}
	}
	s.active = true
	if len(failed) != 0 {
		return &ServiceActivationError{Service: s.uuid, Failed: failed}
	}
	return nil
}
