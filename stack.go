package envbeacon

// Connection is the handle of one live BLE link, as allocated by the radio
// stack.
type Connection uint16

// Handle identifies a service or characteristic declared to the radio stack.
type Handle uint16

// DisconnectReason is the HCI reason code reported on disconnection.
type DisconnectReason uint8

// Common disconnection reasons.
const (
	ReasonRemoteUserTerminated DisconnectReason = 0x13
	ReasonLocalHostTerminated  DisconnectReason = 0x16
	ReasonConnectionTimeout    DisconnectReason = 0x08
)

// ConnectionInfo describes a live connection.
type ConnectionInfo struct {
	Handle Connection
	Peer   MAC
}

// Advertiser is the advertising half of a radio stack. Data is staged with the
// Add and Set calls and applied by StartAdvertising.
type Advertiser interface {
	// Enable initializes the radio stack. It may be called more than once.
	Enable() error

	SetDeviceName(name string) error

	// SetTxPower applies to the advertisement being staged; it is undone
	// by ClearAdvertisingData.
	SetTxPower(dbm int8) error

	ClearAdvertisingData()
	ClearScanResponseData()
	AddAdvertisingFlags(flags byte) error
	AddAdvertisingData(typ ADType, data []byte) error
	AddAdvertisedService(uuid UUID) error
	AddScanResponseName() error

	SetAdvertisingInterval(min, max AdvertisingInterval) error
	SetFastTimeout(seconds uint16)
	SetRestartOnDisconnect(restart bool)

	// StartAdvertising starts advertising for timeout seconds, or until
	// StopAdvertising when timeout is 0.
	StartAdvertising(timeout uint16) error
	StopAdvertising() error
	IsAdvertising() bool

	// The handlers run in the stack's event context and must not block.
	SetConnectHandler(func(conn Connection))
	SetDisconnectHandler(func(conn Connection, reason DisconnectReason))
	Connection(conn Connection) (ConnectionInfo, bool)
}

// CharacteristicParams is what the radio stack needs to declare a
// characteristic.
type CharacteristicParams struct {
	UUID            UUID
	Properties      CharacteristicProperties
	ReadPermission  SecurityMode
	WritePermission SecurityMode
	MaxLen          uint16
	Value           []byte

	// OnWrite is called from the stack's event context when a peer writes
	// the value.
	OnWrite func(conn Connection, value []byte)
}

// GATTServer is the attribute server half of a radio stack.
type GATTServer interface {
	DeclareService(uuid UUID) (Handle, error)
	DeclareCharacteristic(service Handle, params CharacteristicParams) (Handle, error)

	// CommitService publishes a declared service with the characteristics
	// that were declared successfully.
	CommitService(service Handle) error

	WriteCharacteristic(char Handle, value []byte) (int, error)
	NotifyCharacteristic(char Handle, value []byte) (int, error)
}

// Stack is a complete radio stack adapter.
type Stack interface {
	Advertiser
	GATTServer
}
