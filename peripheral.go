package envbeacon

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// State is the advertising state of a Peripheral.
type State int32

// Peripheral states.
const (
	StateOff State = iota
	StateIdle
	StateAdvertising
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "off"
	case StateIdle:
		return "idle"
	case StateAdvertising:
		return "advertising"
	case StateConnected:
		return "connected"
	}
	return "unknown"
}

// Identity is the fixed identity of a sensor node.
type Identity struct {
	// Name is the advertised device name, sent in the scan response.
	Name string

	// CompanyID prefixes every manufacturer data frame.
	CompanyID uint16

	// TxPower is the transmit power in dBm.
	TxPower int8
}

// AdvertisingMode selects the frame a Peripheral advertises.
type AdvertisingMode uint8

// Advertising modes. Only one is live at a time.
const (
	ModeIBeacon AdvertisingMode = iota
	ModeFreeform
	ModeMultiField
)

func (m AdvertisingMode) String() string {
	switch m {
	case ModeIBeacon:
		return "ibeacon"
	case ModeFreeform:
		return "freeform"
	case ModeMultiField:
		return "multifield"
	}
	return "unknown"
}

// ModeConfig is the radio configuration applied when advertising in one mode.
type ModeConfig struct {
	// SetTxPower applies Identity.TxPower before advertising.
	SetTxPower bool

	// ScanResponseName puts the device name in the scan response.
	ScanResponseName bool

	// Flags is the advertising flags value; 0 omits the flags structure.
	Flags byte

	Interval AdvertisingInterval

	// FastTimeout is the fast advertising period in seconds; 0 leaves the
	// stack default.
	FastTimeout uint16

	RestartOnDisconnect bool
}

// DefaultModeConfigs returns the configuration table the Bluefruit firmware used.
// iBeacon mode sets the transmit power and keeps the stack's fast timeout; the
// custom payload modes leave the transmit power alone and use a 1 second fast
// timeout.
func DefaultModeConfigs() map[AdvertisingMode]ModeConfig {
	return map[AdvertisingMode]ModeConfig{
		ModeIBeacon: {
			SetTxPower:          true,
			ScanResponseName:    true,
			Flags:               FlagsLEOnlyGeneralDiscoverable,
			Interval:            DefaultAdvertisingInterval,
			RestartOnDisconnect: true,
		},
		ModeFreeform: {
			ScanResponseName:    true,
			Flags:               FlagsLEOnlyGeneralDiscoverable,
			Interval:            DefaultAdvertisingInterval,
			FastTimeout:         1,
			RestartOnDisconnect: true,
		},
		ModeMultiField: {
			ScanResponseName:    true,
			Flags:               FlagsLEOnlyGeneralDiscoverable,
			Interval:            DefaultAdvertisingInterval,
			FastTimeout:         1,
			RestartOnDisconnect: true,
		},
	}
}

// Option configures a Peripheral.
type Option func(*Peripheral)

// WithLogger sets the logger. The default is logrus.StandardLogger().
func WithLogger(log logrus.FieldLogger) Option {
	return func(p *Peripheral) {
		p.log = log
	}
}

// WithModeConfig overrides the configuration of one advertising mode.
func WithModeConfig(mode AdvertisingMode, cfg ModeConfig) Option {
	return func(p *Peripheral) {
		p.modes[mode] = cfg
	}
}

// Peripheral drives a radio stack as a BLE peripheral: it advertises one frame
// at a time and registers GATT services.
//
// All methods except State, IsAdvertising and Connection are meant to be
// called from a single goroutine. Connection handlers run in the stack's event
// context.
type Peripheral struct {
	stack Stack
	id    Identity
	modes map[AdvertisingMode]ModeConfig
	log   logrus.FieldLogger

	state       atomic.Int32
	restart     atomic.Bool
	resume      atomic.Bool
	connections atomic.Int32
	mode        AdvertisingMode

	handlerMu    sync.Mutex
	onConnect    func(Connection)
	onDisconnect func(Connection, DisconnectReason)

	advertised []UUID
}

// NewPeripheral returns a powered off peripheral using the given stack.
func NewPeripheral(stack Stack, id Identity, options ...Option) *Peripheral {
	p := &Peripheral{
		stack: stack,
		id:    id,
		modes: DefaultModeConfigs(),
		log:   logrus.StandardLogger(),
	}
	for _, o := range options {
		o(p)
	}
	p.log = p.log.WithField("device", id.Name)
	return p
}

// Identity returns the device identity.
func (p *Peripheral) Identity() Identity {
	return p.id
}

// ModeConfig returns the configuration used for a mode.
func (p *Peripheral) ModeConfig(mode AdvertisingMode) ModeConfig {
	return p.modes[mode]
}

// State returns the current state.
func (p *Peripheral) State() State {
	return State(p.state.Load())
}

// Mode returns the mode of the last advertising start.
func (p *Peripheral) Mode() AdvertisingMode {
	return p.mode
}

// PowerOn initializes the radio stack and makes sure nothing is being
// advertised.
func (p *Peripheral) PowerOn() error {
	if err := p.stack.Enable(); err != nil {
		return err
	}
	p.stack.SetConnectHandler(p.handleConnect)
	p.stack.SetDisconnectHandler(p.handleDisconnect)
	p.state.CompareAndSwap(int32(StateOff), int32(StateIdle))
	p.log.Debug("radio stack enabled")
	return p.StopAdvertising()
}

// PowerOnWithHandlers is PowerOn followed by the installation of connection
// handlers. The handlers run in the stack's event context and must not block.
func (p *Peripheral) PowerOnWithHandlers(onConnect func(Connection), onDisconnect func(Connection, DisconnectReason)) error {
	if err := p.PowerOn(); err != nil {
		return err
	}
	p.SetConnectHandler(onConnect)
	p.SetDisconnectHandler(onDisconnect)
	return nil
}

// SetConnectHandler sets the function called when a central connects.
func (p *Peripheral) SetConnectHandler(h func(Connection)) {
	p.handlerMu.Lock()
	p.onConnect = h
	p.handlerMu.Unlock()
}

// SetDisconnectHandler sets the function called when a central disconnects.
func (p *Peripheral) SetDisconnectHandler(h func(Connection, DisconnectReason)) {
	p.handlerMu.Lock()
	p.onDisconnect = h
	p.handlerMu.Unlock()
}

func (p *Peripheral) handleConnect(conn Connection) {
	p.connections.Add(1)
	prev := State(p.state.Swap(int32(StateConnected)))
	if prev == StateAdvertising {
		p.resume.Store(p.restart.Load())
	}
	p.handlerMu.Lock()
	h := p.onConnect
	p.handlerMu.Unlock()
	if h != nil {
		h(conn)
	}
}

func (p *Peripheral) handleDisconnect(conn Connection, reason DisconnectReason) {
	if p.connections.Add(-1) <= 0 {
		p.connections.Store(0)
		next := StateIdle
		if p.resume.Swap(false) {
			next = StateAdvertising
		}
		p.state.CompareAndSwap(int32(StateConnected), int32(next))
	}
	p.handlerMu.Lock()
	h := p.onDisconnect
	p.handlerMu.Unlock()
	if h != nil {
		h(conn, reason)
	}
}

// IsAdvertising asks the radio stack whether it is advertising.
func (p *Peripheral) IsAdvertising() bool {
	if p.State() == StateOff {
		return false
	}
	return p.stack.IsAdvertising()
}

// StopAdvertising stops advertising. It does nothing if nothing is being
// advertised.
func (p *Peripheral) StopAdvertising() error {
	if p.State() == StateOff {
		return nil
	}
	// While connected the stack is not on air but may still be armed to
	// resume the frame after the link drops.
	if p.stack.IsAdvertising() || p.State() == StateConnected {
		if err := p.stack.StopAdvertising(); err != nil {
			return err
		}
		p.log.Debug("advertising stopped")
	}
	p.resume.Store(false)
	p.state.CompareAndSwap(int32(StateAdvertising), int32(StateIdle))
	return nil
}

// StartIBeacon advertises an iBeacon frame.
func (p *Peripheral) StartIBeacon(uuid BeaconUUID, major, minor uint16, measuredPower int8) error {
	frame := EncodeIBeacon(p.id.CompanyID, uuid, major, minor, measuredPower)
	return p.start(ModeIBeacon, frame, logrus.Fields{"major": major, "minor": minor})
}

// StartFreeform advertises up to FreeformDataLen bytes of payload behind the
// iBeacon prefix. Longer payloads are truncated.
func (p *Peripheral) StartFreeform(payload []byte) error {
	frame := EncodeFreeform(p.id.CompanyID, payload)
	return p.start(ModeFreeform, frame, logrus.Fields{"len": len(payload)})
}

// StartMultiField advertises data behind the company ID. Data longer than
// MaxMultiFieldData is rejected with ErrAdvertisingDataOverflow.
func (p *Peripheral) StartMultiField(data []byte) error {
	frame, err := EncodeMultiField(p.id.CompanyID, data)
	if err != nil {
		return err
	}
	return p.start(ModeMultiField, frame, logrus.Fields{"len": len(data)})
}

func (p *Peripheral) start(mode AdvertisingMode, frame []byte, fields logrus.Fields) error {
	if p.State() == StateOff {
		return ErrNotPoweredOn
	}
	cfg := p.modes[mode]

	// Check the budget before anything reaches the stack.
	var adv AdvertisingData
	if cfg.Flags != 0 {
		if err := adv.AddFlags(cfg.Flags); err != nil {
			return err
		}
	}
	if err := adv.AddManufacturerData(frame); err != nil {
		return err
	}

	if err := p.StopAdvertising(); err != nil {
		return err
	}

	s := p.stack
	s.ClearAdvertisingData()
	s.ClearScanResponseData()
	if cfg.SetTxPower {
		if err := s.SetTxPower(p.id.TxPower); err != nil {
			return err
		}
	}
	if err := s.SetDeviceName(p.id.Name); err != nil {
		return err
	}
	if cfg.ScanResponseName {
		if err := s.AddScanResponseName(); err != nil {
			return err
		}
	}
	if cfg.Flags != 0 {
		if err := s.AddAdvertisingFlags(cfg.Flags); err != nil {
			return err
		}
	}
	if err := s.AddAdvertisingData(ADTypeManufacturerData, frame); err != nil {
		return err
	}
	for _, uuid := range p.advertised {
		if err := s.AddAdvertisedService(uuid); err != nil {
			p.log.WithField("service", uuid.String()).WithError(err).Warn("service does not fit next to the frame")
		}
	}
	s.SetRestartOnDisconnect(cfg.RestartOnDisconnect)
	if err := s.SetAdvertisingInterval(cfg.Interval, cfg.Interval); err != nil {
		return err
	}
	if cfg.FastTimeout != 0 {
		s.SetFastTimeout(cfg.FastTimeout)
	}
	if err := s.StartAdvertising(0); err != nil {
		return err
	}

	p.mode = mode
	p.restart.Store(cfg.RestartOnDisconnect)
	if !p.state.CompareAndSwap(int32(StateIdle), int32(StateAdvertising)) {
		// Connected: advertising carries on after the link drops.
		p.resume.Store(true)
	}
	p.log.WithFields(fields).WithField("mode", mode.String()).Debugf("advertising % X", frame)
	return nil
}

// RegisterService adds the service UUID to the advertised data. The service
// is advertised again by later advertising starts when there is room next to
// the frame. Failure is returned as a *ServiceRegistrationError.
func (p *Peripheral) RegisterService(s *Service) error {
	if p.State() == StateOff {
		return &ServiceRegistrationError{UUID: s.UUID(), Err: ErrNotPoweredOn}
	}
	if err := p.stack.AddAdvertisedService(s.UUID()); err != nil {
		p.log.WithField("service", s.UUID().String()).WithError(err).Warn("service not added")
		return &ServiceRegistrationError{UUID: s.UUID(), Err: err}
	}
	p.advertised = append(p.advertised, s.UUID())
	return nil
}

// AddServiceWithCharacteristics attaches the characteristics to the service
// in order and registers it.
func (p *Peripheral) AddServiceWithCharacteristics(s *Service, chars ...*Characteristic) error {
	for _, c := range chars {
		s.AddCharacteristic(c)
	}
	return p.RegisterService(s)
}

// AddServiceWithCharacteristicsAndActivate is AddServiceWithCharacteristics
// followed by activation of the service. The service is activated even if the
// registration failed; both errors are returned.
func (p *Peripheral) AddServiceWithCharacteristicsAndActivate(s *Service, chars ...*Characteristic) error {
	regErr := p.AddServiceWithCharacteristics(s, chars...)
	actErr := p.ActivateService(s)
	return errors.Join(regErr, actErr)
}

// ActivateService declares the service and its characteristics to the radio
// stack, see Service.Activate.
func (p *Peripheral) ActivateService(s *Service) error {
	if p.State() == StateOff {
		return ErrNotPoweredOn
	}
	err := s.Activate(p.stack)
	if err != nil {
		p.log.WithField("service", s.UUID().String()).WithError(err).Warn("service activation failed")
	}
	return err
}

// Connection looks up a live connection.
func (p *Peripheral) Connection(conn Connection) (ConnectionInfo, bool) {
	if p.State() == StateOff {
		return ConnectionInfo{}, false
	}
	return p.stack.Connection(conn)
}
