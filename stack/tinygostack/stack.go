// Package tinygostack implements envbeacon.Stack with tinygo.org/x/bluetooth.
// It runs on the SoftDevice based nRF52 boards the sensor node ships on, and
// on desktop hosts through the backends that package provides.
package tinygostack

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"github.com/epsg-gti/envbeacon"
)

var (
	errNotEnabled    = errors.New("tinygostack: adapter not enabled")
	errUnknownHandle = errors.New("tinygostack: unknown attribute handle")
	errCommitted     = errors.New("tinygostack: service already committed")
	errFlags         = errors.New("tinygostack: only LE-only general discoverable flags are supported")
)

// Stack adapts a bluetooth.Adapter. Advertising data is staged in
// envbeacon.AdvertisingData buffers and translated to advertisement options
// when advertising starts.
type Stack struct {
	log     logrus.FieldLogger
	adapter *bluetooth.Adapter

	mu          sync.Mutex
	enabled     bool
	adv         *bluetooth.Advertisement
	advertising bool
	stopTimer   *time.Timer
	name        string
	advData     envbeacon.AdvertisingData
	scanData    envbeacon.AdvertisingData
	interval    envbeacon.AdvertisingInterval
	restart     bool
	resume      bool

	onConnect    func(envbeacon.Connection)
	onDisconnect func(envbeacon.Connection, envbeacon.DisconnectReason)
	connections  connectionTable

	services []*pendingService
	chars    []*bluetooth.Characteristic
}

type pendingService struct {
	service   bluetooth.Service
	committed bool
}

// New returns a stack driving adapter, usually bluetooth.DefaultAdapter.
func New(adapter *bluetooth.Adapter, log logrus.FieldLogger) *Stack {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Stack{
		log:      log.WithField("stack", "tinygo"),
		adapter:  adapter,
		interval: envbeacon.DefaultAdvertisingInterval,
	}
}

func (s *Stack) Enable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled {
		return nil
	}
	if err := s.adapter.Enable(); err != nil {
		return err
	}
	s.adapter.SetConnectHandler(s.connectEvent)
	s.adv = s.adapter.DefaultAdvertisement()
	s.enabled = true
	return nil
}

// connectEvent runs in the adapter's event context.
func (s *Stack) connectEvent(device bluetooth.Device, connected bool) {
	peer := device.Address.String()
	s.mu.Lock()
	if connected {
		conn := s.connections.add(peer)
		// A peripheral stops advertising once a central connects.
		s.resume = s.advertising && s.restart
		s.advertising = false
		h := s.onConnect
		s.mu.Unlock()
		s.log.WithField("conn", conn).WithField("peer", peer).Info("connected")
		if h != nil {
			h(conn)
		}
		return
	}

	conn, ok := s.connections.remove(peer)
	resume := s.resume && s.restart && s.connections.len() == 0
	if resume {
		s.resume = false
	}
	h := s.onDisconnect
	s.mu.Unlock()
	if !ok {
		return
	}
	s.log.WithField("conn", conn).Info("disconnected")
	if resume {
		if err := s.StartAdvertising(0); err != nil {
			s.log.WithError(err).Warn("could not restart advertising")
		}
	}
	if h != nil {
		// The adapter does not report the HCI reason.
		h(conn, envbeacon.ReasonRemoteUserTerminated)
	}
}

func (s *Stack) SetConnectHandler(h func(envbeacon.Connection)) {
	s.mu.Lock()
	s.onConnect = h
	s.mu.Unlock()
}

func (s *Stack) SetDisconnectHandler(h func(envbeacon.Connection, envbeacon.DisconnectReason)) {
	s.mu.Lock()
	s.onDisconnect = h
	s.mu.Unlock()
}

func (s *Stack) Connection(conn envbeacon.Connection) (envbeacon.ConnectionInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connections.find(conn)
}
