//go:build linux

// Package bluezstack implements envbeacon.Stack on top of BlueZ, the Linux
// Bluetooth daemon, over D-Bus.
//
// Some documentation for the BlueZ D-Bus interface:
// https://git.kernel.org/pub/scm/bluetooth/bluez.git/tree/doc
package bluezstack

import (
	"context"
	"errors"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/muka/go-bluetooth/api"
	"github.com/muka/go-bluetooth/api/service"
	"github.com/muka/go-bluetooth/bluez/profile/adapter"
	"github.com/muka/go-bluetooth/bluez/profile/device"
	"github.com/sirupsen/logrus"

	"github.com/epsg-gti/envbeacon"
)

var errNotEnabled = errors.New("bluezstack: adapter not enabled")

// Stack is a BlueZ backed radio stack. The zero value is not usable, use New.
type Stack struct {
	log logrus.FieldLogger

	mu      sync.Mutex
	adapter *adapter.Adapter1
	id      string
	ctx     context.Context
	cancel  context.CancelFunc

	name        string
	txPower     int8
	hasTxPower  bool
	advData     envbeacon.AdvertisingData
	scanData    envbeacon.AdvertisingData
	interval    envbeacon.AdvertisingInterval
	restart     bool
	stopAdv     func()

	onConnect    func(envbeacon.Connection)
	onDisconnect func(envbeacon.Connection, envbeacon.DisconnectReason)
	devices      map[dbus.ObjectPath]envbeacon.Connection
	connected    map[envbeacon.Connection]envbeacon.ConnectionInfo
	nextConn     envbeacon.Connection
	lastConn     envbeacon.Connection

	apps     []*service.App
	services []*service.Service
	chars    []*char
}

// New returns a stack for the default adapter. Logging goes to log, or to
// the logrus standard logger when log is nil.
func New(log logrus.FieldLogger) *Stack {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Stack{
		log:       log.WithField("stack", "bluez"),
		devices:   make(map[dbus.ObjectPath]envbeacon.Connection),
		connected: make(map[envbeacon.Connection]envbeacon.ConnectionInfo),
		interval:  envbeacon.DefaultAdvertisingInterval,
	}
}

// Enable looks up the default adapter and starts watching devices for
// connection changes. Calling it again does nothing.
func (s *Stack) Enable() (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id != "" {
		return nil
	}
	s.adapter, err = api.GetDefaultAdapter()
	if err != nil {
		return err
	}
	s.id, err = s.adapter.GetAdapterID()
	if err != nil {
		return err
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s.watchDevices()
}

// Close stops advertising, unregisters the GATT applications and stops the
// device watchers.
func (s *Stack) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopAdv != nil {
		s.stopAdv()
		s.stopAdv = nil
	}
	for _, app := range s.apps {
		app.Close()
	}
	s.apps = nil
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}

// watchDevices tracks the Connected property of known and newly discovered
// devices. BlueZ does not report connections to a peripheral directly, so
// a connection is a device whose Connected property became true.
func (s *Stack) watchDevices() error {
	devices, err := s.adapter.GetDevices()
	if err != nil {
		return err
	}
	for _, dev := range devices {
		s.watchDevice(dev)
	}

	discovered, cancel, err := s.adapter.OnDeviceDiscovered()
	if err != nil {
		return err
	}
	go func() {
		defer cancel()
		for {
			select {
			case ev, ok := <-discovered:
				if !ok {
					return
				}
				if ev.Type != adapter.DeviceAdded {
					continue
				}
				dev, err := device.NewDevice1(ev.Path)
				if err != nil || dev == nil {
					continue
				}
				s.mu.Lock()
				s.watchDevice(dev)
				s.mu.Unlock()
			case <-s.ctx.Done():
				return
			}
		}
	}()
	return nil
}

// watchDevice must be called with s.mu held.
func (s *Stack) watchDevice(dev *device.Device1) {
	ch, err := dev.WatchProperties()
	if err != nil {
		// Assume the device has disappeared.
		return
	}
	path := dev.Path()
	if dev.Properties.Connected {
		s.connectLocked(path, dev.Properties.Address)
	}
	go func() {
		for {
			select {
			case change, ok := <-ch:
				if !ok || change == nil {
					return
				}
				if change.Name != "Connected" {
					continue
				}
				connected, _ := change.Value.(bool)
				if connected {
					s.mu.Lock()
					conn, h := s.connectLocked(path, dev.Properties.Address)
					s.mu.Unlock()
					if h != nil {
						h(conn)
					}
				} else {
					s.disconnect(path)
				}
			case <-s.ctx.Done():
				return
			}
		}
	}()
}

func (s *Stack) connectLocked(path dbus.ObjectPath, address string) (envbeacon.Connection, func(envbeacon.Connection)) {
	s.nextConn++
	conn := s.nextConn
	s.devices[path] = conn
	mac, _ := envbeacon.ParseMAC(address)
	s.connected[conn] = envbeacon.ConnectionInfo{Handle: conn, Peer: mac}
	s.lastConn = conn
	s.log.WithField("conn", conn).WithField("peer", address).Info("connected")
	return conn, s.onConnect
}

func (s *Stack) disconnect(path dbus.ObjectPath) {
	s.mu.Lock()
	conn, ok := s.devices[path]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.devices, path)
	delete(s.connected, conn)
	h := s.onDisconnect
	restart := s.restart && s.stopAdv != nil
	s.mu.Unlock()

	s.log.WithField("conn", conn).Info("disconnected")
	if restart {
		// BlueZ keeps the advertisement registered across connections.
		s.log.Debug("advertisement still registered")
	}
	if h != nil {
		// BlueZ does not expose the HCI reason.
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
	info, ok := s.connected[conn]
	return info, ok
}
