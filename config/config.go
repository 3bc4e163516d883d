// Package config loads the sensor node configuration from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/blang/semver"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/epsg-gti/envbeacon"
	"github.com/epsg-gti/envbeacon/node"
)

// Radio stacks that can be selected.
const (
	StackBlueZ  = "bluez"
	StackTinyGo = "tinygo"
)

// Advertising interval limits of the Bluetooth core specification.
const (
	MinAdvertisingInterval = 20 * time.Millisecond
	MaxAdvertisingInterval = 10240 * time.Millisecond
)

var (
	errNoName       = errors.New("config: name is empty")
	errBeaconUUID   = errors.New("config: beacon_uuid must be a canonical UUID or at most 16 characters of text")
	errUnknownStack = errors.New("config: unknown stack")
)

// Duration is a time.Duration written as "1.5s" or "100ms" in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Node is the configuration of one sensor node.
type Node struct {
	Name          string `yaml:"name"`
	CompanyID     uint16 `yaml:"company_id"`
	TxPower       int8   `yaml:"tx_power"`
	BeaconUUID    string `yaml:"beacon_uuid"`
	MeasuredPower int8   `yaml:"measured_power"`
	Manufacturer  string `yaml:"manufacturer"`
	Firmware      string `yaml:"firmware_version"`

	PublishInterval     Duration `yaml:"publish_interval"`
	AdvertiseHold       Duration `yaml:"advertise_hold"`
	AdvertisingInterval Duration `yaml:"advertising_interval"`
	Bursts              bool     `yaml:"bursts"`

	Stack    string `yaml:"stack"`
	Simulate bool   `yaml:"simulate"`
	Seed     int64  `yaml:"seed"`

	LogLevel   string `yaml:"log_level"`
	SerialPort string `yaml:"serial_port"`
	SerialBaud int    `yaml:"serial_baud"`
}

// Default returns the configuration used for keys missing from the file.
func Default() Node {
	return Node{
		Name:                "rocio",
		CompanyID:           envbeacon.CompanyIDApple,
		TxPower:             4,
		BeaconUUID:          node.DefaultBeaconText,
		MeasuredPower:       node.DefaultMeasuredPower,
		Manufacturer:        node.DefaultManufacturer,
		Firmware:            node.DefaultFirmware.String(),
		PublishInterval:     Duration(node.DefaultInterval),
		AdvertiseHold:       Duration(node.DefaultHold),
		AdvertisingInterval: Duration(envbeacon.DefaultAdvertisingInterval.Duration()),
		Bursts:              true,
		Stack:               StackBlueZ,
		Simulate:            true,
		LogLevel:            "info",
		SerialBaud:          115200,
	}
}

// Load reads the file at path on top of the defaults. Unknown keys are an
// error. The result is not validated.
func Load(path string) (Node, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Marshal returns the configuration as YAML.
func (n Node) Marshal() ([]byte, error) {
	return yaml.Marshal(n)
}

// Validate checks every field and returns the first problem found.
func (n Node) Validate() error {
	if n.Name == "" {
		return errNoName
	}
	if n.TxPower < -40 || n.TxPower > 8 {
		return fmt.Errorf("config: tx_power %d dBm out of range", n.TxPower)
	}
	if _, err := n.Beacon(); err != nil {
		return err
	}
	if _, err := n.FirmwareVersion(); err != nil {
		return err
	}
	if n.PublishInterval <= 0 {
		return fmt.Errorf("config: publish_interval must be positive, got %v", time.Duration(n.PublishInterval))
	}
	if n.AdvertiseHold < 0 {
		return fmt.Errorf("config: advertise_hold must not be negative, got %v", time.Duration(n.AdvertiseHold))
	}
	if d := time.Duration(n.AdvertisingInterval); d < MinAdvertisingInterval || d > MaxAdvertisingInterval {
		return fmt.Errorf("config: advertising_interval %v outside %v..%v", d, MinAdvertisingInterval, MaxAdvertisingInterval)
	}
	switch n.Stack {
	case StackBlueZ, StackTinyGo:
	default:
		return fmt.Errorf("%w %q", errUnknownStack, n.Stack)
	}
	if _, err := logrus.ParseLevel(n.LogLevel); err != nil {
		return fmt.Errorf("config: log_level: %w", err)
	}
	if n.SerialPort != "" && n.SerialBaud <= 0 {
		return fmt.Errorf("config: serial_baud must be positive, got %d", n.SerialBaud)
	}
	return nil
}

// Beacon returns the iBeacon UUID. A canonical UUID string is used as is,
// anything else is taken as text and reversed as by envbeacon.TextUUID.
func (n Node) Beacon() (envbeacon.BeaconUUID, error) {
	if len(n.BeaconUUID) == 36 {
		u, err := uuid.Parse(n.BeaconUUID)
		if err != nil {
			return envbeacon.BeaconUUID{}, fmt.Errorf("config: beacon_uuid: %w", err)
		}
		return envbeacon.BeaconUUID(u), nil
	}
	if n.BeaconUUID == "" || len(n.BeaconUUID) > envbeacon.TextUUIDLen {
		return envbeacon.BeaconUUID{}, errBeaconUUID
	}
	return envbeacon.BeaconUUIDFromText(n.BeaconUUID), nil
}

func (n Node) FirmwareVersion() (semver.Version, error) {
	v, err := semver.Parse(n.Firmware)
	if err != nil {
		return v, fmt.Errorf("config: firmware_version: %w", err)
	}
	return v, nil
}

// Identity returns the peripheral identity.
func (n Node) Identity() envbeacon.Identity {
	return envbeacon.Identity{
		Name:      n.Name,
		CompanyID: n.CompanyID,
		TxPower:   n.TxPower,
	}
}

// ModeConfigs returns the default per-mode advertising setup with the
// configured advertising interval.
func (n Node) ModeConfigs() map[envbeacon.AdvertisingMode]envbeacon.ModeConfig {
	modes := envbeacon.DefaultModeConfigs()
	interval := envbeacon.NewAdvertisingInterval(time.Duration(n.AdvertisingInterval))
	for mode, cfg := range modes {
		cfg.Interval = interval
		modes[mode] = cfg
	}
	return modes
}
