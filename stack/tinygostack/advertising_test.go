package tinygostack

import (
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/epsg-gti/envbeacon"
)

func newTestStack(t *testing.T) *Stack {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	s := New(nil, log)
	s.name = "rocio"
	return s
}

func TestOptionsFitOnePacket(t *testing.T) {
	iBeacon := envbeacon.EncodeIBeacon(envbeacon.CompanyIDApple, envbeacon.BeaconUUIDFromText("EPSG-GTI-PROY-3A"), 0x0B07, 1450, -53)
	freeform := envbeacon.EncodeFreeform(envbeacon.CompanyIDApple, []byte("O3:0.650"))
	short, _ := envbeacon.EncodeMultiField(envbeacon.CompanyIDApple, []byte{1, 2, 3})

	tests := []struct {
		name  string
		frame []byte
		named bool
	}{
		{"ibeacon", iBeacon, false},
		{"freeform", freeform, false},
		{"short multi-field", short, true},
	}
	for _, tc := range tests {
		s := newTestStack(t)
		if err := s.AddAdvertisingFlags(envbeacon.FlagsLEOnlyGeneralDiscoverable); err != nil {
			t.Fatal(err)
		}
		if err := s.AddAdvertisingData(envbeacon.ADTypeManufacturerData, tc.frame); err != nil {
			t.Fatal(err)
		}
		if err := s.AddScanResponseName(); err != nil {
			t.Fatal(err)
		}
		opts, err := s.options()
		if err != nil {
			t.Errorf("%s: %v", tc.name, err)
			continue
		}
		if n := packetLen(opts); n > envbeacon.MaxAdvertisingDataLen {
			t.Errorf("%s: packet is %d bytes", tc.name, n)
		}
		if (opts.LocalName != "") != tc.named {
			t.Errorf("%s: unexpected local name %q", tc.name, opts.LocalName)
		}
		if len(opts.ManufacturerData) != 1 || len(opts.ManufacturerData[0].Data) != len(tc.frame)-2 {
			t.Errorf("%s: frame lost: %+v", tc.name, opts.ManufacturerData)
		}
	}
}

func TestOptionsOverflow(t *testing.T) {
	// Without staged flags the buffer holds 31 bytes, but the adapter adds
	// its own flags structure.
	s := newTestStack(t)
	frame := envbeacon.EncodeIBeacon(envbeacon.CompanyIDApple, envbeacon.BeaconUUID{}, 1, 2, -53)
	if err := s.AddAdvertisingData(envbeacon.ADTypeManufacturerData, frame); err != nil {
		t.Fatal(err)
	}
	if err := s.AddAdvertisedService(envbeacon.ServiceUUIDBattery); err != nil {
		t.Fatal(err)
	}
	if _, err := s.options(); !errors.Is(err, envbeacon.ErrAdvertisingDataOverflow) {
		t.Errorf("expected overflow, got %v", err)
	}
}

func TestAddAdvertisingFlags(t *testing.T) {
	s := newTestStack(t)
	if err := s.AddAdvertisingFlags(envbeacon.FlagLEGeneralDiscoverable); err != errFlags {
		t.Errorf("expected errFlags, got %v", err)
	}
	if s.advData.Len() != 0 {
		t.Errorf("rejected flags were staged: % X", s.advData.Bytes())
	}
}

func TestStopAdvertisingDisarmsResume(t *testing.T) {
	s := newTestStack(t)
	s.resume = true
	if err := s.StopAdvertising(); err != nil {
		t.Fatal(err)
	}
	if s.resume {
		t.Error("advertising would resume after the next disconnect")
	}
}
