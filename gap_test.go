package envbeacon

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestEncodeIBeaconScenario(t *testing.T) {
	uuid := BeaconUUIDFromText("EPSG-GTI-PROY-3A")
	major := uint16(11<<8 + 7)
	frame := EncodeIBeacon(CompanyIDApple, uuid, major, 1450, -53)

	expected := []byte("\x4c\x00\x02\x15" + "A3-YORP-ITG-GSPE" + "\x0b\x07\x05\xaa\xcb")
	if !bytes.Equal(frame, expected) {
		t.Errorf("unexpected frame\nexpected: % X\nactual:   % X", expected, frame)
	}
}

func TestEncodeIBeaconMajorMinor(t *testing.T) {
	values := []uint16{0, 1, 0xFFFF}
	for c := uint16(0); c < 256; c++ {
		values = append(values, 0x0B00+c)
	}
	uuid := BeaconUUIDFromText("EPSG-GTI-PROY-3A")
	for _, major := range values {
		for _, minor := range []uint16{0, 1, 0x0B2A, 0xFFFF} {
			frame := EncodeIBeacon(0x1234, uuid, major, minor, -60)
			if len(frame) != IBeaconFrameLen || frame[2] != 0x02 || frame[3] != 0x15 {
				t.Fatalf("bad frame header: % X", frame)
			}
			b, err := DecodeIBeacon(frame)
			if err != nil {
				t.Fatal(err)
			}
			if b.Major != major || b.Minor != minor || b.MeasuredPower != -60 || b.CompanyID != 0x1234 || b.UUID != uuid {
				t.Fatalf("round trip of major=%d minor=%d gave %+v", major, minor, b)
			}
		}
	}
}

func TestDecodeIBeaconRejectsOtherFrames(t *testing.T) {
	if _, err := DecodeIBeacon([]byte{0x4c, 0x00, 0x02}); err != errNotIBeacon {
		t.Errorf("expected errNotIBeacon, got %v", err)
	}
	frame := EncodeIBeacon(CompanyIDApple, BeaconUUID{}, 1, 2, 3)
	frame[3] = 0x14
	if _, err := DecodeIBeacon(frame); err != errNotIBeacon {
		t.Errorf("expected errNotIBeacon, got %v", err)
	}
}

func TestEncodeFreeform(t *testing.T) {
	tests := []struct {
		payload string
		data    string
	}{
		{"", "---------------------"},
		{"O3:0.650", "O3:0.650-------------"},
		{"abcdefghijklmnopqrstu", "abcdefghijklmnopqrstu"},
		{"abcdefghijklmnopqrstuvwxyz", "abcdefghijklmnopqrstu"},
	}
	for _, tc := range tests {
		frame := EncodeFreeform(CompanyIDApple, []byte(tc.payload))
		expected := "\x4c\x00\x02\x15" + tc.data
		if string(frame) != expected {
			t.Errorf("payload %q: expected %q, got %q", tc.payload, expected, frame)
		}
	}
}

func TestEncodeMultiField(t *testing.T) {
	frame, err := EncodeMultiField(0xABCD, []byte{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(frame, []byte{0xCD, 0xAB, 1, 2, 3}) {
		t.Errorf("unexpected frame % X", frame)
	}

	if _, err := EncodeMultiField(0xABCD, make([]byte, MaxMultiFieldData)); err != nil {
		t.Errorf("largest payload rejected: %v", err)
	}
	if _, err := EncodeMultiField(0xABCD, make([]byte, MaxMultiFieldData+1)); !errors.Is(err, ErrAdvertisingDataOverflow) {
		t.Errorf("expected overflow, got %v", err)
	}
}

func TestCreateAdvertisingData(t *testing.T) {
	type testCase struct {
		raw   string
		build func(*AdvertisingData) error
	}
	tests := []testCase{
		{
			raw: "\x02\x01\x06", // flags
			build: func(a *AdvertisingData) error {
				return a.AddFlags(FlagsLEOnlyGeneralDiscoverable)
			},
		},
		{
			raw: "\x02\x01\x06" + // flags
				"\x06\x09rocio", // local name
			build: func(a *AdvertisingData) error {
				if err := a.AddFlags(FlagsLEOnlyGeneralDiscoverable); err != nil {
					return err
				}
				return a.AddLocalName("rocio")
			},
		},
		{
			raw: "\x02\x01\x06" + // flags
				"\x03\x03\x0f\x18", // battery service UUID
			build: func(a *AdvertisingData) error {
				if err := a.AddFlags(FlagsLEOnlyGeneralDiscoverable); err != nil {
					return err
				}
				return a.AddServiceUUID(ServiceUUIDBattery)
			},
		},
		{
			raw: "\x02\x01\x06" + // flags
				"\x06\xff\x4c\x00\x01\x02\x03", // manufacturer data
			build: func(a *AdvertisingData) error {
				if err := a.AddFlags(FlagsLEOnlyGeneralDiscoverable); err != nil {
					return err
				}
				return a.AddManufacturerData([]byte{0x4c, 0x00, 1, 2, 3})
			},
		},
	}
	for _, tc := range tests {
		var raw AdvertisingData
		if err := tc.build(&raw); err != nil {
			t.Errorf("building %q: %v", tc.raw, err)
			continue
		}
		if string(raw.Bytes()) != tc.raw {
			t.Errorf("expected: %#v\nactual:   %#v\n", tc.raw, string(raw.Bytes()))
		}
	}
}

func TestAdvertisingDataBudget(t *testing.T) {
	var raw AdvertisingData
	if err := raw.AddFlags(FlagsLEOnlyGeneralDiscoverable); err != nil {
		t.Fatal(err)
	}
	frame := EncodeIBeacon(CompanyIDApple, BeaconUUID{}, 1, 2, -53)
	if err := raw.AddManufacturerData(frame); err != nil {
		t.Fatal(err)
	}
	if raw.Len() != 30 {
		t.Errorf("expected 30 bytes, got %d", raw.Len())
	}
	if err := raw.AddTxPower(4); !errors.Is(err, ErrAdvertisingDataOverflow) {
		t.Errorf("expected overflow, got %v", err)
	}
	if raw.Len() != 30 {
		t.Errorf("failed add modified the buffer: %d bytes", raw.Len())
	}

	companyID, data, ok := raw.ManufacturerData()
	if !ok || companyID != CompanyIDApple || !bytes.Equal(data, frame[2:]) {
		t.Errorf("ManufacturerData() = %04x, % X, %t", companyID, data, ok)
	}
}

func TestAdvertisingDataShortenedName(t *testing.T) {
	var raw AdvertisingData
	name := "an environmental sensor node name"
	if err := raw.AddLocalName(name); err != nil {
		t.Fatal(err)
	}
	got, ok := raw.LocalName()
	if !ok || got != name[:29] {
		t.Errorf("expected shortened name %q, got %q", name[:29], got)
	}
	if _, ok := raw.Element(ADTypeShortName); !ok {
		t.Error("expected a shortened name structure")
	}
	if err := raw.AddLocalName("x"); !errors.Is(err, ErrAdvertisingDataOverflow) {
		t.Errorf("expected overflow on full buffer, got %v", err)
	}
}

func TestAdvertisingDataServiceUUIDs(t *testing.T) {
	var raw AdvertisingData
	custom := TextUUID("EPSG-GTI-SERV-01")
	if err := raw.AddServiceUUID(ServiceUUIDBattery); err != nil {
		t.Fatal(err)
	}
	if err := raw.AddServiceUUID(custom); err != nil {
		t.Fatal(err)
	}
	uuids := raw.ServiceUUIDs()
	if len(uuids) != 2 || uuids[0] != ServiceUUIDBattery || uuids[1] != custom {
		t.Errorf("unexpected UUIDs %v", uuids)
	}
}

func TestAdvertisingInterval(t *testing.T) {
	if d := DefaultAdvertisingInterval.Duration(); d != 62500*time.Microsecond {
		t.Errorf("expected 62.5ms, got %v", d)
	}
	tests := []struct {
		d        time.Duration
		interval AdvertisingInterval
	}{
		{62500 * time.Microsecond, DefaultAdvertisingInterval},
		{20 * time.Millisecond, 32},
		{20300 * time.Microsecond, 32},
		{20400 * time.Microsecond, 33},
		{10240 * time.Millisecond, 16384},
	}
	for _, tc := range tests {
		if i := NewAdvertisingInterval(tc.d); i != tc.interval {
			t.Errorf("NewAdvertisingInterval(%v) = %d, expected %d", tc.d, i, tc.interval)
		}
	}
}
