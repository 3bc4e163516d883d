package node

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/epsg-gti/envbeacon"
	"github.com/epsg-gti/envbeacon/sensor"
)

func TestMajor(t *testing.T) {
	tests := []struct {
		id      MeasurementID
		counter uint8
		major   uint16
	}{
		{MeasurementCO2, 0, 0x0B00},
		{MeasurementCO2, 7, 0x0B07},
		{MeasurementTemperature, 255, 0x0CFF},
		{MeasurementNoise, 1, 0x0D01},
	}
	for _, tc := range tests {
		if got := Major(tc.id, tc.counter); got != tc.major {
			t.Errorf("Major(%s, %d) = %#04x, expected %#04x", tc.id, tc.counter, got, tc.major)
		}
	}
}

func TestEncodeReadings(t *testing.T) {
	r := sensor.Readings{CO2: 1450, Temperature: -45, Ozone: 1.2, Battery: 15}
	b := EncodeReadings(9, r)
	expected := []byte{0x01, 0x09, 0x05, 0xAA, 0xFF, 0xD3, 0x04, 0xB0, 0x0F}
	if !bytes.Equal(b, expected) {
		t.Errorf("expected % X, got % X", expected, b)
	}
	if len(b) > envbeacon.MaxMultiFieldData {
		t.Errorf("readings do not fit a multi-field frame")
	}

	counter, got, err := DecodeReadings(b)
	if err != nil || counter != 9 || got != r {
		t.Errorf("DecodeReadings() = %d, %+v, %v", counter, got, err)
	}
	if _, _, err := DecodeReadings(b[:4]); err != errReadingsFrame {
		t.Errorf("expected errReadingsFrame, got %v", err)
	}
}

func TestPublisherPublish(t *testing.T) {
	n, stack := newTestNode(t)
	pub := n.pub
	if err := pub.PublishCO2(context.Background(), 1450, 7); err != nil {
		t.Fatal(err)
	}
	adv := stack.AdvertisingData()
	companyID, data, ok := adv.ManufacturerData()
	if !ok {
		t.Fatal("no frame on air")
	}
	frame := append([]byte{byte(companyID), byte(companyID >> 8)}, data...)
	b, err := envbeacon.DecodeIBeacon(frame)
	if err != nil {
		t.Fatal(err)
	}
	if b.Major != 0x0B07 || b.Minor != 1450 || b.MeasuredPower != DefaultMeasuredPower ||
		b.UUID != envbeacon.BeaconUUIDFromText(DefaultBeaconText) {
		t.Errorf("unexpected beacon %+v", b)
	}
	if string(b.UUID[:]) != "A3-YORP-ITG-GSPE" {
		t.Errorf("unexpected beacon UUID %q", b.UUID[:])
	}

	pub.PublishTemperature(context.Background(), -40, 8)
	adv = stack.AdvertisingData()
	_, data, _ = adv.ManufacturerData()
	frame = append([]byte{byte(companyID), byte(companyID >> 8)}, data...)
	if b, _ := envbeacon.DecodeIBeacon(frame); b.Major != 0x0C08 || int16(b.Minor) != -40 {
		t.Errorf("unexpected temperature beacon %+v", b)
	}
}

func TestPublisherHold(t *testing.T) {
	n, stack := newTestNode(t)
	pub := NewPublisher(n.periph, WithHold(time.Millisecond), WithPublisherLogger(testLogger()))
	if err := pub.PublishBattery(context.Background(), 80, 1); err != nil {
		t.Fatal(err)
	}
	if stack.IsAdvertising() {
		t.Error("advertising after the hold time")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pub = NewPublisher(n.periph, WithHold(time.Hour), WithPublisherLogger(testLogger()))
	if err := pub.PublishOzone(ctx, 0.65, 2); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if stack.IsAdvertising() {
		t.Error("advertising after cancellation")
	}
}
