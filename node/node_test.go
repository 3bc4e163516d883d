package node

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/blang/semver"
	"github.com/sirupsen/logrus"

	"github.com/epsg-gti/envbeacon"
	"github.com/epsg-gti/envbeacon/sensor"
)

type fixedSource sensor.Readings

func (f fixedSource) Read() (sensor.Readings, error) {
	return sensor.Readings(f), nil
}

var testReadings = fixedSource{CO2: 1450, Temperature: 215, Ozone: 0.65, Battery: 80}

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestNode(t *testing.T, opts ...Option) (*Node, *envbeacon.MockStack) {
	t.Helper()
	stack := envbeacon.NewMockStack()
	log := testLogger()
	periph := envbeacon.NewPeripheral(stack, envbeacon.Identity{
		Name:      "rocio",
		CompanyID: envbeacon.CompanyIDApple,
		TxPower:   4,
	}, envbeacon.WithLogger(log))
	pub := NewPublisher(periph, WithHold(0), WithPublisherLogger(log))
	opts = append([]Option{WithNodeLogger(log)}, opts...)
	n := New(periph, pub, testReadings, opts...)
	if err := n.Start(); err != nil {
		t.Fatal(err)
	}
	return n, stack
}

func TestNodeStartActivatesServices(t *testing.T) {
	n, stack := newTestNode(t, WithFirmware(semver.MustParse("1.2.3")))
	for _, s := range []*envbeacon.Service{n.env.Service, n.battery.Service, n.info.Service} {
		committed, handles := stack.Committed(s.Handle())
		if !s.Active() || !committed || len(handles) != len(s.Characteristics()) {
			t.Errorf("service %s: active %t, committed %t with %d characteristics", s.UUID(), s.Active(), committed, len(handles))
		}
	}
	if got := string(stack.CharacteristicValue(n.info.Firmware.Handle())); got != "1.2.3" {
		t.Errorf("unexpected firmware revision %q", got)
	}
	if got := string(stack.CharacteristicValue(n.info.Manufacturer.Handle())); got != DefaultManufacturer {
		t.Errorf("unexpected manufacturer %q", got)
	}
}

func TestNodeStepAdvertisesReadings(t *testing.T) {
	n, stack := newTestNode(t, WithBursts(false))
	if err := n.Step(context.Background()); err != nil {
		t.Fatal(err)
	}
	adv := stack.AdvertisingData()
	companyID, data, ok := adv.ManufacturerData()
	if !ok || companyID != envbeacon.CompanyIDApple {
		t.Fatalf("no manufacturer data in % X", adv.Bytes())
	}
	counter, r, err := DecodeReadings(data)
	if err != nil {
		t.Fatal(err)
	}
	if counter != 0 || r != sensor.Readings(testReadings) {
		t.Errorf("unexpected readings %d %+v", counter, r)
	}

	n.Step(context.Background())
	adv = stack.AdvertisingData()
	_, data, _ = adv.ManufacturerData()
	if counter, _, _ := DecodeReadings(data); counter != 1 {
		t.Errorf("expected counter 1, got %d", counter)
	}
}

func TestNodeStepBursts(t *testing.T) {
	n, stack := newTestNode(t)
	stack.ResetCalls()
	if err := n.Step(context.Background()); err != nil {
		t.Fatal(err)
	}
	var frames []int
	for _, call := range stack.CallLog() {
		switch call {
		case "AddAdvertisingData(0xff, 25)":
			frames = append(frames, 25)
		case "AddAdvertisingData(0xff, 11)":
			frames = append(frames, 11)
		}
	}
	expected := []int{25, 25, 25, 25, 11}
	if len(frames) != len(expected) {
		t.Fatalf("expected frames %v, got %v", expected, frames)
	}
	for i := range frames {
		if frames[i] != expected[i] {
			t.Errorf("frame %d: expected %d bytes, got %d", i, expected[i], frames[i])
		}
	}
}

func TestNodeStepNotifiesWhenConnected(t *testing.T) {
	n, stack := newTestNode(t)
	stack.Connect(1, envbeacon.MAC{1, 2, 3, 4, 5, 6})
	if !n.Connected() {
		t.Fatal("connection not observed")
	}
	stack.ResetCalls()
	if err := n.Step(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, call := range stack.CallLog() {
		if call == "StartAdvertising(0)" {
			t.Error("advertised while connected")
		}
	}
	tests := []struct {
		char     *envbeacon.Characteristic
		expected []byte
	}{
		{n.env.CO2, []byte{0xAA, 0x05}},
		{n.env.Temperature, []byte{0xD7, 0x00}},
		{n.env.Ozone, []byte{0x8A, 0x02}},
		{n.battery.Level, []byte{80}},
	}
	for _, tc := range tests {
		got := stack.Notifications(tc.char.Handle())
		if len(got) != 1 || !bytes.Equal(got[0], tc.expected) {
			t.Errorf("%s: expected % X, got %v", tc.char.UUID(), tc.expected, got)
		}
	}

	stack.Disconnect(1, envbeacon.ReasonRemoteUserTerminated)
	if n.Connected() {
		t.Error("disconnection not observed")
	}
}

func TestNodeConnectedWithTwoCentrals(t *testing.T) {
	n, stack := newTestNode(t)
	stack.Connect(1, envbeacon.MAC{1})
	stack.Connect(2, envbeacon.MAC{2})
	stack.Disconnect(1, envbeacon.ReasonRemoteUserTerminated)
	if !n.Connected() {
		t.Error("second central still connected")
	}
	stack.Disconnect(2, envbeacon.ReasonRemoteUserTerminated)
	if n.Connected() {
		t.Error("no central left")
	}
}

func TestNewBatteryService(t *testing.T) {
	s, err := NewBatteryService()
	if err != nil {
		t.Fatal(err)
	}
	p := s.Level.Params()
	if p.UUID != envbeacon.CharacteristicUUIDBatteryLevel || p.MaxLen != 1 ||
		p.Properties != envbeacon.PropertyRead|envbeacon.PropertyNotify {
		t.Errorf("unexpected battery level characteristic %+v", p)
	}
}

type countingCalibrator struct {
	calls int
}

func (c *countingCalibrator) Calibrate(samples int) error {
	c.calls++
	return nil
}

func TestNodeCommands(t *testing.T) {
	cal := &countingCalibrator{}
	n, stack := newTestNode(t, WithCalibrator(cal))
	write := func(value []byte) {
		t.Helper()
		if err := stack.RemoteWrite(1, n.env.Command.Handle(), value); err != nil {
			t.Fatal(err)
		}
	}

	write(Command{Op: OpSetInterval, Arg: 30}.Bytes())
	write(Command{Op: OpCalibrate}.Bytes())
	write([]byte{0x7F}) // unknown, dropped
	if n.drain() {
		t.Error("no publication was requested")
	}
	if n.Interval() != 30*time.Second {
		t.Errorf("expected 30s interval, got %v", n.Interval())
	}
	if cal.calls != 1 {
		t.Errorf("expected one calibration, got %d", cal.calls)
	}

	write(Command{Op: OpPublishNow}.Bytes())
	if !n.drain() {
		t.Error("publication not requested")
	}
}

func TestNodeEnqueueDoesNotBlock(t *testing.T) {
	n, _ := newTestNode(t)
	for i := 0; i < commandQueueLen; i++ {
		if !n.Enqueue(Command{Op: OpPublishNow}) {
			t.Fatalf("command %d rejected", i)
		}
	}
	if n.Enqueue(Command{Op: OpPublishNow}) {
		t.Error("full queue accepted a command")
	}
}

func TestNodeRunStopsOnCancel(t *testing.T) {
	stack := envbeacon.NewMockStack()
	log := testLogger()
	periph := envbeacon.NewPeripheral(stack, envbeacon.Identity{Name: "rocio", CompanyID: envbeacon.CompanyIDApple}, envbeacon.WithLogger(log))
	n := New(periph, NewPublisher(periph, WithHold(0), WithPublisherLogger(log)), testReadings,
		WithNodeLogger(log), WithInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := n.Run(ctx); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if stack.IsAdvertising() {
		t.Error("still advertising after Run returned")
	}
}
