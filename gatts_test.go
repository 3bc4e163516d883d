package envbeacon

import (
	"bytes"
	"errors"
	"testing"
)

func TestCharacteristicDefaults(t *testing.T) {
	c := NewCharacteristic("EPSG-GTI-CHAR-01")
	p := c.Params()
	if p.UUID != TextUUID("EPSG-GTI-CHAR-01") {
		t.Errorf("unexpected UUID %s", p.UUID)
	}
	if p.Properties != DefaultCharacteristicProperties || p.ReadPermission != SecurityOpen ||
		p.WritePermission != SecurityNoAccess || p.MaxLen != DefaultCharacteristicMaxLen {
		t.Errorf("unexpected defaults %+v", p)
	}
}

func TestCharacteristicConfigureBeforeActivate(t *testing.T) {
	stack := NewMockStack()
	c := NewCharacteristic("EPSG-GTI-CHAR-01")
	if err := c.Configure(PropertyRead|PropertyNotify, SecurityOpen, SecurityEncryptedNoMITM, 8); err != nil {
		t.Fatal(err)
	}
	svc, _ := stack.DeclareService(TextUUID("EPSG-GTI-SERV-01"))
	if err := c.Activate(stack, svc); err != nil {
		t.Fatal(err)
	}
	if !c.Active() || c.Handle() == 0 {
		t.Errorf("expected active characteristic with a handle, got %t %d", c.Active(), c.Handle())
	}
	if err := c.Configure(PropertyRead, SecurityOpen, SecurityOpen, 20); err != ErrAlreadyActive {
		t.Errorf("expected ErrAlreadyActive, got %v", err)
	}
	if err := c.Activate(stack, svc); err != ErrAlreadyActive {
		t.Errorf("expected ErrAlreadyActive on second activation, got %v", err)
	}
	if c.Properties() != PropertyRead|PropertyNotify {
		t.Errorf("properties changed after activation: %v", c.Properties())
	}
}

func TestCharacteristicActivationError(t *testing.T) {
	stack := NewMockStack()
	c := NewCharacteristic("EPSG-GTI-CHAR-01")
	stack.FailCharacteristic = map[UUID]StackError{c.UUID(): StackErrorNoMem}
	svc, _ := stack.DeclareService(TextUUID("EPSG-GTI-SERV-01"))

	err := c.Activate(stack, svc)
	var aerr *ActivationError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected *ActivationError, got %v", err)
	}
	if aerr.Code() != StackErrorNoMem || aerr.UUID != c.UUID() {
		t.Errorf("unexpected error %+v", aerr)
	}
	if c.Active() {
		t.Error("characteristic active after failed activation")
	}
}

func TestCharacteristicWriteNotify(t *testing.T) {
	stack := NewMockStack()
	c := NewCharacteristicWith("EPSG-GTI-CO2-PPM", PropertyRead|PropertyNotify, SecurityOpen, SecurityNoAccess, 4)
	if _, err := c.Write([]byte{1}); err != ErrNotActive {
		t.Errorf("expected ErrNotActive, got %v", err)
	}
	svc, _ := stack.DeclareService(TextUUID("EPSG-GTI-SERV-01"))
	if err := c.Activate(stack, svc); err != nil {
		t.Fatal(err)
	}

	if n, err := c.Write([]byte{0x05, 0xAA}); err != nil || n != 2 {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	if !bytes.Equal(stack.CharacteristicValue(c.Handle()), []byte{0x05, 0xAA}) {
		t.Errorf("stack holds % X", stack.CharacteristicValue(c.Handle()))
	}
	if _, err := c.Write([]byte{1, 2, 3, 4, 5}); err != ErrValueTooLong {
		t.Errorf("expected ErrValueTooLong, got %v", err)
	}
	if _, err := c.Notify([]byte{0x05, 0xAB}); err != nil {
		t.Fatal(err)
	}
	if n := stack.Notifications(c.Handle()); len(n) != 1 || !bytes.Equal(n[0], []byte{0x05, 0xAB}) {
		t.Errorf("unexpected notifications %v", n)
	}
	if !bytes.Equal(c.Value(), []byte{0x05, 0xAB}) {
		t.Errorf("unexpected local value % X", c.Value())
	}

	ro := NewCharacteristicWith("EPSG-GTI-RO-ONLY", PropertyRead, SecurityOpen, SecurityNoAccess, 4)
	if err := ro.Activate(stack, svc); err != nil {
		t.Fatal(err)
	}
	if _, err := ro.Notify([]byte{1}); err != ErrNoNotify {
		t.Errorf("expected ErrNoNotify, got %v", err)
	}
}

func TestCharacteristicWriteHandler(t *testing.T) {
	stack := NewMockStack()
	c := NewCharacteristicWith("EPSG-GTI-COMMAND", PropertyWrite, SecurityNoAccess, SecurityOpen, 8)
	type write struct {
		conn  Connection
		char  *Characteristic
		value string
	}
	var got []write
	c.SetWriteHandler(func(conn Connection, char *Characteristic, value []byte) {
		got = append(got, write{conn, char, string(value)})
	})
	svc, _ := stack.DeclareService(TextUUID("EPSG-GTI-SERV-01"))
	if err := c.Activate(stack, svc); err != nil {
		t.Fatal(err)
	}
	if err := stack.RemoteWrite(7, c.Handle(), []byte("go")); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].conn != 7 || got[0].char != c || got[0].value != "go" {
		t.Errorf("unexpected writes %+v", got)
	}
}

func TestServiceActivationOrder(t *testing.T) {
	stack := NewMockStack()
	s := NewService("EPSG-GTI-SERV-01")
	chars := []*Characteristic{
		NewCharacteristic("EPSG-GTI-CHAR-01"),
		NewCharacteristic("EPSG-GTI-CHAR-02"),
		NewCharacteristic("EPSG-GTI-CHAR-03"),
	}
	for _, c := range chars {
		s.AddCharacteristic(c)
	}
	if err := s.Activate(stack); err != nil {
		t.Fatal(err)
	}
	expected := []string{
		"DeclareService(" + s.UUID().String() + ")",
		"DeclareCharacteristic(" + chars[0].UUID().String() + ")",
		"DeclareCharacteristic(" + chars[1].UUID().String() + ")",
		"DeclareCharacteristic(" + chars[2].UUID().String() + ")",
		"CommitService(1)",
	}
	checkCalls(t, stack.CallLog(), expected)
	if err := s.Activate(stack); err != ErrAlreadyActive {
		t.Errorf("expected ErrAlreadyActive, got %v", err)
	}
}

func TestServiceActivationContinuesAfterFailure(t *testing.T) {
	stack := NewMockStack()
	s := NewService("EPSG-GTI-SERV-01")
	c1 := NewCharacteristic("EPSG-GTI-CHAR-01")
	c2 := NewCharacteristic("EPSG-GTI-CHAR-02")
	c3 := NewCharacteristic("EPSG-GTI-CHAR-03")
	s.AddCharacteristic(c1)
	s.AddCharacteristic(c2)
	s.AddCharacteristic(c3)
	stack.FailCharacteristic = map[UUID]StackError{c2.UUID(): StackErrorNoResources}

	err := s.Activate(stack)
	var serr *ServiceActivationError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *ServiceActivationError, got %v", err)
	}
	if len(serr.Failed) != 1 || serr.First().UUID != c2.UUID() || serr.First().Code() != StackErrorNoResources {
		t.Errorf("unexpected failures %+v", serr.Failed)
	}
	if !errors.Is(err, StackErrorNoResources) {
		t.Error("stack error not reachable through errors.Is")
	}
	if !c1.Active() || c2.Active() || !c3.Active() {
		t.Errorf("unexpected activation state %t %t %t", c1.Active(), c2.Active(), c3.Active())
	}
	committed, handles := stack.Committed(s.Handle())
	if !committed || len(handles) != 2 {
		t.Errorf("expected committed service with 2 characteristics, got %t %v", committed, handles)
	}
}

func TestServiceDeclarationFailure(t *testing.T) {
	stack := NewMockStack()
	s := NewService("EPSG-GTI-SERV-01")
	c := NewCharacteristic("EPSG-GTI-CHAR-01")
	s.AddCharacteristic(c)
	stack.FailService = map[UUID]StackError{s.UUID(): StackErrorInvalidState}

	err := s.Activate(stack)
	var aerr *ActivationError
	if !errors.As(err, &aerr) || aerr.UUID != s.UUID() || aerr.Code() != StackErrorInvalidState {
		t.Fatalf("unexpected error %v", err)
	}
	if s.Active() || c.Active() {
		t.Error("nothing should be active after a rejected service")
	}
}

func TestServiceCommitFailure(t *testing.T) {
	stack := NewMockStack()
	s := NewService("EPSG-GTI-SERV-01")
	c1 := NewCharacteristic("EPSG-GTI-CHAR-01")
	c2 := NewCharacteristic("EPSG-GTI-CHAR-02")
	s.AddCharacteristic(c1)
	s.AddCharacteristic(c2)
	stack.FailCharacteristic = map[UUID]StackError{c2.UUID(): StackErrorNoMem}
	stack.FailCommit = StackErrorBusy

	err := s.Activate(stack)
	var serr *ServiceActivationError
	if !errors.As(err, &serr) {
		t.Fatalf("expected *ServiceActivationError, got %v", err)
	}
	if serr.Commit == nil || serr.Commit.Code() != StackErrorBusy {
		t.Errorf("commit failure missing: %+v", serr.Commit)
	}
	if len(serr.Failed) != 1 || serr.First().UUID != c2.UUID() {
		t.Errorf("characteristic failures dropped: %+v", serr.Failed)
	}
	if !errors.Is(err, StackErrorBusy) || !errors.Is(err, StackErrorNoMem) {
		t.Error("stack errors not reachable through errors.Is")
	}
	if s.Active() || c1.Active() {
		t.Error("nothing should be active after a failed commit")
	}

	// The stack recovered: the whole service can be activated again.
	stack.FailCommit = nil
	stack.FailCharacteristic = nil
	if err := s.Activate(stack); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if !s.Active() || !c1.Active() || !c2.Active() {
		t.Error("retry did not activate everything")
	}
	committed, handles := stack.Committed(s.Handle())
	if !committed || len(handles) != 2 {
		t.Errorf("expected committed service with 2 characteristics, got %t %v", committed, handles)
	}
}

func checkCalls(t *testing.T, got, expected []string) {
	t.Helper()
	if len(got) != len(expected) {
		t.Fatalf("expected calls\n%q\ngot\n%q", expected, got)
	}
	for i := range got {
		if got[i] != expected[i] {
			t.Errorf("call %d: expected %s, got %s", i, expected[i], got[i])
		}
	}
}
