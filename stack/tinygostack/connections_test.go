package tinygostack

import (
	"testing"

	"github.com/epsg-gti/envbeacon"
)

func TestConnectionTable(t *testing.T) {
	var table connectionTable
	a := table.add("11:22:33:44:55:66")
	b := table.add("AA:BB:CC:DD:EE:FF")
	if a == b || a == 0 || b == 0 {
		t.Fatalf("expected distinct non-zero handles, got %d %d", a, b)
	}
	if again := table.add("11:22:33:44:55:66"); again != a {
		t.Errorf("same peer got a new handle: %d != %d", again, a)
	}

	info, ok := table.find(b)
	if !ok || info.Handle != b || info.Peer != (envbeacon.MAC{0xFF, 0xEE, 0xDD, 0xCC, 0xBB, 0xAA}) {
		t.Errorf("find(%d) = %+v, %t", b, info, ok)
	}

	if h, ok := table.remove("11:22:33:44:55:66"); !ok || h != a {
		t.Errorf("remove returned %d, %t", h, ok)
	}
	if _, ok := table.remove("11:22:33:44:55:66"); ok {
		t.Error("removed the same peer twice")
	}
	if _, ok := table.find(a); ok {
		t.Error("found a removed connection")
	}
	if table.len() != 1 {
		t.Errorf("expected 1 connection, got %d", table.len())
	}
}
