package tinygostack

import "github.com/epsg-gti/envbeacon"

// connectionTable maps peer addresses to the connection handles handed out to
// the peripheral. The adapter identifies peers by address only.
type connectionTable struct {
	next  envbeacon.Connection
	conns []connection
}

type connection struct {
	handle envbeacon.Connection
	peer   string
}

func (t *connectionTable) add(peer string) envbeacon.Connection {
	for _, c := range t.conns {
		if c.peer == peer {
			return c.handle
		}
	}
	t.next++
	t.conns = append(t.conns, connection{handle: t.next, peer: peer})
	return t.next
}

func (t *connectionTable) remove(peer string) (envbeacon.Connection, bool) {
	for i, c := range t.conns {
		if c.peer == peer {
			t.conns = append(t.conns[:i], t.conns[i+1:]...)
			return c.handle, true
		}
	}
	return 0, false
}

func (t *connectionTable) find(handle envbeacon.Connection) (envbeacon.ConnectionInfo, bool) {
	for _, c := range t.conns {
		if c.handle == handle {
			mac, _ := envbeacon.ParseMAC(c.peer)
			return envbeacon.ConnectionInfo{Handle: c.handle, Peer: mac}, true
		}
	}
	return envbeacon.ConnectionInfo{}, false
}

func (t *connectionTable) len() int {
	return len(t.conns)
}
