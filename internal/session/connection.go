// Package session holds the connection record and the master-owned
// pairing registry. Per spec.md §9's re-architecture, the client/worker
// cyclic backlink of the original C++ source is replaced by a
// non-owning session id on each Connection; the Registry (session.go)
// is the sole owner of the pair.
package session

import (
	"net"
	"sync/atomic"
)

// Role discriminates the two populations the master serves.
type Role int

const (
	RoleClient Role = iota
	RoleWorker
)

func (r Role) String() string {
	if r == RoleWorker {
		return "worker"
	}
	return "client"
}

// Connection is one accepted or dialed socket. Two Connections are
// equal iff their HostID values are equal, per spec.md §3.
type Connection struct {
	hostID    string
	conn      net.Conn
	role      Role
	sessionID int64 // 0 means unpaired; atomic so the drop race is safe
	alive     int32 // 1 until the socket-watcher goroutine observes closure
}

// NewConnection wraps conn, deriving the host identifier from the
// remote address. There is no way to supply a different host
// identifier.
func NewConnection(conn net.Conn, role Role) *Connection {
	host := conn.RemoteAddr().String()
	return &Connection{hostID: host, conn: conn, role: role, alive: 1}
}

// HostID implements queue.Entry.
func (c *Connection) HostID() string { return c.hostID }

func (c *Connection) Conn() net.Conn { return c.conn }
func (c *Connection) Role() Role     { return c.role }

// SetSession attaches (or, with 0, detaches) the peer session id. Zero
// means unpaired.
func (c *Connection) SetSession(id int64) { atomic.StoreInt64(&c.sessionID, id) }
func (c *Connection) SessionID() int64    { return atomic.LoadInt64(&c.sessionID) }
func (c *Connection) Paired() bool        { return c.SessionID() != 0 }

// Close tears down the socket. Safe to call more than once.
func (c *Connection) Close() error {
	return c.conn.Close()
}

// MarkDead is called by the single goroutine that reads this
// connection's socket (the disconnect watcher) once it observes
// closure. Any other goroutine may cheaply consult IsAlive afterward
// without itself touching the socket.
func (c *Connection) MarkDead() { atomic.StoreInt32(&c.alive, 0) }

// IsAlive reports the last liveness observed by the disconnect watcher.
// A true result is only ever a snapshot — the socket can die immediately
// after this returns — callers that need a hard guarantee must handle
// the write failure that follows instead.
func (c *Connection) IsAlive() bool { return atomic.LoadInt32(&c.alive) == 1 }

// Equal reports host-identifier equality, per spec.md §3.
func (c *Connection) Equal(other *Connection) bool {
	return other != nil && c.hostID == other.hostID
}
