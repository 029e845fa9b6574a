package master

import (
	"log"
	"net"
	"time"

	"github.com/hallen/timefuse/internal/protocol"
	"github.com/hallen/timefuse/internal/session"
)

// greetingTimeout bounds how long a freshly accepted socket has to
// announce itself before the master gives up on it.
const greetingTimeout = 5 * time.Second

// Server is the master's TCP accept loop: it classifies each inbound
// connection as CLIENT or WORKER by its greeting line and hands it to
// the Engine. Grounded on sched/sched.go's Serve/HandleConnection.
type Server struct {
	Engine   *Engine
	listener net.Listener
}

// Listen binds host:port. Bind failures are fatal at master init per
// spec.md §7.
func Listen(host string, port int) (*Server, error) {
	ep, err := protocol.Start(host, port, true)
	if err != nil {
		return nil, err
	}
	return &Server{Engine: NewEngine(), listener: ep.Listener()}, nil
}

// Serve accepts connections until the listener is closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		go s.handleAccept(conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) handleAccept(conn net.Conn) {
	lc := protocol.NewLineConn(conn, 0)
	line, err := lc.ReadLine(greetingTimeout)
	if err != nil {
		if _, ok := err.(*protocol.OversizeLineError); !ok {
			log.Printf("master: %v: greeting read from %s: %v\n", protocol.ErrSocket, conn.RemoteAddr(), err)
		}
		conn.Close()
		return
	}

	fields := protocol.Fields(line)
	if len(fields) == 0 {
		log.Printf("master: %v: empty greeting from %s\n", protocol.ErrProtocol, conn.RemoteAddr())
		conn.Close()
		return
	}

	switch protocol.ParseVerb(fields[0]) {
	case protocol.REQUEST_WORKER:
		c := session.NewConnection(conn, session.RoleClient)
		s.Engine.OnClientConnect(c)
		go s.watchDisconnect(c)
	case protocol.REQUEST_CLIENT:
		w := session.NewConnection(conn, session.RoleWorker)
		s.Engine.OnWorkerConnect(w)
		go s.watchDisconnect(w)
	default:
		log.Printf("master: %v: unrecognized greeting %q from %s\n", protocol.ErrProtocol, line, conn.RemoteAddr())
		conn.Close()
	}
}

// watchDisconnect blocks on a zero-deadline read until the peer closes
// or errors, then reports the disconnect to the engine. This is the
// I/O dispatcher half of spec.md §5's two-thread model: it never blocks
// the pairing thread, only its own goroutine.
func (s *Server) watchDisconnect(c *session.Connection) {
	buf := make([]byte, 1)
	for {
		c.Conn().SetReadDeadline(time.Time{})
		_, err := c.Conn().Read(buf)
		if err != nil {
			c.MarkDead()
			s.Engine.OnDisconnect(c)
			return
		}
		// A byte from a queued, unpaired connection is unexpected
		// protocol noise; ignore it and keep watching for closure.
	}
}
