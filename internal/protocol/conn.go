package protocol

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// DefaultMaxLine is the line-size cap spec.md §4.1 requires (64 KiB).
const DefaultMaxLine = 64 * 1024

// LineConn presents one byte-stream socket as a stream of
// newline-terminated text lines. A *LineConn owns exactly one
// underlying net.Conn. Per spec.md §5's single-reader-per-socket rule,
// only one goroutine ever calls ReadLine on a given LineConn over its
// lifetime; QueueDepth/PopLatest only inspect state ReadLine already
// recorded, so any goroutine may call them without a second reader.
//
// Framing rule: a line is everything up to and including the first
// "\r\n" (a bare "\n" is also accepted; a lone "\r" is not a
// terminator). Lines are delivered to the caller of ReadLine in
// arrival order.
type LineConn struct {
	net.Conn
	br      *bufio.Reader
	maxLine int

	mu         sync.Mutex
	pendingTag string // set by Write, consumed by the next ReadLine
	backlog    string
	backlogTag string
	hasBacklog bool
}

// NewLineConn wraps conn with a buffered newline tokenizer. maxLine of
// zero uses DefaultMaxLine.
func NewLineConn(conn net.Conn, maxLine int) *LineConn {
	if maxLine <= 0 {
		maxLine = DefaultMaxLine
	}
	return &LineConn{Conn: conn, br: bufio.NewReader(conn), maxLine: maxLine}
}

// ReadLine blocks (respecting deadline, if non-zero) for the next
// complete line, stripping its terminator. It returns *OversizeLineError
// if the line exceeds the configured cap; the caller must close the
// socket in that case. Every successfully read line also becomes the
// one-entry backlog that QueueDepth/PopLatest report against, tagged
// with whatever match_tag the most recent Write supplied.
func (lc *LineConn) ReadLine(deadline time.Duration) (string, error) {
	if deadline > 0 {
		lc.Conn.SetReadDeadline(time.Now().Add(deadline))
		defer lc.Conn.SetReadDeadline(time.Time{})
	}
	raw, err := lc.br.ReadString('\n')
	if raw == "" && err != nil {
		return "", err
	}
	if len(raw) > lc.maxLine {
		return "", &OversizeLineError{Limit: lc.maxLine}
	}
	line := strings.TrimSuffix(raw, "\n")
	line = strings.TrimSuffix(line, "\r")
	lc.record(line)
	// A line delivered without its terminator means the peer closed
	// mid-line; treat this the same as the read error that follows.
	if err != nil {
		return line, err
	}
	return line, nil
}

// record stores line as the pending backlog entry, stamped with
// whatever match_tag the last Write call attached (if any), then
// clears that pending tag so it isn't reapplied to a later line.
func (lc *LineConn) record(line string) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.backlog = line
	lc.backlogTag = lc.pendingTag
	lc.hasBacklog = true
	lc.pendingTag = ""
}

// WriteLine appends the wire terminator and flushes. It blocks until
// the bytes are handed to the OS or the socket errors.
func (lc *LineConn) WriteLine(line string) error {
	return lc.Write(line, "")
}

// Write pushes line out, per spec.md §4.1's write(socket, bytes,
// match_tag). matchTag, if non-empty, is attached as the correlation
// tag for whatever line ReadLine next pulls off this same socket; a
// caller can then read it back via QueueDepth/PopLatest instead of the
// direct ReadLine return value.
func (lc *LineConn) Write(line, matchTag string) error {
	if !strings.HasSuffix(line, "\r\n") {
		line = line + "\r\n"
	}
	if matchTag != "" {
		lc.mu.Lock()
		lc.pendingTag = matchTag
		lc.mu.Unlock()
	}
	if _, err := lc.Conn.Write([]byte(line)); err != nil {
		return &WriteError{Err: err}
	}
	return nil
}

// QueueDepth returns the count of unconsumed messages: 0 or 1, since
// the backlog is a single most-recent-line slot (spec.md §4.1).
func (lc *LineConn) QueueDepth() int {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.hasBacklog {
		return 1
	}
	return 0
}

// PopLatest returns the most recent unconsumed line and marks it
// consumed, or ("", false) when the backlog is empty.
func (lc *LineConn) PopLatest() (string, bool) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if !lc.hasBacklog {
		return "", false
	}
	line := lc.backlog
	lc.backlog = ""
	lc.backlogTag = ""
	lc.hasBacklog = false
	return line, true
}

// MatchTag returns the match_tag that was in effect when the currently
// pending backlog line was recorded, if any.
func (lc *LineConn) MatchTag() (string, bool) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if !lc.hasBacklog {
		return "", false
	}
	return lc.backlogTag, lc.backlogTag != ""
}

// Endpoint is the bind/dial side of the line-framed transport: it binds
// and listens in server mode, or validates the target address for an
// outbound dial. It hands out no per-connection reader of its own —
// once a socket is accepted or dialed, every read and write on it goes
// through a LineConn built directly on that net.Conn (see
// master/server.go, master/engine.go, worker/machine.go). The rest of
// spec.md §4.1's endpoint contract — write's match_tag, queue_depth,
// pop_latest — lives on LineConn itself rather than on Endpoint, since
// those operations are per-socket state, not per-listener state.
type Endpoint struct {
	maxLine    int
	listener   net.Listener
	serverMode bool
}

// Start binds (serverMode) or validates an outbound target. Bind
// failures return *BindError; unresolvable addresses return
// *ResolveError.
func Start(host string, port int, serverMode bool) (*Endpoint, error) {
	e := &Endpoint{maxLine: DefaultMaxLine, serverMode: serverMode}
	addr := fmt.Sprintf("%s:%d", host, port)
	if serverMode {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, &BindError{Addr: addr, Err: err}
		}
		e.listener = l
	} else if _, err := net.ResolveTCPAddr("tcp", addr); err != nil {
		return nil, &ResolveError{Addr: addr, Err: err}
	}
	return e, nil
}

// Listener exposes the bound net.Listener in server mode; nil otherwise.
func (e *Endpoint) Listener() net.Listener { return e.listener }

// SetMaxLine records n as the endpoint's line-size cap. The endpoint
// builds no LineConns itself, so this value is not applied to any
// socket; each LineConn takes its own cap from NewLineConn.
func (e *Endpoint) SetMaxLine(n int) { e.maxLine = n }

// Close releases the listener, if any.
func (e *Endpoint) Close() error {
	if e.listener != nil {
		return e.listener.Close()
	}
	return nil
}
