// Package master implements the pairing engine: the two intake queues
// and the matching loop that dequeues one client and one worker at a
// time and introduces them. Grounded on master_node.cpp's run() loop
// from the original source this design was distilled from.
package master

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/hallen/timefuse/internal/protocol"
	"github.com/hallen/timefuse/internal/queue"
	"github.com/hallen/timefuse/internal/session"
	"github.com/hallen/timefuse/internal/stat"
)

// pollInterval is the pairing loop's inter-poll sleep when either queue
// is empty (spec.md §4.2 step 1: "≈100 ms is sufficient").
const pollInterval = 100 * time.Millisecond

// Engine owns the two intake queues, the session registry, and the
// matching goroutine.
type Engine struct {
	clients  *queue.IntakeQueue
	workers  *queue.IntakeQueue
	sessions *session.Registry
	stat     *stat.PairStat

	stop     chan struct{}
	stopOnce sync.Once
}

// NewEngine builds an idle engine; call Run to start the matching loop.
func NewEngine() *Engine {
	return &Engine{
		clients:  queue.New(1 << 20),
		workers:  queue.New(1 << 20),
		sessions: session.NewRegistry(),
		stat:     stat.NewPairStat(),
		stop:     make(chan struct{}),
	}
}

// Stat exposes the live counters for the admin HTTP surface.
func (e *Engine) Stat() *stat.PairStat { return e.stat }

// OnClientConnect enqueues conn under the client queue's lock and
// releases one client permit (spec.md §4.2).
func (e *Engine) OnClientConnect(conn *session.Connection) {
	e.clients.Enqueue(conn)
	e.stat.ClientsWaiting.Incr()
}

// OnWorkerConnect is the worker-side symmetric of OnClientConnect.
func (e *Engine) OnWorkerConnect(conn *session.Connection) {
	e.workers.Enqueue(conn)
	e.stat.WorkersWaiting.Incr()
}

// OnDisconnect removes conn from whichever queue holds it (by host
// equality) and, if it was already paired, tears down the peer
// backlink so the peer's own socket-closure handler is the sole arbiter
// of freeing the peer (spec.md §4.2/§5).
func (e *Engine) OnDisconnect(conn *session.Connection) {
	switch conn.Role() {
	case session.RoleClient:
		if e.clients.Remove(conn.HostID()) {
			e.stat.ClientsWaiting.Decr()
		}
	case session.RoleWorker:
		if e.workers.Remove(conn.HostID()) {
			e.stat.WorkersWaiting.Decr()
		}
	}
	e.sessions.Drop(conn.HostID())
}

// Stop latches the halt flag; Run returns within one pollInterval plus
// one outstanding queue Acquire.
func (e *Engine) Stop() { e.stopOnce.Do(func() { close(e.stop) }) }

// Run drives the matching loop until Stop is called. It never returns
// on any per-pairing failure — only Stop ends it, per spec.md §4.2
// "Failure semantics: all failures are non-fatal to the engine."
func (e *Engine) Run() {
	for {
		select {
		case <-e.stop:
			return
		default:
		}

		if e.clients.Len() == 0 || e.workers.Len() == 0 {
			select {
			case <-e.stop:
				return
			case <-time.After(pollInterval):
			}
			continue
		}

		e.matchOne()
	}
}

// matchOne performs one dequeue-both-sides-and-pair cycle. It retries
// the same side's dequeue, without touching the other side, when it
// finds a queued connection whose socket has already died — spec.md
// §4.2's dead-entry edge case.
func (e *Engine) matchOne() {
	ctx := context.Background()

	var client *session.Connection
	for client == nil {
		if err := e.clients.Acquire(ctx); err != nil {
			return
		}
		entry, ok := e.clients.Dequeue()
		if !ok {
			return
		}
		c := entry.(*session.Connection)
		e.stat.ClientsWaiting.Decr()
		if !c.IsAlive() {
			c.Close()
			if e.clients.Len() == 0 {
				return
			}
			continue
		}
		client = c
	}

	var worker *session.Connection
	for worker == nil {
		if err := e.workers.Acquire(ctx); err != nil {
			e.abortRequeueClient(client)
			return
		}
		entry, ok := e.workers.Dequeue()
		if !ok {
			e.abortRequeueClient(client)
			return
		}
		w := entry.(*session.Connection)
		e.stat.WorkersWaiting.Decr()
		if !w.IsAlive() {
			w.Close()
			if e.workers.Len() == 0 {
				e.abortRequeueClient(client)
				return
			}
			continue
		}
		worker = w
	}

	e.sessions.Pair(client, worker)
	e.stat.Paired.Incr()

	clientHost, clientPort := splitAddr(client.Conn().RemoteAddr().String())
	workerHost, workerPort := splitAddr(worker.Conn().RemoteAddr().String())

	werr := writeLine(worker, protocol.PairInfoLine(clientHost, clientPort))
	cerr := writeLine(client, protocol.PairInfoLine(workerHost, workerPort))

	if werr != nil || cerr != nil {
		if werr == nil {
			writeLine(worker, protocol.PairAbortLine)
		}
		if cerr == nil {
			writeLine(client, protocol.PairAbortLine)
		}
		e.OnDisconnect(client)
		e.OnDisconnect(worker)
		client.Close()
		worker.Close()
	}
}

// abortRequeueClient re-enqueues a client that was dequeued for pairing
// but found no live worker to pair with, so it isn't silently dropped.
// It rejoins the back of the queue rather than a saved front position;
// clients that arrived after it may now pair first, but no client is
// ever lost.
func (e *Engine) abortRequeueClient(client *session.Connection) {
	if !client.IsAlive() {
		client.Close()
		return
	}
	e.clients.Enqueue(client)
	e.stat.ClientsWaiting.Incr()
}

func writeLine(conn *session.Connection, line string) error {
	lc := protocol.NewLineConn(conn.Conn(), 0)
	return lc.WriteLine(line)
}

// splitAddr breaks a "host:port" remote address into its parts for
// PAIR_INFO. A malformed address (should not occur for a live TCP
// socket) yields port 0, which simply fails the worker's subsequent
// dial — handled the same as any other CONNECT_TO_CLIENT failure.
func splitAddr(addr string) (host string, port int) {
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		return h, 0
	}
	return h, n
}
