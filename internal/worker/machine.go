package worker

import (
	"log"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/hallen/timefuse/internal/protocol"
)

// DefaultTimeout bounds every connect and every read, per spec.md §5
// ("All socket connects are bounded by a single TIMEOUT constant
// (default 5000 ms)").
const DefaultTimeout = 5000 * time.Millisecond

// DefaultSleep is the CONNECT_TO_MASTER retry pause, matching the
// original worker_node's sleep_time of 400ms.
const DefaultSleep = 400 * time.Millisecond

// Dispatcher routes one request line from a paired client to a
// response line. It is satisfied by internal/dispatch.Dispatcher.
type Dispatcher interface {
	Dispatch(line string) (response string, closeConn bool)
}

// Machine drives one worker's connection lifecycle. Each cycle through
// CONNECT_TO_MASTER..DISCONNECT_CLIENT serves exactly one client.
type Machine struct {
	Host       string // local address to dial out from; empty picks any
	Port       int    // local port to dial out from; 0 picks any
	MasterHost string
	MasterPort int
	Timeout    time.Duration
	SleepTime  time.Duration
	Dispatcher Dispatcher

	state State
	stop  int32

	masterConn net.Conn
	clientConn net.Conn
	peerHost   string
	peerPort   string
}

// NewMachine builds a machine with the spec's default timeouts.
func NewMachine(masterHost string, masterPort int, dispatcher Dispatcher) *Machine {
	return &Machine{
		MasterHost: masterHost,
		MasterPort: masterPort,
		Timeout:    DefaultTimeout,
		SleepTime:  DefaultSleep,
		Dispatcher: dispatcher,
		state:      ConnectToMaster,
	}
}

// dialer returns the net.Dialer every outbound connect uses, bound to
// Host/Port (spec.md §6's worker --host/--port) when either is set.
func (m *Machine) dialer() net.Dialer {
	d := net.Dialer{Timeout: m.Timeout}
	if m.Host != "" || m.Port != 0 {
		d.LocalAddr = &net.TCPAddr{IP: net.ParseIP(m.Host), Port: m.Port}
	}
	return d
}

// State reports the machine's current state, mainly for tests and logs.
func (m *Machine) State() State { return m.state }

// Stop latches the halt flag. The next state boundary observes it and
// transitions to Stopped, closing any open sockets first. Termination
// is guaranteed within one SleepTime plus one outstanding I/O timeout.
func (m *Machine) Stop() { atomic.StoreInt32(&m.stop, 1) }

func (m *Machine) stopRequested() bool { return atomic.LoadInt32(&m.stop) == 1 }

// Run drives the state machine until Stop is called, then returns.
func (m *Machine) Run() {
	for {
		if m.stopRequested() {
			m.closeAll()
			m.state = Stopped
		}

		switch m.state {
		case ConnectToMaster:
			m.state = m.connectToMaster()
		case WaitForJob:
			m.state = m.waitForJob()
		case ConnectToClient:
			m.state = m.connectToClient()
		case ProcessJob:
			m.state = m.processJob()
		case DisconnectClient:
			m.state = m.disconnectClient()
		case Stopped:
			return
		}
	}
}

func (m *Machine) closeAll() {
	if m.masterConn != nil {
		m.masterConn.Close()
		m.masterConn = nil
	}
	if m.clientConn != nil {
		m.clientConn.Close()
		m.clientConn = nil
	}
}

func (m *Machine) connectToMaster() State {
	addr := net.JoinHostPort(m.MasterHost, strconv.Itoa(m.MasterPort))
	d := m.dialer()
	conn, err := d.Dial("tcp", addr)
	if err != nil {
		log.Printf("worker: CONNECT_TO_MASTER: %v\n", err)
		time.Sleep(m.SleepTime)
		return ConnectToMaster
	}
	m.masterConn = conn

	lc := protocol.NewLineConn(conn, 0)
	if err := lc.WriteLine("REQUEST_CLIENT"); err != nil {
		log.Printf("worker: CONNECT_TO_MASTER write: %v\n", err)
		return DisconnectClient
	}
	return WaitForJob
}

func (m *Machine) waitForJob() State {
	lc := protocol.NewLineConn(m.masterConn, 0)
	for {
		line, err := lc.ReadLine(m.Timeout)
		if err != nil {
			log.Printf("worker: WAIT_FOR_JOB: %v\n", err)
			m.masterConn.Close()
			m.masterConn = nil
			return ConnectToMaster
		}
		fields := protocol.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch protocol.ParseVerb(fields[0]) {
		case protocol.PAIR_INFO:
			host, port, ok := protocol.ParsePairInfo(fields[1:])
			if !ok {
				continue
			}
			m.peerHost, m.peerPort = host, port
			m.masterConn.Close()
			m.masterConn = nil
			return ConnectToClient
		case protocol.PAIR_ABORT:
			m.masterConn.Close()
			m.masterConn = nil
			return ConnectToMaster
		default:
			// Ignore protocol noise while waiting for our assignment.
			continue
		}
	}
}

func (m *Machine) connectToClient() State {
	addr := net.JoinHostPort(m.peerHost, m.peerPort)
	d := m.dialer()
	conn, err := d.Dial("tcp", addr)
	if err != nil {
		// Abandoning this pairing is safer than retrying — the client
		// may have already taken another path.
		log.Printf("worker: CONNECT_TO_CLIENT: %v\n", err)
		return ConnectToMaster
	}
	m.clientConn = conn
	return ProcessJob
}

func (m *Machine) processJob() State {
	lc := protocol.NewLineConn(m.clientConn, 0)
	for {
		if m.stopRequested() {
			return DisconnectClient
		}
		line, err := lc.ReadLine(m.Timeout)
		if err != nil {
			return DisconnectClient
		}
		if protocol.ParseVerb(line) == protocol.BYE {
			return DisconnectClient
		}
		response, closeConn := m.Dispatcher.Dispatch(line)
		if err := lc.WriteLine(response); err != nil {
			return DisconnectClient
		}
		if closeConn {
			return DisconnectClient
		}
	}
}

func (m *Machine) disconnectClient() State {
	if m.clientConn != nil {
		m.clientConn.Close()
		m.clientConn = nil
	}
	if m.masterConn != nil {
		m.masterConn.Close()
		m.masterConn = nil
	}
	if m.stopRequested() {
		return Stopped
	}
	return ConnectToMaster
}
