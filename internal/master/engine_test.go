package master

import (
	"net"
	"testing"
	"time"

	"github.com/hallen/timefuse/internal/protocol"
	"github.com/hallen/timefuse/internal/session"
)

// pipePair returns two ends of one loopback TCP connection: local is
// the test's own handle, accepted is what a Server would have handed
// to the engine.
func pipePair(t *testing.T) (local net.Conn, accepted net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	done := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		done <- c
	}()
	local, err = net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	accepted = <-done
	return local, accepted
}

func readPairInfo(t *testing.T, conn net.Conn) (host, port string) {
	t.Helper()
	lc := protocol.NewLineConn(conn, 0)
	line, err := lc.ReadLine(time.Second)
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	fields := protocol.Fields(line)
	if len(fields) == 0 || fields[0] != "PAIR_INFO" {
		t.Fatalf("except: PAIR_INFO line, got: %q", line)
	}
	h, p, ok := protocol.ParsePairInfo(fields[1:])
	if !ok {
		t.Fatalf("malformed PAIR_INFO: %q", line)
	}
	return h, p
}

func TestEngineBasicPair(t *testing.T) {
	clientLocal, clientAccepted := pipePair(t)
	workerLocal, workerAccepted := pipePair(t)
	defer clientLocal.Close()
	defer workerLocal.Close()

	e := NewEngine()
	go e.Run()
	defer e.Stop()

	e.OnClientConnect(session.NewConnection(clientAccepted, session.RoleClient))
	e.OnWorkerConnect(session.NewConnection(workerAccepted, session.RoleWorker))

	workerHost, _ := readPairInfo(t, workerLocal)
	clientHost, _ := readPairInfo(t, clientLocal)

	wantWorkerSeesHost, _, _ := net.SplitHostPort(clientAccepted.RemoteAddr().String())
	wantClientSeesHost, _, _ := net.SplitHostPort(workerAccepted.RemoteAddr().String())

	if workerHost != wantWorkerSeesHost {
		t.Fatalf("worker's PAIR_INFO host: except: %s, got: %s", wantWorkerSeesHost, workerHost)
	}
	if clientHost != wantClientSeesHost {
		t.Fatalf("client's PAIR_INFO host: except: %s, got: %s", wantClientSeesHost, clientHost)
	}

	if got := e.Stat().Paired.Int(); got != 1 {
		t.Fatalf("except: 1 paired, got: %d", got)
	}
}

func TestEngineFIFO(t *testing.T) {
	c1l, c1a := pipePair(t)
	c2l, c2a := pipePair(t)
	w1l, w1a := pipePair(t)
	w2l, w2a := pipePair(t)
	defer c1l.Close()
	defer c2l.Close()
	defer w1l.Close()
	defer w2l.Close()

	e := NewEngine()
	go e.Run()
	defer e.Stop()

	e.OnClientConnect(session.NewConnection(c1a, session.RoleClient))
	e.OnClientConnect(session.NewConnection(c2a, session.RoleClient))
	e.OnWorkerConnect(session.NewConnection(w1a, session.RoleWorker))
	e.OnWorkerConnect(session.NewConnection(w2a, session.RoleWorker))

	w1sees, _ := readPairInfo(t, w1l)
	w2sees, _ := readPairInfo(t, w2l)

	c1Host, _, _ := net.SplitHostPort(c1a.RemoteAddr().String())
	c2Host, _, _ := net.SplitHostPort(c2a.RemoteAddr().String())

	if w1sees != c1Host {
		t.Fatalf("except: W1 paired with C1 (%s), got: %s", c1Host, w1sees)
	}
	if w2sees != c2Host {
		t.Fatalf("except: W2 paired with C2 (%s), got: %s", c2Host, w2sees)
	}
}

// TestEngineDisconnectAfterPairDoesNotCloseThePeer covers spec.md
// §4.2's on_disconnect contract: tearing down a paired connection's
// backlink must not touch the peer's live socket, since the worker
// closes its own master connection immediately after PAIR_INFO
// (internal/worker/machine.go's waitForJob) while the client's master
// connection is still in use.
func TestEngineDisconnectAfterPairDoesNotCloseThePeer(t *testing.T) {
	clientLocal, clientAccepted := pipePair(t)
	workerLocal, workerAccepted := pipePair(t)
	defer clientLocal.Close()
	defer workerLocal.Close()

	e := NewEngine()
	go e.Run()
	defer e.Stop()

	client := session.NewConnection(clientAccepted, session.RoleClient)
	worker := session.NewConnection(workerAccepted, session.RoleWorker)
	e.OnClientConnect(client)
	e.OnWorkerConnect(worker)

	readPairInfo(t, workerLocal)
	readPairInfo(t, clientLocal)

	workerLocal.Close()
	workerAccepted.Close()
	e.OnDisconnect(worker)

	if _, err := clientAccepted.Write([]byte("PING\r\n")); err != nil {
		t.Fatalf("except: client's master connection still open after peer disconnect, got: %v", err)
	}
}

func TestEngineDisconnectBeforeMatch(t *testing.T) {
	c1l, c1a := pipePair(t)
	c2l, c2a := pipePair(t)
	w1l, w1a := pipePair(t)
	defer c2l.Close()
	defer w1l.Close()

	e := NewEngine()

	c1 := session.NewConnection(c1a, session.RoleClient)
	c2 := session.NewConnection(c2a, session.RoleClient)
	e.OnClientConnect(c1)
	e.OnClientConnect(c2)

	// Simulate c1 dying between accept and match: the watcher would
	// normally call this after observing the read error.
	c1l.Close()
	c1a.Close()
	c1.MarkDead()

	go e.Run()
	defer e.Stop()

	e.OnWorkerConnect(session.NewConnection(w1a, session.RoleWorker))

	host, _ := readPairInfo(t, w1l)
	c2Host, _, _ := net.SplitHostPort(c2a.RemoteAddr().String())
	if host != c2Host {
		t.Fatalf("except: worker paired with C2 (%s) after C1 died, got: %s", c2Host, host)
	}
}
