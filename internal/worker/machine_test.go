package worker

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/hallen/timefuse/internal/protocol"
)

type stubDispatcher struct {
	response string
}

func (s *stubDispatcher) Dispatch(line string) (string, bool) {
	if line == "BYE" {
		return "", true
	}
	return s.response, false
}

func splitHostPortInt(t *testing.T, addr string) (string, int) {
	t.Helper()
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		t.Fatal(err)
	}
	return h, port
}

func TestMachineFullCycle(t *testing.T) {
	clientLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer clientLn.Close()
	clientHost, clientPort := splitHostPortInt(t, clientLn.Addr().String())

	masterLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer masterLn.Close()
	masterHost, masterPort := splitHostPortInt(t, masterLn.Addr().String())

	masterDone := make(chan struct{})
	go func() {
		defer close(masterDone)
		conn, err := masterLn.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		lc := protocol.NewLineConn(conn, 0)
		line, err := lc.ReadLine(time.Second)
		if err != nil || line != "REQUEST_CLIENT" {
			t.Errorf("master: except REQUEST_CLIENT, got %q err=%v", line, err)
			return
		}
		lc.WriteLine(protocol.PairInfoLine(clientHost, clientPort))
	}()

	clientDone := make(chan struct{})
	go func() {
		defer close(clientDone)
		conn, err := clientLn.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		lc := protocol.NewLineConn(conn, 0)
		lc.WriteLine("LOGIN alice s3cret")
		resp, err := lc.ReadLine(time.Second)
		if err != nil {
			t.Errorf("client: read response: %v", err)
			return
		}
		if resp != "OK" {
			t.Errorf("client: except OK, got %q", resp)
		}
		lc.WriteLine("BYE")
	}()

	m := NewMachine(masterHost, masterPort, &stubDispatcher{response: "OK"})
	m.Timeout = 2 * time.Second

	runDone := make(chan struct{})
	go func() {
		m.Run()
		close(runDone)
	}()

	<-masterDone
	<-clientDone

	// Give the machine one loop to land back in CONNECT_TO_MASTER after
	// DISCONNECT_CLIENT, then stop it.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if m.State() == ConnectToMaster {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	m.Stop()
	select {
	case <-runDone:
	case <-time.After(3 * time.Second):
		t.Fatal("machine did not stop")
	}
}

func TestConnectToClientFailureReturnsToConnectToMaster(t *testing.T) {
	m := NewMachine("127.0.0.1", 1, &stubDispatcher{})
	m.Timeout = 200 * time.Millisecond
	m.peerHost = "127.0.0.1"
	m.peerPort = "1" // nothing listens here; dial should fail or refuse

	next := m.connectToClient()
	if next != ConnectToMaster {
		t.Fatalf("except: CONNECT_TO_MASTER, got: %s", next)
	}
}

func TestStateStringUnknown(t *testing.T) {
	var s State = 99
	if s.String() != "UNKNOWN" {
		t.Fatalf("except: UNKNOWN, got: %s", s.String())
	}
}
