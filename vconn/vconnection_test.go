// Author: momentics <momentics@gmail.com>

package vconn

import (
	"net"
	"testing"
	"time"

	"github.com/corenet/vconn/api"
	"github.com/corenet/vconn/fake"
	"github.com/corenet/vconn/iobuf"
)

// recordingCont captures every event delivered to it, letting tests
// assert exact sequences without racing a live continuation's own state.
type recordingCont struct {
	events []api.EventCode
	data   []any
}

func (r *recordingCont) HandleEvent(event api.EventCode, data any) int {
	r.events = append(r.events, event)
	r.data = append(r.data, data)
	return api.EventCont
}

func newTestHandler(t *testing.T) *NetHandler {
	t.Helper()
	nh, err := NewNetHandler(nil)
	if err != nil {
		t.Skipf("epoll unavailable in this sandbox: %v", err)
	}
	return nh
}

func socketPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("no loopback network in this sandbox: %v", err)
	}
	defer ln.Close()

	acceptCh := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		acceptCh <- c
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Skipf("dial failed in this sandbox: %v", err)
	}
	server := <-acceptCh
	if server == nil {
		t.Skip("accept failed in this sandbox")
	}
	return server, client
}

func fdOf(t *testing.T, c net.Conn) int {
	t.Helper()
	tc, ok := c.(*net.TCPConn)
	if !ok {
		t.Fatal("expected *net.TCPConn")
	}
	raw, err := tc.SyscallConn()
	if err != nil {
		t.Fatal(err)
	}
	var fd int
	raw.Control(func(f uintptr) { fd = int(f) })
	return fd
}

// TestEchoRoundTrip exercises the 100-byte echo scenario end to end
// through a live epoll fd pair: bytes written by the peer arrive at
// VCEventReadReady/Complete, get queued back out, and the peer reads
// exactly what it sent.
func TestEchoRoundTrip(t *testing.T) {
	nh := newTestHandler(t)
	defer nh.Stop()

	server, client := socketPair(t)
	defer client.Close()

	go nh.Run()

	bufPool := fake.NewBufferPool()
	fd := fdOf(t, server)
	vc := NewVConnection(nh, fd, server, bufPool, -1, true)

	cont := &recordingCont{}
	done := make(chan struct{})

	var echoCont api.Continuation
	echoCont = contFunc(func(event api.EventCode, data any) int {
		cont.HandleEvent(event, data)
		switch event {
		case api.VCEventReadReady, api.VCEventReadComplete:
			vio := data.(*VIO)
			r, _ := vio.Buffer.(api.Reader)
			if r != nil && r.ReadAvail() > 0 {
				vc.DoIOWrite(echoCont, int64(r.ReadAvail()), r, true)
			}
		case api.VCEventWriteComplete:
			close(done)
		}
		return api.EventCont
	})

	if err := vc.populate(nh.NewBinding()); err != nil {
		t.Fatalf("populate: %v", err)
	}
	vc.DoIORead(echoCont, 0, iobuf.NewChain(bufPool, -1))

	payload := []byte("hello vconn, exactly one hundred bytes worth of padding to reach the target length!!................")
	if _, err := client.Write(payload); err != nil {
		t.Fatalf("client write: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echo")
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	got := make([]byte, len(payload))
	if _, err := readFull(client, got); err != nil {
		t.Fatalf("client read: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("echo mismatch: got %q want %q", got, payload)
	}
}

func readFull(c net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := c.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// contFunc adapts a plain function to api.Continuation.
type contFunc func(event api.EventCode, data any) int

func (f contFunc) HandleEvent(event api.EventCode, data any) int { return f(event, data) }

// TestCloseDuringRecursion checks that DoIOClose called from inside a
// continuation's own HandleEvent (recursion > 0) defers the actual
// teardown onto the NetHandler's cop list instead of tearing down inline.
func TestCloseDuringRecursion(t *testing.T) {
	nh := newTestHandler(t)
	defer nh.Stop()

	server, client := socketPair(t)
	defer client.Close()
	defer server.Close()

	bufPool := fake.NewBufferPool()
	fd := fdOf(t, server)
	vc := NewVConnection(nh, fd, server, bufPool, -1, true)
	if err := vc.populate(nh.NewBinding()); err != nil {
		t.Fatalf("populate: %v", err)
	}

	closeSeen := false
	var cont api.Continuation = contFunc(func(event api.EventCode, data any) int {
		if event == api.VCEventReadReady || event == api.VCEventReadComplete {
			closeSeen = true
			vc.DoIOClose(nil)
		}
		return api.EventCont
	})
	vc.DoIORead(cont, 0, iobuf.NewChain(bufPool, -1))

	client.Write([]byte("x"))
	time.Sleep(100 * time.Millisecond)

	vc.mutex.Lock()
	vc.recursion++
	vc.mutex.Unlock()
	vc.netReadIO(nh, nh.Thread())
	vc.mutex.Lock()
	vc.recursion--
	vc.mutex.Unlock()

	if !closeSeen {
		t.Skip("no readiness observed in this sandbox pass")
	}
	nh.mu.Lock()
	onCop := vc.copElem.InList()
	nh.mu.Unlock()
	if !onCop {
		t.Error("expected vc to be deferred onto the cop list while recursion > 0")
	}
}
