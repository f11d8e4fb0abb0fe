// Author: momentics <momentics@gmail.com>

// TestWebSocketHandoffEcho exercises an upgrade-then-handoff: a real
// HTTP/WS handshake runs through gorilla/websocket on both ends, then the
// server's raw fd is handed to a VConnection for the rest of the
// connection's life instead of staying under gorilla's own read/write
// loop. No HandshakeHook is installed on the VConnection.
package vconn_test

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/corenet/vconn/api"
	"github.com/corenet/vconn/fake"
	"github.com/corenet/vconn/iobuf"
	"github.com/corenet/vconn/vconn"
)

type wsContFunc func(event api.EventCode, data any) int

func (f wsContFunc) HandleEvent(event api.EventCode, data any) int { return f(event, data) }

func fdOfNetConn(t *testing.T, c net.Conn) int {
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

// TestWebSocketHandoffEcho upgrades an httptest connection to a WS
// connection via gorilla/websocket, hands the resulting fd to a
// VConnection obtained from AllocVConnection, and checks that raw bytes written after the handshake
// still echo correctly through the I/O core rather than through
// gorilla's own framing loop.
func TestWebSocketHandoffEcho(t *testing.T) {
	nh, err := vconn.NewNetHandler(nil)
	if err != nil {
		t.Skipf("epoll unavailable in this sandbox: %v", err)
	}
	defer nh.Stop()
	go nh.Run()

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	bufPool := fake.NewBufferPool()
	handed := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wsConn, upErr := upgrader.Upgrade(w, r, nil)
		if upErr != nil {
			t.Errorf("server upgrade: %v", upErr)
			return
		}
		raw := wsConn.UnderlyingConn()
		fd := fdOfNetConn(t, raw)

		vc := vconn.AllocVConnection(nh, fd, raw, bufPool, -1, true)
		var echoCont api.Continuation
		echoCont = wsContFunc(func(event api.EventCode, data any) int {
			switch event {
			case api.VCEventReadReady, api.VCEventReadComplete:
				vio, _ := data.(*vconn.VIO)
				if vio == nil {
					return api.EventCont
				}
				reader, _ := vio.Buffer.(api.Reader)
				if reader != nil && reader.ReadAvail() > 0 {
					vc.DoIOWrite(echoCont, int64(reader.ReadAvail()), reader, true)
				}
			}
			return api.EventCont
		})
		vc.AcceptEvent(wsContFunc(func(event api.EventCode, data any) int {
			if event == api.NetEventAccept {
				vc.DoIORead(echoCont, 0, iobuf.NewChain(bufPool, -1))
			}
			return api.EventCont
		}), nh.NewBinding())
		close(handed)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	clientWS, _, dialErr := websocket.DefaultDialer.Dial(wsURL, nil)
	if dialErr != nil {
		t.Fatalf("client dial: %v", dialErr)
	}
	defer clientWS.Close()

	select {
	case <-handed:
	case <-time.After(2 * time.Second):
		t.Fatal("server never handed its connection off to vconn")
	}

	clientConn := clientWS.UnderlyingConn()
	clientConn.SetDeadline(time.Now().Add(2 * time.Second))

	payload := []byte("raw bytes riding a websocket-upgraded connection")
	if _, writeErr := clientConn.Write(payload); writeErr != nil {
		t.Fatalf("client write: %v", writeErr)
	}

	got := make([]byte, len(payload))
	total := 0
	for total < len(got) {
		n, readErr := clientConn.Read(got[total:])
		total += n
		if readErr != nil {
			t.Fatalf("client read: %v", readErr)
		}
	}
	if string(got) != string(payload) {
		t.Fatalf("echo mismatch: got %q want %q", got, payload)
	}
}
