// File: vconn/vconnection.go
// Author: momentics <momentics@gmail.com>
//
// VConnection is the per-socket state machine: one read NetState,
// one write NetState, a single mutex serializing all mutation, and the
// bookkeeping a NetHandler needs to schedule it. Exactly one goroutine —
// whichever currently owns its NetHandler — may run I/O against it; every
// other goroutine reaches it only through do_io_read/do_io_write/reenable/
// do_io_close, all of which are safe to call from any thread.

package vconn

import (
	"net"
	"sync"
	"time"
	"unsafe"

	"github.com/corenet/vconn/api"
	"github.com/corenet/vconn/iobuf"
)

// shutdownFlags is a small bitmask tracking which half(s) of the
// connection Shutdown has already torn down, mirroring f.shutdown from
// the underlying socket's shutdown state with an explicit enum rather
// than raw bits scattered across an anonymous struct.
type shutdownFlags int

const (
	shutdownNone shutdownFlags = 0
	shutdownRead shutdownFlags = 1 << iota
	shutdownWrite
)

// oobState tracks the single in-flight out-of-band send a VConnection may
// have outstanding at a time.
type oobState struct {
	cont    api.Continuation
	data    []byte
	sent    int
	timer   *time.Timer
	pending bool
}

// VConnection is the core virtual connection: a socket plus the read and
// write NetStates multiplexed over it.
type VConnection struct {
	mutex sync.Mutex

	fd         int
	con        net.Conn // kept for Close/addr plumbing; raw fd drives I/O
	localAddr  net.Addr
	remoteAddr net.Addr

	read  NetState
	write NetState

	nh     *NetHandler
	thread *Thread
	ep     api.PollBinding

	openElem elem
	copElem  elem

	closed    api.CloseState
	recursion int

	inactivityTimeoutIn time.Duration
	activeTimeoutIn     time.Duration

	nextInactivityTimeoutAt time.Time
	nextActivityTimeoutAt   time.Time

	lerrno int

	shutdown shutdownFlags

	oob *oobState

	handshake HandshakeHook

	originTrace     bool
	fromAcceptThread bool

	bufPool api.BufferPool
	numaNode int
}

// vcToUserData and vcFromUserData round-trip a *VConnection through the
// uintptr userData slot a PollBinding/reactor hands back from Wait,
// auditable pair of conversions instead of an unchecked cast.
func vcToUserData(vc *VConnection) uintptr { return uintptr(unsafe.Pointer(vc)) }

func vcFromUserData(p uintptr) *VConnection {
	if p == 0 {
		return nil
	}
	return (*VConnection)(unsafe.Pointer(p))
}

// NewVConnection wraps an already-open net.Conn exposing a raw fd (via
// the syscall.Conn contract) into a VConnection owned by nh. AcceptEvent
// and ConnectUp share this constructor: callers tell
// it whether the fd came from an accept loop via fromAcceptThread, which
// selects which allocator tier free() returns it to.
func NewVConnection(nh *NetHandler, fd int, con net.Conn, bufPool api.BufferPool, numaNode int, fromAcceptThread bool) *VConnection {
	vc := &VConnection{
		fd:               fd,
		con:              con,
		nh:               nh,
		thread:           nh.Thread(),
		bufPool:          bufPool,
		numaNode:         numaNode,
		fromAcceptThread: fromAcceptThread,
	}
	vc.openElem.owner = vc
	vc.copElem.owner = vc
	vc.read.vc, vc.read.dir = vc, DirRead
	vc.write.vc, vc.write.dir = vc, DirWrite
	vc.read.le.owner, vc.write.le.owner = vc, vc
	if con != nil {
		vc.localAddr = con.LocalAddr()
		vc.remoteAddr = con.RemoteAddr()
	}
	return vc
}

// populate registers vc's fd against its NetHandler's poller and links it
// onto the open list, the step shared by the accept and connect paths
// before either ever drives a byte of traffic.
func (vc *VConnection) populate(ep api.PollBinding) error {
	vc.ep = ep
	if err := ep.Start(vc.fd, api.InterestRead|api.InterestWrite, vcToUserData(vc)); err != nil {
		return err
	}
	vc.nh.AddOpen(vc)
	return nil
}

// AcceptEvent finishes setting up a VConnection handed to this NetHandler
// from an accept loop and delivers NetEventAccept to cont.
func (vc *VConnection) AcceptEvent(cont api.Continuation, ep api.PollBinding) int {
	if err := vc.populate(ep); err != nil {
		return cont.HandleEvent(api.NetEventOpenFailed, api.Errno(vc.setLerrno(err)))
	}
	return cont.HandleEvent(api.NetEventAccept, vc)
}

// ConnectUp finishes setting up a VConnection for an actively-initiated
// connection and delivers NetEventOpen, or NetEventOpenFailed on error.
func (vc *VConnection) ConnectUp(cont api.Continuation, ep api.PollBinding) int {
	if err := vc.populate(ep); err != nil {
		return cont.HandleEvent(api.NetEventOpenFailed, api.Errno(vc.setLerrno(err)))
	}
	return cont.HandleEvent(api.NetEventOpen, vc)
}

// continuationMutex picks the mutex a VIO handed to cont should be locked
// under: cont's own mutex when it declares one via MutexedContinuation,
// otherwise vc's own lock. Letting several VConnections' continuations
// share one mutex is what the try-lock/lock-swap recovery in
// deliverRead/deliverWrite/mainEvent exists to serialize against.
func (vc *VConnection) continuationMutex(cont api.Continuation) *sync.Mutex {
	if mc, ok := cont.(api.MutexedContinuation); ok {
		if m := mc.ContinuationMutex(); m != nil {
			return m
		}
	}
	return &vc.mutex
}

func (vc *VConnection) setLerrno(err error) int {
	if err == nil {
		vc.lerrno = 0
		return 0
	}
	vc.lerrno = -1
	return vc.lerrno
}

// DoIORead arms the read side of vc: nbytes is the total this VIO should
// move before reporting READ_COMPLETE (0 means until EOS), buf is where
// bytes land. A nil buf disables the read side instead of arming it — the
// caller has nowhere to put bytes yet, mirroring the original's
// buffer.clear(); disable_read(this). Safe to call from any thread; takes
// vc.mutex.
func (vc *VConnection) DoIORead(cont api.Continuation, nbytes int64, buf api.Writer) *VIO {
	vc.mutex.Lock()
	defer vc.mutex.Unlock()

	vc.read.VIO = VIO{
		Op:     OpRead,
		NBytes: nbytes,
		Cont:   cont,
		Mutex:  vc.continuationMutex(cont),
		Buffer: buf,
		ns:     &vc.read,
	}
	if buf == nil {
		vc.read.Enabled = false
		return &vc.read.VIO
	}
	vc.read.Enabled = true
	vc.touchActivity()
	vc.reenableLocked(&vc.read)
	return &vc.read.VIO
}

// DoIOWrite arms the write side of vc: nbytes is the total to move out of
// reader before reporting WRITE_COMPLETE.
func (vc *VConnection) DoIOWrite(cont api.Continuation, nbytes int64, reader api.Reader, owner bool) *VIO {
	vc.mutex.Lock()
	defer vc.mutex.Unlock()

	vc.write.VIO = VIO{
		Op:     OpWrite,
		NBytes: nbytes,
		Cont:   cont,
		Mutex:  vc.continuationMutex(cont),
		Reader: reader,
		ns:     &vc.write,
	}
	vc.write.Enabled = true
	vc.touchActivity()
	vc.reenableLocked(&vc.write)
	return &vc.write.VIO
}

// DoIOClose tears down vc in a single call: err == nil requests a clean
// close, non-nil an abort with lerrno set. Both directions are disabled
// and their VIOs cleared immediately. Closes inline if the calling
// goroutine isn't already inside a HandleEvent callback on this
// connection (recursion == 0), otherwise defers onto the cop list for the
// next Run pass to finish. A second call on an already-closing vc is a
// no-op: closed is monotone once it leaves Open.
func (vc *VConnection) DoIOClose(err error) {
	vc.mutex.Lock()
	alreadyClosing := vc.closed != api.Open
	if err != nil {
		vc.lerrno = -1
	}
	vc.closed = api.Closed
	vc.read.Enabled = false
	vc.write.Enabled = false
	vc.read.VIO = VIO{}
	vc.write.VIO = VIO{}
	recursing := vc.recursion > 0
	vc.mutex.Unlock()

	if alreadyClosing {
		return
	}
	if recursing {
		vc.nh.mu.Lock()
		vc.nh.cop.PushBack(&vc.copElem)
		vc.nh.mu.Unlock()
		return
	}
	vc.finishClose()
}

// finishClose runs the actual teardown: deregister from the poller,
// unlink from every NetHandler list, close the socket, hand vc back to
// its allocator tier. It releases no buffers: the read Chain, if any,
// belongs to the caller that passed it to DoIORead.
func (vc *VConnection) finishClose() {
	if vc.ep != nil {
		vc.ep.Stop()
	}
	vc.nh.RemoveOpen(vc)
	if vc.con != nil {
		vc.con.Close()
	}
	if c, ok := vc.read.VIO.Buffer.(*iobuf.Chain); ok && c != nil {
		_ = c // blocks already returned to pool as they drained
	}
	vc.free()
}

// free drops vc's net.Conn and returns it to the allocator tier selected
// by fromAcceptThread; the field-by-field reset happens in
// resetVConnection when AllocVConnection reuses it.
func (vc *VConnection) free() {
	releaseVConnection(vc)
}

// Shutdown tears down one or both halves of the underlying socket without
// releasing vc itself, mirroring the original's IO_SHUTDOWN. A half
// already shut stays shut; ShutdownReadWrite is idempotent with DoIOClose
// racing it.
func (vc *VConnection) Shutdown(how api.ShutdownHow) error {
	vc.mutex.Lock()
	defer vc.mutex.Unlock()

	sc, ok := vc.con.(interface{ CloseRead() error })
	scw, okw := vc.con.(interface{ CloseWrite() error })

	switch how {
	case api.ShutdownRead:
		vc.shutdown |= shutdownRead
		vc.read.Enabled = false
		if ok {
			return sc.CloseRead()
		}
	case api.ShutdownWrite:
		vc.shutdown |= shutdownWrite
		vc.write.Enabled = false
		if okw {
			return scw.CloseWrite()
		}
	case api.ShutdownReadWrite:
		vc.shutdown |= shutdownRead | shutdownWrite
		vc.read.Enabled = false
		vc.write.Enabled = false
		if ok {
			sc.CloseRead()
		}
		if okw {
			return scw.CloseWrite()
		}
	}
	return nil
}

// GetData surfaces the out-of-band fields listed in api.DataID.
func (vc *VConnection) GetData(id api.DataID) (any, bool) {
	switch id {
	case api.DataLocalAddr:
		return vc.localAddr, vc.localAddr != nil
	case api.DataRemoteAddr:
		return vc.remoteAddr, vc.remoteAddr != nil
	case api.DataFD:
		return vc.fd, true
	case api.DataOptions:
		return nil, false
	default:
		return nil, false
	}
}

// SetInactivityTimeout arms (or disarms, with d <= 0) the sliding
// inactivity deadline.
func (vc *VConnection) SetInactivityTimeout(d time.Duration) {
	vc.mutex.Lock()
	defer vc.mutex.Unlock()
	vc.inactivityTimeoutIn = d
	vc.touchActivity()
}

// SetActiveTimeout arms (or disarms, with d <= 0) the absolute deadline
// measured from now.
func (vc *VConnection) SetActiveTimeout(d time.Duration) {
	vc.mutex.Lock()
	defer vc.mutex.Unlock()
	vc.activeTimeoutIn = d
	if d <= 0 {
		vc.nextActivityTimeoutAt = time.Time{}
	} else {
		vc.nextActivityTimeoutAt = time.Now().Add(d)
	}
}

// touchActivity slides the inactivity deadline forward; called on arm and
// on every byte of progress. Caller must hold vc.mutex.
func (vc *VConnection) touchActivity() {
	if vc.inactivityTimeoutIn <= 0 {
		vc.nextInactivityTimeoutAt = time.Time{}
		return
	}
	vc.nextInactivityTimeoutAt = time.Now().Add(vc.inactivityTimeoutIn)
}
