// File: vconn/read.go
// Author: momentics <momentics@gmail.com>
//
// netReadIO is the read half: pull bytes off the fd into the
// VIO's Chain until either the fd stops being ready, the VIO's nbytes
// target is satisfied, or a terminal condition (EOS/error) fires.

package vconn

import (
	"golang.org/x/sys/unix"

	"github.com/corenet/vconn/api"
	"github.com/corenet/vconn/iobuf"
)

// netReadIO drains vc's fd into the armed read VIO. Called from the
// goroutine running this VConnection's NetHandler.Run off the ready
// list, or inline from reenableRe by whichever goroutine won its
// try-lock.
func (vc *VConnection) netReadIO(nh *NetHandler, t *Thread) {
	ns := &vc.read
	if !vc.mutex.TryLock() {
		// Another goroutine is already inside a callback holding our
		// mutex (e.g. the continuation reentered do_io_read); leave
		// Triggered set and put the VC back on the read-ready list so
		// the next pass retries.
		if nh != nil {
			nh.mu.Lock()
			nh.readReady.PushBack(&ns.le)
			nh.mu.Unlock()
		}
		return
	}
	vc.recursion++
	defer func() {
		vc.recursion--
		vc.mutex.Unlock()
	}()

	if vc.closed != api.Open || !ns.Enabled || ns.VIO.Op != OpRead {
		ns.Triggered = false
		return
	}

	chain, ok := ns.VIO.Buffer.(*iobuf.Chain)
	if !ok || chain == nil {
		return
	}

	ntodo := ns.VIO.NTodo()
	if ntodo <= 0 {
		// Already satisfied before this pass ever touched the fd: no
		// event, just stop scheduling it.
		ns.Enabled = false
		ns.Triggered = false
		return
	}
	var moved int64

	maxIOVec := iobuf.MaxIOVec
	if nh != nil {
		maxIOVec = nh.maxIOVec()
	}

	for ntodo > 0 {
		bufs := chain.GatherRead(maxIOVec)
		if len(bufs) == 0 {
			break
		}
		bufs, wanted := trimToBudget(bufs, ntodo)

		n, rerr := readVectored(vc.fd, bufs)
		if n > 0 {
			chain.Fill(n)
			ns.VIO.NDone += int64(n)
			ntodo -= int64(n)
			moved += int64(n)
			vc.netActivity()
		}

		if n < wanted {
			// Short of what we asked for: either the fd ran dry
			// (EAGAIN) or something terminal happened.
			if rerr != nil && !isEAGAIN(rerr) {
				vc.finishReadTerminal(ns, n, rerr)
				return
			}
			if n == 0 && rerr == nil && wanted > 0 {
				// A zero-length vectored read with no error and a
				// live fd is EOS (orderly shutdown by the peer).
				vc.finishReadTerminal(ns, 0, nil)
				return
			}
			// Drained until EAGAIN: this edge is spent, don't
			// reschedule until epoll reports a fresh one.
			ns.Triggered = false
			break
		}
	}

	if ns.VIO.NTodo() <= 0 {
		vc.deliverRead(ns, api.VCEventReadComplete)
		return
	}
	if moved > 0 {
		vc.deliverRead(ns, api.VCEventReadReady)
	}
}

// trimToBudget clamps the gathered vector list to at most budget bytes,
// returning the trimmed slices and their total length.
func trimToBudget(bufs [][]byte, budget int64) ([][]byte, int) {
	total := 0
	for i, b := range bufs {
		if int64(total+len(b)) >= budget {
			remain := int(budget) - total
			if remain <= 0 {
				return bufs[:i], total
			}
			out := make([][]byte, i+1)
			copy(out, bufs[:i])
			out[i] = b[:remain]
			return out, total + remain
		}
		total += len(b)
	}
	return bufs, total
}

func readVectored(fd int, bufs [][]byte) (int, error) {
	if len(bufs) == 0 {
		return 0, nil
	}
	if len(bufs) == 1 {
		n, err := unix.Read(fd, bufs[0])
		return n, err
	}
	n, err := unix.Readv(fd, bufs)
	return n, err
}

func isEAGAIN(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}

// finishReadTerminal delivers EOS or ERROR and disables the read side,
// classifying a non-EAGAIN, non-positive read result as one or the
// other.
func (vc *VConnection) finishReadTerminal(ns *NetState, n int, err error) {
	ns.Enabled = false
	ns.Triggered = false
	if err != nil {
		vc.lerrno = -1
		vc.deliverRead(ns, api.VCEventError)
		return
	}
	vc.deliverRead(ns, api.VCEventEOS)
}

// deliverRead invokes the read VIO's continuation, dropping vc.mutex for
// the duration of the callback: the continuation may call back into
// DoIORead/Reenable/DoIOClose, all of which take vc.mutex themselves, so
// holding it across HandleEvent would deadlock. When vio.Mutex is a
// different mutex (for example one shared with other VConnections) the
// callback runs with it held; when vio.Mutex is nil or vc's own lock the
// callback runs with no lock held. If the continuation rearms this VIO onto a
// different mutex from inside its own callback, the lock has swapped
// under us and this pass's progress is stale, so the next rearm is left
// to do the scheduling instead of us resuming it here.
func (vc *VConnection) deliverRead(ns *NetState, event api.EventCode) {
	cont := ns.VIO.Cont
	if cont == nil {
		return
	}
	vio := &ns.VIO
	held := vio.Mutex
	vc.mutex.Unlock()
	if held != nil && held != &vc.mutex {
		held.Lock()
		cont.HandleEvent(event, vio)
		held.Unlock()
	} else {
		cont.HandleEvent(event, vio)
	}
	vc.mutex.Lock()
	if vio.Mutex != held {
		ns.Triggered = false
	}
}
