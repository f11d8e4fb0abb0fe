// File: vconn/write.go
// Author: momentics <momentics@gmail.com>
//
// writeToNetIO is the write half of the I/O core: drain the VIO's Reader
// onto the fd until either the fd stops accepting more, the nbytes
// target is satisfied, or a terminal error fires. Shares the handshake
// hook and write-buffer-empty trap with the read path's lock-swap
// discipline.

package vconn

import (
	"golang.org/x/sys/unix"

	"github.com/corenet/vconn/api"
)

// writeToNetIO drains vc's armed write VIO onto the fd.
func (vc *VConnection) writeToNetIO(nh *NetHandler, t *Thread) {
	ns := &vc.write
	if !vc.mutex.TryLock() {
		return
	}
	vc.recursion++
	defer func() {
		vc.recursion--
		vc.mutex.Unlock()
	}()

	if vc.closed != api.Open || !ns.Enabled || ns.VIO.Op != OpWrite {
		ns.Triggered = false
		return
	}

	if !vc.runHandshakeHook() {
		return
	}

	reader := ns.VIO.Reader
	if reader == nil {
		return
	}

	ntodo := ns.VIO.NTodo()
	if ntodo <= 0 {
		ns.Enabled = false
		ns.Triggered = false
		return
	}

	wbeBefore := ns.VIO.WriteBufferEmptyEvent

	// Invite the producer to top up the buffer before we write: the
	// reader doesn't already hold everything ntodo wants, and there's
	// spare capacity for more to land. Only meaningful when reader is
	// itself a Writer, i.e. a shared chain rather than a one-shot view.
	signalled := false
	if int64(reader.ReadAvail()) < ntodo {
		if w, ok := reader.(api.Writer); ok && w.WriteAvail() > 0 {
			vc.deliverWrite(ns, api.VCEventWriteReady)
			signalled = true
			if vc.closed != api.Open || !ns.Enabled || ns.VIO.Op != OpWrite {
				return
			}
			ntodo = ns.VIO.NTodo()
			if ntodo <= 0 {
				ns.Enabled = false
				ns.Triggered = false
				return
			}
		}
	}

	var moved int64

	maxIOVec := defaultMaxIOVec
	if nh != nil {
		maxIOVec = nh.maxIOVec()
	}

	for ntodo > 0 && reader.ReadAvail() > 0 {
		bufs := gatherReader(reader, maxIOVec)
		bufs, wanted := trimToBudget(bufs, ntodo)
		if wanted == 0 {
			break
		}

		n, werr := writeVectored(vc.fd, bufs)
		if n > 0 {
			reader.Consume(n)
			ns.VIO.NDone += int64(n)
			ntodo -= int64(n)
			moved += int64(n)
			vc.netActivity()
		}

		if n < wanted {
			if werr != nil && !isEAGAIN(werr) {
				vc.finishWriteTerminal(ns, werr)
				return
			}
			ns.Triggered = false
			break
		}
	}

	if reader.ReadAvail() == 0 {
		// Nothing left to drain: no sense keeping this direction
		// scheduled until the continuation hands over more bytes.
		ns.Enabled = false
		if wbeBefore != api.EventNone {
			if signalled {
				// The pre-write invitation already delivered one event
				// this pass; only re-signal the empty-buffer trap if it
				// changed underneath us during that callback.
				if cur := ns.VIO.WriteBufferEmptyEvent; cur != wbeBefore && cur != api.EventNone {
					vc.deliverWrite(ns, cur)
				}
			} else {
				vc.deliverWrite(ns, wbeBefore)
			}
		}
	}

	if ns.VIO.NTodo() <= 0 {
		vc.deliverWrite(ns, api.VCEventWriteComplete)
		return
	}
	if moved > 0 && !signalled {
		vc.deliverWrite(ns, api.VCEventWriteReady)
	}
}

// gatherReader adapts an api.Reader to the [][]byte shape writeVectored
// needs; iobuf.Chain satisfies this directly via GatherWrite, anything
// else falls back to a single-block view built from Block()/StartOffset.
func gatherReader(r api.Reader, max int) [][]byte {
	type gatherer interface {
		GatherWrite(max int) [][]byte
	}
	if g, ok := r.(gatherer); ok {
		return g.GatherWrite(max)
	}
	blk := r.Block()
	if blk == nil {
		return nil
	}
	b := blk.Bytes()
	off := r.StartOffset()
	if off >= len(b) {
		return nil
	}
	return [][]byte{b[off:]}
}

func writeVectored(fd int, bufs [][]byte) (int, error) {
	if len(bufs) == 0 {
		return 0, nil
	}
	if len(bufs) == 1 {
		n, err := unix.Write(fd, bufs[0])
		return n, err
	}
	n, err := unix.Writev(fd, bufs)
	return n, err
}

func (vc *VConnection) finishWriteTerminal(ns *NetState, err error) {
	ns.Enabled = false
	ns.Triggered = false
	vc.lerrno = -1
	vc.deliverWrite(ns, api.VCEventError)
}

// deliverWrite mirrors deliverRead's lock-swap discipline on the write
// side: the continuation runs with vio.Mutex held when that is a mutex
// other than vc's own (and with no lock held otherwise), and a mutex swapped out
// from under this pass leaves the NetState untriggered for the rearm to
// pick up.
func (vc *VConnection) deliverWrite(ns *NetState, event api.EventCode) {
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
