// File: vconn/reenable.go
// Author: momentics <momentics@gmail.com>
//
// reenable/reenableRe implement same-owner-thread and cross-thread
// reenable without any cheap way to ask "is the calling goroutine the one
// running this VConnection's NetHandler.Run". Both the same-thread and
// lucky-cross-thread cases collapse into "the try-lock on nh.mu
// succeeds": when it does, the caller is free to link the NetState
// directly onto a ready list (or, for ReenableRe, run the I/O pass
// inline) exactly as if it were the owner. Only a failed try-lock falls
// back to the cross-thread enable list plus a reactor wake.

package vconn

// reenable is the disable-to-enable transition VIO.Reenable drives: mark
// the direction enabled and, if a readiness edge already arrived while it
// was disabled, get it scheduled without waiting for the next poll
// notification.
func (vc *VConnection) reenable(ns *NetState) {
	vc.mutex.Lock()
	ns.Enabled = true
	vc.mutex.Unlock()
	vc.reenableLocked(ns)
}

// reenableLocked performs the try-lock dance described above without
// touching vc.mutex; callers that already hold vc.mutex (DoIORead/
// DoIOWrite) call it directly, reenable takes vc.mutex itself first.
func (vc *VConnection) reenableLocked(ns *NetState) {
	if vc.nh == nil {
		return
	}
	if vc.nh.mu.TryLock() {
		if ns.Triggered && ns.Enabled {
			if ns.dir == DirRead {
				vc.nh.readReady.PushBack(&ns.le)
			} else {
				vc.nh.writeReady.PushBack(&ns.le)
			}
		}
		vc.nh.mu.Unlock()
		return
	}
	vc.nh.pushEnable(ns)
}

// reenableRe behaves like reenable but, when the try-lock succeeds, runs
// the I/O pass inline instead of merely scheduling it, useful when a
// continuation wants its own reenable to make forward progress before
// returning.
func (vc *VConnection) reenableRe(ns *NetState) {
	vc.mutex.Lock()
	ns.Enabled = true
	vc.mutex.Unlock()

	if vc.nh == nil {
		return
	}
	if vc.nh.mu.TryLock() {
		t := vc.nh.Thread()
		vc.nh.mu.Unlock()
		if ns.dir == DirRead {
			vc.netReadIO(vc.nh, t)
		} else {
			vc.writeToNetIO(vc.nh, t)
		}
		return
	}
	vc.nh.pushEnable(ns)
}

// readDisable and writeDisable stop further scheduling of a direction
// without discarding its VIO, used when a continuation wants to pause
// flow control without losing progress accounting.
func (vc *VConnection) readDisable() {
	vc.mutex.Lock()
	defer vc.mutex.Unlock()
	vc.read.Enabled = false
}

func (vc *VConnection) writeDisable() {
	vc.mutex.Lock()
	defer vc.mutex.Unlock()
	vc.write.Enabled = false
}
