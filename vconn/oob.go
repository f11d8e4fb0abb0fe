// File: vconn/oob.go
// Author: momentics <momentics@gmail.com>
//
// Out-of-band send with retry: at most one OOB send in flight per
// VConnection, retried on EAGAIN or a partial send by a timer sharing vc.mutex so a retry
// firing concurrently with a close or cancel can never race it.

package vconn

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/corenet/vconn/api"
)

// oobRetryDelay returns the backoff between OOB send attempts, read from
// vc's NetHandler config (key "net.oob_retry_ms") when one is wired up.
// OOB bytes are rare, latency-sensitive signals rather than bulk data, so
// a short fixed delay beats exponential backoff here.
func (vc *VConnection) oobRetryDelay() time.Duration {
	if vc.nh != nil {
		return vc.nh.oobRetryDelay()
	}
	return defaultOOBRetryMs * time.Millisecond
}

// SendOOB starts sending data out-of-band, delivering VCEventOOBComplete
// to cont once every byte has gone out, or VCEventError on a non-EAGAIN
// failure. Returns api.ErrResourceExhausted if an OOB send is already in
// flight.
func (vc *VConnection) SendOOB(cont api.Continuation, data []byte) error {
	vc.mutex.Lock()
	if vc.oob != nil && vc.oob.pending {
		vc.mutex.Unlock()
		return api.ErrResourceExhausted
	}
	vc.oob = &oobState{cont: cont, data: data, pending: true}
	vc.mutex.Unlock()

	vc.oobAttempt()
	return nil
}

// CancelOOB aborts any in-flight OOB send without delivering an event.
func (vc *VConnection) CancelOOB() {
	vc.mutex.Lock()
	defer vc.mutex.Unlock()
	if vc.oob == nil {
		return
	}
	if vc.oob.timer != nil {
		vc.oob.timer.Stop()
	}
	vc.oob = nil
}

// oobAttempt performs one send with MSG_OOB, scheduling a retry from the
// unsent offset on EAGAIN or a partial send, or delivering
// completion/EOS/error otherwise.
func (vc *VConnection) oobAttempt() {
	vc.mutex.Lock()
	ob := vc.oob
	if ob == nil || !ob.pending {
		vc.mutex.Unlock()
		return
	}

	remaining := ob.data[ob.sent:]
	n, err := unix.SendmsgN(vc.fd, remaining, nil, nil, unix.MSG_OOB)
	if n > 0 {
		ob.sent += n
	}

	switch {
	case ob.sent >= len(ob.data):
		ob.pending = false
		cont := ob.cont
		vc.oob = nil
		vc.mutex.Unlock()
		if cont != nil {
			cont.HandleEvent(api.VCEventOOBComplete, nil)
		}
		return
	case n == 0 && err == nil:
		// Peer closed out from under us: nothing left to retry against.
		ob.pending = false
		cont := ob.cont
		vc.oob = nil
		vc.mutex.Unlock()
		if cont != nil {
			cont.HandleEvent(api.VCEventEOS, nil)
		}
		return
	case err != nil && !isEAGAIN(err):
		ob.pending = false
		cont := ob.cont
		vc.oob = nil
		vc.lerrno = -1
		lerrno := vc.lerrno
		vc.mutex.Unlock()
		if cont != nil {
			cont.HandleEvent(api.VCEventError, api.Errno(lerrno))
		}
		return
	default:
		ob.timer = time.AfterFunc(vc.oobRetryDelay(), vc.oobAttempt)
		vc.mutex.Unlock()
	}
}
