// File: vconn/timeout.go
// Author: momentics <momentics@gmail.com>
//
// Inactivity (sliding) and active (absolute) timeout accounting.
// NetHandler.checkTimeouts scans the open list off the hot poll path and
// fans expired VConnections through a concurrency.EventLoop into
// mainEvent, which re-derives which deadline actually fired (it may have
// been slid forward again between the scan and the callback) before
// delivering anything, guarding against the spurious double-fire the
// original's comment on mainEvent calls out explicitly.

package vconn

import (
	"time"

	"github.com/corenet/vconn/api"
)

// netActivity slides the inactivity deadline forward on any byte of
// progress. Caller must hold vc.mutex.
func (vc *VConnection) netActivity() {
	if vc.inactivityTimeoutIn > 0 {
		vc.nextInactivityTimeoutAt = time.Now().Add(vc.inactivityTimeoutIn)
	}
}

// mainEvent re-validates and delivers whichever deadline(s) have actually
// passed for vc, called off NetHandler's timeout fan-out.
func (vc *VConnection) mainEvent(nh *NetHandler) {
	vc.mutex.Lock()

	if vc.closed != api.Open {
		// Already closing: don't deliver a timeout into a VC on its way
		// out. DoIOClose is idempotent, so this is a no-op whenever the
		// close machinery already ran; it only does real work for a vc
		// whose closed flag got set some other way than a DoIOClose call.
		vc.mutex.Unlock()
		vc.DoIOClose(nil)
		return
	}

	now := time.Now()

	firedInactivity := !vc.nextInactivityTimeoutAt.IsZero() && !now.Before(vc.nextInactivityTimeoutAt)
	firedActive := !vc.nextActivityTimeoutAt.IsZero() && !now.Before(vc.nextActivityTimeoutAt)

	if !firedInactivity && !firedActive {
		vc.mutex.Unlock()
		return
	}

	event := api.VCEventInactivityTimeout
	if firedActive {
		event = api.VCEventActiveTimeout
	}

	// Disarm before delivery: a continuation that reenables from inside
	// HandleEvent will rearm via netActivity/SetActiveTimeout, and we
	// must not re-fire on the next sweep for a deadline already reported.
	vc.nextInactivityTimeoutAt = time.Time{}
	vc.nextActivityTimeoutAt = time.Time{}

	canDeliverRead := vc.read.VIO.Op == OpRead && vc.shutdown&shutdownRead == 0
	canDeliverWrite := vc.write.VIO.Op == OpWrite && vc.shutdown&shutdownWrite == 0

	var readCont, writeCont api.Continuation
	if canDeliverRead {
		readCont = vc.read.VIO.Cont
	}
	if canDeliverWrite {
		writeCont = vc.write.VIO.Cont
	}
	readVIO := &vc.read.VIO
	writeVIO := &vc.write.VIO
	sameCont := readCont != nil && readCont == writeCont

	readHeld, writeHeld := vc.read.VIO.Mutex, vc.write.VIO.Mutex

	vc.mutex.Unlock()

	if readCont != nil {
		if readHeld != nil && readHeld != &vc.mutex {
			readHeld.Lock()
			readCont.HandleEvent(event, readVIO)
			readHeld.Unlock()
		} else {
			readCont.HandleEvent(event, readVIO)
		}
	}
	if writeCont != nil && !sameCont {
		if writeHeld != nil && writeHeld != &vc.mutex {
			writeHeld.Lock()
			writeCont.HandleEvent(event, writeVIO)
			writeHeld.Unlock()
		} else {
			writeCont.HandleEvent(event, writeVIO)
		}
	}
}
