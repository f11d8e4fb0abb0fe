// File: vconn/alloc.go
// Author: momentics <momentics@gmail.com>
//
// VConnection allocation: a global tier shared by every NetHandler plus a
// per-NetHandler local tier, selected by fromAcceptThread. Both tiers
// are backed by the same lock-free MPMC queue so the allocator itself
// never takes a blocking lock on the hot accept/free path.

package vconn

import (
	"net"
	"time"

	"github.com/corenet/vconn/api"
	"github.com/corenet/vconn/concurrency"
)

const globalVCPoolCapacity = 8192

var globalVCPool = concurrency.NewLockFreeQueue[*VConnection](globalVCPoolCapacity)

// AllocVConnection returns a VConnection ready for populate(), reusing a
// retired one from the matching tier when available instead of
// allocating fresh.
func AllocVConnection(nh *NetHandler, fd int, con net.Conn, bufPool api.BufferPool, numaNode int, fromAcceptThread bool) *VConnection {
	var vc *VConnection
	if fromAcceptThread {
		vc, _ = globalVCPool.Dequeue()
	} else if nh != nil && nh.localVCPool != nil {
		vc, _ = nh.localVCPool.Dequeue()
	}
	if vc == nil {
		vc = NewVConnection(nh, fd, con, bufPool, numaNode, fromAcceptThread)
		return vc
	}
	resetVConnection(vc, nh, fd, con, bufPool, numaNode, fromAcceptThread)
	return vc
}

// resetVConnection reinitializes a retired VConnection in place, mirroring
// the field-by-field reset the original performed before reusing a slab
// entry.
func resetVConnection(vc *VConnection, nh *NetHandler, fd int, con net.Conn, bufPool api.BufferPool, numaNode int, fromAcceptThread bool) {
	vc.fd = fd
	vc.con = con
	vc.nh = nh
	vc.thread = nh.Thread()
	vc.bufPool = bufPool
	vc.numaNode = numaNode
	vc.fromAcceptThread = fromAcceptThread
	vc.ep = nil
	vc.closed = api.Open
	vc.recursion = 0
	vc.lerrno = 0
	vc.shutdown = shutdownNone
	vc.oob = nil
	vc.inactivityTimeoutIn = 0
	vc.activeTimeoutIn = 0
	var zeroTime time.Time
	vc.nextInactivityTimeoutAt = zeroTime
	vc.nextActivityTimeoutAt = zeroTime
	vc.read = NetState{}
	vc.write = NetState{}
	vc.read.vc, vc.read.dir = vc, DirRead
	vc.write.vc, vc.write.dir = vc, DirWrite
	vc.read.le.owner, vc.write.le.owner = vc, vc
	vc.openElem = elem{owner: vc}
	vc.copElem = elem{owner: vc}
	if con != nil {
		vc.localAddr = con.LocalAddr()
		vc.remoteAddr = con.RemoteAddr()
	} else {
		vc.localAddr, vc.remoteAddr = nil, nil
	}
}

// releaseVConnection returns vc to the tier matching fromAcceptThread,
// dropping it for the GC to collect if that tier is saturated.
func releaseVConnection(vc *VConnection) {
	vc.con = nil
	if vc.fromAcceptThread {
		globalVCPool.Enqueue(vc)
		return
	}
	if vc.nh != nil && vc.nh.localVCPool != nil {
		vc.nh.localVCPool.Enqueue(vc)
	}
}
