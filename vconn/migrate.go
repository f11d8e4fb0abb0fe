// File: vconn/migrate.go
// Author: momentics <momentics@gmail.com>
//
// MigrateToCurrentThread moves a VConnection's fd from its current owning
// NetHandler to another one, used when accept load-balancing or
// affinity rebalancing wants a connection handled by a different thread
// than the one that originally accepted it. The fd itself is never
// closed: only its bookkeeping is torn down on the source and rebuilt on
// the destination.

package vconn

import "github.com/corenet/vconn/api"

// MigrateToCurrentThread detaches vc from its current NetHandler and
// re-homes it onto dst, preserving its fd, addresses, and pooled buffers.
// The returned VConnection is the one continuations must use from then
// on; vc itself is retired. cont receives NetEventOpen on dst once
// populate succeeds, or NetEventOpenFailed otherwise.
func MigrateToCurrentThread(vc *VConnection, dst *NetHandler, cont api.Continuation) *VConnection {
	vc.mutex.Lock()
	fd := vc.fd
	con := vc.con
	bufPool := vc.bufPool
	numaNode := vc.numaNode
	fromAccept := vc.fromAcceptThread
	ep := vc.ep
	vc.ep = nil
	vc.con = nil
	vc.mutex.Unlock()

	if ep != nil {
		ep.Stop()
	}
	vc.nh.RemoveOpen(vc)
	vc.free()

	nvc := AllocVConnection(dst, fd, con, bufPool, numaNode, fromAccept)
	newEp := dst.NewBinding()
	if err := nvc.populate(newEp); err != nil {
		cont.HandleEvent(api.NetEventOpenFailed, api.Errno(nvc.setLerrno(err)))
		return nvc
	}
	cont.HandleEvent(api.NetEventOpen, nvc)
	return nvc
}
