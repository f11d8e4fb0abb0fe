// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package api

import (
	"context"
)

// Reactor represents the embedding runtime's event loop and connection
// registration surface. The vconn core treats this, and the thread pool
// backing it, as an external collaborator (see spec's DESIGN NOTES): the
// core never constructs one itself.
type Reactor interface {
	Run(ctx context.Context) error
	Register(conn NetConn) error
}

// NetConn abstracts a network connection at the level a Reactor needs to
// see it.
type NetConn interface {
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)
	Close() error
}

// BytePool defines a zero-copy, reusable buffer pool.
type BytePool interface {
	Get() []byte
	Put([]byte)
}

// ObjectPool defines a generic object pool. The VConnection allocator's
// global and per-thread slab tiers do not implement it; they are
// concurrency.LockFreeQueue values used through Enqueue/Dequeue.
type ObjectPool[T any] interface {
	Get() T
	Put(T)
}

// NumaPoolManager manages pools per NUMA node/CPU.
type NumaPoolManager[T any] interface {
	PoolForNode(nodeID int) ObjectPool[T]
	PoolForCPU(cpuID int) ObjectPool[T]
}
