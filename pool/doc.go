// Package pool
// Author: momentics <momentics@gmail.com>
//
// High-performance memory layer backing the linked-block I/O buffers:
// NUMA-aware, lock-free, zero-copy buffer pooling, batching, and ring
// buffering, consumed by the iobuf package to back each Block's region.
// See bufferpool.go, batch.go, ring.go for implementation details.
package pool
