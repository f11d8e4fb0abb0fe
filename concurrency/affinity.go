// File: concurrency/affinity.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bridges the Executor's worker goroutines to affinity.SetAffinity. Each
// worker is pinned to a CPU derived from its NUMA node and index so
// co-located VConnections stay on cache-warm cores; the mapping is
// modulo NumCPU, so different workers may share a CPU.

package concurrency

import (
	"runtime"

	"github.com/corenet/vconn/affinity"
)

// PinCurrentThread locks the calling goroutine to its OS thread and pins
// that thread to a CPU selected from numaNode/workerID. Errors are
// swallowed: affinity is a latency optimization, not a correctness
// requirement, and may be unavailable in containers.
func PinCurrentThread(numaNode, workerID int) {
	runtime.LockOSThread()
	cpus := runtime.NumCPU()
	if cpus <= 0 {
		return
	}
	cpu := workerID % cpus
	if numaNode > 0 {
		cpu = (numaNode*workerID + workerID) % cpus
	}
	_ = affinity.SetAffinity(cpu)
}
