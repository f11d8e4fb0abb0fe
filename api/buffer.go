// Package api
// Author: momentics
//
// Zero-copy memory buffer and NUMA-aware pooling for high-performance IO.
//
// Buffers may be hugepages, mmap, shared memory, or device-backed memory.
// All operations must be zero-copy unless Copy is explicitly called.

package api

// Buffer describes a resliceable, reference-counted memory region.
type Buffer interface {
    // Bytes returns an immutable view of the current buffer data.
    Bytes() []byte

    // Slice produces a sub-buffer in O(1), memory-safe fashion.
    Slice(from, to int) Buffer

    // Release returns the buffer (and underlying region) to its pool.
    // After Release, buffer must not be used.
    Release()

    // Copy returns a deep copy of buffer contents as a standalone []byte.
    Copy() []byte

    // NUMANode returns the NUMA node this buffer was allocated from.
    NUMANode() int
}

// BufferPool abstracts memory region management for buffers.
type BufferPool interface {
    // Get returns a buffer sized at least 'size' bytes.
    // Always NUMA-aware: should satisfy locality preference if possible.
    Get(size int, numaPreferred int) Buffer

    // Put returns buffer to pool; buffer must not be used afterwards.
    Put(b Buffer)

    // Stats exposes resource/accounting metrics for observability.
    Stats() BufferPoolStats
}

// BufferPoolStats aggregates buffer allocation/reuse stats.
type BufferPoolStats struct {
    TotalAlloc int64
    TotalFree  int64
    InUse      int64
    NUMAStats  map[int]int64
}

// Block is one link in the scatter/gather chain backing a Writer/Reader.
// Each block wraps a single Buffer-backed region plus the write/read
// cursors into it.
type Block interface {
    // Bytes exposes the block's backing region (capacity, not just the
    // written prefix).
    Bytes() []byte
    // Next returns the following block in the chain, or nil at the tail.
    Next() Block
}

// Writer is the producer side of the linked-block byte chain a VIO reads
// from on the write path: new data is filled into spare capacity at the
// chain's tail, extending the chain with fresh Blocks from a BufferPool as
// needed.
type Writer interface {
    // WriteAvail is the number of bytes of spare capacity currently
    // available across the chain without allocating a new block.
    WriteAvail() int
    // Fill advances the write cursor by n bytes, which the caller has
    // already copied into the region exposed by FirstWriteBlock.
    Fill(n int)
    // FirstWriteBlock returns the block containing the current write
    // cursor, or nil if the chain is empty.
    FirstWriteBlock() Block
    // AddBlock appends a freshly allocated block to the chain's tail.
    AddBlock(b Block)
}

// Reader is the consumer side of the linked-block byte chain: bytes
// written by a Writer become available for Consume in FIFO order,
// starting at StartOffset into the head Block.
type Reader interface {
    // ReadAvail is the number of unconsumed bytes currently in the chain.
    ReadAvail() int
    // Consume advances the read cursor by n bytes, retiring blocks whose
    // bytes have been fully consumed.
    Consume(n int)
    // StartOffset is the offset of the read cursor into Block().
    StartOffset() int
    // Block returns the block containing the current read cursor, or nil
    // if the chain has no unconsumed bytes.
    Block() Block
}
