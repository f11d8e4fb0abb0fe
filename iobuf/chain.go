// File: iobuf/chain.go
// Author: momentics <momentics@gmail.com>
//
// Chain is the linked-block byte buffer spec'd for each VIO's direction.
// It implements both api.Writer and api.Reader: one chain, one producer
// cursor at the tail, one consumer cursor at the head. That matches how
// each NetState uses its buffer — the read side is filled by net_read_io
// and drained by the owning continuation, the write side is filled by the
// continuation and drained by write_to_net_io — never more than one
// reader and one writer per direction.

package iobuf

import "github.com/corenet/vconn/api"

// DefaultBlockSize is the region size requested from the BufferPool for
// each new block, chosen to match one typical Ethernet-MTU-scale read
// without over-allocating for small connections.
const DefaultBlockSize = 32 * 1024

// MaxIOVec bounds how many blocks a single Readv/Writev syscall may span,
// per spec's IOVec batch maximum (>= 16).
const MaxIOVec = 16

// Chain is a scatter/gather byte buffer: bytes Fill()ed at the tail
// count toward ReadAvail() and can be Consume()d at the head as soon as
// Fill returns, and blocks drain back to the pool as they're fully consumed.
type Chain struct {
	pool      api.BufferPool
	numaNode  int
	blockSize int

	head *block // oldest block with unconsumed bytes, nil if chain is empty
	tail *block // current write target, nil if chain is empty

	readOff  int // offset into head where unconsumed bytes start
	writeOff int // offset into tail where the next Fill lands

	totalWrite int64
	totalRead  int64
}

// NewChain allocates an empty chain backed by pool, preferring numaNode
// for new block allocations.
func NewChain(pool api.BufferPool, numaNode int) *Chain {
	return &Chain{pool: pool, numaNode: numaNode, blockSize: DefaultBlockSize}
}

// WriteAvail is the spare capacity in the current tail block; 0 means the
// next Fill must be preceded by AddBlock.
func (c *Chain) WriteAvail() int {
	if c.tail == nil {
		return 0
	}
	return len(c.tail.Bytes()) - c.writeOff
}

// Fill advances the write cursor by n bytes already copied into the
// region FirstWriteBlock exposed.
func (c *Chain) Fill(n int) {
	if n <= 0 || c.tail == nil {
		return
	}
	c.tail.filled += n
	c.writeOff += n
	c.totalWrite += int64(n)
}

// FirstWriteBlock returns the block currently receiving writes, or nil if
// the chain needs a new block first.
func (c *Chain) FirstWriteBlock() api.Block {
	if c.tail == nil {
		return nil
	}
	return c.tail
}

// AddBlock appends b to the chain's tail and makes it the new write
// target.
func (c *Chain) AddBlock(b api.Block) {
	nb, ok := b.(*block)
	if !ok {
		return
	}
	if c.tail == nil {
		c.head, c.tail = nb, nb
	} else {
		c.tail.next = nb
		c.tail = nb
	}
	c.writeOff = 0
}

// Grow allocates and appends a fresh block from the pool, returning the
// spare capacity now available for writing.
func (c *Chain) Grow() []byte {
	buf := c.pool.Get(c.blockSize, c.numaNode)
	c.AddBlock(&block{buf: buf})
	return c.tail.Bytes()
}

// ReadAvail is the number of unconsumed bytes currently buffered.
func (c *Chain) ReadAvail() int {
	return int(c.totalWrite - c.totalRead)
}

// Consume advances the read cursor by n bytes, retiring blocks whose
// bytes have all been consumed back to the pool.
func (c *Chain) Consume(n int) {
	for n > 0 && c.head != nil {
		avail := c.head.filled - c.readOff
		if avail <= 0 {
			c.retireHead()
			continue
		}
		take := n
		if take > avail {
			take = avail
		}
		c.readOff += take
		n -= take
		c.totalRead += int64(take)
		if c.readOff >= c.head.filled && c.head != c.tail {
			c.retireHead()
		}
	}
}

func (c *Chain) retireHead() {
	old := c.head
	c.head = old.next
	if c.head == nil {
		c.tail = nil
	}
	c.readOff = 0
	if old.buf != nil {
		c.pool.Put(old.buf)
	}
}

// StartOffset is the offset of the read cursor into Block().
func (c *Chain) StartOffset() int { return c.readOff }

// Block returns the block currently holding the read cursor, or nil if
// there is nothing left to consume.
func (c *Chain) Block() api.Block {
	if c.head == nil || c.ReadAvail() == 0 {
		return nil
	}
	return c.head
}

// GatherRead returns up to max []byte slices of spare write capacity
// across the tail and any newly grown blocks, for a vectored read
// (readv) to fill directly.
func (c *Chain) GatherRead(max int) [][]byte {
	if max <= 0 || max > MaxIOVec {
		max = MaxIOVec
	}
	out := make([][]byte, 0, max)
	if c.WriteAvail() == 0 {
		c.Grow()
	}
	for len(out) < max {
		spare := c.tail.Bytes()[c.writeOff:]
		if len(spare) > 0 {
			out = append(out, spare)
		}
		if len(out) >= max {
			break
		}
		c.Grow()
	}
	return out
}

// GatherWrite returns up to max []byte slices of unconsumed data across
// the head and following blocks, for a vectored write (writev) to drain
// directly.
func (c *Chain) GatherWrite(max int) [][]byte {
	if max <= 0 || max > MaxIOVec {
		max = MaxIOVec
	}
	out := make([][]byte, 0, max)
	b := c.head
	off := c.readOff
	for b != nil && len(out) < max {
		if b.filled > off {
			out = append(out, b.Bytes()[off:b.filled])
		}
		off = 0
		if b.next == nil {
			break
		}
		b = b.next
	}
	return out
}

var (
	_ api.Writer = (*Chain)(nil)
	_ api.Reader = (*Chain)(nil)
)
