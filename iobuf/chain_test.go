// Author: momentics <momentics@gmail.com>

package iobuf

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/corenet/vconn/fake"
)

// TestChainRoundTrip checks the byte-conservation law: whatever is
// Fill()ed at the tail comes back byte-for-byte through Consume at the
// head, regardless of how many blocks the chain grew into along the way.
func TestChainRoundTrip(t *testing.T) {
	pool := fake.NewBufferPool()
	c := NewChain(pool, -1)
	c.blockSize = 16 // force many small blocks

	src := make([]byte, 500)
	rand.New(rand.NewSource(1)).Read(src)

	written := 0
	for written < len(src) {
		if c.WriteAvail() == 0 {
			c.Grow()
		}
		wb := c.FirstWriteBlock()
		avail := c.WriteAvail()
		n := avail
		remaining := len(src) - written
		if n > remaining {
			n = remaining
		}
		copy(wb.Bytes()[c.writeOff:], src[written:written+n])
		c.Fill(n)
		written += n
	}

	if c.ReadAvail() != len(src) {
		t.Fatalf("ReadAvail = %d, want %d", c.ReadAvail(), len(src))
	}

	var out bytes.Buffer
	for c.ReadAvail() > 0 {
		blk := c.Block()
		if blk == nil {
			t.Fatal("Block() returned nil while ReadAvail > 0")
		}
		off := c.StartOffset()
		b := blk.Bytes()
		take := len(b) - off
		if take > c.ReadAvail() {
			take = c.ReadAvail()
		}
		out.Write(b[off : off+take])
		c.Consume(take)
	}

	if !bytes.Equal(out.Bytes(), src) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", out.Len(), len(src))
	}
}

// TestGatherReadRespectsMaxIOVec ensures the vectored-read batch never
// exceeds the spec'd IOVec ceiling even when a chain has grown well past
// it.
func TestGatherReadRespectsMaxIOVec(t *testing.T) {
	pool := fake.NewBufferPool()
	c := NewChain(pool, -1)
	c.blockSize = 8
	for i := 0; i < MaxIOVec+10; i++ {
		c.Grow()
	}
	bufs := c.GatherRead(MaxIOVec)
	if len(bufs) > MaxIOVec {
		t.Fatalf("GatherRead returned %d slices, want <= %d", len(bufs), MaxIOVec)
	}
}

// TestConsumeRetiresBlocks checks that fully-drained blocks are returned
// to the pool rather than lingering in the chain.
func TestConsumeRetiresBlocks(t *testing.T) {
	pool := fake.NewBufferPool()
	c := NewChain(pool, -1)
	c.blockSize = 4

	c.Grow()
	wb := c.FirstWriteBlock()
	copy(wb.Bytes(), []byte("abcd"))
	c.Fill(4)

	c.Grow()
	wb2 := c.FirstWriteBlock()
	copy(wb2.Bytes(), []byte("efgh"))
	c.Fill(4)

	c.Consume(4)
	if c.head == nil || c.head.filled != 4 {
		t.Fatalf("expected second block to remain head after first retires")
	}
	if got := string(c.head.Bytes()); got != "efgh" {
		t.Fatalf("unexpected head contents after retire: %q", got)
	}
}
