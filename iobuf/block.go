// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package iobuf

import "github.com/corenet/vconn/api"

// block is one link in a Chain: a pooled region plus how much of it has
// been filled by the writer.
type block struct {
	buf    api.Buffer // backing region, owned until released to its pool
	filled int        // bytes written into buf so far
	next   *block
}

// Bytes exposes the block's full backing region (capacity, not just the
// written prefix) so a reader/writer can compute slices directly.
func (b *block) Bytes() []byte { return b.buf.Bytes() }

// Next returns the following block in the chain, or nil at the tail.
func (b *block) Next() api.Block {
	if b.next == nil {
		return nil
	}
	return b.next
}

var _ api.Block = (*block)(nil)
