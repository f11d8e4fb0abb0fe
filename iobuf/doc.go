// Package iobuf implements the scatter/gather linked-block byte buffer
// that backs every VIO's read and write side: a Writer appends into spare
// capacity at the chain's tail, a Reader consumes from the chain's head,
// and blocks are returned to an api.BufferPool once fully consumed.
//
// Grounded on the teacher's api.BufferPool/api.Buffer abstraction for the
// backing region of each block, generalized here into the append-only
// linked chain spec'd for the I/O core's scatter/gather reads and writes.
package iobuf
