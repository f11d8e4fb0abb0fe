// File: vconn/vio.go
// Author: momentics <momentics@gmail.com>
//
// VIO is the read-or-write work item a continuation hands to a
// VConnection's do_io_read/do_io_write.

package vconn

import (
	"math"
	"sync"

	"github.com/corenet/vconn/api"
)

// Op identifies what a VIO is doing.
type Op int

const (
	OpNone Op = iota
	OpRead
	OpWrite
)

// VIO is the read-or-write virtual I/O descriptor: "move NBytes through
// Buffer, notifying Cont". A back-pointer to its owning NetState lets
// Reenable/ReenableRe recover the direction without the caller having to
// track it separately.
type VIO struct {
	Op     Op
	NBytes int64 // 0 means "until EOS"
	NDone  int64

	Cont  api.Continuation
	Mutex *sync.Mutex // held around Cont's callbacks when it differs from vc.mutex; may equal vc.mutex

	Buffer api.Writer // set for reads: where net_read_io fills bytes
	Reader api.Reader // set for writes: where write_to_net_io drains bytes

	// WriteBufferEmptyEvent lets a continuation set this to
	// request delivery of a specific event once the write buffer drains
	// to empty, instead of (or in addition to) WRITE_COMPLETE.
	WriteBufferEmptyEvent api.EventCode

	ns *NetState // back-pointer replacing offsetof
}

// NTodo returns how many bytes remain before this VIO is "done" in the
// finite-nbytes sense. A VIO with NBytes == 0 reads/writes "until EOS"
// and never reports completion through NTodo.
func (v *VIO) NTodo() int64 {
	if v.Op == OpNone {
		return 0
	}
	if v.NBytes == 0 {
		return math.MaxInt64
	}
	return v.NBytes - v.NDone
}

// Reenable re-arms this VIO's direction for progress, obeying the
// same-owner-vs-cross-thread rules described in reenable.go.
func (v *VIO) Reenable() {
	if v.ns == nil {
		return
	}
	v.ns.vc.reenable(v.ns)
}

// ReenableRe behaves like Reenable but, when the caller already owns the
// NetHandler, performs the I/O pass immediately instead of merely
// enqueueing it.
func (v *VIO) ReenableRe() {
	if v.ns == nil {
		return
	}
	v.ns.vc.reenableRe(v.ns)
}

// NetState is the per-direction state of a VConnection.
type NetState struct {
	VIO           VIO
	Enabled       bool
	Triggered     bool
	InEnabledList bool

	dir Direction
	vc  *VConnection
	le  elem // membership in the owning NetHandler's ready list
}

// Direction distinguishes a VConnection's read side from its write side.
type Direction int

const (
	DirRead Direction = iota
	DirWrite
)
