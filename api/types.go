// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations and constants for the vconn core.

package api

// ShutdownHow selects which half (or both) of a connection Shutdown
// closes, mirroring IO_SHUTDOWN_READ/WRITE/READWRITE from the original.
type ShutdownHow int

const (
	ShutdownRead ShutdownHow = iota
	ShutdownWrite
	ShutdownReadWrite
)

func (h ShutdownHow) String() string {
	switch h {
	case ShutdownRead:
		return "read"
	case ShutdownWrite:
		return "write"
	case ShutdownReadWrite:
		return "read-write"
	default:
		return "unknown"
	}
}

// CloseState is the tri-state closed/half-closed marker spec'd for
// VConnection.closed: plain ints would let a typo compare against the
// wrong sentinel, so it gets its own type.
type CloseState int

const (
	Open CloseState = iota
	HalfClosed
	Closed
)
