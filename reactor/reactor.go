// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral event reactor interface for cross-platform IO multiplexing.

package reactor

import "github.com/corenet/vconn/api"

// Interest mirrors api.Interest locally so this package's low-level
// Event-Reactor contract doesn't need to import api for a single bitmask
// (it does need api for PollBinding below; kept as an alias to avoid two
// incompatible Interest types existing in the module).
type Interest = api.Interest

const (
	InterestRead  = api.InterestRead
	InterestWrite = api.InterestWrite
)

// EventReactor defines basic reactor operations across OS platforms.
type EventReactor interface {
	// Register an FD (epoll) or HANDLE (Windows) for IO notifications.
	Register(fd uintptr, userData uintptr) error

	// Modify narrows or widens the registered interest for fd.
	Modify(fd uintptr, userData uintptr, interest Interest) error

	// Deregister removes fd from the poller.
	Deregister(fd uintptr) error

	// Wait blocks for up to timeoutMs (-1 = forever) until events are
	// available, writing them into the output slice. Returns the number
	// of events written.
	Wait(events []Event, timeoutMs int) (n int, err error)

	// Wake unblocks a thread currently parked in Wait.
	Wake() error

	// Close cleans up resources (handle/epfd).
	Close() error
}

// Event contains event information returned by Wait call.
type Event struct {
	Fd       uintptr // File descriptor or handle.
	UserData uintptr // User-provided data.
}

// Binding adapts a single fd's registration against an EventReactor to
// the api.PollBinding contract the vconn package depends on, so vconn
// never imports a platform-specific reactor package directly.
type Binding struct {
	r        EventReactor
	fd       uintptr
	userData uintptr
	started  bool
}

// NewBinding returns a Binding bound to r; Start still must be called to
// register the fd.
func NewBinding(r EventReactor) *Binding {
	return &Binding{r: r}
}

func (b *Binding) Start(fd int, interest Interest, userData uintptr) error {
	b.fd = uintptr(fd)
	b.userData = userData
	if err := b.r.Register(b.fd, userData); err != nil {
		return err
	}
	if err := b.r.Modify(b.fd, userData, interest); err != nil {
		b.r.Deregister(b.fd)
		return err
	}
	b.started = true
	return nil
}

func (b *Binding) Modify(interest Interest) error {
	if !b.started {
		return nil
	}
	return b.r.Modify(b.fd, b.userData, interest)
}

// Refresh is a no-op: linuxReactor's epoll set is edge-triggered, and
// level-triggered backends would re-arm here.
func (b *Binding) Refresh() error { return nil }

func (b *Binding) Stop() error {
	if !b.started {
		return nil
	}
	b.started = false
	return b.r.Deregister(b.fd)
}

var _ api.PollBinding = (*Binding)(nil)
