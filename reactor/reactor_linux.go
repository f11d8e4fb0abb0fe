//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-based reactor implementation. One linuxReactor backs one
// NetHandler: every VConnection it owns registers a PollBinding against
// the same epoll instance, and cross-thread reenable pushes wake it via
// an eventfd member of the same epoll set (the self-pipe trick).

package reactor

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// wakeUserData is the sentinel userData value stashed on the wake
// eventfd's registration so Wait can tell it apart from real connection
// fds without a second map lookup.
const wakeUserData = ^uintptr(0)

// linuxReactor is an epoll-based event reactor.
type linuxReactor struct {
	epfd   int
	wakeFD int
}

// NewReactor constructs a new platform-specific EventReactor for Linux,
// with its wake eventfd already armed in the epoll set.
func NewReactor() (EventReactor, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	wakeFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	r := &linuxReactor{epfd: epfd, wakeFD: wakeFD}
	ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFD)}
	*(*uintptr)(unsafe.Pointer(&ev.Fd)) = wakeUserData
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFD, ev); err != nil {
		unix.Close(wakeFD)
		unix.Close(epfd)
		return nil, err
	}
	return r, nil
}

// Register adds a file descriptor to epoll, edge-triggered for both
// directions; callers narrow interest via EpollCtl(EPOLL_CTL_MOD) through
// Binding.Modify.
func (r *linuxReactor) Register(fd uintptr, udata uintptr) error {
	event := &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLET,
		Fd:     int32(fd),
	}
	*(*uintptr)(unsafe.Pointer(&event.Fd)) = udata
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, int(fd), event)
}

// Wait waits for epoll events and fills the result into events slice.
// Wake-eventfd events are drained here and never surfaced to the caller:
// their only job is to make this call return. Register stores udata over
// the epoll event's fd field, so each Event's Fd holds the low 32 bits of
// UserData rather than the file descriptor.
func (r *linuxReactor) Wait(events []Event, timeoutMs int) (int, error) {
	rawEvents := make([]unix.EpollEvent, len(events))
	n, err := unix.EpollWait(r.epfd, rawEvents, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	out := 0
	for i := 0; i < n; i++ {
		udata := *(*uintptr)(unsafe.Pointer(&rawEvents[i].Fd))
		if udata == wakeUserData {
			r.drainWake()
			continue
		}
		events[out] = Event{Fd: uintptr(rawEvents[i].Fd), UserData: udata}
		out++
	}
	return out, nil
}

// Wake unblocks a thread parked in Wait, used by the cross-thread reenable
// path (Case C) when a try-lock on the owner's NetHandler mutex fails.
func (r *linuxReactor) Wake() error {
	var buf [8]byte
	buf[7] = 1
	_, err := unix.Write(r.wakeFD, buf[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (r *linuxReactor) drainWake() {
	var buf [8]byte
	unix.Read(r.wakeFD, buf[:])
}

// Close closes the epoll instance and its wake eventfd.
func (r *linuxReactor) Close() error {
	unix.Close(r.wakeFD)
	return unix.Close(r.epfd)
}

// Modify narrows or widens the interest registered for fd without
// disturbing its userData.
func (r *linuxReactor) Modify(fd uintptr, udata uintptr, interest Interest) error {
	event := &unix.EpollEvent{Events: interestToEpoll(interest), Fd: int32(fd)}
	*(*uintptr)(unsafe.Pointer(&event.Fd)) = udata
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, int(fd), event)
}

// Deregister removes fd from the epoll set.
func (r *linuxReactor) Deregister(fd uintptr) error {
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
}

func interestToEpoll(i Interest) uint32 {
	var events uint32 = unix.EPOLLET
	if i&InterestRead != 0 {
		events |= unix.EPOLLIN
	}
	if i&InterestWrite != 0 {
		events |= unix.EPOLLOUT
	}
	return events
}
