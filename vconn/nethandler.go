// File: vconn/nethandler.go
// Author: momentics <momentics@gmail.com>
//
// NetHandler is the per-thread scheduler state: it owns the open
// list, the read/write ready lists, the cross-thread read/write enable
// lists, and the mutex serializing all of it. Exactly one goroutine — the
// one running Run — drains it; every other goroutine may only push onto
// the enable lists and wake it.

package vconn

import (
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/corenet/vconn/api"
	"github.com/corenet/vconn/concurrency"
	"github.com/corenet/vconn/control"
	"github.com/corenet/vconn/reactor"
)

// Thread is the lightweight identity token a goroutine claims when it
// calls NetHandler.Run. VConnections record this pointer as their owner
// and it is passed to the I/O paths; no code compares it, and the
// correctness guard is always nh.mu.TryLock.
type Thread struct {
	nh *NetHandler
}

// defaultPollTimeoutMs bounds how long Run's epoll wait blocks before it
// wakes on its own to sweep timeouts, even with no readiness and no wake.
// Overridable per NetHandler via the "net.poll_timeout_ms" config key.
const defaultPollTimeoutMs = 250

// defaultOOBRetryMs and defaultMaxIOVec are the fallback values for the
// "net.oob_retry_ms" and "net.max_iovec" config keys.
const (
	defaultOOBRetryMs = 10
	defaultMaxIOVec   = 16
)

// NetHandler is the per-thread scheduler.
type NetHandler struct {
	mu sync.Mutex

	// enableMu guards only readEnable/writeEnable: a separate, always-
	// available lock so a foreign goroutine that lost the mu.TryLock race
	// (the cross-thread case) can still push without blocking on the drain loop.
	enableMu sync.Mutex

	r reactor.EventReactor

	open       list
	readReady  list
	writeReady list
	cop        list

	readEnable  *queue.Queue
	writeEnable *queue.Queue

	timeouts *concurrency.EventLoop

	metrics *control.MetricsRegistry
	config  *control.ConfigStore
	probes  *control.DebugProbes

	localVCPool *concurrency.LockFreeQueue[*VConnection]

	stopCh chan struct{}
	thread *Thread
}

// localVCPoolCapacity bounds the per-NetHandler slab tier used for
// VConnections that did not originate from an accept loop.
const localVCPoolCapacity = 1024

// NewNetHandler constructs a NetHandler backed by a fresh epoll reactor,
// using an empty, unconfigured ConfigStore (every tunable falls back to
// its default). Use NewNetHandlerWithConfig to drive poll timeout, OOB
// retry delay, and IOVec ceiling from a shared config store instead.
func NewNetHandler(metrics *control.MetricsRegistry) (*NetHandler, error) {
	return NewNetHandlerWithConfig(metrics, control.NewConfigStore())
}

// NewNetHandlerWithConfig constructs a NetHandler that reads its runtime
// tunables ("net.poll_timeout_ms", "net.oob_retry_ms", "net.max_iovec")
// from cfg, picking up hot-reloaded values on the next access rather than
// latching them once at construction time.
func NewNetHandlerWithConfig(metrics *control.MetricsRegistry, cfg *control.ConfigStore) (*NetHandler, error) {
	r, err := reactor.NewReactor()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = control.NewConfigStore()
	}
	nh := &NetHandler{
		r:           r,
		readEnable:  queue.New(),
		writeEnable: queue.New(),
		timeouts:    concurrency.NewEventLoop(256, 4096),
		metrics:     metrics,
		config:      cfg,
		probes:      control.NewDebugProbes(),
		localVCPool: concurrency.NewLockFreeQueue[*VConnection](localVCPoolCapacity),
		stopCh:      make(chan struct{}),
	}
	nh.timeouts.RegisterHandler(timeoutEventHandler{nh: nh})
	nh.probes.RegisterProbe("vconn.open_count", func() any { return nh.open.Len() })
	nh.probes.RegisterProbe("vconn.read_ready", func() any { return nh.readReady.Len() })
	nh.probes.RegisterProbe("vconn.write_ready", func() any { return nh.writeReady.Len() })
	return nh, nil
}

// Config returns the ConfigStore backing this handler's tunables.
func (nh *NetHandler) Config() *control.ConfigStore { return nh.config }

// Probes returns the DebugProbes registry exposing this handler's live
// list lengths for external inspection.
func (nh *NetHandler) Probes() *control.DebugProbes { return nh.probes }

// pollTimeoutMs reads the current poll-wait budget from config.
func (nh *NetHandler) pollTimeoutMs() int {
	return nh.config.GetIntOr("net.poll_timeout_ms", defaultPollTimeoutMs)
}

// maxIOVec reads the current vectored I/O batch ceiling from config.
func (nh *NetHandler) maxIOVec() int {
	return nh.config.GetIntOr("net.max_iovec", defaultMaxIOVec)
}

// oobRetryDelay reads the current OOB retry backoff from config.
func (nh *NetHandler) oobRetryDelay() time.Duration {
	return time.Duration(nh.config.GetIntOr("net.oob_retry_ms", defaultOOBRetryMs)) * time.Millisecond
}

// Thread returns the token Run() claims for itself; call only after Run
// has started, or pass the result to NewVConnection before Run for VCs
// that are meant to run on this handler once it starts.
func (nh *NetHandler) Thread() *Thread {
	if nh.thread == nil {
		nh.thread = &Thread{nh: nh}
	}
	return nh.thread
}

// Run is the drain loop: flush enable lists, wait for readiness, dispatch
// ready lists, sweep timeouts. Blocks until Stop is called or ctx-less
// fatal reactor error.
func (nh *NetHandler) Run() error {
	t := nh.Thread()
	go nh.timeouts.Run()
	defer nh.timeouts.Stop()

	events := make([]reactor.Event, 256)
	for {
		select {
		case <-nh.stopCh:
			return nil
		default:
		}

		nh.drainEnableLists()

		n, err := nh.r.Wait(events, nh.pollTimeoutMs())
		if err != nil {
			return err
		}

		nh.mu.Lock()
		for i := 0; i < n; i++ {
			vc := vcFromUserData(events[i].UserData)
			if vc == nil {
				continue
			}
			nh.markReady(vc)
		}
		readyR := nh.readReady.Drain()
		readyW := nh.writeReady.Drain()
		deferred := nh.cop.Drain()
		nh.checkTimeouts()
		openCount := nh.open.Len()
		nh.mu.Unlock()

		if nh.metrics != nil {
			nh.metrics.Set("vconn.events_per_pass", n)
			nh.metrics.Set("vconn.open_count", openCount)
		}

		for _, vc := range readyR {
			vc.netReadIO(nh, t)
		}
		for _, vc := range readyW {
			vc.writeToNetIO(nh, t)
		}
		for _, vc := range deferred {
			vc.finishClose()
		}
	}
}

// Stop requests Run to exit after its current pass.
func (nh *NetHandler) Stop() error {
	select {
	case <-nh.stopCh:
	default:
		close(nh.stopCh)
	}
	return nh.r.Wake()
}

// markReady flips Triggered for the fd's directions and, for each one
// that is also Enabled, links the VC onto the matching ready list. The
// reactor's Event does not say which direction fired, so both directions
// are marked. Must be called with nh.mu held.
func (nh *NetHandler) markReady(vc *VConnection) {
	vc.read.Triggered = true
	if vc.read.Enabled {
		nh.readReady.PushBack(&vc.read.le)
	}
	vc.write.Triggered = true
	if vc.write.Enabled {
		nh.writeReady.PushBack(&vc.write.le)
	}
}

// drainEnableLists moves every VC pushed cross-thread onto the enable
// lists over to the matching ready list. Safe to call
// from Run without nh.mu already held: it takes enableMu to pop and
// nh.mu to link onto the ready lists, never both at once.
func (nh *NetHandler) drainEnableLists() {
	nh.enableMu.Lock()
	var pendingR, pendingW []*VConnection
	for nh.readEnable.Length() > 0 {
		if vc, ok := nh.readEnable.Remove().(*VConnection); ok && vc != nil {
			vc.read.InEnabledList = false
			pendingR = append(pendingR, vc)
		}
	}
	for nh.writeEnable.Length() > 0 {
		if vc, ok := nh.writeEnable.Remove().(*VConnection); ok && vc != nil {
			vc.write.InEnabledList = false
			pendingW = append(pendingW, vc)
		}
	}
	nh.enableMu.Unlock()

	if len(pendingR) == 0 && len(pendingW) == 0 {
		return
	}
	nh.mu.Lock()
	for _, vc := range pendingR {
		if vc.read.Triggered && vc.read.Enabled {
			nh.readReady.PushBack(&vc.read.le)
		}
	}
	for _, vc := range pendingW {
		if vc.write.Triggered && vc.write.Enabled {
			nh.writeReady.PushBack(&vc.write.le)
		}
	}
	nh.mu.Unlock()
}

// pushEnable appends vc's ns onto the matching cross-thread enable list
// and wakes the owner's reactor. Safe from any goroutine.
func (nh *NetHandler) pushEnable(ns *NetState) {
	nh.enableMu.Lock()
	if ns.InEnabledList {
		nh.enableMu.Unlock()
		return
	}
	ns.InEnabledList = true
	if ns.dir == DirRead {
		nh.readEnable.Add(ns.vc)
	} else {
		nh.writeEnable.Add(ns.vc)
	}
	nh.enableMu.Unlock()
	nh.r.Wake()
}

// checkTimeouts scans the open list for deadlines that have passed and
// fans them out through the timeout EventLoop so mainEvent runs off the
// hot poll path. Must be called with nh.mu held.
func (nh *NetHandler) checkTimeouts() {
	now := time.Now()
	for e := nh.open.head; e != nil; e = e.next {
		vc := e.owner
		if (!vc.nextInactivityTimeoutAt.IsZero() && !now.Before(vc.nextInactivityTimeoutAt)) ||
			(!vc.nextActivityTimeoutAt.IsZero() && !now.Before(vc.nextActivityTimeoutAt)) {
			nh.timeouts.Push(concurrency.Event{UserData: vcToUserData(vc)})
		}
	}
}

// NewBinding returns a fresh api.PollBinding against this handler's
// reactor, unstarted; callers call Start themselves (populate does this
// for the accept/connect/migrate paths).
func (nh *NetHandler) NewBinding() api.PollBinding {
	return reactor.NewBinding(nh.r)
}

// AddOpen links vc onto this handler's open list.
func (nh *NetHandler) AddOpen(vc *VConnection) {
	nh.mu.Lock()
	nh.open.PushBack(&vc.openElem)
	nh.mu.Unlock()
}

// RemoveOpen unlinks vc from every list it might still belong to.
func (nh *NetHandler) RemoveOpen(vc *VConnection) {
	nh.mu.Lock()
	nh.open.Remove(&vc.openElem)
	nh.cop.Remove(&vc.copElem)
	nh.readReady.Remove(&vc.read.le)
	nh.writeReady.Remove(&vc.write.le)
	nh.mu.Unlock()
}

type timeoutEventHandler struct{ nh *NetHandler }

func (h timeoutEventHandler) HandleEvent(ev concurrency.Event) {
	vc := vcFromUserData(ev.UserData)
	if vc == nil {
		return
	}
	vc.mainEvent(h.nh)
}
