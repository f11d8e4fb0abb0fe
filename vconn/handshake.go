// File: vconn/handshake.go
// Author: momentics <momentics@gmail.com>
//
// Handshake hooks let a protocol layer (TLS, or any negotiation that must
// run before plaintext I/O starts) intercept writeToNetIO by composition
// rather than inheritance: a VConnection holds an optional HandshakeHook
// instead of being subclassed by one.

package vconn

import "github.com/corenet/vconn/api"

// HandshakeResult is the outcome a handshake step reports back to
// writeToNetIO.
type HandshakeResult int

const (
	HandshakeDone HandshakeResult = iota
	HandshakeWantRead
	HandshakeWantWrite
	HandshakeWantAccept
	HandshakeWantConnect
	HandshakeError
)

// HandshakeHook is stepped once per writeToNetIO pass until it reports
// HandshakeDone or HandshakeError; plaintext writes never reach the fd
// while a hook is installed and not yet done.
type HandshakeHook interface {
	Step(vc *VConnection) (HandshakeResult, error)
}

// SetHandshakeHook installs (or, with nil, clears) h as vc's pending
// negotiation step.
func (vc *VConnection) SetHandshakeHook(h HandshakeHook) {
	vc.mutex.Lock()
	defer vc.mutex.Unlock()
	vc.handshake = h
}

// runHandshakeHook steps vc.handshake if one is installed. Returns false
// if the caller (writeToNetIO) must stop: either the hook isn't done yet
// (it will reenable itself once its own I/O completes) or it failed.
// Caller must already hold vc.mutex.
func (vc *VConnection) runHandshakeHook() bool {
	if vc.handshake == nil {
		return true
	}
	res, err := vc.handshake.Step(vc)
	switch res {
	case HandshakeDone:
		vc.handshake = nil
		return true
	case HandshakeError:
		vc.handshake = nil
		vc.lerrno = -1
		cont := vc.write.VIO.Cont
		if cont != nil {
			vio := &vc.write.VIO
			vc.mutex.Unlock()
			cont.HandleEvent(api.VCEventError, vio)
			vc.mutex.Lock()
		}
		_ = err
		return false
	default: // WantRead/WantWrite/WantAccept/WantConnect
		return false
	}
}
