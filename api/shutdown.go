// File: api/shutdown.go
// Package api defines unified graceful shutdown contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// GracefulShutdown is the contract for components that own resources
// needing an orderly stop. NetHandler does not implement it; it exposes
// Stop instead.
type GracefulShutdown interface {
	// Shutdown stops the component and releases its resources. Returns
	// an error if the stop could not complete cleanly.
	Shutdown() error
}
