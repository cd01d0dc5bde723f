package controller

import "sync/atomic"

// CancelFlag is a shared cooperative cancellation signal. It can be set
// from any goroutine; the controller and blocking tool waits poll it.
type CancelFlag struct {
	set atomic.Bool
}

// NewCancelFlag returns an unset flag.
func NewCancelFlag() *CancelFlag {
	return &CancelFlag{}
}

// Set marks the run as cancelled. Setting is sticky.
func (f *CancelFlag) Set() {
	f.set.Store(true)
}

// IsSet reports whether cancellation was requested.
func (f *CancelFlag) IsSet() bool {
	return f.set.Load()
}
