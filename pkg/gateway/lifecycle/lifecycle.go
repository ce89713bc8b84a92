// Package lifecycle tracks whether the gateway is draining for shutdown.
package lifecycle

import "sync/atomic"

type Lifecycle struct {
	draining atomic.Bool
}

func New() *Lifecycle { return &Lifecycle{} }

// SetDraining flips the gateway into drain mode: readiness fails and new live
// sessions are refused while in-flight ones finish.
func (l *Lifecycle) SetDraining() { l.draining.Store(true) }

func (l *Lifecycle) Draining() bool { return l.draining.Load() }
