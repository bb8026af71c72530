package core

import (
	"log/slog"
	"sync"
)

// Gate is the process-wide input enablement flag. Listeners run
// synchronously, in registration order, under the gate lock, so two
// concurrent toggles reach every listener in the same order.
type Gate struct {
	mu        sync.Mutex
	enabled   bool
	listeners []func(bool)
}

// NewGate creates a gate in the given state.
func NewGate(enabled bool) *Gate {
	return &Gate{enabled: enabled}
}

// Enabled reports the current state.
func (g *Gate) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}

// OnChange registers fn for later transitions.
func (g *Gate) OnChange(fn func(enabled bool)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, fn)
}

// Set changes the state and reports whether it changed. Setting the
// current state is a no-op.
func (g *Gate) Set(enabled bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.enabled == enabled {
		return false
	}
	g.enabled = enabled
	for _, fn := range g.listeners {
		fn(enabled)
	}
	slog.Info("input gate changed", "enabled", enabled)
	return true
}
