package state_managers

import (
	"sync/atomic"

	"github.com/benmeehan/telemetry-bridge/internal/models"
)

// State is an immutable view of the device: its connection and the latest telemetry snapshot.
// Telemetry is nil until the first telemetry update arrives.
type State struct {
	Connection models.DeviceConnection
	Telemetry  *models.TelemetrySnapshot
}

// StateCache holds the latest State in a single atomic slot. Readers never block writers and
// always observe a complete State.
type StateCache struct {
	current atomic.Pointer[State]
}

// NewStateCache returns a cache holding a disconnected device without telemetry.
func NewStateCache() *StateCache {
	c := &StateCache{}
	c.current.Store(&State{})
	return c
}

// Load returns the current state.
func (c *StateCache) Load() State {
	return *c.current.Load()
}

// Update atomically replaces the state with fn(current). fn may run more than once when
// writers race and must not have side effects.
func (c *StateCache) Update(fn func(State) State) State {
	for {
		old := c.current.Load()
		next := fn(*old)
		if c.current.CompareAndSwap(old, &next) {
			return next
		}
	}
}

// UpdateConnection replaces the device connection, keeping the telemetry snapshot.
func (c *StateCache) UpdateConnection(fn func(models.DeviceConnection) models.DeviceConnection) models.DeviceConnection {
	s := c.Update(func(s State) State {
		s.Connection = fn(s.Connection)
		return s
	})
	return s.Connection
}

// SetTelemetry replaces the telemetry snapshot wholesale.
func (c *StateCache) SetTelemetry(snapshot models.TelemetrySnapshot) {
	c.Update(func(s State) State {
		s.Telemetry = &snapshot
		return s
	})
}
