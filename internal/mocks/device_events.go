package mocks

import (
	"sync"

	"github.com/benmeehan/telemetry-bridge/internal/models"
)

// DeviceEventHandler records every device event it receives.
type DeviceEventHandler struct {
	mu            sync.Mutex
	registrations []error
	events        []models.ConnectivityEvent
	snapshots     []models.TelemetrySnapshot
}

func (h *DeviceEventHandler) OnRegistrationResult(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.registrations = append(h.registrations, err)
}

func (h *DeviceEventHandler) OnConnectivityChanged(ev models.ConnectivityEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *DeviceEventHandler) OnTelemetryUpdated(snapshot models.TelemetrySnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshots = append(h.snapshots, snapshot)
}

func (h *DeviceEventHandler) Registrations() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]error(nil), h.registrations...)
}

func (h *DeviceEventHandler) Events() []models.ConnectivityEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.ConnectivityEvent(nil), h.events...)
}

func (h *DeviceEventHandler) Snapshots() []models.TelemetrySnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.TelemetrySnapshot(nil), h.snapshots...)
}
