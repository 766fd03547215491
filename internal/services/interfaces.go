package services

import (
	"time"

	"github.com/benmeehan/telemetry-bridge/internal/models"
	"github.com/benmeehan/telemetry-bridge/internal/payload"
)

// Publisher accepts outbound messages. Implementations must not wait for the broker.
type Publisher interface {
	Publish(msg models.PublishMessage) error
}

// ComponentWatcher starts and stops the per-component connectivity stream of an event source.
type ComponentWatcher interface {
	WatchComponent(key string) error
	UnwatchComponent(key string) error
}

// Registrar talks to the device SDK's registration session.
type Registrar interface {
	Register() error
	StartConnection() error
}

// Notifier delivers user-facing notifications.
type Notifier interface {
	ConnectivityChanged(conn models.DeviceConnection)
	RegistrationResult(err error)
}

// RegistrationHandler reacts to registration results reported by the device SDK.
type RegistrationHandler interface {
	HandleRegistrationResult(err error)
}

// Signaler is notified of every connectivity-affecting event.
type Signaler interface {
	Signal()
}

// TelemetryArchive stores published payloads. Writes must not block.
type TelemetryArchive interface {
	Write(p payload.TelemetryPayload, at time.Time)
}
