package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/benmeehan/telemetry-bridge/internal/models"
)

// Registrar is a mock of the device SDK registration session.
type Registrar struct {
	mock.Mock
}

func (m *Registrar) Register() error {
	args := m.Called()
	return args.Error(0)
}

func (m *Registrar) StartConnection() error {
	args := m.Called()
	return args.Error(0)
}

// Notifier is a mock of the user-facing notifier.
type Notifier struct {
	mock.Mock
}

func (m *Notifier) ConnectivityChanged(conn models.DeviceConnection) {
	m.Called(conn)
}

func (m *Notifier) RegistrationResult(err error) {
	m.Called(err)
}

// ComponentWatcher is a mock of an event source's per-component streams.
type ComponentWatcher struct {
	mock.Mock
}

func (m *ComponentWatcher) WatchComponent(key string) error {
	args := m.Called(key)
	return args.Error(0)
}

func (m *ComponentWatcher) UnwatchComponent(key string) error {
	args := m.Called(key)
	return args.Error(0)
}

// Signaler counts signals.
type Signaler struct {
	mock.Mock
}

func (m *Signaler) Signal() {
	m.Called()
}

// RegistrationHandler is a mock receiver of registration results.
type RegistrationHandler struct {
	mock.Mock
}

func (m *RegistrationHandler) HandleRegistrationResult(err error) {
	m.Called(err)
}
