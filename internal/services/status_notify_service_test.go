package services

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/telemetry-bridge/internal/mocks"
	"github.com/benmeehan/telemetry-bridge/internal/models"
	"github.com/benmeehan/telemetry-bridge/internal/scheduler"
	"github.com/benmeehan/telemetry-bridge/internal/state_managers"
)

func newNotifyFixture(t *testing.T, delay time.Duration) (*StatusNotifyService, *state_managers.StateCache, *recordingNotifier) {
	t.Helper()
	loop := scheduler.NewLoop("test", zerolog.Nop())
	require.NoError(t, loop.Start())
	t.Cleanup(func() { _ = loop.Stop() })

	cache := state_managers.NewStateCache()
	notifier := &recordingNotifier{}
	return NewStatusNotifyService(delay, loop, cache, notifier, zerolog.Nop()), cache, notifier
}

func TestStatusNotifyService_NotifiesAfterRestart(t *testing.T) {
	s, cache, notifier := newNotifyFixture(t, 10*time.Millisecond)
	require.NoError(t, s.Start())
	assert.EqualError(t, s.Start(), "status notify service is already running")

	cache.UpdateConnection(func(c models.DeviceConnection) models.DeviceConnection {
		return c.WithProduct(mavic, models.Connected)
	})
	s.Restart()

	assert.Eventually(t, func() bool { return len(notifier.notified()) == 1 }, time.Second, time.Millisecond)
	conn := notifier.notified()[0]
	assert.Equal(t, models.Connected, conn.Status)
	assert.Equal(t, "Mavic 2 Pro", conn.Product.Model)
}

func TestStatusNotifyService_RestartSupersedesPending(t *testing.T) {
	s, _, notifier := newNotifyFixture(t, 30*time.Millisecond)
	require.NoError(t, s.Start())

	s.Restart()
	time.Sleep(10 * time.Millisecond)
	s.Restart()

	time.Sleep(100 * time.Millisecond)
	assert.Len(t, notifier.notified(), 1)
}

func TestStatusNotifyService_IdleWhenStopped(t *testing.T) {
	loop := scheduler.NewLoop("test", zerolog.Nop())
	require.NoError(t, loop.Start())
	defer loop.Stop()

	notifier := &mocks.Notifier{}
	s := NewStatusNotifyService(time.Millisecond, loop, state_managers.NewStateCache(), notifier, zerolog.Nop())

	s.Restart()
	require.NoError(t, s.Start())
	s.Restart()
	require.NoError(t, s.Stop())
	assert.EqualError(t, s.Stop(), "status notify service is not running")

	time.Sleep(20 * time.Millisecond)
	notifier.AssertNotCalled(t, "ConnectivityChanged", mock.Anything)
}
