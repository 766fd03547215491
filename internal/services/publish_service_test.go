package services

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/telemetry-bridge/internal/mocks"
	"github.com/benmeehan/telemetry-bridge/internal/models"
	"github.com/benmeehan/telemetry-bridge/internal/payload"
	"github.com/benmeehan/telemetry-bridge/internal/scheduler"
	"github.com/benmeehan/telemetry-bridge/internal/state_managers"
	"github.com/benmeehan/telemetry-bridge/pkg/network"
)

const testInterval = 10 * time.Millisecond

type switchableReachability struct {
	reachable atomic.Bool
	calls     atomic.Int64
	panics    atomic.Int64
}

func (r *switchableReachability) Reachable() bool {
	r.calls.Add(1)
	if r.panics.Load() > 0 {
		r.panics.Add(-1)
		panic("interface listing exploded")
	}
	return r.reachable.Load()
}

type recordingArchive struct {
	mu       sync.Mutex
	payloads []payload.TelemetryPayload
}

func (a *recordingArchive) Write(p payload.TelemetryPayload, _ time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.payloads = append(a.payloads, p)
}

func (a *recordingArchive) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.payloads)
}

type publishFixture struct {
	loop      *scheduler.Loop
	cache     *state_managers.StateCache
	publisher *mocks.Publisher
	service   *PublishService
}

func newPublishFixture(t *testing.T, interval time.Duration, reachability network.Checker, archive TelemetryArchive) *publishFixture {
	t.Helper()
	loop := scheduler.NewLoop("test", zerolog.Nop())
	require.NoError(t, loop.Start())

	f := &publishFixture{
		loop:      loop,
		cache:     state_managers.NewStateCache(),
		publisher: &mocks.Publisher{},
	}
	f.service = NewPublishService("djidrone", interval, loop, f.cache, f.publisher, reachability, archive, zerolog.Nop())
	t.Cleanup(func() {
		_ = f.service.Stop()
		_ = loop.Stop()
	})
	return f
}

func (f *publishFixture) connectAircraft() {
	f.cache.UpdateConnection(func(c models.DeviceConnection) models.DeviceConnection {
		return c.WithProduct(mavic, models.Connected)
	})
}

func TestPublishService_PublishesEveryInterval(t *testing.T) {
	f := newPublishFixture(t, testInterval, network.Static(true), nil)
	f.connectAircraft()
	f.cache.SetTelemetry(models.TelemetrySnapshot{Heading: 10})

	require.NoError(t, f.service.Start())

	assert.Eventually(t, func() bool { return f.publisher.Count() >= 5 }, time.Second, testInterval)

	msg := f.publisher.Messages()[0]
	assert.Equal(t, "djidrone", msg.Topic)
	assert.Equal(t, models.QoSAtLeastOnce, msg.QoS)
	assert.False(t, msg.Retained)
	assert.Contains(t, string(msg.Payload), `"model":"Mavic 2 Pro"`)
	assert.Contains(t, string(msg.Payload), `"heading":10`)
}

func TestPublishService_StartTwiceFails(t *testing.T) {
	f := newPublishFixture(t, testInterval, network.Static(true), nil)

	require.NoError(t, f.service.Start())
	assert.EqualError(t, f.service.Start(), "publish service is already running")
}

func TestPublishService_UnreachableSkipsButKeepsTicking(t *testing.T) {
	reach := &switchableReachability{}
	f := newPublishFixture(t, testInterval, reach, nil)

	require.NoError(t, f.service.Start())
	assert.Eventually(t, func() bool { return reach.calls.Load() >= 5 }, time.Second, testInterval)
	assert.Zero(t, f.publisher.Count())

	reach.reachable.Store(true)
	assert.Eventually(t, func() bool { return f.publisher.Count() >= 1 }, time.Second, testInterval)
}

func TestPublishService_PublishErrorsDoNotStopTicks(t *testing.T) {
	f := newPublishFixture(t, testInterval, network.Static(true), nil)
	f.publisher.Err = errors.New("buffer is full")

	require.NoError(t, f.service.Start())
	assert.Eventually(t, func() bool { return f.publisher.Count() >= 5 }, time.Second, testInterval)
}

func TestPublishService_EncodeErrorsDoNotStopTicks(t *testing.T) {
	reach := &switchableReachability{}
	reach.reachable.Store(true)
	f := newPublishFixture(t, testInterval, reach, nil)
	f.connectAircraft()
	f.cache.SetTelemetry(models.TelemetrySnapshot{Heading: math.NaN()})

	require.NoError(t, f.service.Start())
	assert.Eventually(t, func() bool { return reach.calls.Load() >= 3 }, time.Second, testInterval)
	assert.Zero(t, f.publisher.Count())

	f.cache.SetTelemetry(models.TelemetrySnapshot{Heading: 1})
	assert.Eventually(t, func() bool { return f.publisher.Count() >= 1 }, time.Second, testInterval)
}

func TestPublishService_PanicsDoNotStopTicks(t *testing.T) {
	reach := &switchableReachability{}
	reach.reachable.Store(true)
	reach.panics.Store(2)
	f := newPublishFixture(t, testInterval, reach, nil)

	require.NoError(t, f.service.Start())
	assert.Eventually(t, func() bool { return f.publisher.Count() >= 2 }, time.Second, testInterval)
}

func TestPublishService_ArchivesPublishedPayloads(t *testing.T) {
	archive := &recordingArchive{}
	f := newPublishFixture(t, testInterval, network.Static(true), archive)

	require.NoError(t, f.service.Start())
	assert.Eventually(t, func() bool { return f.publisher.Count() >= 2 }, time.Second, testInterval)
	assert.Zero(t, archive.count(), "nothing to archive without a product")

	f.connectAircraft()
	assert.Eventually(t, func() bool { return archive.count() >= 2 }, time.Second, testInterval)
}

func TestPublishService_StopHaltsTicks(t *testing.T) {
	f := newPublishFixture(t, testInterval, network.Static(true), nil)

	require.NoError(t, f.service.Start())
	assert.Eventually(t, func() bool { return f.publisher.Count() >= 2 }, time.Second, testInterval)

	require.NoError(t, f.service.Stop())
	time.Sleep(3 * testInterval)
	n := f.publisher.Count()
	time.Sleep(5 * testInterval)
	assert.Equal(t, n, f.publisher.Count())

	assert.EqualError(t, f.service.Stop(), "publish service is not running")
}

func TestPublishService_RestartTicksImmediately(t *testing.T) {
	f := newPublishFixture(t, time.Hour, network.Static(true), nil)

	require.NoError(t, f.service.Start())
	time.Sleep(3 * testInterval)
	assert.Zero(t, f.publisher.Count())

	f.service.Restart()
	assert.Eventually(t, func() bool { return f.publisher.Count() == 1 }, time.Second, testInterval)
}

func TestPublishService_RestartWhenStoppedIsNoop(t *testing.T) {
	f := newPublishFixture(t, testInterval, network.Static(true), nil)

	f.service.Restart()
	time.Sleep(5 * testInterval)
	assert.Zero(t, f.publisher.Count())
}
