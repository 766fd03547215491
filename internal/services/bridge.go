package services

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/benmeehan/telemetry-bridge/internal/constants"
	"github.com/benmeehan/telemetry-bridge/internal/scheduler"
	"github.com/benmeehan/telemetry-bridge/internal/state_managers"
	"github.com/benmeehan/telemetry-bridge/pkg/network"
)

// BridgeConfig configures the bridge. NotifyDelay separates a restart from its connectivity
// notification.
type BridgeConfig struct {
	TelemetryTopic string
	NotifyDelay    time.Duration
}

// Bridge owns the device state and the single loop that runs publish ticks, debounced restarts
// and status notifications. Device event sources deliver into Watcher().
type Bridge struct {
	loop      *scheduler.Loop
	cache     *state_managers.StateCache
	debouncer *scheduler.Debouncer
	watcher   *ConnectivityWatcher
	publish   *PublishService
	notify    *StatusNotifyService
	logger    zerolog.Logger

	restarts atomic.Uint64
	mu       sync.Mutex
	running  bool
}

// NewBridge wires the bridge components. archive may be nil.
func NewBridge(
	cfg BridgeConfig,
	publisher Publisher,
	reachability network.Checker,
	notifier Notifier,
	archive TelemetryArchive,
	logger zerolog.Logger,
) *Bridge {
	b := &Bridge{
		loop:   scheduler.NewLoop("bridge", logger),
		cache:  state_managers.NewStateCache(),
		logger: logger,
	}
	b.debouncer = scheduler.NewDebouncer(b.loop, constants.DebounceQuietPeriod, b.restart)
	b.watcher = NewConnectivityWatcher(b.cache, b.debouncer, logger.With().Str("component", "watcher").Logger())
	b.publish = NewPublishService(cfg.TelemetryTopic, constants.PublishInterval, b.loop, b.cache,
		publisher, reachability, archive, logger.With().Str("component", "publish").Logger())
	b.notify = NewStatusNotifyService(cfg.NotifyDelay, b.loop, b.cache, notifier,
		logger.With().Str("component", "notify").Logger())
	return b
}

// Watcher returns the handler device event sources deliver to.
func (b *Bridge) Watcher() *ConnectivityWatcher {
	return b.watcher
}

// Cache returns the device state cache.
func (b *Bridge) Cache() *state_managers.StateCache {
	return b.cache
}

// Restarts returns how many debounced restarts have run.
func (b *Bridge) Restarts() uint64 {
	return b.restarts.Load()
}

// Start launches the loop and arms the publish tick.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		b.logger.Warn().Msg("Bridge is already running")
		return errors.New("bridge is already running")
	}
	if err := b.loop.Start(); err != nil {
		return err
	}
	if err := b.notify.Start(); err != nil {
		_ = b.loop.Stop()
		return err
	}
	if err := b.publish.Start(); err != nil {
		_ = b.notify.Stop()
		_ = b.loop.Stop()
		return err
	}
	b.running = true

	b.logger.Info().Msg("Bridge started")
	return nil
}

// Stop cancels all pending work and stops the loop.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return errors.New("bridge is not running")
	}
	b.running = false

	b.debouncer.Cancel()
	err := errors.Join(b.publish.Stop(), b.notify.Stop(), b.loop.Stop())

	b.logger.Info().Msg("Bridge stopped")
	return err
}

// restart runs on the loop once connectivity events have been quiet for the debounce period.
func (b *Bridge) restart() {
	n := b.restarts.Add(1)
	b.logger.Debug().Uint64("restarts", n).Msg("Connectivity settled, restarting tickers")
	b.publish.Restart()
	b.notify.Restart()
}
