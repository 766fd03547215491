package services

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/benmeehan/telemetry-bridge/internal/scheduler"
	"github.com/benmeehan/telemetry-bridge/internal/state_managers"
)

// StatusNotifyService tells the notifier about the device connection after each restart. It
// is rate limited by whoever calls Restart.
type StatusNotifyService struct {
	delay    time.Duration
	cache    *state_managers.StateCache
	notifier Notifier
	logger   zerolog.Logger

	timer   *scheduler.Timer
	mu      sync.Mutex
	running bool
}

// NewStatusNotifyService creates a notify service whose firings run on loop, delay after each
// restart.
func NewStatusNotifyService(delay time.Duration, loop *scheduler.Loop, cache *state_managers.StateCache,
	notifier Notifier, logger zerolog.Logger) *StatusNotifyService {
	s := &StatusNotifyService{
		delay:    delay,
		cache:    cache,
		notifier: notifier,
		logger:   logger,
	}
	s.timer = loop.NewTimer(s.fire)
	return s
}

// Start enables notifications. Nothing is sent until the first restart.
func (s *StatusNotifyService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("status notify service is already running")
	}
	s.running = true
	return nil
}

// Stop cancels a pending notification.
func (s *StatusNotifyService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return errors.New("status notify service is not running")
	}
	s.running = false
	s.timer.Cancel()
	return nil
}

// Restart cancels a pending notification and schedules a new one.
func (s *StatusNotifyService) Restart() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.timer.Cancel()
	s.timer.Schedule(s.delay)
}

func (s *StatusNotifyService) fire() {
	conn := s.cache.Load().Connection
	s.logger.Debug().Str("status", conn.Status.String()).Msg("Notifying connectivity change")
	s.notifier.ConnectivityChanged(conn)
}
