package services

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/benmeehan/telemetry-bridge/internal/models"
	"github.com/benmeehan/telemetry-bridge/internal/payload"
	"github.com/benmeehan/telemetry-bridge/internal/scheduler"
	"github.com/benmeehan/telemetry-bridge/internal/state_managers"
	"github.com/benmeehan/telemetry-bridge/pkg/network"
)

// PublishService publishes the cached device state on a fixed interval. Every tick reschedules
// the next one, whatever happened during the tick.
type PublishService struct {
	// Configuration fields
	topic    string
	interval time.Duration

	// Dependencies
	cache        *state_managers.StateCache
	publisher    Publisher
	reachability network.Checker
	archive      TelemetryArchive
	logger       zerolog.Logger

	// Internal state
	timer   *scheduler.Timer
	mu      sync.Mutex
	running bool
}

// NewPublishService creates a publish service whose ticks run on loop. archive may be nil.
func NewPublishService(
	topic string,
	interval time.Duration,
	loop *scheduler.Loop,
	cache *state_managers.StateCache,
	publisher Publisher,
	reachability network.Checker,
	archive TelemetryArchive,
	logger zerolog.Logger,
) *PublishService {
	s := &PublishService{
		topic:        topic,
		interval:     interval,
		cache:        cache,
		publisher:    publisher,
		reachability: reachability,
		archive:      archive,
		logger:       logger,
	}
	s.timer = loop.NewTimer(s.tick)
	return s
}

// Start arms the first tick.
func (s *PublishService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Warn().Msg("PublishService is already running")
		return errors.New("publish service is already running")
	}
	s.running = true
	s.timer.Schedule(s.interval)

	s.logger.Info().Str("topic", s.topic).Dur("interval", s.interval).Msg("PublishService started")
	return nil
}

// Stop cancels the pending tick. A tick already running completes but does not reschedule.
func (s *PublishService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return errors.New("publish service is not running")
	}
	s.running = false
	s.timer.Cancel()

	s.logger.Info().Msg("PublishService stopped")
	return nil
}

// Restart cancels the pending tick and runs the next one immediately.
func (s *PublishService) Restart() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.timer.Cancel()
	s.timer.Schedule(0)
}

func (s *PublishService) tick() {
	defer s.reschedule()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("Recovered panic in publish tick")
		}
	}()

	if !s.reachability.Reachable() {
		s.logger.Debug().Msg("Network unreachable, skipping publish tick")
		return
	}

	state := s.cache.Load()
	p := payload.Build(state.Connection, state.Telemetry)
	data, err := payload.Encode(p)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode telemetry payload")
		return
	}

	err = s.publisher.Publish(models.PublishMessage{
		Topic:   s.topic,
		Payload: data,
		QoS:     models.QoSAtLeastOnce,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("topic", s.topic).Msg("Failed to publish telemetry")
	} else {
		s.logger.Debug().Str("topic", s.topic).Int("bytes", len(data)).Msg("Telemetry published")
	}

	if s.archive != nil && p.Model != nil {
		s.archive.Write(p, time.Now())
	}
}

func (s *PublishService) reschedule() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.timer.Schedule(s.interval)
	}
}
