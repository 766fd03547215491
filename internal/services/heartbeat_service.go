package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/benmeehan/telemetry-bridge/internal/constants"
	"github.com/benmeehan/telemetry-bridge/internal/metrics_collectors"
	"github.com/benmeehan/telemetry-bridge/internal/models"
	"github.com/benmeehan/telemetry-bridge/internal/state_managers"
	"github.com/benmeehan/telemetry-bridge/pkg/mqtt"
)

// TransportStatus exposes the health of the broker connection.
type TransportStatus interface {
	State() mqtt.ConnectionState
	Buffered() int
	Dropped() uint64
}

// HeartbeatService periodically publishes the health of the bridge.
type HeartbeatService struct {
	PubTopic  string
	Interval  time.Duration
	ClientID  string
	Publisher Publisher
	Transport TransportStatus
	Cache     *state_managers.StateCache
	Logger    zerolog.Logger
	Metrics   *metrics_collectors.MetricsRegistry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHeartbeatService initializes a new HeartbeatService.
func NewHeartbeatService(pubTopic string, interval time.Duration, clientID string, publisher Publisher,
	transport TransportStatus, cache *state_managers.StateCache, logger zerolog.Logger) *HeartbeatService {

	return &HeartbeatService{
		PubTopic:  pubTopic,
		Interval:  interval,
		ClientID:  clientID,
		Publisher: publisher,
		Transport: transport,
		Cache:     cache,
		Logger:    logger,
		Metrics: metrics_collectors.NewMetricsRegistry(
			metrics_collectors.NewProcessMetricCollector(logger),
			metrics_collectors.NewNetworkMetricCollector(logger),
		),
	}
}

// Start launches the heartbeat loop in a separate goroutine.
func (h *HeartbeatService) Start() error {
	if h.ctx != nil {
		h.Logger.Warn().Msg("HeartbeatService is already running")
		return errors.New("heartbeat service is already running")
	}

	h.ctx, h.cancel = context.WithCancel(context.Background())

	h.wg.Add(1)
	go func(ctx context.Context) {
		defer h.wg.Done()
		h.runHeartbeatLoop(ctx)
	}(h.ctx)

	h.Logger.Info().Str("topic", h.PubTopic).Msg("HeartbeatService started successfully")
	return nil
}

// Stop gracefully stops the heartbeat service.
func (h *HeartbeatService) Stop() error {
	if h.ctx == nil {
		h.Logger.Warn().Msg("HeartbeatService is not running")
		return errors.New("heartbeat service is not running")
	}

	h.cancel()
	h.wg.Wait()

	h.ctx = nil
	h.cancel = nil

	h.Logger.Info().Msg("HeartbeatService stopped successfully")
	return nil
}

// runHeartbeatLoop continuously sends heartbeat messages at the specified interval.
func (h *HeartbeatService) runHeartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.beat(ctx)
		case <-ctx.Done():
			h.Logger.Info().Msg("HeartbeatService stopping gracefully")
			return
		}
	}
}

func (h *HeartbeatService) beat(ctx context.Context) {
	payload, err := json.Marshal(h.heartbeat(ctx))
	if err != nil {
		h.Logger.Error().Err(err).Msg("Failed to serialize heartbeat message")
		return
	}

	err = h.Publisher.Publish(models.PublishMessage{
		Topic:   h.PubTopic,
		Payload: payload,
		QoS:     models.QoSAtMostOnce,
	})
	if err != nil {
		h.Logger.Debug().Err(err).Msg("Failed to publish heartbeat message")
		return
	}
	h.Logger.Debug().Msg("Heartbeat published successfully")
}

func (h *HeartbeatService) heartbeat(ctx context.Context) models.Heartbeat {
	conn := h.Cache.Load().Connection
	hb := models.Heartbeat{
		ClientID:  h.ClientID,
		Status:    constants.StatusAlive,
		Transport: h.Transport.State().String(),
		Buffered:  h.Transport.Buffered(),
		Dropped:   h.Transport.Dropped(),
		Device:    conn.Status.String(),
		Timestamp: time.Now().Unix(),
	}
	if conn.Product != nil {
		hb.Model = conn.Product.Model
	}
	if h.Metrics != nil {
		ctx, cancel := context.WithTimeout(ctx, h.Interval)
		defer cancel()
		hb.Metrics = h.Metrics.Collect(ctx)
	}
	return hb
}
