package ingress

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/benmeehan/telemetry-bridge/internal/models"
	"github.com/benmeehan/telemetry-bridge/pkg/location"
)

// NMEASource reports a serial GPS receiver as an aircraft product. The product is connected
// while the port is open; every GGA or RMC sentence produces a telemetry snapshot. The port is
// reopened after reopenDelay whenever it fails.
type NMEASource struct {
	opener      location.PortOpener
	model       string
	reopenDelay time.Duration
	logger      zerolog.Logger

	mu      sync.Mutex
	handler models.DeviceEventHandler
	port    io.Closer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNMEASource creates a source reading from ports opened by opener.
func NewNMEASource(opener location.PortOpener, model string, reopenDelay time.Duration, logger zerolog.Logger) *NMEASource {
	return &NMEASource{
		opener:      opener,
		model:       model,
		reopenDelay: reopenDelay,
		logger:      logger,
	}
}

// SetHandler sets the receiver of device events. It must be called before Start.
func (s *NMEASource) SetHandler(h models.DeviceEventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Start attaches the product and begins reading the receiver.
func (s *NMEASource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		return errors.New("nmea source is already running")
	}
	if s.handler == nil {
		return errors.New("nmea source has no event handler")
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.handler.OnConnectivityChanged(models.ConnectivityEvent{
		Type:     models.ProductChanged,
		Entity:   models.ProductEntity,
		Attached: true,
		Product:  &models.Product{Model: s.model, Kind: models.ProductKindAircraft},
	})

	s.wg.Add(1)
	go s.run(s.ctx, s.handler)

	s.logger.Info().Str("model", s.model).Msg("NMEA source started")
	return nil
}

// Stop closes the port and waits for the reader to exit.
func (s *NMEASource) Stop() error {
	s.mu.Lock()
	if s.ctx == nil {
		s.mu.Unlock()
		return errors.New("nmea source is not running")
	}
	s.cancel()
	if s.port != nil {
		_ = s.port.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	s.ctx, s.cancel = nil, nil
	s.mu.Unlock()

	s.logger.Info().Msg("NMEA source stopped")
	return nil
}

// Register reports an immediate successful registration; a serial receiver needs none.
func (s *NMEASource) Register() error {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()

	if h != nil {
		go h.OnRegistrationResult(nil)
	}
	return nil
}

// StartConnection is a no-op: the port is opened by Start.
func (s *NMEASource) StartConnection() error {
	return nil
}

func (s *NMEASource) run(ctx context.Context, h models.DeviceEventHandler) {
	defer s.wg.Done()

	for {
		s.readPort(ctx, h)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.reopenDelay):
		}
	}
}

// readPort reads one port session to completion.
func (s *NMEASource) readPort(ctx context.Context, h models.DeviceEventHandler) {
	port, err := s.opener.Open()
	if err != nil {
		s.logger.Warn().Err(err).Dur("retry_in", s.reopenDelay).Msg("Failed to open GPS receiver")
		return
	}

	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		_ = port.Close()
		return
	}
	s.port = port
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.port = nil
		s.mu.Unlock()
		_ = port.Close()
	}()

	h.OnConnectivityChanged(productConnectivity(true))
	s.logger.Info().Msg("GPS receiver connected")

	err = location.NewReader(s.logger).Run(ctx, port, func(fix location.Fix) {
		h.OnTelemetryUpdated(SnapshotFromFix(fix))
	})

	if ctx.Err() != nil {
		return
	}
	h.OnConnectivityChanged(productConnectivity(false))
	s.logger.Warn().Err(err).Dur("retry_in", s.reopenDelay).Msg("GPS receiver disconnected")
}

func productConnectivity(connected bool) models.ConnectivityEvent {
	return models.ConnectivityEvent{
		Type:      models.ConnectivityChanged,
		Entity:    models.ProductEntity,
		Connected: connected,
	}
}

// SnapshotFromFix maps a GPS fix onto a telemetry snapshot. Heading and yaw follow the course
// over ground; the receiver reports no attitude, motor or flight state.
func SnapshotFromFix(fix location.Fix) models.TelemetrySnapshot {
	north, east := fix.Velocity()
	return models.TelemetrySnapshot{
		Heading:        fix.Course,
		Attitude:       models.Attitude{Yaw: fix.Course},
		GPSSignalLevel: fix.SignalLevel(),
		Location: &models.Location{
			Latitude:  fix.Latitude,
			Longitude: fix.Longitude,
			Altitude:  fix.Altitude,
		},
		Velocity: models.Velocity{X: north, Y: east},
	}
}
