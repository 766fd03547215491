// Package archive stores published telemetry in InfluxDB.
package archive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"

	"github.com/benmeehan/telemetry-bridge/internal/payload"
)

const (
	measurement         = "telemetry"
	defaultPingTimeout  = 5 * time.Second
	defaultBatchSize    = 100
	defaultFlushSeconds = 1
)

var (
	// ErrConnectionFailed is returned when the server cannot be reached at startup.
	ErrConnectionFailed = errors.New("influxdb connection failed")
	// ErrClosed is returned by Close on an already closed sink.
	ErrClosed = errors.New("influxdb sink is closed")
)

// Config holds the InfluxDB connection settings.
type Config struct {
	URL           string
	Token         string
	Org           string
	Bucket        string
	BatchSize     uint
	FlushInterval time.Duration
}

// InfluxSink writes one point per published payload through the non-blocking write API.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	logger   zerolog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewInfluxSink connects to the server and verifies it is healthy.
func NewInfluxSink(ctx context.Context, cfg Config, logger zerolog.Logger) (*InfluxSink, error) {
	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = defaultBatchSize
	}
	flushMs := uint(cfg.FlushInterval / time.Millisecond)
	if flushMs == 0 {
		flushMs = defaultFlushSeconds * 1000
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(batchSize).
			SetFlushInterval(flushMs))

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	return newInfluxSink(client, client.WriteAPI(cfg.Org, cfg.Bucket), logger), nil
}

func newInfluxSink(client influxdb2.Client, writeAPI api.WriteAPI, logger zerolog.Logger) *InfluxSink {
	s := &InfluxSink{
		client:   client,
		writeAPI: writeAPI,
		logger:   logger,
		done:     make(chan struct{}),
	}
	go s.handleWriteErrors(writeAPI.Errors())
	return s
}

// Write queues a point for the payload. Payloads without a model are skipped.
func (s *InfluxSink) Write(p payload.TelemetryPayload, at time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return
	}
	point := Point(p, at)
	if point == nil {
		return
	}
	s.writeAPI.WritePoint(point)
}

// Close flushes pending points and closes the client.
func (s *InfluxSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	s.mu.Unlock()

	s.writeAPI.Flush()
	if s.client != nil {
		s.client.Close()
	}
	close(s.done)
	return nil
}

func (s *InfluxSink) handleWriteErrors(errorsCh <-chan error) {
	for {
		select {
		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			s.logger.Warn().Err(err).Msg("Failed to write telemetry to InfluxDB")
		case <-s.done:
			return
		}
	}
}

// Point converts a payload into a telemetry point tagged with the model. Only fields present
// in the payload are written; nil is returned when there is nothing to write.
func Point(p payload.TelemetryPayload, at time.Time) *write.Point {
	if p.Model == nil {
		return nil
	}

	fields := make(map[string]interface{})
	floats := map[string]*float64{
		"heading":    p.Heading,
		"pitch":      p.Pitch,
		"roll":       p.Roll,
		"yaw":        p.Yaw,
		"latitude":   p.Latitude,
		"longitude":  p.Longitude,
		"altitude":   p.Altitude,
		"velocity_x": p.VelocityX,
		"velocity_y": p.VelocityY,
		"velocity_z": p.VelocityZ,
	}
	for name, v := range floats {
		if v != nil {
			fields[name] = *v
		}
	}
	if p.MotorsState != nil {
		fields["motors_state"] = *p.MotorsState
	}
	if p.FlyingState != nil {
		fields["flying_state"] = *p.FlyingState
	}
	if p.GPSSignal != nil {
		fields["gps_signal"] = int64(*p.GPSSignal)
	}

	fields["flight_data"] = len(fields) > 0

	return write.NewPoint(measurement, map[string]string{"model": *p.Model}, fields, at)
}
