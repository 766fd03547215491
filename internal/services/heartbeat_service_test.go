package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/telemetry-bridge/internal/metrics_collectors"
	"github.com/benmeehan/telemetry-bridge/internal/mocks"
	"github.com/benmeehan/telemetry-bridge/internal/models"
	"github.com/benmeehan/telemetry-bridge/internal/state_managers"
	"github.com/benmeehan/telemetry-bridge/pkg/mqtt"
)

type fixedTransport struct {
	state    mqtt.ConnectionState
	buffered int
	dropped  uint64
}

func (f fixedTransport) State() mqtt.ConnectionState { return f.state }
func (f fixedTransport) Buffered() int               { return f.buffered }
func (f fixedTransport) Dropped() uint64             { return f.dropped }

type staticCollector struct {
	name  string
	value interface{}
}

func (s staticCollector) Name() string                        { return s.name }
func (s staticCollector) Collect(context.Context) interface{} { return s.value }

func TestHeartbeatService_PublishesHealth(t *testing.T) {
	cache := state_managers.NewStateCache()
	cache.UpdateConnection(func(c models.DeviceConnection) models.DeviceConnection {
		return c.WithProduct(mavic, models.Connected)
	})
	publisher := &mocks.Publisher{}

	h := NewHeartbeatService("djidrone/heartbeat", 10*time.Millisecond, "bridge-1", publisher,
		fixedTransport{state: mqtt.StateReconnecting, buffered: 7, dropped: 2}, cache, zerolog.Nop())
	h.Metrics = metrics_collectors.NewMetricsRegistry(
		staticCollector{name: "process", value: models.ProcessMetrics{CPUUsage: 1.5, MemoryRSS: 1024, Goroutines: 12}},
	)

	require.NoError(t, h.Start())
	assert.EqualError(t, h.Start(), "heartbeat service is already running")
	assert.Eventually(t, func() bool { return publisher.Count() >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, h.Stop())

	msg := publisher.Messages()[0]
	assert.Equal(t, "djidrone/heartbeat", msg.Topic)
	assert.Equal(t, models.QoSAtMostOnce, msg.QoS)

	var hb models.Heartbeat
	require.NoError(t, json.Unmarshal(msg.Payload, &hb))
	assert.Equal(t, "bridge-1", hb.ClientID)
	assert.Equal(t, "alive", hb.Status)
	assert.Equal(t, "reconnecting", hb.Transport)
	assert.Equal(t, 7, hb.Buffered)
	assert.EqualValues(t, 2, hb.Dropped)
	assert.Equal(t, "connected", hb.Device)
	assert.Equal(t, "Mavic 2 Pro", hb.Model)
	assert.Equal(t, map[string]interface{}{"cpu_usage": 1.5, "memory_rss": 1024.0, "goroutines": 12.0}, hb.Metrics["process"])
}

func TestHeartbeatService_UnavailableMetricsAreOmitted(t *testing.T) {
	publisher := &mocks.Publisher{}
	h := NewHeartbeatService("hb", time.Hour, "bridge-1", publisher, fixedTransport{}, state_managers.NewStateCache(), zerolog.Nop())
	h.Metrics = metrics_collectors.NewMetricsRegistry(staticCollector{name: "network"})

	h.beat(context.Background())

	var hb models.Heartbeat
	require.NoError(t, json.Unmarshal(publisher.Messages()[0].Payload, &hb))
	assert.Equal(t, "disconnected", hb.Transport)
	assert.Empty(t, hb.Model)
	assert.Nil(t, hb.Metrics)
}

func TestHeartbeatService_DefaultCollectors(t *testing.T) {
	h := NewHeartbeatService("hb", time.Second, "bridge-1", &mocks.Publisher{}, fixedTransport{}, state_managers.NewStateCache(), zerolog.Nop())

	collectors := h.Metrics.GetCollectors()
	assert.Contains(t, collectors, "process")
	assert.Contains(t, collectors, "network")
}

func TestHeartbeatService_StopWhenNotRunning(t *testing.T) {
	h := NewHeartbeatService("hb", time.Second, "bridge-1", &mocks.Publisher{}, fixedTransport{}, state_managers.NewStateCache(), zerolog.Nop())
	assert.EqualError(t, h.Stop(), "heartbeat service is not running")
}
