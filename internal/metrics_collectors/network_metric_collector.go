package metrics_collectors

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/net"

	"github.com/benmeehan/telemetry-bridge/internal/models"
)

const loopbackInterface = "lo"

// NetworkMetricCollector reports the receive and send rates of the uplink interfaces, that is
// every interface except loopback.
type NetworkMetricCollector struct {
	Logger zerolog.Logger

	counters func(ctx context.Context, pernic bool) ([]net.IOCountersStat, error)
	now      func() time.Time

	prevRecv uint64
	prevSent uint64
	prevAt   time.Time
}

// NewNetworkMetricCollector creates a collector reading the host interface counters.
func NewNetworkMetricCollector(logger zerolog.Logger) *NetworkMetricCollector {
	return &NetworkMetricCollector{
		Logger:   logger,
		counters: net.IOCountersWithContext,
		now:      time.Now,
	}
}

// Name returns the identifier for the network metric collector.
func (n *NetworkMetricCollector) Name() string {
	return "network"
}

// Collect returns the rates since the previous call. The first call only takes a sample.
func (n *NetworkMetricCollector) Collect(ctx context.Context) interface{} {
	stats, err := n.counters(ctx, true)
	if err != nil {
		n.Logger.Debug().Err(err).Msg("Failed to retrieve network statistics")
		return nil
	}

	var recv, sent uint64
	uplinks := 0
	for _, s := range stats {
		if s.Name == loopbackInterface {
			continue
		}
		recv += s.BytesRecv
		sent += s.BytesSent
		uplinks++
	}
	if uplinks == 0 {
		return nil
	}

	now := n.now()
	prevRecv, prevSent, prevAt := n.prevRecv, n.prevSent, n.prevAt
	n.prevRecv, n.prevSent, n.prevAt = recv, sent, now

	elapsed := now.Sub(prevAt).Seconds()
	if prevAt.IsZero() || elapsed <= 0 {
		return nil
	}

	return &models.NetworkMetrics{
		NetworkInRate:  rate(prevRecv, recv, elapsed),
		NetworkOutRate: rate(prevSent, sent, elapsed),
	}
}

// rate is zero when the counter went backwards, as it does when an interface is reset.
func rate(prev, curr uint64, seconds float64) float64 {
	if curr < prev {
		return 0
	}
	return float64(curr-prev) / seconds
}
