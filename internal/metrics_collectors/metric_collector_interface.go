package metrics_collectors

import (
	"context"
)

// MetricCollector defines the interface for collecting a specific metric.
type MetricCollector interface {
	Name() string                            // Name of the metric (e.g., "process", "network")
	Collect(ctx context.Context) interface{} // Collect the metric data, nil when unavailable
}
