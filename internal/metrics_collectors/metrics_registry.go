package metrics_collectors

import (
	"context"
)

// The registry will manage all metric collectors and provide a way to add/remove them dynamically.
type MetricsRegistry struct {
	collectors map[string]MetricCollector
}

// NewMetricsRegistry creates a new MetricsRegistry instance.
func NewMetricsRegistry(collectors ...MetricCollector) *MetricsRegistry {
	r := &MetricsRegistry{
		collectors: make(map[string]MetricCollector),
	}
	for _, c := range collectors {
		r.Register(c)
	}
	return r
}

// Register adds a new metric collector to the registry.
func (r *MetricsRegistry) Register(collector MetricCollector) {
	r.collectors[collector.Name()] = collector
}

// GetCollectors returns all the metric collectors registered in the registry.
func (r *MetricsRegistry) GetCollectors() map[string]MetricCollector {
	return r.collectors
}

// Collect runs every collector and returns the results keyed by name. Collectors that have
// nothing to report are left out.
func (r *MetricsRegistry) Collect(ctx context.Context) map[string]interface{} {
	results := make(map[string]interface{}, len(r.collectors))
	for name, c := range r.collectors {
		if v := c.Collect(ctx); v != nil {
			results[name] = v
		}
	}
	return results
}
