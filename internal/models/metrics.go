package models

// ProcessMetrics contains resource usage of the bridge process.
type ProcessMetrics struct {
	CPUUsage   float64 `json:"cpu_usage"`
	MemoryRSS  uint64  `json:"memory_rss"`
	Goroutines int     `json:"goroutines"`
}

// NetworkMetrics holds the network I/O rate metrics.
type NetworkMetrics struct {
	NetworkInRate  float64 `json:"network_in"`  // bytes/sec
	NetworkOutRate float64 `json:"network_out"` // bytes/sec
}
