package constants

import "time"

const (
	// PublishInterval is the period of the telemetry publish tick.
	PublishInterval = 100 * time.Millisecond

	// DebounceQuietPeriod is how long connectivity events must stay quiet before the publish
	// and notify tickers are restarted.
	DebounceQuietPeriod = 500 * time.Millisecond

	// DefaultBufferSize is the capacity of the disconnected message buffer.
	DefaultBufferSize = 100

	// DefaultTelemetryTopic is the topic telemetry payloads are published on.
	DefaultTelemetryTopic = "djidrone"

	// DefaultNotifyTopic is the topic connectivity notifications are published on.
	DefaultNotifyTopic = "djidrone/status"

	// DefaultIngressPrefix is the topic prefix the device SDK gateway publishes events under.
	DefaultIngressPrefix = "djidrone/device"

	// DisconnectQuiesce is the time in milliseconds paho may spend finishing work on disconnect.
	DisconnectQuiesce = 250
)

// Notification event names.
const (
	EventConnectionChange   = "connection_change"
	EventRegistrationResult = "registration_result"
)

// NotifyDelay is the delay between a restart and the connectivity notification it triggers.
const NotifyDelay = PublishInterval

// Heartbeat defaults.
const (
	DefaultHeartbeatTopic    = "djidrone/heartbeat"
	DefaultHeartbeatInterval = 30 * time.Second
	StatusAlive              = "alive"
)

// Event sources.
const (
	IngressSourceMQTT = "mqtt"
	IngressSourceNMEA = "nmea"
)

// NMEA receiver defaults.
const (
	DefaultNMEABaudRate    = 9600
	DefaultNMEAReadTimeout = time.Second
	DefaultNMEAReopenDelay = 5 * time.Second
	DefaultNMEAModel       = "NMEA GPS"
)

// Log formats.
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

// Buffer overflow policies.
const (
	OverflowRejectNew  = "reject_new"
	OverflowDropOldest = "drop_oldest"
)
