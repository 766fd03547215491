package models

// MQTT delivery qualities.
const (
	QoSAtMostOnce  byte = 0
	QoSAtLeastOnce byte = 1
)

// PublishMessage is a single outbound broker message.
type PublishMessage struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// StatusNotification is published on the notify topic when device connectivity changes.
type StatusNotification struct {
	Event      string `json:"event"`
	Status     string `json:"status"`
	Model      string `json:"model,omitempty"`
	Components int    `json:"components"`
	Timestamp  int64  `json:"timestamp"`
}

// RegistrationNotification is published on the notify topic after a registration attempt.
type RegistrationNotification struct {
	Event     string `json:"event"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Heartbeat is published periodically with the health of the bridge process.
type Heartbeat struct {
	ClientID  string                 `json:"client_id"`
	Status    string                 `json:"status"`
	Transport string                 `json:"transport"`
	Buffered  int                    `json:"buffered"`
	Dropped   uint64                 `json:"dropped"`
	Device    string                 `json:"device"`
	Model     string                 `json:"model,omitempty"`
	Metrics   map[string]interface{} `json:"metrics,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}
