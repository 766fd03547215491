package utils

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/benmeehan/telemetry-bridge/internal/constants"
	"github.com/benmeehan/telemetry-bridge/pkg/file"
)

// ErrInvalidConfig is returned when the configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the structure of the configuration file.
type Config struct {
	MQTT struct {
		Broker               string        `yaml:"broker"`                 // MQTT broker address
		ClientID             string        `yaml:"client_id"`              // MQTT client ID, suffixed with a UUID at startup
		Username             string        `yaml:"username"`               // Optional broker username
		Password             string        `yaml:"password"`               // Optional broker password
		CACertificate        string        `yaml:"ca_certificate"`         // Path to the CA certificate
		KeepAlive            time.Duration `yaml:"keep_alive"`             // Keepalive interval
		ConnectTimeout       time.Duration `yaml:"connect_timeout"`        // Timeout for a single connect attempt
		ConnectRetryInterval time.Duration `yaml:"connect_retry_interval"` // Delay between initial connect attempts
		MaxReconnectInterval time.Duration `yaml:"max_reconnect_interval"` // Upper bound of the reconnect backoff
	} `yaml:"mqtt"`

	Publish struct {
		Topic string `yaml:"topic"` // Topic telemetry payloads are published on
	} `yaml:"publish"`

	Notify struct {
		Topic string `yaml:"topic"` // Topic connectivity and registration notifications are published on
	} `yaml:"notify"`

	Buffer struct {
		Enabled  bool   `yaml:"enabled"`  // Buffer messages while disconnected
		Size     int    `yaml:"size"`     // Maximum number of buffered messages
		Overflow string `yaml:"overflow"` // reject_new or drop_oldest
	} `yaml:"buffer"`

	Ingress struct {
		Source      string        `yaml:"source"`       // mqtt or nmea
		TopicPrefix string        `yaml:"topic_prefix"` // Prefix of the device event topics
		QOS         int           `yaml:"qos"`          // QoS of the device event subscriptions
		SerialPort  string        `yaml:"serial_port"`  // Serial device of the NMEA receiver
		BaudRate    int           `yaml:"baud_rate"`    // Baud rate of the NMEA receiver
		ReadTimeout time.Duration `yaml:"read_timeout"` // Serial read timeout
		ReopenDelay time.Duration `yaml:"reopen_delay"` // Delay before reopening a failed serial port
		Model       string        `yaml:"model"`        // Product model reported for the NMEA receiver
	} `yaml:"ingress"`

	Registration struct {
		Policy     string        `yaml:"policy"`      // manual or retry
		MaxRetries int           `yaml:"max_retries"` // Maximum number of retry attempts
		BaseDelay  time.Duration `yaml:"base_delay"`  // Initial delay between retries
		MaxBackoff time.Duration `yaml:"max_backoff"` // Maximum backoff time for registration retries
	} `yaml:"registration"`

	Heartbeat struct {
		Enabled  bool          `yaml:"enabled"`  // Enable/disable heartbeat service
		Topic    string        `yaml:"topic"`    // MQTT topic for heartbeat service
		Interval time.Duration `yaml:"interval"` // Interval between heartbeats
	} `yaml:"heartbeat"`

	Archive struct {
		Enabled       bool          `yaml:"enabled"`        // Enable/disable the InfluxDB archive
		URL           string        `yaml:"url"`            // InfluxDB server URL
		Token         string        `yaml:"token"`          // InfluxDB API token
		Org           string        `yaml:"org"`            // InfluxDB organization
		Bucket        string        `yaml:"bucket"`         // InfluxDB bucket
		BatchSize     uint          `yaml:"batch_size"`     // Points per write batch
		FlushInterval time.Duration `yaml:"flush_interval"` // Maximum time a point waits in the batch
	} `yaml:"archive"`

	Logging struct {
		Level  string `yaml:"level"`  // debug, info, warn or error
		Format string `yaml:"format"` // json or console
	} `yaml:"logging"`
}

// DefaultConfig returns the configuration used for every key the file leaves out.
func DefaultConfig() *Config {
	var c Config

	c.MQTT.ClientID = "telemetry-bridge"
	c.MQTT.KeepAlive = 30 * time.Second
	c.MQTT.ConnectTimeout = 10 * time.Second
	c.MQTT.ConnectRetryInterval = 5 * time.Second
	c.MQTT.MaxReconnectInterval = time.Minute

	c.Publish.Topic = constants.DefaultTelemetryTopic
	c.Notify.Topic = constants.DefaultNotifyTopic

	c.Buffer.Enabled = true
	c.Buffer.Size = constants.DefaultBufferSize
	c.Buffer.Overflow = constants.OverflowRejectNew

	c.Ingress.Source = constants.IngressSourceMQTT
	c.Ingress.TopicPrefix = constants.DefaultIngressPrefix
	c.Ingress.QOS = 1
	c.Ingress.BaudRate = constants.DefaultNMEABaudRate
	c.Ingress.ReadTimeout = constants.DefaultNMEAReadTimeout
	c.Ingress.ReopenDelay = constants.DefaultNMEAReopenDelay
	c.Ingress.Model = constants.DefaultNMEAModel

	c.Registration.Policy = string(constants.RegistrationManual)
	c.Registration.MaxRetries = constants.DefaultRegistrationMaxRetries
	c.Registration.BaseDelay = constants.DefaultRegistrationBaseDelay
	c.Registration.MaxBackoff = constants.DefaultRegistrationMaxBackoff

	c.Heartbeat.Enabled = true
	c.Heartbeat.Topic = constants.DefaultHeartbeatTopic
	c.Heartbeat.Interval = constants.DefaultHeartbeatInterval

	c.Archive.Bucket = "telemetry"

	c.Logging.Level = zerolog.InfoLevel.String()
	c.Logging.Format = constants.LogFormatJSON

	return &c
}

// Environment variables that override values from the file.
const (
	EnvBroker       = "BRIDGE_MQTT_BROKER"
	EnvClientID     = "BRIDGE_MQTT_CLIENT_ID"
	EnvUsername     = "BRIDGE_MQTT_USERNAME"
	EnvPassword     = "BRIDGE_MQTT_PASSWORD"
	EnvTopic        = "BRIDGE_PUBLISH_TOPIC"
	EnvLogLevel     = "BRIDGE_LOG_LEVEL"
	EnvArchiveToken = "BRIDGE_ARCHIVE_TOKEN"
)

// LoadConfig loads the YAML configuration from the specified file on top of the defaults,
// applies environment overrides and validates the result.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	config := DefaultConfig()

	exists, err := fileClient.IsFileExists(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to check config file: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("config file %s not found", filename)
	}

	if err := fileClient.ReadYamlFile(filename, config); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config.applyEnv(os.LookupEnv)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	overrides := map[string]*string{
		EnvBroker:       &c.MQTT.Broker,
		EnvClientID:     &c.MQTT.ClientID,
		EnvUsername:     &c.MQTT.Username,
		EnvPassword:     &c.MQTT.Password,
		EnvTopic:        &c.Publish.Topic,
		EnvLogLevel:     &c.Logging.Level,
		EnvArchiveToken: &c.Archive.Token,
	}
	for key, field := range overrides {
		if v, ok := lookup(key); ok && v != "" {
			*field = v
		}
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.MQTT.Broker == "" {
		invalid("mqtt.broker is required")
	}
	if c.MQTT.ClientID == "" {
		invalid("mqtt.client_id is required")
	}

	validTopic(invalid, "publish.topic", c.Publish.Topic)
	validTopic(invalid, "notify.topic", c.Notify.Topic)

	if c.Buffer.Enabled && c.Buffer.Size <= 0 {
		invalid("buffer.size must be positive, got %d", c.Buffer.Size)
	}
	overflows := SliceToSet([]string{constants.OverflowRejectNew, constants.OverflowDropOldest})
	if _, ok := overflows[c.Buffer.Overflow]; !ok {
		invalid("buffer.overflow must be %s or %s, got %q",
			constants.OverflowRejectNew, constants.OverflowDropOldest, c.Buffer.Overflow)
	}

	sources := SliceToSet([]string{constants.IngressSourceMQTT, constants.IngressSourceNMEA})
	if _, ok := sources[c.Ingress.Source]; !ok {
		invalid("ingress.source must be %s or %s, got %q",
			constants.IngressSourceMQTT, constants.IngressSourceNMEA, c.Ingress.Source)
	}
	switch c.Ingress.Source {
	case constants.IngressSourceMQTT:
		validTopic(invalid, "ingress.topic_prefix", c.Ingress.TopicPrefix)
		if c.Ingress.QOS < 0 || c.Ingress.QOS > 2 {
			invalid("ingress.qos must be 0, 1 or 2, got %d", c.Ingress.QOS)
		}
	case constants.IngressSourceNMEA:
		if c.Ingress.SerialPort == "" {
			invalid("ingress.serial_port is required for the nmea source")
		}
		if c.Ingress.BaudRate <= 0 {
			invalid("ingress.baud_rate must be positive, got %d", c.Ingress.BaudRate)
		}
		if c.Ingress.ReopenDelay <= 0 {
			invalid("ingress.reopen_delay must be positive")
		}
	}

	policies := SliceToSet([]constants.RegistrationPolicy{constants.RegistrationManual, constants.RegistrationRetry})
	if _, ok := policies[constants.RegistrationPolicy(c.Registration.Policy)]; !ok {
		invalid("registration.policy must be manual or retry, got %q", c.Registration.Policy)
	}
	if c.Registration.MaxRetries < 0 {
		invalid("registration.max_retries must not be negative")
	}
	if c.Registration.BaseDelay <= 0 || c.Registration.MaxBackoff < c.Registration.BaseDelay {
		invalid("registration.base_delay must be positive and not exceed registration.max_backoff")
	}

	if c.Heartbeat.Enabled {
		validTopic(invalid, "heartbeat.topic", c.Heartbeat.Topic)
		if c.Heartbeat.Interval <= 0 {
			invalid("heartbeat.interval must be positive")
		}
	}

	if c.Archive.Enabled && (c.Archive.URL == "" || c.Archive.Org == "" || c.Archive.Bucket == "") {
		invalid("archive.url, archive.org and archive.bucket are required when the archive is enabled")
	}

	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		invalid("logging.level: %v", err)
	}
	formats := SliceToSet([]string{constants.LogFormatJSON, constants.LogFormatConsole})
	if _, ok := formats[c.Logging.Format]; !ok {
		invalid("logging.format must be json or console, got %q", c.Logging.Format)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func validTopic(invalid func(string, ...any), key, topic string) {
	if topic == "" {
		invalid("%s is required", key)
		return
	}
	if strings.ContainsAny(topic, "+#") {
		invalid("%s must not contain wildcards, got %q", key, topic)
	}
}
