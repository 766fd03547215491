// Package ingress adapts device event feeds to models.DeviceEventHandler.
package ingress

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/benmeehan/telemetry-bridge/internal/models"
)

var (
	// ErrRegistrationFailed wraps the reason reported by the device SDK gateway.
	ErrRegistrationFailed = errors.New("device registration failed")
	// ErrInvalidComponentKey is returned for component keys that cannot be used in a topic.
	ErrInvalidComponentKey = errors.New("invalid component key")
)

// Subscriber is the broker side used by the MQTT event source.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topics ...string) error
	Publish(msg models.PublishMessage) error
}

// MQTTEventSource receives device events published by the device SDK gateway under a topic
// prefix and sends registration commands back to it.
type MQTTEventSource struct {
	prefix    string
	clientID  string
	qos       byte
	transport Subscriber
	logger    zerolog.Logger
	now       func() time.Time

	mu         sync.Mutex
	handler    models.DeviceEventHandler
	running    bool
	components map[string]string
}

// NewMQTTEventSource creates a source for the given topic prefix.
func NewMQTTEventSource(prefix, clientID string, qos byte, transport Subscriber, logger zerolog.Logger) *MQTTEventSource {
	return &MQTTEventSource{
		prefix:     strings.TrimSuffix(prefix, "/"),
		clientID:   clientID,
		qos:        qos,
		transport:  transport,
		logger:     logger,
		now:        time.Now,
		components: make(map[string]string),
	}
}

// SetHandler sets the receiver of device events.
func (s *MQTTEventSource) SetHandler(h models.DeviceEventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Start subscribes to the device event topics.
func (s *MQTTEventSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("mqtt event source is already running")
	}

	subscriptions := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{s.topic("registration"), s.onRegistration},
		{s.topic("product"), s.onProduct},
		{s.topic("product", "connectivity"), s.onProductConnectivity},
		{s.topic("component", "+"), s.onComponent},
		{s.topic("telemetry"), s.onTelemetry},
	}
	for _, sub := range subscriptions {
		if err := s.transport.Subscribe(sub.topic, s.qos, sub.handler); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", sub.topic, err)
		}
	}
	s.running = true

	s.logger.Info().Str("prefix", s.prefix).Msg("MQTT event source started")
	return nil
}

// Stop unsubscribes from every device topic, including watched components.
func (s *MQTTEventSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return errors.New("mqtt event source is not running")
	}
	s.running = false

	topics := []string{
		s.topic("registration"),
		s.topic("product"),
		s.topic("product", "connectivity"),
		s.topic("component", "+"),
		s.topic("telemetry"),
	}
	for key, topic := range s.components {
		topics = append(topics, topic)
		delete(s.components, key)
	}

	if err := s.transport.Unsubscribe(topics...); err != nil {
		return fmt.Errorf("failed to unsubscribe device topics: %w", err)
	}
	s.logger.Info().Msg("MQTT event source stopped")
	return nil
}

// WatchComponent subscribes to the connectivity stream of a component.
func (s *MQTTEventSource) WatchComponent(key string) error {
	if key == "" || strings.ContainsAny(key, "/+#") {
		return fmt.Errorf("%w: %q", ErrInvalidComponentKey, key)
	}

	topic := s.topic("component", key, "connectivity")
	err := s.transport.Subscribe(topic, s.qos, func(_ mqtt.Client, msg mqtt.Message) {
		var update models.ConnectivityUpdate
		if !s.decode(msg, &update) {
			return
		}
		s.deliver(func(h models.DeviceEventHandler) {
			h.OnConnectivityChanged(models.ConnectivityEvent{
				Type:      models.ConnectivityChanged,
				Entity:    models.ComponentEntity(key),
				Connected: update.Connected,
			})
		})
	})
	if err != nil {
		return fmt.Errorf("failed to watch component %s: %w", key, err)
	}

	s.mu.Lock()
	s.components[key] = topic
	s.mu.Unlock()

	s.logger.Debug().Str("component", key).Str("topic", topic).Msg("Watching component connectivity")
	return nil
}

// UnwatchComponent drops the connectivity stream of a component.
func (s *MQTTEventSource) UnwatchComponent(key string) error {
	s.mu.Lock()
	topic, ok := s.components[key]
	delete(s.components, key)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	return s.transport.Unsubscribe(topic)
}

// Register asks the gateway to register the device SDK application.
func (s *MQTTEventSource) Register() error {
	return s.command("register")
}

// StartConnection asks the gateway to connect to the product once registered.
func (s *MQTTEventSource) StartConnection() error {
	return s.command("start_connection")
}

func (s *MQTTEventSource) command(name string) error {
	data, err := json.Marshal(models.RegistrationCommand{
		ClientID:  s.clientID,
		Timestamp: s.now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to serialize %s command: %w", name, err)
	}

	topic := s.topic("commands", name)
	if err := s.transport.Publish(models.PublishMessage{
		Topic:   topic,
		Payload: data,
		QoS:     models.QoSAtLeastOnce,
	}); err != nil {
		return fmt.Errorf("failed to publish %s command: %w", name, err)
	}

	s.logger.Info().Str("topic", topic).Msg("Command sent to device gateway")
	return nil
}

func (s *MQTTEventSource) onRegistration(_ mqtt.Client, msg mqtt.Message) {
	var ev models.RegistrationEvent
	if !s.decode(msg, &ev) {
		return
	}

	var err error
	if !ev.Success {
		reason := ev.Error
		if reason == "" {
			reason = "no reason given"
		}
		err = fmt.Errorf("%w: %s", ErrRegistrationFailed, reason)
	}
	s.deliver(func(h models.DeviceEventHandler) { h.OnRegistrationResult(err) })
}

func (s *MQTTEventSource) onProduct(_ mqtt.Client, msg mqtt.Message) {
	var ev models.ProductEvent
	if !s.decode(msg, &ev) {
		return
	}

	event := models.ConnectivityEvent{
		Type:      models.ProductChanged,
		Entity:    models.ProductEntity,
		Attached:  ev.Attached,
		Connected: ev.Connected,
	}
	if ev.Attached {
		kind := ev.Kind
		if kind == "" {
			kind = models.ProductKindUnknown
		}
		event.Product = &models.Product{Model: ev.Model, Kind: kind}
	}
	s.deliver(func(h models.DeviceEventHandler) { h.OnConnectivityChanged(event) })
}

func (s *MQTTEventSource) onProductConnectivity(_ mqtt.Client, msg mqtt.Message) {
	var update models.ConnectivityUpdate
	if !s.decode(msg, &update) {
		return
	}
	s.deliver(func(h models.DeviceEventHandler) {
		h.OnConnectivityChanged(models.ConnectivityEvent{
			Type:      models.ConnectivityChanged,
			Entity:    models.ProductEntity,
			Connected: update.Connected,
		})
	})
}

func (s *MQTTEventSource) onComponent(_ mqtt.Client, msg mqtt.Message) {
	key := strings.TrimPrefix(msg.Topic(), s.topic("component")+"/")
	if key == "" || strings.Contains(key, "/") {
		return
	}

	var ev models.ComponentEvent
	if !s.decode(msg, &ev) {
		return
	}
	s.deliver(func(h models.DeviceEventHandler) {
		h.OnConnectivityChanged(models.ConnectivityEvent{
			Type:      models.ComponentChanged,
			Entity:    models.ComponentEntity(key),
			Attached:  ev.Attached,
			Connected: ev.Connected,
		})
	})
}

func (s *MQTTEventSource) onTelemetry(_ mqtt.Client, msg mqtt.Message) {
	var update models.TelemetryUpdate
	if !s.decode(msg, &update) {
		return
	}
	snapshot := update.Snapshot()
	s.deliver(func(h models.DeviceEventHandler) { h.OnTelemetryUpdated(snapshot) })
}

func (s *MQTTEventSource) decode(msg mqtt.Message, v any) bool {
	if err := json.Unmarshal(msg.Payload(), v); err != nil {
		s.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("Dropping malformed device event")
		return false
	}
	return true
}

func (s *MQTTEventSource) deliver(fn func(models.DeviceEventHandler)) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()

	if h == nil {
		s.logger.Warn().Msg("Device event received before a handler was set")
		return
	}
	fn(h)
}

func (s *MQTTEventSource) topic(parts ...string) string {
	return s.prefix + "/" + strings.Join(parts, "/")
}
