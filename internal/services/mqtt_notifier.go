package services

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/benmeehan/telemetry-bridge/internal/constants"
	"github.com/benmeehan/telemetry-bridge/internal/models"
)

// MQTTNotifier publishes user-facing notifications on the notify topic at QoS 0.
type MQTTNotifier struct {
	topic     string
	publisher Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

// NewMQTTNotifier creates a notifier publishing on topic.
func NewMQTTNotifier(topic string, publisher Publisher, logger zerolog.Logger) *MQTTNotifier {
	return &MQTTNotifier{
		topic:     topic,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// ConnectivityChanged publishes the device connection status.
func (n *MQTTNotifier) ConnectivityChanged(conn models.DeviceConnection) {
	msg := models.StatusNotification{
		Event:      constants.EventConnectionChange,
		Status:     conn.Status.String(),
		Components: len(conn.Components),
		Timestamp:  n.now().Unix(),
	}
	if conn.Product != nil {
		msg.Model = conn.Product.Model
	}

	n.logger.Info().
		Str("status", msg.Status).
		Str("model", msg.Model).
		Int("components", msg.Components).
		Msg("Device connectivity changed")
	n.publish(msg)
}

// RegistrationResult publishes the outcome of a registration attempt.
func (n *MQTTNotifier) RegistrationResult(err error) {
	msg := models.RegistrationNotification{
		Event:     constants.EventRegistrationResult,
		Success:   err == nil,
		Timestamp: n.now().Unix(),
	}
	if err != nil {
		msg.Error = err.Error()
		n.logger.Error().Err(err).Msg("Device registration failed")
	} else {
		n.logger.Info().Msg("Device registered")
	}
	n.publish(msg)
}

func (n *MQTTNotifier) publish(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		n.logger.Error().Err(err).Msg("Failed to serialize notification")
		return
	}

	err = n.publisher.Publish(models.PublishMessage{
		Topic:   n.topic,
		Payload: data,
		QoS:     models.QoSAtMostOnce,
	})
	if err != nil {
		n.logger.Debug().Err(err).Str("topic", n.topic).Msg("Notification not published")
	}
}
