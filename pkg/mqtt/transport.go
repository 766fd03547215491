package mqtt

import (
	"context"
	"errors"
	"sync"

	"github.com/benmeehan/telemetry-bridge/internal/models"
	"github.com/benmeehan/telemetry-bridge/internal/utils"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// ConnectionState is the broker connection state of the transport.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateConnectionLost
	StateReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateConnectionLost:
		return "connection_lost"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// TransportConfig configures disconnected buffering.
type TransportConfig struct {
	BufferEnabled  bool
	BufferSize     int
	OverflowPolicy OverflowPolicy
	// DisconnectQuiesce is passed to paho on Stop, in milliseconds.
	DisconnectQuiesce uint
}

type subscription struct {
	qos     byte
	handler mqtt.MessageHandler
}

// Transport keeps a persistent broker session. Messages published while the session is down
// are held in a bounded buffer and flushed, in order, when the connection comes back.
// Reconnection is left to paho's automatic reconnect with its own backoff.
type Transport struct {
	client        MQTTClient
	buffer        *MessageBuffer
	bufferEnabled bool
	quiesce       uint
	logger        zerolog.Logger

	flushMu       sync.Mutex
	mu            sync.Mutex
	state         ConnectionState
	subscriptions map[string]subscription
	worker        *utils.WorkerPool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewTransport creates a transport around a paho client built from opts. The connection
// handlers on opts are replaced by the transport's own.
func NewTransport(opts *mqtt.ClientOptions, cfg TransportConfig, logger zerolog.Logger) *Transport {
	t := newTransport(nil, cfg, logger)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		t.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		t.handleConnectionLost(err)
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		t.handleReconnecting()
	})

	t.client = mqtt.NewClient(opts)
	return t
}

func newTransport(client MQTTClient, cfg TransportConfig, logger zerolog.Logger) *Transport {
	return &Transport{
		client:        client,
		buffer:        NewMessageBuffer(cfg.BufferSize, cfg.OverflowPolicy),
		bufferEnabled: cfg.BufferEnabled,
		quiesce:       cfg.DisconnectQuiesce,
		logger:        logger,
		state:         StateDisconnected,
		subscriptions: make(map[string]subscription),
	}
}

// Start launches the connect worker and begins connecting.
func (t *Transport) Start() error {
	t.mu.Lock()
	if t.ctx != nil {
		t.mu.Unlock()
		t.logger.Warn().Msg("Transport is already running")
		return errors.New("transport is already running")
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.worker = utils.NewWorkerPool(1, t.logger)
	t.mu.Unlock()

	t.Connect()
	t.logger.Info().Msg("Transport started")
	return nil
}

// Stop disconnects from the broker. Buffered messages are discarded.
func (t *Transport) Stop() error {
	t.mu.Lock()
	if t.ctx == nil {
		t.mu.Unlock()
		t.logger.Warn().Msg("Transport is not running")
		return errors.New("transport is not running")
	}
	t.cancel()
	worker := t.worker
	t.worker = nil
	t.ctx = nil
	t.cancel = nil
	t.state = StateDisconnected
	t.mu.Unlock()

	t.client.Disconnect(t.quiesce)
	worker.Shutdown()

	if n := t.buffer.Len(); n > 0 {
		t.logger.Warn().Int("buffered", n).Msg("Discarding buffered messages on shutdown")
		t.buffer.Drain()
	}
	t.logger.Info().Msg("Transport stopped")
	return nil
}

// Connect starts a connection attempt on the transport's worker. It is a no-op unless the
// transport is running and disconnected, so it is safe to call at any time.
func (t *Transport) Connect() {
	t.mu.Lock()
	if t.ctx == nil || t.state != StateDisconnected {
		state := t.state
		t.mu.Unlock()
		t.logger.Debug().Str("state", state.String()).Msg("Connect ignored")
		return
	}
	t.state = StateConnecting
	ctx := t.ctx
	worker := t.worker
	t.mu.Unlock()

	worker.Submit(func() { t.connect(ctx) })
}

func (t *Transport) connect(ctx context.Context) {
	t.logger.Info().Msg("Connecting to MQTT broker")
	token := t.client.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return
	}

	if err := token.Error(); err != nil {
		t.logger.Error().Err(err).Msg("MQTT connection failed")
		t.mu.Lock()
		if t.state == StateConnecting {
			t.state = StateDisconnected
		}
		t.mu.Unlock()
		return
	}
	t.handleConnect()
}

// Publish sends msg when connected, otherwise buffers it. It never waits for the broker.
// ErrBufferFull and ErrBufferDisabled report a message that was not accepted.
func (t *Transport) Publish(msg models.PublishMessage) error {
	if msg.Topic == "" {
		return ErrInvalidTopic
	}

	t.mu.Lock()
	if t.state != StateConnected {
		err := t.bufferLocked(msg)
		t.mu.Unlock()
		return err
	}
	ctx := t.ctx
	t.mu.Unlock()

	t.send(ctx, msg)
	return nil
}

// Subscribe registers a handler for topic. The subscription is tracked and restored on every
// reconnect; if the transport is connected it is also issued immediately.
func (t *Transport) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	t.mu.Lock()
	t.subscriptions[topic] = subscription{qos: qos, handler: handler}
	connected := t.state == StateConnected
	ctx := t.ctx
	t.mu.Unlock()

	if connected {
		t.subscribe(ctx, topic, qos, handler)
	}
	return nil
}

// Unsubscribe drops the tracked subscriptions and unsubscribes from the broker if connected.
func (t *Transport) Unsubscribe(topics ...string) error {
	t.mu.Lock()
	for _, topic := range topics {
		delete(t.subscriptions, topic)
	}
	connected := t.state == StateConnected
	ctx := t.ctx
	t.mu.Unlock()

	if connected && len(topics) > 0 {
		token := t.client.Unsubscribe(topics...)
		go t.await(ctx, token, func(err error) {
			t.logger.Warn().Err(err).Strs("topics", topics).Msg("Failed to unsubscribe")
		})
	}
	return nil
}

// State returns the current connection state.
func (t *Transport) State() ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// IsConnected reports whether messages are currently sent straight to the broker.
func (t *Transport) IsConnected() bool {
	return t.State() == StateConnected
}

// Buffered returns the number of messages waiting for the connection.
func (t *Transport) Buffered() int {
	return t.buffer.Len()
}

// Dropped returns how many messages the buffer has lost to its overflow policy.
func (t *Transport) Dropped() uint64 {
	return t.buffer.Dropped()
}

// handleConnect restores subscriptions and flushes the buffer before marking the transport
// connected, so buffered messages always precede newly published ones.
func (t *Transport) handleConnect() {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()

	t.mu.Lock()
	if t.ctx == nil || t.state == StateConnected {
		t.mu.Unlock()
		return
	}
	ctx := t.ctx
	from := t.state
	subs := make(map[string]subscription, len(t.subscriptions))
	for topic, sub := range t.subscriptions {
		subs[topic] = sub
	}
	t.mu.Unlock()

	for topic, sub := range subs {
		t.subscribe(ctx, topic, sub.qos, sub.handler)
	}

	flushed := 0
	for {
		t.mu.Lock()
		pending := t.buffer.Drain()
		if len(pending) == 0 {
			// A connection lost during the flush leaves the state alone; paho calls
			// handleConnect again once it has reconnected.
			if t.ctx != nil && t.state == from {
				t.reconcileSubscriptionsLocked(ctx, subs)
				t.state = StateConnected
			}
			t.mu.Unlock()
			break
		}
		t.mu.Unlock()

		for _, msg := range pending {
			t.send(ctx, msg)
		}
		flushed += len(pending)
	}

	t.logger.Info().
		Int("subscriptions", len(subs)).
		Int("flushed", flushed).
		Msg("Connected to MQTT broker")
}

// reconcileSubscriptionsLocked brings the broker in line with subscriptions added or removed
// after handleConnect took its copy, while it was flushing the buffer.
func (t *Transport) reconcileSubscriptionsLocked(ctx context.Context, issued map[string]subscription) {
	for topic, sub := range t.subscriptions {
		if _, ok := issued[topic]; !ok {
			t.subscribe(ctx, topic, sub.qos, sub.handler)
		}
	}

	var removed []string
	for topic := range issued {
		if _, ok := t.subscriptions[topic]; !ok {
			removed = append(removed, topic)
		}
	}
	if len(removed) > 0 {
		token := t.client.Unsubscribe(removed...)
		go t.await(ctx, token, func(err error) {
			t.logger.Warn().Err(err).Strs("topics", removed).Msg("Failed to unsubscribe")
		})
	}
}

func (t *Transport) handleConnectionLost(err error) {
	t.mu.Lock()
	if t.ctx != nil {
		t.state = StateConnectionLost
	}
	t.mu.Unlock()
	t.logger.Warn().Err(err).Msg("MQTT connection lost")
}

func (t *Transport) handleReconnecting() {
	t.mu.Lock()
	if t.ctx != nil {
		t.state = StateReconnecting
	}
	t.mu.Unlock()
	t.logger.Info().Msg("Reconnecting to MQTT broker")
}

func (t *Transport) bufferLocked(msg models.PublishMessage) error {
	if !t.bufferEnabled {
		return ErrBufferDisabled
	}
	if err := t.buffer.Push(msg); err != nil {
		return err
	}
	t.logger.Debug().
		Str("topic", msg.Topic).
		Int("buffered", t.buffer.Len()).
		Msg("Message buffered while disconnected")
	return nil
}

func (t *Transport) send(ctx context.Context, msg models.PublishMessage) {
	token := t.client.Publish(msg.Topic, msg.QoS, msg.Retained, msg.Payload)
	go t.await(ctx, token, func(err error) {
		t.handleDeliveryFailure(msg, err)
	})
}

func (t *Transport) subscribe(ctx context.Context, topic string, qos byte, handler mqtt.MessageHandler) {
	token := t.client.Subscribe(topic, qos, handler)
	go t.await(ctx, token, func(err error) {
		t.logger.Warn().Err(err).Str("topic", topic).Msg("Failed to subscribe")
	})
}

// handleDeliveryFailure puts an at-least-once message back into the buffer when the failure
// was caused by the connection going away.
func (t *Transport) handleDeliveryFailure(msg models.PublishMessage, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if msg.QoS == models.QoSAtMostOnce || t.state == StateConnected || t.ctx == nil {
		t.logger.Warn().Err(err).Str("topic", msg.Topic).Msg("Failed to publish message")
		return
	}
	if bufErr := t.bufferLocked(msg); bufErr != nil {
		t.logger.Warn().Err(err).AnErr("buffer_error", bufErr).Str("topic", msg.Topic).
			Msg("Failed to publish message and could not buffer it")
		return
	}
	t.logger.Debug().Err(err).Str("topic", msg.Topic).Msg("Delivery interrupted, message re-buffered")
}

// await waits for a token without blocking the caller and reports a failure through onError.
func (t *Transport) await(ctx context.Context, token mqtt.Token, onError func(error)) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-token.Done():
	case <-ctx.Done():
		return
	}
	if err := token.Error(); err != nil {
		onError(err)
	}
}
