package service_registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/benmeehan/telemetry-bridge/internal/constants"
	"github.com/benmeehan/telemetry-bridge/internal/ingress"
	"github.com/benmeehan/telemetry-bridge/internal/registry"
	"github.com/benmeehan/telemetry-bridge/internal/services"
	"github.com/benmeehan/telemetry-bridge/internal/utils"
	"github.com/benmeehan/telemetry-bridge/pkg/archive"
	"github.com/benmeehan/telemetry-bridge/pkg/file"
	"github.com/benmeehan/telemetry-bridge/pkg/location"
	"github.com/benmeehan/telemetry-bridge/pkg/mqtt"
	"github.com/benmeehan/telemetry-bridge/pkg/network"
)

// ServiceRegistry manages the lifecycle of the bridge services.
type ServiceRegistry struct {
	services    map[string]registry.Service // Stores registered services
	serviceKeys []string                    // Maintains order of service registration
	fileClient  file.FileOperations
	Logger      zerolog.Logger
}

// NewServiceRegistry initializes a new service registry with dependencies.
func NewServiceRegistry(fileClient file.FileOperations, logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services:   make(map[string]registry.Service),
		fileClient: fileClient,
		Logger:     logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc registry.Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// Services returns the registered service names in start order.
func (sr *ServiceRegistry) Services() []string {
	return append([]string(nil), sr.serviceKeys...)
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		startedServices = append(startedServices, name)
	}

	return nil
}

// StopServices stops all services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.serviceKeys) - 1; i >= 0; i-- {
		name := sr.serviceKeys[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// eventSource is a device event source that also carries registration requests.
type eventSource interface {
	registry.Service
	services.Registrar
}

// RegisterServices builds the bridge from the configuration and registers its services in
// start order. The event source starts after the bridge, so the watcher is ready before the
// first device event arrives.
func (sr *ServiceRegistry) RegisterServices(ctx context.Context, config *utils.Config) error {
	overflow, err := mqtt.ParseOverflowPolicy(config.Buffer.Overflow)
	if err != nil {
		return err
	}

	opts, err := mqtt.NewClientOptions(mqtt.ClientConfig{
		Broker:               config.MQTT.Broker,
		ClientID:             config.MQTT.ClientID,
		Username:             config.MQTT.Username,
		Password:             config.MQTT.Password,
		CACertificate:        config.MQTT.CACertificate,
		KeepAlive:            config.MQTT.KeepAlive,
		ConnectTimeout:       config.MQTT.ConnectTimeout,
		ConnectRetryInterval: config.MQTT.ConnectRetryInterval,
		MaxReconnectInterval: config.MQTT.MaxReconnectInterval,
	}, sr.fileClient)
	if err != nil {
		return fmt.Errorf("failed to build mqtt options: %w", err)
	}

	transport := mqtt.NewTransport(opts, mqtt.TransportConfig{
		BufferEnabled:     config.Buffer.Enabled,
		BufferSize:        config.Buffer.Size,
		OverflowPolicy:    overflow,
		DisconnectQuiesce: constants.DisconnectQuiesce,
	}, sr.logger("transport"))

	var telemetryArchive services.TelemetryArchive
	var sink *archive.InfluxSink
	if config.Archive.Enabled {
		sink, err = archive.NewInfluxSink(ctx, archive.Config{
			URL:           config.Archive.URL,
			Token:         config.Archive.Token,
			Org:           config.Archive.Org,
			Bucket:        config.Archive.Bucket,
			BatchSize:     config.Archive.BatchSize,
			FlushInterval: config.Archive.FlushInterval,
		}, sr.logger("archive"))
		if err != nil {
			return fmt.Errorf("failed to create archive: %w", err)
		}
		telemetryArchive = sink
	}

	notifier := services.NewMQTTNotifier(config.Notify.Topic, transport, sr.logger("notifier"))
	bridge := services.NewBridge(services.BridgeConfig{
		TelemetryTopic: config.Publish.Topic,
		NotifyDelay:    constants.NotifyDelay,
	}, transport, network.NewInterfaceChecker(sr.logger("network")), notifier, telemetryArchive, sr.logger("bridge"))

	var source eventSource
	switch config.Ingress.Source {
	case constants.IngressSourceNMEA:
		nmea := ingress.NewNMEASource(
			location.NewSerialPort(config.Ingress.SerialPort, config.Ingress.BaudRate, config.Ingress.ReadTimeout),
			config.Ingress.Model,
			config.Ingress.ReopenDelay,
			sr.logger("nmea"),
		)
		nmea.SetHandler(bridge.Watcher())
		source = nmea
	default:
		mqttSource := ingress.NewMQTTEventSource(
			config.Ingress.TopicPrefix,
			config.MQTT.ClientID,
			byte(config.Ingress.QOS),
			transport,
			sr.logger("ingress"),
		)
		mqttSource.SetHandler(bridge.Watcher())
		bridge.Watcher().SetComponentWatcher(mqttSource)
		source = mqttSource
	}

	registration := services.NewRegistrationService(
		constants.RegistrationPolicy(config.Registration.Policy),
		config.Registration.MaxRetries,
		config.Registration.BaseDelay,
		config.Registration.MaxBackoff,
		source,
		notifier,
		sr.logger("registration"),
	)
	bridge.Watcher().SetRegistrationHandler(registration)

	// Ordered service definitions
	servicesInOrder := []struct {
		name    string
		enabled bool
		service func() registry.Service
	}{
		{name: "transport", enabled: true, service: func() registry.Service { return transport }},
		{name: "archive", enabled: sink != nil, service: func() registry.Service { return &archiveService{sink: sink} }},
		{name: "bridge", enabled: true, service: func() registry.Service { return bridge }},
		{name: "ingress", enabled: true, service: func() registry.Service { return source }},
		{name: "registration", enabled: true, service: func() registry.Service { return registration }},
		{
			name:    "heartbeat",
			enabled: config.Heartbeat.Enabled,
			service: func() registry.Service {
				return services.NewHeartbeatService(
					config.Heartbeat.Topic,
					config.Heartbeat.Interval,
					config.MQTT.ClientID,
					transport,
					transport,
					bridge.Cache(),
					sr.logger("heartbeat"),
				)
			},
		},
	}

	registeredServices := []string{}
	for _, svc := range servicesInOrder {
		if svc.enabled {
			sr.RegisterService(svc.name, svc.service())
			registeredServices = append(registeredServices, svc.name)
		}
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", registeredServices)
	return nil
}

func (sr *ServiceRegistry) logger(component string) zerolog.Logger {
	return sr.Logger.With().Str("component", component).Logger()
}

// archiveService closes the archive after the bridge has stopped writing to it.
type archiveService struct {
	sink *archive.InfluxSink
}

func (a *archiveService) Start() error { return nil }

func (a *archiveService) Stop() error { return a.sink.Close() }
