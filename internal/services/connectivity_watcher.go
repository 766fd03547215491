package services

import (
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/benmeehan/telemetry-bridge/internal/models"
	"github.com/benmeehan/telemetry-bridge/internal/state_managers"
)

// ConnectivityWatcher applies device events to the state cache. Every connectivity-affecting
// event updates the cached DeviceConnection before the signaler is notified, so a restart
// triggered by the event always observes it.
type ConnectivityWatcher struct {
	cache  *state_managers.StateCache
	signal Signaler
	logger zerolog.Logger

	components   ComponentWatcher
	registration RegistrationHandler
	watched      cmap.ConcurrentMap[string, struct{}]
}

// NewConnectivityWatcher creates a watcher writing to cache and signaling signal.
func NewConnectivityWatcher(cache *state_managers.StateCache, signal Signaler, logger zerolog.Logger) *ConnectivityWatcher {
	return &ConnectivityWatcher{
		cache:   cache,
		signal:  signal,
		logger:  logger,
		watched: cmap.New[struct{}](),
	}
}

// SetComponentWatcher sets the source of per-component connectivity streams. It must be called
// before events are delivered.
func (w *ConnectivityWatcher) SetComponentWatcher(cw ComponentWatcher) {
	w.components = cw
}

// SetRegistrationHandler sets the receiver of registration results. It must be called before
// events are delivered.
func (w *ConnectivityWatcher) SetRegistrationHandler(h RegistrationHandler) {
	w.registration = h
}

// OnRegistrationResult implements models.DeviceEventHandler.
func (w *ConnectivityWatcher) OnRegistrationResult(err error) {
	if w.registration != nil {
		w.registration.HandleRegistrationResult(err)
	}
	w.signal.Signal()
}

// OnConnectivityChanged implements models.DeviceEventHandler.
func (w *ConnectivityWatcher) OnConnectivityChanged(ev models.ConnectivityEvent) {
	var conn models.DeviceConnection

	switch ev.Type {
	case models.ProductChanged:
		conn = w.productChanged(ev)
	case models.ComponentChanged:
		conn = w.componentChanged(ev)
	case models.ConnectivityChanged:
		conn = w.connectivityChanged(ev)
	default:
		w.logger.Warn().Str("type", string(ev.Type)).Msg("Ignoring unknown connectivity event")
		return
	}

	w.logger.Debug().
		Str("type", string(ev.Type)).
		Str("entity", string(ev.Entity.Kind)).
		Str("key", ev.Entity.Key).
		Str("status", conn.Status.String()).
		Int("components", len(conn.Components)).
		Msg("Device connectivity updated")

	w.signal.Signal()
}

// OnTelemetryUpdated implements models.DeviceEventHandler.
func (w *ConnectivityWatcher) OnTelemetryUpdated(snapshot models.TelemetrySnapshot) {
	w.cache.SetTelemetry(snapshot)
}

// Watched returns the keys of the components whose connectivity streams are active.
func (w *ConnectivityWatcher) Watched() []string {
	return w.watched.Keys()
}

func (w *ConnectivityWatcher) productChanged(ev models.ConnectivityEvent) models.DeviceConnection {
	if !ev.Attached || ev.Product == nil {
		w.unwatchAll()
		return w.cache.UpdateConnection(func(c models.DeviceConnection) models.DeviceConnection {
			return c.WithProduct(nil, models.Disconnected)
		})
	}

	w.logger.Info().
		Str("model", ev.Product.Model).
		Str("kind", string(ev.Product.Kind)).
		Bool("connected", ev.Connected).
		Msg("Product attached")
	return w.cache.UpdateConnection(func(c models.DeviceConnection) models.DeviceConnection {
		return c.WithProduct(ev.Product, models.StatusFromBool(ev.Connected))
	})
}

func (w *ConnectivityWatcher) componentChanged(ev models.ConnectivityEvent) models.DeviceConnection {
	key := ev.Entity.Key
	if !ev.Attached {
		conn := w.cache.UpdateConnection(func(c models.DeviceConnection) models.DeviceConnection {
			return c.WithoutComponent(key)
		})
		w.unwatch(key)
		return conn
	}

	conn := w.cache.UpdateConnection(func(c models.DeviceConnection) models.DeviceConnection {
		return c.WithComponent(key, models.ComponentStatus{Connected: ev.Connected})
	})
	w.watch(key)
	return conn
}

func (w *ConnectivityWatcher) connectivityChanged(ev models.ConnectivityEvent) models.DeviceConnection {
	status := models.StatusFromBool(ev.Connected)
	if ev.Entity.Kind == models.EntityProduct {
		return w.cache.UpdateConnection(func(c models.DeviceConnection) models.DeviceConnection {
			return c.WithStatus(status)
		})
	}
	return w.cache.UpdateConnection(func(c models.DeviceConnection) models.DeviceConnection {
		return c.WithComponent(ev.Entity.Key, models.ComponentStatus{Connected: ev.Connected})
	})
}

// watch subscribes to a component's connectivity stream once, however often it is attached.
func (w *ConnectivityWatcher) watch(key string) {
	if w.components == nil || !w.watched.SetIfAbsent(key, struct{}{}) {
		return
	}
	if err := w.components.WatchComponent(key); err != nil {
		w.watched.Remove(key)
		w.logger.Error().Err(err).Str("component", key).Msg("Failed to watch component connectivity")
	}
}

func (w *ConnectivityWatcher) unwatch(key string) {
	if w.components == nil {
		return
	}
	if _, ok := w.watched.Pop(key); !ok {
		return
	}
	if err := w.components.UnwatchComponent(key); err != nil {
		w.logger.Warn().Err(err).Str("component", key).Msg("Failed to unwatch component connectivity")
	}
}

func (w *ConnectivityWatcher) unwatchAll() {
	for _, key := range w.watched.Keys() {
		w.unwatch(key)
	}
}
