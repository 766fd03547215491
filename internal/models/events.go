package models

// EntityKind distinguishes the device entities that report connectivity.
type EntityKind string

const (
	EntityProduct   EntityKind = "product"
	EntityComponent EntityKind = "component"
)

// EntityID identifies the product or a named component of it.
type EntityID struct {
	Kind EntityKind
	Key  string
}

// ProductEntity is the identifier of the attached product.
var ProductEntity = EntityID{Kind: EntityProduct}

// ComponentEntity returns the identifier of a named component.
func ComponentEntity(key string) EntityID {
	return EntityID{Kind: EntityComponent, Key: key}
}

// ConnectivityEventType is the kind of connectivity-affecting event.
type ConnectivityEventType string

const (
	// ProductChanged is sent when a product is attached or detached.
	ProductChanged ConnectivityEventType = "product_changed"
	// ComponentChanged is sent when a component is attached to or detached from the product.
	ComponentChanged ConnectivityEventType = "component_changed"
	// ConnectivityChanged is sent when an attached entity connects or disconnects.
	ConnectivityChanged ConnectivityEventType = "connectivity_changed"
)

// ConnectivityEvent is a single connectivity-affecting event from the device SDK.
type ConnectivityEvent struct {
	Type      ConnectivityEventType
	Entity    EntityID
	Attached  bool
	Connected bool
	// Product is set for ProductChanged events with Attached = true.
	Product *Product
}

// DeviceEventHandler receives events from a device event source. Methods may be invoked
// concurrently from the source's callback goroutines.
type DeviceEventHandler interface {
	OnRegistrationResult(err error)
	OnConnectivityChanged(ev ConnectivityEvent)
	OnTelemetryUpdated(snapshot TelemetrySnapshot)
}
