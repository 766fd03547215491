package models

// ConnectionStatus is the connectivity state of the device or one of its components.
type ConnectionStatus int

const (
	Disconnected ConnectionStatus = iota
	Connected
)

// String returns the lowercase name used in logs and notifications.
func (s ConnectionStatus) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// StatusFromBool maps a connectivity flag reported by the device SDK to a ConnectionStatus.
func StatusFromBool(connected bool) ConnectionStatus {
	if connected {
		return Connected
	}
	return Disconnected
}

// ProductKind identifies the type of product attached to the remote controller.
type ProductKind string

const (
	ProductKindAircraft ProductKind = "aircraft"
	ProductKindHandheld ProductKind = "handheld"
	ProductKindUnknown  ProductKind = "unknown"
)

// Product describes the product currently attached through the device SDK.
type Product struct {
	Model string      `json:"model"`
	Kind  ProductKind `json:"kind"`
}

// IsAircraft reports whether the product carries a flight controller.
func (p *Product) IsAircraft() bool {
	return p != nil && p.Kind == ProductKindAircraft
}

// ComponentStatus holds the connectivity of a single named sub-component (camera, gimbal, ...).
type ComponentStatus struct {
	Connected bool `json:"connected"`
}

// DeviceConnection is the connectivity view of the device. Values stored in the state cache are
// never mutated in place; use the With* helpers to derive a modified copy.
type DeviceConnection struct {
	Status     ConnectionStatus
	Product    *Product
	Components map[string]ComponentStatus
}

// WithStatus returns a copy of the connection with the given top-level status.
func (c DeviceConnection) WithStatus(status ConnectionStatus) DeviceConnection {
	c.Components = c.copyComponents()
	c.Status = status
	return c
}

// WithProduct returns a copy of the connection bound to a new product. A nil product clears the
// component set and marks the device disconnected.
func (c DeviceConnection) WithProduct(product *Product, status ConnectionStatus) DeviceConnection {
	if product == nil {
		return DeviceConnection{Status: Disconnected}
	}
	p := *product
	c.Product = &p
	c.Status = status
	c.Components = c.copyComponents()
	return c
}

// WithComponent returns a copy of the connection with the component set to the given status.
func (c DeviceConnection) WithComponent(key string, status ComponentStatus) DeviceConnection {
	c.Components = c.copyComponents()
	c.Components[key] = status
	return c
}

// WithoutComponent returns a copy of the connection with the component removed.
func (c DeviceConnection) WithoutComponent(key string) DeviceConnection {
	c.Components = c.copyComponents()
	delete(c.Components, key)
	return c
}

func (c DeviceConnection) copyComponents() map[string]ComponentStatus {
	out := make(map[string]ComponentStatus, len(c.Components))
	for k, v := range c.Components {
		out[k] = v
	}
	return out
}
