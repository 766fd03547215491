package models

import "math"

// Wire formats published by the device SDK gateway on the ingress topics.

// RegistrationEvent is received on <prefix>/registration.
type RegistrationEvent struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ProductEvent is received on <prefix>/product.
type ProductEvent struct {
	Attached  bool        `json:"attached"`
	Model     string      `json:"model,omitempty"`
	Kind      ProductKind `json:"kind,omitempty"`
	Connected bool        `json:"connected"`
}

// ComponentEvent is received on <prefix>/component/<key>.
type ComponentEvent struct {
	Attached  bool `json:"attached"`
	Connected bool `json:"connected"`
}

// ConnectivityUpdate is received on <prefix>/product/connectivity and
// <prefix>/component/<key>/connectivity.
type ConnectivityUpdate struct {
	Connected bool `json:"connected"`
}

// TelemetryUpdate is received on <prefix>/telemetry. Location fields are pointers so that a
// missing or null value is distinguishable from zero.
type TelemetryUpdate struct {
	Heading        float64  `json:"heading"`
	MotorsOn       bool     `json:"motors_on"`
	Flying         bool     `json:"flying"`
	Pitch          float64  `json:"pitch"`
	Roll           float64  `json:"roll"`
	Yaw            float64  `json:"yaw"`
	GPSSignalLevel int      `json:"gps_signal_level"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
	Altitude       *float64 `json:"altitude,omitempty"`
	VelocityX      float64  `json:"velocity_x"`
	VelocityY      float64  `json:"velocity_y"`
	VelocityZ      float64  `json:"velocity_z"`
}

// Snapshot converts the update into a TelemetrySnapshot. Location fields that were not sent
// are NaN; when none were sent the snapshot has no location.
func (u TelemetryUpdate) Snapshot() TelemetrySnapshot {
	snap := TelemetrySnapshot{
		Heading:        u.Heading,
		MotorsOn:       u.MotorsOn,
		Flying:         u.Flying,
		Attitude:       Attitude{Pitch: u.Pitch, Roll: u.Roll, Yaw: u.Yaw},
		GPSSignalLevel: u.GPSSignalLevel,
		Velocity:       Velocity{X: u.VelocityX, Y: u.VelocityY, Z: u.VelocityZ},
	}
	if u.Latitude != nil || u.Longitude != nil || u.Altitude != nil {
		snap.Location = &Location{
			Latitude:  valueOrNaN(u.Latitude),
			Longitude: valueOrNaN(u.Longitude),
			Altitude:  valueOrNaN(u.Altitude),
		}
	}
	return snap
}

func valueOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// RegistrationCommand is published on <prefix>/commands/register and
// <prefix>/commands/start_connection.
type RegistrationCommand struct {
	ClientID  string `json:"client_id"`
	Timestamp int64  `json:"timestamp"`
}
