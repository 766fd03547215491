// Package payload builds the flat JSON document published for every telemetry tick.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/benmeehan/telemetry-bridge/internal/models"
)

// ErrNonFinite is returned when a required numeric field is NaN or infinite.
var ErrNonFinite = errors.New("payload: non-finite numeric value")

// TelemetryPayload is the published document. Field order is fixed by the struct, and absent
// values are nil pointers, so encoding is deterministic.
type TelemetryPayload struct {
	Model       *string  `json:"model,omitempty"`
	Heading     *float64 `json:"heading,omitempty"`
	MotorsState *bool    `json:"motors_state,omitempty"`
	FlyingState *bool    `json:"flying_state,omitempty"`
	Pitch       *float64 `json:"pitch,omitempty"`
	Roll        *float64 `json:"roll,omitempty"`
	Yaw         *float64 `json:"yaw,omitempty"`
	GPSSignal   *int     `json:"gps_signal,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Altitude    *float64 `json:"altitude,omitempty"`
	VelocityX   *float64 `json:"velocity_x,omitempty"`
	VelocityY   *float64 `json:"velocity_y,omitempty"`
	VelocityZ   *float64 `json:"velocity_z,omitempty"`
}

// Build assembles the payload for a connection and the latest snapshot (nil if none yet).
//
// The model is included whenever a product is known. Flight fields are included only for a
// connected aircraft with a snapshot; location fields are included individually, and only when
// finite.
func Build(conn models.DeviceConnection, snap *models.TelemetrySnapshot) TelemetryPayload {
	var p TelemetryPayload
	if conn.Product == nil {
		return p
	}
	model := conn.Product.Model
	p.Model = &model

	if !conn.Product.IsAircraft() || conn.Status != models.Connected || snap == nil {
		return p
	}

	p.Heading = float(snap.Heading)
	p.MotorsState = boolean(snap.MotorsOn)
	p.FlyingState = boolean(snap.Flying)
	p.Pitch = float(snap.Attitude.Pitch)
	p.Roll = float(snap.Attitude.Roll)
	p.Yaw = float(snap.Attitude.Yaw)
	gps := snap.GPSSignalLevel
	p.GPSSignal = &gps

	if loc := snap.Location; loc != nil {
		p.Latitude = defined(loc.Latitude)
		p.Longitude = defined(loc.Longitude)
		p.Altitude = defined(loc.Altitude)
	}

	p.VelocityX = float(snap.Velocity.X)
	p.VelocityY = float(snap.Velocity.Y)
	p.VelocityZ = float(snap.Velocity.Z)
	return p
}

// Encode serializes the payload. It fails with ErrNonFinite rather than emitting a document the
// broker's consumers cannot parse.
func Encode(p TelemetryPayload) ([]byte, error) {
	for name, v := range map[string]*float64{
		"heading":    p.Heading,
		"pitch":      p.Pitch,
		"roll":       p.Roll,
		"yaw":        p.Yaw,
		"latitude":   p.Latitude,
		"longitude":  p.Longitude,
		"altitude":   p.Altitude,
		"velocity_x": p.VelocityX,
		"velocity_y": p.VelocityY,
		"velocity_z": p.VelocityZ,
	} {
		if v != nil && !isFinite(*v) {
			return nil, fmt.Errorf("%w: %s", ErrNonFinite, name)
		}
	}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize telemetry payload: %w", err)
	}
	return data, nil
}

// Decode parses a payload produced by Encode. Unknown keys are rejected.
func Decode(data []byte) (TelemetryPayload, error) {
	var p TelemetryPayload
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return TelemetryPayload{}, fmt.Errorf("failed to parse telemetry payload: %w", err)
	}
	return p, nil
}

// EncodeState builds and encodes the payload in one step.
func EncodeState(conn models.DeviceConnection, snap *models.TelemetrySnapshot) ([]byte, error) {
	return Encode(Build(conn, snap))
}

func float(v float64) *float64 { return &v }

func boolean(v bool) *bool { return &v }

func defined(v float64) *float64 {
	if !isFinite(v) {
		return nil
	}
	return &v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
