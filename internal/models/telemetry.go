package models

// Attitude is the aircraft orientation in degrees.
type Attitude struct {
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
	Yaw   float64 `json:"yaw"`
}

// Location is the aircraft position. Any field may be NaN when the flight controller has no
// valid value for it.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

// Velocity is the aircraft velocity in m/s (x = north, y = east, z = down).
type Velocity struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// TelemetrySnapshot is a point-in-time copy of the flight controller state.
type TelemetrySnapshot struct {
	Heading        float64   `json:"heading"`
	MotorsOn       bool      `json:"motors_on"`
	Flying         bool      `json:"flying"`
	Attitude       Attitude  `json:"attitude"`
	GPSSignalLevel int       `json:"gps_signal_level"`
	Location       *Location `json:"location,omitempty"`
	Velocity       Velocity  `json:"velocity"`
}
