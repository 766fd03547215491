package location

import "math"

// Fix is the receiver state accumulated from GGA and RMC sentences. Position fields are NaN
// until the receiver reports a valid fix.
type Fix struct {
	Latitude   float64
	Longitude  float64
	Altitude   float64 // metres above mean sea level
	Satellites int64
	HDOP       float64
	SpeedKnots float64
	Course     float64 // degrees true
	Valid      bool
}

const knotsToMetresPerSecond = 0.514444

func emptyFix() Fix {
	return Fix{
		Latitude:  math.NaN(),
		Longitude: math.NaN(),
		Altitude:  math.NaN(),
	}
}

// SignalLevel maps the satellite count onto the 0..5 ordinal used for GPS signal strength.
func (f Fix) SignalLevel() int {
	if !f.Valid {
		return 0
	}
	switch {
	case f.Satellites <= 4:
		return 1
	case f.Satellites <= 6:
		return 2
	case f.Satellites <= 8:
		return 3
	case f.Satellites <= 10:
		return 4
	default:
		return 5
	}
}

// Velocity returns the ground velocity in metres per second as north and east components.
func (f Fix) Velocity() (north, east float64) {
	speed := f.SpeedKnots * knotsToMetresPerSecond
	rad := f.Course * math.Pi / 180
	return speed * math.Cos(rad), speed * math.Sin(rad)
}
