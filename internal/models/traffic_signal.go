package models

// TrafficLevel classifies congestion at a signal.
type TrafficLevel string

const (
	TrafficLow    TrafficLevel = "low"
	TrafficMedium TrafficLevel = "medium"
	TrafficHigh   TrafficLevel = "high"
)

// Valid reports whether the level is one of the known values.
func (l TrafficLevel) Valid() bool {
	switch l {
	case TrafficLow, TrafficMedium, TrafficHigh:
		return true
	}
	return false
}

// SignalStatus reflects the operational state of a signal.
type SignalStatus string

const (
	SignalWorking SignalStatus = "working"
	SignalOff     SignalStatus = "off"
	SignalDamaged SignalStatus = "damaged"
)

// Valid reports whether the status is one of the known values.
func (s SignalStatus) Valid() bool {
	switch s {
	case SignalWorking, SignalOff, SignalDamaged:
		return true
	}
	return false
}

// TrafficSignal is a fixed roadside installation used for density lookups.
// Latitude/longitude are indexed so the radius query can prefilter with a
// bounding box before the exact distance check.
type TrafficSignal struct {
	BaseModel

	SignalName   string       `gorm:"not null" json:"signal_name"`
	TrafficLevel TrafficLevel `gorm:"not null" json:"traffic_level"`
	Status       SignalStatus `gorm:"default:working" json:"status"`

	Latitude  float64 `gorm:"not null;index" json:"latitude"`
	Longitude float64 `gorm:"not null;index" json:"longitude"`
}
