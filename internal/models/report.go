package models

// ReportStatus tracks the handling state of an incident report.
type ReportStatus string

const (
	ReportPending    ReportStatus = "pending"
	ReportInProgress ReportStatus = "in_progress"
	ReportCompleted  ReportStatus = "completed"
	ReportCancelled  ReportStatus = "cancelled"
)

// Valid reports whether the status is one of the known values.
func (s ReportStatus) Valid() bool {
	switch s {
	case ReportPending, ReportInProgress, ReportCompleted, ReportCancelled:
		return true
	}
	return false
}

// ReportType enumerates the incident categories the mobile client offers.
type ReportType string

const (
	ReportAccident ReportType = "accident"
	ReportTraffic  ReportType = "traffic"
	ReportClosure  ReportType = "closure"
	ReportOther    ReportType = "other"
)

// Valid reports whether the type is one of the known values.
func (t ReportType) Valid() bool {
	switch t {
	case ReportAccident, ReportTraffic, ReportClosure, ReportOther:
		return true
	}
	return false
}

// Report is a geo-tagged road incident submitted by a user.
type Report struct {
	BaseModel

	Type        ReportType `gorm:"not null" json:"type"`
	Injured     bool       `json:"injured"`
	Location    string     `gorm:"not null" json:"location"`
	Latitude    *float64   `json:"latitude,omitempty"`
	Longitude   *float64   `json:"longitude,omitempty"`
	Description string     `gorm:"not null" json:"description"`
	Anonymous   bool       `gorm:"default:false" json:"anonymous"`

	Status ReportStatus `gorm:"default:pending" json:"status"`

	UserID string `gorm:"type:uuid;not null;index" json:"user_id"`
	User   *User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
