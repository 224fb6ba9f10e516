package models

import "time"

// OTPPurpose scopes a one-time code to the intent it was issued for.
type OTPPurpose string

const (
	PurposeRegistration  OTPPurpose = "registration"
	PurposePasswordReset OTPPurpose = "password_reset"
	PurposeVerification  OTPPurpose = "verification"
)

// Valid reports whether the purpose is one of the known values.
func (p OTPPurpose) Valid() bool {
	switch p {
	case PurposeRegistration, PurposePasswordReset, PurposeVerification:
		return true
	}
	return false
}

// RequiresAccount reports whether issuing a code for this purpose demands a
// pre-existing account for the address.
func (p OTPPurpose) RequiresAccount() bool {
	return p == PurposePasswordReset
}

// OTPChannel identifies how a code was delivered.
type OTPChannel string

const (
	ChannelEmail OTPChannel = "email"
	ChannelSMS   OTPChannel = "sms"
)

// OTPCode binds a contact address and purpose to the hash of a one-time code.
// The composite unique index gives the ledger its single-flight guarantee: an
// insert for an (address, purpose) pair that already holds a live record becomes
// a conditional replace instead of a second row.
type OTPCode struct {
	BaseModel

	Address string     `gorm:"not null;uniqueIndex:idx_otp_address_purpose" json:"address"`
	Purpose OTPPurpose `gorm:"not null;uniqueIndex:idx_otp_address_purpose" json:"purpose"`
	Channel OTPChannel `gorm:"not null" json:"channel"`

	// CodeHash is the hex SHA-256 of the plaintext code; the plaintext is never stored.
	CodeHash string `gorm:"not null" json:"-"`

	Attempts   int       `gorm:"default:0" json:"-"`
	LastSentAt time.Time `json:"-"`
	ExpiresAt  time.Time `gorm:"index" json:"expires_at"`
}

// Expired reports whether the record is past its validity window.
func (c *OTPCode) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}
