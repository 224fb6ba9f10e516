package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pathxpert/server/pkg/crypto"
)

// Role enumerates the access levels a user can hold.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// AuthType distinguishes how an account was provisioned.
type AuthType string

const (
	// AuthTypeLocal marks accounts registered directly with a password.
	AuthTypeLocal AuthType = "local"
	// AuthTypeExternal marks accounts provisioned on first login through the
	// external identity verifier; they carry no local credential hash.
	AuthTypeExternal AuthType = "external"
)

// User is the durable identity record, keyed either by an external subject id or
// by a local credential.
type User struct {
	ID string `gorm:"primaryKey;type:uuid" json:"id"`

	// ExternalID is set when the account was created from externally verified
	// claims; nil for local registrations.
	ExternalID *string `gorm:"uniqueIndex" json:"external_id,omitempty"`

	Username string  `gorm:"uniqueIndex;not null" json:"username"`
	Email    string  `gorm:"uniqueIndex;not null" json:"email"`
	Mobile   *string `gorm:"uniqueIndex" json:"mobile,omitempty"`

	// Password holds the bcrypt hash for local accounts; nil for external ones.
	Password *string  `json:"-"`
	AuthType AuthType `gorm:"default:local" json:"auth_type"`
	Role     Role     `gorm:"default:user" json:"role"`

	DisplayName      string `json:"display_name"`
	Avatar           string `json:"avatar"`
	EmergencyContact string `json:"emergency_contact,omitempty"`

	Settings  datatypes.JSON `json:"settings,omitempty"`
	FavRoutes datatypes.JSON `json:"fav_routes,omitempty"`

	PasswordResetToken   *string    `json:"-"`
	PasswordResetExpires *time.Time `json:"-"`

	IsActive    bool       `gorm:"default:true" json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	LastLoginIP string     `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// VerifyCredential compares the candidate against the stored hash. Every password
// comparison in the codebase goes through here; accounts without a usable hash
// (external provisioning) always fail.
func (u *User) VerifyCredential(candidate string) bool {
	if u.Password == nil || *u.Password == "" {
		return false
	}
	return crypto.VerifyPassword(*u.Password, candidate)
}

// IsAdmin reports whether the user holds the administrator role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
