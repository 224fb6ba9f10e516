package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pathxpert/server/internal/models"
	"github.com/pathxpert/server/pkg/crypto"
	apperrors "github.com/pathxpert/server/pkg/errors"
)

// ErrUserNotFound indicates the requested user does not exist.
var ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)

// RegisterInput describes the fields accepted during local registration.
type RegisterInput struct {
	Username         string
	Email            string
	Password         string
	Mobile           string
	DisplayName      string
	EmergencyContact string
}

// UpdateProfileInput enumerates mutable profile attributes.
type UpdateProfileInput struct {
	Username         *string
	DisplayName      *string
	Avatar           *string
	Mobile           *string
	EmergencyContact *string
}

// ListUsersOptions controls pagination for the admin user listing.
type ListUsersOptions struct {
	Page     int
	PageSize int
	Query    string
}

// UserService manages account lifecycle: registration, login, profile and
// settings. It also backs the authenticator's account resolution and the OTP
// service's address directory.
type UserService struct {
	db         *gorm.DB
	bcryptCost int
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB, bcryptCost int) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	if bcryptCost <= 0 {
		bcryptCost = crypto.DefaultPasswordCost
	}
	return &UserService{db: db, bcryptCost: bcryptCost}, nil
}

// Register provisions a local account with a hashed password.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if username == "" {
		return nil, apperrors.NewBadRequest("Username is required")
	}
	if email == "" {
		return nil, apperrors.NewBadRequest("Email is required")
	}
	if strings.TrimSpace(input.Password) == "" {
		return nil, apperrors.NewBadRequest("Password is required")
	}

	hashed, err := crypto.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	user := &models.User{
		Username:         username,
		Email:            email,
		Password:         &hashed,
		AuthType:         models.AuthTypeLocal,
		Role:             models.RoleUser,
		DisplayName:      strings.TrimSpace(input.DisplayName),
		EmergencyContact: strings.TrimSpace(input.EmergencyContact),
		IsActive:         true,
	}
	if mobile := strings.TrimSpace(input.Mobile); mobile != "" {
		user.Mobile = &mobile
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, s.conflictDetail(ctx, username, email, user.Mobile)
		}
		return nil, fmt.Errorf("user service: create user: %w", err)
	}

	return user, nil
}

// conflictDetail names the colliding field so registration errors stay actionable.
func (s *UserService) conflictDetail(ctx context.Context, username, email string, mobile *string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err == nil && count > 0 {
		return apperrors.NewConflict("An account with this email already exists")
	}
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err == nil && count > 0 {
		return apperrors.NewConflict("This username is already taken")
	}
	if mobile != nil {
		if err := s.db.WithContext(ctx).Model(&models.User{}).Where("mobile = ?", *mobile).Count(&count).Error; err == nil && count > 0 {
			return apperrors.NewConflict("An account with this mobile number already exists")
		}
	}
	return apperrors.ErrConflict
}

// Login authenticates email+password. The comparison always goes through
// User.VerifyCredential, so external accounts (nil hash) fail the same way a
// wrong password does.
func (s *UserService) Login(ctx context.Context, email, password string) (*models.User, error) {
	ctx = ensureContext(ctx)
	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("user service: find user: %w", err)
	}

	if !user.VerifyCredential(password) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, apperrors.ErrForbidden.WithMessage("Account is deactivated")
	}

	now := time.Now()
	updates := map[string]any{"last_login_at": now}
	if err := s.db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("user service: record login: %w", err)
	}
	user.LastLoginAt = &now

	return &user, nil
}

// FindByID returns the user or nil when absent.
func (s *UserService) FindByID(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("user service: find by id: %w", err)
	}
	return &user, nil
}

// GetByID returns the user or ErrUserNotFound.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// FindByExternalID returns the account bound to an external subject, or nil.
func (s *UserService) FindByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Where("external_id = ?", externalID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("user service: find by external id: %w", err)
	}
	return &user, nil
}

// FindByEmail returns the account for the (lowercased) email, or nil.
func (s *UserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx = ensureContext(ctx)
	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("user service: find by email: %w", err)
	}
	return &user, nil
}

// FindByAddress resolves a contact address (email or mobile) to a user, or nil.
func (s *UserService) FindByAddress(ctx context.Context, address string) (*models.User, error) {
	ctx = ensureContext(ctx)
	address = strings.TrimSpace(address)

	var user models.User
	query := s.db.WithContext(ctx)
	if strings.Contains(address, "@") {
		query = query.Where("email = ?", strings.ToLower(address))
	} else {
		query = query.Where("mobile = ?", address)
	}
	err := query.First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("user service: find by address: %w", err)
	}
	return &user, nil
}

// AddressExists reports whether any account owns the contact address.
func (s *UserService) AddressExists(ctx context.Context, address string) (bool, error) {
	user, err := s.FindByAddress(ctx, address)
	if err != nil {
		return false, err
	}
	return user != nil, nil
}

// ProvisionExternal creates an account on first login through the external
// verifier. The username derives from the email local part, falling back to
// the subject when the email is absent or the name is taken.
func (s *UserService) ProvisionExternal(ctx context.Context, subject, email, name, picture string) (*models.User, error) {
	ctx = ensureContext(ctx)

	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, apperrors.NewBadRequest("External subject is required")
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		// Some providers omit the email claim. Email carries a unique index,
		// so a second no-email account would collide on the empty string;
		// derive a subject-scoped placeholder instead.
		email = placeholderEmail(subject)
	}

	user := &models.User{
		ExternalID:  &subject,
		Email:       email,
		Username:    externalUsername(subject, email),
		AuthType:    models.AuthTypeExternal,
		Role:        models.RoleUser,
		DisplayName: strings.TrimSpace(name),
		Avatar:      strings.TrimSpace(picture),
		IsActive:    true,
	}

	err := s.db.WithContext(ctx).Create(user).Error
	if err == nil {
		return user, nil
	}
	if !isUniqueConstraintError(err) {
		return nil, fmt.Errorf("user service: provision external: %w", err)
	}

	// Lost a provisioning race, or the username/email collided. Re-read by
	// subject first; a second caller may have created the row already.
	if existing, ferr := s.FindByExternalID(ctx, subject); ferr == nil && existing != nil {
		return existing, nil
	}

	user.Username = externalUsername(subject, "")
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("user service: provision external: %w", err)
	}
	return user, nil
}

func externalUsername(subject, email string) string {
	if email != "" && !strings.HasSuffix(email, placeholderDomain) {
		if at := strings.Index(email, "@"); at > 0 {
			return email[:at]
		}
	}
	return "ext_" + subject
}

const placeholderDomain = "@users.noreply.pathxpert.io"

func placeholderEmail(subject string) string {
	return strings.ToLower("ext_" + subject + placeholderDomain)
}

// UpdateProfile applies the supplied mutations and returns the updated user.
func (s *UserService) UpdateProfile(ctx context.Context, id string, input UpdateProfileInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Username != nil {
		username := strings.TrimSpace(*input.Username)
		if username == "" {
			return nil, apperrors.NewBadRequest("Username cannot be empty")
		}
		updates["username"] = username
	}
	if input.DisplayName != nil {
		updates["display_name"] = strings.TrimSpace(*input.DisplayName)
	}
	if input.Avatar != nil {
		updates["avatar"] = strings.TrimSpace(*input.Avatar)
	}
	if input.Mobile != nil {
		mobile := strings.TrimSpace(*input.Mobile)
		if mobile == "" {
			updates["mobile"] = nil
		} else {
			updates["mobile"] = mobile
		}
	}
	if input.EmergencyContact != nil {
		updates["emergency_contact"] = strings.TrimSpace(*input.EmergencyContact)
	}

	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("Username or mobile number already in use")
		}
		return nil, fmt.Errorf("user service: update profile: %w", err)
	}

	return s.GetByID(ctx, id)
}

// UpdateSettings replaces the stored settings document.
func (s *UserService) UpdateSettings(ctx context.Context, id string, settings json.RawMessage) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !json.Valid(settings) {
		return nil, apperrors.NewBadRequest("Settings must be a valid JSON document")
	}

	if err := s.db.WithContext(ctx).Model(user).
		Update("settings", datatypes.JSON(settings)).Error; err != nil {
		return nil, fmt.Errorf("user service: update settings: %w", err)
	}

	user.Settings = datatypes.JSON(settings)
	return user, nil
}

// UpdateFavRoutes replaces the stored favourite-routes document.
func (s *UserService) UpdateFavRoutes(ctx context.Context, id string, routes json.RawMessage) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !json.Valid(routes) {
		return nil, apperrors.NewBadRequest("Favourite routes must be a valid JSON document")
	}

	if err := s.db.WithContext(ctx).Model(user).
		Update("fav_routes", datatypes.JSON(routes)).Error; err != nil {
		return nil, fmt.Errorf("user service: update fav routes: %w", err)
	}

	user.FavRoutes = datatypes.JSON(routes)
	return user, nil
}

// List returns a page of users for the admin surface.
func (s *UserService) List(ctx context.Context, opts ListUsersOptions) ([]models.User, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page < 1 {
		page = 1
	}
	size := opts.PageSize
	if size < 1 || size > 100 {
		size = 20
	}

	query := s.db.WithContext(ctx).Model(&models.User{})
	if q := strings.TrimSpace(opts.Query); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: count users: %w", err)
	}

	var users []models.User
	err := query.Order("created_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&users).Error
	if err != nil {
		return nil, 0, fmt.Errorf("user service: list users: %w", err)
	}

	return users, total, nil
}
