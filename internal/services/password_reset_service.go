package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pathxpert/server/internal/models"
	"github.com/pathxpert/server/internal/otp"
	"github.com/pathxpert/server/pkg/crypto"
	apperrors "github.com/pathxpert/server/pkg/errors"
	"github.com/pathxpert/server/pkg/logger"
	"github.com/pathxpert/server/pkg/metrics"
)

// ResetLinkSender delivers a password-reset link by email.
type ResetLinkSender interface {
	SendResetLink(ctx context.Context, email, link string) error
}

// ResetConfig carries the tunables of the credential reset flow.
type ResetConfig struct {
	TokenTTL          time.Duration
	TokenLength       int
	MinPasswordLength int
	BcryptCost        int
	BaseURL           string
}

func (c ResetConfig) withDefaults() ResetConfig {
	if c.TokenTTL <= 0 {
		c.TokenTTL = 10 * time.Minute
	}
	if c.TokenLength <= 0 {
		c.TokenLength = 32
	}
	if c.MinPasswordLength <= 0 {
		c.MinPasswordLength = 6
	}
	if c.BcryptCost <= 0 {
		c.BcryptCost = crypto.DefaultPasswordCost
	}
	return c
}

// PasswordResetService owns both reset entry paths. The token-gated path
// stores only a sha256 token hash on the user row; the OTP-gated path rides
// on the OTP lifecycle manager. Both converge on replaceCredential.
type PasswordResetService struct {
	db     *gorm.DB
	users  *UserService
	otp    *otp.Service
	sender ResetLinkSender
	cfg    ResetConfig
	now    func() time.Time
	log    *zap.Logger
}

// NewPasswordResetService constructs the reset service. The clock is
// injectable for tests; pass nil for the wall clock.
func NewPasswordResetService(db *gorm.DB, users *UserService, otpService *otp.Service, sender ResetLinkSender, cfg ResetConfig, now func() time.Time) (*PasswordResetService, error) {
	if db == nil {
		return nil, errors.New("password reset service: db is required")
	}
	if users == nil {
		return nil, errors.New("password reset service: user service is required")
	}
	if now == nil {
		now = time.Now
	}
	return &PasswordResetService{
		db:     db,
		users:  users,
		otp:    otpService,
		sender: sender,
		cfg:    cfg.withDefaults(),
		now:    now,
		log:    logger.WithModule("password_reset"),
	}, nil
}

// CreateResetToken mints a single-use reset token for the account, stores its
// hash and expiry on the user row, and emails the plaintext inside a link.
// The plaintext is never persisted and never returned to the caller.
func (s *PasswordResetService) CreateResetToken(ctx context.Context, email string) error {
	ctx = ensureContext(ctx)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound.WithMessage("There is no user with that email address")
	}

	token, err := crypto.GenerateToken(s.cfg.TokenLength)
	if err != nil {
		return fmt.Errorf("password reset service: generate token: %w", err)
	}

	hash := crypto.HashSHA256Hex(token)
	expires := s.now().Add(s.cfg.TokenTTL)

	err = s.db.WithContext(ctx).Model(user).Updates(map[string]any{
		"password_reset_token":   hash,
		"password_reset_expires": expires,
	}).Error
	if err != nil {
		return fmt.Errorf("password reset service: store token: %w", err)
	}

	link := s.resetLink(token)
	if s.sender != nil {
		if err := s.sender.SendResetLink(ctx, user.Email, link); err != nil {
			// Roll the columns back so a token that never reached the user
			// cannot linger as an attack surface.
			_ = s.clearResetToken(ctx, user.ID)
			s.log.Error("reset link delivery failed", zap.Error(err))
			return apperrors.ErrDeliveryFailed.WithInternal(err)
		}
	}

	s.log.Info("reset token issued", zap.String("user_id", user.ID))
	return nil
}

func (s *PasswordResetService) resetLink(token string) string {
	base := strings.TrimRight(s.cfg.BaseURL, "/")
	if base == "" {
		base = "https://app.pathxpert.io"
	}
	return base + "/reset-password/" + token
}

// ResetWithToken redeems a reset token. The token matches only while the
// stored expiry is in the future; a consumed or expired token always fails
// with the same generic error.
func (s *PasswordResetService) ResetWithToken(ctx context.Context, token, newPassword string) error {
	ctx = ensureContext(ctx)

	token = strings.TrimSpace(token)
	if token == "" {
		return apperrors.ErrResetTokenInvalid
	}

	hash := crypto.HashSHA256Hex(token)

	var user models.User
	err := s.db.WithContext(ctx).
		Where("password_reset_token = ? AND password_reset_expires > ?", hash, s.now()).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrResetTokenInvalid
		}
		return fmt.Errorf("password reset service: find token: %w", err)
	}

	if err := s.replaceCredential(ctx, &user, newPassword); err != nil {
		return err
	}

	metrics.PasswordResets.WithLabelValues("token").Inc()
	return nil
}

// ResetWithOTP redeems a password_reset code for the address, then replaces
// the credential. The verify step consumes the code, so retrying with the
// same code after a policy failure requires a fresh issue.
func (s *PasswordResetService) ResetWithOTP(ctx context.Context, address, code, newPassword string) error {
	ctx = ensureContext(ctx)

	if s.otp == nil {
		return apperrors.ErrInternalServer
	}

	// Check the policy before burning the single-use code.
	if len(newPassword) < s.cfg.MinPasswordLength {
		return apperrors.ErrWeakCredential
	}

	user, err := s.users.FindByAddress(ctx, address)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound.WithMessage("No account found for this address")
	}

	if err := s.otp.Verify(ctx, address, models.PurposePasswordReset, code); err != nil {
		return err
	}

	if err := s.replaceCredential(ctx, user, newPassword); err != nil {
		return err
	}

	metrics.PasswordResets.WithLabelValues("otp").Inc()
	return nil
}

// replaceCredential is the single convergence point for credential changes:
// policy check, hash, persist, then invalidate every other live reset
// artifact so nothing issued before the change can still act on the account.
func (s *PasswordResetService) replaceCredential(ctx context.Context, user *models.User, newPassword string) error {
	if len(newPassword) < s.cfg.MinPasswordLength {
		return apperrors.ErrWeakCredential
	}

	hashed, err := crypto.HashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("password reset service: hash password: %w", err)
	}

	err = s.db.WithContext(ctx).Model(user).Updates(map[string]any{
		"password":               hashed,
		"auth_type":              models.AuthTypeLocal,
		"password_reset_token":   nil,
		"password_reset_expires": nil,
	}).Error
	if err != nil {
		return fmt.Errorf("password reset service: store credential: %w", err)
	}

	if s.otp != nil {
		if err := s.otp.InvalidateAll(ctx, user.Email); err != nil {
			return fmt.Errorf("password reset service: invalidate codes: %w", err)
		}
		if user.Mobile != nil {
			if err := s.otp.InvalidateAll(ctx, *user.Mobile); err != nil {
				return fmt.Errorf("password reset service: invalidate codes: %w", err)
			}
		}
	}

	s.log.Info("credential replaced", zap.String("user_id", user.ID))
	return nil
}

func (s *PasswordResetService) clearResetToken(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"password_reset_token":   nil,
			"password_reset_expires": nil,
		}).Error
}

// PurgeExpiredTokens clears reset columns past their expiry. Driven by the
// maintenance cron alongside OTP garbage collection.
func (s *PasswordResetService) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.User{}).
		Where("password_reset_expires IS NOT NULL AND password_reset_expires <= ?", s.now()).
		Updates(map[string]any{
			"password_reset_token":   nil,
			"password_reset_expires": nil,
		})
	return result.RowsAffected, result.Error
}
