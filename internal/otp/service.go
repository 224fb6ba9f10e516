package otp

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pathxpert/server/internal/models"
	"github.com/pathxpert/server/pkg/crypto"
	apperrors "github.com/pathxpert/server/pkg/errors"
	"github.com/pathxpert/server/pkg/logger"
	"github.com/pathxpert/server/pkg/metrics"
)

// Config carries the tunable parameters of the OTP lifecycle.
type Config struct {
	CodeLength     int
	TTL            time.Duration
	ResendInterval time.Duration
	MaxAttempts    int
}

func (c Config) withDefaults() Config {
	if c.CodeLength < crypto.MinOTPLength {
		c.CodeLength = crypto.MinOTPLength
	}
	if c.TTL <= 0 {
		c.TTL = 10 * time.Minute
	}
	if c.ResendInterval <= 0 {
		c.ResendInterval = time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	return c
}

// Sender delivers a plaintext code out of band.
type Sender interface {
	SendOTP(ctx context.Context, channel models.OTPChannel, address, code string, window time.Duration) error
}

// AccountDirectory answers whether an address belongs to a known account.
// Purposes that gate credential recovery refuse to issue codes to strangers.
type AccountDirectory interface {
	AddressExists(ctx context.Context, address string) (bool, error)
}

// Service owns the full lifetime of one-time codes: issue, verify, invalidate.
type Service struct {
	ledger   *Ledger
	sender   Sender
	accounts AccountDirectory
	cfg      Config
	now      func() time.Time
	log      *zap.Logger
}

// NewService builds an OTP service. The clock is injectable for tests; pass
// nil to use the wall clock.
func NewService(ledger *Ledger, sender Sender, accounts AccountDirectory, cfg Config, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		ledger:   ledger,
		sender:   sender,
		accounts: accounts,
		cfg:      cfg.withDefaults(),
		now:      now,
		log:      logger.WithModule("otp"),
	}
}

// TTL exposes the configured validity window.
func (s *Service) TTL() time.Duration {
	return s.cfg.TTL
}

// Issue generates a fresh code for the (address, purpose) pair, persists its
// hash and hands the plaintext to the delivery layer. The plaintext is never
// returned to the caller. Re-issuing replaces the previous code, subject to
// the resend interval.
func (s *Service) Issue(ctx context.Context, address string, purpose models.OTPPurpose, channel models.OTPChannel) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return apperrors.NewBadRequest("Address is required")
	}
	if !purpose.Valid() {
		return apperrors.NewBadRequest("Unknown OTP purpose")
	}

	if purpose.RequiresAccount() {
		exists, err := s.accounts.AddressExists(ctx, address)
		if err != nil {
			return apperrors.Wrap(err, "Failed to issue OTP")
		}
		if !exists {
			return apperrors.ErrNotFound.WithMessage("No account found for this address")
		}
	}

	now := s.now()

	existing, err := s.ledger.Get(ctx, address, purpose)
	if err != nil {
		return apperrors.Wrap(err, "Failed to issue OTP")
	}
	if existing != nil && now.Sub(existing.LastSentAt) < s.cfg.ResendInterval {
		return apperrors.ErrRateLimit.WithMessage("Please wait before requesting another code")
	}

	code, err := crypto.GenerateOTPCode(s.cfg.CodeLength)
	if err != nil {
		return apperrors.Wrap(err, "Failed to issue OTP")
	}

	record := &models.OTPCode{
		Address:    address,
		Purpose:    purpose,
		Channel:    channel,
		CodeHash:   crypto.HashSHA256Hex(code),
		Attempts:   0,
		LastSentAt: now,
		ExpiresAt:  now.Add(s.cfg.TTL),
	}
	if err := s.ledger.Put(ctx, record); err != nil {
		return apperrors.Wrap(err, "Failed to issue OTP")
	}

	if err := s.sender.SendOTP(ctx, channel, address, code, s.cfg.TTL); err != nil {
		// The stored code stays valid; a retry after a transient provider
		// outage can still redeem it.
		s.log.Error("otp delivery failed",
			zap.String("purpose", string(purpose)),
			zap.String("channel", string(channel)),
			zap.Error(err))
		return apperrors.ErrDeliveryFailed.WithInternal(err)
	}

	metrics.OTPIssued.WithLabelValues(string(purpose), string(channel)).Inc()
	s.log.Info("otp issued",
		zap.String("purpose", string(purpose)),
		zap.String("channel", string(channel)))
	return nil
}

// Verify redeems a candidate code. A match consumes the record; every failure
// path reports the same generic error so callers learn nothing about whether
// a code exists, is expired, or was simply wrong.
func (s *Service) Verify(ctx context.Context, address string, purpose models.OTPPurpose, code string) error {
	address = strings.TrimSpace(address)
	code = strings.ToUpper(strings.TrimSpace(code))
	if address == "" || code == "" {
		return apperrors.ErrOTPInvalid
	}

	now := s.now()

	existing, err := s.ledger.Get(ctx, address, purpose)
	if err != nil {
		return apperrors.Wrap(err, "Failed to verify OTP")
	}
	if existing == nil {
		metrics.OTPVerifications.WithLabelValues("failure").Inc()
		return apperrors.ErrOTPInvalid
	}

	if existing.Attempts >= s.cfg.MaxAttempts {
		// Burn the record so a brute force cannot keep probing it.
		if err := s.ledger.Invalidate(ctx, address, purpose); err != nil {
			return apperrors.Wrap(err, "Failed to verify OTP")
		}
		metrics.OTPVerifications.WithLabelValues("failure").Inc()
		return apperrors.ErrOTPInvalid
	}

	match, err := s.ledger.Find(ctx, address, purpose, crypto.HashSHA256Hex(code), now)
	if err != nil {
		return apperrors.Wrap(err, "Failed to verify OTP")
	}
	if match == nil {
		if _, err := s.ledger.IncrementAttempts(ctx, existing.ID); err != nil {
			return apperrors.Wrap(err, "Failed to verify OTP")
		}
		metrics.OTPVerifications.WithLabelValues("failure").Inc()
		return apperrors.ErrOTPInvalid
	}

	// Single use: the record is gone before the caller hears "success".
	if err := s.ledger.Invalidate(ctx, address, purpose); err != nil {
		return apperrors.Wrap(err, "Failed to verify OTP")
	}

	metrics.OTPVerifications.WithLabelValues("success").Inc()
	s.log.Info("otp verified", zap.String("purpose", string(purpose)))
	return nil
}

// InvalidateAll removes every outstanding code for the address, across all
// purposes. Called after a successful credential replacement.
func (s *Service) InvalidateAll(ctx context.Context, address string) error {
	return s.ledger.Invalidate(ctx, address, "")
}

// PurgeExpired removes codes past their window.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.ledger.DeleteExpired(ctx, s.now())
}
