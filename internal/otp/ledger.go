package otp

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pathxpert/server/internal/models"
)

// Ledger persists one-time codes with at most one live record per
// (address, purpose) pair. All writes funnel through the composite unique
// index, so issuing a replacement code is a single atomic upsert rather than
// a delete followed by an insert.
type Ledger struct {
	db *gorm.DB
}

// NewLedger builds a ledger over the given database handle.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Put stores the record, replacing any existing one for the same address and
// purpose. The replacement carries fresh hash, expiry and channel, and resets
// the attempt counter: a superseded code can never be redeemed afterwards.
func (l *Ledger) Put(ctx context.Context, record *models.OTPCode) error {
	return l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "address"}, {Name: "purpose"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"channel", "code_hash", "attempts", "last_sent_at", "expires_at", "updated_at",
			}),
		}).
		Create(record).Error
}

// Find returns the live record matching the address, purpose and code hash.
// Expired rows are invisible here; callers cannot distinguish a wrong code
// from a timed-out one through this method, which is intentional.
func (l *Ledger) Find(ctx context.Context, address string, purpose models.OTPPurpose, codeHash string, now time.Time) (*models.OTPCode, error) {
	var record models.OTPCode
	err := l.db.WithContext(ctx).
		Where("address = ? AND purpose = ? AND code_hash = ? AND expires_at > ?", address, purpose, codeHash, now).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// Get returns the record for the pair regardless of its expiry, or nil when
// none exists. Used for resend-interval and attempt-budget checks.
func (l *Ledger) Get(ctx context.Context, address string, purpose models.OTPPurpose) (*models.OTPCode, error) {
	var record models.OTPCode
	err := l.db.WithContext(ctx).
		Where("address = ? AND purpose = ?", address, purpose).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// Invalidate removes codes for the address. An empty purpose removes every
// purpose, which is what a successful credential reset wants.
func (l *Ledger) Invalidate(ctx context.Context, address string, purpose models.OTPPurpose) error {
	query := l.db.WithContext(ctx).Where("address = ?", address)
	if purpose != "" {
		query = query.Where("purpose = ?", purpose)
	}
	return query.Delete(&models.OTPCode{}).Error
}

// IncrementAttempts bumps the failed-attempt counter and returns the new value.
func (l *Ledger) IncrementAttempts(ctx context.Context, id string) (int, error) {
	err := l.db.WithContext(ctx).
		Model(&models.OTPCode{}).
		Where("id = ?", id).
		UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error
	if err != nil {
		return 0, err
	}

	var record models.OTPCode
	if err := l.db.WithContext(ctx).Select("attempts").First(&record, "id = ?", id).Error; err != nil {
		return 0, err
	}
	return record.Attempts, nil
}

// DeleteExpired purges rows past their validity window and reports how many
// were removed. Driven by the maintenance cron.
func (l *Ledger) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := l.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&models.OTPCode{})
	return result.RowsAffected, result.Error
}
