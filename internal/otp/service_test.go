package otp

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pathxpert/server/internal/models"
	apperrors "github.com/pathxpert/server/pkg/errors"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.OTPCode{}))
	return db
}

type stubSender struct {
	lastCode    string
	lastAddress string
	sendErr     error
	calls       int
}

func (s *stubSender) SendOTP(_ context.Context, _ models.OTPChannel, address, code string, _ time.Duration) error {
	s.calls++
	if s.sendErr != nil {
		return s.sendErr
	}
	s.lastAddress = address
	s.lastCode = code
	return nil
}

// concurrentSender is safe for parallel SendOTP calls, unlike stubSender.
type concurrentSender struct {
	mu    sync.Mutex
	calls int
}

func (s *concurrentSender) SendOTP(_ context.Context, _ models.OTPChannel, _, _ string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return nil
}

type stubDirectory struct {
	known map[string]bool
}

func (d *stubDirectory) AddressExists(_ context.Context, address string) (bool, error) {
	return d.known[address], nil
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestService(t *testing.T, cfg Config) (*Service, *stubSender, *stubDirectory, *testClock) {
	t.Helper()

	db := openTestDB(t)
	sender := &stubSender{}
	dir := &stubDirectory{known: map[string]bool{}}
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewService(NewLedger(db), sender, dir, cfg, clock.Now)
	return svc, sender, dir, clock
}

func TestIssueAndVerifyOnce(t *testing.T) {
	svc, sender, _, _ := newTestService(t, Config{})
	ctx := context.Background()

	require.NoError(t, svc.Issue(ctx, "alice@example.com", models.PurposeRegistration, models.ChannelEmail))
	require.NotEmpty(t, sender.lastCode)
	require.Equal(t, "alice@example.com", sender.lastAddress)

	require.NoError(t, svc.Verify(ctx, "alice@example.com", models.PurposeRegistration, sender.lastCode))

	// Single use: redeeming again with the same code fails.
	err := svc.Verify(ctx, "alice@example.com", models.PurposeRegistration, sender.lastCode)
	require.ErrorIs(t, err, apperrors.ErrOTPInvalid)
}

func TestVerifyIsCaseInsensitiveOnInput(t *testing.T) {
	svc, sender, _, _ := newTestService(t, Config{})
	ctx := context.Background()

	require.NoError(t, svc.Issue(ctx, "alice@example.com", models.PurposeVerification, models.ChannelEmail))

	lowered := ""
	for _, r := range sender.lastCode {
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		lowered += string(r)
	}
	require.NoError(t, svc.Verify(ctx, "alice@example.com", models.PurposeVerification, lowered))
}

func TestVerifyExpiredCode(t *testing.T) {
	svc, sender, _, clock := newTestService(t, Config{TTL: 10 * time.Minute})
	ctx := context.Background()

	require.NoError(t, svc.Issue(ctx, "alice@example.com", models.PurposeRegistration, models.ChannelEmail))

	clock.Advance(10*time.Minute + time.Second)

	err := svc.Verify(ctx, "alice@example.com", models.PurposeRegistration, sender.lastCode)
	require.ErrorIs(t, err, apperrors.ErrOTPInvalid)
}

func TestReissueInvalidatesPreviousCode(t *testing.T) {
	svc, sender, _, clock := newTestService(t, Config{ResendInterval: time.Minute})
	ctx := context.Background()

	require.NoError(t, svc.Issue(ctx, "alice@example.com", models.PurposeRegistration, models.ChannelEmail))
	first := sender.lastCode

	clock.Advance(2 * time.Minute)
	require.NoError(t, svc.Issue(ctx, "alice@example.com", models.PurposeRegistration, models.ChannelEmail))
	second := sender.lastCode
	require.NotEqual(t, first, second)

	err := svc.Verify(ctx, "alice@example.com", models.PurposeRegistration, first)
	require.ErrorIs(t, err, apperrors.ErrOTPInvalid)

	require.NoError(t, svc.Verify(ctx, "alice@example.com", models.PurposeRegistration, second))
}

func TestReissueKeepsSingleRecord(t *testing.T) {
	svc, _, _, clock := newTestService(t, Config{})
	ctx := context.Background()

	require.NoError(t, svc.Issue(ctx, "alice@example.com", models.PurposeRegistration, models.ChannelEmail))
	clock.Advance(2 * time.Minute)
	require.NoError(t, svc.Issue(ctx, "alice@example.com", models.PurposeRegistration, models.ChannelEmail))

	var count int64
	require.NoError(t, svc.ledger.db.Model(&models.OTPCode{}).
		Where("address = ? AND purpose = ?", "alice@example.com", models.PurposeRegistration).
		Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestConcurrentIssueKeepsSingleRecord(t *testing.T) {
	db := openTestDB(t)
	sender := &concurrentSender{}
	dir := &stubDirectory{known: map[string]bool{}}
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewService(NewLedger(db), sender, dir, Config{}, clock.Now)
	ctx := context.Background()

	// Racing issuers may each succeed or trip the resend interval, but the
	// upsert guarantees a single live record per (address, purpose).
	errs := make([]error, 8)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.Issue(ctx, "alice@example.com", models.PurposeRegistration, models.ChannelEmail)
		}(i)
	}
	wg.Wait()

	issued := 0
	for _, err := range errs {
		if err == nil {
			issued++
			continue
		}
		require.ErrorIs(t, err, apperrors.ErrRateLimit)
	}
	require.GreaterOrEqual(t, issued, 1)

	var count int64
	require.NoError(t, db.Model(&models.OTPCode{}).
		Where("address = ? AND purpose = ?", "alice@example.com", models.PurposeRegistration).
		Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestResendIntervalEnforced(t *testing.T) {
	svc, _, _, clock := newTestService(t, Config{ResendInterval: time.Minute})
	ctx := context.Background()

	require.NoError(t, svc.Issue(ctx, "alice@example.com", models.PurposeRegistration, models.ChannelEmail))

	err := svc.Issue(ctx, "alice@example.com", models.PurposeRegistration, models.ChannelEmail)
	require.ErrorIs(t, err, apperrors.ErrRateLimit)

	clock.Advance(61 * time.Second)
	require.NoError(t, svc.Issue(ctx, "alice@example.com", models.PurposeRegistration, models.ChannelEmail))
}

func TestAttemptBudgetBurnsRecord(t *testing.T) {
	svc, sender, _, _ := newTestService(t, Config{MaxAttempts: 3})
	ctx := context.Background()

	require.NoError(t, svc.Issue(ctx, "alice@example.com", models.PurposeRegistration, models.ChannelEmail))

	for i := 0; i < 3; i++ {
		err := svc.Verify(ctx, "alice@example.com", models.PurposeRegistration, "000000")
		require.ErrorIs(t, err, apperrors.ErrOTPInvalid)
	}

	// Budget spent: even the right code is refused now.
	err := svc.Verify(ctx, "alice@example.com", models.PurposeRegistration, sender.lastCode)
	require.ErrorIs(t, err, apperrors.ErrOTPInvalid)
}

func TestPasswordResetRequiresAccount(t *testing.T) {
	svc, _, dir, _ := newTestService(t, Config{})
	ctx := context.Background()

	err := svc.Issue(ctx, "stranger@example.com", models.PurposePasswordReset, models.ChannelEmail)
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, apperrors.ErrNotFound.Code, appErr.Code)

	dir.known["alice@example.com"] = true
	require.NoError(t, svc.Issue(ctx, "alice@example.com", models.PurposePasswordReset, models.ChannelEmail))
}

func TestDeliveryFailureKeepsCodeRedeemable(t *testing.T) {
	svc, sender, _, _ := newTestService(t, Config{})
	ctx := context.Background()

	sender.sendErr = fmt.Errorf("smtp refused")
	err := svc.Issue(ctx, "alice@example.com", models.PurposeRegistration, models.ChannelEmail)
	require.ErrorIs(t, err, apperrors.ErrDeliveryFailed)

	// The stored hash survives the delivery failure.
	record, getErr := svc.ledger.Get(ctx, "alice@example.com", models.PurposeRegistration)
	require.NoError(t, getErr)
	require.NotNil(t, record)
	require.NotEmpty(t, record.CodeHash)
}

func TestPurposesAreIsolated(t *testing.T) {
	svc, sender, dir, _ := newTestService(t, Config{})
	ctx := context.Background()
	dir.known["alice@example.com"] = true

	require.NoError(t, svc.Issue(ctx, "alice@example.com", models.PurposeRegistration, models.ChannelEmail))
	regCode := sender.lastCode
	require.NoError(t, svc.Issue(ctx, "alice@example.com", models.PurposePasswordReset, models.ChannelEmail))

	// A registration code cannot redeem a password reset.
	err := svc.Verify(ctx, "alice@example.com", models.PurposePasswordReset, regCode)
	require.ErrorIs(t, err, apperrors.ErrOTPInvalid)

	require.NoError(t, svc.Verify(ctx, "alice@example.com", models.PurposeRegistration, regCode))
}

func TestInvalidateAllClearsEveryPurpose(t *testing.T) {
	svc, sender, dir, _ := newTestService(t, Config{})
	ctx := context.Background()
	dir.known["alice@example.com"] = true

	require.NoError(t, svc.Issue(ctx, "alice@example.com", models.PurposeRegistration, models.ChannelEmail))
	regCode := sender.lastCode
	require.NoError(t, svc.Issue(ctx, "alice@example.com", models.PurposePasswordReset, models.ChannelEmail))
	resetCode := sender.lastCode

	require.NoError(t, svc.InvalidateAll(ctx, "alice@example.com"))

	require.ErrorIs(t, svc.Verify(ctx, "alice@example.com", models.PurposeRegistration, regCode), apperrors.ErrOTPInvalid)
	require.ErrorIs(t, svc.Verify(ctx, "alice@example.com", models.PurposePasswordReset, resetCode), apperrors.ErrOTPInvalid)
}

func TestPurgeExpired(t *testing.T) {
	svc, _, _, clock := newTestService(t, Config{TTL: 10 * time.Minute})
	ctx := context.Background()

	require.NoError(t, svc.Issue(ctx, "alice@example.com", models.PurposeRegistration, models.ChannelEmail))
	clock.Advance(2 * time.Minute)
	require.NoError(t, svc.Issue(ctx, "bob@example.com", models.PurposeRegistration, models.ChannelEmail))

	clock.Advance(9 * time.Minute)

	removed, err := svc.PurgeExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)
}
