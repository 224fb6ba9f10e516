package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pathxpert/server/internal/models"
	apperrors "github.com/pathxpert/server/pkg/errors"
)

type resetFixture struct {
	db     *gorm.DB
	users  *UserService
	reset  *PasswordResetService
	sender *capturingSender
	clock  *time.Time
}

func newResetFixture(t *testing.T) *resetFixture {
	t.Helper()

	db := openTestDB(t)
	users := newTestUserService(t, db)
	sender := &capturingSender{}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	nowFn := func() time.Time { return *clock }

	otpSvc := newTestOTPService(db, sender, users, nowFn)
	reset, err := NewPasswordResetService(db, users, otpSvc, sender, ResetConfig{BcryptCost: 4}, nowFn)
	require.NoError(t, err)

	return &resetFixture{db: db, users: users, reset: reset, sender: sender, clock: clock}
}

func (f *resetFixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()

	idx := strings.LastIndex(link, "/")
	require.Greater(t, idx, 0)
	return link[idx+1:]
}

func TestResetTokenRedeemsExactlyOnce(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()

	registerTestUser(t, f.users, "alice", "alice@example.com", "original-pass")

	require.NoError(t, f.reset.CreateResetToken(ctx, "alice@example.com"))
	token := tokenFromLink(t, f.sender.lastLink)

	require.NoError(t, f.reset.ResetWithToken(ctx, token, "brand-new-pass"))

	// Old credential is gone, new one works.
	_, err := f.users.Login(ctx, "alice@example.com", "original-pass")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	_, err = f.users.Login(ctx, "alice@example.com", "brand-new-pass")
	require.NoError(t, err)

	// Consumed token always fails from then on.
	err = f.reset.ResetWithToken(ctx, token, "another-pass")
	require.ErrorIs(t, err, apperrors.ErrResetTokenInvalid)
}

func TestResetTokenExpires(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()

	registerTestUser(t, f.users, "alice", "alice@example.com", "original-pass")

	require.NoError(t, f.reset.CreateResetToken(ctx, "alice@example.com"))
	token := tokenFromLink(t, f.sender.lastLink)

	f.advance(10*time.Minute + time.Second)

	err := f.reset.ResetWithToken(ctx, token, "brand-new-pass")
	require.ErrorIs(t, err, apperrors.ErrResetTokenInvalid)
}

func TestResetTokenUnknownEmail(t *testing.T) {
	f := newResetFixture(t)

	err := f.reset.CreateResetToken(context.Background(), "ghost@example.com")
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, ErrUserNotFound.Code, appErr.Code)
}

func TestResetRejectsWeakPassword(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()

	registerTestUser(t, f.users, "alice", "alice@example.com", "original-pass")

	require.NoError(t, f.reset.CreateResetToken(ctx, "alice@example.com"))
	token := tokenFromLink(t, f.sender.lastLink)

	err := f.reset.ResetWithToken(ctx, token, "abc")
	require.ErrorIs(t, err, apperrors.ErrWeakCredential)

	// Policy failure does not consume the token.
	require.NoError(t, f.reset.ResetWithToken(ctx, token, "strong-enough"))
}

func TestResetWithOTP(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()

	registerTestUser(t, f.users, "alice", "alice@example.com", "original-pass")

	require.NoError(t, f.reset.otp.Issue(ctx, "alice@example.com", models.PurposePasswordReset, models.ChannelEmail))
	code := f.sender.lastCode
	require.NotEmpty(t, code)

	require.NoError(t, f.reset.ResetWithOTP(ctx, "alice@example.com", code, "brand-new-pass"))

	_, err := f.users.Login(ctx, "alice@example.com", "brand-new-pass")
	require.NoError(t, err)

	// The code was consumed by the reset.
	err = f.reset.ResetWithOTP(ctx, "alice@example.com", code, "yet-another")
	require.ErrorIs(t, err, apperrors.ErrOTPInvalid)
}

func TestResetWithOTPWeakPasswordKeepsCode(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()

	registerTestUser(t, f.users, "alice", "alice@example.com", "original-pass")

	require.NoError(t, f.reset.otp.Issue(ctx, "alice@example.com", models.PurposePasswordReset, models.ChannelEmail))
	code := f.sender.lastCode

	err := f.reset.ResetWithOTP(ctx, "alice@example.com", code, "abc")
	require.ErrorIs(t, err, apperrors.ErrWeakCredential)

	// The policy check runs before verification, so the code survives.
	require.NoError(t, f.reset.ResetWithOTP(ctx, "alice@example.com", code, "strong-enough"))
}

func TestReplaceCredentialInvalidatesAllArtifacts(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()

	registerTestUser(t, f.users, "alice", "alice@example.com", "original-pass")

	// Outstanding reset token plus a live OTP, then reset through the token.
	require.NoError(t, f.reset.otp.Issue(ctx, "alice@example.com", models.PurposePasswordReset, models.ChannelEmail))
	code := f.sender.lastCode
	require.NoError(t, f.reset.CreateResetToken(ctx, "alice@example.com"))
	token := tokenFromLink(t, f.sender.lastLink)

	require.NoError(t, f.reset.ResetWithToken(ctx, token, "brand-new-pass"))

	// Neither artifact issued before the change still works.
	err := f.reset.ResetWithOTP(ctx, "alice@example.com", code, "sneaky-pass")
	require.ErrorIs(t, err, apperrors.ErrOTPInvalid)
	err = f.reset.ResetWithToken(ctx, token, "sneaky-pass")
	require.ErrorIs(t, err, apperrors.ErrResetTokenInvalid)
}

func TestPurgeExpiredTokens(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()

	registerTestUser(t, f.users, "alice", "alice@example.com", "original-pass")
	require.NoError(t, f.reset.CreateResetToken(ctx, "alice@example.com"))

	f.advance(11 * time.Minute)

	cleared, err := f.reset.PurgeExpiredTokens(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, cleared)

	user, err := f.users.FindByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Nil(t, user.PasswordResetToken)
	require.Nil(t, user.PasswordResetExpires)
}
