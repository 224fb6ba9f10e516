package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pathxpert/server/internal/models"
	"github.com/pathxpert/server/internal/otp"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.OTPCode{},
		&models.Report{},
		&models.TrafficSignal{},
	))
	return db
}

func newTestUserService(t *testing.T, db *gorm.DB) *UserService {
	t.Helper()

	// Low bcrypt cost keeps the suite fast.
	svc, err := NewUserService(db, 4)
	require.NoError(t, err)
	return svc
}

func registerTestUser(t *testing.T, svc *UserService, username, email, password string) *models.User {
	t.Helper()

	user, err := svc.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    email,
		Password: password,
	})
	require.NoError(t, err)
	return user
}

type capturingSender struct {
	lastCode string
	lastLink string
}

func (c *capturingSender) SendOTP(_ context.Context, _ models.OTPChannel, _, code string, _ time.Duration) error {
	c.lastCode = code
	return nil
}

func (c *capturingSender) SendResetLink(_ context.Context, _ string, link string) error {
	c.lastLink = link
	return nil
}

func newTestOTPService(db *gorm.DB, sender otp.Sender, accounts otp.AccountDirectory, now func() time.Time) *otp.Service {
	return otp.NewService(otp.NewLedger(db), sender, accounts, otp.Config{}, now)
}
