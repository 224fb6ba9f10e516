package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pathxpert/server/internal/models"
	apperrors "github.com/pathxpert/server/pkg/errors"
)

type recordingBroadcaster struct {
	reports []*models.Report
}

func (b *recordingBroadcaster) BroadcastReport(report *models.Report) {
	b.reports = append(b.reports, report)
}

func newReportFixture(t *testing.T) (*gorm.DB, *UserService, *ReportService, *recordingBroadcaster) {
	t.Helper()

	db := openTestDB(t)
	users := newTestUserService(t, db)
	broadcaster := &recordingBroadcaster{}
	reports, err := NewReportService(db, broadcaster)
	require.NoError(t, err)
	return db, users, reports, broadcaster
}

func makeAdmin(t *testing.T, db *gorm.DB, user *models.User) {
	t.Helper()

	require.NoError(t, db.Model(user).Update("role", models.RoleAdmin).Error)
	user.Role = models.RoleAdmin
}

func floatPtr(v float64) *float64 { return &v }

func TestCreateReportBroadcasts(t *testing.T) {
	_, users, reports, broadcaster := newReportFixture(t)
	ctx := context.Background()

	alice := registerTestUser(t, users, "alice", "alice@example.com", "hunter22")

	report, err := reports.Create(ctx, alice, CreateReportInput{
		Type:        models.ReportAccident,
		Injured:     true,
		Location:    "Galle Road, Colombo 03",
		Latitude:    floatPtr(6.9001),
		Longitude:   floatPtr(79.8531),
		Description: "Two-vehicle collision blocking the left lane",
	})
	require.NoError(t, err)
	require.Equal(t, models.ReportPending, report.Status)
	require.Equal(t, alice.ID, report.UserID)
	require.Len(t, broadcaster.reports, 1)
}

func TestCreateReportValidation(t *testing.T) {
	_, users, reports, _ := newReportFixture(t)
	ctx := context.Background()

	alice := registerTestUser(t, users, "alice", "alice@example.com", "hunter22")

	_, err := reports.Create(ctx, alice, CreateReportInput{Type: "meteor"})
	require.Error(t, err)

	_, err = reports.Create(ctx, alice, CreateReportInput{Type: models.ReportTraffic})
	require.Error(t, err)
}

func TestListReportsOwnership(t *testing.T) {
	db, users, reports, _ := newReportFixture(t)
	ctx := context.Background()

	alice := registerTestUser(t, users, "alice", "alice@example.com", "hunter22")
	bob := registerTestUser(t, users, "bob", "bob@example.com", "hunter22")

	_, err := reports.Create(ctx, alice, CreateReportInput{
		Type: models.ReportTraffic, Location: "Kandy Road", Description: "Heavy congestion",
	})
	require.NoError(t, err)
	_, err = reports.Create(ctx, bob, CreateReportInput{
		Type: models.ReportClosure, Location: "High Level Road", Description: "Road closed for repairs",
	})
	require.NoError(t, err)

	own, total, err := reports.List(ctx, alice, ListReportsOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, alice.ID, own[0].UserID)

	makeAdmin(t, db, alice)
	all, total, err := reports.List(ctx, alice, ListReportsOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, all, 2)
}

func TestReportAccessControl(t *testing.T) {
	db, users, reports, _ := newReportFixture(t)
	ctx := context.Background()

	alice := registerTestUser(t, users, "alice", "alice@example.com", "hunter22")
	bob := registerTestUser(t, users, "bob", "bob@example.com", "hunter22")

	report, err := reports.Create(ctx, alice, CreateReportInput{
		Type: models.ReportAccident, Location: "Marine Drive", Description: "Minor collision",
	})
	require.NoError(t, err)

	_, err = reports.Get(ctx, bob, report.ID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	err = reports.Delete(ctx, bob, report.ID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	makeAdmin(t, db, bob)
	fetched, err := reports.Get(ctx, bob, report.ID)
	require.NoError(t, err)
	require.Equal(t, report.ID, fetched.ID)

	require.NoError(t, reports.Delete(ctx, bob, report.ID))

	_, err = reports.Get(ctx, alice, report.ID)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, apperrors.ErrNotFound.Code, appErr.Code)
}

func TestUpdateStatusAdminOnly(t *testing.T) {
	db, users, reports, _ := newReportFixture(t)
	ctx := context.Background()

	alice := registerTestUser(t, users, "alice", "alice@example.com", "hunter22")

	report, err := reports.Create(ctx, alice, CreateReportInput{
		Type: models.ReportTraffic, Location: "Baseline Road", Description: "Standstill traffic",
	})
	require.NoError(t, err)

	_, err = reports.UpdateStatus(ctx, alice, report.ID, models.ReportCompleted)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	makeAdmin(t, db, alice)
	updated, err := reports.UpdateStatus(ctx, alice, report.ID, models.ReportCompleted)
	require.NoError(t, err)
	require.Equal(t, models.ReportCompleted, updated.Status)

	_, err = reports.UpdateStatus(ctx, alice, report.ID, "vaporised")
	require.Error(t, err)
}

func TestHistoryAndStats(t *testing.T) {
	_, users, reports, _ := newReportFixture(t)
	ctx := context.Background()

	alice := registerTestUser(t, users, "alice", "alice@example.com", "hunter22")

	for i := 0; i < 3; i++ {
		_, err := reports.Create(ctx, alice, CreateReportInput{
			Type: models.ReportTraffic, Location: "Duplication Road", Description: "Slow traffic",
		})
		require.NoError(t, err)
	}
	_, err := reports.Create(ctx, alice, CreateReportInput{
		Type: models.ReportAccident, Location: "Duplication Road", Description: "Fender bender",
	})
	require.NoError(t, err)

	history, err := reports.History(ctx, alice.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 4)

	stats, err := reports.Stats(ctx, alice.ID)
	require.NoError(t, err)
	require.EqualValues(t, 4, stats.TotalReports)
	require.EqualValues(t, 3, stats.ByType["traffic"])
	require.EqualValues(t, 1, stats.ByType["accident"])
	require.EqualValues(t, 4, stats.ByStatus["pending"])
}
