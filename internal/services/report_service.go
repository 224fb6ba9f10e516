package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/pathxpert/server/internal/models"
	apperrors "github.com/pathxpert/server/pkg/errors"
	"github.com/pathxpert/server/pkg/metrics"
)

// CreateReportInput describes a submitted incident report.
type CreateReportInput struct {
	Type        models.ReportType
	Injured     bool
	Location    string
	Latitude    *float64
	Longitude   *float64
	Description string
	Anonymous   bool
}

// UpdateReportInput enumerates the attributes an owner may change.
type UpdateReportInput struct {
	Type        *models.ReportType
	Injured     *bool
	Location    *string
	Latitude    *float64
	Longitude   *float64
	Description *string
	Anonymous   *bool
}

// ListReportsOptions controls pagination for report listings.
type ListReportsOptions struct {
	Page     int
	PageSize int
	Status   models.ReportStatus
}

// ReportBroadcaster receives every created report for fan-out to live feeds.
type ReportBroadcaster interface {
	BroadcastReport(report *models.Report)
}

// ReportService manages the incident report lifecycle with owner-or-admin
// access control.
type ReportService struct {
	db        *gorm.DB
	broadcast ReportBroadcaster
}

// NewReportService constructs a ReportService. The broadcaster is optional.
func NewReportService(db *gorm.DB, broadcast ReportBroadcaster) (*ReportService, error) {
	if db == nil {
		return nil, errors.New("report service: db is required")
	}
	return &ReportService{db: db, broadcast: broadcast}, nil
}

// Create stores a new report owned by the user and announces it to the live feed.
func (s *ReportService) Create(ctx context.Context, user *models.User, input CreateReportInput) (*models.Report, error) {
	ctx = ensureContext(ctx)

	if !input.Type.Valid() {
		return nil, apperrors.NewBadRequest("Unknown report type")
	}
	location := strings.TrimSpace(input.Location)
	if location == "" && (input.Latitude == nil || input.Longitude == nil) {
		return nil, apperrors.NewBadRequest("A location name or coordinates are required")
	}

	report := &models.Report{
		Type:        input.Type,
		Injured:     input.Injured,
		Location:    location,
		Latitude:    input.Latitude,
		Longitude:   input.Longitude,
		Description: strings.TrimSpace(input.Description),
		Anonymous:   input.Anonymous,
		Status:      models.ReportPending,
		UserID:      user.ID,
	}

	if err := s.db.WithContext(ctx).Create(report).Error; err != nil {
		return nil, fmt.Errorf("report service: create report: %w", err)
	}

	metrics.ReportsCreated.WithLabelValues(string(report.Type)).Inc()
	if s.broadcast != nil {
		s.broadcast.BroadcastReport(report)
	}

	return report, nil
}

// List returns a page of reports: the caller's own, or everyone's for admins.
func (s *ReportService) List(ctx context.Context, user *models.User, opts ListReportsOptions) ([]models.Report, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page < 1 {
		page = 1
	}
	size := opts.PageSize
	if size < 1 || size > 100 {
		size = 20
	}

	query := s.db.WithContext(ctx).Model(&models.Report{})
	if !user.IsAdmin() {
		query = query.Where("user_id = ?", user.ID)
	}
	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("report service: count reports: %w", err)
	}

	var reports []models.Report
	err := query.Order("created_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&reports).Error
	if err != nil {
		return nil, 0, fmt.Errorf("report service: list reports: %w", err)
	}

	return reports, total, nil
}

// Get fetches a single report; non-owners need the admin role.
func (s *ReportService) Get(ctx context.Context, user *models.User, id string) (*models.Report, error) {
	report, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if report.UserID != user.ID && !user.IsAdmin() {
		return nil, apperrors.ErrForbidden
	}
	return report, nil
}

// Update applies owner edits to a report.
func (s *ReportService) Update(ctx context.Context, user *models.User, id string, input UpdateReportInput) (*models.Report, error) {
	ctx = ensureContext(ctx)

	report, err := s.Get(ctx, user, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Type != nil {
		if !input.Type.Valid() {
			return nil, apperrors.NewBadRequest("Unknown report type")
		}
		updates["type"] = *input.Type
	}
	if input.Injured != nil {
		updates["injured"] = *input.Injured
	}
	if input.Location != nil {
		updates["location"] = strings.TrimSpace(*input.Location)
	}
	if input.Latitude != nil {
		updates["latitude"] = *input.Latitude
	}
	if input.Longitude != nil {
		updates["longitude"] = *input.Longitude
	}
	if input.Description != nil {
		updates["description"] = strings.TrimSpace(*input.Description)
	}
	if input.Anonymous != nil {
		updates["anonymous"] = *input.Anonymous
	}

	if len(updates) == 0 {
		return report, nil
	}

	if err := s.db.WithContext(ctx).Model(report).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("report service: update report: %w", err)
	}

	return s.find(ctx, id)
}

// UpdateStatus moves a report through its workflow. Admin only.
func (s *ReportService) UpdateStatus(ctx context.Context, user *models.User, id string, status models.ReportStatus) (*models.Report, error) {
	ctx = ensureContext(ctx)

	if !user.IsAdmin() {
		return nil, apperrors.ErrForbidden
	}
	if !status.Valid() {
		return nil, apperrors.NewBadRequest("Unknown report status")
	}

	report, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(report).Update("status", status).Error; err != nil {
		return nil, fmt.Errorf("report service: update status: %w", err)
	}
	report.Status = status
	return report, nil
}

// Delete removes a report; owner or admin.
func (s *ReportService) Delete(ctx context.Context, user *models.User, id string) error {
	ctx = ensureContext(ctx)

	report, err := s.Get(ctx, user, id)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(report).Error; err != nil {
		return fmt.Errorf("report service: delete report: %w", err)
	}
	return nil
}

// History returns the user's own reports, newest first.
func (s *ReportService) History(ctx context.Context, userID string, limit int) ([]models.Report, error) {
	ctx = ensureContext(ctx)

	if limit < 1 || limit > 100 {
		limit = 50
	}

	var reports []models.Report
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&reports).Error
	if err != nil {
		return nil, fmt.Errorf("report service: history: %w", err)
	}
	return reports, nil
}

// UserStats summarises a user's reporting activity.
type UserStats struct {
	TotalReports int64            `json:"total_reports"`
	ByType       map[string]int64 `json:"by_type"`
	ByStatus     map[string]int64 `json:"by_status"`
}

// Stats aggregates per-user report counts.
func (s *ReportService) Stats(ctx context.Context, userID string) (*UserStats, error) {
	ctx = ensureContext(ctx)

	stats := &UserStats{
		ByType:   map[string]int64{},
		ByStatus: map[string]int64{},
	}

	err := s.db.WithContext(ctx).Model(&models.Report{}).
		Where("user_id = ?", userID).
		Count(&stats.TotalReports).Error
	if err != nil {
		return nil, fmt.Errorf("report service: stats: %w", err)
	}

	type bucket struct {
		Key   string
		Count int64
	}

	var byType []bucket
	err = s.db.WithContext(ctx).Model(&models.Report{}).
		Select("type AS key, COUNT(*) AS count").
		Where("user_id = ?", userID).
		Group("type").
		Scan(&byType).Error
	if err != nil {
		return nil, fmt.Errorf("report service: stats by type: %w", err)
	}
	for _, b := range byType {
		stats.ByType[b.Key] = b.Count
	}

	var byStatus []bucket
	err = s.db.WithContext(ctx).Model(&models.Report{}).
		Select("status AS key, COUNT(*) AS count").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&byStatus).Error
	if err != nil {
		return nil, fmt.Errorf("report service: stats by status: %w", err)
	}
	for _, b := range byStatus {
		stats.ByStatus[b.Key] = b.Count
	}

	return stats, nil
}

// Options lists the accepted report types and statuses for client pickers.
func (s *ReportService) Options() map[string][]string {
	return map[string][]string{
		"types": {
			string(models.ReportAccident),
			string(models.ReportTraffic),
			string(models.ReportClosure),
			string(models.ReportOther),
		},
		"statuses": {
			string(models.ReportPending),
			string(models.ReportInProgress),
			string(models.ReportCompleted),
			string(models.ReportCancelled),
		},
	}
}

func (s *ReportService) find(ctx context.Context, id string) (*models.Report, error) {
	var report models.Report
	err := s.db.WithContext(ctx).First(&report, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("Report not found")
		}
		return nil, fmt.Errorf("report service: find report: %w", err)
	}
	return &report, nil
}
