package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"gorm.io/gorm"

	"github.com/pathxpert/server/internal/models"
	apperrors "github.com/pathxpert/server/pkg/errors"
)

const (
	earthRadiusKm   = 6371.0
	defaultRadiusKm = 1.0
)

// TrafficDensity is the result of a nearby-signal lookup.
type TrafficDensity struct {
	SignalCount int                    `json:"signal_count"`
	Level       string                 `json:"level"`
	RadiusKm    float64                `json:"radius_km"`
	Signals     []models.TrafficSignal `json:"signals"`
}

// SignalInput describes an admin-managed traffic signal.
type SignalInput struct {
	SignalName   string
	TrafficLevel models.TrafficLevel
	Status       models.SignalStatus
	Latitude     float64
	Longitude    float64
}

// TrafficService answers nearby traffic-density queries and manages the
// signal inventory.
type TrafficService struct {
	db *gorm.DB
}

// NewTrafficService constructs a TrafficService.
func NewTrafficService(db *gorm.DB) (*TrafficService, error) {
	if db == nil {
		return nil, errors.New("traffic service: db is required")
	}
	return &TrafficService{db: db}, nil
}

// Nearby counts signals within the radius of the point and grades the density.
// A coarse bounding-box query narrows the candidates before the exact
// great-circle distance filter runs in memory.
func (s *TrafficService) Nearby(ctx context.Context, lat, lon float64) (*TrafficDensity, error) {
	ctx = ensureContext(ctx)

	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, apperrors.NewBadRequest("Coordinates are out of range")
	}

	radius := defaultRadiusKm
	latDelta := radius / 111.0
	lonDelta := radius / (111.0 * math.Cos(lat*math.Pi/180))
	if math.IsInf(lonDelta, 0) || math.IsNaN(lonDelta) {
		lonDelta = 180
	}

	var candidates []models.TrafficSignal
	err := s.db.WithContext(ctx).
		Where("latitude BETWEEN ? AND ?", lat-latDelta, lat+latDelta).
		Where("longitude BETWEEN ? AND ?", lon-lonDelta, lon+lonDelta).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("traffic service: query signals: %w", err)
	}

	signals := make([]models.TrafficSignal, 0, len(candidates))
	for _, signal := range candidates {
		if haversineKm(lat, lon, signal.Latitude, signal.Longitude) <= radius {
			signals = append(signals, signal)
		}
	}

	return &TrafficDensity{
		SignalCount: len(signals),
		Level:       densityLevel(len(signals)),
		RadiusKm:    radius,
		Signals:     signals,
	}, nil
}

// densityLevel grades signal density: more than 10 signals within the radius
// is High, more than 5 is Moderate, anything else Low.
func densityLevel(count int) string {
	switch {
	case count > 10:
		return "High"
	case count > 5:
		return "Moderate"
	default:
		return "Low"
	}
}

// haversineKm computes the great-circle distance between two points.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

// CreateSignal registers a new traffic signal.
func (s *TrafficService) CreateSignal(ctx context.Context, input SignalInput) (*models.TrafficSignal, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.SignalName)
	if name == "" {
		return nil, apperrors.NewBadRequest("Signal name is required")
	}
	if !input.TrafficLevel.Valid() {
		return nil, apperrors.NewBadRequest("Unknown traffic level")
	}
	if !input.Status.Valid() {
		return nil, apperrors.NewBadRequest("Unknown signal status")
	}

	signal := &models.TrafficSignal{
		SignalName:   name,
		TrafficLevel: input.TrafficLevel,
		Status:       input.Status,
		Latitude:     input.Latitude,
		Longitude:    input.Longitude,
	}

	if err := s.db.WithContext(ctx).Create(signal).Error; err != nil {
		return nil, fmt.Errorf("traffic service: create signal: %w", err)
	}
	return signal, nil
}

// UpdateSignal replaces a signal's attributes.
func (s *TrafficService) UpdateSignal(ctx context.Context, id string, input SignalInput) (*models.TrafficSignal, error) {
	ctx = ensureContext(ctx)

	var signal models.TrafficSignal
	err := s.db.WithContext(ctx).First(&signal, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("Traffic signal not found")
		}
		return nil, fmt.Errorf("traffic service: find signal: %w", err)
	}

	if !input.TrafficLevel.Valid() {
		return nil, apperrors.NewBadRequest("Unknown traffic level")
	}
	if !input.Status.Valid() {
		return nil, apperrors.NewBadRequest("Unknown signal status")
	}

	updates := map[string]any{
		"traffic_level": input.TrafficLevel,
		"status":        input.Status,
		"latitude":      input.Latitude,
		"longitude":     input.Longitude,
	}
	if name := strings.TrimSpace(input.SignalName); name != "" {
		updates["signal_name"] = name
	}

	if err := s.db.WithContext(ctx).Model(&signal).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("traffic service: update signal: %w", err)
	}

	return &signal, nil
}

// DeleteSignal removes a signal from the inventory.
func (s *TrafficService) DeleteSignal(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).Delete(&models.TrafficSignal{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("traffic service: delete signal: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound.WithMessage("Traffic signal not found")
	}
	return nil
}

// ListSignals returns the full signal inventory.
func (s *TrafficService) ListSignals(ctx context.Context) ([]models.TrafficSignal, error) {
	ctx = ensureContext(ctx)

	var signals []models.TrafficSignal
	if err := s.db.WithContext(ctx).Order("signal_name").Find(&signals).Error; err != nil {
		return nil, fmt.Errorf("traffic service: list signals: %w", err)
	}
	return signals, nil
}
