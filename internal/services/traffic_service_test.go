package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pathxpert/server/internal/models"
)

func newTrafficFixture(t *testing.T) *TrafficService {
	t.Helper()

	svc, err := NewTrafficService(openTestDB(t))
	require.NoError(t, err)
	return svc
}

func seedSignals(t *testing.T, svc *TrafficService, n int, lat, lon float64) {
	t.Helper()

	for i := 0; i < n; i++ {
		// Spread within roughly 500m of the anchor point.
		_, err := svc.CreateSignal(context.Background(), SignalInput{
			SignalName:   fmt.Sprintf("Junction %d", i),
			TrafficLevel: models.TrafficMedium,
			Status:       models.SignalWorking,
			Latitude:     lat + float64(i)*0.0005,
			Longitude:    lon,
		})
		require.NoError(t, err)
	}
}

func TestNearbyCountsWithinRadius(t *testing.T) {
	svc := newTrafficFixture(t)
	ctx := context.Background()

	// Three close signals, one ~5km north.
	seedSignals(t, svc, 3, 6.9271, 79.8612)
	_, err := svc.CreateSignal(ctx, SignalInput{
		SignalName:   "Far Junction",
		TrafficLevel: models.TrafficLow,
		Status:       models.SignalWorking,
		Latitude:     6.9721,
		Longitude:    79.8612,
	})
	require.NoError(t, err)

	density, err := svc.Nearby(ctx, 6.9271, 79.8612)
	require.NoError(t, err)
	require.Equal(t, 3, density.SignalCount)
	require.Equal(t, "Low", density.Level)
	require.InDelta(t, 1.0, density.RadiusKm, 0.001)
}

func TestNearbyDensityLevels(t *testing.T) {
	cases := []struct {
		signals int
		level   string
	}{
		{0, "Low"},
		{5, "Low"},
		{6, "Moderate"},
		{10, "Moderate"},
		{11, "High"},
	}

	for _, tc := range cases {
		t.Run(tc.level+fmt.Sprintf("_%d", tc.signals), func(t *testing.T) {
			svc := newTrafficFixture(t)
			seedSignals(t, svc, tc.signals, 6.9271, 79.8612)

			density, err := svc.Nearby(context.Background(), 6.9271, 79.8612)
			require.NoError(t, err)
			require.Equal(t, tc.signals, density.SignalCount)
			require.Equal(t, tc.level, density.Level)
		})
	}
}

func TestNearbyRejectsBadCoordinates(t *testing.T) {
	svc := newTrafficFixture(t)

	_, err := svc.Nearby(context.Background(), 91, 0)
	require.Error(t, err)
	_, err = svc.Nearby(context.Background(), 0, 181)
	require.Error(t, err)
}

func TestSignalCRUD(t *testing.T) {
	svc := newTrafficFixture(t)
	ctx := context.Background()

	signal, err := svc.CreateSignal(ctx, SignalInput{
		SignalName:   "Borella Junction",
		TrafficLevel: models.TrafficHigh,
		Status:       models.SignalWorking,
		Latitude:     6.9147,
		Longitude:    79.8778,
	})
	require.NoError(t, err)

	updated, err := svc.UpdateSignal(ctx, signal.ID, SignalInput{
		SignalName:   "Borella Junction",
		TrafficLevel: models.TrafficLow,
		Status:       models.SignalDamaged,
		Latitude:     6.9147,
		Longitude:    79.8778,
	})
	require.NoError(t, err)
	require.Equal(t, models.SignalDamaged, updated.Status)

	signals, err := svc.ListSignals(ctx)
	require.NoError(t, err)
	require.Len(t, signals, 1)

	require.NoError(t, svc.DeleteSignal(ctx, signal.ID))
	require.Error(t, svc.DeleteSignal(ctx, signal.ID))
}

func TestCreateSignalValidation(t *testing.T) {
	svc := newTrafficFixture(t)
	ctx := context.Background()

	_, err := svc.CreateSignal(ctx, SignalInput{
		TrafficLevel: models.TrafficLow,
		Status:       models.SignalWorking,
	})
	require.Error(t, err)

	_, err = svc.CreateSignal(ctx, SignalInput{
		SignalName:   "Junction",
		TrafficLevel: "gridlock",
		Status:       models.SignalWorking,
	})
	require.Error(t, err)
}
