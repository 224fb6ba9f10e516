package database

import (
	"errors"

	"gorm.io/gorm"

	"github.com/pathxpert/server/internal/models"
)

// AutoMigrate creates or updates the schema for every persistent model.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	return db.AutoMigrate(
		&models.User{},
		&models.OTPCode{},
		&models.Report{},
		&models.TrafficSignal{},
	)
}

// defaultSignals covers the Colombo junctions the mobile app ships with, so a
// fresh install answers density lookups before an operator registers anything.
var defaultSignals = []models.TrafficSignal{
	{SignalName: "Borella Junction", TrafficLevel: models.TrafficHigh, Status: models.SignalWorking, Latitude: 6.9146, Longitude: 79.8779},
	{SignalName: "Town Hall Junction", TrafficLevel: models.TrafficHigh, Status: models.SignalWorking, Latitude: 6.9157, Longitude: 79.8636},
	{SignalName: "Kollupitiya Junction", TrafficLevel: models.TrafficMedium, Status: models.SignalWorking, Latitude: 6.9115, Longitude: 79.8489},
	{SignalName: "Nugegoda Junction", TrafficLevel: models.TrafficHigh, Status: models.SignalWorking, Latitude: 6.8649, Longitude: 79.8997},
	{SignalName: "Rajagiriya Junction", TrafficLevel: models.TrafficMedium, Status: models.SignalWorking, Latitude: 6.9090, Longitude: 79.8943},
	{SignalName: "Dehiwala Junction", TrafficLevel: models.TrafficLow, Status: models.SignalWorking, Latitude: 6.8511, Longitude: 79.8656},
}

// SeedDefaults inserts the bundled traffic signals into an empty table. A
// non-empty table is left untouched, so operator edits survive restarts.
func SeedDefaults(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	var count int64
	if err := db.Model(&models.TrafficSignal{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	signals := make([]models.TrafficSignal, len(defaultSignals))
	copy(signals, defaultSignals)
	return db.Create(&signals).Error
}
