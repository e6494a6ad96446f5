package db

import (
	"marketengine/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Market{},
		&models.OutcomePool{},
		&models.Position{},
		&models.ResolutionVote{},
		&models.Resolution{},
		&models.Payout{},
	)
}
