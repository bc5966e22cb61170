package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/videocatalog-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		// Catalog (owned by the content layer, migrated here for local/dev setups)
		&types.Video{},

		// Job ledger
		&types.JobRecord{},

		// Relatedness
		&types.TagSignal{},
		&types.TagWeight{},
		&types.VideoScore{},
	); err != nil {
		return fmt.Errorf("automigrate: %w", err)
	}
	return nil
}
