package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yeremiapane/omnipos/models"
	"github.com/yeremiapane/omnipos/utils"
)

// Models lists every table the server owns, in creation order.
var Models = []interface{}{
	&models.Order{},
	&models.OrderItem{},
	&models.Notification{},
}

// Migrate creates or updates the schema for Models.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	utils.InfoLogger.Println("AutoMigrate completed.")
	return nil
}
