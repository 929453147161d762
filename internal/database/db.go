package database

import (
	"fmt"

	"consult_gateway_go_backend/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// openPairIndex enforces at most one non-terminal conversation per (user, partner) pair.
const openPairIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_open_pair
	ON conversations (user_id, partner_id)
	WHERE status IN ('pending', 'accepted', 'active')`

func InitDB(dsn string) (*gorm.DB, error) {
	db, err := Open(postgres.Open(dsn))
	if err != nil {
		return nil, err
	}
	log.Info().Msg("Database connected and migrated")
	DB = db
	return db, nil
}

// Open connects through the given dialector and migrates the schema.
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		// Surface unique violations as gorm.ErrDuplicatedKey.
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Partner{},
		&models.Conversation{},
		&models.Message{},
		&models.LedgerEntry{},
		&models.SessionRecord{},
		&models.CreditPurchase{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}

	if err := db.Exec(openPairIndex).Error; err != nil {
		return fmt.Errorf("failed to create open pair index: %w", err)
	}
	return nil
}
