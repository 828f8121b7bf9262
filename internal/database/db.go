package database

import (
	"fmt"
	"log"
	"time"

	"github.com/rabbitdeck/backend/internal/config"
	"github.com/rabbitdeck/backend/internal/domain"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewPostgresDB creates the database connection (Fx compatible)
func NewPostgresDB(cfg *config.Config) (*gorm.DB, error) {
	return New(&cfg.Database)
}

// New opens the database connection and prepares the schema
func New(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	maxOpenConns := cfg.MaxOpenConns
	if maxOpenConns == 0 {
		maxOpenConns = 100
	}

	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns == 0 {
		maxIdleConns = maxOpenConns / 2
	}

	connMaxLifetime := cfg.ConnMaxLifetime
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := createEnumTypes(db); err != nil {
		return nil, fmt.Errorf("failed to create enum types: %w", err)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

// createEnumTypes creates the PostgreSQL ENUM types used by the schema.
// DO blocks instead of IF NOT EXISTS because the latter is not supported for
// CREATE TYPE.
func createEnumTypes(gormDB *gorm.DB) error {
	enums := []struct {
		name   string
		values string
	}{
		{"role_enum", "'administrator', 'user'"},
		{"operation_type_enum", "'CREATE_EXCHANGE', 'DELETE_EXCHANGE', 'CREATE_QUEUE', 'DELETE_QUEUE', 'PURGE_QUEUE', 'CREATE_BINDING_EXCHANGE', 'CREATE_BINDING_QUEUE', 'DELETE_BINDING', 'PUBLISH_MESSAGE_EXCHANGE', 'PUBLISH_MESSAGE_QUEUE', 'MOVE_MESSAGES_QUEUE'"},
		{"audit_status_enum", "'SUCCESS', 'FAILURE', 'PARTIAL'"},
	}

	for _, enum := range enums {
		doBlock := fmt.Sprintf(`
			DO $$
			BEGIN
				IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = '%s') THEN
					CREATE TYPE %s AS ENUM (%s);
				END IF;
			END$$;
		`, enum.name, enum.name, enum.values)

		if err := gormDB.Exec(doBlock).Error; err != nil {
			log.Printf("Warning: failed to create enum %s: %v", enum.name, err)
		}
	}

	return nil
}

// AutoMigrate migrates all models (development convenience; production uses
// cmd/migrate and the embedded SQL migrations)
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.Cluster{},
		&domain.AuditRecord{},
	)
}
