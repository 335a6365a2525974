package database

import (
	"context"
	"fmt"
	"strconv"

	"github.com/healthharbor/prevcare/pkg/common/config"
	"github.com/healthharbor/prevcare/pkg/common/logger"
	"github.com/healthharbor/prevcare/pkg/common/secrets"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Connect opens the shared Postgres handle. The handle is passed into
// repositories explicitly; there is no package-level singleton.
func Connect(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	host := cfg.PostgresHost
	port := cfg.PostgresPort
	user := cfg.PostgresUser
	password := cfg.PostgresPassword
	dbname := cfg.PostgresDB

	if cfg.DBSecretARN != "" {
		creds, err := secrets.FetchDBCredentials(ctx, cfg.AWSRegion, cfg.DBSecretARN)
		if err != nil {
			return nil, fmt.Errorf("bootstrapping database credentials: %w", err)
		}
		host = creds.Host
		port = strconv.Itoa(creds.Port)
		user = creds.Username
		password = creds.Password
		dbname = creds.DBName
		logger.Log.Info("Database credentials loaded from Secrets Manager")
	}

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		host, user, password, dbname, port, cfg.PostgresSSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	logger.Log.Info("Connected to PostgreSQL")
	return db, nil
}

func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping verifies the connection, backing the /db/ping endpoint.
func Ping(ctx context.Context, db *gorm.DB) error {
	var ok int
	return db.WithContext(ctx).Raw("SELECT 1").Scan(&ok).Error
}
