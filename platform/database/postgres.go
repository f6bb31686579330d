package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/wjixiang/aikb/config"
	"github.com/wjixiang/aikb/models"
	"github.com/wjixiang/aikb/pkg/logging"
)

type DB struct {
	database *gorm.DB
}

func InitPostgres(cfg *config.Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=prefer TimeZone=UTC",
		cfg.Host,
		cfg.User,
		cfg.Password,
		cfg.DBName,
		cfg.Port,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		logging.Logger.Error("failed to connect to database", "error", err)
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		logging.Logger.Error("failed to connect to database", "error", err)
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	logging.Logger.Info("Connected to Postgres")
	return &DB{database: db}, nil
}

func (db *DB) AutoMigrate() error {
	if err := db.database.AutoMigrate(&models.DocumentMeta{}); err != nil {
		logging.Logger.Error("auto migration failed", "error", err)
		return err
	}
	return nil
}

func (db *DB) Close() error {
	sqlDB, err := db.database.DB()
	if err != nil {
		logging.Logger.Error("failed to close database", "error", err)
		return err
	}
	return sqlDB.Close()
}

func (db *DB) GetDatabase() *gorm.DB {
	return db.database
}

func (db *DB) Ping() error {
	sqlDB, err := db.database.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
