package database

import (
	"fmt"
	"time"

	"fleetwatch/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

var DB *gorm.DB

func InitDB(config Config) error {
	var dialector gorm.Dialector

	switch config.Driver {
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			config.User, config.Password, config.Host, config.Port, config.DBName)
		dialector = mysql.Open(dsn)
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(config.DBName)
	default:
		return fmt.Errorf("unsupported database driver: %s", config.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	DB = db

	if err := DB.AutoMigrate(
		&models.AlertRule{},
		&models.KVEntry{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	if err := seedPresetRules(); err != nil {
		return fmt.Errorf("failed to seed preset alert rules: %w", err)
	}

	return nil
}

// seedPresetRules installs the built-in rule set on first run
func seedPresetRules() error {
	var count int64
	if err := DB.Model(&models.AlertRule{}).Count(&count).Error; err != nil {
		return err
	}

	// Only seed an empty store
	if count > 0 {
		return nil
	}

	presets := []struct {
		name      string
		severity  string
		condition models.RuleCondition
	}{
		{
			name:     "High resource usage",
			severity: models.SeverityWarning,
			condition: models.RuleCondition{
				Type:      models.ConditionResourceUsage,
				Threshold: models.DefaultResourceUsageThreshold,
			},
		},
		{
			name:     "Cluster node not ready",
			severity: models.SeverityCritical,
			condition: models.RuleCondition{
				Type: models.ConditionNodeNotReady,
			},
		},
		{
			name:     "Pod crash looping",
			severity: models.SeverityCritical,
			condition: models.RuleCondition{
				Type:      models.ConditionCrashLoop,
				Threshold: models.DefaultCrashLoopThreshold,
			},
		},
	}

	for _, preset := range presets {
		rule := models.AlertRule{
			Name:     preset.name,
			Severity: preset.severity,
			Enabled:  true,
			Preset:   true,
		}
		if err := rule.SetCondition(preset.condition); err != nil {
			return err
		}
		if err := DB.Create(&rule).Error; err != nil {
			return err
		}
	}

	return nil
}

func GetDB() *gorm.DB {
	return DB
}
