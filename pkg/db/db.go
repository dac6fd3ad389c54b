package db

import (
	"os"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"github.com/watchkeep/watchkeep/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprometheus "gorm.io/plugin/prometheus"
)

// Module provides the shared gorm handle.
var Module = fx.Provide(New)

// New opens the configured database and applies the pool and
// instrumentation settings shared by every component.
func New(cfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if cfg.DBType == "sqlite" {
		// The store may hold encrypted PII; nobody but the owner reads it.
		if err := os.Chmod(cfg.DBPath, 0o600); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to restrict database file permissions", zap.Error(err))
		}
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConn)
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConn)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetime) * time.Second)

	if err := conn.Use(otelgorm.NewPlugin()); err != nil {
		log.Warn("failed to register otelgorm plugin", zap.Error(err))
	}
	if cfg.MetricsEnabled {
		if err := conn.Use(gormprometheus.New(gormprometheus.Config{
			DBName:          cfg.DBName,
			RefreshInterval: 15,
		})); err != nil {
			log.Warn("failed to register gorm prometheus plugin", zap.Error(err))
		}
	}

	return conn, nil
}
