package db

import (
	"context"
	"time"

	"github.com/smallbiznis/cirrus/internal/config"
	"github.com/smallbiznis/cirrus/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"gorm.io/gorm"
	gormprometheus "gorm.io/plugin/prometheus"
)

var Module = fx.Module("db",
	fx.Provide(
		Dialect,
		New,
	),
)

// New opens the database connection, applies the tracing and metrics plugins
// and manages pool lifecycle through fx.
func New(lc fx.Lifecycle, cfg config.Config, dialector gorm.Dialector) (*gorm.DB, error) {
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.NewGormLogger(),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if err := gormDB.Use(otelgorm.NewPlugin(otelgorm.WithDBName(cfg.DBName))); err != nil {
		return nil, err
	}
	if err := gormDB.Use(gormprometheus.New(gormprometheus.Config{
		DBName:          cfg.DBName,
		RefreshInterval: 15,
	})); err != nil {
		return nil, err
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConn)
	sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConn)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.DBConnMaxIdleTime) * time.Second)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return sqlDB.PingContext(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return sqlDB.Close()
		},
	})

	return gormDB, nil
}
