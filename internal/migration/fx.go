package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/smallbiznis/cirrus/internal/config"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// The embedded migrations are postgres DDL; tests run sqlite with
		// AutoMigrate instead.
		if cfg.DBType != "postgres" {
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
