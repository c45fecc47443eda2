package migration

import (
	auditdomain "github.com/smallbiznis/crosslist/internal/audit/domain"
	"github.com/smallbiznis/crosslist/internal/config"
	delistingdomain "github.com/smallbiznis/crosslist/internal/delisting/domain"
	listingdomain "github.com/smallbiznis/crosslist/internal/listing/domain"
	marketplacedomain "github.com/smallbiznis/crosslist/internal/marketplace/domain"
	saleeventdomain "github.com/smallbiznis/crosslist/internal/saleevent/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// Versioned SQL migrations target postgres. Other dialects are
		// dev-only and get the schema from gorm directly.
		if cfg.DBType != "postgres" {
			return conn.AutoMigrate(
				&marketplacedomain.Connection{},
				&listingdomain.Listing{},
				&saleeventdomain.SaleEvent{},
				&delistingdomain.DelistingJob{},
				&auditdomain.AuditLog{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
