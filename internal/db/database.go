package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yungbote/decision-timeline-backend/internal/logger"
	"github.com/yungbote/decision-timeline-backend/internal/types"
	"github.com/yungbote/decision-timeline-backend/internal/utils"
)

type DatabaseService struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewDatabaseService opens the relational store. DB_DRIVER selects
// postgres (production) or sqlite (local/dev); both schemas are
// identical apart from the cascade constraint, which sqlite gets from
// the gorm association config at migration time.
func NewDatabaseService(log *logger.Logger) (*DatabaseService, error) {
	serviceLog := log.With("service", "DatabaseService")

	driver := utils.GetEnv("DB_DRIVER", "sqlite", log)
	var gormDB *gorm.DB
	var err error
	switch driver {
	case "postgres":
		host := utils.GetEnv("POSTGRES_HOST", "localhost", log)
		port := utils.GetEnv("POSTGRES_PORT", "5432", log)
		user := utils.GetEnv("POSTGRES_USER", "postgres", log)
		password := utils.GetEnv("POSTGRES_PASSWORD", "", log)
		name := utils.GetEnv("POSTGRES_NAME", "decision_timeline", log)
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)
		serviceLog.Info("Connecting to Postgres...", "host", host, "db", name)
		gormDB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			DisableForeignKeyConstraintWhenMigrating: true,
		})
	case "sqlite":
		path := utils.GetEnv("SQLITE_PATH", "decisions.db", log)
		serviceLog.Info("Opening sqlite database...", "path", path)
		gormDB, err = gorm.Open(sqlite.Open(path), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q (want postgres or sqlite)", driver)
	}
	if err != nil {
		serviceLog.Error("Failed to open database", "driver", driver, "error", err)
		return nil, fmt.Errorf("open database (%s): %w", driver, err)
	}

	return &DatabaseService{db: gormDB, log: serviceLog}, nil
}

func (s *DatabaseService) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables...")
	err := s.db.AutoMigrate(
		&types.Decision{},
		&types.DecisionStep{},
	)
	if err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if s.db.Dialector.Name() == "postgres" {
		s.log.Info("Configuring foreign key relationships...")
		if err := s.db.Exec(`
			ALTER TABLE "decision_step"
			DROP CONSTRAINT IF EXISTS "fk_decision_step_decision_row_id"
		`).Error; err != nil {
			return fmt.Errorf("drop fk_decision_step_decision_row_id: %w", err)
		}
		if err := s.db.Exec(`
			ALTER TABLE "decision_step"
			ADD CONSTRAINT "fk_decision_step_decision_row_id"
			FOREIGN KEY ("decision_row_id")
			REFERENCES "decision"("id")
			ON DELETE CASCADE
		`).Error; err != nil {
			return fmt.Errorf("add fk_decision_step_decision_row_id: %w", err)
		}
	}
	return nil
}

func (s *DatabaseService) DB() *gorm.DB {
	return s.db
}
