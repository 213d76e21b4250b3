package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/yungbote/lmpstore-backend/internal/pkg/logger"
	"github.com/yungbote/lmpstore-backend/internal/types"
	"github.com/yungbote/lmpstore-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	log.Info("Loading environment variables...")
	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "lmpstore", log)
	log.Debug("Environment variables loaded")

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	log.Info("Connecting to Postgres...")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		log.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("Failed to connect to Postgres: %w", err)
	}

	return &PostgresService{db: db, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := AutoMigrate(s.db); err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}
	s.log.Info("Configuring foreign key relationships for postgres tables...")
	if err := s.db.Exec(`
    ALTER TABLE "invocation"
    ADD CONSTRAINT "fk_invocation_unit_id"
    FOREIGN KEY ("unit_id")
    REFERENCES "program_unit"("id")
    ON DELETE RESTRICT
  `).Error; err != nil {
		return fmt.Errorf("Failed to add fk_invocation_unit_id: %w", err)
	}
	if err := s.db.Exec(`
    ALTER TABLE "invocation_result"
    ADD CONSTRAINT "fk_invocation_result_invocation_id"
    FOREIGN KEY ("invocation_id")
    REFERENCES "invocation"("id")
    ON DELETE CASCADE
  `).Error; err != nil {
		return fmt.Errorf("Failed to add fk_invocation_result_invocation_id: %w", err)
	}
	if err := s.db.Exec(`
    ALTER TABLE "invocation_consumes"
    ADD CONSTRAINT "fk_invocation_consumes_invocation_id"
    FOREIGN KEY ("invocation_id")
    REFERENCES "invocation"("id")
    ON DELETE CASCADE
  `).Error; err != nil {
		return fmt.Errorf("Failed to add fk_invocation_consumes_invocation_id: %w", err)
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}

// AutoMigrate creates the provenance tables. program_unit_uses carries no
// foreign keys: uses edges may reference units that were never written.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.ProgramUnit{},
		&types.UsesEdge{},
		&types.Invocation{},
		&types.InvocationResult{},
		&types.ConsumesEdge{},
	)
}
