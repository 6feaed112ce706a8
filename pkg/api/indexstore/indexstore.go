package indexstore

import (
	"context"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ethpandaops/resultoor/pkg/config"
)

// Store provides persistence for the indexed run data.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	UpsertRun(ctx context.Context, run *Run) error
	ListRuns(ctx context.Context, directory string) ([]Run, error)
	ListRunFileNames(ctx context.Context, directory string) ([]string, error)

	BulkUpsertCaseResults(ctx context.Context, results []*CaseResult) error
	DeleteCaseResultsForRun(
		ctx context.Context, directory, fileName string,
	) error
	ListCaseHistory(
		ctx context.Context, directory, caseName string,
	) ([]CaseResult, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.APIDatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new index Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.APIDatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "indexstore"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var dialector gorm.Dialector

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening index database: %w", err)
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(
		&Run{},
		&CaseResult{},
	); err != nil {
		return fmt.Errorf("running index migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).
		Info("Index database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// UpsertRun inserts or updates a run keyed by directory + file name.
func (s *store) UpsertRun(ctx context.Context, run *Run) error {
	result := s.db.WithContext(ctx).
		Where("directory = ? AND file_name = ?",
			run.Directory, run.FileName).
		Assign(run).
		FirstOrCreate(run)
	if result.Error != nil {
		return fmt.Errorf("upserting run: %w", result.Error)
	}

	return nil
}

// ListRuns returns all runs for a directory, most recent first.
func (s *store) ListRuns(
	ctx context.Context, directory string,
) ([]Run, error) {
	var runs []Run
	if err := s.db.WithContext(ctx).
		Where("directory = ?", directory).
		Order("start DESC").
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	return runs, nil
}

// ListRunFileNames returns just the indexed file names for a directory.
func (s *store) ListRunFileNames(
	ctx context.Context, directory string,
) ([]string, error) {
	var names []string
	if err := s.db.WithContext(ctx).
		Model(&Run{}).
		Where("directory = ?", directory).
		Pluck("file_name", &names).Error; err != nil {
		return nil, fmt.Errorf("listing run file names: %w", err)
	}

	return names, nil
}

// BulkUpsertCaseResults inserts multiple case results in a single
// transaction. Callers delete the run's existing rows first; this
// avoids per-row FirstOrCreate round-trips.
func (s *store) BulkUpsertCaseResults(
	ctx context.Context, results []*CaseResult,
) error {
	if len(results) == 0 {
		return nil
	}

	const batchSize = 100

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := 0; i < len(results); i += batchSize {
			end := i + batchSize
			if end > len(results) {
				end = len(results)
			}

			batch := results[i:end]

			if err := tx.CreateInBatches(batch, len(batch)).Error; err != nil {
				return fmt.Errorf("bulk inserting case results: %w", err)
			}
		}

		return nil
	})
}

// DeleteCaseResultsForRun removes all case results for one run.
func (s *store) DeleteCaseResultsForRun(
	ctx context.Context, directory, fileName string,
) error {
	if err := s.db.WithContext(ctx).
		Where("directory = ? AND file_name = ?", directory, fileName).
		Delete(&CaseResult{}).Error; err != nil {
		return fmt.Errorf("deleting case results for run: %w", err)
	}

	return nil
}

// ListCaseHistory returns all outcomes of one named test case within
// a directory, most recent first.
func (s *store) ListCaseHistory(
	ctx context.Context, directory, caseName string,
) ([]CaseResult, error) {
	var results []CaseResult
	if err := s.db.WithContext(ctx).
		Where("directory = ? AND name = ?", directory, caseName).
		Order("start DESC").
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("listing case history: %w", err)
	}

	return results, nil
}
