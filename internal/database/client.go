// Package database archives extraction runs in PostgreSQL.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chrissnell/fragsize/internal/log"
	"go.uber.org/zap"
)

// ErrRunNotFound is returned by GetRun for an unknown run id
var ErrRunNotFound = errors.New("run not found")

// Client holds the connection to the archive database
type Client struct {
	connectionString string
	DB               *gorm.DB
	logger           *zap.SugaredLogger
}

// NewClient creates a client for the given PostgreSQL connection string
func NewClient(connectionString string, logger *zap.SugaredLogger) *Client {
	if logger == nil {
		logger = log.GetSugaredLogger()
	}
	return &Client{
		connectionString: connectionString,
		logger:           logger,
	}
}

// Connect opens the database and migrates the archive tables
func (c *Client) Connect() error {
	db, err := CreateConnection(c.connectionString)
	if err != nil {
		return err
	}
	c.DB = db

	if err := c.DB.AutoMigrate(&Run{}, &RunCalibration{}, &RunPeak{}); err != nil {
		return fmt.Errorf("failed to migrate archive tables: %w", err)
	}
	c.logger.Info("run archive connected")
	return nil
}

// ArchiveRun stores a run with its calibrations and peaks in one transaction
func (c *Client) ArchiveRun(ctx context.Context, run *Run) error {
	err := c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(run).Error
	})
	if err != nil {
		return fmt.Errorf("failed to archive run %s: %w", run.ID, err)
	}
	c.logger.Infof("archived run %s: %d peaks from %d samples", run.ID, len(run.Peaks), len(run.Calibrations))
	return nil
}

// ListRuns returns the most recent runs without their peaks
func (c *Client) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	q := c.DB.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("error querying archived runs: %w", err)
	}
	return runs, nil
}

// GetRun returns a run with its calibrations and peaks
func (c *Client) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	err := c.DB.WithContext(ctx).
		Preload("Calibrations").
		Preload("Peaks", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("error querying run %s: %w", id, err)
	}
	return &run, nil
}

// Close closes the underlying connection pool
func (c *Client) Close() error {
	if c.DB == nil {
		return nil
	}
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateConnection opens a PostgreSQL connection with GORM logging routed through zap
func CreateConnection(connectionString string) (*gorm.DB, error) {
	dbLogger := logger.New(
		zap.NewStdLog(log.GetZapLogger()),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	log.Info("connecting to run archive...")
	db, err := gorm.Open(postgres.Open(connectionString), &gorm.Config{Logger: dbLogger})
	if err != nil {
		log.Warn("warning: unable to connect to the run archive:", err)
		return nil, err
	}
	return db, nil
}
