package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/raykavin/rsdash/pkg/core"
	"github.com/samber/lo"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// refreshRow is the persisted form of core.RefreshRecord
type refreshRow struct {
	ID         uint   `gorm:"primaryKey"`
	Year       string `gorm:"index;size:16"`
	Generation uint64
	Status     string `gorm:"size:16"`
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time `gorm:"index"`
}

func (refreshRow) TableName() string {
	return "refreshes"
}

// Config holds the configuration for SQL database connections
type Config struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns a default configuration for SQL connections
func DefaultConfig() Config {
	return Config{
		MaxIdleConns:    2,
		MaxOpenConns:    4,
		ConnMaxLifetime: time.Hour,
	}
}

// History implements core.Recorder on a SQL database via GORM
type History struct {
	db *gorm.DB
}

// HistoryFilter narrows the records returned by History.Records
type HistoryFilter func(record core.RefreshRecord) bool

// WithYear keeps records for the given year
func WithYear(year string) HistoryFilter {
	return func(record core.RefreshRecord) bool {
		return record.Year == year
	}
}

// WithStatus keeps records with the given status
func WithStatus(status core.RefreshStatus) HistoryFilter {
	return func(record core.RefreshRecord) bool {
		return record.Status == status
	}
}

// NewHistoryFromSQLite opens the refresh history stored in a SQLite file,
// ":memory:" keeps it in memory
func NewHistoryFromSQLite(dbPath string, config Config) (*History, error) {
	return NewHistory(sqlite.Open(dbPath), config)
}

// NewHistory opens the refresh history using the given dialect
func NewHistory(dialect gorm.Dialector, config Config) (*History, error) {
	db, err := gorm.Open(dialect, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)

	if err = db.AutoMigrate(&refreshRow{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &History{db: db}, nil
}

// Record implements core.Recorder
func (h *History) Record(ctx context.Context, record core.RefreshRecord) error {
	row := refreshRow{
		Year:       record.Year,
		Generation: record.Generation,
		Status:     string(record.Status),
		Error:      record.Error,
		StartedAt:  record.StartedAt,
		FinishedAt: record.FinishedAt,
	}

	if result := h.db.WithContext(ctx).Create(&row); result.Error != nil {
		return fmt.Errorf("failed to record refresh: %w", result.Error)
	}
	return nil
}

// Records returns up to limit of the most recent records, newest first,
// matching every filter. A non positive limit returns all of them.
func (h *History) Records(ctx context.Context, limit int, filters ...HistoryFilter) ([]core.RefreshRecord, error) {
	var rows []refreshRow

	if result := h.db.WithContext(ctx).Order("id desc").Find(&rows); result.Error != nil {
		return nil, fmt.Errorf("failed to fetch refreshes: %w", result.Error)
	}

	records := lo.Map(rows, func(row refreshRow, _ int) core.RefreshRecord {
		return core.RefreshRecord{
			Year:       row.Year,
			Generation: row.Generation,
			Status:     core.RefreshStatus(row.Status),
			Error:      row.Error,
			StartedAt:  row.StartedAt,
			FinishedAt: row.FinishedAt,
		}
	})

	records = lo.Filter(records, func(record core.RefreshRecord, _ int) bool {
		for _, filter := range filters {
			if !filter(record) {
				return false
			}
		}
		return true
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	return records, nil
}

// Close releases the underlying connection pool
func (h *History) Close() error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
