package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"chartfeed/internal/logger"
)

// FetchRecord is one journalled upstream fetch, shown in the dashboard's
// diagnostics panel.
type FetchRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TraceID     string    `gorm:"size:36;index" json:"trace_id"`
	Instrument  string    `gorm:"size:32;index" json:"instrument"`
	Granularity string    `gorm:"size:8" json:"granularity"`
	Direction   string    `gorm:"size:16" json:"direction"`
	Count       int       `json:"count"`
	Before      int64     `json:"before,omitempty"`
	Bars        int       `json:"bars"`
	RateLimited bool      `json:"rate_limited"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (FetchRecord) TableName() string { return "fetch_journal" }

// Store persists fetch records in SQLite. A nil *Store is valid and records
// nothing, so journalling stays optional.
type Store struct {
	db *gorm.DB
}

func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("journal: path cannot be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&FetchRecord{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// RecordFetch appends one record. Journal failures are logged, never
// propagated: diagnostics must not break the data path.
func (s *Store) RecordFetch(ctx context.Context, rec FetchRecord) {
	if s == nil || s.db == nil {
		return
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		logger.Warnf("[journal] record fetch failed: %v", err)
	}
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]FetchRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	var out []FetchRecord
	err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
