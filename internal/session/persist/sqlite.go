package persist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hnrobert/lumauth/internal/session"
)

type sessionRow struct {
	ID       string    `gorm:"primaryKey;size:64"`
	Username string    `gorm:"index;not null"`
	Created  time.Time `gorm:"not null"`
	LastSeen time.Time `gorm:"not null"`
}

func (sessionRow) TableName() string { return "authenticated_sessions" }

// SQLite keeps the sessions in the authenticated_sessions table.
type SQLite struct {
	db *gorm.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := db.AutoMigrate(&sessionRow{}); err != nil {
		return nil, fmt.Errorf("migrate sessions table: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Load(ctx context.Context) ([]session.Session, error) {
	var rows []sessionRow
	if err := s.db.WithContext(ctx).Order("created").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]session.Session, 0, len(rows))
	for _, r := range rows {
		out = append(out, session.Session{
			ID:       r.ID,
			User:     r.Username,
			Created:  r.Created.UTC(),
			LastSeen: r.LastSeen.UTC(),
		})
	}
	return out, nil
}

func (s *SQLite) Save(ctx context.Context, sessions []session.Session) error {
	rows := make([]sessionRow, 0, len(sessions))
	for _, ss := range sessions {
		rows = append(rows, sessionRow{ID: ss.ID, Username: ss.User, Created: ss.Created, LastSeen: ss.LastSeen})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&sessionRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
