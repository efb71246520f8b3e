package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	slogGorm "github.com/orandin/slog-gorm"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SetupDatabase opens a gorm handle from a DATABASE_URL-style string.
// Supports "sqlite://<path>" (including ":memory:") and
// "postgres://..." / "postgresql://..." URLs.
func SetupDatabase(dburl string, maxConnections int) (*gorm.DB, error) {
	var dial gorm.Dialector
	openConns := maxConnections
	isSqlite := false

	switch {
	case strings.HasPrefix(dburl, "sqlite://"):
		sqliteSuffix := dburl[len("sqlite://"):]
		// ensure the parent directory exists when a db file is being initialized
		if !strings.Contains(sqliteSuffix, ":memory:") {
			os.MkdirAll(filepath.Dir(sqliteSuffix), os.ModePerm)
		}
		dial = sqlite.Open(sqliteSuffix)
		openConns = 1
		isSqlite = true
	case strings.HasPrefix(dburl, "postgresql://"), strings.HasPrefix(dburl, "postgres://"):
		// can pass entire URL, with prefix, to gorm driver
		dial = postgres.Open(dburl)
	default:
		return nil, fmt.Errorf("unsupported or unrecognized DATABASE_URL value")
	}

	db, err := gorm.Open(dial, &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 slogGorm.New(),
	})
	if err != nil {
		return nil, err
	}

	sqldb, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxIdleConns(80)
	sqldb.SetMaxOpenConns(openConns)
	sqldb.SetConnMaxIdleTime(time.Hour)

	if isSqlite {
		if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
			return nil, err
		}
		if err := db.Exec("PRAGMA synchronous=normal;").Error; err != nil {
			return nil, err
		}
	}

	return db, nil
}

// MigrateDatabase creates or updates all tables used by this service.
func MigrateDatabase(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&UserRole{},
		&Article{},
		&Comment{},
		&Reaction{},
		&FeedEvent{},
		&BlockedEmailDomain{},
		&Note{},
	)
}
