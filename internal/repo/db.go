// Package repo persists accounts, connections, messages, consents and
// meetings through GORM on SQLite or MySQL.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/creerlio/connect-gate/internal/domain"
)

// Supported values for the DB_DRIVER setting.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Open connects to the configured backend, installs the OpenTelemetry GORM
// plugin and tunes the connection pool. For SQLite, path is used; for MySQL,
// dsn is used.
func Open(driver, path, dsn string) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite:
		db, err = OpenSQLite(path)
	case DriverMySQL:
		db, err = OpenMySQL(dsn)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenSQLite opens the database file at path, creating it if needed. Pragmas
// ride on the DSN so each pooled connection applies them.
func OpenSQLite(path string) (*gorm.DB, error) {
	// A missing directory otherwise surfaces as SQLITE_CANTOPEN.
	if dir := filepath.Dir(path); dir != "." && !strings.HasPrefix(path, "file:") {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(withPragmas(path)), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	tunePool(db, 10)
	return db, nil
}

// OpenMySQL opens a MySQL database through gorm's mysql driver. The DSN must
// include parseTime=true so DATETIME columns scan into time.Time.
func OpenMySQL(dsn string) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("mysql: empty DSN")
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	tunePool(db, 25)
	return db, nil
}

func tunePool(db *gorm.DB, maxOpen int) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
}

// AutoMigrate creates or updates every table of the canonical schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.TalentProfile{},
		&domain.BusinessProfile{},
		&domain.ConnectionRequest{},
		&domain.Conversation{},
		&domain.Message{},
		&domain.ConsentRequest{},
		&domain.ConsentEvent{},
		&domain.MeetingSession{},
		&domain.Idempotency{},
	)
}

// withPragmas appends the connection PRAGMAs to a SQLite path or URI.
func withPragmas(path string) string {
	const pragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	if strings.Contains(path, "_pragma=") {
		return path
	}
	if strings.Contains(path, "?") {
		return path + "&" + pragmas
	}
	return path + "?" + pragmas
}
