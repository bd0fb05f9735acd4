// Package db opens the directory database for one of the supported drivers
// and migrates its schema.
package db

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"git.skobk.in/skobkin/telegram-group-mention-bot/storage"
)

// Dialect names a supported database driver.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
)

var (
	ErrCreateDatabase  = errors.New("cannot create a database")
	ErrMigrationFailed = errors.New("failed to migrate")
	ErrUnknownDialect  = errors.New("unknown database driver")
)

// ParseDialect validates a driver name from configuration.
func ParseDialect(name string) (Dialect, error) {
	switch d := Dialect(name); d {
	case SQLite, Postgres, MySQL:
		return d, nil
	case "sqlite3":
		return SQLite, nil
	case "postgresql", "pgx":
		return Postgres, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDialect, name)
}

// SupportsRowLocks reports whether the dialect can lock a single row with
// SELECT ... FOR UPDATE.
func (d Dialect) SupportsRowLocks() bool {
	return d == Postgres || d == MySQL
}

const (
	defaultBusyTimeout = 5 * time.Second
	sqlitePoolSize     = 8
)

type Options struct {
	Dialect Dialect
	DSN     string
	// BusyTimeout bounds how long a SQLite writer waits for the database
	// write lock before failing with SQLITE_BUSY.
	BusyTimeout time.Duration
	Verbose     bool
}

// Open connects to the database and applies driver specific session settings.
func Open(opts Options) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch opts.Dialect {
	case SQLite:
		dialector = sqlite.Open(sqliteDSN(opts.DSN, opts.BusyTimeout))
	case Postgres:
		dialector = postgres.Open(opts.DSN)
	case MySQL:
		dialector = mysql.Open(opts.DSN)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, opts.Dialect)
	}

	logMode := logger.Silent
	if opts.Verbose {
		logMode = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logMode),
	})
	if err != nil {
		slog.Error("db: Cannot open GORM database", "error", err, "driver", opts.Dialect)
		return nil, fmt.Errorf("%w: %w", ErrCreateDatabase, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateDatabase, err)
	}

	if opts.Dialect == SQLite {
		// Connection settings travel in the DSN so every pooled connection gets
		// them. WAL lets readers run beside the single writer, and immediate
		// transactions queue writers on the busy timeout.
		if isMemoryDSN(opts.DSN) {
			sqlDB.SetMaxOpenConns(1)
		} else {
			sqlDB.SetMaxOpenConns(sqlitePoolSize)
			sqlDB.SetMaxIdleConns(sqlitePoolSize)
		}
	} else {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	slog.Debug("db: Database opened", "driver", opts.Dialect)

	return db, nil
}

// sqliteDSN appends the go-sqlite3 connection parameters the directory relies
// on unless the DSN already sets them.
func sqliteDSN(dsn string, busyTimeout time.Duration) string {
	if busyTimeout <= 0 {
		busyTimeout = defaultBusyTimeout
	}

	params := []struct{ name, value string }{
		{"_journal_mode", "WAL"},
		{"_foreign_keys", "on"},
		{"_busy_timeout", fmt.Sprint(busyTimeout.Milliseconds())},
		{"_txlock", "immediate"},
	}

	var query []string
	for _, p := range params {
		if !strings.Contains(dsn, p.name+"=") {
			query = append(query, p.name+"="+p.value)
		}
	}
	if len(query) == 0 {
		return dsn
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(query, "&")
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// Migrate creates or updates the directory tables.
func Migrate(db *gorm.DB) error {
	slog.Info("db: Going to start database migrations")

	for _, model := range storage.Models() {
		if err := db.AutoMigrate(model); err != nil {
			slog.Error("db: Migration failed", "model", fmt.Sprintf("%T", model), "error", err)
			return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
		}
	}

	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
