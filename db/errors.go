package db

import (
	"errors"
	"fmt"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	sqlite3 "github.com/mattn/go-sqlite3"
)

const (
	pgLockNotAvailable   = "55P03"
	mysqlLockWaitTimeout = 1205
)

// IsLockTimeout reports whether err is a database lock wait timeout. Context
// deadlines are not lock timeouts: the caller knows which deadline it set.
func IsLockTimeout(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgLockNotAvailable
	}

	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlLockWaitTimeout
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}

	return false
}

// LockTimeoutStatement returns the statement bounding row lock waits for the
// current transaction, or "" when the dialect has none.
func LockTimeoutStatement(d Dialect, timeout time.Duration) string {
	switch d {
	case Postgres:
		return fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", timeout.Milliseconds())
	case MySQL:
		seconds := int64(timeout.Round(time.Second) / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		return fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", seconds)
	}
	return ""
}
