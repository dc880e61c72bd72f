package database

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
)

var (
	driverMu      sync.RWMutex
	currentDriver string
)

// SetDriver records the active database driver. Open calls this; tests may
// call it directly to exercise driver-specific SQL.
func SetDriver(driver string) {
	driverMu.Lock()
	currentDriver = normalizeDriver(driver)
	driverMu.Unlock()
}

// Driver returns the active database driver. Falls back to the DB_DRIVER
// environment variable and finally to mysql.
func Driver() string {
	driverMu.RLock()
	d := currentDriver
	driverMu.RUnlock()
	if d != "" {
		return d
	}
	if env := os.Getenv("DB_DRIVER"); env != "" {
		return normalizeDriver(strings.ToLower(env))
	}
	return "mysql"
}

// IsMySQL returns true if using MySQL/MariaDB.
func IsMySQL() bool {
	return Driver() == "mysql"
}

// IsPostgreSQL returns true if using PostgreSQL.
func IsPostgreSQL() bool {
	return Driver() == "postgres"
}

// IsSQLite returns true if using SQLite.
func IsSQLite() bool {
	return Driver() == "sqlite3"
}

var dollarPlaceholder = regexp.MustCompile(`\$\d+`)

// ConvertPlaceholders converts SQL placeholders to the format required by
// the active database. Queries must be written with ? placeholders only;
// $N placeholders panic to keep every query portable.
//   - PostgreSQL: ? becomes $1, $2, ...
//   - MySQL and SQLite: ? passes through unchanged
func ConvertPlaceholders(query string) string {
	if dollarPlaceholder.MatchString(query) {
		panic(fmt.Sprintf("ConvertPlaceholders: $N placeholders are not allowed, use ?\nQuery: %s", query))
	}

	if !IsPostgreSQL() {
		return query
	}

	var result strings.Builder
	paramNum := 1
	for _, c := range query {
		if c == '?' {
			fmt.Fprintf(&result, "$%d", paramNum)
			paramNum++
		} else {
			result.WriteRune(c)
		}
	}
	return result.String()
}

// InsertIgnore rewrites a plain INSERT statement into the active driver's
// insert-or-ignore form. The conflictTarget names the unique index columns
// PostgreSQL needs for its ON CONFLICT clause; MySQL and SQLite ignore it.
// Callers detect a suppressed duplicate via RowsAffected() == 0.
func InsertIgnore(query, conflictTarget string) string {
	upper := strings.ToUpper(query)
	if !strings.HasPrefix(strings.TrimSpace(upper), "INSERT INTO") {
		panic("InsertIgnore: query must be an INSERT INTO statement")
	}

	switch {
	case IsMySQL():
		return strings.Replace(query, "INSERT INTO", "INSERT IGNORE INTO", 1)
	case IsSQLite():
		return strings.Replace(query, "INSERT INTO", "INSERT OR IGNORE INTO", 1)
	default:
		if conflictTarget != "" {
			return query + " ON CONFLICT " + conflictTarget + " DO NOTHING"
		}
		return query + " ON CONFLICT DO NOTHING"
	}
}
