package dbx

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dmitrijs2005/depmsg/internal/common"
	"github.com/pressly/goose/v3"
)

// Dialect selects driver, placeholder style and upsert syntax.
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
	SQLite   Dialect = "sqlite"
)

// ParseDialect accepts the canonical names plus common aliases.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return "", fmt.Errorf("unknown database dialect %q: %w", s, common.ErrInvalidConfig)
}

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	switch d {
	case Postgres:
		return "pgx"
	case MySQL:
		return "mysql"
	default:
		return "sqlite"
	}
}

// Goose maps the dialect onto the migration tool's dialect.
func (d Dialect) Goose() goose.Dialect {
	switch d {
	case Postgres:
		return goose.DialectPostgres
	case MySQL:
		return goose.DialectMySQL
	default:
		return goose.DialectSQLite3
	}
}

var placeholderRe = regexp.MustCompile(`\$\d+`)

// Rebind rewrites $n placeholders into the dialect's form. Queries are
// written once in PostgreSQL style and must use each placeholder once, in
// order.
func (d Dialect) Rebind(query string) string {
	if d == Postgres {
		return query
	}
	return placeholderRe.ReplaceAllString(query, "?")
}

// Upsert returns the conflict clause that updates cols from the proposed row
// when key already exists.
func (d Dialect) Upsert(key string, cols ...string) string {
	sets := make([]string, len(cols))
	for i, c := range cols {
		if d == MySQL {
			sets[i] = fmt.Sprintf("%s = VALUES(%s)", c, c)
		} else {
			sets[i] = fmt.Sprintf("%s = excluded.%s", c, c)
		}
	}
	if d == MySQL {
		return "ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", key, strings.Join(sets, ", "))
}

// IgnoreConflict returns the clause that turns a unique-key conflict into a
// no-op. noopCol is any column of the table, needed by MySQL.
func (d Dialect) IgnoreConflict(noopCol string) string {
	if d == MySQL {
		return fmt.Sprintf("ON DUPLICATE KEY UPDATE %s = %s", noopCol, noopCol)
	}
	return "ON CONFLICT DO NOTHING"
}
