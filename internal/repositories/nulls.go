// Package repositories holds small helpers shared by the per-entity SQL
// repositories in its subpackages.
package repositories

import "database/sql"

// NullString stores empty optional strings as NULL.
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
