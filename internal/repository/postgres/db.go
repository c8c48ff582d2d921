package postgres

import (
	"strings"

	"github.com/soukly/promotion/pkg/database"
)

// DBTX is the query surface the repositories need. Both *pgxpool.Pool and
// pgxmock satisfy it.
type DBTX = database.DBTX

// isUniqueViolation reports whether the error is a PostgreSQL unique
// constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
