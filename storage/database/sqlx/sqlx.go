// Package sqlxrepos implements the repositories on PostgreSQL with sqlx.
package sqlxrepos

import (
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/arjuunns/Smart-hostel/core"
)

// conditions accumulates the WHERE clause of a query; placeholders are "?" and rebound by the caller.
type conditions struct {
	clauses []string
	args    []interface{}
}

func (c *conditions) add(clause string, args ...interface{}) {
	c.clauses = append(c.clauses, clause)
	c.args = append(c.args, args...)
}

func (c conditions) String() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE (" + strings.Join(c.clauses, ") AND (") + ")"
}

// orderBy renders the ORDER BY clause of the allowed orderings, falling back on dflt.
func orderBy(ordering []core.DBOrdering, columns map[string]string, dflt string) string {
	allowed := core.AllowedOrderings(ordering, columns)
	if len(allowed) == 0 {
		return " ORDER BY " + dflt
	}
	list := make([]string, 0, len(allowed))
	for _, ord := range allowed {
		list = append(list, ord.String())
	}
	return " ORDER BY " + strings.Join(list, ", ")
}

// trapNoRowsErr maps "no rows" to notFound.
func trapNoRowsErr(err, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}
