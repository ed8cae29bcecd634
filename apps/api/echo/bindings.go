package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/arjuunns/Smart-hostel/core"
)

const (
	orderingParam = "ordering"
	dateLayout    = "2006-01-02"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads "?ordering=field,-other": a leading "-" sorts descending.
func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}
	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// queryTime parses an RFC 3339 timestamp or a plain date. An empty param yields the zero time.
func queryTime(ctx echo.Context, name string) (time.Time, error) {
	return parseTime(name, ctx.QueryParam(name))
}

// parseTime parses val as an RFC 3339 timestamp or a plain date; errors name the field.
func parseTime(field, val string) (time.Time, error) {
	val = core.CleanString(val)
	if val == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, val)
	if err != nil {
		return time.Time{}, core.NewFieldValidationError(field, "invalid date")
	}
	return t, nil
}

// isDate reports whether val is a plain date rather than a timestamp.
func isDate(val string) bool {
	return len(core.CleanString(val)) == len(dateLayout)
}

// queryBool returns nil when the param is missing or not a boolean.
func queryBool(ctx echo.Context, name string) *bool {
	b, err := strconv.ParseBool(ctx.QueryParam(name))
	if err != nil {
		return nil
	}
	return &b
}

// queryList splits a comma separated param, dropping blanks.
func queryList(ctx echo.Context, name string, upper bool) []string {
	val := ctx.QueryParam(name)
	if val == "" {
		return nil
	}
	var list []string
	for _, v := range strings.Split(val, ",") {
		if v = core.CleanString(v); v != "" {
			if upper {
				v = strings.ToUpper(v)
			}
			list = append(list, v)
		}
	}
	return list
}
