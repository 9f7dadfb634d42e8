package tasks

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Dialect holds the SQL differences between the supported drivers.
type Dialect struct {
	Driver string
	// Numbered placeholders ($1, $2) instead of ?.
	Numbered bool
	// Operator for a case-insensitive LIKE.
	ILike string
}

var (
	Postgres = Dialect{Driver: "postgres", Numbered: true, ILike: "ILIKE"}
	// SQLite's LIKE is already case-insensitive for ASCII.
	SQLite = Dialect{Driver: "sqlite", Numbered: false, ILike: "LIKE"}
)

func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case Postgres.Driver:
		return Postgres, nil
	case SQLite.Driver:
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported driver %q", driver)
	}
}

// Placeholder returns the bind marker for the n-th parameter (1-based).
func (d Dialect) Placeholder(n int) string {
	if d.Numbered {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Rebind rewrites ? markers in query to the dialect's form.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(d.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const selectTasks = "SELECT id, title, description, completed FROM tasks"

// ListFilter holds the optional list criteria. A nil Completed means the
// filter was not given; any given value other than "true" (in any case)
// filters for incomplete tasks.
type ListFilter struct {
	Completed *string
	Search    string
}

// ListFilterFromQuery reads completed and search from query parameters.
func ListFilterFromQuery(q url.Values) ListFilter {
	var f ListFilter
	if _, ok := q["completed"]; ok {
		v := q.Get("completed")
		f.Completed = &v
	}
	f.Search = q.Get("search")
	return f
}

// BuildListQuery assembles the list query for f. Filter values only ever
// travel as bound parameters.
func BuildListQuery(d Dialect, f ListFilter) (string, []any) {
	var (
		conditions []string
		params     []any
	)
	next := func(v any) string {
		params = append(params, v)
		return d.Placeholder(len(params))
	}

	if f.Completed != nil {
		conditions = append(conditions, "completed = "+next(strings.EqualFold(*f.Completed, "true")))
	}

	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		conditions = append(conditions, fmt.Sprintf("(title %s %s OR description %s %s)",
			d.ILike, next(pattern), d.ILike, next(pattern)))
	}

	query := selectTasks
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id"

	return query, params
}
