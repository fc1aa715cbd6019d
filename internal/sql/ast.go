// Package sql translates SELECT statements into deferred engine queries.
//
// The dialect covers projections and grouped aggregation over one table:
//
//	SELECT k, CASE WHEN SUM(v) > 10 THEN MAX(v) ELSE MIN(v) END AS pick
//	FROM t GROUP BY k
//
// CASE expressions become conditional expressions, so every form of
// when/then/otherwise evaluation is reachable from a query string.
package sql

import (
	"strings"

	"github.com/paveg/whenthen/internal/expr"
)

// SelectStatement represents a SQL SELECT statement.
type SelectStatement struct {
	SelectList []SelectItem
	From       string
	GroupBy    []string
}

func (s *SelectStatement) String() string {
	items := make([]string, len(s.SelectList))
	for i, item := range s.SelectList {
		items[i] = item.String()
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(items, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(s.From)
	if len(s.GroupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(s.GroupBy, ", "))
	}
	return sb.String()
}

// SelectItem represents an item in the SELECT list.
type SelectItem struct {
	Expression expr.Expr
	Alias      string
	IsWildcard bool
}

func (s *SelectItem) String() string {
	if s.IsWildcard {
		return "*"
	}
	if s.Alias != "" {
		return s.Expression.String() + " AS " + s.Alias
	}
	return s.Expression.String()
}
