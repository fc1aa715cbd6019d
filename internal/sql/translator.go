package sql

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/paveg/whenthen/internal/dataframe"
	"github.com/paveg/whenthen/internal/engine"
	"github.com/paveg/whenthen/internal/errors"
	"github.com/paveg/whenthen/internal/expr"
	"github.com/paveg/whenthen/internal/validation"
)

// Translator binds SELECT statements to registered tables and turns them
// into deferred engine queries.
type Translator struct {
	engine     *engine.Engine
	partitions int

	mu     sync.RWMutex
	tables map[string]*dataframe.DataFrame
}

// NewTranslator creates a translator running on e. A positive partition
// count routes grouped queries through partitioned aggregation whenever
// every aggregate supports it.
func NewTranslator(e *engine.Engine, partitions int) *Translator {
	return &Translator{engine: e, partitions: partitions, tables: make(map[string]*dataframe.DataFrame)}
}

// RegisterTable makes df available under name. The caller keeps ownership.
func (t *Translator) RegisterTable(name string, df *dataframe.DataFrame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tables[name] = df
}

// Tables returns the registered table names, sorted
func (t *Translator) Tables() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.tables))
	for name := range t.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t *Translator) table(name string) (*dataframe.DataFrame, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	df, ok := t.tables[name]
	if !ok {
		return nil, errors.NewInvalidInputError("sql", fmt.Sprintf("table %s is not registered", name))
	}
	return df, nil
}

// Translate builds the deferred query of stmt. Without GROUP BY every
// computed item is added row-wise and the select list is projected in
// order. With GROUP BY, bare key columns select the key values and every
// other item is aggregated per group.
func (t *Translator) Translate(stmt *SelectStatement) (*engine.LazyFrame, error) {
	df, err := t.table(stmt.From)
	if err != nil {
		return nil, err
	}
	if len(stmt.GroupBy) > 0 {
		return t.translateGroupBy(stmt, df)
	}
	return t.translateProjection(stmt, df)
}

func (t *Translator) translateProjection(stmt *SelectStatement, df *dataframe.DataFrame) (*engine.LazyFrame, error) {
	var computed []expr.Expr
	var outputs []string

	for _, item := range stmt.SelectList {
		if item.IsWildcard {
			outputs = append(outputs, df.Columns()...)
			continue
		}
		name, err := t.outputName(item, df)
		if err != nil {
			return nil, err
		}
		if col, ok := item.Expression.(*expr.ColumnExpr); ok && col.Name() == name {
			if err := validation.ValidateColumns(df, "sql", name); err != nil {
				return nil, err
			}
		} else {
			computed = append(computed, expr.Alias(item.Expression, name))
		}
		outputs = append(outputs, name)
	}
	if err := validation.ValidateUnique("sql", outputs, "add an alias"); err != nil {
		return nil, err
	}

	lf := t.engine.Lazy(df)
	if len(computed) > 0 {
		lf = lf.WithColumns(computed...)
	}
	return lf.Select(outputs...), nil
}

func (t *Translator) translateGroupBy(stmt *SelectStatement, df *dataframe.DataFrame) (*engine.LazyFrame, error) {
	if err := validation.ValidateKeys(df, "sql", stmt.GroupBy...); err != nil {
		return nil, err
	}

	var aggs []expr.Expr
	var outputs []string
	for _, item := range stmt.SelectList {
		if item.IsWildcard {
			return nil, errors.NewInvalidInputError("sql", "* cannot be selected with GROUP BY")
		}
		name, err := t.outputName(item, df)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, name)

		x := item.Expression
		if col, ok := x.(*expr.ColumnExpr); ok && slices.Contains(stmt.GroupBy, col.Name()) {
			if col.Name() == name {
				continue
			}
			x = expr.First(col)
		}
		aggs = append(aggs, expr.Alias(x, name))
	}
	if err := validation.ValidateUnique("sql", outputs, "add an alias"); err != nil {
		return nil, err
	}

	gb := t.engine.Lazy(df).GroupBy(stmt.GroupBy...)
	var lf *engine.LazyFrame
	if t.partitions > 0 && t.supportsPartitioned(aggs) {
		lf = gb.AggPartitioned(t.partitions, aggs...)
	} else {
		lf = gb.Agg(aggs...)
	}
	return lf.Select(outputs...), nil
}

// outputName is the alias of item, or the name its expression produces
func (t *Translator) outputName(item SelectItem, df *dataframe.DataFrame) (string, error) {
	if item.Alias != "" {
		return item.Alias, nil
	}
	node, err := t.engine.Plan(item.Expression)
	if err != nil {
		return "", err
	}
	field, err := node.ToField(df.Schema())
	if err != nil {
		return "", err
	}
	return field.Name, nil
}

func (t *Translator) supportsPartitioned(aggs []expr.Expr) bool {
	for _, x := range aggs {
		node, err := t.engine.Plan(x)
		if err != nil || !expr.SupportsPartitioned(node) {
			return false
		}
	}
	return true
}
