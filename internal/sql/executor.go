package sql

import (
	"context"
	"fmt"

	"github.com/paveg/whenthen/internal/dataframe"
	"github.com/paveg/whenthen/internal/engine"
	"github.com/paveg/whenthen/internal/logutil"
	"go.uber.org/zap"
)

// Executor executes SQL queries against registered DataFrames.
type Executor struct {
	translator *Translator
}

// NewExecutor creates a new SQL executor. A nil engine uses the global
// configuration; a positive partition count enables partitioned grouping.
func NewExecutor(e *engine.Engine, partitions int) *Executor {
	if e == nil {
		e = engine.New()
	}
	return &Executor{translator: NewTranslator(e, partitions)}
}

// RegisterTable registers a DataFrame with a table name.
func (e *Executor) RegisterTable(name string, df *dataframe.DataFrame) {
	e.translator.RegisterTable(name, df)
}

// Tables returns the registered table names.
func (e *Executor) Tables() []string {
	return e.translator.Tables()
}

// Prepare parses and translates query without running it.
func (e *Executor) Prepare(query string) (*engine.LazyFrame, error) {
	stmt, err := ParseSQL(query)
	if err != nil {
		return nil, err
	}
	lf, err := e.translator.Translate(stmt)
	if err != nil {
		return nil, fmt.Errorf("translating %s: %w", stmt, err)
	}
	return lf, nil
}

// Execute executes a SQL query and returns the result DataFrame. The caller
// owns the result.
func (e *Executor) Execute(ctx context.Context, query string) (*dataframe.DataFrame, error) {
	lf, err := e.Prepare(query)
	if err != nil {
		return nil, err
	}
	logutil.Debug("executing query", zap.String("query", query), zap.Stringer("plan", lf))

	result, err := lf.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("execution error: %w", err)
	}
	return result, nil
}

// Explain returns the deferred operations query would run.
func (e *Executor) Explain(query string) (string, error) {
	lf, err := e.Prepare(query)
	if err != nil {
		return "", err
	}
	return lf.String(), nil
}
