package expr

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/paveg/whenthen/internal/dataframe"
	"github.com/paveg/whenthen/internal/groups"
	"github.com/paveg/whenthen/internal/series"
)

// ExecutionState is threaded through every evaluation call. Expression nodes
// pass it along unchanged and never read it.
type ExecutionState struct {
	// Flags is reserved for the caller
	Flags uint32
}

// NewExecutionState creates an empty execution state
func NewExecutionState() *ExecutionState {
	return &ExecutionState{}
}

// PhysicalExpr is an executable expression node
type PhysicalExpr interface {
	// Evaluate computes the expression row-wise over df
	Evaluate(df *dataframe.DataFrame, state *ExecutionState) (*series.Column, error)
	// EvaluateOnGroups computes the expression for every group of p
	EvaluateOnGroups(df *dataframe.DataFrame, p *groups.Partition, state *ExecutionState) (*AggregationContext, error)
	// ToField returns the output field for an input schema
	ToField(schema *arrow.Schema) (arrow.Field, error)
	// AsExpression returns the logical expression this node was planned from
	AsExpression() Expr
	// AsPartitionedAggregator returns nil when the node cannot run per partition
	AsPartitionedAggregator() PartitionedAggregation
}

// PartitionedAggregation evaluates an expression per partition of the input
// and combines the partial results afterwards.
type PartitionedAggregation interface {
	// EvaluatePartitioned computes a partial result, one row per group of p
	EvaluatePartitioned(df *dataframe.DataFrame, p *groups.Partition, state *ExecutionState) (*series.Column, error)
	// Finalize combines partial results; p groups the rows of partial
	Finalize(partial *series.Column, p *groups.Partition, state *ExecutionState) (*series.Column, error)
}

// releaseColumns releases the columns a failed fork-join did produce
func releaseColumns(cols ...*series.Column) {
	for _, col := range cols {
		if col != nil {
			col.Release()
		}
	}
}
