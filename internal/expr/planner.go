package expr

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/paveg/whenthen/internal/errors"
	"github.com/paveg/whenthen/internal/parallel"
)

// Planner turns logical expressions into physical nodes that share one
// allocator and one worker pool
type Planner struct {
	mem  memory.Allocator
	pool *parallel.Pool
}

// NewPlanner creates a planner. A nil pool evaluates children inline.
func NewPlanner(mem memory.Allocator, pool *parallel.Pool) *Planner {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	return &Planner{mem: mem, pool: pool}
}

// Plan builds the physical tree for e
func (p *Planner) Plan(e Expr) (PhysicalExpr, error) {
	switch e := e.(type) {
	case *ColumnExpr:
		return NewColumnNode(e, p.mem), nil

	case *LiteralExpr:
		if _, err := literalType(e.Value()); err != nil {
			return nil, err
		}
		return NewLiteralNode(e, p.mem), nil

	case *AliasExpr:
		child, err := p.Plan(e.Expr())
		if err != nil {
			return nil, err
		}
		return NewAliasNode(child, e), nil

	case *BinaryExpr:
		left, err := p.Plan(e.Left())
		if err != nil {
			return nil, err
		}
		right, err := p.Plan(e.Right())
		if err != nil {
			return nil, err
		}
		return NewBinaryNode(left, e.Op(), right, e, p.mem, p.pool), nil

	case *UnaryExpr:
		child, err := p.Plan(e.Operand())
		if err != nil {
			return nil, err
		}
		return NewUnaryNode(child, e.Op(), e, p.mem), nil

	case *AggregationExpr:
		child, err := p.Plan(e.Column())
		if err != nil {
			return nil, err
		}
		return NewAggNode(child, e.AggType(), e, p.mem), nil

	case *ConditionalExpr:
		predicate, err := p.Plan(e.Predicate())
		if err != nil {
			return nil, err
		}
		truthy, err := p.Plan(e.Truthy())
		if err != nil {
			return nil, err
		}
		falsy, err := p.Plan(e.Falsy())
		if err != nil {
			return nil, err
		}
		return NewTernaryExpr(predicate, truthy, falsy, e, p.mem, p.pool), nil

	case nil:
		return nil, errors.NewInvalidInputError("plan", "nil expression")

	default:
		return nil, errors.NewInvalidInputError("plan", fmt.Sprintf("unsupported expression %T", e))
	}
}
