// Package expr provides expression trees and their evaluation.
//
// An Expr is a logical description of a computation. The engine turns it
// into a tree of PhysicalExpr nodes which evaluate against a table, either
// row-wise or per group.
package expr

import (
	"fmt"
)

// ExprType represents the type of expression
type ExprType int

const (
	ExprColumn ExprType = iota
	ExprLiteral
	ExprBinary
	ExprUnary
	ExprAggregation
	ExprConditional
	ExprAlias
)

// Expr represents an expression that can be evaluated lazily
type Expr interface {
	Type() ExprType
	String() string
}

// ColumnExpr represents a column reference
type ColumnExpr struct {
	name string
}

func (c *ColumnExpr) Type() ExprType {
	return ExprColumn
}

func (c *ColumnExpr) String() string {
	return fmt.Sprintf("col(%s)", c.name)
}

func (c *ColumnExpr) Name() string {
	return c.name
}

// LiteralExpr represents a literal value. A nil value is the typed-less null.
type LiteralExpr struct {
	value interface{}
}

func (l *LiteralExpr) Type() ExprType {
	return ExprLiteral
}

func (l *LiteralExpr) String() string {
	if l.value == nil {
		return "lit(null)"
	}
	return fmt.Sprintf("lit(%v)", l.value)
}

func (l *LiteralExpr) Value() interface{} {
	return l.value
}

// BinaryOp represents binary operations
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
)

func (op BinaryOp) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpEq:
		return "=="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpAnd:
		return "&&"
	case OpOr:
		return "||"
	default:
		return "?"
	}
}

// IsComparison reports whether op yields a boolean from two values
func (op BinaryOp) IsComparison() bool {
	return op >= OpEq && op <= OpGe
}

// IsLogical reports whether op combines two booleans
func (op BinaryOp) IsLogical() bool {
	return op == OpAnd || op == OpOr
}

// BinaryExpr represents a binary operation
type BinaryExpr struct {
	left  Expr
	op    BinaryOp
	right Expr
}

func (b *BinaryExpr) Type() ExprType {
	return ExprBinary
}

func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.left.String(), b.op, b.right.String())
}

func (b *BinaryExpr) Left() Expr {
	return b.left
}

func (b *BinaryExpr) Op() BinaryOp {
	return b.op
}

func (b *BinaryExpr) Right() Expr {
	return b.right
}

// UnaryOp represents unary operations
type UnaryOp int

const (
	UnaryNot UnaryOp = iota
	UnaryIsNull
	UnaryIsNotNull
)

// UnaryExpr represents a unary operation
type UnaryExpr struct {
	op      UnaryOp
	operand Expr
}

func (u *UnaryExpr) Type() ExprType {
	return ExprUnary
}

func (u *UnaryExpr) String() string {
	switch u.op {
	case UnaryNot:
		return fmt.Sprintf("!(%s)", u.operand.String())
	case UnaryIsNull:
		return fmt.Sprintf("is_null(%s)", u.operand.String())
	case UnaryIsNotNull:
		return fmt.Sprintf("is_not_null(%s)", u.operand.String())
	default:
		return fmt.Sprintf("unknown(%s)", u.operand.String())
	}
}

func (u *UnaryExpr) Op() UnaryOp {
	return u.op
}

func (u *UnaryExpr) Operand() Expr {
	return u.operand
}

// AggregationType represents the type of aggregation function
type AggregationType int

const (
	AggSum AggregationType = iota
	AggCount
	AggMean
	AggMin
	AggMax
	AggNullCount
	AggFirst
	AggLast
	AggList
)

// Aggregation function name constants
const (
	AggNameSum       = "sum"
	AggNameCount     = "count"
	AggNameMean      = "mean"
	AggNameMin       = "min"
	AggNameMax       = "max"
	AggNameNullCount = "null_count"
	AggNameFirst     = "first"
	AggNameLast      = "last"
	AggNameList      = "list"
)

func (t AggregationType) String() string {
	switch t {
	case AggSum:
		return AggNameSum
	case AggCount:
		return AggNameCount
	case AggMean:
		return AggNameMean
	case AggMin:
		return AggNameMin
	case AggMax:
		return AggNameMax
	case AggNullCount:
		return AggNameNullCount
	case AggFirst:
		return AggNameFirst
	case AggLast:
		return AggNameLast
	case AggList:
		return AggNameList
	default:
		return "unknown"
	}
}

// AggregationExpr represents an aggregation function over an expression
type AggregationExpr struct {
	column  Expr
	aggType AggregationType
}

func (a *AggregationExpr) Type() ExprType {
	return ExprAggregation
}

func (a *AggregationExpr) String() string {
	return fmt.Sprintf("%s(%s)", a.aggType, a.column.String())
}

func (a *AggregationExpr) Column() Expr {
	return a.column
}

func (a *AggregationExpr) AggType() AggregationType {
	return a.aggType
}

// AliasExpr renames the output of an expression
type AliasExpr struct {
	expr Expr
	name string
}

func (a *AliasExpr) Type() ExprType {
	return ExprAlias
}

func (a *AliasExpr) String() string {
	return fmt.Sprintf("%s.alias(%s)", a.expr.String(), a.name)
}

func (a *AliasExpr) Expr() Expr {
	return a.expr
}

func (a *AliasExpr) Name() string {
	return a.name
}

// ConditionalExpr selects truthy where predicate holds and falsy elsewhere.
// Chained conditions are nested conditionals in the falsy position.
type ConditionalExpr struct {
	predicate Expr
	truthy    Expr
	falsy     Expr
}

func (c *ConditionalExpr) Type() ExprType {
	return ExprConditional
}

func (c *ConditionalExpr) String() string {
	return fmt.Sprintf("when(%s).then(%s).otherwise(%s)", c.predicate.String(), c.truthy.String(), c.falsy.String())
}

func (c *ConditionalExpr) Predicate() Expr {
	return c.predicate
}

func (c *ConditionalExpr) Truthy() Expr {
	return c.truthy
}

func (c *ConditionalExpr) Falsy() Expr {
	return c.falsy
}

// Col creates a column reference
func Col(name string) *ColumnExpr {
	return &ColumnExpr{name: name}
}

// Lit creates a literal; Lit(nil) is the null literal
func Lit(value interface{}) *LiteralExpr {
	return &LiteralExpr{value: value}
}

// Binary creates a binary expression
func Binary(left Expr, op BinaryOp, right Expr) *BinaryExpr {
	return &BinaryExpr{left: left, op: op, right: right}
}

// Eq creates an equality comparison
func Eq(left, right Expr) *BinaryExpr { return Binary(left, OpEq, right) }

// Ne creates an inequality comparison
func Ne(left, right Expr) *BinaryExpr { return Binary(left, OpNe, right) }

// Lt creates a less-than comparison
func Lt(left, right Expr) *BinaryExpr { return Binary(left, OpLt, right) }

// Le creates a less-than-or-equal comparison
func Le(left, right Expr) *BinaryExpr { return Binary(left, OpLe, right) }

// Gt creates a greater-than comparison
func Gt(left, right Expr) *BinaryExpr { return Binary(left, OpGt, right) }

// Ge creates a greater-than-or-equal comparison
func Ge(left, right Expr) *BinaryExpr { return Binary(left, OpGe, right) }

// And creates a logical conjunction
func And(left, right Expr) *BinaryExpr { return Binary(left, OpAnd, right) }

// Or creates a logical disjunction
func Or(left, right Expr) *BinaryExpr { return Binary(left, OpOr, right) }

// Add creates an addition
func Add(left, right Expr) *BinaryExpr { return Binary(left, OpAdd, right) }

// Sub creates a subtraction
func Sub(left, right Expr) *BinaryExpr { return Binary(left, OpSub, right) }

// Mul creates a multiplication
func Mul(left, right Expr) *BinaryExpr { return Binary(left, OpMul, right) }

// Div creates a division
func Div(left, right Expr) *BinaryExpr { return Binary(left, OpDiv, right) }

// Not negates a boolean expression
func Not(e Expr) *UnaryExpr {
	return &UnaryExpr{op: UnaryNot, operand: e}
}

// IsNull tests each value for null
func IsNull(e Expr) *UnaryExpr {
	return &UnaryExpr{op: UnaryIsNull, operand: e}
}

// IsNotNull tests each value for non-null
func IsNotNull(e Expr) *UnaryExpr {
	return &UnaryExpr{op: UnaryIsNotNull, operand: e}
}

// Alias renames the output of e
func Alias(e Expr, name string) *AliasExpr {
	return &AliasExpr{expr: e, name: name}
}

// Aggregation constructor functions

// Agg creates an aggregation of the given type
func Agg(aggType AggregationType, column Expr) *AggregationExpr {
	return &AggregationExpr{column: column, aggType: aggType}
}

// Sum creates a sum aggregation expression
func Sum(column Expr) *AggregationExpr { return Agg(AggSum, column) }

// Count creates a count aggregation expression
func Count(column Expr) *AggregationExpr { return Agg(AggCount, column) }

// Mean creates a mean aggregation expression
func Mean(column Expr) *AggregationExpr { return Agg(AggMean, column) }

// Min creates a min aggregation expression
func Min(column Expr) *AggregationExpr { return Agg(AggMin, column) }

// Max creates a max aggregation expression
func Max(column Expr) *AggregationExpr { return Agg(AggMax, column) }

// NullCount creates a null count aggregation expression
func NullCount(column Expr) *AggregationExpr { return Agg(AggNullCount, column) }

// First creates a first-value aggregation expression
func First(column Expr) *AggregationExpr { return Agg(AggFirst, column) }

// Last creates a last-value aggregation expression
func Last(column Expr) *AggregationExpr { return Agg(AggLast, column) }

// List creates an aggregation collecting the values of each group
func List(column Expr) *AggregationExpr { return Agg(AggList, column) }

// Column expression methods

func (c *ColumnExpr) Eq(other Expr) *BinaryExpr { return Eq(c, other) }
func (c *ColumnExpr) Ne(other Expr) *BinaryExpr { return Ne(c, other) }
func (c *ColumnExpr) Lt(other Expr) *BinaryExpr { return Lt(c, other) }
func (c *ColumnExpr) Le(other Expr) *BinaryExpr { return Le(c, other) }
func (c *ColumnExpr) Gt(other Expr) *BinaryExpr { return Gt(c, other) }
func (c *ColumnExpr) Ge(other Expr) *BinaryExpr { return Ge(c, other) }

func (c *ColumnExpr) Sum() *AggregationExpr       { return Sum(c) }
func (c *ColumnExpr) Count() *AggregationExpr     { return Count(c) }
func (c *ColumnExpr) Mean() *AggregationExpr      { return Mean(c) }
func (c *ColumnExpr) Min() *AggregationExpr       { return Min(c) }
func (c *ColumnExpr) Max() *AggregationExpr       { return Max(c) }
func (c *ColumnExpr) NullCount() *AggregationExpr { return NullCount(c) }

func (c *ColumnExpr) IsNull() *UnaryExpr    { return IsNull(c) }
func (c *ColumnExpr) IsNotNull() *UnaryExpr { return IsNotNull(c) }

// Aggregation expression methods

func (a *AggregationExpr) Eq(other Expr) *BinaryExpr { return Eq(a, other) }
func (a *AggregationExpr) Gt(other Expr) *BinaryExpr { return Gt(a, other) }
func (a *AggregationExpr) Lt(other Expr) *BinaryExpr { return Lt(a, other) }

// As renames the aggregation result
func (a *AggregationExpr) As(name string) *AliasExpr { return Alias(a, name) }

// Binary expression methods

func (b *BinaryExpr) And(other Expr) *BinaryExpr { return And(b, other) }
func (b *BinaryExpr) Or(other Expr) *BinaryExpr  { return Or(b, other) }
