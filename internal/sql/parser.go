package sql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paveg/whenthen/internal/errors"
	"github.com/paveg/whenthen/internal/expr"
)

// Precedence constants for expression parsing.
const (
	_ int = iota
	LOWEST
	ORPREC      // OR
	ANDPREC     // AND
	NOTPREC     // NOT x
	EQUALS      // =, != and IS [NOT] NULL
	LESSGREATER // > or <
	SUMPREC     // + and -
	PRODUCT     // * and /
	PREFIX      // -x
)

var precedences = map[TokenType]int{
	OR:    ORPREC,
	AND:   ANDPREC,
	EQ:    EQUALS,
	NE:    EQUALS,
	IS:    EQUALS,
	LT:    LESSGREATER,
	GT:    LESSGREATER,
	LE:    LESSGREATER,
	GE:    LESSGREATER,
	PLUS:  SUMPREC,
	MINUS: SUMPREC,
	MULT:  PRODUCT,
	DIV:   PRODUCT,
}

var binaryOps = map[TokenType]expr.BinaryOp{
	EQ:    expr.OpEq,
	NE:    expr.OpNe,
	LT:    expr.OpLt,
	LE:    expr.OpLe,
	GT:    expr.OpGt,
	GE:    expr.OpGe,
	AND:   expr.OpAnd,
	OR:    expr.OpOr,
	PLUS:  expr.OpAdd,
	MINUS: expr.OpSub,
	MULT:  expr.OpMul,
	DIV:   expr.OpDiv,
}

// aggregations maps SQL function names to aggregation constructors
var aggregations = map[string]func(expr.Expr) *expr.AggregationExpr{
	"SUM":        expr.Sum,
	"COUNT":      expr.Count,
	"AVG":        expr.Mean,
	"MEAN":       expr.Mean,
	"MIN":        expr.Min,
	"MAX":        expr.Max,
	"FIRST":      expr.First,
	"LAST":       expr.Last,
	"NULL_COUNT": expr.NullCount,
	"LIST":       expr.List,
}

// unsupportedClauses are recognized so they fail with a clear message
var unsupportedClauses = map[TokenType]string{
	WHERE:  "WHERE",
	HAVING: "HAVING",
	ORDER:  "ORDER BY",
	LIMIT:  "LIMIT",
}

// Parser parses SQL tokens into AST.
type Parser struct {
	lexer *Lexer

	curToken  Token
	peekToken Token

	errors []string
}

// NewParser creates a new parser instance.
func NewParser(lexer *Lexer) *Parser {
	p := &Parser{lexer: lexer}
	p.nextToken()
	p.nextToken()
	return p
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

// Errors returns parse errors.
func (p *Parser) Errors() []string {
	return p.errors
}

func (p *Parser) addError(format string, args ...interface{}) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

func (p *Parser) expectPeek(t TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.peekError(t)
	return false
}

func (p *Parser) peekError(expected TokenType) {
	if clause, ok := unsupportedClauses[p.peekToken.Type]; ok {
		p.addError("%s is not supported", clause)
		return
	}
	p.addError("expected %s at position %d, got %q", expected, p.peekToken.Position, p.peekToken.Literal)
}

func (p *Parser) peekPrecedence() int {
	if prec, ok := precedences[p.peekToken.Type]; ok {
		return prec
	}
	return LOWEST
}

// ParseSelect parses a complete SELECT statement.
func (p *Parser) ParseSelect() *SelectStatement {
	if !p.curTokenIs(SELECT) {
		p.addError("expected SELECT, got %q", p.curToken.Literal)
		return nil
	}

	stmt := &SelectStatement{}
	items, ok := p.parseSelectList()
	if !ok {
		return nil
	}
	stmt.SelectList = items

	if !p.expectPeek(FROM) || !p.expectPeek(IDENT) {
		return nil
	}
	stmt.From = p.curToken.Literal

	if p.peekTokenIs(GROUP) {
		p.nextToken()
		if !p.expectPeek(BY) {
			return nil
		}
		for {
			if !p.expectPeek(IDENT) {
				return nil
			}
			stmt.GroupBy = append(stmt.GroupBy, p.curToken.Literal)
			if !p.peekTokenIs(COMMA) {
				break
			}
			p.nextToken()
		}
	}

	if p.peekTokenIs(SEMICOLON) {
		p.nextToken()
	}
	if !p.expectPeek(EOF) {
		return nil
	}
	return stmt
}

func (p *Parser) parseSelectList() ([]SelectItem, bool) {
	var items []SelectItem
	for {
		p.nextToken()
		item, ok := p.parseSelectItem()
		if !ok {
			return nil, false
		}
		items = append(items, item)

		if !p.peekTokenIs(COMMA) {
			return items, true
		}
		p.nextToken()
	}
}

func (p *Parser) parseSelectItem() (SelectItem, bool) {
	if p.curTokenIs(MULT) {
		return SelectItem{IsWildcard: true}, true
	}

	expression, ok := p.parseExpression(LOWEST)
	if !ok {
		return SelectItem{}, false
	}

	item := SelectItem{Expression: expression}
	switch {
	case p.peekTokenIs(AS):
		p.nextToken()
		if !p.peekTokenIs(IDENT) && !p.peekTokenIs(STRING) {
			p.addError("expected alias name, got %q", p.peekToken.Literal)
			return SelectItem{}, false
		}
		p.nextToken()
		item.Alias = p.curToken.Literal
	case p.peekTokenIs(IDENT):
		p.nextToken()
		item.Alias = p.curToken.Literal
	}
	return item, true
}

// parseExpression parses expressions using Pratt parser.
func (p *Parser) parseExpression(precedence int) (expr.Expr, bool) {
	left, ok := p.parsePrefix()
	if !ok {
		return nil, false
	}

	for !p.peekTokenIs(SEMICOLON) && precedence < p.peekPrecedence() {
		p.nextToken()
		left, ok = p.parseInfix(left)
		if !ok {
			return nil, false
		}
	}
	return left, true
}

func (p *Parser) parsePrefix() (expr.Expr, bool) {
	//nolint:exhaustive // Only tokens that can start an expression
	switch p.curToken.Type {
	case IDENT:
		if p.peekTokenIs(LPAREN) {
			return p.parseFunctionCall()
		}
		return expr.Col(p.curToken.Literal), true
	case INT, FLOAT:
		return p.parseNumber(false)
	case STRING:
		return expr.Lit(p.curToken.Literal), true
	case TRUE, FALSE:
		return expr.Lit(p.curTokenIs(TRUE)), true
	case NULL:
		return expr.Lit(nil), true
	case MINUS:
		p.nextToken()
		if p.curTokenIs(INT) || p.curTokenIs(FLOAT) {
			return p.parseNumber(true)
		}
		operand, ok := p.parseExpression(PREFIX)
		if !ok {
			return nil, false
		}
		return expr.Mul(operand, expr.Lit(int64(-1))), true
	case NOT:
		p.nextToken()
		operand, ok := p.parseExpression(NOTPREC)
		if !ok {
			return nil, false
		}
		return expr.Not(operand), true
	case LPAREN:
		p.nextToken()
		inner, ok := p.parseExpression(LOWEST)
		if !ok || !p.expectPeek(RPAREN) {
			return nil, false
		}
		return inner, true
	case CASE:
		return p.parseCase()
	case MULT:
		p.addError("* is only allowed as a select item")
		return nil, false
	default:
		p.addError("unexpected %q at position %d", p.curToken.Literal, p.curToken.Position)
		return nil, false
	}
}

// parseInfix continues left with the operator under the current token
func (p *Parser) parseInfix(left expr.Expr) (expr.Expr, bool) {
	if p.curTokenIs(IS) {
		negate := p.peekTokenIs(NOT)
		if negate {
			p.nextToken()
		}
		if !p.expectPeek(NULL) {
			return nil, false
		}
		if negate {
			return expr.IsNotNull(left), true
		}
		return expr.IsNull(left), true
	}

	op, ok := binaryOps[p.curToken.Type]
	if !ok {
		p.addError("unknown operator %q", p.curToken.Literal)
		return nil, false
	}
	precedence := precedences[p.curToken.Type]
	p.nextToken()

	right, ok := p.parseExpression(precedence)
	if !ok {
		return nil, false
	}
	return expr.Binary(left, op, right), true
}

func (p *Parser) parseNumber(negative bool) (expr.Expr, bool) {
	lit := p.curToken.Literal
	if negative {
		lit = "-" + lit
	}
	if p.curTokenIs(INT) {
		value, err := strconv.ParseInt(lit, 10, 64)
		if err != nil {
			p.addError("could not parse %q as integer", lit)
			return nil, false
		}
		return expr.Lit(value), true
	}
	value, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		p.addError("could not parse %q as float", lit)
		return nil, false
	}
	return expr.Lit(value), true
}

// parseCase parses both CASE forms. CASE x WHEN v compares x = v; a missing
// ELSE selects null.
func (p *Parser) parseCase() (expr.Expr, bool) {
	var operand expr.Expr
	if p.peekTokenIs(ELSE) || p.peekTokenIs(END) {
		p.peekError(WHEN)
		return nil, false
	}
	if !p.peekTokenIs(WHEN) {
		p.nextToken()
		var ok bool
		if operand, ok = p.parseExpression(LOWEST); !ok {
			return nil, false
		}
	}
	if !p.expectPeek(WHEN) {
		return nil, false
	}

	var branches *expr.ThenBuilder
	for p.curTokenIs(WHEN) {
		p.nextToken()
		condition, ok := p.parseExpression(LOWEST)
		if !ok {
			return nil, false
		}
		if operand != nil {
			condition = expr.Eq(operand, condition)
		}
		if !p.expectPeek(THEN) {
			return nil, false
		}
		p.nextToken()
		value, ok := p.parseExpression(LOWEST)
		if !ok {
			return nil, false
		}

		if branches == nil {
			branches = expr.When(condition).Then(value)
		} else {
			branches = branches.When(condition).Then(value)
		}
		if p.peekTokenIs(WHEN) {
			p.nextToken()
		}
	}

	var otherwise expr.Expr = expr.Lit(nil)
	if p.peekTokenIs(ELSE) {
		p.nextToken()
		p.nextToken()
		var ok bool
		if otherwise, ok = p.parseExpression(LOWEST); !ok {
			return nil, false
		}
	}
	if !p.expectPeek(END) {
		return nil, false
	}
	return branches.Otherwise(otherwise), true
}

func (p *Parser) parseFunctionCall() (expr.Expr, bool) {
	name := strings.ToUpper(p.curToken.Literal)
	build, ok := aggregations[name]
	if !ok {
		p.addError("unknown function %s", p.curToken.Literal)
		return nil, false
	}
	p.nextToken()

	if p.peekTokenIs(MULT) {
		p.addError("%s(*) is not supported, name a column", name)
		return nil, false
	}
	p.nextToken()
	arg, ok := p.parseExpression(LOWEST)
	if !ok {
		return nil, false
	}
	if !p.expectPeek(RPAREN) {
		p.addError("%s takes exactly one argument", name)
		return nil, false
	}
	return build(arg), true
}

// ParseSQL parses a SELECT statement.
func ParseSQL(input string) (*SelectStatement, error) {
	parser := NewParser(NewLexer(input))
	stmt := parser.ParseSelect()
	if len(parser.Errors()) > 0 {
		return nil, errors.NewInvalidInputError("sql", "parse errors: "+strings.Join(parser.Errors(), "; "))
	}
	return stmt, nil
}
