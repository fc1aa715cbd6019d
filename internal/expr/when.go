package expr

// whenThen is one condition and the value it selects
type whenThen struct {
	condition Expr
	value     Expr
}

// WhenBuilder holds a condition waiting for its Then value
type WhenBuilder struct {
	branches  []whenThen
	condition Expr
}

// ThenBuilder holds complete condition/value pairs waiting for another
// When or the final Otherwise
type ThenBuilder struct {
	branches []whenThen
}

// When starts a conditional expression
func When(condition Expr) *WhenBuilder {
	return &WhenBuilder{condition: condition}
}

// Then sets the value selected where the pending condition holds
func (w *WhenBuilder) Then(value Expr) *ThenBuilder {
	branches := make([]whenThen, len(w.branches)+1)
	copy(branches, w.branches)
	branches[len(w.branches)] = whenThen{condition: w.condition, value: value}
	return &ThenBuilder{branches: branches}
}

// When chains another condition, tested only where all earlier ones failed
func (t *ThenBuilder) When(condition Expr) *WhenBuilder {
	return &WhenBuilder{branches: t.branches, condition: condition}
}

// Otherwise completes the expression. A chain of n conditions becomes n
// conditionals nested in the falsy position, first condition outermost.
func (t *ThenBuilder) Otherwise(value Expr) *ConditionalExpr {
	out := value
	for i := len(t.branches) - 1; i >= 0; i-- {
		out = &ConditionalExpr{
			predicate: t.branches[i].condition,
			truthy:    t.branches[i].value,
			falsy:     out,
		}
	}
	return out.(*ConditionalExpr)
}
