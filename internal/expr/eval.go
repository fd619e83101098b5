package expr

import (
	"fmt"
	"math"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"

	"github.com/shaiso/tableflow/internal/domain"
)

// Env разрешает ссылки table.column при вычислении.
//
// Value возвращает значение колонки в текущей строке, Column — все
// значения колонки (для агрегатных функций). Обе возвращают ошибку,
// оборачивающую ErrUnresolvedRef, если ссылка не найдена.
type Env interface {
	Value(table, column string) (any, error)
	Column(table, column string) ([]any, error)
}

// Имена, которые переписчик подставляет в дерево.
const (
	stateVar = "__state"
	fnValue  = "__value"
	fnColumn = "__column"
	fnNeg    = "__neg"
	fnPos    = "__pos"
)

var arithmetic = map[string]string{
	"+":  "__add",
	"-":  "__sub",
	"*":  "__mul",
	"/":  "__div",
	"%":  "__mod",
	"^":  "__pow",
	"**": "__pow",
}

// evalState — состояние одного вычисления. Первая ошибка помощника
// сохраняется здесь, чтобы вернуть её вызывающему без обёртки VM.
type evalState struct {
	env Env
	err error
}

func (s *evalState) fail(err error) error {
	if s.err == nil {
		s.err = err
	}
	return err
}

// Eval вычисляет выражение в окружении env.
func (e *Expr) Eval(env Env) (any, error) {
	st := &evalState{env: env}
	out, err := expr.Run(e.program, map[string]any{stateVar: st})
	if st.err != nil {
		return nil, st.err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrType, err)
	}
	return normalize(out)
}

// Eval компилирует и вычисляет выражение за один вызов.
func Eval(src string, env Env) (any, error) {
	e, err := Compile(src)
	if err != nil {
		return nil, err
	}
	return e.Eval(env)
}

func normalize(v any) (any, error) {
	switch n := v.(type) {
	case int, int64, int32, float32, float64:
		f, _ := domain.ToNumber(n)
		return finite("result", f)
	default:
		return v, nil
	}
}

// finite отклоняет NaN и бесконечности.
func finite(op string, f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %s is not a finite number", ErrType, op)
	}
	return f, nil
}

// rewriter переводит дерево на помощников с доступом к окружению:
// ссылки, арифметику и агрегаты.
type rewriter struct{}

func (rewriter) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		if isBoolWord(n.Value) {
			ast.Patch(node, &ast.BoolNode{Value: strings.EqualFold(n.Value, "true")})
		}
	case *ast.MemberNode:
		if ref, ok := memberRef(n); ok {
			ast.Patch(node, helperCall(fnValue, &ast.StringNode{Value: ref.Table}, &ast.StringNode{Value: ref.Column}))
		}
	case *ast.UnaryNode:
		switch n.Operator {
		case "-":
			ast.Patch(node, helperCall(fnNeg, n.Node))
		case "+":
			ast.Patch(node, helperCall(fnPos, n.Node))
		}
	case *ast.BinaryNode:
		if fn, ok := arithmetic[n.Operator]; ok {
			ast.Patch(node, helperCall(fn, n.Left, n.Right))
		}
	case *ast.CallNode:
		id, ok := n.Callee.(*ast.IdentifierNode)
		if !ok {
			return
		}
		if _, ok := aggregates[id.Value]; !ok {
			return
		}
		args := make([]ast.Node, len(n.Arguments))
		for i, arg := range n.Arguments {
			if call, ok := arg.(*ast.CallNode); ok && calleeName(call) == fnValue {
				arg = helperCall(fnColumn, call.Arguments[1:]...)
			}
			args[i] = arg
		}
		ast.Patch(node, helperCall(id.Value, args...))
	}
}

func helperCall(name string, args ...ast.Node) *ast.CallNode {
	return &ast.CallNode{
		Callee:    &ast.IdentifierNode{Value: name},
		Arguments: append([]ast.Node{&ast.IdentifierNode{Value: stateVar}}, args...),
	}
}

func calleeName(c *ast.CallNode) string {
	if id, ok := c.Callee.(*ast.IdentifierNode); ok {
		return id.Value
	}
	return ""
}

var compileOptions = buildOptions()

func buildOptions() []expr.Option {
	opts := []expr.Option{
		expr.Patch(rewriter{}),
		expr.Function(fnValue, helper(lookupValue)),
		expr.Function(fnColumn, helper(lookupColumn)),
		expr.Function(fnNeg, helper(negate(-1))),
		expr.Function(fnPos, helper(negate(1))),
		expr.Function("__add", helper(binary("+", add))),
		expr.Function("__sub", helper(binary("-", func(l, r float64) (float64, error) { return l - r, nil }))),
		expr.Function("__mul", helper(binary("*", func(l, r float64) (float64, error) { return l * r, nil }))),
		expr.Function("__div", helper(binary("/", divide))),
		expr.Function("__mod", helper(binary("%", modulo))),
		expr.Function("__pow", helper(binary("^", func(l, r float64) (float64, error) { return math.Pow(l, r), nil }))),
	}
	for name, fn := range aggregates {
		opts = append(opts, expr.Function(name, helper(aggregate(name, fn))))
	}
	return opts
}

type helperFunc func(s *evalState, args []any) (any, error)

func helper(fn helperFunc) func(params ...any) (any, error) {
	return func(params ...any) (any, error) {
		if len(params) == 0 {
			return nil, fmt.Errorf("%w: missing evaluation state", ErrSyntax)
		}
		s, ok := params[0].(*evalState)
		if !ok {
			return nil, fmt.Errorf("%w: missing evaluation state", ErrSyntax)
		}
		v, err := fn(s, params[1:])
		if err != nil {
			return nil, s.fail(err)
		}
		return v, nil
	}
}

func refArgs(args []any) (Ref, error) {
	if len(args) != 2 {
		return Ref{}, fmt.Errorf("%w: malformed reference", ErrSyntax)
	}
	table, _ := args[0].(string)
	column, _ := args[1].(string)
	return Ref{Table: table, Column: column}, nil
}

func lookupValue(s *evalState, args []any) (any, error) {
	ref, err := refArgs(args)
	if err != nil {
		return nil, err
	}
	v, err := s.env.Value(ref.Table, ref.Column)
	if err != nil {
		return nil, &RefError{Ref: ref, Err: err}
	}
	return v, nil
}

// columnValues — значения целой колонки; агрегаты разворачивают их.
type columnValues []any

func lookupColumn(s *evalState, args []any) (any, error) {
	ref, err := refArgs(args)
	if err != nil {
		return nil, err
	}
	col, err := s.env.Column(ref.Table, ref.Column)
	if err != nil {
		return nil, &RefError{Ref: ref, Err: err}
	}
	return columnValues(col), nil
}

func negate(sign float64) helperFunc {
	return func(_ *evalState, args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: unary operator arity", ErrSyntax)
		}
		f, ok := domain.ToNumber(args[0])
		if !ok {
			return nil, fmt.Errorf("%w: unary operator applied to %v", ErrType, args[0])
		}
		return finite("unary operator", sign*f)
	}
}

func binary(op string, fn func(l, r float64) (float64, error)) helperFunc {
	return func(_ *evalState, args []any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: operator %s arity", ErrSyntax, op)
		}
		left, right := args[0], args[1]
		l, lok := domain.ToNumber(left)
		r, rok := domain.ToNumber(right)
		if !lok || !rok {
			if op == "+" && (isString(left) || isString(right)) {
				return display(left) + display(right), nil
			}
			return nil, fmt.Errorf("%w: %v %s %v", ErrType, left, op, right)
		}
		out, err := fn(l, r)
		if err != nil {
			return nil, err
		}
		return finite(op, out)
	}
}

func add(l, r float64) (float64, error) { return l + r, nil }

func divide(l, r float64) (float64, error) {
	if r == 0 {
		return 0, ErrDivisionByZero
	}
	return l / r, nil
}

func modulo(l, r float64) (float64, error) {
	if r == 0 {
		return 0, ErrDivisionByZero
	}
	return math.Mod(l, r), nil
}

func aggregate(name string, fn aggregateFunc) helperFunc {
	return func(_ *evalState, args []any) (any, error) {
		var values []any
		for _, arg := range args {
			if col, ok := arg.(columnValues); ok {
				values = append(values, col...)
				continue
			}
			values = append(values, arg)
		}
		out, err := fn(values)
		if err != nil {
			return nil, err
		}
		f, _ := domain.ToNumber(out)
		return finite(name, f)
	}
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

func display(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strings.TrimSuffix(fmt.Sprintf("%g", s), ".0")
	default:
		return fmt.Sprint(s)
	}
}
