package expr

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
)

// Ref — ссылка на колонку таблицы: table.column.
type Ref struct {
	Table  string
	Column string
}

func (r Ref) String() string { return r.Table + "." + r.Column }

// Expr — скомпилированное выражение.
type Expr struct {
	src     string
	program *vm.Program
	refs    []Ref
}

// Compile разбирает и компилирует выражение.
//
// Поддерживаются числовые, строковые и логические литералы, ссылки
// table.column, арифметика (+ - * / % ^ **), сравнения (== != < <= > >=),
// логические and, or, not, условный оператор c ? a : b и агрегатные
// функции Sum, Minimum, Maximum, Count, Average. Имена функций
// нечувствительны к регистру и допускают синонимы (min, max, avg, mean).
func Compile(src string) (*Expr, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrSyntax)
	}

	canonical := canonicalCalls(src)
	tree, err := parser.Parse(canonical)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}

	var refs []Ref
	if err := inspect(tree.Node, &refs); err != nil {
		return nil, err
	}

	program, err := expr.Compile(canonical, compileOptions...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}

	return &Expr{src: src, program: program, refs: refs}, nil
}

// MustCompile как Compile, но паникует при ошибке.
func MustCompile(src string) *Expr {
	e, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return e
}

// Source возвращает исходный текст выражения.
func (e *Expr) Source() string { return e.src }

// Refs возвращает ссылки выражения в порядке появления.
func (e *Expr) Refs() []Ref {
	out := make([]Ref, len(e.refs))
	copy(out, e.refs)
	return out
}

var allowedUnary = map[string]bool{
	"-": true, "+": true, "not": true, "!": true,
}

var allowedBinary = map[string]bool{
	"+": true, "-": true, "*": true, "/": true, "%": true, "^": true, "**": true,
	"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
	"and": true, "or": true, "&&": true, "||": true,
}

// inspect проверяет, что дерево состоит только из поддерживаемых
// конструкций, и собирает ссылки в порядке обхода.
func inspect(n ast.Node, refs *[]Ref) error {
	switch v := n.(type) {
	case *ast.IntegerNode, *ast.FloatNode, *ast.StringNode, *ast.BoolNode:
		return nil
	case *ast.IdentifierNode:
		if isBoolWord(v.Value) {
			return nil
		}
		return fmt.Errorf("%w: bare identifier %q, expected table.column", ErrSyntax, v.Value)
	case *ast.MemberNode:
		ref, ok := memberRef(v)
		if !ok {
			return fmt.Errorf("%w: unsupported reference, expected table.column", ErrSyntax)
		}
		*refs = append(*refs, ref)
		return nil
	case *ast.UnaryNode:
		if !allowedUnary[v.Operator] {
			return fmt.Errorf("%w: operator %s", ErrSyntax, v.Operator)
		}
		return inspect(v.Node, refs)
	case *ast.BinaryNode:
		if !allowedBinary[v.Operator] {
			return fmt.Errorf("%w: operator %s", ErrSyntax, v.Operator)
		}
		if err := inspect(v.Left, refs); err != nil {
			return err
		}
		return inspect(v.Right, refs)
	case *ast.ConditionalNode:
		for _, c := range []ast.Node{v.Cond, v.Exp1, v.Exp2} {
			if err := inspect(c, refs); err != nil {
				return err
			}
		}
		return nil
	case *ast.CallNode:
		id, ok := v.Callee.(*ast.IdentifierNode)
		if !ok {
			return fmt.Errorf("%w: unsupported call", ErrSyntax)
		}
		if _, ok := aggregates[id.Value]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownFunction, id.Value)
		}
		for _, arg := range v.Arguments {
			if err := inspect(arg, refs); err != nil {
				return err
			}
		}
		return nil
	case *ast.BuiltinNode:
		return fmt.Errorf("%w: %s", ErrUnknownFunction, v.Name)
	default:
		return fmt.Errorf("%w: unsupported construct %T", ErrSyntax, n)
	}
}

// memberRef распознаёт ссылку вида ident.ident.
func memberRef(m *ast.MemberNode) (Ref, bool) {
	table, ok := m.Node.(*ast.IdentifierNode)
	if !ok || m.Optional || isBoolWord(table.Value) || strings.HasPrefix(table.Value, "__") {
		return Ref{}, false
	}
	column, ok := m.Property.(*ast.StringNode)
	if !ok || column.Value == "" {
		return Ref{}, false
	}
	return Ref{Table: table.Value, Column: column.Value}, true
}

func isBoolWord(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false":
		return true
	}
	return false
}

// canonicalCalls заменяет имена агрегатных функций перед вызовом "("
// на канонические. Строковые литералы и свойства после "." не трогаются.
func canonicalCalls(src string) string {
	var b strings.Builder
	b.Grow(len(src))

	runes := []rune(src)
	var quote rune
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			b.WriteRune(r)
			if r == '\\' && i+1 < len(runes) {
				i++
				b.WriteRune(runes[i])
			} else if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'' || r == '`':
			quote = r
			b.WriteRune(r)
		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_') {
				j++
			}
			word := string(runes[i:j])
			if name, ok := canonicalFunc(word); ok && callFollows(runes, j) && !afterDot(runes, i) {
				word = name
			}
			b.WriteString(word)
			i = j - 1
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func callFollows(runes []rune, i int) bool {
	for ; i < len(runes); i++ {
		if !unicode.IsSpace(runes[i]) {
			return runes[i] == '('
		}
	}
	return false
}

func afterDot(runes []rune, i int) bool {
	for i--; i >= 0; i-- {
		if !unicode.IsSpace(runes[i]) {
			return runes[i] == '.'
		}
	}
	return false
}
