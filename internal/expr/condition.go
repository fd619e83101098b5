package expr

import (
	"fmt"
	"strings"

	"github.com/shaiso/tableflow/internal/domain"
)

// Operator — оператор сравнения в предикате условия.
type Operator string

const (
	OpEq Operator = "="
	OpNe Operator = "!="
	OpLt Operator = "<"
	OpLe Operator = "<="
	OpGt Operator = ">"
	OpGe Operator = ">="
)

// operatorPrefixes упорядочены от длинных к коротким.
var operatorPrefixes = []struct {
	text string
	op   Operator
}{
	{"==", OpEq},
	{"!=", OpNe},
	{"<>", OpNe},
	{"<=", OpLe},
	{">=", OpGe},
	{"=", OpEq},
	{"<", OpLt},
	{">", OpGt},
}

// Predicate — одно сравнение в ячейке условия.
type Predicate struct {
	Op       Operator
	Operand  *Expr
	Wildcard bool
}

// Condition — список предикатов ячейки, объединённых через AND.
type Condition []Predicate

// ParseOperators разбирает поле conditions заголовка: "=", ">=,<" и т.п.
// Нераспознанные элементы заменяются на "=".
func ParseOperators(conditions string) []Operator {
	var ops []Operator
	for _, part := range SplitList(conditions) {
		op, rest := cutOperator(part)
		if op == "" || strings.TrimSpace(rest) != "" {
			op = OpEq
		}
		ops = append(ops, op)
	}
	return ops
}

// ParseCondition разбирает ячейку условия.
//
// Предикаты разделяются запятыми вне кавычек. Предикат может начинаться
// с собственного оператора; иначе оператор берётся из defaults по
// позиции предиката, а при его отсутствии используется "=".
// Ячейка "-" или "*" (а также пустая) совпадает с любым значением.
func ParseCondition(cell string, defaults []Operator) (Condition, error) {
	parts := SplitList(cell)
	if len(parts) == 0 {
		return Condition{{Wildcard: true}}, nil
	}

	cond := make(Condition, 0, len(parts))
	for i, part := range parts {
		if domain.IsWildcard(part) {
			cond = append(cond, Predicate{Wildcard: true})
			continue
		}

		op, rest := cutOperator(part)
		if op == "" {
			op = OpEq
			if i < len(defaults) {
				op = defaults[i]
			}
			rest = part
		}

		rest = strings.TrimSpace(rest)
		if domain.IsWildcard(rest) {
			cond = append(cond, Predicate{Wildcard: true})
			continue
		}

		operand, err := Compile(rest)
		if err != nil {
			return nil, fmt.Errorf("predicate %q: %w", part, err)
		}
		cond = append(cond, Predicate{Op: op, Operand: operand})
	}
	return cond, nil
}

// Match проверяет значение против всех предикатов.
// Значение nil совпадает только с подстановочными предикатами.
func (c Condition) Match(value any, env Env) (bool, error) {
	for _, p := range c {
		if p.Wildcard {
			continue
		}
		if value == nil {
			return false, nil
		}
		operand, err := p.Operand.Eval(env)
		if err != nil {
			return false, err
		}
		ok, err := Test(p.Op, value, operand)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Refs возвращает ссылки, используемые операндами условия.
func (c Condition) Refs() []Ref {
	var out []Ref
	for _, p := range c {
		if p.Operand != nil {
			out = append(out, p.Operand.Refs()...)
		}
	}
	return out
}

// Test применяет оператор к паре значений.
func Test(op Operator, left, right any) (bool, error) {
	cmp, ordered := Compare(left, right)
	switch op {
	case OpEq:
		return cmp == 0, nil
	case OpNe:
		return cmp != 0, nil
	}
	if !ordered {
		return false, fmt.Errorf("%w: %v %s %v", ErrType, left, op, right)
	}
	switch op {
	case OpLt:
		return cmp < 0, nil
	case OpLe:
		return cmp <= 0, nil
	case OpGt:
		return cmp > 0, nil
	case OpGe:
		return cmp >= 0, nil
	default:
		return false, fmt.Errorf("%w: operator %q", ErrSyntax, op)
	}
}

// Compare сравнивает два скаляра: числа численно, bool только на
// равенство, остальное как строки. ordered=false для bool.
func Compare(left, right any) (cmp int, ordered bool) {
	if l, ok := domain.ToNumber(left); ok {
		if r, ok := domain.ToNumber(right); ok {
			switch {
			case l < r:
				return -1, true
			case l > r:
				return 1, true
			default:
				return 0, true
			}
		}
	}

	lb, lIsBool := left.(bool)
	rb, rIsBool := right.(bool)
	if lIsBool || rIsBool {
		ls, rs := display(left), display(right)
		if lIsBool && rIsBool && lb == rb {
			return 0, false
		}
		if strings.EqualFold(ls, rs) {
			return 0, false
		}
		return 1, false
	}

	return strings.Compare(display(left), display(right)), true
}

// SplitList делит строку по запятым вне кавычек и обрезает пробелы.
// Пустые элементы отбрасываются.
func SplitList(s string) []string {
	var (
		parts []string
		b     strings.Builder
		quote rune
	)
	flush := func() {
		if part := strings.TrimSpace(b.String()); part != "" {
			parts = append(parts, part)
		}
		b.Reset()
	}

	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
			b.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			b.WriteRune(r)
		case r == ',':
			flush()
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return parts
}

func cutOperator(s string) (Operator, string) {
	s = strings.TrimSpace(s)
	for _, p := range operatorPrefixes {
		if strings.HasPrefix(s, p.text) {
			return p.op, s[len(p.text):]
		}
	}
	return "", s
}
