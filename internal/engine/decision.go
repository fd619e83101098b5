package engine

import (
	"fmt"

	"github.com/shaiso/tableflow/internal/domain"
	"github.com/shaiso/tableflow/internal/expr"
)

// DecisionResult — результат вычисления таблицы решений.
type DecisionResult struct {
	// Rows — по одному результату на индекс строки входных таблиц.
	Rows []DecisionRowResult

	// Errors — локальные ошибки колонок. Каждая ошибка затрагивает
	// только свою колонку.
	Errors []error
}

// DecisionRowResult — результат для одного индекса входной строки.
type DecisionRowResult struct {
	// Index — индекс строки входных таблиц.
	Index int

	// Matched — индекс совпавшего правила, -1 если ни одно не совпало.
	Matched int

	// Values — выходная колонка → значение. Колонки с ошибкой
	// и отложенные колонки отсутствуют.
	Values map[string]any

	// Deferred — выходная колонка → ID Decision Subflow.
	Deferred map[string]string
}

// compiledDecision — разобранные условия и выражения таблицы решений.
type compiledDecision struct {
	conds   [][]*expr.Condition // [rule][input column]
	exprs   []map[string]*expr.Expr
	defers  []map[string]string
	errs    []error
	badRule []bool
}

func compileDecision(dt *domain.DecisionTable) *compiledDecision {
	c := &compiledDecision{
		conds:   make([][]*expr.Condition, len(dt.Rows)),
		exprs:   make([]map[string]*expr.Expr, len(dt.Rows)),
		defers:  make([]map[string]string, len(dt.Rows)),
		badRule: make([]bool, len(dt.Rows)),
	}

	ops := make(map[string][]expr.Operator, len(dt.Columns.Inputs))
	for _, col := range dt.Columns.Inputs {
		ops[col] = expr.ParseOperators(dt.Headers.Inputs[col].Conditions)
	}

	for r, rule := range dt.Rows {
		c.conds[r] = make([]*expr.Condition, len(dt.Columns.Inputs))
		for i, col := range dt.Columns.Inputs {
			cond, err := expr.ParseCondition(rule.Inputs[col], ops[col])
			if err != nil {
				c.errs = append(c.errs, fmt.Errorf("rule %d input %s: %w", r, col, err))
				c.badRule[r] = true
				continue
			}
			c.conds[r][i] = &cond
		}

		c.exprs[r] = make(map[string]*expr.Expr, len(dt.Columns.Outputs))
		c.defers[r] = make(map[string]string)
		for _, col := range dt.Columns.Outputs {
			src := rule.Outputs[col]
			if id, ok := domain.SubflowRef(src); ok {
				c.defers[r][col] = id
				continue
			}
			e, err := expr.Compile(src)
			if err != nil {
				c.errs = append(c.errs, fmt.Errorf("rule %d output %s: %w", r, col, err))
				continue
			}
			c.exprs[r][col] = e
		}
	}
	return c
}

// EvaluateDecision вычисляет таблицу решений.
//
// Таблица вычисляется один раз на каждый индекс строки входных таблиц
// (таблицы из одной строки транслируются). Для каждого индекса правила
// проверяются по порядку, первое совпавшее выигрывает. Если ни одно не
// совпало, все выходные колонки получают нулевое значение своего типа.
func EvaluateDecision(dt *domain.DecisionTable, tables Tables) DecisionResult {
	var res DecisionResult
	if dt == nil {
		return res
	}

	compiled := compileDecision(dt)
	res.Errors = append(res.Errors, compiled.errs...)

	// Источники входных колонок разрешаются один раз.
	sources := make([]*inputSource, len(dt.Columns.Inputs))
	for i, col := range dt.Columns.Inputs {
		h, ok := dt.Headers.Inputs[col]
		if !ok {
			res.Errors = append(res.Errors, fmt.Errorf("%w: input column %s has no header", ErrBadDecision, col))
			continue
		}
		t, ok := tables.Table(h.Table)
		if !ok {
			res.Errors = append(res.Errors, fmt.Errorf("input %s: %w: %s", col, ErrTableNotFound, h.Table))
			continue
		}
		c, ok := tableColumn(t, h.Column)
		if !ok {
			res.Errors = append(res.Errors, fmt.Errorf("input %s: %w: %s.%s", col, ErrColumnNotFound, h.Table, h.Column))
			continue
		}
		sources[i] = &inputSource{table: t, column: c}
	}

	outTypes := make(map[string]domain.ScalarType, len(dt.Columns.Outputs))
	for _, col := range dt.Columns.Outputs {
		outTypes[col] = outputType(dt.Headers.Outputs[col], tables)
	}

	n := decisionRowCount(dt, tables)
	reported := make(map[string]bool)
	report := func(err error) {
		if msg := err.Error(); !reported[msg] {
			reported[msg] = true
			res.Errors = append(res.Errors, err)
		}
	}

	for i := 0; i < n; i++ {
		env := rowEnv{tables: tables, row: i}
		row := DecisionRowResult{Index: i, Matched: -1, Values: map[string]any{}}

		for r := range dt.Rows {
			if compiled.badRule[r] {
				continue
			}
			if matchRule(compiled.conds[r], sources, i, env, r, report) {
				row.Matched = r
				break
			}
		}

		if row.Matched < 0 {
			for _, col := range dt.Columns.Outputs {
				row.Values[col] = outTypes[col].Zero()
			}
			res.Rows = append(res.Rows, row)
			continue
		}

		r := row.Matched
		for _, col := range dt.Columns.Outputs {
			if id, ok := compiled.defers[r][col]; ok {
				if row.Deferred == nil {
					row.Deferred = make(map[string]string)
				}
				row.Deferred[col] = id
				continue
			}
			e, ok := compiled.exprs[r][col]
			if !ok {
				continue
			}
			v, err := e.Eval(env)
			if err != nil {
				report(fmt.Errorf("rule %d output %s: %w", r, col, err))
				continue
			}
			if coerced, ok := outTypes[col].Coerce(v); ok {
				v = coerced
			} else {
				report(fmt.Errorf("rule %d output %s: %w: %v is not %s", r, col, expr.ErrType, v, outTypes[col]))
				continue
			}
			row.Values[col] = v
		}
		res.Rows = append(res.Rows, row)
	}

	return res
}

// inputSource — разрешённая колонка-источник входа таблицы решений.
type inputSource struct {
	table  *domain.Table
	column string
}

// matchRule проверяет все условия правила (AND). Ошибка условия
// считается несовпадением. Неразрешённый источник даёт значение nil,
// которое совпадает только с подстановочным условием.
func matchRule(conds []*expr.Condition, sources []*inputSource, i int, env rowEnv, rule int, report func(error)) bool {
	for c, cond := range conds {
		if cond == nil {
			continue
		}
		var value any
		if src := sources[c]; src != nil {
			value = cellAt(src.table, src.column, i)
		}
		ok, err := cond.Match(value, env)
		if err != nil {
			report(fmt.Errorf("rule %d input %d: %w", rule, c, err))
			return false
		}
		if !ok {
			return false
		}
	}
	return true
}

// decisionRowCount — максимум строк среди входных таблиц, не меньше 1.
func decisionRowCount(dt *domain.DecisionTable, tables Tables) int {
	n := 1
	for _, id := range decisionInputTables(dt) {
		if t, ok := tables.Table(id); ok && len(t.Rows) > n {
			n = len(t.Rows)
		}
	}
	return n
}

// decisionInputTables возвращает различные входные таблицы по порядку:
// сначала из списка inputs, затем из заголовков входных колонок.
func decisionInputTables(dt *domain.DecisionTable) []string {
	var ids []string
	seen := make(map[string]bool)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, id := range dt.Inputs {
		add(id)
	}
	for _, col := range dt.Columns.Inputs {
		add(dt.Headers.Inputs[col].Table)
	}
	return ids
}

// decisionOutputTables возвращает различные выходные таблицы по порядку.
func decisionOutputTables(dt *domain.DecisionTable) []string {
	var ids []string
	seen := make(map[string]bool)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, id := range dt.Outputs {
		add(id)
	}
	for _, col := range dt.Columns.Outputs {
		add(dt.Headers.Outputs[col].Table)
	}
	return ids
}

// outputType — тип выходной колонки: из заголовка таблицы решений,
// иначе из заголовка колонки таблицы-получателя.
func outputType(h domain.OutputHeader, tables Tables) domain.ScalarType {
	if h.Type != "" {
		return h.Type
	}
	t, ok := tables.Table(h.Table)
	if !ok {
		return ""
	}
	col, ok := tableColumn(t, h.Column)
	if !ok {
		return ""
	}
	return t.Headers[col].Type
}
