package engine

import (
	"github.com/shaiso/tableflow/internal/domain"
	"github.com/shaiso/tableflow/internal/expr"
)

// elementDeps возвращает ID переменных, которые элемент читает и пишет.
// Ссылки по snake_case имени разрешаются в ID через scope.
func elementDeps(el *domain.Element, scope *Scope) (reads, writes []string) {
	switch v := el.Value.(type) {
	case *domain.TableRef:
		return nonEmpty(v.ID), nil
	case *domain.ChartValue:
		return nonEmpty(v.ID), nil
	case *domain.CallValue:
		return nonEmpty(v.Inputs...), nonEmpty(v.Outputs...)
	case *domain.DecisionTable:
		refs := decisionInputTables(v)
		refs = append(refs, decisionExprTables(v)...)
		for _, ref := range refs {
			reads = append(reads, resolveID(scope, ref))
		}
		for _, ref := range decisionOutputTables(v) {
			writes = append(writes, resolveID(scope, ref))
		}
		return unique(reads), unique(writes)
	default:
		return nil, nil
	}
}

// decisionExprTables — таблицы, на которые ссылаются условия и выражения.
func decisionExprTables(dt *domain.DecisionTable) []string {
	var tables []string
	for _, rule := range dt.Rows {
		for _, cell := range rule.Inputs {
			cond, err := expr.ParseCondition(cell, nil)
			if err != nil {
				continue
			}
			for _, r := range cond.Refs() {
				tables = append(tables, r.Table)
			}
		}
		for _, src := range rule.Outputs {
			if _, ok := domain.SubflowRef(src); ok {
				continue
			}
			e, err := expr.Compile(src)
			if err != nil {
				continue
			}
			for _, r := range e.Refs() {
				tables = append(tables, r.Table)
			}
		}
	}
	return tables
}

func resolveID(scope *Scope, ref string) string {
	if v, ok := scope.Resolve(ref); ok {
		return v.ID
	}
	return ref
}

func nonEmpty(ids ...string) []string {
	var out []string
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

func unique(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func intersects(ids []string, set map[string]bool) bool {
	for _, id := range ids {
		if set[id] {
			return true
		}
	}
	return false
}
