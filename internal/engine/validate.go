package engine

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/shaiso/tableflow/internal/domain"
)

// Validate выполняет структурную валидацию Flow.
//
// Проверяет:
// - Наличие ID и разрешимость main
// - Совпадение ключей subflows с ID
// - Наличие и типы элементов input/output
// - Существование элементов из order
// - Объявленность переменных, на которые ссылаются элементы
// - Ссылки parent, subflow:// и цели вызовов
// - Форму переменных и доступность шаблонов
//
// Возвращает все найденные проблемы одной ошибкой (*multierror.Error)
// или nil. reg может быть nil: тогда цели function и шаблоны не проверяются.
func Validate(reg Registry, flow *domain.Flow) error {
	if flow == nil {
		return ErrNilFlow
	}
	if flow.ID == "" {
		return NewValidationError("", "", "", "id", "flow has empty ID", ErrEmptyFlowID)
	}

	var merr *multierror.Error
	if _, ok := flow.MainSubflow(); !ok {
		merr = multierror.Append(merr, NewValidationError(flow.ID, "", "", "main",
			fmt.Sprintf("main subflow %q not found", flow.Main), ErrMainNotFound))
	}

	workflow := ""
	if reg != nil {
		workflow = reg.FlowWorkflow(flow.ID)
	}

	ids := make([]string, 0, len(flow.Subflows))
	for id := range flow.Subflows {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		sf := flow.Subflows[id]
		if sf == nil {
			merr = multierror.Append(merr, NewValidationError(flow.ID, id, "", "subflows",
				"subflow is null", ErrSubflowNotFound))
			continue
		}
		if sf.ID != id {
			merr = multierror.Append(merr, NewValidationError(flow.ID, id, "", "id",
				fmt.Sprintf("subflow key %q holds subflow %q", id, sf.ID), ErrSubflowIDMismatch))
		}
		for _, err := range validateSubflow(reg, flow, workflow, sf) {
			merr = multierror.Append(merr, err)
		}
	}

	return merr.ErrorOrNil()
}

func validateSubflow(reg Registry, flow *domain.Flow, workflow string, sf *domain.Subflow) []error {
	var errs []error
	add := func(elementID, field, message string, err error) {
		errs = append(errs, NewValidationError(flow.ID, sf.ID, elementID, field, message, err))
	}

	// input / output
	if el, ok := sf.Element(sf.Input); !ok {
		add("", "input", fmt.Sprintf("input element %q not found", sf.Input), ErrElementNotFound)
	} else if el.Type != domain.ElementInput {
		add(el.ID, "input", fmt.Sprintf("input element has type %q", el.Type), ErrElementKind)
	}
	if el, ok := sf.Element(sf.Output); !ok {
		add("", "output", fmt.Sprintf("output element %q not found", sf.Output), ErrElementNotFound)
	} else if el.Type != domain.ElementOutput {
		add(el.ID, "output", fmt.Sprintf("output element has type %q", el.Type), ErrElementKind)
	}

	// parent
	if sf.Parent != "" {
		if _, ok := flow.Subflow(sf.Parent); !ok || sf.Parent == sf.ID {
			add("", "parent", fmt.Sprintf("parent subflow %q not found", sf.Parent), ErrParentNotFound)
		}
	}

	// order
	for _, id := range sf.Order {
		if _, ok := sf.Element(id); !ok {
			add(id, "order", fmt.Sprintf("order references unknown element %q", id), ErrElementNotFound)
		}
	}

	// variables
	varIDs := make([]string, 0, len(sf.Variables))
	for id := range sf.Variables {
		varIDs = append(varIDs, id)
	}
	sort.Strings(varIDs)
	for _, id := range varIDs {
		v := sf.Variables[id]
		if err := v.CheckShape(); err != nil {
			add("", "variables", fmt.Sprintf("variable %s: %v", id, err), ErrBadVariableShape)
			continue
		}
		if tpl := v.Value.Template; tpl != "" && reg != nil {
			if _, ok := reg.Template(tpl); !ok {
				add("", "variables", fmt.Sprintf("variable %s: template %q not found", id, tpl), ErrTableNotFound)
			} else if !CanReference(reg, tpl, workflow) {
				add("", "variables", fmt.Sprintf("variable %s: template %q", id, tpl), ErrTemplateNotVisible)
			}
		}
	}

	// elements
	elIDs := make([]string, 0, len(sf.Elements))
	for id := range sf.Elements {
		elIDs = append(elIDs, id)
	}
	sort.Strings(elIDs)

	declared := func(elID, field, id string) {
		if id != "" && !sf.IsDeclared(id) {
			add(elID, field, fmt.Sprintf("variable %q is not declared", id), ErrUndeclaredVariable)
		}
	}

	for _, id := range elIDs {
		el := sf.Elements[id]
		if el == nil {
			add(id, "elements", "element is null", ErrElementNotFound)
			continue
		}

		switch v := el.Value.(type) {
		case *domain.InputValue:
			for _, in := range v.Inputs {
				declared(el.ID, "inputs", in)
			}
		case *domain.OutputValue:
			for _, out := range v.Outputs {
				declared(el.ID, "outputs", out)
			}
		case *domain.ParentValue:
			if v.ID != sf.Parent {
				add(el.ID, "value.id", fmt.Sprintf("parent element points to %q, subflow parent is %q", v.ID, sf.Parent), ErrParentNotFound)
			}
		case *domain.TableRef:
			declared(el.ID, "value.id", v.ID)
		case *domain.ChartValue:
			declared(el.ID, "value.id", v.ID)
		case *domain.CallValue:
			for _, in := range v.Inputs {
				declared(el.ID, "inputs", in)
			}
			for _, out := range v.Outputs {
				declared(el.ID, "outputs", out)
			}
			switch el.Type {
			case domain.ElementSubflow:
				if _, ok := flow.Subflow(v.ID); !ok {
					add(el.ID, "value.id", fmt.Sprintf("subflow %q not found", v.ID), ErrSubflowNotFound)
				}
			case domain.ElementFunction:
				if reg != nil {
					if _, ok := reg.Flow(v.ID); !ok {
						add(el.ID, "value.id", fmt.Sprintf("flow %q not found", v.ID), ErrFlowNotFound)
					}
				}
			}
		case *domain.DecisionTable:
			for _, err := range validateDecision(flow, v) {
				add(el.ID, "value", err.Error(), err)
			}
			for _, t := range decisionInputTables(v) {
				declared(el.ID, "inputs", t)
			}
			for _, t := range decisionOutputTables(v) {
				declared(el.ID, "outputs", t)
			}
		case *domain.UnknownValue:
			add(el.ID, "type", fmt.Sprintf("unknown element type %q", el.Type), ErrUnknownElementType)
		default:
			add(el.ID, "value", fmt.Sprintf("element of type %q has payload %T", el.Type, el.Value), ErrElementKind)
		}
	}

	return errs
}

// validateDecision проверяет согласованность колонок, заголовков и правил.
func validateDecision(flow *domain.Flow, dt *domain.DecisionTable) []error {
	var errs []error

	for _, col := range dt.Columns.Inputs {
		if _, ok := dt.Headers.Inputs[col]; !ok {
			errs = append(errs, fmt.Errorf("%w: input column %s has no header", ErrBadDecision, col))
		}
	}
	for _, col := range dt.Columns.Outputs {
		if _, ok := dt.Headers.Outputs[col]; !ok {
			errs = append(errs, fmt.Errorf("%w: output column %s has no header", ErrBadDecision, col))
		}
	}

	compiled := compileDecision(dt)
	for _, err := range compiled.errs {
		errs = append(errs, fmt.Errorf("%w: %v", ErrBadDecision, err))
	}

	for r, rule := range dt.Rows {
		for _, col := range dt.Columns.Outputs {
			id, ok := domain.SubflowRef(rule.Outputs[col])
			if !ok {
				continue
			}
			if _, ok := flow.Subflow(id); !ok {
				errs = append(errs, fmt.Errorf("%w: rule %d output %s: decision subflow %s not found", ErrSubflowNotFound, r, col, id))
			}
		}
	}
	return errs
}
