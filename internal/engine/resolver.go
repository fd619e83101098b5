package engine

import "github.com/shaiso/tableflow/internal/domain"

// Pair — одна позиция позиционного связывания.
// Пустой Caller означает отсутствующий аргумент.
type Pair struct {
	Caller string `json:"caller"`
	Target string `json:"target"`
}

// Bound возвращает true, если на позиции есть аргумент вызывающей стороны.
func (p Pair) Bound() bool { return p.Caller != "" }

// Binding — результат позиционного связывания вызова с сигнатурой.
//
// Inputs и Outputs содержат ровно min(m, n) позиций. Лишние позиции
// с любой стороны перечислены отдельно и считаются отсутствующими.
type Binding struct {
	Signature Signature `json:"signature"`

	Inputs  []Pair `json:"inputs"`
	Outputs []Pair `json:"outputs"`

	// ExtraCallerInputs — аргументы сверх сигнатуры цели.
	ExtraCallerInputs []string `json:"extra_caller_inputs,omitempty"`

	// ExtraCallerOutputs — получатели сверх сигнатуры цели.
	ExtraCallerOutputs []string `json:"extra_caller_outputs,omitempty"`

	// UnboundInputs — входы цели без аргумента (лишние позиции
	// и позиции с пустым ID вызывающей стороны).
	UnboundInputs []string `json:"unbound_inputs,omitempty"`

	// UnboundOutputs — выходы цели, которые никуда не пишутся.
	UnboundOutputs []string `json:"unbound_outputs,omitempty"`
}

// Bind связывает аргументы вызывающей стороны с сигнатурой по позициям.
func Bind(callerInputs, callerOutputs []string, sig Signature) Binding {
	b := Binding{Signature: sig}

	b.Inputs, b.ExtraCallerInputs, b.UnboundInputs = zip(callerInputs, sig.Inputs)
	b.Outputs, b.ExtraCallerOutputs, b.UnboundOutputs = zip(callerOutputs, sig.Outputs)

	return b
}

// zip сопоставляет два списка по позициям.
func zip(caller, target []string) (pairs []Pair, extraCaller, unbound []string) {
	n := min(len(caller), len(target))

	pairs = make([]Pair, n)
	for i := 0; i < n; i++ {
		pairs[i] = Pair{Caller: caller[i], Target: target[i]}
		if caller[i] == "" {
			unbound = append(unbound, target[i])
		}
	}
	for _, c := range caller[n:] {
		if c != "" {
			extraCaller = append(extraCaller, c)
		}
	}
	unbound = append(unbound, target[n:]...)
	return pairs, extraCaller, unbound
}

// ResolveFunction разрешает вызов function в сигнатуру другого Flow.
// Второе значение false, если цель не задана, не найдена или без сигнатуры.
func ResolveFunction(reg Registry, call *domain.CallValue) (Binding, bool) {
	if call == nil || call.ID == "" {
		return Binding{}, false
	}
	sig, ok := DeriveFlowSignature(reg, call.ID)
	if !ok {
		return Binding{}, false
	}
	return Bind(call.Inputs, call.Outputs, sig), true
}

// ResolveSubflow разрешает вызов subflow в сигнатуру вложенного Subflow того же Flow.
func ResolveSubflow(flow *domain.Flow, call *domain.CallValue) (Binding, bool) {
	if call == nil || call.ID == "" {
		return Binding{}, false
	}
	target, ok := flow.Subflow(call.ID)
	if !ok {
		return Binding{}, false
	}
	sig, ok := DeriveSubflowSignature(target)
	if !ok {
		return Binding{}, false
	}
	return Bind(call.Inputs, call.Outputs, sig), true
}

// rebind переносит значение src в форму переменной dst.
//
// Колонки сопоставляются по позициям, значения приводятся к типам
// колонок dst. Колонки dst без пары получают нулевые значения.
// Если dst == nil, возвращается копия src под новым ID.
func rebind(id string, src *domain.Variable, dst *domain.Variable) *domain.Variable {
	if dst == nil || dst.Value == nil {
		out := src.Clone()
		out.ID = id
		return out
	}

	shape := dst.Value
	out := &domain.Variable{
		ID:   id,
		Type: dst.Type,
		Value: &domain.Table{
			Name:     shape.Name,
			Template: shape.Template,
			Columns:  append([]string(nil), shape.Columns...),
			Headers:  make(map[string]domain.Header, len(shape.Headers)),
		},
	}
	for k, h := range shape.Headers {
		out.Value.Headers[k] = h
	}
	if out.Type == domain.VariableSignature {
		out.Type = src.Type
		if out.Type == domain.VariableSignature {
			out.Type = domain.VariableTable
		}
	}

	var rows []domain.Row
	if src.Value != nil {
		rows = src.Value.Rows
	}
	for _, srcRow := range rows {
		row := out.Value.ZeroRow()
		for j, col := range out.Value.Columns {
			if j >= len(src.Value.Columns) {
				break
			}
			v, ok := srcRow[src.Value.Columns[j]]
			if !ok {
				continue
			}
			typ := out.Value.Headers[col].Type
			if coerced, ok := typ.Coerce(v); ok {
				row[col] = coerced
			}
		}
		out.Value.Rows = append(out.Value.Rows, row)
	}

	if out.Type == domain.VariableRow {
		switch {
		case len(out.Value.Rows) == 0:
			out.Value.Rows = []domain.Row{out.Value.ZeroRow()}
		case len(out.Value.Rows) > 1:
			out.Value.Rows = out.Value.Rows[:1]
		}
	}
	return out
}
