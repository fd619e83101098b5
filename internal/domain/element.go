package domain

import (
	"encoding/json"
	"fmt"
)

// ElementType — тег варианта Element.
type ElementType string

const (
	ElementInput    ElementType = "input"
	ElementOutput   ElementType = "output"
	ElementParent   ElementType = "parent"
	ElementTable    ElementType = "table"
	ElementRow      ElementType = "row"
	ElementDecision ElementType = "decision"
	ElementFunction ElementType = "function"
	ElementSubflow  ElementType = "subflow"
	ElementChart    ElementType = "chart"
)

// IsKnown возвращает true для типов, которые умеет вычислять движок.
func (t ElementType) IsKnown() bool {
	switch t {
	case ElementInput, ElementOutput, ElementParent, ElementTable, ElementRow,
		ElementDecision, ElementFunction, ElementSubflow, ElementChart:
		return true
	default:
		return false
	}
}

// ElementValue — закрытое множество payload'ов Element.
//
// Реализации: *InputValue, *OutputValue, *ParentValue, *TableRef,
// *DecisionTable, *CallValue, *ChartValue, *UnknownValue.
type ElementValue interface {
	elementValue()
}

// Element — один шаг в порядке вычисления Subflow.
type Element struct {
	// ID — идентификатор элемента.
	ID string `json:"id"`

	// Type — тег варианта.
	Type ElementType `json:"type"`

	// Value — payload, тип зависит от Type.
	Value ElementValue `json:"value"`
}

// InputValue — список входных переменных Subflow.
type InputValue struct {
	Inputs []string `json:"inputs"`
}

// OutputValue — список выходных переменных Subflow.
type OutputValue struct {
	Outputs []string `json:"outputs"`
}

// ParentValue — обратная ссылка на родительский Subflow.
// Используется только для навигации.
type ParentValue struct {
	ID string `json:"id"`
}

// TableRef — обёртка над переменной table или row.
type TableRef struct {
	ID string `json:"id"`
}

// CallValue — вызов Flow (function) или вложенного Subflow (subflow).
type CallValue struct {
	// ID — целевой Flow или Subflow.
	ID string `json:"id"`

	// Inputs — аргументы вызывающей стороны по позициям.
	// Пустая строка означает незаданный аргумент.
	Inputs []string `json:"inputs"`

	// Outputs — переменные вызывающей стороны для результатов.
	Outputs []string `json:"outputs"`
}

// ChartValue — презентационная обёртка над таблицей.
type ChartValue struct {
	ID     string         `json:"id"`
	Config map[string]any `json:"config,omitempty"`
}

// UnknownValue сохраняет payload элемента с неизвестным типом.
// Такой элемент помечается как inert при вычислении.
type UnknownValue struct {
	Raw json.RawMessage `json:"-"`
}

func (*InputValue) elementValue()    {}
func (*OutputValue) elementValue()   {}
func (*ParentValue) elementValue()   {}
func (*TableRef) elementValue()      {}
func (*DecisionTable) elementValue() {}
func (*CallValue) elementValue()     {}
func (*ChartValue) elementValue()    {}
func (*UnknownValue) elementValue()  {}

type elementJSON struct {
	ID    string          `json:"id"`
	Type  ElementType     `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

// UnmarshalJSON декодирует payload по тегу type.
// Неизвестный тег не является ошибкой декодирования.
func (e *Element) UnmarshalJSON(data []byte) error {
	var raw elementJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	e.ID = raw.ID
	e.Type = raw.Type

	var value ElementValue
	switch raw.Type {
	case ElementInput:
		value = &InputValue{}
	case ElementOutput:
		value = &OutputValue{}
	case ElementParent:
		value = &ParentValue{}
	case ElementTable, ElementRow:
		value = &TableRef{}
	case ElementDecision:
		value = &DecisionTable{}
	case ElementFunction, ElementSubflow:
		value = &CallValue{}
	case ElementChart:
		value = &ChartValue{}
	default:
		e.Value = &UnknownValue{Raw: append(json.RawMessage(nil), raw.Value...)}
		return nil
	}

	if len(raw.Value) > 0 && string(raw.Value) != "null" {
		if err := json.Unmarshal(raw.Value, value); err != nil {
			return fmt.Errorf("element %s (%s): %w", raw.ID, raw.Type, err)
		}
	}
	e.Value = value
	return nil
}

// MarshalJSON кодирует Element обратно в форму {id, type, value}.
func (e Element) MarshalJSON() ([]byte, error) {
	out := elementJSON{ID: e.ID, Type: e.Type}

	switch v := e.Value.(type) {
	case nil:
	case *UnknownValue:
		out.Value = v.Raw
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("element %s: %w", e.ID, err)
		}
		out.Value = data
	}

	return json.Marshal(out)
}
