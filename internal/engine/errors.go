package engine

import (
	"errors"
	"fmt"
)

// Ошибки структурной валидации Flow.
var (
	// ErrNilFlow — flow не передан.
	ErrNilFlow = errors.New("flow is nil")

	// ErrEmptyFlowID — flow не имеет ID.
	ErrEmptyFlowID = errors.New("flow has empty ID")

	// ErrMainNotFound — main не задан или не найден среди subflows.
	ErrMainNotFound = errors.New("main subflow not found")

	// ErrSubflowIDMismatch — ключ в subflows не совпадает с ID subflow.
	ErrSubflowIDMismatch = errors.New("subflow key does not match its ID")

	// ErrElementNotFound — ссылка на отсутствующий элемент.
	ErrElementNotFound = errors.New("element not found")

	// ErrElementKind — элемент не того типа, который ожидается.
	ErrElementKind = errors.New("element has unexpected type")

	// ErrUnknownElementType — тип элемента не поддерживается.
	ErrUnknownElementType = errors.New("unknown element type")

	// ErrUndeclaredVariable — элемент ссылается на необъявленную переменную.
	ErrUndeclaredVariable = errors.New("variable is not declared")

	// ErrBadVariableShape — переменная нарушает инвариант формы.
	ErrBadVariableShape = errors.New("variable has invalid shape")

	// ErrParentNotFound — parent ссылается на отсутствующий subflow.
	ErrParentNotFound = errors.New("parent subflow not found")

	// ErrTemplateNotVisible — шаблон скрыт вне своего workflow.
	ErrTemplateNotVisible = errors.New("template is hidden outside its workflow")

	// ErrBadDecision — таблица решений структурно некорректна.
	ErrBadDecision = errors.New("invalid decision table")
)

// Локальные ошибки вычисления. Не прерывают проход.
var (
	// ErrFlowNotFound — целевой flow функции не найден или без сигнатуры.
	ErrFlowNotFound = errors.New("target flow not found")

	// ErrSubflowNotFound — целевой subflow не найден или без сигнатуры.
	ErrSubflowNotFound = errors.New("target subflow not found")

	// ErrTableNotFound — ссылка на отсутствующую таблицу.
	ErrTableNotFound = errors.New("table not found")

	// ErrColumnNotFound — ссылка на отсутствующую колонку.
	ErrColumnNotFound = errors.New("column not found")

	// ErrCallDepth — превышена глубина вложенных вызовов.
	ErrCallDepth = errors.New("call depth exceeded")

	// ErrInertElement — элемент неизвестного типа пропущен.
	ErrInertElement = errors.New("element is inert")

	// ErrVariableNotFound — переменная не найдена в области видимости.
	ErrVariableNotFound = errors.New("variable not found")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	FlowID    string // ID flow
	SubflowID string // ID subflow, если применимо
	ElementID string // ID элемента, если применимо
	Field     string // поле, вызвавшее ошибку
	Message   string // описание ошибки
	Err       error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	prefix := "flow " + e.FlowID
	if e.SubflowID != "" {
		prefix += " subflow " + e.SubflowID
	}
	if e.ElementID != "" {
		prefix += " element " + e.ElementID
	}
	return prefix + ": " + e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(flowID, subflowID, elementID, field, message string, err error) *ValidationError {
	return &ValidationError{
		FlowID:    flowID,
		SubflowID: subflowID,
		ElementID: elementID,
		Field:     field,
		Message:   message,
		Err:       err,
	}
}

// ElementError — локальная ошибка вычисления одного элемента.
type ElementError struct {
	SubflowID string
	ElementID string
	Err       error
}

func (e *ElementError) Error() string {
	return fmt.Sprintf("subflow %s element %s: %v", e.SubflowID, e.ElementID, e.Err)
}

func (e *ElementError) Unwrap() error {
	return e.Err
}
