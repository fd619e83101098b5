package expr

import (
	"errors"
	"fmt"
)

var (
	// ErrSyntax — выражение не разбирается.
	ErrSyntax = errors.New("syntax error")

	// ErrUnknownFunction — вызов неизвестной агрегатной функции.
	ErrUnknownFunction = errors.New("unknown function")

	// ErrUnresolvedRef — ссылка table.column не найдена.
	ErrUnresolvedRef = errors.New("unresolved reference")

	// ErrType — операнды несовместимы с оператором.
	ErrType = errors.New("type mismatch")

	// ErrDivisionByZero — деление или остаток от деления на ноль.
	ErrDivisionByZero = errors.New("division by zero")
)

// RefError — ошибка разрешения конкретной ссылки.
type RefError struct {
	Ref Ref
	Err error
}

func (e *RefError) Error() string {
	return fmt.Sprintf("%s: %v", e.Ref.String(), e.Err)
}

func (e *RefError) Unwrap() error {
	return e.Err
}
