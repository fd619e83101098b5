package session

import "errors"

var (
	// ErrSessionNotFound — сессия с таким ID не открыта.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNotReady — run вызван вне состояния READY.
	ErrNotReady = errors.New("session is not ready")

	// ErrInitFailed — init завершился ошибкой.
	ErrInitFailed = errors.New("session init failed")

	// ErrBadQuery — запрос run некорректен.
	ErrBadQuery = errors.New("invalid run query")
)
