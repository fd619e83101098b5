package domain

// SessionState — состояние сессии вычислителя.
//
// Жизненный цикл:
//
//	UNINITIALIZED → READY → CLOSED
//	              ↘ FAILED
type SessionState string

const (
	// SessionUninitialized — сессия создана, init ещё не завершён.
	SessionUninitialized SessionState = "UNINITIALIZED"

	// SessionReady — init успешен, run разрешён.
	SessionReady SessionState = "READY"

	// SessionFailed — init завершился ошибкой.
	SessionFailed SessionState = "FAILED"

	// SessionClosed — сессия закрыта вызывающей стороной.
	SessionClosed SessionState = "CLOSED"
)

// IsTerminal возвращает true, если из состояния нет переходов.
func (s SessionState) IsTerminal() bool {
	switch s {
	case SessionFailed, SessionClosed:
		return true
	default:
		return false
	}
}

// CanRun возвращает true, если в состоянии разрешён run.
func (s SessionState) CanRun() bool {
	return s == SessionReady
}
