// Package session реализует границу вычислителя: init и run.
//
// Handle проходит жизненный цикл UNINITIALIZED → READY | FAILED → CLOSED.
// Run разрешён только в состоянии READY; в остальных состояниях вызов
// отклоняется ошибкой ErrNotReady, а не выполняется молча.
//
// Manager хранит открытые сессии по UUID и используется HTTP API и worker.
package session
