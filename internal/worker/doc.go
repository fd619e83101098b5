// Package worker — процесс, в котором живут сессии вычислителя.
//
// API может выполнять сессии у себя или отдавать их воркеру по AMQP RPC
// (remote_eval в конфигурации). Воркер читает evaluator.requests,
// выполняет запрос над session.Manager и отвечает в reply-to запроса
// с тем же correlation id:
//
//	evaluator.init  → session.Manager.Init  → {session_id, state, validation}
//	evaluator.run   → session.Manager.Run   → {session_id, result}
//	evaluator.close → session.Manager.Close → {session_id, state: CLOSED}
//
// Ошибки сессии передаются кодом (not_found, not_ready, init_failed,
// bad_query, bad_request), см. mq.ReplyPayload.Err.
//
// Реестр flows воркер держит сам и перезагружает по расписанию
// (scheduler.Reloader). Открытая сессия продолжает работать на том реестре,
// с которым была открыта.
package worker
