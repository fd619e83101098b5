// Package mq — транспорт RabbitMQ для вычислителя, вынесенного в воркер.
//
// Структура:
//   - connection.go — соединение с переподключением, общий канал и канал ответов RPC
//   - topology.go   — exchanges, queues, bindings
//   - publisher.go  — конверт сообщения и публикация, ответы воркера
//   - consumer.go   — разбор запросов (DecodeRequest) и их потребление воркером
//   - rpc.go        — RPCClient: запрос и ожидание ответа через direct reply-to
//   - payload.go    — payload'ы запросов и ответов, коды ошибок
//
// Типы сообщений:
//   - evaluator.init  — открыть сессию для flow
//   - evaluator.run   — выполнить run в сессии
//   - evaluator.close — закрыть сессию
//   - evaluator.reply — ответ воркера
//
// Запросы идут в tableflow.evaluator с ключом request, ответ приходит в
// amq.rabbitmq.reply-to с тем же correlation id.
package mq
